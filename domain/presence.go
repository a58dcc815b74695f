package domain

import "time"

// PresenceChange is emitted when a user's first connection opens or the last one closes.
// Rooms is only known for online changes, when the auto-join lookup succeeded.
type PresenceChange struct {
	User   UserID
	Online bool
	Rooms  []RoomID
	At     time.Time
}
