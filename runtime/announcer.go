package runtime

import (
	"chat-presence/domain"
	"log/slog"
	"time"
)

// Announcer queues presence changes for the presence worker.
// Queuing never blocks; a change is dropped when the buffer is full.
type Announcer struct {
	log    *slog.Logger
	events chan domain.PresenceChange
}

func NewAnnouncer(log *slog.Logger, bufferSize int) *Announcer {
	return &Announcer{log: log, events: make(chan domain.PresenceChange, bufferSize)}
}

func (a *Announcer) Online(user domain.UserID, rooms []domain.RoomID) {
	a.push(domain.PresenceChange{User: user, Online: true, Rooms: rooms, At: time.Now().UTC()})
}

func (a *Announcer) Offline(user domain.UserID, lastSeen time.Time) {
	a.push(domain.PresenceChange{User: user, Online: false, At: lastSeen})
}

func (a *Announcer) Events() <-chan domain.PresenceChange {
	return a.events
}

func (a *Announcer) push(change domain.PresenceChange) {
	select {
	case a.events <- change:
	default:
		a.log.Warn("Presence change lost", "user_id", change.User, "online", change.Online)
	}
}

// Len returns the number of queued changes.
func (a *Announcer) Len() int { return len(a.events) }

func (a *Announcer) Cap() int { return cap(a.events) }
