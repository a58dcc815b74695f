// Package domain contains core concepts of the chat system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

// Participant is one durable membership of a user in a conversation.
// It is owned by the participant store, the runtime only reads it.
type Participant struct {
	Room       RoomID
	User       UserID
	JoinedAt   time.Time
	LastReadAt *time.Time
}
