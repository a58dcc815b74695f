// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are immutable and validated by the domain.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

// Message represents an immutable chat event.
type Message struct {
	ID            uuid.UUID // unique identifier
	Room          RoomID
	SenderID      UserID
	Content       string
	Type          MessageType
	Lang          string
	CensoredWords []string
	CreatedAt     time.Time
}
