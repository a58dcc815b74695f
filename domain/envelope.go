package domain

import (
	"encoding/json"
	"time"
)

// FrameType is the "type" discriminator of every frame exchanged on the socket.
type FrameType string

const (
	FrameMessage     FrameType = "message"
	FrameTyping      FrameType = "typing"
	FrameReadReceipt FrameType = "read_receipt"
	FrameUserOnline  FrameType = "user_online"
	FrameUserOffline FrameType = "user_offline"
	FrameError       FrameType = "error"
	FramePing        FrameType = "ping"
	FramePong        FrameType = "pong"
	FrameJoin        FrameType = "join"
	FrameLeave       FrameType = "leave"
	FrameHistory     FrameType = "history"
)

// Incoming is a frame sent by a client.
// ConversationID is required by every type except ping.
type Incoming struct {
	Type           FrameType   `json:"type" validate:"required,oneof=message typing read_receipt ping join leave history"`
	ConversationID RoomID      `json:"conversation_id" validate:"required_unless=Type ping"`
	Content        string      `json:"content" validate:"required_if=Type message"`
	MessageType    MessageType `json:"message_type" validate:"omitempty,oneof=text image file system"`
	Cursor         *string     `json:"cursor,omitempty"`
}

// Outgoing is a frame pushed to a client. Only the fields relevant
// to the frame type are populated.
type Outgoing struct {
	Type           FrameType     `json:"type"`
	ConversationID RoomID        `json:"conversation_id,omitempty"`
	Message        *MessageView  `json:"message,omitempty"`
	Data           any           `json:"data,omitempty"`
	Messages       []MessageView `json:"messages,omitempty"`
	Cursor         *string       `json:"cursor,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}

// MessageView is the client representation of a stored message.
type MessageView struct {
	ID          string      `json:"id"`
	SenderID    UserID      `json:"sender_id"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"message_type"`
	Lang        string      `json:"lang,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

type TypingData struct {
	UserID   UserID `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

type ReadReceiptData struct {
	UserID UserID    `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

type StatusData struct {
	UserID   UserID    `json:"user_id"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}

type ErrorData struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func ToMessageView(m Message) MessageView {
	return MessageView{
		ID:          m.ID.String(),
		SenderID:    m.SenderID,
		Content:     m.Content,
		MessageType: m.Type,
		Lang:        m.Lang,
		CreatedAt:   m.CreatedAt,
	}
}

// Encode serializes the frame. Timestamp defaults to now (UTC).
func (o Outgoing) Encode() ([]byte, error) {
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now().UTC()
	}
	return json.Marshal(o)
}
