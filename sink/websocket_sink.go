package sink

import (
	"chat-presence/domain"
	apperrors "chat-presence/errors"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocketSink adapts a gorilla websocket to contract.Conn.
// Outbound frames go through a buffered channel drained by a single writer goroutine,
// the read side is owned by whoever calls Receive.
type WebSocketSink struct {
	id        string
	user      domain.UserID
	conn      *websocket.Conn
	log       *slog.Logger
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
	writeWait time.Duration
	pongWait  time.Duration
}

func NewWebSocketSink(
	conn *websocket.Conn,
	user domain.UserID,
	log *slog.Logger,
	bufferSize int,
	writeWait time.Duration,
	pongWait time.Duration,
	maxFrameSize int64,
) *WebSocketSink {
	s := &WebSocketSink{
		id:        uuid.NewString(),
		user:      user,
		conn:      conn,
		out:       make(chan []byte, bufferSize),
		done:      make(chan struct{}),
		writeWait: writeWait,
		pongWait:  pongWait,
	}
	s.log = log.With("user_id", user, "conn_id", s.id)

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go s.writeLoop()
	return s
}

func (s *WebSocketSink) ID() string            { return s.id }
func (s *WebSocketSink) UserID() domain.UserID { return s.user }
func (s *WebSocketSink) Done() <-chan struct{} { return s.done }

// Send queues payload for the writer goroutine.
// It gives up when ctx expires before the queue has room.
func (s *WebSocketSink) Send(ctx context.Context, payload []byte) error {
	select {
	case <-s.done:
		return apperrors.ErrConnectionClosed
	default:
	}
	select {
	case s.out <- payload:
		return nil
	case <-s.done:
		return apperrors.ErrConnectionClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", apperrors.ErrDeliveryTimeout, ctx.Err())
	}
}

// Receive blocks until the next text frame arrives.
// Canceling ctx closes the connection to unblock the read.
func (s *WebSocketSink) Receive(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		messageType, payload, err := s.conn.ReadMessage()
		if err != nil {
			if s.isClosed() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, apperrors.ErrConnectionClosed
			}
			return nil, fmt.Errorf("websocket read: %w", err)
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
		if messageType != websocket.TextMessage {
			s.log.Debug("Ignoring non text frame", "message_type", messageType)
			continue
		}
		return payload, nil
	}
}

// Close is idempotent. The writer goroutine sends a close frame and releases the socket.
func (s *WebSocketSink) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}

func (s *WebSocketSink) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *WebSocketSink) writeLoop() {
	ticker := time.NewTicker(s.pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = s.Close()
		_ = s.conn.Close()
	}()

	for {
		select {
		case payload := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.logWriteError(err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logWriteError(err)
				return
			}
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(s.writeWait))
			return
		}
	}
}

func (s *WebSocketSink) logWriteError(err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	s.log.Debug("Websocket write failed", "error", err)
}
