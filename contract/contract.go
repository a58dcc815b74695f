//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-presence/domain"
	"context"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging by the supervisor, so workers don't need to name themselves.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Conn is one live bidirectional link owned by a single user.
// Send must be safe for concurrent use and must preserve call order.
type Conn interface {
	ID() string
	UserID() domain.UserID
	Send(ctx context.Context, payload []byte) error
	Receive(ctx context.Context) ([]byte, error)
	// Done is closed once the connection is unusable.
	Done() <-chan struct{}
	Close() error
}

// ParticipantStore is the authoritative, durable source of room membership.
type ParticipantStore interface {
	RoomsForUser(ctx context.Context, user domain.UserID) ([]domain.RoomID, error)
	ParticipantsForRoom(ctx context.Context, room domain.RoomID) ([]domain.UserID, error)
	IsParticipant(ctx context.Context, room domain.RoomID, user domain.UserID) (bool, error)
	MarkRead(ctx context.Context, room domain.RoomID, user domain.UserID, at time.Time) error
}

// InboundHandler processes a raw frame received on a connection.
type InboundHandler interface {
	Handle(ctx context.Context, conn Conn, payload []byte)
}

// PresenceListener is told when a user's first connection opens and when the last one closes.
type PresenceListener interface {
	UserOnline(ctx context.Context, user domain.UserID, rooms []domain.RoomID)
	UserOffline(ctx context.Context, user domain.UserID, lastSeen time.Time)
}
