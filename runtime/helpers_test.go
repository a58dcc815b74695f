package runtime

import (
	"chat-presence/domain"
	apperrors "chat-presence/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
)

// fakeConn records every payload it is sent.
type fakeConn struct {
	id       string
	user     domain.UserID
	mu       sync.Mutex
	received [][]byte
	failSend bool
	block    bool
	inbound  chan []byte
	done     chan struct{}
	once     sync.Once
	closed   int
}

func newFakeConn(user domain.UserID) *fakeConn {
	return &fakeConn{
		id:      uuid.NewString(),
		user:    user,
		inbound: make(chan []byte, 16),
		done:    make(chan struct{}),
	}
}

func (c *fakeConn) ID() string            { return c.id }
func (c *fakeConn) UserID() domain.UserID { return c.user }
func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) Send(ctx context.Context, payload []byte) error {
	if c.failSend {
		return apperrors.ErrConnectionClosed
	}
	if c.block {
		<-ctx.Done()
		return ctx.Err()
	}
	select {
	case <-c.done:
		return apperrors.ErrConnectionClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, payload)
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, apperrors.ErrConnectionClosed
	case payload := <-c.inbound:
		return payload, nil
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]string, 0, len(c.received))
	for _, p := range c.received {
		res = append(res, string(p))
	}
	return res
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// memoryStore is an in-memory participant store with failure injection.
type memoryStore struct {
	mu      sync.RWMutex
	members map[domain.RoomID]map[domain.UserID]struct{}
	err     error
	delay   time.Duration
	// onParticipants runs before every ParticipantsForRoom answer.
	onParticipants func()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{members: make(map[domain.RoomID]map[domain.UserID]struct{})}
}

func (s *memoryStore) add(room domain.RoomID, users ...domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[room]; !ok {
		s.members[room] = make(map[domain.UserID]struct{})
	}
	for _, u := range users {
		s.members[room][u] = struct{}{}
	}
}

func (s *memoryStore) remove(room domain.RoomID, user domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[room], user)
}

func (s *memoryStore) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *memoryStore) wait(ctx context.Context) error {
	s.mu.RLock()
	delay, err := s.delay, s.err
	s.mu.RUnlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (s *memoryStore) RoomsForUser(ctx context.Context, user domain.UserID) ([]domain.RoomID, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rooms []domain.RoomID
	for room, users := range s.members {
		if _, ok := users[user]; ok {
			rooms = append(rooms, room)
		}
	}
	return rooms, nil
}

func (s *memoryStore) ParticipantsForRoom(ctx context.Context, room domain.RoomID) ([]domain.UserID, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	if s.onParticipants != nil {
		s.onParticipants()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var users []domain.UserID
	for u := range s.members[room] {
		users = append(users, u)
	}
	return users, nil
}

func (s *memoryStore) IsParticipant(ctx context.Context, room domain.RoomID, user domain.UserID) (bool, error) {
	if err := s.wait(ctx); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[room][user]
	return ok, nil
}

func (s *memoryStore) MarkRead(ctx context.Context, _ domain.RoomID, _ domain.UserID, _ time.Time) error {
	return s.wait(ctx)
}

// presenceFixture wires the runtime components the way the orchestrator does.
type presenceFixture struct {
	log         *slog.Logger
	store       *memoryStore
	registry    *Registry
	index       *RoomIndex
	coordinator *Coordinator
	announcer   *Announcer
	broadcaster *Broadcaster
}

func newPresenceFixture() *presenceFixture {
	log := logs.GetLoggerFromLevel(slog.LevelError)
	store := newMemoryStore()
	registry := NewRegistry()
	index := NewRoomIndex()
	coordinator := NewCoordinator(log, index, store, 100*time.Millisecond)
	announcer := NewAnnouncer(log, 64)
	return &presenceFixture{
		log:         log,
		store:       store,
		registry:    registry,
		index:       index,
		coordinator: coordinator,
		announcer:   announcer,
		broadcaster: NewBroadcaster(log, registry, index, coordinator, announcer, 50*time.Millisecond),
	}
}

// connect registers a connection and auto-joins its rooms, like the lifecycle does.
func (f *presenceFixture) connect(user domain.UserID) *fakeConn {
	conn := newFakeConn(user)
	f.registry.Register(user, conn)
	_, _ = f.coordinator.OnConnect(context.Background(), user)
	return conn
}

func payload(i int) []byte {
	return []byte(fmt.Sprintf("msg-%d", i))
}
