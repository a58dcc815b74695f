package runtime

import (
	"chat-presence/contract"
	"chat-presence/domain"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
)

type Outcome int

const (
	Delivered Outcome = iota
	NoRecipients
	Degraded
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case NoRecipients:
		return "no_recipients"
	case Degraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Report summarizes one Broadcast call.
type Report struct {
	Room      domain.RoomID
	Attempted int
	Succeeded int
	Failed    int
	// Repaired counts online participants found through the store and added back to the index.
	Repaired int
	// Evicted counts subscribers removed from the index (offline or no longer participants).
	Evicted   int
	Outcome   Outcome
	LookupErr error
}

type broadcastOptions struct {
	exclude *domain.UserID
}

type BroadcastOption func(*broadcastOptions)

// ExcludeUser skips delivery to every connection of user.
// The user's index entry is still repaired or evicted as usual.
func ExcludeUser(user domain.UserID) BroadcastOption {
	return func(o *broadcastOptions) {
		o.exclude = &user
	}
}

// Broadcaster delivers a payload to every reachable participant of a room.
type Broadcaster struct {
	log             *slog.Logger
	registry        *Registry
	index           *RoomIndex
	coordinator     *Coordinator
	announcer       *Announcer
	deliveryTimeout time.Duration
	locks           *roomLocks
	observe         func(Report)
}

func NewBroadcaster(
	log *slog.Logger,
	registry *Registry,
	index *RoomIndex,
	coordinator *Coordinator,
	announcer *Announcer,
	deliveryTimeout time.Duration,
) *Broadcaster {
	return &Broadcaster{
		log:             log,
		registry:        registry,
		index:           index,
		coordinator:     coordinator,
		announcer:       announcer,
		deliveryTimeout: deliveryTimeout,
		locks:           newRoomLocks(),
		observe:         func(Report) {},
	}
}

// WithObserver registers a callback receiving every report, e.g. for metrics.
func (b *Broadcaster) WithObserver(observe func(Report)) *Broadcaster {
	b.observe = observe
	return b
}

// Broadcast sends payload to the room in two phases.
// The fast path targets the Room Index subscribers. The fallback reads the
// authoritative participant list and reaches online participants the index missed,
// repairing the index as it goes. A connection receives the payload at most once.
// Broadcasts to the same room are serialized, so each connection sees them in call order.
func (b *Broadcaster) Broadcast(ctx context.Context, room domain.RoomID, payload []byte, opts ...BroadcastOption) Report {
	var o broadcastOptions
	for _, opt := range opts {
		opt(&o)
	}
	excluded := func(user domain.UserID) bool {
		return o.exclude != nil && *o.exclude == user
	}

	unlock := b.locks.lock(room)
	defer unlock()

	report := Report{Room: room}
	sent := make(map[string]struct{})
	// reached holds the users handled by the fast path, the only ones the fallback skips.
	reached := make(map[domain.UserID]struct{})

	// Fast path
	subscribers := b.index.Subscribers(room)
	var targets []contract.Conn
	for _, user := range subscribers {
		if !b.registry.IsOnline(user) {
			if b.coordinator.Evict(room, user) {
				report.Evicted++
			}
			continue
		}
		reached[user] = struct{}{}
		if excluded(user) {
			continue
		}
		targets = append(targets, b.collect(user, sent)...)
	}
	b.deliver(ctx, targets, payload, &report)

	// Fallback
	participants, err := b.coordinator.ParticipantsOf(ctx, room)
	if err != nil {
		report.LookupErr = err
		report.Outcome = Degraded
		b.log.Warn("Fallback skipped", "room_id", room, "error", err)
		b.observe(report)
		return report
	}

	authoritative := lo.Keyify(participants)
	for _, user := range subscribers {
		if _, ok := authoritative[user]; !ok && b.coordinator.Evict(room, user) {
			report.Evicted++
		}
	}

	targets = targets[:0]
	for _, user := range participants {
		if _, ok := reached[user]; ok {
			continue
		}
		if !b.registry.IsOnline(user) {
			continue
		}
		if b.coordinator.Repair(room, user) {
			report.Repaired++
		}
		if excluded(user) {
			continue
		}
		targets = append(targets, b.collect(user, sent)...)
	}
	b.deliver(ctx, targets, payload, &report)

	if report.Attempted == 0 {
		report.Outcome = NoRecipients
	}
	b.observe(report)
	return report
}

// Notify delivers payload to every online connection of users, outside any room.
// Duplicate users are reached once; failed connections are pruned like in Broadcast.
func (b *Broadcaster) Notify(ctx context.Context, users []domain.UserID, payload []byte) Report {
	var report Report
	sent := make(map[string]struct{})
	var targets []contract.Conn
	for _, user := range lo.Uniq(users) {
		targets = append(targets, b.collect(user, sent)...)
	}
	b.deliver(ctx, targets, payload, &report)
	if report.Attempted == 0 {
		report.Outcome = NoRecipients
	}
	return report
}

// collect returns the user's connections not yet targeted by this broadcast.
func (b *Broadcaster) collect(user domain.UserID, sent map[string]struct{}) []contract.Conn {
	var conns []contract.Conn
	for _, conn := range b.registry.ConnectionsOf(user) {
		if _, ok := sent[conn.ID()]; ok {
			continue
		}
		sent[conn.ID()] = struct{}{}
		conns = append(conns, conn)
	}
	return conns
}

// deliver sends to every connection concurrently and waits for all attempts.
// A failed or timed out attempt prunes the connection.
func (b *Broadcaster) deliver(ctx context.Context, conns []contract.Conn, payload []byte, report *Report) {
	if len(conns) == 0 {
		return
	}
	var wg sync.WaitGroup
	var succeeded, failed atomic.Int64
	for _, conn := range conns {
		wg.Add(1)
		go func(conn contract.Conn) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, b.deliveryTimeout)
			defer cancel()
			if err := conn.Send(sendCtx, payload); err != nil {
				failed.Add(1)
				b.log.Debug("Delivery failed, pruning connection",
					"user_id", conn.UserID(), "conn_id", conn.ID(), "error", err)
				disconnect(b.registry, b.announcer, conn)
				return
			}
			succeeded.Add(1)
		}(conn)
	}
	wg.Wait()

	report.Attempted += len(conns)
	report.Succeeded += int(succeeded.Load())
	report.Failed += int(failed.Load())
}

// roomLocks hands out one mutex per room, freed when nobody holds or waits on it.
type roomLocks struct {
	mu    sync.Mutex
	locks map[domain.RoomID]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[domain.RoomID]*roomLock)}
}

func (l *roomLocks) lock(room domain.RoomID) func() {
	l.mu.Lock()
	rl, ok := l.locks[room]
	if !ok {
		rl = &roomLock{}
		l.locks[room] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, room)
		}
		l.mu.Unlock()
	}
}

func (l *roomLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
