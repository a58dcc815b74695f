package runtime

import (
	"chat-presence/contract"
	"chat-presence/domain"
	apperrors "chat-presence/errors"
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Coordinator keeps the Room Index in line with the participant store.
// It is the only component allowed to mutate the index.
type Coordinator struct {
	log           *slog.Logger
	index         *RoomIndex
	store         contract.ParticipantStore
	lookupTimeout time.Duration
}

func NewCoordinator(log *slog.Logger, index *RoomIndex, store contract.ParticipantStore, lookupTimeout time.Duration) *Coordinator {
	return &Coordinator{
		log:           log,
		index:         index,
		store:         store,
		lookupTimeout: lookupTimeout,
	}
}

// OnConnect subscribes the user to every room they participate in.
// Calling it again for an already subscribed user changes nothing.
// A lookup failure leaves the index untouched; broadcasts repair it later.
func (c *Coordinator) OnConnect(ctx context.Context, user domain.UserID) ([]domain.RoomID, error) {
	rooms, err := c.RoomsOf(ctx, user)
	if err != nil {
		return nil, err
	}
	joined := 0
	for _, room := range rooms {
		if c.index.Join(room, user) {
			joined++
		}
	}
	c.log.Debug("Auto-joined rooms", "user_id", user, "rooms", len(rooms), "new", joined)
	return rooms, nil
}

// RoomsOf reads the user's rooms from the store, bounded by the lookup timeout.
func (c *Coordinator) RoomsOf(ctx context.Context, user domain.UserID) ([]domain.RoomID, error) {
	rooms, err := lookup(ctx, c.lookupTimeout, func(ctx context.Context) ([]domain.RoomID, error) {
		return c.store.RoomsForUser(ctx, user)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: rooms of %s: %w", apperrors.ErrParticipantLookup, user, err)
	}
	return rooms, nil
}

// ParticipantsOf reads the authoritative participant list of a room.
func (c *Coordinator) ParticipantsOf(ctx context.Context, room domain.RoomID) ([]domain.UserID, error) {
	users, err := lookup(ctx, c.lookupTimeout, func(ctx context.Context) ([]domain.UserID, error) {
		return c.store.ParticipantsForRoom(ctx, room)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: participants of room %d: %w", apperrors.ErrParticipantLookup, room, err)
	}
	return users, nil
}

// Repair subscribes an online participant the broadcaster found missing from the index.
func (c *Coordinator) Repair(room domain.RoomID, user domain.UserID) bool {
	if c.index.Join(room, user) {
		c.log.Debug("Room index repaired", "room_id", room, "user_id", user)
		return true
	}
	return false
}

// Join subscribes a user on request, after checking the store.
func (c *Coordinator) Join(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	ok, err := c.IsParticipant(ctx, room, user)
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrParticipantLookup, err)
	}
	if !ok {
		return apperrors.ErrNotParticipant
	}
	c.index.Join(room, user)
	return nil
}

// IsParticipant asks the store, within the lookup timeout, whether user belongs to room.
func (c *Coordinator) IsParticipant(ctx context.Context, room domain.RoomID, user domain.UserID) (bool, error) {
	return lookup(ctx, c.lookupTimeout, func(ctx context.Context) (bool, error) {
		return c.store.IsParticipant(ctx, room, user)
	})
}

// MarkRead records the user's last read time, within the lookup timeout.
func (c *Coordinator) MarkRead(ctx context.Context, room domain.RoomID, user domain.UserID, at time.Time) error {
	_, err := lookup(ctx, c.lookupTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.store.MarkRead(ctx, room, user, at)
	})
	return err
}

// Leave unsubscribes a user on request. The store is not modified.
func (c *Coordinator) Leave(room domain.RoomID, user domain.UserID) {
	c.index.Leave(room, user)
}

// Evict drops a stale subscription: the user is offline or no longer a participant.
func (c *Coordinator) Evict(room domain.RoomID, user domain.UserID) bool {
	if c.index.Leave(room, user) {
		c.log.Debug("Stale subscriber evicted", "room_id", room, "user_id", user)
		return true
	}
	return false
}

// lookup runs fn with a deadline and gives up when it expires,
// even if fn itself ignores its context.
func lookup[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		value, err := fn(ctx)
		done <- result{value, err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
