package runtime

import (
	"chat-presence/domain"
	"sync"

	"github.com/samber/lo"
)

const defaultShardCount = 32

type Set map[domain.UserID]struct{}

type shard struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]Set
}

// RoomIndex tracks which users receive fan-out for each room.
// It is a cache of the durable participant list and never reads the store.
// Rooms are spread over shards so unrelated rooms don't contend on one lock.
type RoomIndex struct {
	shards []*shard
}

func NewRoomIndex() *RoomIndex {
	return NewRoomIndexWithShards(defaultShardCount)
}

func NewRoomIndexWithShards(count int) *RoomIndex {
	if count <= 0 {
		count = 1
	}
	shards := make([]*shard, count)
	for i := range shards {
		shards[i] = &shard{rooms: make(map[domain.RoomID]Set)}
	}
	return &RoomIndex{shards: shards}
}

func (idx *RoomIndex) shardFor(room domain.RoomID) *shard {
	n := int(room) % len(idx.shards)
	if n < 0 {
		n = -n
	}
	return idx.shards[n]
}

// Join subscribes a user to a room. Returns false if already subscribed.
func (idx *RoomIndex) Join(room domain.RoomID, user domain.UserID) bool {
	s := idx.shardFor(room)
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.rooms[room]
	if !ok {
		members = make(Set)
		s.rooms[room] = members
	}
	if _, exists := members[user]; exists {
		return false
	}
	members[user] = struct{}{}
	return true
}

// Leave unsubscribes a user from a room. Returns false if the user wasn't subscribed.
// A room left without subscribers is removed.
func (idx *RoomIndex) Leave(room domain.RoomID, user domain.UserID) bool {
	s := idx.shardFor(room)
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.rooms[room]
	if !ok {
		return false
	}
	if _, exists := members[user]; !exists {
		return false
	}
	delete(members, user)
	if len(members) == 0 {
		delete(s.rooms, room)
	}
	return true
}

// Subscribers returns a snapshot of the users subscribed to the room.
func (idx *RoomIndex) Subscribers(room domain.RoomID) []domain.UserID {
	s := idx.shardFor(room)
	s.mu.RLock()
	defer s.mu.RUnlock()

	members, ok := s.rooms[room]
	if !ok {
		return []domain.UserID{}
	}
	return lo.Keys(members)
}

func (idx *RoomIndex) IsSubscribed(room domain.RoomID, user domain.UserID) bool {
	s := idx.shardFor(room)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[room][user]
	return ok
}

// Len returns the number of rooms with at least one subscriber.
func (idx *RoomIndex) Len() int {
	total := 0
	for _, s := range idx.shards {
		s.mu.RLock()
		total += len(s.rooms)
		s.mu.RUnlock()
	}
	return total
}
