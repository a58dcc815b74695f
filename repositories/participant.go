package repositories

import (
	"chat-presence/domain"
	"chat-presence/errors"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// IParticipantRepository administers memberships on top of the read side
// used by the presence runtime.
type IParticipantRepository interface {
	AddParticipant(ctx context.Context, room domain.RoomID, user domain.UserID, joinedAt time.Time) error
	RemoveParticipant(ctx context.Context, room domain.RoomID, user domain.UserID) error
	GetParticipant(ctx context.Context, room domain.RoomID, user domain.UserID) (domain.Participant, error)
	ListParticipants(ctx context.Context, room domain.RoomID) ([]domain.Participant, error)
	RoomsForUser(ctx context.Context, user domain.UserID) ([]domain.RoomID, error)
	ParticipantsForRoom(ctx context.Context, room domain.RoomID) ([]domain.UserID, error)
	IsParticipant(ctx context.Context, room domain.RoomID, user domain.UserID) (bool, error)
	MarkRead(ctx context.Context, room domain.RoomID, user domain.UserID, at time.Time) error
}

// ParticipantRepository stores memberships in BadgerDB under two keys:
//   - "room:{room}:member:{user}" holds the membership record
//   - "user:{user}:room:{room}" is an empty reverse index used to find a user's rooms
//
// Both keys are written in the same transaction.
type ParticipantRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewParticipantRepository(db *badger.DB, log *slog.Logger) ParticipantRepository {
	return ParticipantRepository{db: db, log: log}
}

type participantRecord struct {
	JoinedAt   int64  `msgpack:"joined_at"`
	LastReadAt *int64 `msgpack:"last_read_at,omitempty"`
}

func memberKey(room domain.RoomID, user domain.UserID) []byte {
	return []byte(fmt.Sprintf("%s%s", memberPrefix(room), user))
}

func memberPrefix(room domain.RoomID) string {
	return fmt.Sprintf("room:%d:member:", room)
}

func userRoomKey(user domain.UserID, room domain.RoomID) []byte {
	return []byte(fmt.Sprintf("%s%d", userRoomPrefix(user), room))
}

func userRoomPrefix(user domain.UserID) string {
	return fmt.Sprintf("user:%s:room:", user)
}

// AddParticipant creates a membership. ErrMembershipExists if it is already there.
func (r ParticipantRepository) AddParticipant(ctx context.Context, room domain.RoomID, user domain.UserID, joinedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bytes, err := msgpack.Marshal(participantRecord{JoinedAt: joinedAt.UnixNano()})
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(memberKey(room, user))
		switch {
		case err == nil:
			return errors.ErrMembershipExists
		case err != badger.ErrKeyNotFound:
			return err
		}
		if err := txn.Set(memberKey(room, user), bytes); err != nil {
			return err
		}
		return txn.Set(userRoomKey(user, room), nil)
	})
}

// RemoveParticipant deletes a membership. ErrMembershipMissing if there is none.
func (r ParticipantRepository) RemoveParticipant(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(memberKey(room, user)); err != nil {
			if err == badger.ErrKeyNotFound {
				return errors.ErrMembershipMissing
			}
			return err
		}
		if err := txn.Delete(memberKey(room, user)); err != nil {
			return err
		}
		return txn.Delete(userRoomKey(user, room))
	})
}

func (r ParticipantRepository) GetParticipant(ctx context.Context, room domain.RoomID, user domain.UserID) (domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return domain.Participant{}, err
	}
	var record participantRecord
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(memberKey(room, user))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return errors.ErrMembershipMissing
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &record)
		})
	})
	if err != nil {
		return domain.Participant{}, err
	}
	return toParticipant(room, user, record), nil
}

// ListParticipants returns every membership of a room, ordered by user ID.
func (r ParticipantRepository) ListParticipants(ctx context.Context, room domain.RoomID) ([]domain.Participant, error) {
	var participants []domain.Participant
	prefix := memberPrefix(room)
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			user := domain.UserID(strings.TrimPrefix(string(item.Key()), prefix))
			var record participantRecord
			if err := item.Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &record)
			}); err != nil {
				return err
			}
			participants = append(participants, toParticipant(room, user, record))
		}
		return nil
	})
	return participants, err
}

// RoomsForUser scans the reverse index of the user.
func (r ParticipantRepository) RoomsForUser(ctx context.Context, user domain.UserID) ([]domain.RoomID, error) {
	var rooms []domain.RoomID
	prefix := userRoomPrefix(user)
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			id, err := strconv.Atoi(strings.TrimPrefix(string(it.Item().Key()), prefix))
			if err != nil {
				r.log.Warn("Skipping malformed membership key", "key", string(it.Item().Key()))
				continue
			}
			rooms = append(rooms, domain.RoomID(id))
		}
		return nil
	})
	return rooms, err
}

// ParticipantsForRoom returns the authoritative participant list of a room.
func (r ParticipantRepository) ParticipantsForRoom(ctx context.Context, room domain.RoomID) ([]domain.UserID, error) {
	var users []domain.UserID
	prefix := memberPrefix(room)
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			users = append(users, domain.UserID(strings.TrimPrefix(string(it.Item().Key()), prefix)))
		}
		return nil
	})
	return users, err
}

func (r ParticipantRepository) IsParticipant(ctx context.Context, room domain.RoomID, user domain.UserID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(memberKey(room, user))
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case err == badger.ErrKeyNotFound:
		return false, nil
	default:
		return false, err
	}
}

// MarkRead records when the participant last read the room.
func (r ParticipantRepository) MarkRead(ctx context.Context, room domain.RoomID, user domain.UserID, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(memberKey(room, user))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return errors.ErrNotParticipant
			}
			return err
		}
		var record participantRecord
		if err := item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &record)
		}); err != nil {
			return err
		}
		readAt := at.UnixNano()
		record.LastReadAt = &readAt
		bytes, err := msgpack.Marshal(record)
		if err != nil {
			return err
		}
		return txn.Set(memberKey(room, user), bytes)
	})
}

func toParticipant(room domain.RoomID, user domain.UserID, record participantRecord) domain.Participant {
	participant := domain.Participant{
		Room:     room,
		User:     user,
		JoinedAt: time.Unix(0, record.JoinedAt).UTC(),
	}
	if record.LastReadAt != nil {
		readAt := time.Unix(0, *record.LastReadAt).UTC()
		participant.LastReadAt = &readAt
	}
	return participant
}
