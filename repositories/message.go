//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"chat-presence/domain"
	"chat-presence/errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

type IMessageRepository interface {
	StoreMessage(message DiskMessage) error
	GetMessages(room domain.RoomID, cursor *string) ([]DiskMessage, *string, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

type DiskMessage struct {
	ID       uuid.UUID
	Room     domain.RoomID
	Author   domain.UserID
	Content  string
	Type     domain.MessageType
	Lang     string
	Censored []string
	At       time.Time
}

type messageRecord struct {
	ID       string   `msgpack:"id"`
	Room     int      `msgpack:"room"`
	Author   string   `msgpack:"author"`
	Content  string   `msgpack:"content"`
	Type     string   `msgpack:"type"`
	Lang     string   `msgpack:"lang,omitempty"`
	Censored []string `msgpack:"censored,omitempty"`
	At       int64    `msgpack:"at"`
}

// A cursor is the key suffix of the last message of a page: "{timestamp_padded}:{uuid}".
var cursorPattern = regexp.MustCompile(`^\d{19}:[0-9a-f-]{36}$`)

// StoreMessage persists a message in BadgerDB.
// The key is formatted as "msg:{room_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two messages
//     arrive at the same nanosecond.
func (m MessageRepository) StoreMessage(message DiskMessage) error {
	key := fmt.Sprintf("msg:%d:%019d:%s",
		message.Room,
		message.At.UnixNano(),
		message.ID,
	)
	bytes, err := msgpack.Marshal(fromDiskMessage(message))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// GetMessages pages through a room newest first using a reverse prefix scan.
// The returned cursor points at the last message of the page and is nil once
// the page is not full, meaning there is nothing older left.
func (m MessageRepository) GetMessages(room domain.RoomID, cursor *string) ([]DiskMessage, *string, error) {
	if cursor != nil && !cursorPattern.MatchString(*cursor) {
		return nil, nil, errors.ErrInvalidCursor
	}

	var byteMessages [][]byte
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%d:", room)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Reverse iteration starts from the greatest possible key of the room
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		// The cursor message was the last one of the previous page
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()[prefixLen:]) == *cursor {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(byteMessages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", *m.limitMessages))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[prefixLen:])
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			byteMessages = append(byteMessages, value)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	diskMessages := make([]DiskMessage, 0, len(byteMessages))
	for _, b := range byteMessages {
		var record messageRecord
		if err = msgpack.Unmarshal(b, &record); err != nil {
			return nil, nil, err
		}
		message, err := toDiskMessage(record)
		if err != nil {
			return nil, nil, err
		}
		diskMessages = append(diskMessages, message)
	}

	if m.limitMessages == nil || len(diskMessages) < *m.limitMessages {
		return diskMessages, nil, nil
	}
	return diskMessages, &lastKey, nil
}

func fromDiskMessage(message DiskMessage) messageRecord {
	return messageRecord{
		ID:       message.ID.String(),
		Room:     int(message.Room),
		Author:   string(message.Author),
		Content:  message.Content,
		Type:     string(message.Type),
		Lang:     message.Lang,
		Censored: message.Censored,
		At:       message.At.UnixNano(),
	}
}

func toDiskMessage(record messageRecord) (DiskMessage, error) {
	parsedID, err := uuid.Parse(record.ID)
	if err != nil {
		return DiskMessage{}, err
	}
	return DiskMessage{
		ID:       parsedID,
		Room:     domain.RoomID(record.Room),
		Author:   domain.UserID(record.Author),
		Content:  record.Content,
		Type:     domain.MessageType(record.Type),
		Lang:     record.Lang,
		Censored: record.Censored,
		At:       time.Unix(0, record.At).UTC(),
	}, nil
}
