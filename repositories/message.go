//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"blimp/domain"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
	"github.com/google/uuid"
)

type IMessageRepository interface {
	Append(roomID uuid.UUID, author domain.Principal, content string) (domain.Message, error)
	List(roomID uuid.UUID) ([]domain.Message, error)
	DeleteRoom(roomID uuid.UUID) error
	Watch(ctx context.Context, roomID uuid.UUID) <-chan struct{}
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

// messageRecord is the on-disk shape of a Message. Augmentations are
// session state and never persisted.
type messageRecord struct {
	ID           string `json:"id"`
	RoomID       string `json:"room_id"`
	AuthorID     string `json:"author_id"`
	AuthorName   string `json:"author_name"`
	AuthorAvatar string `json:"author_avatar,omitempty"`
	Content      string `json:"content"`
	CreatedAt    int64  `json:"created_at"` // unix nanoseconds
}

func messagePrefix(roomID uuid.UUID) string {
	return fmt.Sprintf("msg:%s:", roomID)
}

// messageKey formats "msg:{room_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if
//     two messages arrive at the same nanosecond.
func messageKey(roomID uuid.UUID, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", roomID, at.UnixNano(), id))
}

// Append persists a new message, assigning its ID and timestamp.
// The assigned CreatedAt is the store clock, authoritative for
// ordering regardless of how sends raced on the way in.
func (m MessageRepository) Append(roomID uuid.UUID, author domain.Principal, content string) (domain.Message, error) {
	message := domain.Message{
		ID:           uuid.New(),
		RoomID:       roomID,
		AuthorID:     author.ID,
		AuthorName:   author.DisplayName,
		AuthorAvatar: author.AvatarRef,
		Content:      content,
		CreatedAt:    time.Now().UTC(),
	}

	data, err := json.Marshal(fromMessage(message))
	if err != nil {
		return domain.Message{}, fmt.Errorf("marshal failed: %w", err)
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(roomID, message.CreatedAt, message.ID), data)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return message, nil
}

// List returns the room's full history in CreatedAt ascending order.
// Thanks to the padded timestamp in the key, a forward prefix scan is
// already sorted; no in-memory sort is needed.
func (m MessageRepository) List(roomID uuid.UUID) ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(messagePrefix(roomID))
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec messageRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				message, err := toMessage(rec)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return messages, err
}

// DeleteRoom drops every message of the room. Used by the cascade when
// a creator deletes their room. Irreversible.
func (m MessageRepository) DeleteRoom(roomID uuid.UUID) error {
	return m.db.Update(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte(messagePrefix(roomID))
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		m.log.Debug("room history deleted", "room_id", roomID, "messages", len(keys))
		return nil
	})
}

// Watch exposes the store's change feed for one room's messages.
// Same coalescing contract as RoomRepository.Watch: a tick means
// "re-read the history", the channel closes when ctx is canceled.
func (m MessageRepository) Watch(ctx context.Context, roomID uuid.UUID) <-chan struct{} {
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		err := m.db.Subscribe(ctx, func(kv *badger.KVList) error {
			select {
			case ch <- struct{}{}:
			default:
			}
			return nil
		}, []pb.Match{{Prefix: []byte(messagePrefix(roomID))}})
		if err != nil && ctx.Err() == nil {
			m.log.Warn("message watch terminated", "room_id", roomID, "error", err)
		}
	}()
	return ch
}

func fromMessage(message domain.Message) messageRecord {
	return messageRecord{
		ID:           message.ID.String(),
		RoomID:       message.RoomID.String(),
		AuthorID:     message.AuthorID,
		AuthorName:   message.AuthorName,
		AuthorAvatar: message.AuthorAvatar,
		Content:      message.Content,
		CreatedAt:    message.CreatedAt.UnixNano(),
	}
}

func toMessage(rec messageRecord) (domain.Message, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return domain.Message{}, err
	}
	roomID, err := uuid.Parse(rec.RoomID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:           id,
		RoomID:       roomID,
		AuthorID:     rec.AuthorID,
		AuthorName:   rec.AuthorName,
		AuthorAvatar: rec.AuthorAvatar,
		Content:      rec.Content,
		CreatedAt:    time.Unix(0, rec.CreatedAt).UTC(),
	}, nil
}
