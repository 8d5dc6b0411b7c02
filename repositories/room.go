//go:generate go run go.uber.org/mock/mockgen -source=room.go -destination=../mocks/mock_room_repository.go -package=mocks
package repositories

import (
	"blimp/domain"
	"blimp/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
	"github.com/google/uuid"
)

const (
	roomPrefix     = "room:"
	roomNamePrefix = "roomname:"
)

// ErrNameTaken is the storage-level signal that the normalized name
// index already holds an entry. The directory turns it into a
// NameTakenError with a candidate name.
var ErrNameTaken = fmt.Errorf("normalized room name already indexed")

type IRoomRepository interface {
	Create(room domain.Room) (domain.Room, error)
	Get(id uuid.UUID) (domain.Room, error)
	GetByName(normalized string) (domain.Room, error)
	ListByMember(principalID string) ([]domain.Room, error)
	AddMember(id uuid.UUID, principalID string) (domain.Room, error)
	Delete(id uuid.UUID) error
	Watch(ctx context.Context) <-chan struct{}
}

type RoomRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewRoomRepository(db *badger.DB, log *slog.Logger) RoomRepository {
	return RoomRepository{db: db, log: log}
}

// roomRecord is the on-disk shape of a Room.
type roomRecord struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	NormalizedName string   `json:"normalized_name"`
	CreatorID      string   `json:"creator_id"`
	Members        []string `json:"members"`
	CreatedAt      int64    `json:"created_at"` // unix nanoseconds
}

// Create persists a new room, assigning its ID and timestamp.
//
// The normalized name index is re-checked inside the same transaction
// that inserts it, so two sequential creations of the same name cannot
// both pass. Two truly concurrent transactions remain a best-effort
// case: badger aborts one of them on conflict and the caller retries.
func (r RoomRepository) Create(room domain.Room) (domain.Room, error) {
	room.ID = uuid.New()
	room.CreatedAt = time.Now().UTC()

	data, err := json.Marshal(fromRoom(room))
	if err != nil {
		return domain.Room{}, fmt.Errorf("marshal failed: %w", err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		nameKey := []byte(roomNamePrefix + room.NormalizedName)
		if _, err := txn.Get(nameKey); err == nil {
			return ErrNameTaken
		}
		if err := txn.Set(nameKey, []byte(room.ID.String())); err != nil {
			return err
		}
		return txn.Set([]byte(roomPrefix+room.ID.String()), data)
	})
	if err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

func (r RoomRepository) Get(id uuid.UUID) (domain.Room, error) {
	var rec roomRecord
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(roomPrefix + id.String()))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.Room{}, errors.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, err
	}
	return toRoom(rec)
}

// GetByName resolves a normalized name through the secondary index.
// If the accepted creation race ever produced duplicates, the index
// holds a single winner; which one is unspecified.
func (r RoomRepository) GetByName(normalized string) (domain.Room, error) {
	var id uuid.UUID
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(roomNamePrefix + normalized))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			parsed, err := uuid.Parse(string(val))
			if err != nil {
				return err
			}
			id = parsed
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.Room{}, errors.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, err
	}
	return r.Get(id)
}

// ListByMember scans all rooms and keeps those the principal belongs to.
// Ordering across entries is unspecified (set semantics).
func (r RoomRepository) ListByMember(principalID string) ([]domain.Room, error) {
	var rooms []domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(roomPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec roomRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				room, err := toRoom(rec)
				if err != nil {
					return err
				}
				if room.HasMember(principalID) {
					rooms = append(rooms, room)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return rooms, err
}

// AddMember appends the principal to the room's member set.
// A no-op when already present, so joining twice is safe.
func (r RoomRepository) AddMember(id uuid.UUID, principalID string) (domain.Room, error) {
	var room domain.Room
	key := []byte(roomPrefix + id.String())

	err := r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		var rec roomRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return err
		}
		room, err = toRoom(rec)
		if err != nil {
			return err
		}
		if room.HasMember(principalID) {
			return nil
		}
		room.Members = append(room.Members, principalID)
		rec.Members = room.Members
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if err == badger.ErrKeyNotFound {
		return domain.Room{}, errors.ErrRoomNotFound
	}
	return room, err
}

// Delete removes the room record and its name index entry.
// The index is only dropped when it still points at this room, so a
// later room that legitimately reused the slot is left untouched.
func (r RoomRepository) Delete(id uuid.UUID) error {
	key := []byte(roomPrefix + id.String())
	return r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return errors.ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		var rec roomRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return err
		}

		nameKey := []byte(roomNamePrefix + rec.NormalizedName)
		if idx, err := txn.Get(nameKey); err == nil {
			owner := ""
			_ = idx.Value(func(val []byte) error {
				owner = string(val)
				return nil
			})
			if owner == rec.ID {
				if err := txn.Delete(nameKey); err != nil {
					return err
				}
			}
		}
		return txn.Delete(key)
	})
}

// Watch exposes the store's change feed for room records.
//
// Consumers treat a tick as "something changed" and re-query the set,
// matching the whole-snapshot delivery model. Ticks are coalesced
// through a buffered channel so a slow consumer never blocks the
// subscription callback. The channel closes when ctx is canceled.
func (r RoomRepository) Watch(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		err := r.db.Subscribe(ctx, func(kv *badger.KVList) error {
			select {
			case ch <- struct{}{}:
			default:
			}
			return nil
		}, []pb.Match{{Prefix: []byte(roomPrefix)}})
		if err != nil && ctx.Err() == nil {
			r.log.Warn("room watch terminated", "error", err)
		}
	}()
	return ch
}

func fromRoom(room domain.Room) roomRecord {
	return roomRecord{
		ID:             room.ID.String(),
		Name:           room.Name,
		NormalizedName: room.NormalizedName,
		CreatorID:      room.CreatorID,
		Members:        room.Members,
		CreatedAt:      room.CreatedAt.UnixNano(),
	}
}

func toRoom(rec roomRecord) (domain.Room, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return domain.Room{}, err
	}
	return domain.Room{
		ID:             id,
		Name:           rec.Name,
		NormalizedName: rec.NormalizedName,
		CreatorID:      rec.CreatorID,
		Members:        rec.Members,
		CreatedAt:      time.Unix(0, rec.CreatedAt).UTC(),
	}, nil
}
