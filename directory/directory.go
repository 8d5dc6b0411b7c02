// Package directory resolves room creation, membership, and deletion.
// It owns the name collision-avoidance protocol and the live,
// membership-filtered room listing.
package directory

import (
	"blimp/domain"
	"blimp/errors"
	"blimp/repositories"
	"context"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// suffixRange bounds the random suffix appended to a taken name.
const suffixRange = 100

// RoomCascade removes everything a room owned when the room itself is
// deleted (message history, search entries).
type RoomCascade interface {
	DeleteRoom(roomID uuid.UUID) error
}

type Directory struct {
	rooms    repositories.IRoomRepository
	log      *slog.Logger
	cascades []RoomCascade
}

func NewDirectory(rooms repositories.IRoomRepository, log *slog.Logger, cascades ...RoomCascade) *Directory {
	return &Directory{rooms: rooms, log: log, cascades: cascades}
}

// Create inserts a new room owned by the principal.
//
// The name is normalized (trimmed, lower-cased) and checked against the
// index inside the insert transaction. On a collision the caller gets a
// NameTakenError carrying a suffixed candidate; confirming means
// calling Create again with the candidate, and the protocol repeats
// until a free name is found or the caller abandons.
func (d *Directory) Create(_ context.Context, principalID, requestedName string) (domain.Room, error) {
	normalized := domain.NormalizeName(requestedName)
	if normalized == "" {
		return domain.Room{}, errors.ErrInvalidName
	}

	room, err := d.rooms.Create(domain.Room{
		Name:           strings.TrimSpace(requestedName),
		NormalizedName: normalized,
		CreatorID:      principalID,
		Members:        []string{principalID},
	})
	if err == repositories.ErrNameTaken {
		candidate := strings.TrimSpace(requestedName) + randomSuffix()
		d.log.Info("room name taken, proposing candidate",
			"name", normalized, "candidate", candidate)
		return domain.Room{}, &errors.NameTakenError{Name: requestedName, Candidate: candidate}
	}
	if err != nil {
		return domain.Room{}, err
	}

	d.log.Info("room created", "room_id", room.ID, "name", room.Name, "creator", principalID)
	return room, nil
}

// Join admits the principal into the room matching the normalized name.
// Idempotent: joining a room twice leaves the member set unchanged.
func (d *Directory) Join(_ context.Context, principalID, roomName string) (domain.Room, error) {
	normalized := domain.NormalizeName(roomName)
	if normalized == "" {
		return domain.Room{}, errors.ErrInvalidName
	}

	room, err := d.rooms.GetByName(normalized)
	if err != nil {
		return domain.Room{}, err
	}
	return d.rooms.AddMember(room.ID, principalID)
}

// Delete removes the room and cascades to everything it owned.
// Creator-only, irreversible.
func (d *Directory) Delete(_ context.Context, principalID string, roomID uuid.UUID) error {
	room, err := d.rooms.Get(roomID)
	if err != nil {
		return err
	}
	if room.CreatorID != principalID {
		return errors.ErrForbidden
	}
	if err := d.rooms.Delete(roomID); err != nil {
		return err
	}
	for _, cascade := range d.cascades {
		if err := cascade.DeleteRoom(roomID); err != nil {
			return err
		}
	}
	d.log.Info("room deleted", "room_id", roomID, "name", room.Name)
	return nil
}

// Snapshot returns the rooms the principal currently belongs to.
func (d *Directory) Snapshot(_ context.Context, principalID string) ([]domain.Room, error) {
	return d.rooms.ListByMember(principalID)
}

// List opens a live, restartable view of the principal's rooms.
// The full filtered set is re-delivered after every underlying change;
// updates are snapshots, never diffs.
func (d *Directory) List(ctx context.Context, principalID string) (*RoomWatch, error) {
	watchCtx, cancel := context.WithCancel(ctx)
	notify := d.rooms.Watch(watchCtx)

	snapshot, err := d.rooms.ListByMember(principalID)
	if err != nil {
		cancel()
		return nil, err
	}

	w := &RoomWatch{
		updates: make(chan []domain.Room, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(w.done)
		defer close(w.updates)

		w.emit(snapshot)
		for {
			select {
			case <-watchCtx.Done():
				return
			case _, ok := <-notify:
				if !ok {
					return
				}
				rooms, err := d.rooms.ListByMember(principalID)
				if err != nil {
					d.log.Warn("room listing refresh failed", "error", err)
					continue
				}
				w.emit(rooms)
			}
		}
	}()

	return w, nil
}

// RoomWatch is a live room-list subscription. Close releases it; no
// new snapshot is delivered after Close returns.
type RoomWatch struct {
	updates chan []domain.Room
	cancel  context.CancelFunc
	done    chan struct{}
}

func (w *RoomWatch) Updates() <-chan []domain.Room {
	return w.updates
}

func (w *RoomWatch) Close() {
	w.cancel()
	<-w.done
}

// emit replaces any undelivered snapshot so a slow consumer always
// wakes up to the latest state, never an intermediate one.
func (w *RoomWatch) emit(rooms []domain.Room) {
	select {
	case w.updates <- rooms:
		return
	default:
	}
	select {
	case <-w.updates:
	default:
	}
	select {
	case w.updates <- rooms:
	default:
	}
}

func randomSuffix() string {
	return strconv.Itoa(rand.IntN(suffixRange))
}
