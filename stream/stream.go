// Package stream maintains the live, ordered message view of a room.
// One subscription delivers the full history sorted by creation time
// and re-delivers it after every store change.
package stream

import (
	"blimp/domain"
	"blimp/errors"
	"blimp/repositories"
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Indexer receives every sent message for full-text search. Indexing
// is best-effort: a failure is logged, never surfaced to the sender.
type Indexer interface {
	Index(message domain.Message) error
}

type Stream struct {
	messages repositories.IMessageRepository
	indexer  Indexer // may be nil
	log      *slog.Logger
}

func NewStream(messages repositories.IMessageRepository, indexer Indexer, log *slog.Logger) *Stream {
	return &Stream{messages: messages, indexer: indexer, log: log}
}

// Send appends a message authored by the principal.
//
// There is no optimistic local echo: the message reaches the caller
// through the subscription like everyone else's, so the store stays
// the single source of truth for ids, timestamps, and order.
func (s *Stream) Send(_ context.Context, roomID uuid.UUID, author domain.Principal, text string) (domain.Message, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Message{}, errors.ErrEmptyMessage
	}

	message, err := s.messages.Append(roomID, author, text)
	if err != nil {
		return domain.Message{}, err
	}

	if s.indexer != nil {
		if err := s.indexer.Index(message); err != nil {
			s.log.Warn("message indexing failed", "message_id", message.ID, "error", err)
		}
	}
	return message, nil
}

// History returns the room's messages in CreatedAt ascending order.
func (s *Stream) History(_ context.Context, roomID uuid.UUID) ([]domain.Message, error) {
	return s.messages.List(roomID)
}

// Subscribe opens a live view of one room's history.
//
// The current full list is delivered first, then again after every
// underlying change. Unsubscribing and resubscribing re-delivers the
// full history. The caller must Close the subscription; after Close
// returns, no further delivery happens.
func (s *Stream) Subscribe(ctx context.Context, roomID uuid.UUID) (*Subscription, error) {
	watchCtx, cancel := context.WithCancel(ctx)
	notify := s.messages.Watch(watchCtx, roomID)

	snapshot, err := s.History(ctx, roomID)
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &Subscription{
		roomID:  roomID,
		updates: make(chan []domain.Message, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		defer close(sub.updates)

		sub.emit(snapshot)
		for {
			select {
			case <-watchCtx.Done():
				return
			case _, ok := <-notify:
				if !ok {
					return
				}
				messages, err := s.History(watchCtx, roomID)
				if err != nil {
					s.log.Warn("history refresh failed", "room_id", roomID, "error", err)
					continue
				}
				sub.emit(messages)
			}
		}
	}()

	return sub, nil
}

// Subscription is a live, ordered view of one room's messages.
type Subscription struct {
	roomID  uuid.UUID
	updates chan []domain.Message
	cancel  context.CancelFunc
	done    chan struct{}
}

func (s *Subscription) RoomID() uuid.UUID {
	return s.roomID
}

// Updates delivers full ordered snapshots. The channel closes once the
// subscription is released.
func (s *Subscription) Updates() <-chan []domain.Message {
	return s.updates
}

// Close releases the subscription. It blocks until the delivery
// goroutine has stopped, so nothing is sent after it returns.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// emit replaces any undelivered snapshot so a slow consumer always
// wakes up to the latest state, never an intermediate one.
func (s *Subscription) emit(messages []domain.Message) {
	select {
	case s.updates <- messages:
		return
	default:
	}
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- messages:
	default:
	}
}
