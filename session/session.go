// Package session composes directory entry, message stream, and
// augmentor into one room-scoped session and owns their lifecycle.
package session

import (
	"blimp/ai"
	"blimp/domain"
	"blimp/stream"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultAugmentTimeout = 30 * time.Second
	defaultUpdateBuffer   = 16
)

// Config tunes per-session behavior. The zero value picks defaults.
type Config struct {
	AugmentTimeout time.Duration
	UpdateBuffer   int
}

func (c Config) withDefaults() Config {
	if c.AugmentTimeout == 0 {
		c.AugmentTimeout = defaultAugmentTimeout
	}
	if c.UpdateBuffer == 0 {
		c.UpdateBuffer = defaultUpdateBuffer
	}
	return c
}

// Session is one principal's live view of one room.
//
// A single reducer goroutine is the serialization point for the two
// mutations of the view: snapshot replacement from the stream and
// augmentation patches from the augmentor. Patches are applied by
// message id lookup, never by list position, so a patch landing just
// after a newer snapshot still finds its message.
type Session struct {
	room      domain.Room
	principal domain.Principal
	stream    *stream.Stream
	sub       *stream.Subscription
	augmentor *ai.Augmentor

	views     chan []domain.Message
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	log       *slog.Logger
}

// Open starts a session: one stream subscription plus a fresh,
// session-scoped augmentor. Closing the session discards all
// augmentation state.
func Open(ctx context.Context, room domain.Room, principal domain.Principal,
	st *stream.Stream, provider ai.Provider, config Config, log *slog.Logger) (*Session, error) {
	config = config.withDefaults()

	sub, err := st.Subscribe(ctx, room.ID)
	if err != nil {
		return nil, err
	}

	s := &Session{
		room:      room,
		principal: principal,
		stream:    st,
		sub:       sub,
		augmentor: ai.NewAugmentor(provider, config.AugmentTimeout, config.UpdateBuffer, log),
		views:     make(chan []domain.Message, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		log:       log,
	}
	go s.reduce()
	return s, nil
}

func (s *Session) Room() domain.Room {
	return s.room
}

func (s *Session) Principal() domain.Principal {
	return s.principal
}

// Updates delivers the merged room view: the ordered message list with
// session augmentations attached. Closed when the session ends.
func (s *Session) Updates() <-chan []domain.Message {
	return s.views
}

// Send posts a message authored by the session principal. The message
// shows up through Updates once the store delivers it back.
func (s *Session) Send(ctx context.Context, text string) (domain.Message, error) {
	return s.stream.Send(ctx, s.room.ID, s.principal, text)
}

// Augment requests derived text for one message of this room.
func (s *Session) Augment(ctx context.Context, messageID uuid.UUID, text string, kind domain.Kind) (domain.Augmentation, bool) {
	return s.augmentor.Augment(ctx, messageID, text, kind)
}

// Close releases the subscription and discards augmentation state.
// Idempotent. After Close returns the reducer has stopped, so no view
// is delivered afterwards.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.sub.Close()
		<-s.done
	})
}

func (s *Session) reduce() {
	defer close(s.done)
	defer close(s.views)

	var messages []domain.Message
	annotations := make(map[uuid.UUID]domain.Augmentation)

	for {
		select {
		case <-s.stop:
			return
		case snapshot, ok := <-s.sub.Updates():
			if !ok {
				return
			}
			messages = snapshot
			s.emit(merge(messages, annotations))
		case update := <-s.augmentor.Updates():
			if !containsMessage(messages, update.MessageID) {
				// Completed after the message list moved on; a stale
				// result must not mutate anything.
				s.log.Debug("augmentation for unknown message discarded",
					"message_id", update.MessageID)
				continue
			}
			annotations[update.MessageID] = update.Augmentation
			s.emit(merge(messages, annotations))
		}
	}
}

// emit replaces any undelivered view so the consumer always reads the
// latest one.
func (s *Session) emit(view []domain.Message) {
	select {
	case s.views <- view:
		return
	default:
	}
	select {
	case <-s.views:
	default:
	}
	select {
	case s.views <- view:
	default:
	}
}

func merge(messages []domain.Message, annotations map[uuid.UUID]domain.Augmentation) []domain.Message {
	view := make([]domain.Message, len(messages))
	copy(view, messages)
	for i := range view {
		if augmentation, ok := annotations[view[i].ID]; ok {
			a := augmentation
			view[i].Augmentation = &a
		}
	}
	return view
}

func containsMessage(messages []domain.Message, id uuid.UUID) bool {
	for _, m := range messages {
		if m.ID == id {
			return true
		}
	}
	return false
}
