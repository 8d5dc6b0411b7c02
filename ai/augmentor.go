package ai

import (
	"blimp/domain"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Update announces a state transition of one message's augmentation.
type Update struct {
	MessageID    uuid.UUID
	Augmentation domain.Augmentation
}

// Augmentor runs the per-message augmentation state machine:
// absent -> pending -> done | failed.
//
// A message carries at most one augmentation slot. Any existing slot,
// in-flight or terminal and of any kind, suppresses further Augment
// calls for that message, so at most one provider call ever runs per
// message and failures are never retried automatically.
//
// State is held in memory only; it lives and dies with the session
// that owns the Augmentor.
type Augmentor struct {
	mu       sync.Mutex
	slots    map[uuid.UUID]domain.Augmentation
	provider Provider
	timeout  time.Duration
	log      *slog.Logger
	updates  chan Update
}

func NewAugmentor(provider Provider, timeout time.Duration, bufferSize int, log *slog.Logger) *Augmentor {
	return &Augmentor{
		slots:    make(map[uuid.UUID]domain.Augmentation),
		provider: provider,
		timeout:  timeout,
		log:      log,
		updates:  make(chan Update, bufferSize),
	}
}

// Updates delivers state transitions. Sends never block: when the
// consumer is gone or slow the update is dropped, which is exactly
// what a completed-late result for an abandoned session deserves.
func (a *Augmentor) Updates() <-chan Update {
	return a.updates
}

// Augment requests derived text for one message.
//
// Returns the message's slot and whether this call started a new
// provider request. A second call while the first is pending, or after
// it reached a terminal state, is a no-op returning the current slot.
// Provider failures are recorded as the kind's failure sentinel, never
// returned here.
func (a *Augmentor) Augment(ctx context.Context, messageID uuid.UUID, text string, kind domain.Kind) (domain.Augmentation, bool) {
	if !kind.Valid() {
		return domain.Augmentation{}, false
	}

	a.mu.Lock()
	if slot, ok := a.slots[messageID]; ok {
		a.mu.Unlock()
		return slot, false
	}
	slot := domain.Augmentation{Kind: kind, State: domain.StatePending}
	a.slots[messageID] = slot
	a.mu.Unlock()

	a.emit(Update{MessageID: messageID, Augmentation: slot})
	go a.run(ctx, messageID, text, kind)
	return slot, true
}

// Snapshot returns the current slot for a message, if any.
func (a *Augmentor) Snapshot(messageID uuid.UUID) (domain.Augmentation, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	slot, ok := a.slots[messageID]
	return slot, ok
}

// run performs the provider call and applies the terminal transition.
// The call is detached from the caller's cancellation: once started it
// finishes on its own timeout, and a result arriving after the session
// released its state is simply dropped by emit.
func (a *Augmentor) run(ctx context.Context, messageID uuid.UUID, text string, kind domain.Kind) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	result, err := a.provider.Generate(callCtx, Prompt(kind, text))

	slot := domain.Augmentation{Kind: kind, State: domain.StateDone, Value: result}
	if err != nil {
		a.log.Warn("augmentation failed", "message_id", messageID, "kind", kind, "error", err)
		slot = domain.Augmentation{Kind: kind, State: domain.StateFailed, Value: kind.FailureText()}
	}

	a.mu.Lock()
	a.slots[messageID] = slot
	a.mu.Unlock()

	a.emit(Update{MessageID: messageID, Augmentation: slot})
}

func (a *Augmentor) emit(update Update) {
	select {
	case a.updates <- update:
	default:
		a.log.Debug("augmentation update dropped", "message_id", update.MessageID)
	}
}
