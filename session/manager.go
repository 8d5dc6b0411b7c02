package session

import (
	"blimp/ai"
	"blimp/directory"
	"blimp/domain"
	"blimp/stream"
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Manager holds at most one live session per principal surface.
// Switching rooms closes the previous session first, so there is never
// more than one live subscription, and ending a session discards all
// of its augmentation state.
type Manager struct {
	mu        sync.Mutex
	directory *directory.Directory
	stream    *stream.Stream
	provider  ai.Provider
	config    Config
	log       *slog.Logger
	current   *Session
}

func NewManager(dir *directory.Directory, st *stream.Stream, provider ai.Provider,
	config Config, log *slog.Logger) *Manager {
	return &Manager{
		directory: dir,
		stream:    st,
		provider:  provider,
		config:    config,
		log:       log,
	}
}

// OpenRoom joins the named room and switches the live session to it.
func (m *Manager) OpenRoom(ctx context.Context, principal domain.Principal, roomName string) (*Session, error) {
	room, err := m.directory.Join(ctx, principal.ID, roomName)
	if err != nil {
		return nil, err
	}
	return m.Switch(ctx, principal, room)
}

// CreateRoom creates the room and switches the live session to it.
// Name collisions propagate as NameTakenError for the caller to
// confirm or abandon.
func (m *Manager) CreateRoom(ctx context.Context, principal domain.Principal, name string) (*Session, error) {
	room, err := m.directory.Create(ctx, principal.ID, name)
	if err != nil {
		return nil, err
	}
	return m.Switch(ctx, principal, room)
}

// Switch closes the current session, if any, then opens one for the
// given room.
func (m *Manager) Switch(ctx context.Context, principal domain.Principal, room domain.Room) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.Close()
		m.current = nil
	}

	s, err := Open(ctx, room, principal, m.stream, m.provider, m.config, m.log)
	if err != nil {
		return nil, err
	}
	m.current = s
	return s, nil
}

// Current returns the live session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// CurrentRoom returns the live session's room id, if any.
func (m *Manager) CurrentRoom() (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return uuid.UUID{}, false
	}
	return m.current.room.ID, true
}

// Close ends the live session, clearing all of its state.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Close()
		m.current = nil
	}
}
