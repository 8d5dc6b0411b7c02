package stream

import (
	"blimp/domain"
	"blimp/errors"
	"blimp/repositories"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

type recordingIndexer struct {
	indexed []domain.Message
}

func (r *recordingIndexer) Index(message domain.Message) error {
	r.indexed = append(r.indexed, message)
	return nil
}

func newTestStream(t *testing.T, indexer Indexer) *Stream {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStream(repositories.NewMessageRepository(db, slog.Default()), indexer, slog.Default())
}

func Test_Send_Rejects_Blank_Text(t *testing.T) {
	req := require.New(t)
	s := newTestStream(t, nil)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := s.Send(context.Background(), uuid.New(), domain.Principal{ID: "alice"}, text)
		req.ErrorIs(err, errors.ErrEmptyMessage)
	}
}

func Test_Send_Feeds_The_Indexer(t *testing.T) {
	req := require.New(t)
	indexer := &recordingIndexer{}
	s := newTestStream(t, indexer)

	message, err := s.Send(context.Background(), uuid.New(), domain.Principal{ID: "alice", DisplayName: "Alice"}, "findable")
	req.NoError(err)
	req.Len(indexer.indexed, 1)
	req.Equal(message.ID, indexer.indexed[0].ID)
}

func Test_Subscribe_Delivers_History_Then_Updates(t *testing.T) {
	req := require.New(t)
	s := newTestStream(t, nil)
	ctx := context.Background()
	roomID := uuid.New()
	alice := domain.Principal{ID: "alice", DisplayName: "Alice"}
	bob := domain.Principal{ID: "bob", DisplayName: "Bob"}

	_, err := s.Send(ctx, roomID, alice, "one")
	req.NoError(err)
	_, err = s.Send(ctx, roomID, bob, "two")
	req.NoError(err)

	sub, err := s.Subscribe(ctx, roomID)
	req.NoError(err)
	defer sub.Close()
	req.Equal(roomID, sub.RoomID())

	snapshot := awaitMessages(t, sub, func(messages []domain.Message) bool {
		return len(messages) == 2
	})
	req.Equal([]string{"one", "two"}, contents(snapshot))

	_, err = s.Send(ctx, roomID, alice, "three")
	req.NoError(err)

	snapshot = awaitMessages(t, sub, func(messages []domain.Message) bool {
		return len(messages) == 3
	})
	req.Equal([]string{"one", "two", "three"}, contents(snapshot))
	for i := 1; i < len(snapshot); i++ {
		req.False(snapshot[i].CreatedAt.Before(snapshot[i-1].CreatedAt))
	}
}

func Test_Resubscribe_Redelivers_Full_History(t *testing.T) {
	req := require.New(t)
	s := newTestStream(t, nil)
	ctx := context.Background()
	roomID := uuid.New()
	alice := domain.Principal{ID: "alice", DisplayName: "Alice"}

	_, err := s.Send(ctx, roomID, alice, "kept")
	req.NoError(err)

	first, err := s.Subscribe(ctx, roomID)
	req.NoError(err)
	awaitMessages(t, first, func(messages []domain.Message) bool { return len(messages) == 1 })
	first.Close()

	second, err := s.Subscribe(ctx, roomID)
	req.NoError(err)
	defer second.Close()
	snapshot := awaitMessages(t, second, func(messages []domain.Message) bool { return len(messages) == 1 })
	req.Equal([]string{"kept"}, contents(snapshot))
}

func Test_Close_Stops_Delivery(t *testing.T) {
	req := require.New(t)
	s := newTestStream(t, nil)
	ctx := context.Background()
	roomID := uuid.New()

	sub, err := s.Subscribe(ctx, roomID)
	req.NoError(err)
	sub.Close()

	_, err = s.Send(ctx, roomID, domain.Principal{ID: "alice"}, "after close")
	req.NoError(err)

	require.Eventually(t, func() bool {
		_, ok := <-sub.Updates()
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func contents(messages []domain.Message) []string {
	return lo.Map(messages, func(m domain.Message, _ int) string { return m.Content })
}

func awaitMessages(t *testing.T, sub *Subscription, ok func([]domain.Message) bool) []domain.Message {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case messages, open := <-sub.Updates():
			if !open {
				t.Fatal("subscription closed before the expected snapshot")
			}
			if ok(messages) {
				return messages
			}
		case <-deadline:
			t.Fatal("timed out waiting for a message snapshot")
		}
	}
}
