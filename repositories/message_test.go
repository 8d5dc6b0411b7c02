package repositories

import (
	"blimp/domain"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func Test_Append_Assigns_Identity_And_Clock(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	roomID := uuid.New()

	before := time.Now().UTC()
	message, err := repository.Append(roomID, domain.Principal{
		ID: "alice", DisplayName: "Alice", AvatarRef: "a.png",
	}, "hello")
	req.NoError(err)

	req.NotEqual(uuid.Nil, message.ID)
	req.Equal(roomID, message.RoomID)
	req.Equal("alice", message.AuthorID)
	req.Equal("Alice", message.AuthorName)
	req.Equal("a.png", message.AuthorAvatar)
	req.False(message.CreatedAt.Before(before))
	req.Nil(message.Augmentation)
}

func Test_List_Preserves_Append_Order(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	roomID := uuid.New()
	author := domain.Principal{ID: "alice", DisplayName: "Alice"}

	for i := 0; i < 5; i++ {
		_, err := repository.Append(roomID, author, fmt.Sprintf("message %d", i))
		req.NoError(err)
	}

	messages, err := repository.List(roomID)
	req.NoError(err)
	req.Len(messages, 5)

	contents := lo.Map(messages, func(m domain.Message, _ int) string { return m.Content })
	req.Equal([]string{"message 0", "message 1", "message 2", "message 3", "message 4"}, contents)
	for i := 1; i < len(messages); i++ {
		req.False(messages[i].CreatedAt.Before(messages[i-1].CreatedAt))
	}
}

func Test_List_Is_Scoped_Per_Room(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	alpha, beta := uuid.New(), uuid.New()
	author := domain.Principal{ID: "alice", DisplayName: "Alice"}

	_, err := repository.Append(alpha, author, "in alpha")
	req.NoError(err)
	_, err = repository.Append(beta, author, "in beta")
	req.NoError(err)

	messages, err := repository.List(alpha)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("in alpha", messages[0].Content)
}

func Test_DeleteRoom_Drops_Only_That_History(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	alpha, beta := uuid.New(), uuid.New()
	author := domain.Principal{ID: "alice", DisplayName: "Alice"}

	_, err := repository.Append(alpha, author, "gone")
	req.NoError(err)
	_, err = repository.Append(beta, author, "kept")
	req.NoError(err)

	req.NoError(repository.DeleteRoom(alpha))

	messages, err := repository.List(alpha)
	req.NoError(err)
	req.Empty(messages)

	messages, err = repository.List(beta)
	req.NoError(err)
	req.Len(messages, 1)
}

func Test_Message_Watch_Ignores_Other_Rooms(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	watched, other := uuid.New(), uuid.New()
	author := domain.Principal{ID: "alice", DisplayName: "Alice"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notify := repository.Watch(ctx, watched)

	_, err := repository.Append(other, author, "elsewhere")
	req.NoError(err)

	select {
	case <-notify:
		t.Fatal("watch fired for a foreign room")
	case <-time.After(200 * time.Millisecond):
	}

	_, err = repository.Append(watched, author, "here")
	req.NoError(err)

	select {
	case _, ok := <-notify:
		req.True(ok)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change notification")
	}
}
