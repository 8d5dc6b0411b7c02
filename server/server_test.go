package server

import (
	"blimp/auth"
	"blimp/directory"
	"blimp/repositories"
	"blimp/search"
	"blimp/session"
	"blimp/stream"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const testPassword = "Sup3r-Secret-Pass!"

type stubProvider struct {
	result string
}

func (p stubProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return p.result, nil
}

type fixture struct {
	server *httptest.Server
	client *http.Client
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	index, err := search.Open(t.TempDir(), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	log := slog.Default()
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	identity := auth.NewIdentity(repositories.NewUserRepository(db), tokens, log)
	messages := repositories.NewMessageRepository(db, log)
	rooms := repositories.NewRoomRepository(db, log)
	dir := directory.NewDirectory(rooms, log, messages, index)
	st := stream.NewStream(messages, index, log)

	srv := New(identity, tokens, dir, st, index, stubProvider{result: "Polished."},
		session.Config{AugmentTimeout: 2 * time.Second}, log)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return fixture{server: ts, client: ts.Client()}
}

func (f fixture) do(t *testing.T, method, path, token string, payload any) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.server.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (f fixture) registerUser(t *testing.T, email, displayName string) string {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/api/register", "", credentialsRequest{
		Email: email, Password: testPassword, DisplayName: displayName,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var token tokenResponse
	require.NoError(t, json.Unmarshal(body, &token))
	return token.Token
}

func Test_Register_And_Login(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	token := f.registerUser(t, "alice@example.com", "Alice")
	req.NotEmpty(token)

	resp, body := f.do(t, http.MethodPost, "/api/login", "", credentialsRequest{
		Email: "alice@example.com", Password: testPassword,
	})
	req.Equal(http.StatusOK, resp.StatusCode)
	var login tokenResponse
	req.NoError(json.Unmarshal(body, &login))
	req.Equal("Alice", login.DisplayName)

	resp, _ = f.do(t, http.MethodPost, "/api/login", "", credentialsRequest{
		Email: "alice@example.com", Password: "Wrong-Passw0rd!",
	})
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func Test_Register_Validation_Failure_Is_Bad_Request(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/register", "", credentialsRequest{
		Email: "not-an-email", Password: testPassword, DisplayName: "Alice",
	})
	req.Equal(http.StatusBadRequest, resp.StatusCode, string(body))

	resp, _ = f.do(t, http.MethodPost, "/api/register", "", credentialsRequest{
		Email: "alice@example.com", Password: "short", DisplayName: "Alice",
	})
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func Test_UpdateProfile_Only_Touches_The_Caller(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.registerUser(t, "alice@example.com", "Alice")
	bob := f.registerUser(t, "bob@example.com", "Bob")

	// An email in the body names someone else; it must be ignored and
	// the edit applied to the token's own account.
	resp, body := f.do(t, http.MethodPut, "/api/profile", bob, map[string]string{
		"email":        "alice@example.com",
		"display_name": "Bobby",
	})
	req.Equal(http.StatusOK, resp.StatusCode, string(body))
	var updated struct {
		DisplayName string `json:"DisplayName"`
	}
	req.NoError(json.Unmarshal(body, &updated))
	req.Equal("Bobby", updated.DisplayName)

	resp, body = f.do(t, http.MethodPost, "/api/login", "", credentialsRequest{
		Email: "alice@example.com", Password: testPassword,
	})
	req.Equal(http.StatusOK, resp.StatusCode)
	var alice tokenResponse
	req.NoError(json.Unmarshal(body, &alice))
	req.Equal("Alice", alice.DisplayName)
}

func Test_Register_Duplicate_Is_Conflict(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.registerUser(t, "alice@example.com", "Alice")
	resp, _ := f.do(t, http.MethodPost, "/api/register", "", credentialsRequest{
		Email: "alice@example.com", Password: testPassword, DisplayName: "Alice Again",
	})
	req.Equal(http.StatusConflict, resp.StatusCode)
}

func Test_Protected_Routes_Require_A_Token(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/api/rooms", "", nil)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/rooms", "not-a-token", nil)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func Test_Room_Lifecycle_Over_HTTP(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	alice := f.registerUser(t, "alice@example.com", "Alice")
	bob := f.registerUser(t, "bob@example.com", "Bob")

	resp, body := f.do(t, http.MethodPost, "/api/rooms", alice, roomRequest{Name: "Team"})
	req.Equal(http.StatusCreated, resp.StatusCode, string(body))
	var created roomResponse
	req.NoError(json.Unmarshal(body, &created))
	req.Equal("Team", created.Name)

	// A colliding create answers with a retry candidate.
	resp, body = f.do(t, http.MethodPost, "/api/rooms", bob, roomRequest{Name: "team"})
	req.Equal(http.StatusConflict, resp.StatusCode)
	var conflict map[string]string
	req.NoError(json.Unmarshal(body, &conflict))
	req.True(strings.HasPrefix(conflict["candidate"], "team"))

	resp, body = f.do(t, http.MethodPost, "/api/rooms/join", bob, roomRequest{Name: "TEAM"})
	req.Equal(http.StatusOK, resp.StatusCode)
	var joined roomResponse
	req.NoError(json.Unmarshal(body, &joined))
	req.Equal(created.ID, joined.ID)
	req.Equal(2, joined.Members)

	resp, body = f.do(t, http.MethodGet, "/api/rooms", bob, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	var listed []roomResponse
	req.NoError(json.Unmarshal(body, &listed))
	req.Len(listed, 1)

	// Only the creator may delete.
	resp, _ = f.do(t, http.MethodDelete, "/api/rooms/"+created.ID, bob, nil)
	req.Equal(http.StatusForbidden, resp.StatusCode)
	resp, _ = f.do(t, http.MethodDelete, "/api/rooms/"+created.ID, alice, nil)
	req.Equal(http.StatusNoContent, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/rooms/join", bob, roomRequest{Name: "team"})
	req.Equal(http.StatusNotFound, resp.StatusCode)
}

func Test_Search_Endpoint(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	alice := f.registerUser(t, "alice@example.com", "Alice")
	_, body := f.do(t, http.MethodPost, "/api/rooms", alice, roomRequest{Name: "search-me"})
	var room roomResponse
	req.NoError(json.Unmarshal(body, &room))

	conn := f.dialRoom(t, "search-me", alice)
	defer conn.Close()
	req.NoError(conn.WriteJSON(clientFrame{Type: "send", Text: "the quarterly report is ready"}))
	awaitSnapshot(t, conn, func(frame viewFrame) bool { return len(frame.Messages) == 1 })

	resp, body := f.do(t, http.MethodGet, "/api/rooms/"+room.ID+"/search?q=quarterly", alice, nil)
	req.Equal(http.StatusOK, resp.StatusCode, string(body))
	var hits []search.Hit
	req.NoError(json.Unmarshal(body, &hits))
	req.Len(hits, 1)
	req.Equal("Alice", hits[0].Author)
}

func Test_Websocket_Send_And_Augment(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	alice := f.registerUser(t, "alice@example.com", "Alice")
	resp, _ := f.do(t, http.MethodPost, "/api/rooms", alice, roomRequest{Name: "live"})
	req.Equal(http.StatusCreated, resp.StatusCode)

	conn := f.dialRoom(t, "live", alice)
	defer conn.Close()

	req.NoError(conn.WriteJSON(clientFrame{Type: "send", Text: "raw draft"}))
	frame := awaitSnapshot(t, conn, func(frame viewFrame) bool { return len(frame.Messages) == 1 })
	req.Equal("raw draft", frame.Messages[0].Content)
	req.Nil(frame.Messages[0].Augmentation)

	req.NoError(conn.WriteJSON(clientFrame{
		Type:      "augment",
		MessageID: frame.Messages[0].ID,
		Text:      frame.Messages[0].Content,
		Kind:      "improve",
	}))
	frame = awaitSnapshot(t, conn, func(frame viewFrame) bool {
		return len(frame.Messages) == 1 &&
			frame.Messages[0].Augmentation != nil &&
			frame.Messages[0].Augmentation.State == "done"
	})
	req.Equal("Polished.", frame.Messages[0].Augmentation.Value)
	req.Equal("improve", frame.Messages[0].Augmentation.Kind)
}

func Test_Websocket_Error_Frames_Share_The_Writer(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	alice := f.registerUser(t, "alice@example.com", "Alice")
	resp, _ := f.do(t, http.MethodPost, "/api/rooms", alice, roomRequest{Name: "noisy"})
	req.Equal(http.StatusCreated, resp.StatusCode)

	conn := f.dialRoom(t, "noisy", alice)
	defer conn.Close()

	// Interleave valid sends (snapshot pushes) with blank sends (error
	// frames) so both delivery paths run at once on one socket.
	const valid = 25
	for i := 0; i < valid; i++ {
		req.NoError(conn.WriteJSON(clientFrame{Type: "send", Text: fmt.Sprintf("note %d", i)}))
		req.NoError(conn.WriteJSON(clientFrame{Type: "send", Text: "   "}))
	}

	req.NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
	errorsSeen, all := 0, false
	for errorsSeen < valid || !all {
		var frame viewFrame
		req.NoError(conn.ReadJSON(&frame))
		switch frame.Type {
		case "error":
			req.Contains(frame.Error, "empty")
			errorsSeen++
		case "snapshot":
			if len(frame.Messages) == valid {
				all = true
			}
		default:
			t.Fatalf("unexpected frame type %q", frame.Type)
		}
	}
}

// dialRoom opens the room socket, joining the room on the way in.
func (f fixture) dialRoom(t *testing.T, roomName, token string) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("%s/ws/rooms/%s?token=%s",
		strings.Replace(f.server.URL, "http://", "ws://", 1), roomName, token)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func awaitSnapshot(t *testing.T, conn *websocket.Conn, ok func(viewFrame) bool) viewFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var frame viewFrame
		require.NoError(t, conn.ReadJSON(&frame))
		require.NotEqual(t, "error", frame.Type, frame.Error)
		if ok(frame) {
			return frame
		}
	}
}
