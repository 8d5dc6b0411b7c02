package server

import (
	"blimp/domain"
	"blimp/session"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// clientFrame is what the client sends over the socket.
type clientFrame struct {
	Type      string `json:"type"` // "send" | "augment"
	Text      string `json:"text,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Kind      string `json:"kind,omitempty"` // "translate" | "improve"
}

type messagePayload struct {
	ID           string               `json:"id"`
	AuthorID     string               `json:"author_id"`
	AuthorName   string               `json:"author_name"`
	AuthorAvatar string               `json:"author_avatar,omitempty"`
	Content      string               `json:"content"`
	CreatedAt    time.Time            `json:"created_at"`
	Augmentation *augmentationPayload `json:"augmentation,omitempty"`
}

type augmentationPayload struct {
	Kind  string `json:"kind"`
	State string `json:"state"`
	Value string `json:"value,omitempty"`
}

type viewFrame struct {
	Type     string           `json:"type"` // "snapshot" | "error"
	RoomID   string           `json:"room_id,omitempty"`
	Messages []messagePayload `json:"messages,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// handleRoomSocket joins the named room (idempotent) and streams the
// merged room view to the client. Each connection owns exactly one
// session; closing the socket releases the subscription and discards
// all augmentation state.
func (s *Server) handleRoomSocket(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r)
	roomName := mux.Vars(r)["name"]

	room, err := s.directory.Join(r.Context(), principal.ID, roomName)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sess, err := session.Open(r.Context(), room, principal, s.stream, s.provider, s.sessionCfg, s.log)
	if err != nil {
		_ = conn.WriteJSON(viewFrame{Type: "error", Error: "session open failed"})
		return
	}
	defer sess.Close()

	// Writer: the only goroutine touching conn writes. It pushes every
	// merged view and relays error frames handed over by the reader;
	// gorilla/websocket allows at most one concurrent writer.
	errFrames := make(chan viewFrame, 8)
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for {
			select {
			case view, ok := <-sess.Updates():
				if !ok {
					return
				}
				frame := viewFrame{
					Type:   "snapshot",
					RoomID: room.ID.String(),
					Messages: lo.Map(view, func(m domain.Message, _ int) messagePayload {
						return toMessagePayload(m)
					}),
				}
				if err := conn.WriteJSON(frame); err != nil {
					s.log.Debug("websocket write failed, dropping client",
						"user_id", principal.ID, "room_id", room.ID, "error", err)
					return
				}
			case frame := <-errFrames:
				if err := conn.WriteJSON(frame); err != nil {
					return
				}
			}
		}
	}()

	sendError := func(message string) {
		select {
		case errFrames <- viewFrame{Type: "error", Error: message}:
		case <-writeDone:
		}
	}

	// Reader: accept send/augment frames until the client disconnects.
	for {
		var frame clientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			break
		}
		switch frame.Type {
		case "send":
			if _, err := sess.Send(r.Context(), frame.Text); err != nil {
				sendError(err.Error())
			}
		case "augment":
			messageID, err := uuid.Parse(frame.MessageID)
			if err != nil {
				sendError("invalid message id")
				continue
			}
			sess.Augment(r.Context(), messageID, frame.Text, domain.Kind(frame.Kind))
		default:
			sendError("unknown frame type")
		}
	}

	sess.Close()
	<-writeDone
}

func toMessagePayload(m domain.Message) messagePayload {
	payload := messagePayload{
		ID:           m.ID.String(),
		AuthorID:     m.AuthorID,
		AuthorName:   m.AuthorName,
		AuthorAvatar: m.AuthorAvatar,
		Content:      m.Content,
		CreatedAt:    m.CreatedAt,
	}
	if m.Augmentation != nil {
		payload.Augmentation = &augmentationPayload{
			Kind:  string(m.Augmentation.Kind),
			State: string(m.Augmentation.State),
			Value: m.Augmentation.Value,
		}
	}
	return payload
}
