// Package server exposes the engine over HTTP and websocket.
// Room entry and administration are plain JSON endpoints; the live
// room view is a websocket pushing merged session snapshots.
package server

import (
	"blimp/ai"
	"blimp/auth"
	"blimp/directory"
	"blimp/search"
	"blimp/session"
	"blimp/stream"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

type Server struct {
	identity   *auth.Identity
	tokens     auth.TokenIssuer
	directory  *directory.Directory
	stream     *stream.Stream
	index      *search.Index
	provider   ai.Provider
	sessionCfg session.Config
	log        *slog.Logger
}

func New(identity *auth.Identity, tokens auth.TokenIssuer, dir *directory.Directory,
	st *stream.Stream, index *search.Index, provider ai.Provider,
	sessionCfg session.Config, log *slog.Logger) *Server {
	return &Server{
		identity:   identity,
		tokens:     tokens,
		directory:  dir,
		stream:     st,
		index:      index,
		provider:   provider,
		sessionCfg: sessionCfg,
		log:        log,
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/api/login", s.handleLogin).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authenticate)
	api.HandleFunc("/profile", s.handleUpdateProfile).Methods(http.MethodPut)
	api.HandleFunc("/rooms", s.handleListRooms).Methods(http.MethodGet)
	api.HandleFunc("/rooms", s.handleCreateRoom).Methods(http.MethodPost)
	api.HandleFunc("/rooms/join", s.handleJoinRoom).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{id}", s.handleDeleteRoom).Methods(http.MethodDelete)
	api.HandleFunc("/rooms/{id}/search", s.handleSearchRoom).Methods(http.MethodGet)

	ws := r.PathPrefix("/ws").Subrouter()
	ws.Use(s.authenticate)
	ws.HandleFunc("/rooms/{name}", s.handleRoomSocket)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
