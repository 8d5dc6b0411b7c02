package server

import (
	"blimp/domain"
	apperrors "blimp/errors"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/samber/lo"
)

type credentialsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

type tokenResponse struct {
	Token       string `json:"token"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	principal, token, err := s.identity.Register(req.Email, req.Password, req.DisplayName)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{
		Token:       token,
		UserID:      principal.ID,
		DisplayName: principal.DisplayName,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	principal, token, err := s.identity.SignIn(req.Email, req.Password)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:       token,
		UserID:      principal.ID,
		DisplayName: principal.DisplayName,
	})
}

type profileRequest struct {
	DisplayName string `json:"display_name,omitempty"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
}

// handleUpdateProfile edits the authenticated principal's own profile.
// The target account comes from the token claims, never from the body.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	principal, err := s.identity.UpdateProfile(claimsFrom(r).Email, req.DisplayName, req.AvatarRef)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, principal)
}

type roomResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatorID string `json:"creator_id"`
	Members   int    `json:"members"`
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r)
	rooms, err := s.directory.Snapshot(r.Context(), principal.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(rooms, func(room domain.Room, _ int) roomResponse {
		return roomResponse{
			ID:        room.ID.String(),
			Name:      room.Name,
			CreatorID: room.CreatorID,
			Members:   len(room.Members),
		}
	}))
}

type roomRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	principal := principalFrom(r)
	room, err := s.directory.Create(r.Context(), principal.ID, req.Name)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, roomResponse{
		ID:        room.ID.String(),
		Name:      room.Name,
		CreatorID: room.CreatorID,
		Members:   len(room.Members),
	})
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	principal := principalFrom(r)
	room, err := s.directory.Join(r.Context(), principal.ID, req.Name)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roomResponse{
		ID:        room.ID.String(),
		Name:      room.Name,
		CreatorID: room.CreatorID,
		Members:   len(room.Members),
	})
}

func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}

	principal := principalFrom(r)
	if err := s.directory.Delete(r.Context(), principal.ID, roomID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearchRoom(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}

	terms := r.URL.Query().Get("q")
	if terms == "" {
		writeError(w, http.StatusBadRequest, "missing query")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	hits, err := s.index.Search(r.Context(), roomID, terms, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps engine errors onto HTTP statuses. A name
// collision returns 409 with the candidate so the client can offer
// the confirm-and-retry flow.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var nameTaken *apperrors.NameTakenError
	if errors.As(err, &nameTaken) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":     nameTaken.Error(),
			"candidate": nameTaken.Candidate,
		})
		return
	}

	var validation validator.ValidationErrors
	if errors.As(err, &validation) {
		writeError(w, http.StatusBadRequest, validation.Error())
		return
	}

	switch {
	case errors.Is(err, apperrors.ErrInvalidName),
		errors.Is(err, apperrors.ErrEmptyMessage),
		errors.Is(err, apperrors.ErrInvalidPassword):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperrors.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, apperrors.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, apperrors.ErrUserAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
