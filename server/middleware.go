package server

import (
	"blimp/auth"
	"blimp/domain"
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	claimsKey    contextKey = "claims"
)

// authenticate resolves the bearer token (or, for websocket upgrades
// started from browsers, the token query parameter) into the current
// principal.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}

		claims, err := s.tokens.Validate(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		principal, err := s.identity.Resolve(claims)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unknown principal")
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		ctx = context.WithValue(ctx, claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func principalFrom(r *http.Request) domain.Principal {
	principal, _ := r.Context().Value(principalKey).(domain.Principal)
	return principal
}

func claimsFrom(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsKey).(*auth.Claims)
	return claims
}
