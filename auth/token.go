package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload carried inside a session token.
type Claims struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates session tokens. The secret is
// injected, never hardcoded; in production it comes from the
// environment or a secret manager.
type TokenIssuer struct {
	secret   []byte
	duration time.Duration
}

func NewTokenIssuer(secret string, duration time.Duration) TokenIssuer {
	return TokenIssuer{secret: []byte(secret), duration: duration}
}

// Generate creates a signed HS256 token for one account.
func (t TokenIssuer) Generate(userID, email, displayName string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:      userID,
		Email:       email,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "blimp",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Validate parses a token string and returns its claims when the
// signature and expiry check out.
func (t TokenIssuer) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}
