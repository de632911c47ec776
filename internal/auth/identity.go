// Package auth implements bearer-token validation for the HTTP surface and
// the real-time gateway. Verification prefers RS256 against a cached remote
// key set (JWKS) and falls back to an HS256 shared secret for tokens without
// a key id, a non-production convenience.
//
// Every authentication failure is collapsed into ErrInvalidToken so callers
// cannot distinguish which check failed; the specific cause is only logged.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is the uniform rejection returned for any token that fails
// validation, regardless of cause.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the normalized result of a successful token validation. It is
// produced fresh per request and never persisted.
type Identity struct {
	SubjectID   string    `json:"subject_id"`
	Email       string    `json:"email,omitempty"`
	Role        string    `json:"role,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Claims is the JWT claim set this service understands. Profile fields are
// optional; the registered claims carry the identity invariants.
type Claims struct {
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
	DisplayName string `json:"name,omitempty"`
	AvatarURL   string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}
