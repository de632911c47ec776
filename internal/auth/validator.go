package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/uplift-app/go-support-backend/internal/config"
)

// Validator verifies bearer tokens and produces normalized identities.
// A token with a "kid" header is verified RS256 against the remote key set;
// without one it falls through to the HS256 shared secret when configured.
type Validator struct {
	Issuer    string
	Audience  string
	Secret    []byte
	ClockSkew time.Duration
	Keys      *KeySet // nil disables the RS256 path
}

// NewValidator builds a Validator from configuration. The key set is only
// constructed when a JWKS URL is present.
func NewValidator(cfg config.AuthConfig) *Validator {
	v := &Validator{
		Issuer:    cfg.Issuer,
		Audience:  cfg.Audience,
		ClockSkew: cfg.ClockSkew,
	}
	if cfg.Secret != "" {
		v.Secret = []byte(cfg.Secret)
	}
	if cfg.JWKSURL != "" {
		v.Keys = NewKeySet(cfg.JWKSURL, cfg.JWKSTTL)
	}
	return v
}

// Validate verifies the token's signature and claims and returns the derived
// Identity. Any failure returns ErrInvalidToken; the underlying cause is
// logged at debug level only, never surfaced to the caller.
func (v *Validator) Validate(ctx context.Context, tokenStr string) (*Identity, error) {
	if strings.TrimSpace(tokenStr) == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "HS256"}),
		jwt.WithLeeway(v.ClockSkew),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, v.keyFor(ctx), opts...)
	if err != nil || !token.Valid {
		log.Debug().Err(err).Msg("auth: token rejected")
		return nil, ErrInvalidToken
	}

	// jwt/v5 validates exp and bounds iat; the subject claim is on us.
	if strings.TrimSpace(claims.Subject) == "" {
		log.Debug().Msg("auth: token rejected: missing subject")
		return nil, ErrInvalidToken
	}

	id := &Identity{
		SubjectID:   claims.Subject,
		Email:       claims.Email,
		Role:        claims.Role,
		DisplayName: claims.DisplayName,
		AvatarURL:   claims.AvatarURL,
	}
	if claims.IssuedAt != nil {
		id.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// keyFor resolves the verification key for a parsed (unverified) header:
// kid present → remote key set; kid absent → shared secret fallback.
func (v *Validator) keyFor(ctx context.Context) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid != "" {
			if v.Keys == nil {
				return nil, ErrKeyNotFound
			}
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, errors.New("kid present but method is not RSA")
			}
			return v.Keys.Key(ctx, kid)
		}
		if len(v.Secret) == 0 {
			return nil, errors.New("no shared secret configured")
		}
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("secret fallback requires HMAC")
		}
		return v.Secret, nil
	}
}
