package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrKeyNotFound indicates the key id is absent from the key set even after
// a refresh.
var ErrKeyNotFound = errors.New("signing key not found")

// jwksDocument mirrors the subset of RFC 7517 this service consumes.
type jwksDocument struct {
	Keys []jwksKey `json:"keys"`
}

type jwksKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// KeySet is a TTL cache of verification keys fetched from a remote JWKS
// endpoint. Lookups are read-mostly; a miss or an expired cache triggers
// exactly one refresh at a time (concurrent lookups wait on the same fetch),
// and overlapping refresh results are last-writer-wins since the remote
// provider, not local state, is the source of truth.
type KeySet struct {
	URL    string
	TTL    time.Duration
	Client *http.Client

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewKeySet constructs a KeySet for the given JWKS endpoint.
func NewKeySet(url string, ttl time.Duration) *KeySet {
	return &KeySet{
		URL:    url,
		TTL:    ttl,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Key returns the verification key for kid, refreshing the cache once on a
// miss or when the TTL has elapsed. A miss that survives a refresh returns
// ErrKeyNotFound.
func (ks *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	fresh := time.Since(ks.fetchedAt) < ks.TTL
	if fresh {
		if k, ok := ks.keys[kid]; ok {
			return k, nil
		}
	}

	// Serialized under mu: the first waiter performs the fetch, later
	// waiters re-check the now-fresh cache and skip their own.
	if !fresh || ks.keys == nil {
		if err := ks.refreshLocked(ctx); err != nil {
			return nil, err
		}
		if k, ok := ks.keys[kid]; ok {
			return k, nil
		}
		return nil, ErrKeyNotFound
	}

	// Cache is fresh but the kid is unknown: refresh once before failing,
	// covering provider-side key rotation.
	if err := ks.refreshLocked(ctx); err != nil {
		return nil, err
	}
	if k, ok := ks.keys[kid]; ok {
		return k, nil
	}
	return nil, ErrKeyNotFound
}

// refreshLocked fetches and replaces the cached key set. Callers hold mu.
func (ks *KeySet) refreshLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.URL, nil)
	if err != nil {
		return err
	}
	resp, err := ks.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks fetch: unexpected status %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return err
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := parseRSAKey(k)
		if err != nil {
			log.Warn().Err(err).Str("kid", k.Kid).Msg("jwks: skipping unparsable key")
			continue
		}
		keys[k.Kid] = pub
	}

	ks.keys = keys
	ks.fetchedAt = time.Now()
	log.Debug().Int("keys", len(keys)).Msg("jwks: key set refreshed")
	return nil
}

// parseRSAKey builds an *rsa.PublicKey from the base64url modulus and
// exponent of a JWK.
func parseRSAKey(k jwksKey) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("jwk modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("jwk exponent: %w", err)
	}
	e := 0
	for _, b := range eb {
		e = e<<8 | int(b)
	}
	if e <= 1 {
		return nil, errors.New("jwk exponent out of range")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}
