package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwksServer serves a JWKS document for the given keys and counts fetches.
func jwksServer(t *testing.T, fetches *atomic.Int64, keys map[string]*rsa.PublicKey) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		doc := jwksDocument{}
		for kid, pub := range keys {
			doc.Keys = append(doc.Keys, jwksKey{
				Kty: "RSA",
				Kid: kid,
				Use: "sig",
				N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
}

func genKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestKeySetCachesWithinTTL(t *testing.T) {
	key := genKey(t)
	var fetches atomic.Int64
	srv := jwksServer(t, &fetches, map[string]*rsa.PublicKey{"k1": &key.PublicKey})
	defer srv.Close()

	ks := NewKeySet(srv.URL, time.Hour)
	for i := 0; i < 5; i++ {
		if _, err := ks.Key(context.Background(), "k1"); err != nil {
			t.Fatalf("Key: %v", err)
		}
	}
	if n := fetches.Load(); n != 1 {
		t.Fatalf("fetches = %d, want 1", n)
	}
}

func TestKeySetRotationRefresh(t *testing.T) {
	key := genKey(t)
	var fetches atomic.Int64
	srv := jwksServer(t, &fetches, map[string]*rsa.PublicKey{"k1": &key.PublicKey})
	defer srv.Close()

	ks := NewKeySet(srv.URL, time.Hour)
	if _, err := ks.Key(context.Background(), "k1"); err != nil {
		t.Fatalf("Key: %v", err)
	}

	// Unknown kid while the cache is fresh: exactly one extra refresh, then
	// ErrKeyNotFound.
	if _, err := ks.Key(context.Background(), "k2"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("err = %v, want ErrKeyNotFound", err)
	}
	if n := fetches.Load(); n != 2 {
		t.Fatalf("fetches = %d, want 2", n)
	}
}

func TestKeySetExpiredTTLRefetches(t *testing.T) {
	key := genKey(t)
	var fetches atomic.Int64
	srv := jwksServer(t, &fetches, map[string]*rsa.PublicKey{"k1": &key.PublicKey})
	defer srv.Close()

	ks := NewKeySet(srv.URL, time.Nanosecond)
	if _, err := ks.Key(context.Background(), "k1"); err != nil {
		t.Fatalf("Key: %v", err)
	}
	if _, err := ks.Key(context.Background(), "k1"); err != nil {
		t.Fatalf("Key: %v", err)
	}
	if n := fetches.Load(); n != 2 {
		t.Fatalf("fetches = %d, want 2", n)
	}
}

func TestKeySetFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ks := NewKeySet(srv.URL, time.Hour)
	if _, err := ks.Key(context.Background(), "k1"); err == nil {
		t.Fatal("expected error from failing endpoint")
	}
}

func TestValidateRS256ViaJWKS(t *testing.T) {
	key := genKey(t)
	var fetches atomic.Int64
	srv := jwksServer(t, &fetches, map[string]*rsa.PublicKey{"k1": &key.PublicKey})
	defer srv.Close()

	v := &Validator{
		ClockSkew: time.Minute,
		Keys:      NewKeySet(srv.URL, time.Hour),
	}

	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "user-9",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	})
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	id, err := v.Validate(context.Background(), signed)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if id.SubjectID != "user-9" {
		t.Errorf("SubjectID = %q, want user-9", id.SubjectID)
	}

	// Same token signed by an unknown key must be rejected uniformly.
	other := genKey(t)
	tok2 := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "user-9",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	})
	tok2.Header["kid"] = "k1"
	signed2, err := tok2.SignedString(other)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := v.Validate(context.Background(), signed2); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}
