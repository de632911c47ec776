package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/uplift-app/go-support-backend/internal/breaker"
)

func testRegistry() *breaker.Registry {
	return breaker.NewRegistry(breaker.Options{
		Timeout:       time.Second,
		FailureRatio:  0.5,
		MinimumCalls:  3,
		ResetInterval: time.Hour,
	})
}

// fakeProfiles / fakePosts implement the fetcher interfaces with
// programmable outcomes.
type fakeProfiles struct {
	profile *Profile
	err     error
	calls   int
}

func (f *fakeProfiles) Get(ctx context.Context, userID string) (*Profile, error) {
	f.calls++
	return f.profile, f.err
}

type fakePosts struct {
	posts []Post
	err   error
	calls int
}

func (f *fakePosts) Recent(ctx context.Context, userID string, limit int) ([]Post, error) {
	f.calls++
	return f.posts, f.err
}

func TestFetchMergesHealthySources(t *testing.T) {
	profiles := &fakeProfiles{profile: &Profile{ID: "u1", DisplayName: "User One"}}
	posts := &fakePosts{posts: []Post{{ID: "p1", AuthorID: "u1", Content: "hello"}}}
	svc := NewDashboard(profiles, posts, testRegistry(), time.Minute)

	resp := svc.Fetch(context.Background(), "u1")
	if resp.Cached {
		t.Error("Cached = true for healthy fetch")
	}
	if len(resp.Errors) != 0 {
		t.Errorf("Errors = %v, want empty", resp.Errors)
	}
	if resp.Profile == nil || resp.Profile.ID != "u1" {
		t.Errorf("Profile = %+v", resp.Profile)
	}
	if len(resp.Posts) != 1 || resp.Posts[0].ID != "p1" {
		t.Errorf("Posts = %+v", resp.Posts)
	}
}

func TestFetchDegradesPerSource(t *testing.T) {
	profiles := &fakeProfiles{profile: &Profile{ID: "u1", DisplayName: "User One"}}
	posts := &fakePosts{err: errors.New("community down")}
	svc := NewDashboard(profiles, posts, testRegistry(), time.Minute)

	resp := svc.Fetch(context.Background(), "u1")
	if !resp.Cached {
		t.Error("Cached = false despite degraded posts")
	}
	if resp.Profile == nil {
		t.Error("healthy profile lost on partial degradation")
	}
	if resp.Posts == nil || len(resp.Posts) != 0 {
		t.Errorf("Posts = %v, want empty non-nil", resp.Posts)
	}
	if len(resp.Errors) != 1 || resp.Errors[0] != "community service temporarily unavailable" {
		t.Errorf("Errors = %v", resp.Errors)
	}
}

func TestFetchServesCacheWhileOpen(t *testing.T) {
	profiles := &fakeProfiles{profile: &Profile{ID: "u1", DisplayName: "User One"}}
	posts := &fakePosts{posts: []Post{{ID: "p1", AuthorID: "u1"}}}
	reg := testRegistry()
	svc := NewDashboard(profiles, posts, reg, time.Minute)

	// Prime the cache with a healthy round trip, then trip both circuits.
	_ = svc.Fetch(context.Background(), "u1")
	reg.Get(TargetProfileService).ForceOpen()
	reg.Get(TargetCommunityService).ForceOpen()

	resp := svc.Fetch(context.Background(), "u1")
	if !resp.Cached {
		t.Fatal("Cached = false while circuits open")
	}
	if resp.Profile == nil || resp.Profile.ID != "u1" {
		t.Errorf("cached profile not served: %+v", resp.Profile)
	}
	if len(resp.Posts) != 1 {
		t.Errorf("cached posts not served: %+v", resp.Posts)
	}
	if len(resp.Errors) != 2 {
		t.Errorf("Errors = %v, want both sub-calls flagged", resp.Errors)
	}

	// Downstreams must not have been touched while open.
	if profiles.calls != 1 || posts.calls != 1 {
		t.Errorf("calls = (%d, %d), want (1, 1)", profiles.calls, posts.calls)
	}
}

func TestFetchEmptyFallbackWithoutCache(t *testing.T) {
	reg := testRegistry()
	reg.Get(TargetProfileService).ForceOpen()
	reg.Get(TargetCommunityService).ForceOpen()
	svc := NewDashboard(&fakeProfiles{}, &fakePosts{}, reg, time.Minute)

	resp := svc.Fetch(context.Background(), "u2")
	if resp.Profile != nil {
		t.Errorf("Profile = %+v, want nil", resp.Profile)
	}
	if resp.Posts == nil || len(resp.Posts) != 0 {
		t.Errorf("Posts = %v, want empty non-nil", resp.Posts)
	}
	if !resp.Cached {
		t.Error("Cached = false for fully degraded response")
	}
}

func TestHTTPClientsAgainstFakeDownstreams(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/u1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Profile{ID: "u1", DisplayName: "User One"})
	})
	mux.HandleFunc("GET /users/u1/posts", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "20" {
			t.Errorf("limit = %q, want 20", got)
		}
		_ = json.NewEncoder(w).Encode([]Post{{ID: "p1", AuthorID: "u1", Content: "hi"}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, err := NewProfileClient(srv.URL).Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("profile get: %v", err)
	}
	if p.DisplayName != "User One" {
		t.Errorf("DisplayName = %q", p.DisplayName)
	}

	posts, err := NewPostsClient(srv.URL).Recent(context.Background(), "u1", DefaultPostsLimit)
	if err != nil {
		t.Fatalf("posts get: %v", err)
	}
	if len(posts) != 1 || posts[0].Content != "hi" {
		t.Errorf("posts = %+v", posts)
	}
}

func TestHTTPClientNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewProfileClient(srv.URL).Get(context.Background(), "u1"); err == nil {
		t.Fatal("expected error for 503 response")
	}
}

func TestResultCacheExpiry(t *testing.T) {
	c := newResultCache(20 * time.Millisecond)
	c.put("k", "v")

	if v, ok := c.get("k"); !ok || v != "v" {
		t.Fatalf("get = (%v, %v), want (v, true)", v, ok)
	}
	time.Sleep(30 * time.Millisecond)
	if _, ok := c.get("k"); ok {
		t.Fatal("entry survived past TTL")
	}
}
