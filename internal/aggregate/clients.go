// Package aggregate composes calls to independent downstream services behind
// per-target circuit breakers and merges partial results with an explicit
// degradation flag. A short-lived result cache lets fallbacks serve
// slightly-stale data instead of empty results during transient outages.
package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Profile is the downstream profile-service representation of a user.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Post is a single feed entry from the community service.
type Post struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ProfileClient fetches user profiles from the profile service.
type ProfileClient struct {
	BaseURL string
	HTTP    *http.Client
}

// PostsClient fetches recent posts from the community service.
type PostsClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewProfileClient constructs a ProfileClient. Per-call deadlines come from
// the caller's context (the breaker enforces them), so the transport-level
// timeout is only a backstop.
func NewProfileClient(baseURL string) *ProfileClient {
	return &ProfileClient{BaseURL: baseURL, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

// NewPostsClient constructs a PostsClient.
func NewPostsClient(baseURL string) *PostsClient {
	return &PostsClient{BaseURL: baseURL, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

// Get returns the profile for userID.
func (c *ProfileClient) Get(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	if err := getJSON(ctx, c.HTTP, c.BaseURL+"/users/"+url.PathEscape(userID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Recent returns the most recent posts authored by userID.
func (c *PostsClient) Recent(ctx context.Context, userID string, limit int) ([]Post, error) {
	u := fmt.Sprintf("%s/users/%s/posts?limit=%d", c.BaseURL, url.PathEscape(userID), limit)
	var out []Post
	if err := getJSON(ctx, c.HTTP, u, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// getJSON issues a context-bound GET and decodes a JSON body into dst.
// Non-2xx statuses are errors so the breaker counts them as failures.
func getJSON(ctx context.Context, hc *http.Client, rawURL string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("downstream status %d from %s", resp.StatusCode, rawURL)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
