package aggregate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/uplift-app/go-support-backend/internal/breaker"
)

// Breaker target names for the dashboard's sub-calls. They key both the
// registry and the /circuits/status payload.
const (
	TargetProfileService   = "profile-service"
	TargetCommunityService = "community-service"
)

// DefaultPostsLimit caps the recent-posts sub-call.
const DefaultPostsLimit = 20

// ProfileFetcher is the downstream contract for the profile sub-call.
type ProfileFetcher interface {
	Get(ctx context.Context, userID string) (*Profile, error)
}

// PostsFetcher is the downstream contract for the recent-posts sub-call.
type PostsFetcher interface {
	Recent(ctx context.Context, userID string, limit int) ([]Post, error)
}

// DashboardResponse merges whichever sub-call results succeeded. Cached is
// true whenever any part was served from a fallback; Errors names the
// degraded sub-calls so clients can annotate partial data.
type DashboardResponse struct {
	Profile *Profile `json:"profile"`
	Posts   []Post   `json:"posts"`
	Cached  bool     `json:"cached"`
	Errors  []string `json:"errors"`
}

// DashboardService composes the profile and community services behind
// individual circuit breakers. Sub-calls run concurrently so one slow
// dependency cannot inflate total latency beyond its own timeout.
type DashboardService struct {
	Profiles ProfileFetcher
	Posts    PostsFetcher
	Breakers *breaker.Registry

	cache *resultCache
}

// NewDashboard wires the downstream clients, the breaker registry, and a
// fallback cache with the given TTL.
func NewDashboard(p ProfileFetcher, posts PostsFetcher, reg *breaker.Registry, cacheTTL time.Duration) *DashboardService {
	return &DashboardService{Profiles: p, Posts: posts, Breakers: reg, cache: newResultCache(cacheTTL)}
}

// Fetch returns the merged dashboard for userID. It never fails outright on
// downstream unavailability: a degraded sub-call contributes its cached
// last-known value or an empty result, and the response is flagged.
func (s *DashboardService) Fetch(ctx context.Context, userID string) *DashboardResponse {
	resp := &DashboardResponse{Posts: []Post{}, Errors: []string{}}

	var wg sync.WaitGroup
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		key := "profile:" + userID
		v, degraded, _ := s.Breakers.Get(TargetProfileService).Do(ctx,
			func(ctx context.Context) (any, error) {
				p, err := s.Profiles.Get(ctx, userID)
				if err != nil {
					return nil, err
				}
				s.cache.put(key, p)
				return p, nil
			},
			func(ctx context.Context, cause error) (any, error) {
				log.Warn().Err(cause).Str("user_id", userID).Msg("profile sub-call degraded")
				if cached, ok := s.cache.get(key); ok {
					return cached, nil
				}
				return (*Profile)(nil), nil
			},
		)
		mu.Lock()
		defer mu.Unlock()
		if p, ok := v.(*Profile); ok && p != nil {
			resp.Profile = p
		}
		if degraded {
			resp.Cached = true
			resp.Errors = append(resp.Errors, "profile service temporarily unavailable")
		}
	}()

	go func() {
		defer wg.Done()
		key := "posts:" + userID
		v, degraded, _ := s.Breakers.Get(TargetCommunityService).Do(ctx,
			func(ctx context.Context) (any, error) {
				posts, err := s.Posts.Recent(ctx, userID, DefaultPostsLimit)
				if err != nil {
					return nil, err
				}
				s.cache.put(key, posts)
				return posts, nil
			},
			func(ctx context.Context, cause error) (any, error) {
				log.Warn().Err(cause).Str("user_id", userID).Msg("posts sub-call degraded")
				if cached, ok := s.cache.get(key); ok {
					return cached, nil
				}
				return []Post{}, nil
			},
		)
		mu.Lock()
		defer mu.Unlock()
		if posts, ok := v.([]Post); ok && posts != nil {
			resp.Posts = posts
		}
		if degraded {
			resp.Cached = true
			resp.Errors = append(resp.Errors, "community service temporarily unavailable")
		}
	}()

	wg.Wait()
	return resp
}
