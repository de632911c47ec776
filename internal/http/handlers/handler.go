package handlers

import (
	"context"

	"github.com/uplift-app/go-support-backend/internal/aggregate"
	"github.com/uplift-app/go-support-backend/internal/breaker"
	"github.com/uplift-app/go-support-backend/internal/domain"
	"github.com/uplift-app/go-support-backend/internal/events"
)

//
// Service contracts (context-aware)
//

// DashboardService aggregates upstream data for the dashboard endpoint.
type DashboardService interface {
	// Fetch assembles the dashboard, degrading per-source instead of failing.
	Fetch(ctx context.Context, userID string) *aggregate.DashboardResponse
}

// HistoryService serves paginated room history with access control applied.
type HistoryService interface {
	// HistoryPage returns a page of a room's messages and the total count.
	HistoryPage(ctx context.Context, userID, roomID string, page, pageSize int) ([]domain.ChatMessage, int64, error)
}

// BreakerStatus exposes the current state of all registered circuit breakers.
type BreakerStatus interface {
	Snapshots() map[string]breaker.Snapshot
}

// Handler bundles the dependencies of all HTTP endpoints.
type Handler struct {
	Dashboard DashboardService
	History   HistoryService
	Breakers  BreakerStatus
	Publisher events.Publisher
}

// New constructs the endpoint handler set.
func New(dashboard DashboardService, history HistoryService, breakers BreakerStatus, pub events.Publisher) *Handler {
	return &Handler{
		Dashboard: dashboard,
		History:   history,
		Breakers:  breakers,
		Publisher: pub,
	}
}
