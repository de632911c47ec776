// Dashboard HTTP handler.
//
// GET /api/v1/dashboard aggregates the caller's profile and recent community
// posts. Upstream failures never fail the request: the affected section
// degrades to cached or empty data and the response says so.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uplift-app/go-support-backend/internal/auth"
)

// GetDashboard returns the aggregated dashboard for the authenticated user.
func (h *Handler) GetDashboard(c *gin.Context) {
	userID := auth.UserIDFrom(c)
	if userID == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid or missing credentials")
		return
	}
	ok(c, http.StatusOK, h.Dashboard.Fetch(c.Request.Context(), userID))
}
