// Circuit breaker status endpoint.
//
// GET /circuits/status reports every registered breaker keyed by target name,
// for dashboards and on-call inspection.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetCircuitStatus returns a snapshot of all circuit breakers, keyed by
// target name.
func (h *Handler) GetCircuitStatus(c *gin.Context) {
	ok(c, http.StatusOK, h.Breakers.Snapshots())
}
