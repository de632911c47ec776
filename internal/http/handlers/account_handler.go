// Account deletion entry point.
//
// DELETE /api/v1/account starts the asynchronous deletion saga: a durable
// user.deleted event is published and the request is acknowledged with 202
// before any side effect runs. The correlation id lets clients follow the
// saga across services.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uplift-app/go-support-backend/internal/auth"
	"github.com/uplift-app/go-support-backend/internal/events"
	"github.com/uplift-app/go-support-backend/internal/http/middleware"
)

// DeleteAccount publishes the deletion event for the authenticated user.
func (h *Handler) DeleteAccount(c *gin.Context) {
	id := auth.IdentityFrom(c)
	if id == nil {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid or missing credentials")
		return
	}

	correlationID := c.Writer.Header().Get("X-Request-ID")
	env, err := events.NewEnvelope(events.KindUserDeleted, events.UserDeleted{
		UserID: id.SubjectID,
		Email:  id.Email,
	}, correlationID)
	if err == nil {
		err = h.Publisher.Publish(c.Request.Context(), env)
	}
	if err != nil {
		middleware.LoggerFrom(c).Error().Err(err).
			Str("user_id", id.SubjectID).
			Msg("account deletion publish failed")
		fail(c, http.StatusInternalServerError, ErrCodeDeletionFailed, "unable to start account deletion")
		return
	}

	middleware.LoggerFrom(c).Info().
		Str("user_id", id.SubjectID).
		Str("event_id", env.EventID).
		Msg("account deletion requested")

	ok(c, http.StatusAccepted, gin.H{
		"status":         "deletion_requested",
		"correlation_id": correlationID,
	})
}
