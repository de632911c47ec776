// Room history REST endpoint.
//
// GET /api/v1/rooms/{id}/messages serves paginated history outside the
// websocket session, e.g. for infinite scroll. The room access policy is the
// same one the gateway enforces on join.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uplift-app/go-support-backend/internal/auth"
	"github.com/uplift-app/go-support-backend/internal/chat"
	"github.com/uplift-app/go-support-backend/internal/domain"
	"github.com/uplift-app/go-support-backend/internal/utils"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// messagesPage is the paginated response body for room history.
type messagesPage struct {
	Items    []domain.ChatMessage `json:"items"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
	Total    int64                `json:"total"`
}

// ListRoomMessages returns a page of a room's messages, oldest first.
func (h *Handler) ListRoomMessages(c *gin.Context) {
	userID := auth.UserIDFrom(c)
	if userID == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid or missing credentials")
		return
	}
	roomID := c.Param("id")
	if roomID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "room id is required")
		return
	}

	page := utils.AtoiDefault(c.Query("page"), 1)
	pageSize := utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	page, pageSize, _ = utils.ClampPage(page, pageSize, defaultPageSize, maxPageSize)

	items, total, err := h.History.HistoryPage(c.Request.Context(), userID, roomID, page, pageSize)
	switch {
	case errors.Is(err, chat.ErrRoomNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "room not found")
		return
	case errors.Is(err, chat.ErrRoomAccessDenied):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "access to this room is denied")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "unable to list messages")
		return
	}

	if items == nil {
		items = []domain.ChatMessage{}
	}
	ok(c, http.StatusOK, messagesPage{Items: items, Page: page, PageSize: pageSize, Total: total})
}
