package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/casefunnel/lead-intake/internal/reqctx"
	"github.com/casefunnel/lead-intake/internal/storage"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

// NotificationHandler serves in-app notifications for the authenticated user.
type NotificationHandler struct {
	notifications storage.NotificationRepo
}

// NewNotificationHandler creates the handler.
func NewNotificationHandler(notifications storage.NotificationRepo) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// HandleList is GET /api/notifications?limit=&offset=.
func (h *NotificationHandler) HandleList(c *gin.Context) {
	ctx := c.Request.Context()
	userID, err := reqctx.UserIDFromContext(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}

	limit := queryInt(c, "limit", defaultNotificationLimit)
	if limit <= 0 || limit > maxNotificationLimit {
		limit = defaultNotificationLimit
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	notifications, err := h.notifications.FindByUserID(ctx, userID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
		"limit":         limit,
		"offset":        offset,
	})
}

// HandleMarkRead is POST /api/notifications/:id/read. Only the owning user
// can flip the flag; the repository enforces the ownership predicate.
func (h *NotificationHandler) HandleMarkRead(c *gin.Context) {
	ctx := c.Request.Context()
	userID, err := reqctx.UserIDFromContext(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}

	if err := h.notifications.MarkRead(ctx, c.Param("id"), userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"read": true})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
