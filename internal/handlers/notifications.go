package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notifyd/internal/services"
	"github.com/charlesng35/notifyd/pkg/response"
)

// NotificationHandler exposes the in-app notification feed of the current user.
type NotificationHandler struct {
	service *services.NotificationService
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(service *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// List returns notifications for the current user.
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := ownerID(c)
	if !ok {
		return
	}

	limit := parseIntQuery(c, "limit", 25)
	offset := parseIntQuery(c, "offset", 0)

	items, total, err := h.service.ListForUser(requestContext(c), services.ListNotificationsInput{
		UserID:     userID,
		Limit:      limit,
		Offset:     offset,
		UnreadOnly: parseBoolQuery(c, "unread_only"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{
		Limit:  limit,
		Offset: offset,
		Total:  total,
	})
}

// UnreadCount reports how many notifications are still unread.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, ok := ownerID(c)
	if !ok {
		return
	}

	count, err := h.service.UnreadCount(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"unread_count": count})
}

// MarkRead toggles a notification to read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	h.updateReadState(c, true)
}

// MarkUnread toggles a notification to unread.
func (h *NotificationHandler) MarkUnread(c *gin.Context) {
	h.updateReadState(c, false)
}

func (h *NotificationHandler) updateReadState(c *gin.Context, read bool) {
	userID, ok := ownerID(c)
	if !ok {
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	var dto *services.NotificationDTO
	var err error
	if read {
		dto, err = h.service.MarkRead(requestContext(c), userID, id)
	} else {
		dto, err = h.service.MarkUnread(requestContext(c), userID, id)
	}

	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dto)
}

// Delete removes a notification.
func (h *NotificationHandler) Delete(c *gin.Context) {
	userID, ok := ownerID(c)
	if !ok {
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if err := h.service.Delete(requestContext(c), userID, id); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// MarkAllRead marks all notifications read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := ownerID(c)
	if !ok {
		return
	}

	updated, err := h.service.MarkAllRead(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}
