package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notifyd/internal/models"
	"github.com/charlesng35/notifyd/internal/services"
	"github.com/charlesng35/notifyd/pkg/errors"
	"github.com/charlesng35/notifyd/pkg/response"
)

// InternalNotificationHandler serves the API-key protected surface used by
// producer services and the email worker. Worker responses are plain JSON
// objects rather than the response envelope, matching what the worker parses.
type InternalNotificationHandler struct {
	service *services.NotificationService
}

// NewInternalNotificationHandler constructs the handler.
func NewInternalNotificationHandler(service *services.NotificationService) *InternalNotificationHandler {
	return &InternalNotificationHandler{service: service}
}

type createNotificationRequest struct {
	UserID     string  `json:"user_id" validate:"required"`
	Category   string  `json:"category" validate:"required"`
	Title      string  `json:"title" validate:"required,max=255"`
	Message    string  `json:"message" validate:"max=5000"`
	LinkURL    *string `json:"link_url" validate:"omitempty,max=512"`
	EntityType *string `json:"entity_type" validate:"omitempty,max=64"`
	EntityID   *string `json:"entity_id" validate:"omitempty,max=64"`
	Template   string  `json:"template" validate:"omitempty,oneof=notification admin_alert account_verification"`
}

// Create persists a notification and runs it through the delivery decision.
func (h *InternalNotificationHandler) Create(c *gin.Context) {
	var payload createNotificationRequest
	if !bindAndValidate(c, &payload) {
		return
	}

	category, ok := models.ParseCategory(payload.Category)
	if !ok {
		response.Error(c, errors.ErrUnknownCategory)
		return
	}

	dto, err := h.service.CreateNotification(requestContext(c), services.CreateNotificationInput{
		UserID:     strings.TrimSpace(payload.UserID),
		Category:   category,
		Title:      payload.Title,
		Message:    payload.Message,
		LinkURL:    payload.LinkURL,
		EntityType: payload.EntityType,
		EntityID:   payload.EntityID,
		Template:   services.EmailTemplate(payload.Template),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, dto)
}

// Detail returns the worker projection of a notification.
func (h *InternalNotificationHandler) Detail(c *gin.Context) {
	detail, err := h.service.GetDetail(requestContext(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// MarkEmailSent records delivery. Repeated calls answer already_sent with the
// original timestamp.
func (h *InternalNotificationHandler) MarkEmailSent(c *gin.Context) {
	result, err := h.service.MarkEmailSent(requestContext(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
