package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notifyd/internal/models"
	"github.com/charlesng35/notifyd/internal/services"
	"github.com/charlesng35/notifyd/pkg/errors"
	"github.com/charlesng35/notifyd/pkg/response"
)

// PreferenceHandler lets the current user manage per-category delivery
// settings and the global email opt-out.
type PreferenceHandler struct {
	service *services.PreferenceService
}

// NewPreferenceHandler constructs a preference handler.
func NewPreferenceHandler(service *services.PreferenceService) *PreferenceHandler {
	return &PreferenceHandler{service: service}
}

type updatePreferenceRequest struct {
	EnableWebsite *bool           `json:"enable_website"`
	EnableEmail   *bool           `json:"enable_email"`
	Frequency     *string         `json:"frequency" validate:"omitempty,oneof=immediate daily_digest weekly_digest"`
	AreaFilter    json.RawMessage `json:"area_filter"`
}

type optOutRequest struct {
	OptedOut *bool `json:"opted_out" validate:"required"`
}

// List returns every user-managed category, with defaults for categories
// that were never customised.
func (h *PreferenceHandler) List(c *gin.Context) {
	userID, ok := ownerID(c)
	if !ok {
		return
	}

	prefs, err := h.service.ListForUser(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, prefs)
}

// Update applies a partial update to one category.
func (h *PreferenceHandler) Update(c *gin.Context) {
	userID, ok := ownerID(c)
	if !ok {
		return
	}

	category, ok := models.ParseCategory(c.Param("category"))
	if !ok || !category.IsUserPreference() {
		response.Error(c, errors.ErrUnknownCategory)
		return
	}

	var payload updatePreferenceRequest
	if !bindAndValidate(c, &payload) {
		return
	}

	pref, err := h.service.Update(requestContext(c), userID, category, services.UpdatePreferenceInput{
		EnableWebsite: payload.EnableWebsite,
		EnableEmail:   payload.EnableEmail,
		Frequency:     payload.Frequency,
		AreaFilter:    trimNullJSON(payload.AreaFilter),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, pref)
}

// OptOut sets or clears the global email opt-out. Clearing it does not
// re-enable any category.
func (h *PreferenceHandler) OptOut(c *gin.Context) {
	userID, ok := ownerID(c)
	if !ok {
		return
	}

	var payload optOutRequest
	if !bindAndValidate(c, &payload) {
		return
	}

	user, err := h.service.SetGlobalOptOut(requestContext(c), userID, *payload.OptedOut)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"email_notifications_opted_out": user.EmailNotificationsOptedOut,
		"email_opt_out_at":              user.EmailOptOutAt,
	})
}

func trimNullJSON(raw json.RawMessage) json.RawMessage {
	if strings.TrimSpace(string(raw)) == "null" {
		return nil
	}
	return raw
}
