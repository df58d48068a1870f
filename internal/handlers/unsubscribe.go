package handlers

import (
	stdErrors "errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/notifyd/internal/models"
	"github.com/charlesng35/notifyd/internal/services"
	"github.com/charlesng35/notifyd/pkg/errors"
	"github.com/charlesng35/notifyd/pkg/logger"
	"github.com/charlesng35/notifyd/pkg/response"
)

// UnsubscribeHandler serves the token-bearing links embedded in emails.
type UnsubscribeHandler struct {
	service     *services.UnsubscribeService
	frontendURL string
	log         *zap.Logger
}

// NewUnsubscribeHandler constructs the handler. Browser-facing actions
// redirect to {frontendURL}/unsubscribe.
func NewUnsubscribeHandler(service *services.UnsubscribeService, frontendURL string) *UnsubscribeHandler {
	return &UnsubscribeHandler{
		service:     service,
		frontendURL: strings.TrimRight(strings.TrimSpace(frontendURL), "/"),
		log:         logger.WithModule("unsubscribe"),
	}
}

type resubscribeRequest struct {
	Token    string `json:"token" form:"token"`
	Category string `json:"category" form:"category"`
}

// UnsubscribeCategory handles GET /unsubscribe?token=&category=.
func (h *UnsubscribeHandler) UnsubscribeCategory(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	rawCategory := strings.TrimSpace(c.Query("category"))

	category, ok := models.ParseCategory(rawCategory)
	if token == "" || !ok || !category.IsUserPreference() {
		h.redirect(c, false, rawCategory)
		return
	}

	_, err := h.service.UnsubscribeCategory(requestContext(c), token, category, requestMeta(c))
	h.logFailure("unsubscribe category", err)
	h.redirect(c, err == nil, category.String())
}

// UnsubscribeAll handles GET /unsubscribe/all?token=.
func (h *UnsubscribeHandler) UnsubscribeAll(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		h.redirect(c, false, "")
		return
	}

	_, err := h.service.UnsubscribeAll(requestContext(c), token, requestMeta(c))
	h.logFailure("unsubscribe all", err)
	h.redirect(c, err == nil, "")
}

// Resubscribe handles POST /unsubscribe/resubscribe. Token and category are
// read from the query string, falling back to a JSON body. Without a
// category the global opt-out is reversed.
func (h *UnsubscribeHandler) Resubscribe(c *gin.Context) {
	req := resubscribeRequest{
		Token:    strings.TrimSpace(c.Query("token")),
		Category: strings.TrimSpace(c.Query("category")),
	}
	if req.Token == "" && c.Request.ContentLength > 0 {
		var body resubscribeRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			response.Error(c, errors.NewBadRequest("invalid JSON payload"))
			return
		}
		req.Token = strings.TrimSpace(body.Token)
		if req.Category == "" {
			req.Category = strings.TrimSpace(body.Category)
		}
	}

	if req.Token == "" {
		response.Error(c, errors.ErrInvalidToken)
		return
	}

	var (
		result *services.UnsubscribeResult
		err    error
	)
	if req.Category == "" {
		result, err = h.service.ResubscribeAll(requestContext(c), req.Token, requestMeta(c))
	} else {
		category, ok := models.ParseCategory(req.Category)
		if !ok || !category.IsUserPreference() {
			response.Error(c, errors.ErrUnknownCategory)
			return
		}
		result, err = h.service.ResubscribeCategory(requestContext(c), req.Token, category, requestMeta(c))
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// Confirm handles GET /unsubscribe/confirm?token=. It never mutates state.
func (h *UnsubscribeHandler) Confirm(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, errors.ErrInvalidToken)
		return
	}

	result, err := h.service.Confirm(requestContext(c), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *UnsubscribeHandler) redirect(c *gin.Context, success bool, category string) {
	query := url.Values{}
	if success {
		query.Set("success", "true")
	} else {
		query.Set("success", "false")
	}
	if category != "" {
		query.Set("category", category)
	}
	c.Redirect(http.StatusFound, h.frontendURL+"/unsubscribe?"+query.Encode())
}

// logFailure keeps token failures quiet and surfaces anything unexpected.
func (h *UnsubscribeHandler) logFailure(op string, err error) {
	if err == nil {
		return
	}
	var appErr *errors.AppError
	if stdErrors.As(err, &appErr) && appErr.StatusCode < http.StatusInternalServerError {
		h.log.Debug(op+" rejected", zap.String("code", appErr.Code))
		return
	}
	h.log.Error(op+" failed", zap.Error(err))
}
