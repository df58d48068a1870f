package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/notifyd/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newContext(rec *httptest.ResponseRecorder) *gin.Context {
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/test", nil)
	return ctx
}

func TestSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx := newContext(rec)

	Success(ctx, http.StatusCreated, gin.H{"message": "ok"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d", http.StatusCreated, rec.Code)
	}

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if !resp.Success {
		t.Fatal("expected success flag to be true")
	}
	if resp.Error != nil {
		t.Fatal("expected no error information")
	}
}

func TestSuccessWithMeta(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx := newContext(rec)

	SuccessWithMeta(ctx, http.StatusOK, []string{"a", "b"}, &Meta{Limit: 10, Total: 20})

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Meta == nil || resp.Meta.Total != 20 {
		t.Fatal("expected metadata to be serialised")
	}
}

func TestErrorWithAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx := newContext(rec)

	Error(ctx, appErrors.ErrInvalidToken)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d got %d", http.StatusBadRequest, rec.Code)
	}

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Success {
		t.Fatal("expected success to be false")
	}
	if resp.Error == nil || resp.Error.Code != appErrors.ErrInvalidToken.Code {
		t.Fatal("expected invalid token code in response")
	}
}

func TestErrorWithGenericError(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx := newContext(rec)

	Error(ctx, errors.New("boom"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d got %d", http.StatusInternalServerError, rec.Code)
	}
	if body := rec.Body.String(); strings.Contains(body, "boom") {
		t.Fatalf("internal error leaked to client: %s", body)
	}
}
