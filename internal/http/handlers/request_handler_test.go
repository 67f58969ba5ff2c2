// README: Handler tests for authentication and input validation paths.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"lifeline/internal/config"
	"lifeline/internal/http/handlers"
	httpmiddleware "lifeline/internal/http/middleware"
	"lifeline/internal/infra"
	"lifeline/internal/modules/request"
)

// stubTokenVerifier is a test double for infra.TokenVerifier.
type stubTokenVerifier struct {
	token *infra.FirebaseToken
	err   error
}

func (s *stubTokenVerifier) VerifyIDToken(_ context.Context, _ string) (*infra.FirebaseToken, error) {
	return s.token, s.err
}

// buildTestRouter wires a minimal gin engine with the auth middleware and the
// request handler. request.NewService(nil, ...) is safe here because every
// test exercises a path that fails before any store access.
func buildTestRouter(verifier infra.TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := request.NewService(nil, nil, config.OTPConfig{Length: 4}, nil)
	h := handlers.NewRequestHandler(svc)

	r := gin.New()
	staff := r.Group("/api/v1", httpmiddleware.Auth(verifier))
	staff.POST("/requests", h.Create)
	staff.PUT("/requests/:id/status", h.UpdateStatus)
	r.POST("/api/v1/requests/:id/verify-otp", h.VerifyOTP)
	return r
}

func makeVerifier(uid, org string) *stubTokenVerifier {
	claims := map[string]interface{}{}
	if org != "" {
		claims["org_id"] = org
	}
	return &stubTokenVerifier{token: &infra.FirebaseToken{UID: uid, Claims: claims}}
}

func doRequest(r *gin.Engine, method, path string, body interface{}, authHeader string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreate_Unauthenticated(t *testing.T) {
	r := buildTestRouter(&stubTokenVerifier{err: errors.New("no token")})
	w := doRequest(r, http.MethodPost, "/api/v1/requests", map[string]any{
		"organization_id": "org_b",
		"blood_group":     "O-",
		"quantity":        1,
	}, "Bearer badtoken")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestCreate_MissingFields(t *testing.T) {
	r := buildTestRouter(makeVerifier("user1", "org_a"))
	w := doRequest(r, http.MethodPost, "/api/v1/requests", map[string]any{
		"organization_id": "org_b",
	}, "Bearer validtoken")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestUpdateStatus_UnknownStatus(t *testing.T) {
	r := buildTestRouter(makeVerifier("staff1", "org_b"))
	w := doRequest(r, http.MethodPut, "/api/v1/requests/abc/status", map[string]any{
		"status": "shipped",
	}, "Bearer validtoken")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestUpdateStatus_ApproveWithoutDetails(t *testing.T) {
	r := buildTestRouter(makeVerifier("staff1", "org_b"))
	w := doRequest(r, http.MethodPut, "/api/v1/requests/abc/status", map[string]any{
		"status": "approved",
	}, "Bearer validtoken")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestVerifyOTP_MalformedCode(t *testing.T) {
	// verify-otp is a link-holder endpoint; no auth header needed.
	r := buildTestRouter(makeVerifier("user1", ""))
	w := doRequest(r, http.MethodPost, "/api/v1/requests/abc/verify-otp", map[string]any{
		"otp": "12ab",
	}, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}
