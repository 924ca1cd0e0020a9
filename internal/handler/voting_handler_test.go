package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-voting/internal/domain"
	"live-voting/internal/middleware"
	"live-voting/internal/repository"
	"live-voting/internal/service"
	"live-voting/internal/service/auth"
	"live-voting/pkg/logger"
)

const testJWTSecret = "handler-test-secret-at-least-32-bytes"

func newTestHandler(t *testing.T, dims ...domain.Dimension) *VotingHandler {
	t.Helper()
	svc := service.NewVotingService(repository.NewMemoryStores(), service.VotingOptions{
		Identity: service.IdentityPolicy{Dimensions: dims},
	}, nil)
	return NewVotingHandler(svc, logger.NewNop())
}

func do(h http.HandlerFunc, method, target, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func fromAddr(addr string) func(*http.Request) {
	return func(r *http.Request) { r.RemoteAddr = addr }
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func voteBody(device, category, candidate string) string {
	return fmt.Sprintf(`{"device_token":%q,"category":%q,"candidate_name":%q}`, device, category, candidate)
}

func TestVotingHandler_GetCategories(t *testing.T) {
	h := newTestHandler(t, domain.DimensionDevice)

	rec := do(h.GetCategories, http.MethodGet, "/api/v1/categories", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	categories, ok := body["categories"].([]interface{})
	require.True(t, ok)
	assert.Len(t, categories, len(domain.Categories()))
	assert.Equal(t, "King", categories[0])
}

func TestVotingHandler_RegisterDevice(t *testing.T) {
	h := newTestHandler(t, domain.DimensionDevice)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantName   string
	}{
		{name: "with display name", body: `{"display_name":"  Alice  "}`, wantStatus: http.StatusOK, wantName: "Alice"},
		{name: "empty body", body: "", wantStatus: http.StatusOK},
		{name: "malformed json", body: `{"display_name":`, wantStatus: http.StatusBadRequest},
		{name: "name too long", body: fmt.Sprintf(`{"display_name":%q}`, strings.Repeat("n", 101)), wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h.RegisterDevice, http.MethodPost, "/api/v1/register-device", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			body := decodeBody(t, rec)
			assert.NotEmpty(t, body["device_id"])
			if tt.wantName != "" {
				assert.Equal(t, tt.wantName, body["display_name"])
			}
		})
	}
}

func TestVotingHandler_CastVote(t *testing.T) {
	h := newTestHandler(t, domain.DimensionDevice)

	rec := do(h.CastVote, http.MethodPost, "/api/v1/vote", voteBody("dev-1", "King", "Arthur"))
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Vote recorded", body["message"])
	assert.Equal(t, "King", body["category"])
	assert.Equal(t, "Arthur", body["candidate"])
	assert.NotEmpty(t, body["submission_id"])

	rec = do(h.GetCounts, http.MethodGet, "/api/v1/counts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	counts := decodeBody(t, rec)
	assert.Equal(t, float64(1), counts["King"])
	assert.Equal(t, float64(0), counts["Queen"])
	assert.Equal(t, float64(1), counts["total"])
}

func TestVotingHandler_CastVoteRejections(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantType   string
	}{
		{name: "malformed body", body: `not json`, wantStatus: http.StatusBadRequest, wantType: "validation"},
		{name: "unknown category", body: voteBody("dev-1", "Court Jester", "Bob"), wantStatus: http.StatusBadRequest, wantType: "unknown_category"},
		{name: "missing device token", body: voteBody("", "King", "Bob"), wantStatus: http.StatusBadRequest, wantType: "invalid_security_data"},
		{name: "candidate too long", body: voteBody("dev-1", "King", strings.Repeat("x", 256)), wantStatus: http.StatusBadRequest, wantType: "validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, domain.DimensionDevice)
			rec := do(h.CastVote, http.MethodPost, "/api/v1/vote", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code)

			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"])
			errBody, ok := body["error"].(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, tt.wantType, errBody["type"])
		})
	}
}

func TestVotingHandler_UnknownCategoryDetails(t *testing.T) {
	h := newTestHandler(t, domain.DimensionDevice)

	rec := do(h.CastVote, http.MethodPost, "/api/v1/vote", voteBody("dev-1", "Court Jester", "Bob"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	errBody := decodeBody(t, rec)["error"].(map[string]interface{})
	details := errBody["details"].(map[string]interface{})
	assert.Equal(t, "Court Jester", details["category"])
}

func TestVotingHandler_DuplicateReportsDimension(t *testing.T) {
	h := newTestHandler(t, domain.DimensionDevice, domain.DimensionNetwork)

	rec := do(h.CastVote, http.MethodPost, "/api/v1/vote", voteBody("dev-1", "Prince", "Eric"), fromAddr("203.0.113.7:4000"))
	require.Equal(t, http.StatusCreated, rec.Code)

	// different device, same address
	rec = do(h.CastVote, http.MethodPost, "/api/v1/vote", voteBody("dev-2", "Prince", "Eric"), fromAddr("203.0.113.7:5000"))
	require.Equal(t, http.StatusConflict, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "This network address has already voted for Prince", body["message"])
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "duplicate_vote", errBody["type"])
	assert.Equal(t, "network", errBody["details"].(map[string]interface{})["dimension"])

	// another category is still open for a fresh device on a fresh address
	rec = do(h.CastVote, http.MethodPost, "/api/v1/vote", voteBody("dev-2", "Princess", "Belle"), fromAddr("198.51.100.2:4000"))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestVotingHandler_AccountFromBearerToken(t *testing.T) {
	h := newTestHandler(t, domain.DimensionAccount)
	authService := auth.NewService(testJWTSecret, "", logger.NewNop())
	vote := middleware.OptionalAuth(authService, logger.NewNop())(http.HandlerFunc(h.CastVote)).ServeHTTP

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	bearer := func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }

	rec := do(vote, http.MethodPost, "/api/v1/vote", voteBody("", "Queen", "Elsa"), bearer)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(vote, http.MethodPost, "/api/v1/vote", voteBody("", "Queen", "Anna"), bearer)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// anonymous caller carries no account key
	rec = do(vote, http.MethodPost, "/api/v1/vote", voteBody("", "Queen", "Anna"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(vote, http.MethodPost, "/api/v1/vote", voteBody("", "Queen", "Anna"), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer not.a.token")
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVotingHandler_GetResults(t *testing.T) {
	h := newTestHandler(t, domain.DimensionDevice)
	for i, candidate := range []string{"A", "A", "A", "B", "B", "B", "C"} {
		rec := do(h.CastVote, http.MethodPost, "/api/v1/vote", voteBody(fmt.Sprintf("dev-%d", i), "Queen", candidate))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := do(h.GetResults, http.MethodGet, "/api/v1/results", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var results map[string]domain.ResultSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	assert.Len(t, results, len(domain.Categories()))
	assert.Equal(t, "Tie: A, B", results["Queen"].LeadingCandidate)
	assert.Equal(t, 42.9, results["Queen"].Percentage)
	assert.Equal(t, domain.NoVotesYet, results["King"].LeadingCandidate)
}

func TestVotingHandler_HeartbeatAndUsers(t *testing.T) {
	h := newTestHandler(t, domain.DimensionDevice)

	rec := do(h.Heartbeat, http.MethodPost, "/api/v1/heartbeat", `{"device_token":"viewer-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["concurrent_users"])

	rec = do(h.Heartbeat, http.MethodPost, "/api/v1/heartbeat", `{"device_token":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h.CastVote, http.MethodPost, "/api/v1/vote", voteBody("viewer-2", "King", "Arthur"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(h.GetUsers, http.MethodGet, "/api/v1/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["concurrent_users"])
	assert.Equal(t, float64(1), body["total_votes"])
}

func TestVotingHandler_ResetRequiresAdminKey(t *testing.T) {
	h := newTestHandler(t, domain.DimensionDevice)
	reset := middleware.AdminKey("s3cret", logger.NewNop())(http.HandlerFunc(h.Reset)).ServeHTTP

	rec := do(h.CastVote, http.MethodPost, "/api/v1/vote", voteBody("dev-1", "King", "Arthur"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(reset, http.MethodPost, "/api/v1/reset", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(reset, http.MethodPost, "/api/v1/reset", "", func(r *http.Request) {
		r.Header.Set(middleware.AdminKeyHeader, "wrong")
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(reset, http.MethodPost, "/api/v1/reset", "", func(r *http.Request) {
		r.Header.Set(middleware.AdminKeyHeader, "s3cret")
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "All votes have been reset", body["message"])
	assert.Equal(t, float64(0), body["counts"].(map[string]interface{})["total"])

	// the device may vote again after a reset
	rec = do(h.CastVote, http.MethodPost, "/api/v1/vote", voteBody("dev-1", "King", "Arthur"))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestToAppError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"duplicate", &domain.DuplicateVoteError{Dimension: domain.DimensionDevice, Category: domain.CategoryKing}, http.StatusConflict},
		{"unknown category", domain.ErrUnknownCategory, http.StatusBadRequest},
		{"expired", domain.ErrRequestExpired, http.StatusBadRequest},
		{"invalid security", domain.InvalidSecurityData("fingerprint", "is required"), http.StatusBadRequest},
		{"invalid candidate", domain.ErrInvalidCandidate, http.StatusBadRequest},
		{"backend", domain.BackendUnavailable("record votes", errors.New("dial tcp")), http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, toAppError(tt.err).StatusCode)
		})
	}
}

type stubChecker struct{ err error }

func (s stubChecker) Health(context.Context) error { return s.err }

func TestHealthHandler(t *testing.T) {
	t.Run("root banner", func(t *testing.T) {
		h := NewHealthHandler(stubChecker{}, "memory", logger.NewNop())
		rec := do(h.Root, http.MethodGet, "/", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Voting Dashboard API", decodeBody(t, rec)["message"])
	})

	t.Run("healthy store", func(t *testing.T) {
		h := NewHealthHandler(stubChecker{}, "redis", logger.NewNop())
		rec := do(h.Check, http.MethodGet, "/health", "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, "redis", body["backend"])
	})

	t.Run("store down", func(t *testing.T) {
		h := NewHealthHandler(stubChecker{err: errors.New("refused")}, "postgres", logger.NewNop())
		rec := do(h.Check, http.MethodGet, "/health", "")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "unavailable", decodeBody(t, rec)["storage"])
	})
}
