package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"live-voting/pkg/logger"
)

// HealthChecker reports whether the vote store is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	checker HealthChecker
	backend string
	logger  *logger.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(checker HealthChecker, backend string, logger *logger.Logger) *HealthHandler {
	return &HealthHandler{
		checker: checker,
		backend: backend,
		logger:  logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Storage   string    `json:"storage"`
	Backend   string    `json:"backend"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Service   string    `json:"service"`
}

// Root handles GET /
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	h.write(w, http.StatusOK, map[string]string{"message": "Voting Dashboard API"})
}

// Check handles GET /health. It answers 503 while the vote store is down.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Storage:   "ok",
		Backend:   h.backend,
		Timestamp: time.Now().UTC(),
		Version:   "1.0.0",
		Service:   "live-voting",
	}
	status := http.StatusOK

	if err := h.checker.Health(ctx); err != nil {
		h.logger.WithError(err).Warn("Health check failed")
		response.Status = "degraded"
		response.Storage = "unavailable"
		status = http.StatusServiceUnavailable
	}

	h.write(w, status, response)
}

func (h *HealthHandler) write(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Error("Failed to encode health check response")
	}
}
