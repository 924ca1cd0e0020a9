package handler

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net"
	"net/http"

	"live-voting/internal/domain"
	"live-voting/internal/middleware"
	"live-voting/internal/service"
	"live-voting/pkg/errors"
	"live-voting/pkg/logger"
)

const maxBodyBytes = 16 << 10

// VotingHandler serves the voting API
type VotingHandler struct {
	votingService *service.VotingService
	logger        *logger.Logger
}

// NewVotingHandler creates a new voting handler
func NewVotingHandler(votingService *service.VotingService, logger *logger.Logger) *VotingHandler {
	return &VotingHandler{
		votingService: votingService,
		logger:        logger,
	}
}

// VoteResponse is returned for an accepted vote
type VoteResponse struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message"`
	SubmissionID string          `json:"submission_id"`
	Category     domain.Category `json:"category"`
	Candidate    string          `json:"candidate,omitempty"`
}

// ResetResponse echoes the counts after a reset so callers can verify it
type ResetResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Counts  domain.VoteCounts `json:"counts"`
}

// GetCategories handles GET /api/v1/categories
func (h *VotingHandler) GetCategories(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"categories": domain.Categories(),
	})
}

// RegisterDevice handles POST /api/v1/register-device
func (h *VotingHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterDeviceRequest
	if err := h.decode(r, &req, true); err != nil {
		h.respondError(w, r, err)
		return
	}

	reg, err := h.votingService.RegisterIdentity(r.Context(), req.DisplayName)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, reg)
}

// Heartbeat handles POST /api/v1/heartbeat
func (h *VotingHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req domain.HeartbeatRequest
	if err := h.decode(r, &req, false); err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.votingService.Heartbeat(r.Context(), req.DeviceToken); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"concurrent_users": h.votingService.GetActiveViewerCount(r.Context()),
	})
}

// GetUsers handles GET /api/v1/users
func (h *VotingHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	h.noStore(w)
	h.respondJSON(w, http.StatusOK, h.votingService.GetViewerStats(r.Context()))
}

// GetCounts handles GET /api/v1/counts
func (h *VotingHandler) GetCounts(w http.ResponseWriter, r *http.Request) {
	h.noStore(w)
	h.respondJSON(w, http.StatusOK, h.votingService.GetCounts(r.Context()))
}

// GetResults handles GET /api/v1/results
func (h *VotingHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	h.noStore(w)
	h.respondJSON(w, http.StatusOK, h.votingService.GetResults(r.Context()))
}

// CastVote handles POST /api/v1/vote
func (h *VotingHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	var req domain.VoteRequest
	if err := h.decode(r, &req, false); err != nil {
		h.respondError(w, r, err)
		return
	}

	outcome, err := h.votingService.CastVote(r.Context(), domain.RequestContext{
		DeviceToken:     req.DeviceToken,
		Category:        req.Category,
		CandidateName:   req.CandidateName,
		Fingerprint:     req.Fingerprint,
		SessionKey:      req.SessionKey,
		ClientTimestamp: req.Timestamp,
		NetworkAddress:  clientAddress(r),
		AccountID:       middleware.AccountID(r.Context()),
	})
	if err != nil {
		if stderrors.Is(err, domain.ErrUnknownCategory) {
			err = errors.NewUnknownCategoryError(req.Category, err)
		}
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, VoteResponse{
		Success:      true,
		Message:      "Vote recorded",
		SubmissionID: outcome.SubmissionID,
		Category:     outcome.Category,
		Candidate:    outcome.Candidate,
	})
}

// Reset handles POST /api/v1/reset
func (h *VotingHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.votingService.ResetAll(r.Context()); err != nil {
		h.respondError(w, r, err)
		return
	}

	h.logger.WithField("request_id", middleware.GetRequestID(r.Context())).Warn("Votes reset via API")
	h.respondJSON(w, http.StatusOK, ResetResponse{
		Success: true,
		Message: "All votes have been reset",
		Counts:  h.votingService.GetCounts(r.Context()),
	})
}

// decode reads a JSON body; allowEmpty accepts a missing body as the zero value
func (h *VotingHandler) decode(r *http.Request, v interface{}, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if allowEmpty && stderrors.Is(err, io.EOF) {
			return nil
		}
		return errors.NewValidationError("Invalid request body", nil)
	}
	return nil
}

// clientAddress is the peer address, already rewritten by RealIP when proxies are trusted
func clientAddress(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (h *VotingHandler) noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
}

// toAppError maps domain failures onto the API error taxonomy
func toAppError(err error) *errors.AppError {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	var dup *domain.DuplicateVoteError
	switch {
	case stderrors.As(err, &dup):
		return errors.NewDuplicateVoteError(dup.Reason(), string(dup.Dimension), err)
	case stderrors.Is(err, domain.ErrUnknownCategory):
		return errors.NewUnknownCategoryError("", err)
	case stderrors.Is(err, domain.ErrRequestExpired):
		return errors.NewRequestExpiredError(err)
	case stderrors.Is(err, domain.ErrInvalidSecurityData):
		return errors.NewInvalidSecurityError(err)
	case stderrors.Is(err, domain.ErrInvalidCandidate):
		return errors.NewValidationError("Candidate name must be at most 255 characters", map[string]interface{}{
			"field": "candidate_name",
		})
	case stderrors.Is(err, domain.ErrBackendUnavailable):
		return errors.NewUnavailableError("Voting is temporarily unavailable, please try again", err)
	default:
		return errors.NewInternalError("Internal server error", err)
	}
}

func (h *VotingHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

func (h *VotingHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	middleware.WriteError(w, r, toAppError(err), h.logger)
}
