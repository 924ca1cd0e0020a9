package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"live-voting/internal/domain"
	"live-voting/internal/repository"
)

const maxDisplayNameLength = 100

// VotingOptions tunes the voting service
type VotingOptions struct {
	Identity        IdentityPolicy
	HeartbeatWindow time.Duration
}

// VotingService orchestrates identity resolution, duplicate checks and the
// ledger for vote submissions, and serves the aggregate reads
type VotingService struct {
	resolver *IdentityResolver
	guard    *Guard
	ledger   *Ledger
	tally    *TallyService
	activity *ActivityService
	votes    repository.VoteStore
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// NewVotingService wires the voting core over stores
func NewVotingService(stores repository.Stores, opts VotingOptions, logger *zap.Logger) *VotingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VotingService{
		resolver: NewIdentityResolver(opts.Identity),
		guard:    NewGuard(stores.Votes),
		ledger:   NewLedger(stores.Votes),
		tally:    NewTallyService(stores.Votes),
		activity: NewActivityService(stores.Activity, opts.HeartbeatWindow, logger),
		votes:    stores.Votes,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// WithClock replaces the time source of the service and its tracker (tests)
func (s *VotingService) WithClock(now func() time.Time) *VotingService {
	s.now = now
	s.ledger.now = now
	s.activity.WithClock(now)
	return s
}

// Dimensions returns the active identity dimensions in resolution order
func (s *VotingService) Dimensions() []domain.Dimension {
	return s.resolver.Dimensions()
}

// RegisterIdentity issues a fresh device token and counts the device as a viewer
func (s *VotingService) RegisterIdentity(ctx context.Context, displayName string) (*domain.DeviceRegistration, error) {
	displayName = strings.TrimSpace(displayName)
	if utf8.RuneCountInString(displayName) > maxDisplayNameLength {
		return nil, domain.InvalidSecurityData("display_name", "is too long")
	}

	reg := &domain.DeviceRegistration{
		DeviceID:    s.newID(),
		DisplayName: displayName,
	}

	if err := s.activity.Touch(ctx, string(domain.DimensionDevice)+":"+reg.DeviceID); err != nil {
		s.logger.Warn("Failed to record activity for new device", zap.Error(err))
	}

	s.logger.Debug("Device registered", zap.String("device_id", reg.DeviceID))
	return reg, nil
}

// CastVote accepts a submission when none of its identity keys has voted in the category
func (s *VotingService) CastVote(ctx context.Context, req domain.RequestContext) (*domain.VoteOutcome, error) {
	category, err := domain.ParseCategory(req.Category)
	if err != nil {
		return nil, err
	}
	candidate, err := NormalizeCandidate(req.CandidateName)
	if err != nil {
		return nil, err
	}

	keys, err := s.resolver.Resolve(req, s.now())
	if err != nil {
		s.logger.Info("Vote rejected by identity checks",
			zap.String("category", string(category)),
			zap.Error(err))
		return nil, err
	}

	if err := s.activity.Touch(ctx, ActivityKey(req, keys)); err != nil {
		s.logger.Warn("Failed to record voter activity", zap.Error(err))
	}

	if err := s.guard.Check(ctx, keys, category); err != nil {
		return nil, s.rejected(category, err)
	}

	records, err := s.ledger.RecordAll(ctx, keys, category, candidate)
	if err != nil {
		return nil, s.rejected(category, err)
	}

	outcome := &domain.VoteOutcome{
		Accepted:     true,
		SubmissionID: records[0].SubmissionID,
		Category:     category,
		Candidate:    candidate,
		Keys:         keys,
		RecordedAt:   records[0].RecordedAt,
	}

	s.logger.Info("Vote recorded",
		zap.String("submission_id", outcome.SubmissionID),
		zap.String("category", string(category)),
		zap.Int("keys", len(records)))
	return outcome, nil
}

func (s *VotingService) rejected(category domain.Category, err error) error {
	var dup *domain.DuplicateVoteError
	switch {
	case errors.As(err, &dup):
		s.logger.Info("Duplicate vote rejected",
			zap.String("category", string(category)),
			zap.String("dimension", string(dup.Dimension)))
	case errors.Is(err, domain.ErrBackendUnavailable):
		s.logger.Error("Vote storage unavailable", zap.Error(err))
	}
	return err
}

// GetCounts returns per-category totals. A store failure yields zero counts.
func (s *VotingService) GetCounts(ctx context.Context) domain.VoteCounts {
	counts, err := s.tally.Counts(ctx)
	if err != nil {
		s.logger.Error("Failed to read vote counts", zap.Error(err))
	}
	return counts
}

// GetResults returns the leader of every category. A store failure yields empty results.
func (s *VotingService) GetResults(ctx context.Context) map[domain.Category]domain.ResultSummary {
	results, err := s.tally.Results(ctx)
	if err != nil {
		s.logger.Error("Failed to read vote results", zap.Error(err))
	}
	return results
}

// GetActiveViewerCount returns how many identities were seen within the heartbeat window
func (s *VotingService) GetActiveViewerCount(ctx context.Context) int64 {
	n, err := s.activity.ConcurrentCount(ctx)
	if err != nil {
		s.logger.Error("Failed to count active viewers", zap.Error(err))
		return 0
	}
	return n
}

// GetViewerStats combines the viewer count with the overall vote total
func (s *VotingService) GetViewerStats(ctx context.Context) domain.ViewerStats {
	return domain.ViewerStats{
		ConcurrentUsers: s.GetActiveViewerCount(ctx),
		TotalVotes:      s.GetCounts(ctx).Total,
	}
}

// Heartbeat keeps a device counted as a viewer without voting
func (s *VotingService) Heartbeat(ctx context.Context, deviceToken string) error {
	deviceToken = strings.TrimSpace(deviceToken)
	if err := validateDeviceToken(deviceToken); err != nil {
		return err
	}
	return s.activity.Touch(ctx, string(domain.DimensionDevice)+":"+deviceToken)
}

// ResetAll removes every vote and forgets every viewer
func (s *VotingService) ResetAll(ctx context.Context) error {
	if err := s.votes.Reset(ctx); err != nil {
		s.logger.Error("Failed to reset votes", zap.Error(err))
		return domain.BackendUnavailable("reset votes", err)
	}
	if err := s.activity.Reset(ctx); err != nil {
		s.logger.Error("Failed to reset activity", zap.Error(err))
		return err
	}

	s.logger.Warn("All votes reset")
	return nil
}

// Health checks the vote store
func (s *VotingService) Health(ctx context.Context) error {
	if err := s.votes.Health(ctx); err != nil {
		return domain.BackendUnavailable("health", err)
	}
	return nil
}
