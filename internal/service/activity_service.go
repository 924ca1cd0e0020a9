package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"live-voting/internal/domain"
	"live-voting/internal/repository"
)

// ActivityService counts identities seen within a sliding window. Stale
// entries are pruned on every touch and count, never by a background sweep.
type ActivityService struct {
	store  repository.ActivityStore
	window time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewActivityService creates an activity tracker; window <= 0 selects the default
func NewActivityService(store repository.ActivityStore, window time.Duration, logger *zap.Logger) *ActivityService {
	if window <= 0 {
		window = domain.DefaultHeartbeatWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{
		store:  store,
		window: window,
		now:    time.Now,
		logger: logger,
	}
}

// WithClock replaces the time source (tests)
func (s *ActivityService) WithClock(now func() time.Time) *ActivityService {
	s.now = now
	return s
}

// Window returns the heartbeat window
func (s *ActivityService) Window() time.Duration {
	return s.window
}

// Touch marks key as seen now
func (s *ActivityService) Touch(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	now := s.now()
	s.prune(ctx, now)

	if err := s.store.Touch(ctx, domain.ActivityEntry{Key: key, LastSeen: now}); err != nil {
		return domain.BackendUnavailable("touch activity", err)
	}
	return nil
}

// ConcurrentCount returns how many keys were seen within the window
func (s *ActivityService) ConcurrentCount(ctx context.Context) (int64, error) {
	now := s.now()
	s.prune(ctx, now)

	n, err := s.store.CountSince(ctx, now.Add(-s.window))
	if err != nil {
		return 0, domain.BackendUnavailable("count activity", err)
	}
	return n, nil
}

// Reset forgets every tracked key
func (s *ActivityService) Reset(ctx context.Context) error {
	if err := s.store.Reset(ctx); err != nil {
		return domain.BackendUnavailable("reset activity", err)
	}
	return nil
}

// prune failures only delay deletion; counts filter by cutoff regardless
func (s *ActivityService) prune(ctx context.Context, now time.Time) {
	removed, err := s.store.Prune(ctx, now.Add(-s.window))
	if err != nil {
		s.logger.Warn("Failed to prune activity", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Debug("Pruned stale activity", zap.Int64("removed", removed))
	}
}
