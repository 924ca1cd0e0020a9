package service

import (
	"context"

	"live-voting/internal/domain"
	"live-voting/internal/repository"
)

// Guard answers whether identity keys have already voted. It never writes;
// the store enforces uniqueness again when the vote is recorded.
type Guard struct {
	store repository.VoteStore
}

// NewGuard creates a guard over store
func NewGuard(store repository.VoteStore) *Guard {
	return &Guard{store: store}
}

// HasVoted reports whether key already voted in category
func (g *Guard) HasVoted(ctx context.Context, key domain.IdentityKey, category domain.Category) (bool, error) {
	voted, err := g.store.HasVoted(ctx, key, category)
	if err != nil {
		return false, domain.BackendUnavailable("has voted", err)
	}
	return voted, nil
}

// Check returns a *domain.DuplicateVoteError for the first key, in order, that already voted
func (g *Guard) Check(ctx context.Context, keys []domain.IdentityKey, category domain.Category) error {
	for _, key := range keys {
		voted, err := g.HasVoted(ctx, key, category)
		if err != nil {
			return err
		}
		if voted {
			return &domain.DuplicateVoteError{Dimension: key.Dimension, Category: category}
		}
	}
	return nil
}
