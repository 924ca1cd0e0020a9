package repository

import (
	"context"
	"time"

	"live-voting/internal/domain"
)

// VoteStore persists the vote ledger and its tally projection
type VoteStore interface {
	// HasVoted reports whether key already has a record for category
	HasVoted(ctx context.Context, key domain.IdentityKey, category domain.Category) (bool, error)

	// InsertVotes records every record of one submission or none of them.
	// All records share a category and candidate. A conflict on any key returns a
	// *domain.DuplicateVoteError naming the first conflicting record in slice order.
	// The tally gains one vote per inserted record within the same atomic unit.
	InsertVotes(ctx context.Context, records []domain.VoteRecord) error

	// Tallies returns a consistent snapshot of every category
	Tallies(ctx context.Context) (domain.Tallies, error)

	// Reset removes every record and zeroes every tally
	Reset(ctx context.Context) error

	// Health checks the backing store
	Health(ctx context.Context) error
}

// ActivityStore persists last-seen times per identity key
type ActivityStore interface {
	// Touch records entry, replacing any earlier last-seen time for its key
	Touch(ctx context.Context, entry domain.ActivityEntry) error

	// CountSince counts keys seen strictly after cutoff
	CountSince(ctx context.Context, cutoff time.Time) (int64, error)

	// Prune deletes keys last seen at or before cutoff and returns how many went
	Prune(ctx context.Context, cutoff time.Time) (int64, error)

	// Reset forgets every key
	Reset(ctx context.Context) error
}

// Stores aggregates the stores of the selected backend
type Stores struct {
	Votes    VoteStore
	Activity ActivityStore
	// Close releases the backend's connections; nil for in-process stores
	Close func() error
}

// firstConflict picks the record that blocks a submission, in resolution order
func firstConflict(records []domain.VoteRecord, conflicting map[string]bool) *domain.DuplicateVoteError {
	for _, r := range records {
		if conflicting[r.Key.Value] {
			return &domain.DuplicateVoteError{Dimension: r.Key.Dimension, Category: r.Category}
		}
	}
	return nil
}
