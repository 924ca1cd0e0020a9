package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-voting/internal/domain"
)

func key(dim domain.Dimension, value string) domain.IdentityKey {
	return domain.IdentityKey{Dimension: dim, Value: string(dim) + ":" + value}
}

func submission(category domain.Category, candidate string, keys ...domain.IdentityKey) []domain.VoteRecord {
	id := uuid.NewString()
	now := time.Now().UTC()
	records := make([]domain.VoteRecord, len(keys))
	for i, k := range keys {
		records[i] = domain.VoteRecord{
			Key:           k,
			Category:      category,
			CandidateName: candidate,
			SubmissionID:  id,
			RecordedAt:    now,
		}
	}
	return records
}

func seen(key string, at time.Time) domain.ActivityEntry {
	return domain.ActivityEntry{Key: key, LastSeen: at}
}

// runVoteStoreSuite exercises the VoteStore contract against any backend
func runVoteStoreSuite(t *testing.T, newStore func(t *testing.T) VoteStore) {
	t.Run("records every key and tallies once per key", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		keys := []domain.IdentityKey{key(domain.DimensionComposite, "c1"), key(domain.DimensionNetwork, "n1")}
		require.NoError(t, store.InsertVotes(ctx, submission(domain.CategoryKing, "Alice", keys...)))

		for _, k := range keys {
			voted, err := store.HasVoted(ctx, k, domain.CategoryKing)
			require.NoError(t, err)
			assert.True(t, voted, k.Value)

			voted, err = store.HasVoted(ctx, k, domain.CategoryQueen)
			require.NoError(t, err)
			assert.False(t, voted, k.Value)
		}

		tallies, err := store.Tallies(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), tallies[domain.CategoryKing].Total)
		assert.Equal(t, map[string]int64{"Alice": 2}, tallies[domain.CategoryKing].Candidates)
		assert.Equal(t, int64(0), tallies[domain.CategoryQueen].Total)
		assert.Len(t, tallies, len(domain.Categories()))
	})

	t.Run("overlapping submission is rejected whole", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		network := key(domain.DimensionNetwork, "shared")
		require.NoError(t, store.InsertVotes(ctx, submission(domain.CategoryPrince, "Bob",
			key(domain.DimensionComposite, "first"), network)))

		fresh := key(domain.DimensionComposite, "second")
		fingerprint := key(domain.DimensionFingerprint, "fp2")
		err := store.InsertVotes(ctx, submission(domain.CategoryPrince, "Carol", fresh, network, fingerprint))

		var dup *domain.DuplicateVoteError
		require.True(t, errors.As(err, &dup), "got %v", err)
		assert.Equal(t, domain.DimensionNetwork, dup.Dimension)
		assert.Equal(t, domain.CategoryPrince, dup.Category)
		assert.ErrorIs(t, err, domain.ErrDuplicateVote)

		for _, k := range []domain.IdentityKey{fresh, fingerprint} {
			voted, err := store.HasVoted(ctx, k, domain.CategoryPrince)
			require.NoError(t, err)
			assert.False(t, voted, "%s must not be recorded", k.Value)
		}

		tallies, err := store.Tallies(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), tallies[domain.CategoryPrince].Total)
		assert.Equal(t, map[string]int64{"Bob": 2}, tallies[domain.CategoryPrince].Candidates)
	})

	t.Run("reported dimension follows resolution order", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		fingerprint := key(domain.DimensionFingerprint, "zz")
		network := key(domain.DimensionNetwork, "aa")
		require.NoError(t, store.InsertVotes(ctx, submission(domain.CategoryQueen, "", fingerprint)))
		require.NoError(t, store.InsertVotes(ctx, submission(domain.CategoryQueen, "", network)))

		err := store.InsertVotes(ctx, submission(domain.CategoryQueen, "Dana", fingerprint, network))
		var dup *domain.DuplicateVoteError
		require.True(t, errors.As(err, &dup), "got %v", err)
		assert.Equal(t, domain.DimensionFingerprint, dup.Dimension)
	})

	t.Run("vote without candidate counts toward total only", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.InsertVotes(ctx, submission(domain.CategoryPrincess, "", key(domain.DimensionDevice, "d1"))))
		require.NoError(t, store.InsertVotes(ctx, submission(domain.CategoryPrincess, "Eve", key(domain.DimensionDevice, "d2"))))

		tallies, err := store.Tallies(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), tallies[domain.CategoryPrincess].Total)
		assert.Equal(t, map[string]int64{"Eve": 1}, tallies[domain.CategoryPrincess].Candidates)
	})

	t.Run("reset clears ledger and tallies", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		k := key(domain.DimensionDevice, "d1")
		for _, c := range domain.Categories() {
			require.NoError(t, store.InsertVotes(ctx, submission(c, "Frank", k)))
		}
		require.NoError(t, store.Reset(ctx))

		tallies, err := store.Tallies(ctx)
		require.NoError(t, err)
		for _, c := range domain.Categories() {
			assert.Equal(t, int64(0), tallies[c].Total, c)
			assert.Empty(t, tallies[c].Candidates, c)
		}

		voted, err := store.HasVoted(ctx, k, domain.CategoryKing)
		require.NoError(t, err)
		assert.False(t, voted)
		require.NoError(t, store.InsertVotes(ctx, submission(domain.CategoryKing, "Frank", k)))
	})

	t.Run("concurrent submissions sharing a key accept exactly one", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		const workers = 32
		shared := key(domain.DimensionNetwork, "10.0.0.1")

		var (
			wg       sync.WaitGroup
			accepted atomic.Int64
			rejected atomic.Int64
		)
		start := make(chan struct{})
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				records := submission(domain.CategoryBestCostumeMale, "Gina",
					key(domain.DimensionComposite, fmt.Sprintf("worker-%d", i)), shared)
				err := store.InsertVotes(ctx, records)
				switch {
				case err == nil:
					accepted.Add(1)
				case errors.Is(err, domain.ErrDuplicateVote):
					rejected.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int64(1), accepted.Load())
		assert.Equal(t, int64(workers-1), rejected.Load())

		tallies, err := store.Tallies(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), tallies[domain.CategoryBestCostumeMale].Total)
	})

	t.Run("readers never see part of a submission", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		const (
			writers = 4
			rounds  = 25
		)
		var wg sync.WaitGroup
		done := make(chan struct{})
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < rounds; i++ {
					id := fmt.Sprintf("w%d-%d", w, i)
					err := store.InsertVotes(ctx, submission(domain.CategoryKing, "Ivan",
						key(domain.DimensionComposite, id), key(domain.DimensionNetwork, id), key(domain.DimensionFingerprint, id)))
					assert.NoError(t, err)
				}
			}(w)
		}
		go func() {
			wg.Wait()
			close(done)
		}()

		for polling := true; polling; {
			select {
			case <-done:
				polling = false
			default:
			}
			tallies, err := store.Tallies(ctx)
			require.NoError(t, err)
			king := tallies[domain.CategoryKing]
			assert.Zero(t, king.Total%3, "partial submission visible: total %d", king.Total)
			assert.Equal(t, king.Total, king.Candidates["Ivan"])
		}

		tallies, err := store.Tallies(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(writers*rounds*3), tallies[domain.CategoryKing].Total)
	})

	t.Run("concurrent disjoint submissions all land", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		const workers = 24
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				category := domain.Categories()[i%len(domain.Categories())]
				err := store.InsertVotes(ctx, submission(category, "Hank",
					key(domain.DimensionDevice, fmt.Sprintf("d-%d", i))))
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		tallies, err := store.Tallies(ctx)
		require.NoError(t, err)
		var total int64
		for _, tally := range tallies {
			total += tally.Total
		}
		assert.Equal(t, int64(workers), total)
	})
}

// runActivityStoreSuite exercises the ActivityStore contract against any backend
func runActivityStoreSuite(t *testing.T, newStore func(t *testing.T) ActivityStore) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("counts keys seen after cutoff", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Touch(ctx, seen("device:a", base)))
		require.NoError(t, store.Touch(ctx, seen("device:b", base.Add(10*time.Second))))
		require.NoError(t, store.Touch(ctx, seen("device:a", base.Add(20*time.Second))))

		n, err := store.CountSince(ctx, base.Add(-time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = store.CountSince(ctx, base.Add(15*time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = store.CountSince(ctx, base.Add(20*time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})

	t.Run("prune removes stale keys", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Touch(ctx, seen("device:a", base)))
		require.NoError(t, store.Touch(ctx, seen("device:b", base.Add(time.Minute))))

		removed, err := store.Prune(ctx, base)
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		n, err := store.CountSince(ctx, base.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("reset forgets everything", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Touch(ctx, seen("device:a", base)))
		require.NoError(t, store.Reset(ctx))

		n, err := store.CountSince(ctx, base.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})
}
