package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"live-voting/internal/domain"
	"live-voting/pkg/database"
)

// PostgresVoteRepository stores the ledger in votes and the projection in vote_tallies.
// Uniqueness rides on the votes_identity_category_key constraint.
type PostgresVoteRepository struct {
	db *database.PostgresDB
}

// NewPostgresVoteRepository creates a new vote repository
func NewPostgresVoteRepository(db *database.PostgresDB) *PostgresVoteRepository {
	return &PostgresVoteRepository{db: db}
}

// HasVoted reports whether key already has a record for category
func (r *PostgresVoteRepository) HasVoted(ctx context.Context, key domain.IdentityKey, category domain.Category) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM votes WHERE identity_key = $1 AND category = $2)`

	var exists bool
	if err := r.db.Pool.QueryRow(ctx, query, key.Value, string(category)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check vote: %w", err)
	}
	return exists, nil
}

// InsertVotes records all records and bumps the tally in one transaction
func (r *PostgresVoteRepository) InsertVotes(ctx context.Context, records []domain.VoteRecord) error {
	if len(records) == 0 {
		return nil
	}

	// insert in key order so two overlapping submissions wait on each other instead of deadlocking
	ordered := make([]domain.VoteRecord, len(records))
	copy(ordered, records)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Key.Value < ordered[j].Key.Value })

	category := string(records[0].Category)
	candidate := records[0].CandidateName

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		insert := `
			INSERT INTO votes (identity_key, dimension, category, candidate_name, submission_id, created_at)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
			ON CONFLICT (identity_key, category) DO NOTHING
		`
		for _, rec := range ordered {
			tag, err := tx.Exec(ctx, insert,
				rec.Key.Value,
				string(rec.Key.Dimension),
				category,
				rec.CandidateName,
				rec.SubmissionID,
				rec.RecordedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert vote: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return r.conflictFor(ctx, tx, records, rec)
			}
		}

		upsert := `
			INSERT INTO vote_tallies (category, candidate_name, vote_count, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (category, candidate_name) DO UPDATE SET
				vote_count = vote_tallies.vote_count + EXCLUDED.vote_count,
				updated_at = NOW()
		`
		if _, err := tx.Exec(ctx, upsert, category, candidate, int64(len(records))); err != nil {
			return fmt.Errorf("failed to update tally: %w", err)
		}
		return nil
	})
}

// conflictFor finds every key of the submission recorded by an earlier submission,
// so the reported dimension follows resolution order rather than insert order
func (r *PostgresVoteRepository) conflictFor(ctx context.Context, tx pgx.Tx, records []domain.VoteRecord, hit domain.VoteRecord) error {
	values := make([]string, len(records))
	for i, rec := range records {
		values[i] = rec.Key.Value
	}

	rows, err := tx.Query(ctx,
		`SELECT identity_key FROM votes
		 WHERE category = $1 AND identity_key = ANY($2) AND submission_id <> $3::uuid`,
		string(hit.Category), values, hit.SubmissionID)
	if err != nil {
		return fmt.Errorf("failed to look up conflicting votes: %w", err)
	}
	defer rows.Close()

	conflicting := map[string]bool{hit.Key.Value: true}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return fmt.Errorf("failed to scan conflicting vote: %w", err)
		}
		conflicting[key] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read conflicting votes: %w", err)
	}

	return firstConflict(records, conflicting)
}

// Tallies reads the projection in one statement
func (r *PostgresVoteRepository) Tallies(ctx context.Context) (domain.Tallies, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT category, candidate_name, vote_count FROM vote_tallies`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tallies: %w", err)
	}
	defer rows.Close()

	tallies := domain.NewTallies()
	for rows.Next() {
		var (
			category  string
			candidate string
			count     int64
		)
		if err := rows.Scan(&category, &candidate, &count); err != nil {
			return nil, fmt.Errorf("failed to scan tally: %w", err)
		}
		c := domain.Category(category)
		if !c.Valid() {
			continue
		}
		tallies.Add(c, candidate, count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tallies: %w", err)
	}

	return tallies, nil
}

// Reset truncates the ledger and the projection together
func (r *PostgresVoteRepository) Reset(ctx context.Context) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `TRUNCATE votes, vote_tallies`); err != nil {
			return fmt.Errorf("failed to reset votes: %w", err)
		}
		return nil
	})
}

// Health checks the database connection
func (r *PostgresVoteRepository) Health(ctx context.Context) error {
	return r.db.Health(ctx)
}
