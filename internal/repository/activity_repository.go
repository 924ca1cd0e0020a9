package repository

import (
	"context"
	"fmt"
	"time"

	"live-voting/internal/domain"
	"live-voting/pkg/database"
)

// postgresActivityRepository tracks last-seen times in active_users
type postgresActivityRepository struct {
	db *database.PostgresDB
}

// NewPostgresActivityRepository creates a new activity repository
func NewPostgresActivityRepository(db *database.PostgresDB) ActivityStore {
	return &postgresActivityRepository{db: db}
}

// Touch upserts the last-seen time of entry.Key
func (r *postgresActivityRepository) Touch(ctx context.Context, entry domain.ActivityEntry) error {
	query := `
		INSERT INTO active_users (identity_key, last_seen)
		VALUES ($1, $2)
		ON CONFLICT (identity_key) DO UPDATE SET
			last_seen = GREATEST(active_users.last_seen, EXCLUDED.last_seen)
	`
	if _, err := r.db.Pool.Exec(ctx, query, entry.Key, entry.LastSeen); err != nil {
		return fmt.Errorf("failed to touch activity: %w", err)
	}
	return nil
}

// CountSince counts keys seen strictly after cutoff
func (r *postgresActivityRepository) CountSince(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM active_users WHERE last_seen > $1`, cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active users: %w", err)
	}
	return count, nil
}

// Prune deletes keys last seen at or before cutoff
func (r *postgresActivityRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM active_users WHERE last_seen <= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune active users: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Reset forgets every key
func (r *postgresActivityRepository) Reset(ctx context.Context) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM active_users`); err != nil {
		return fmt.Errorf("failed to reset active users: %w", err)
	}
	return nil
}

// NewPostgresStores wires the postgres backend on one pool
func NewPostgresStores(db *database.PostgresDB) Stores {
	return Stores{
		Votes:    NewPostgresVoteRepository(db),
		Activity: NewPostgresActivityRepository(db),
		Close: func() error {
			db.Close()
			return nil
		},
	}
}
