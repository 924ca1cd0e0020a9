package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// SchemaStatements creates the ledger, tally projection and activity tables
var SchemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS votes (
		id BIGSERIAL PRIMARY KEY,
		identity_key VARCHAR(160) NOT NULL,
		dimension VARCHAR(32) NOT NULL,
		category VARCHAR(100) NOT NULL,
		candidate_name VARCHAR(255),
		submission_id UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT votes_identity_category_key UNIQUE (identity_key, category)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_votes_category ON votes(category)`,
	`CREATE INDEX IF NOT EXISTS idx_votes_submission ON votes(submission_id)`,

	// candidate_name '' holds votes cast without a candidate
	`CREATE TABLE IF NOT EXISTS vote_tallies (
		category VARCHAR(100) NOT NULL,
		candidate_name VARCHAR(255) NOT NULL DEFAULT '',
		vote_count BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (category, candidate_name)
	)`,

	`CREATE TABLE IF NOT EXISTS active_users (
		identity_key VARCHAR(160) PRIMARY KEY,
		last_seen TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_active_users_last_seen ON active_users(last_seen)`,
}

// DropStatements removes every table created by SchemaStatements
var DropStatements = []string{
	`DROP TABLE IF EXISTS vote_tallies CASCADE`,
	`DROP TABLE IF EXISTS votes CASCADE`,
	`DROP TABLE IF EXISTS active_users CASCADE`,
}

// CreateSchema applies SchemaStatements; every statement is idempotent
func CreateSchema(ctx context.Context, db execer) error {
	return execAll(ctx, db, SchemaStatements)
}

// DropSchema applies DropStatements
func DropSchema(ctx context.Context, db execer) error {
	return execAll(ctx, db, DropStatements)
}

func execAll(ctx context.Context, db execer, statements []string) error {
	for _, query := range statements {
		if _, err := db.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w\nQuery: %s", err, query)
		}
	}
	return nil
}
