package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"live-voting/internal/domain"
)

type voteRow struct {
	ID            uint   `gorm:"primaryKey"`
	IdentityKey   string `gorm:"size:160;not null;uniqueIndex:idx_votes_identity_category"`
	Dimension     string `gorm:"size:32;not null"`
	Category      string `gorm:"size:100;not null;uniqueIndex:idx_votes_identity_category;index"`
	CandidateName string `gorm:"size:255"`
	SubmissionID  string `gorm:"size:36;not null;index"`
	CreatedAt     time.Time
}

func (voteRow) TableName() string { return "votes" }

type tallyRow struct {
	Category      string `gorm:"primaryKey;size:100"`
	CandidateName string `gorm:"primaryKey;size:255"`
	VoteCount     int64  `gorm:"not null;default:0"`
	UpdatedAt     time.Time
}

func (tallyRow) TableName() string { return "vote_tallies" }

// LastSeen is unix millis so range filters compare integers
type activityRow struct {
	IdentityKey string `gorm:"primaryKey;size:160"`
	LastSeen    int64  `gorm:"not null;index"`
}

func (activityRow) TableName() string { return "active_users" }

// OpenSQLite opens the database file at path. A single connection serialises
// writers, which sqlite does anyway, and keeps ":memory:" databases shared.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

// MigrateSQLite creates or updates the sqlite tables
func MigrateSQLite(db *gorm.DB) error {
	return db.AutoMigrate(&voteRow{}, &tallyRow{}, &activityRow{})
}

// DropSQLite removes the sqlite tables
func DropSQLite(db *gorm.DB) error {
	return db.Migrator().DropTable(&voteRow{}, &tallyRow{}, &activityRow{})
}

// SQLiteVoteStore keeps the ledger in an embedded sqlite database
type SQLiteVoteStore struct {
	db *gorm.DB
}

// NewSQLiteVoteStore creates a vote store on a migrated database
func NewSQLiteVoteStore(db *gorm.DB) *SQLiteVoteStore {
	return &SQLiteVoteStore{db: db}
}

// HasVoted reports whether key already has a record for category
func (s *SQLiteVoteStore) HasVoted(ctx context.Context, key domain.IdentityKey, category domain.Category) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&voteRow{}).
		Where("identity_key = ? AND category = ?", key.Value, string(category)).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check vote: %w", err)
	}
	return n > 0, nil
}

// InsertVotes records all records and bumps the tally in one transaction
func (s *SQLiteVoteStore) InsertVotes(ctx context.Context, records []domain.VoteRecord) error {
	if len(records) == 0 {
		return nil
	}
	category := string(records[0].Category)
	candidate := records[0].CandidateName

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range records {
			row := voteRow{
				IdentityKey:   rec.Key.Value,
				Dimension:     string(rec.Key.Dimension),
				Category:      category,
				CandidateName: rec.CandidateName,
				SubmissionID:  rec.SubmissionID,
				CreatedAt:     rec.RecordedAt,
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
			if res.Error != nil {
				return fmt.Errorf("failed to insert vote: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return s.conflictFor(tx, records)
			}
		}

		tally := tallyRow{
			Category:      category,
			CandidateName: candidate,
			VoteCount:     int64(len(records)),
			UpdatedAt:     time.Now(),
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "category"}, {Name: "candidate_name"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"vote_count": gorm.Expr("vote_count + ?", tally.VoteCount),
				"updated_at": tally.UpdatedAt,
			}),
		}).Create(&tally).Error
		if err != nil {
			return fmt.Errorf("failed to update tally: %w", err)
		}
		return nil
	})
}

func (s *SQLiteVoteStore) conflictFor(tx *gorm.DB, records []domain.VoteRecord) error {
	values := make([]string, len(records))
	for i, rec := range records {
		values[i] = rec.Key.Value
	}

	var hits []string
	err := tx.Model(&voteRow{}).
		Where("category = ? AND identity_key IN ? AND submission_id <> ?",
			string(records[0].Category), values, records[0].SubmissionID).
		Pluck("identity_key", &hits).Error
	if err != nil {
		return fmt.Errorf("failed to look up conflicting votes: %w", err)
	}

	conflicting := make(map[string]bool, len(hits))
	for _, h := range hits {
		conflicting[h] = true
	}
	if dup := firstConflict(records, conflicting); dup != nil {
		return dup
	}
	return fmt.Errorf("vote insert ignored without a conflicting row")
}

// Tallies reads the projection
func (s *SQLiteVoteStore) Tallies(ctx context.Context) (domain.Tallies, error) {
	var rows []tallyRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query tallies: %w", err)
	}

	tallies := domain.NewTallies()
	for _, row := range rows {
		c := domain.Category(row.Category)
		if !c.Valid() {
			continue
		}
		tallies.Add(c, row.CandidateName, row.VoteCount)
	}
	return tallies, nil
}

// Reset empties the ledger and the projection together
func (s *SQLiteVoteStore) Reset(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM votes").Error; err != nil {
			return fmt.Errorf("failed to reset votes: %w", err)
		}
		if err := tx.Exec("DELETE FROM vote_tallies").Error; err != nil {
			return fmt.Errorf("failed to reset tallies: %w", err)
		}
		return nil
	})
}

// Health pings the database
func (s *SQLiteVoteStore) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// SQLiteActivityStore tracks last-seen times in active_users
type SQLiteActivityStore struct {
	db *gorm.DB
}

// NewSQLiteActivityStore creates an activity store on a migrated database
func NewSQLiteActivityStore(db *gorm.DB) *SQLiteActivityStore {
	return &SQLiteActivityStore{db: db}
}

// Touch upserts the last-seen time of entry.Key
func (s *SQLiteActivityStore) Touch(ctx context.Context, entry domain.ActivityEntry) error {
	row := activityRow{IdentityKey: entry.Key, LastSeen: entry.LastSeen.UnixMilli()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to touch activity: %w", err)
	}
	return nil
}

// CountSince counts keys seen strictly after cutoff
func (s *SQLiteActivityStore) CountSince(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&activityRow{}).
		Where("last_seen > ?", cutoff.UnixMilli()).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count active users: %w", err)
	}
	return n, nil
}

// Prune deletes keys last seen at or before cutoff
func (s *SQLiteActivityStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("last_seen <= ?", cutoff.UnixMilli()).Delete(&activityRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune active users: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Reset forgets every key
func (s *SQLiteActivityStore) Reset(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("DELETE FROM active_users").Error; err != nil {
		return fmt.Errorf("failed to reset active users: %w", err)
	}
	return nil
}

// NewSQLiteStores opens and migrates the database at path and wires the sqlite backend
func NewSQLiteStores(path string) (Stores, error) {
	db, err := OpenSQLite(path)
	if err != nil {
		return Stores{}, err
	}
	if err := MigrateSQLite(db); err != nil {
		return Stores{}, fmt.Errorf("failed to migrate sqlite database: %w", err)
	}

	return Stores{
		Votes:    NewSQLiteVoteStore(db),
		Activity: NewSQLiteActivityStore(db),
		Close: func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	}, nil
}
