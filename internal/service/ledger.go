package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"live-voting/internal/domain"
	"live-voting/internal/repository"
)

// Ledger records accepted votes. Every key of a submission is recorded
// atomically with the tally increment, or nothing is.
type Ledger struct {
	store repository.VoteStore
	now   func() time.Time
	newID func() string
}

// NewLedger creates a ledger over store
func NewLedger(store repository.VoteStore) *Ledger {
	return &Ledger{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Record inserts a single-key vote
func (l *Ledger) Record(ctx context.Context, key domain.IdentityKey, category domain.Category, candidate string) (*domain.VoteRecord, error) {
	records, err := l.RecordAll(ctx, []domain.IdentityKey{key}, category, candidate)
	if err != nil {
		return nil, err
	}
	return &records[0], nil
}

// RecordAll inserts one record per distinct key under a shared submission id.
// A conflict on any key rejects the whole submission with *domain.DuplicateVoteError.
func (l *Ledger) RecordAll(ctx context.Context, keys []domain.IdentityKey, category domain.Category, candidate string) ([]domain.VoteRecord, error) {
	if !category.Valid() {
		return nil, domain.ErrUnknownCategory
	}
	candidate, err := NormalizeCandidate(candidate)
	if err != nil {
		return nil, err
	}

	keys = distinctKeys(keys)
	if len(keys) == 0 {
		return nil, domain.InvalidSecurityData("identity", "produced no keys")
	}

	submissionID := l.newID()
	recordedAt := l.now().UTC()
	records := make([]domain.VoteRecord, len(keys))
	for i, k := range keys {
		records[i] = domain.VoteRecord{
			Key:           k,
			Category:      category,
			CandidateName: candidate,
			SubmissionID:  submissionID,
			RecordedAt:    recordedAt,
		}
	}

	if err := l.store.InsertVotes(ctx, records); err != nil {
		if errors.Is(err, domain.ErrDuplicateVote) || errors.Is(err, domain.ErrUnknownCategory) {
			return nil, err
		}
		return nil, domain.BackendUnavailable("record vote", err)
	}
	return records, nil
}

// NormalizeCandidate trims the name and enforces the column width
func NormalizeCandidate(name string) (string, error) {
	name = strings.TrimSpace(name)
	if !utf8.ValidString(name) || utf8.RuneCountInString(name) > domain.MaxCandidateNameLength {
		return "", domain.ErrInvalidCandidate
	}
	return name, nil
}

func distinctKeys(keys []domain.IdentityKey) []domain.IdentityKey {
	seen := make(map[string]bool, len(keys))
	out := make([]domain.IdentityKey, 0, len(keys))
	for _, k := range keys {
		if k.Value == "" || seen[k.Value] {
			continue
		}
		seen[k.Value] = true
		out = append(out, k)
	}
	return out
}
