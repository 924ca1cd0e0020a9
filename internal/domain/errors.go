package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrUnknownCategory     = errors.New("unknown category")
	ErrDuplicateVote       = errors.New("already voted for this category")
	ErrRequestExpired      = errors.New("request expired")
	ErrInvalidSecurityData = errors.New("invalid security data")
	ErrInvalidCandidate    = errors.New("invalid candidate name")
	ErrBackendUnavailable  = errors.New("vote storage unavailable")
)

// DuplicateVoteError reports which identity dimension blocked a submission
type DuplicateVoteError struct {
	Dimension Dimension
	Category  Category
}

func (e *DuplicateVoteError) Error() string {
	return fmt.Sprintf("%s: %s already used for %s", ErrDuplicateVote.Error(), e.Dimension.Describe(), e.Category)
}

// Is lets errors.Is(err, ErrDuplicateVote) match any dimension
func (e *DuplicateVoteError) Is(target error) bool {
	return target == ErrDuplicateVote
}

// Reason is the human-readable explanation surfaced to voters
func (e *DuplicateVoteError) Reason() string {
	return fmt.Sprintf("This %s has already voted for %s", e.Dimension.Describe(), e.Category)
}

// InvalidSecurityData wraps ErrInvalidSecurityData with the offending field
func InvalidSecurityData(field, problem string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidSecurityData, field, problem)
}

// BackendUnavailable wraps a store failure so callers can match ErrBackendUnavailable
func BackendUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, op, err)
}
