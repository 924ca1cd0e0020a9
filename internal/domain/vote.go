package domain

import (
	"encoding/json"
	"time"
)

// MaxCandidateNameLength matches the candidate_name column width
const MaxCandidateNameLength = 255

// NoVotesYet is reported as the leading candidate of an empty category
const NoVotesYet = "No votes yet"

// VoteRecord is one ledger fact. At most one exists per (identity key, category).
type VoteRecord struct {
	Key           IdentityKey `json:"key"`
	Category      Category    `json:"category"`
	CandidateName string      `json:"candidate_name,omitempty"`
	SubmissionID  string      `json:"submission_id"`
	RecordedAt    time.Time   `json:"recorded_at"`
}

// Tally is the aggregate of one category. Candidates only holds named votes;
// Total also counts votes cast without a candidate.
type Tally struct {
	Total      int64            `json:"total"`
	Candidates map[string]int64 `json:"candidates"`
}

// Tallies is a point-in-time snapshot of every category
type Tallies map[Category]Tally

// NewTallies returns a zeroed snapshot covering every category
func NewTallies() Tallies {
	t := make(Tallies, len(allCategories))
	for _, c := range allCategories {
		t[c] = Tally{Candidates: map[string]int64{}}
	}
	return t
}

// Add folds count votes for candidate into the snapshot
func (t Tallies) Add(category Category, candidate string, count int64) {
	tally, ok := t[category]
	if !ok || tally.Candidates == nil {
		tally = Tally{Candidates: map[string]int64{}}
	}
	tally.Total += count
	if candidate != "" {
		tally.Candidates[candidate] += count
	}
	t[category] = tally
}

// VoteCounts is the per-category total plus the overall total
type VoteCounts struct {
	ByCategory map[Category]int64
	Total      int64
}

// ZeroCounts returns counts for every category set to zero
func ZeroCounts() VoteCounts {
	counts := VoteCounts{ByCategory: make(map[Category]int64, len(allCategories))}
	for _, c := range allCategories {
		counts.ByCategory[c] = 0
	}
	return counts
}

// MarshalJSON flattens the counts into {"King": n, ..., "total": n}
func (c VoteCounts) MarshalJSON() ([]byte, error) {
	flat := make(map[string]int64, len(c.ByCategory)+1)
	for category, n := range c.ByCategory {
		flat[string(category)] = n
	}
	flat["total"] = c.Total
	return json.Marshal(flat)
}

// ResultSummary describes the leader of one category
type ResultSummary struct {
	LeadingCandidate  string           `json:"leading_candidate"`
	LeadingCandidates []string         `json:"leading_candidates"`
	IsTie             bool             `json:"is_tie"`
	Votes             int64            `json:"votes"`
	TotalVotes        int64            `json:"total_votes"`
	Percentage        float64          `json:"percentage"`
	AllCandidates     map[string]int64 `json:"all_candidates"`
}

// VoteOutcome is returned for an accepted submission
type VoteOutcome struct {
	Accepted     bool          `json:"accepted"`
	SubmissionID string        `json:"submission_id"`
	Category     Category      `json:"category"`
	Candidate    string        `json:"candidate,omitempty"`
	Keys         []IdentityKey `json:"-"`
	RecordedAt   time.Time     `json:"recorded_at"`
}

// DeviceRegistration is the result of registering a new device
type DeviceRegistration struct {
	DeviceID    string `json:"device_id"`
	DisplayName string `json:"display_name,omitempty"`
}

// VoteRequest is the wire body of a vote submission
type VoteRequest struct {
	DeviceToken   string `json:"device_token"`
	Category      string `json:"category"`
	CandidateName string `json:"candidate_name"`
	Fingerprint   string `json:"fingerprint"`
	SessionKey    string `json:"session_key"`
	Timestamp     int64  `json:"timestamp"`
}

// RegisterDeviceRequest is the wire body of a device registration
type RegisterDeviceRequest struct {
	DisplayName string `json:"display_name"`
}

// HeartbeatRequest refreshes a device's activity without voting
type HeartbeatRequest struct {
	DeviceToken string `json:"device_token"`
}

// ViewerStats is served to dashboards polling for audience size
type ViewerStats struct {
	ConcurrentUsers int64 `json:"concurrent_users"`
	TotalVotes      int64 `json:"total_votes"`
}
