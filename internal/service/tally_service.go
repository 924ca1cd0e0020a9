package service

import (
	"context"
	"math"
	"sort"
	"strings"

	"live-voting/internal/domain"
	"live-voting/internal/repository"
)

// TallyService serves counts and results from the store's tally projection
type TallyService struct {
	store repository.VoteStore
}

// NewTallyService creates a tally service over store
func NewTallyService(store repository.VoteStore) *TallyService {
	return &TallyService{store: store}
}

// Counts returns the per-category totals and their sum
func (s *TallyService) Counts(ctx context.Context) (domain.VoteCounts, error) {
	tallies, err := s.store.Tallies(ctx)
	if err != nil {
		return domain.ZeroCounts(), domain.BackendUnavailable("counts", err)
	}
	return CountsFromTallies(tallies), nil
}

// Results returns the leading candidate summary of every category
func (s *TallyService) Results(ctx context.Context) (map[domain.Category]domain.ResultSummary, error) {
	tallies, err := s.store.Tallies(ctx)
	if err != nil {
		return ResultsFromTallies(domain.NewTallies()), domain.BackendUnavailable("results", err)
	}
	return ResultsFromTallies(tallies), nil
}

// CountsFromTallies reduces a snapshot to totals. total is the sum of the
// category totals of the same snapshot.
func CountsFromTallies(tallies domain.Tallies) domain.VoteCounts {
	counts := domain.ZeroCounts()
	for _, c := range domain.Categories() {
		n := tallies[c].Total
		counts.ByCategory[c] = n
		counts.Total += n
	}
	return counts
}

// ResultsFromTallies summarises every category of a snapshot
func ResultsFromTallies(tallies domain.Tallies) map[domain.Category]domain.ResultSummary {
	results := make(map[domain.Category]domain.ResultSummary, len(domain.Categories()))
	for _, c := range domain.Categories() {
		results[c] = Summarize(tallies[c])
	}
	return results
}

// Summarize finds the leader of one category. Tied leaders are all named,
// sorted, as "Tie: A, B".
func Summarize(t domain.Tally) domain.ResultSummary {
	all := make(map[string]int64, len(t.Candidates))
	var top int64
	for name, n := range t.Candidates {
		if n <= 0 {
			continue
		}
		all[name] = n
		if n > top {
			top = n
		}
	}

	summary := domain.ResultSummary{
		TotalVotes:    t.Total,
		AllCandidates: all,
	}
	if top == 0 {
		summary.LeadingCandidate = domain.NoVotesYet
		summary.LeadingCandidates = []string{}
		return summary
	}

	leaders := make([]string, 0, 1)
	for name, n := range all {
		if n == top {
			leaders = append(leaders, name)
		}
	}
	sort.Strings(leaders)

	summary.LeadingCandidates = leaders
	summary.Votes = top
	summary.IsTie = len(leaders) > 1
	if summary.IsTie {
		summary.LeadingCandidate = "Tie: " + strings.Join(leaders, ", ")
	} else {
		summary.LeadingCandidate = leaders[0]
	}
	summary.Percentage = percentage(top, t.Total)
	return summary
}

// percentage is part/total*100 rounded to one decimal, 0 for an empty total
func percentage(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}
