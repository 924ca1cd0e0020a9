package repository

import (
	"context"
	"hash/maphash"
	"sort"
	"sync"
	"time"

	"live-voting/internal/domain"
)

const stripeCount = 256

type ledgerKey struct {
	key      string
	category domain.Category
}

type stripe struct {
	mu      sync.Mutex
	records map[ledgerKey]domain.VoteRecord
}

// categoryTally guards one category's counters; categories never contend
type categoryTally struct {
	mu         sync.Mutex
	total      int64
	candidates map[string]int64
}

func newCategoryTally() *categoryTally {
	return &categoryTally{candidates: make(map[string]int64)}
}

// add counts a whole submission in one step so readers never see part of it
func (t *categoryTally) add(candidate string, n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if candidate != "" {
		t.candidates[candidate] += n
	}
	t.total += n
}

func (t *categoryTally) snapshot() domain.Tally {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := domain.Tally{Total: t.total, Candidates: make(map[string]int64, len(t.candidates))}
	for name, n := range t.candidates {
		out.Candidates[name] = n
	}
	return out
}

// MemoryVoteStore keeps the ledger in process behind striped locks.
// Writers on different stripes never contend; Reset takes the store lock exclusively.
type MemoryVoteStore struct {
	mu      sync.RWMutex
	seed    maphash.Seed
	stripes [stripeCount]stripe
	tallies map[domain.Category]*categoryTally
}

// NewMemoryVoteStore creates an empty in-process vote store
func NewMemoryVoteStore() *MemoryVoteStore {
	s := &MemoryVoteStore{seed: maphash.MakeSeed()}
	for i := range s.stripes {
		s.stripes[i].records = make(map[ledgerKey]domain.VoteRecord)
	}
	s.tallies = newCategoryTallies()
	return s
}

func newCategoryTallies() map[domain.Category]*categoryTally {
	tallies := make(map[domain.Category]*categoryTally)
	for _, c := range domain.Categories() {
		tallies[c] = newCategoryTally()
	}
	return tallies
}

func (s *MemoryVoteStore) stripeFor(k ledgerKey) int {
	var h maphash.Hash
	h.SetSeed(s.seed)
	_, _ = h.WriteString(k.key)
	_ = h.WriteByte(0)
	_, _ = h.WriteString(string(k.category))
	return int(h.Sum64() % stripeCount)
}

// HasVoted reports whether key already has a record for category
func (s *MemoryVoteStore) HasVoted(_ context.Context, key domain.IdentityKey, category domain.Category) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lk := ledgerKey{key: key.Value, category: category}
	st := &s.stripes[s.stripeFor(lk)]
	st.mu.Lock()
	_, ok := st.records[lk]
	st.mu.Unlock()
	return ok, nil
}

// InsertVotes records all records or none
func (s *MemoryVoteStore) InsertVotes(_ context.Context, records []domain.VoteRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	tally, ok := s.tallies[records[0].Category]
	if !ok {
		return domain.ErrUnknownCategory
	}

	keys := make([]ledgerKey, len(records))
	set := make(map[int]struct{}, len(records))
	for i, r := range records {
		keys[i] = ledgerKey{key: r.Key.Value, category: r.Category}
		set[s.stripeFor(keys[i])] = struct{}{}
	}
	order := make([]int, 0, len(set))
	for idx := range set {
		order = append(order, idx)
	}
	// ascending order so overlapping submissions cannot deadlock
	sort.Ints(order)
	for _, idx := range order {
		s.stripes[idx].mu.Lock()
	}
	defer func() {
		for i := len(order) - 1; i >= 0; i-- {
			s.stripes[order[i]].mu.Unlock()
		}
	}()

	var conflicting map[string]bool
	for _, lk := range keys {
		if _, exists := s.stripes[s.stripeFor(lk)].records[lk]; exists {
			if conflicting == nil {
				conflicting = make(map[string]bool)
			}
			conflicting[lk.key] = true
		}
	}
	if conflicting != nil {
		return firstConflict(records, conflicting)
	}

	for i, lk := range keys {
		s.stripes[s.stripeFor(lk)].records[lk] = records[i]
	}
	// counters move only after every record is visible
	tally.add(records[0].CandidateName, int64(len(records)))
	return nil
}

// Tallies returns a snapshot of every category
func (s *MemoryVoteStore) Tallies(_ context.Context) (domain.Tallies, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := domain.NewTallies()
	for category, t := range s.tallies {
		out[category] = t.snapshot()
	}
	return out, nil
}

// Reset removes every record and zeroes every tally
func (s *MemoryVoteStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.stripes {
		s.stripes[i].records = make(map[ledgerKey]domain.VoteRecord)
	}
	s.tallies = newCategoryTallies()
	return nil
}

// Health always succeeds for the in-process store
func (s *MemoryVoteStore) Health(_ context.Context) error {
	return nil
}

// Len returns the number of ledger records, used by tests and diagnostics
func (s *MemoryVoteStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for i := range s.stripes {
		n += len(s.stripes[i].records)
	}
	return n
}

// MemoryActivityStore keeps last-seen times in process
type MemoryActivityStore struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewMemoryActivityStore creates an empty in-process activity store
func NewMemoryActivityStore() *MemoryActivityStore {
	return &MemoryActivityStore{lastSeen: make(map[string]time.Time)}
}

// Touch sets the last-seen time of entry.Key
func (s *MemoryActivityStore) Touch(_ context.Context, entry domain.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSeen[entry.Key] = entry.LastSeen
	return nil
}

// CountSince counts keys seen strictly after cutoff
func (s *MemoryActivityStore) CountSince(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, seen := range s.lastSeen {
		if seen.After(cutoff) {
			n++
		}
	}
	return n, nil
}

// Prune deletes keys last seen at or before cutoff
func (s *MemoryActivityStore) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, seen := range s.lastSeen {
		if !seen.After(cutoff) {
			delete(s.lastSeen, key)
			n++
		}
	}
	return n, nil
}

// Reset forgets every key
func (s *MemoryActivityStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSeen = make(map[string]time.Time)
	return nil
}

// NewMemoryStores wires the in-process backend
func NewMemoryStores() Stores {
	return Stores{
		Votes:    NewMemoryVoteStore(),
		Activity: NewMemoryActivityStore(),
	}
}
