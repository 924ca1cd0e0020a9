package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"live-voting/internal/domain"
	"live-voting/pkg/redis"
)

// recordVotesScript checks every identity key of a submission and records them all
// only when none is present. It returns the keys that blocked the submission.
//
// KEYS[1] ledger hash, KEYS[2] tally hash, KEYS[3] totals hash
// ARGV[1] category, ARGV[2] candidate, ARGV[3] submission id, ARGV[4..] identity keys
var recordVotesScript = goredis.NewScript(`
local blocked = {}
for i = 4, #ARGV do
  if redis.call("HEXISTS", KEYS[1], ARGV[i]) == 1 then
    blocked[#blocked + 1] = ARGV[i]
  end
end
if #blocked > 0 then
  return blocked
end
local n = 0
for i = 4, #ARGV do
  redis.call("HSET", KEYS[1], ARGV[i], ARGV[3])
  n = n + 1
end
if ARGV[2] ~= "" then
  redis.call("HINCRBY", KEYS[2], ARGV[2], n)
end
redis.call("HINCRBY", KEYS[3], ARGV[1], n)
return blocked
`)

// RedisVoteStore keeps the ledger in one hash per category
type RedisVoteStore struct {
	client *redis.Client
}

// NewRedisVoteStore creates a vote store on client
func NewRedisVoteStore(client *redis.Client) *RedisVoteStore {
	return &RedisVoteStore{client: client}
}

// HasVoted reports whether key already has a record for category
func (s *RedisVoteStore) HasVoted(ctx context.Context, key domain.IdentityKey, category domain.Category) (bool, error) {
	ok, err := s.client.HExists(ctx, s.client.KeyBuilder.KeyLedger(string(category)), key.Value)
	if err != nil {
		return false, fmt.Errorf("failed to check vote: %w", err)
	}
	return ok, nil
}

// InsertVotes records all records in a single script run
func (s *RedisVoteStore) InsertVotes(ctx context.Context, records []domain.VoteRecord) error {
	if len(records) == 0 {
		return nil
	}
	first := records[0]
	kb := s.client.KeyBuilder

	keys := []string{
		kb.KeyLedger(string(first.Category)),
		kb.KeyTally(string(first.Category)),
		kb.KeyVoteTotals(),
	}
	args := make([]interface{}, 0, 3+len(records))
	args = append(args, string(first.Category), first.CandidateName, first.SubmissionID)
	for _, r := range records {
		args = append(args, r.Key.Value)
	}

	res, err := s.client.RunScript(ctx, recordVotesScript, keys, args...)
	if err != nil {
		return fmt.Errorf("failed to record votes: %w", err)
	}

	blocked, ok := res.([]interface{})
	if !ok {
		return fmt.Errorf("unexpected script reply %T", res)
	}
	if len(blocked) == 0 {
		return nil
	}

	conflicting := make(map[string]bool, len(blocked))
	for _, v := range blocked {
		if key, ok := v.(string); ok {
			conflicting[key] = true
		}
	}
	if dup := firstConflict(records, conflicting); dup != nil {
		return dup
	}
	return fmt.Errorf("script rejected votes without naming a key")
}

// Tallies reads every hash inside MULTI so totals and candidates agree
func (s *RedisVoteStore) Tallies(ctx context.Context) (domain.Tallies, error) {
	kb := s.client.KeyBuilder
	categories := domain.Categories()

	pipe := s.client.TxPipeline()
	totals := pipe.HGetAll(ctx, kb.KeyVoteTotals())
	perCategory := make([]*goredis.MapStringStringCmd, len(categories))
	for i, c := range categories {
		perCategory[i] = pipe.HGetAll(ctx, kb.KeyTally(string(c)))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read tallies: %w", err)
	}

	tallies := domain.NewTallies()
	for i, c := range categories {
		tally := tallies[c]
		for name, raw := range perCategory[i].Val() {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid tally for %s: %w", c, err)
			}
			tally.Candidates[name] = n
		}
		if raw, ok := totals.Val()[string(c)]; ok {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid total for %s: %w", c, err)
			}
			tally.Total = n
		}
		tallies[c] = tally
	}
	return tallies, nil
}

// Reset deletes every ledger and tally hash in one DEL
func (s *RedisVoteStore) Reset(ctx context.Context) error {
	kb := s.client.KeyBuilder
	keys := []string{kb.KeyVoteTotals()}
	for _, c := range domain.Categories() {
		keys = append(keys, kb.KeyLedger(string(c)), kb.KeyTally(string(c)))
	}
	if err := s.client.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to reset votes: %w", err)
	}
	return nil
}

// Health checks the Redis connection
func (s *RedisVoteStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// RedisActivityStore scores identity keys by last-seen unix millis in one sorted set
type RedisActivityStore struct {
	client *redis.Client
}

// NewRedisActivityStore creates an activity store on client
func NewRedisActivityStore(client *redis.Client) *RedisActivityStore {
	return &RedisActivityStore{client: client}
}

// Touch sets the last-seen time of entry.Key
func (s *RedisActivityStore) Touch(ctx context.Context, entry domain.ActivityEntry) error {
	if err := s.client.ZAdd(ctx, s.client.KeyBuilder.KeyActivity(), float64(entry.LastSeen.UnixMilli()), entry.Key); err != nil {
		return fmt.Errorf("failed to touch activity: %w", err)
	}
	return nil
}

// CountSince counts keys seen strictly after cutoff
func (s *RedisActivityStore) CountSince(ctx context.Context, cutoff time.Time) (int64, error) {
	lo := "(" + strconv.FormatInt(cutoff.UnixMilli(), 10)
	n, err := s.client.ZCount(ctx, s.client.KeyBuilder.KeyActivity(), lo, "+inf")
	if err != nil {
		return 0, fmt.Errorf("failed to count active users: %w", err)
	}
	return n, nil
}

// Prune deletes keys last seen at or before cutoff
func (s *RedisActivityStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	hi := strconv.FormatInt(cutoff.UnixMilli(), 10)
	n, err := s.client.ZRemRangeByScore(ctx, s.client.KeyBuilder.KeyActivity(), "-inf", hi)
	if err != nil {
		return 0, fmt.Errorf("failed to prune active users: %w", err)
	}
	return n, nil
}

// Reset forgets every key
func (s *RedisActivityStore) Reset(ctx context.Context) error {
	if err := s.client.Delete(ctx, s.client.KeyBuilder.KeyActivity()); err != nil {
		return fmt.Errorf("failed to reset active users: %w", err)
	}
	return nil
}

// NewRedisStores wires the redis backend on one client
func NewRedisStores(client *redis.Client) Stores {
	return Stores{
		Votes:    NewRedisVoteStore(client),
		Activity: NewRedisActivityStore(client),
		Close:    client.Close,
	}
}
