package redis

import "fmt"

// Key patterns, relative to the environment prefix
const (
	KeyPatternLedger   = "vote:ledger:%s" // hash identity_key -> submission id
	KeyPatternTally    = "vote:tally:%s"  // hash candidate_name -> count
	KeyVoteTotals      = "vote:totals"    // hash category -> count
	KeyActivityLastSet = "activity:last_seen"
)

// KeyBuilder provides environment-aware Redis key building functionality
type KeyBuilder struct {
	prefix string
}

// NewKeyBuilder creates a new key builder with environment-based prefix
func NewKeyBuilder(environment string) *KeyBuilder {
	prefix := "prod"
	switch environment {
	case "development", "staging":
		prefix = "staging"
	case "test":
		prefix = "test"
	}

	return &KeyBuilder{prefix: prefix}
}

// BuildKey constructs a Redis key with the environment prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// GetPrefix returns the current environment prefix
func (kb *KeyBuilder) GetPrefix() string {
	return kb.prefix
}

// KeyLedger is the per-category hash of identity keys that already voted
func (kb *KeyBuilder) KeyLedger(category string) string {
	return kb.BuildKey(fmt.Sprintf(KeyPatternLedger, category))
}

// KeyTally is the per-category hash of candidate counts
func (kb *KeyBuilder) KeyTally(category string) string {
	return kb.BuildKey(fmt.Sprintf(KeyPatternTally, category))
}

// KeyVoteTotals is the hash of category totals, including votes without a candidate
func (kb *KeyBuilder) KeyVoteTotals() string {
	return kb.BuildKey(KeyVoteTotals)
}

// KeyActivity is the sorted set of identity keys scored by last-seen unix millis
func (kb *KeyBuilder) KeyActivity() string {
	return kb.BuildKey(KeyActivityLastSet)
}
