package domain

import "time"

// DefaultHeartbeatWindow is how long an identity counts as a concurrent viewer
const DefaultHeartbeatWindow = 30 * time.Second

// ActivityEntry records when an identity was last seen
type ActivityEntry struct {
	Key      string    `json:"key"`
	LastSeen time.Time `json:"last_seen"`
}
