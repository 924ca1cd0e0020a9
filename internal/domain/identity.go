package domain

import (
	"fmt"
	"strings"
	"time"
)

// Dimension classifies how an identity key was derived
type Dimension string

const (
	DimensionDevice      Dimension = "device"
	DimensionNetwork     Dimension = "network"
	DimensionFingerprint Dimension = "fingerprint"
	DimensionAccount     Dimension = "account"
	DimensionSession     Dimension = "session"
	DimensionComposite   Dimension = "composite"
)

var dimensionDescriptions = map[Dimension]string{
	DimensionDevice:      "device",
	DimensionNetwork:     "network address",
	DimensionFingerprint: "browser fingerprint",
	DimensionAccount:     "account",
	DimensionSession:     "session",
	DimensionComposite:   "device and browser combination",
}

// ParseDimension validates a configured dimension name
func ParseDimension(raw string) (Dimension, error) {
	d := Dimension(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := dimensionDescriptions[d]; !ok {
		return "", fmt.Errorf("unknown identity dimension %q", raw)
	}
	return d, nil
}

// ParseDimensions parses a comma-separated dimension list, dropping duplicates
func ParseDimensions(raw string) ([]Dimension, error) {
	parts := strings.Split(raw, ",")
	dims := make([]Dimension, 0, len(parts))
	seen := make(map[Dimension]bool, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		d, err := ParseDimension(part)
		if err != nil {
			return nil, err
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		dims = append(dims, d)
	}
	if len(dims) == 0 {
		return nil, fmt.Errorf("at least one identity dimension is required")
	}
	return dims, nil
}

// Describe returns the phrase used in rejection messages
func (d Dimension) Describe() string {
	if desc, ok := dimensionDescriptions[d]; ok {
		return desc
	}
	return string(d)
}

// IdentityKey is one dimension along which prior votes are tracked.
// Value is opaque; it is unique across dimensions because it carries the dimension prefix.
type IdentityKey struct {
	Dimension Dimension `json:"dimension"`
	Value     string    `json:"value"`
}

func (k IdentityKey) String() string {
	return k.Value
}

// RequestContext is the raw material identity resolution works from
type RequestContext struct {
	DeviceToken   string
	Category      string
	CandidateName string
	Fingerprint   string
	SessionKey    string
	// ClientTimestamp is the client clock in milliseconds since epoch; zero when absent
	ClientTimestamp int64
	NetworkAddress  string
	// AccountID is set only when an upstream identity provider verified the caller
	AccountID string
}

// ClientTime converts the millisecond client timestamp
func (r RequestContext) ClientTime() time.Time {
	return time.UnixMilli(r.ClientTimestamp)
}
