package service

import (
	"encoding/hex"
	"net/netip"
	"strings"
	"time"
	"unicode"

	"github.com/zeebo/blake3"

	"live-voting/internal/domain"
)

const (
	maxDeviceTokenLength = 128
	maxFingerprintLength = 512
	sessionKeyLength     = 64
	sessionPrefixLength  = 16

	// DefaultTimestampTolerance bounds the skew between client and server clocks
	DefaultTimestampTolerance = 5 * time.Minute
)

// DefaultDimensions is the policy used when none is configured
var DefaultDimensions = []domain.Dimension{
	domain.DimensionComposite,
	domain.DimensionNetwork,
	domain.DimensionFingerprint,
	domain.DimensionAccount,
}

// IdentityPolicy selects the dimensions a submission is checked under
type IdentityPolicy struct {
	Dimensions         []domain.Dimension
	TimestampTolerance time.Duration
	// Secret, when set, keys every digest so stored values cannot be matched
	// against guessed inputs without it
	Secret string
}

type domainKey [32]byte

// IdentityResolver turns a raw request into the ordered identity keys of one submission
type IdentityResolver struct {
	dimensions []domain.Dimension
	active     map[domain.Dimension]bool
	tolerance  time.Duration
	keys       map[domain.Dimension]domainKey
}

// NewIdentityResolver builds a resolver for policy
func NewIdentityResolver(policy IdentityPolicy) *IdentityResolver {
	dims := policy.Dimensions
	if len(dims) == 0 {
		dims = DefaultDimensions
	}
	tolerance := policy.TimestampTolerance
	if tolerance <= 0 {
		tolerance = DefaultTimestampTolerance
	}

	r := &IdentityResolver{
		dimensions: append([]domain.Dimension(nil), dims...),
		active:     make(map[domain.Dimension]bool, len(dims)),
		tolerance:  tolerance,
		keys:       make(map[domain.Dimension]domainKey, len(dims)),
	}
	for _, d := range r.dimensions {
		r.active[d] = true
		r.keys[d] = deriveDomainKey(d, policy.Secret)
	}
	return r
}

// deriveDomainKey separates digests per dimension so equal inputs in two
// dimensions never produce the same stored value
func deriveDomainKey(d domain.Dimension, secret string) domainKey {
	var key domainKey
	if secret == "" {
		copy(key[:], "live-voting.identity."+string(d))
		return key
	}
	blake3.DeriveKey("live-voting identity "+string(d), []byte(secret), key[:])
	return key
}

// Dimensions returns the active dimensions in resolution order
func (r *IdentityResolver) Dimensions() []domain.Dimension {
	return append([]domain.Dimension(nil), r.dimensions...)
}

// Resolve validates the security fields the policy needs and derives one key per
// active dimension. account is skipped when the request carries no verified identity.
func (r *IdentityResolver) Resolve(req domain.RequestContext, now time.Time) ([]domain.IdentityKey, error) {
	if err := r.checkTimestamp(req, now); err != nil {
		return nil, err
	}

	device := strings.TrimSpace(req.DeviceToken)
	if r.active[domain.DimensionDevice] || r.active[domain.DimensionComposite] {
		if err := validateDeviceToken(device); err != nil {
			return nil, err
		}
	}

	fingerprint := req.Fingerprint
	if r.active[domain.DimensionFingerprint] || r.active[domain.DimensionComposite] {
		if err := validateFingerprint(fingerprint); err != nil {
			return nil, err
		}
	}

	var network string
	if r.active[domain.DimensionNetwork] || r.active[domain.DimensionComposite] {
		addr, err := normalizeNetworkAddress(req.NetworkAddress)
		if err != nil {
			return nil, err
		}
		network = addr
	}

	if r.active[domain.DimensionSession] {
		if err := validateSessionKey(req.SessionKey); err != nil {
			return nil, err
		}
	}

	keys := make([]domain.IdentityKey, 0, len(r.dimensions))
	for _, d := range r.dimensions {
		switch d {
		case domain.DimensionDevice:
			keys = append(keys, domain.IdentityKey{Dimension: d, Value: string(d) + ":" + device})
		case domain.DimensionNetwork:
			keys = append(keys, r.digest(d, network))
		case domain.DimensionFingerprint:
			keys = append(keys, r.digest(d, fingerprint))
		case domain.DimensionAccount:
			account := strings.TrimSpace(req.AccountID)
			if account == "" {
				continue
			}
			keys = append(keys, r.digest(d, account))
		case domain.DimensionSession:
			keys = append(keys, r.digest(d, strings.ToLower(req.SessionKey[:sessionPrefixLength])))
		case domain.DimensionComposite:
			keys = append(keys, r.digest(d, device, fingerprint, network))
		}
	}
	return keys, nil
}

// ActivityKey is the key a request is counted under as a viewer: the device
// token when present, otherwise the first derived key
func ActivityKey(req domain.RequestContext, keys []domain.IdentityKey) string {
	if token := strings.TrimSpace(req.DeviceToken); token != "" {
		return string(domain.DimensionDevice) + ":" + token
	}
	if len(keys) > 0 {
		return keys[0].Value
	}
	return ""
}

func (r *IdentityResolver) checkTimestamp(req domain.RequestContext, now time.Time) error {
	required := r.active[domain.DimensionFingerprint] ||
		r.active[domain.DimensionSession] ||
		r.active[domain.DimensionComposite]

	if req.ClientTimestamp == 0 {
		if required {
			return domain.InvalidSecurityData("timestamp", "is required")
		}
		return nil
	}
	if req.ClientTimestamp < 0 {
		return domain.InvalidSecurityData("timestamp", "must be milliseconds since epoch")
	}

	skew := now.Sub(req.ClientTime())
	if skew < 0 {
		skew = -skew
	}
	if skew > r.tolerance {
		return domain.ErrRequestExpired
	}
	return nil
}

func (r *IdentityResolver) digest(d domain.Dimension, parts ...string) domain.IdentityKey {
	key := r.keys[d]
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		// only returned for a key that is not 32 bytes
		panic("identity: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	for i, p := range parts {
		if i > 0 {
			_, _ = hasher.Write([]byte{0})
		}
		_, _ = hasher.Write([]byte(p))
	}
	return domain.IdentityKey{
		Dimension: d,
		Value:     string(d) + ":" + hex.EncodeToString(hasher.Sum(nil)),
	}
}

func validateDeviceToken(token string) error {
	if token == "" {
		return domain.InvalidSecurityData("device_token", "is required")
	}
	if len(token) > maxDeviceTokenLength {
		return domain.InvalidSecurityData("device_token", "is too long")
	}
	for _, c := range token {
		if unicode.IsSpace(c) || !unicode.IsPrint(c) {
			return domain.InvalidSecurityData("device_token", "contains invalid characters")
		}
	}
	return nil
}

func validateFingerprint(fp string) error {
	if fp == "" {
		return domain.InvalidSecurityData("fingerprint", "is required")
	}
	if len(fp) > maxFingerprintLength {
		return domain.InvalidSecurityData("fingerprint", "is too long")
	}
	for _, c := range fp {
		if !unicode.IsPrint(c) {
			return domain.InvalidSecurityData("fingerprint", "contains invalid characters")
		}
	}
	return nil
}

func validateSessionKey(key string) error {
	if len(key) != sessionKeyLength {
		return domain.InvalidSecurityData("session_key", "must be 64 hex characters")
	}
	if _, err := hex.DecodeString(key); err != nil {
		return domain.InvalidSecurityData("session_key", "must be 64 hex characters")
	}
	return nil
}

// normalizeNetworkAddress accepts "ip" or "ip:port" and returns the canonical ip
func normalizeNetworkAddress(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", domain.InvalidSecurityData("network_address", "is required")
	}
	if ap, err := netip.ParseAddrPort(raw); err == nil {
		return ap.Addr().Unmap().String(), nil
	}
	addr, err := netip.ParseAddr(strings.Trim(raw, "[]"))
	if err != nil {
		return "", domain.InvalidSecurityData("network_address", "is not an IP address")
	}
	return addr.Unmap().String(), nil
}
