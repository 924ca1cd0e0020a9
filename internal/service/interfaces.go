package service

import (
	"context"

	"live-voting/internal/domain"
)

// AuthService verifies bearer tokens issued by the upstream identity provider
type AuthService interface {
	// ValidateToken verifies signature and expiry and returns the caller's claims
	ValidateToken(ctx context.Context, token string) (*domain.AuthClaims, error)
}
