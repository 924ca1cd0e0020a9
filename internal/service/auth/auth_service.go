package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"live-voting/internal/domain"
	"live-voting/internal/service"
	"live-voting/pkg/errors"
	"live-voting/pkg/logger"
)

// Service verifies HMAC-signed JWTs, the format issued by Supabase-style providers
type Service struct {
	secret []byte
	issuer string
	logger *logger.Logger
	now    func() time.Time
}

type claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// NewService creates a new auth service. An empty issuer accepts any issuer.
func NewService(secret, issuer string, logger *logger.Logger) service.AuthService {
	return &Service{
		secret: []byte(secret),
		issuer: issuer,
		logger: logger,
		now:    time.Now,
	}
}

// ValidateToken validates a JWT with signature verification and returns its claims
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*domain.AuthClaims, error) {
	if len(s.secret) == 0 {
		s.logger.Error("AUTH_JWT_SECRET not configured")
		return nil, errors.NewAuthenticationError("JWT validation not configured")
	}
	if !isJWTToken(tokenString) {
		return nil, errors.NewAuthenticationError("Unrecognized token format")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		s.logger.WithError(err).Debug("Failed to parse/validate JWT token")
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.NewAuthenticationError("Token has expired")
		}
		return nil, errors.NewAuthenticationError("Invalid JWT token")
	}
	if !token.Valid {
		return nil, errors.NewAuthenticationError("Invalid JWT token")
	}

	if c.Subject == "" {
		s.logger.Error("No user identifier found in JWT token")
		return nil, errors.NewAuthenticationError("Invalid JWT token: no user identifier")
	}

	result := &domain.AuthClaims{
		Subject: c.Subject,
		Email:   c.Email,
		Issuer:  c.Issuer,
	}
	if c.ExpiresAt != nil {
		result.ExpiresAt = c.ExpiresAt.Time
	}

	s.logger.WithField("user_id", c.Subject).Debug("JWT token validated successfully")
	return result, nil
}

// isJWTToken checks for three non-empty dot-separated segments
func isJWTToken(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}
