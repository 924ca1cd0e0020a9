package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"live-voting/internal/domain"
	"live-voting/internal/service"
	"live-voting/pkg/errors"
	"live-voting/pkg/logger"
)

// ContextKey represents keys used in request context
type ContextKey string

const (
	// ClaimsContextKey is the key for verified caller claims in context
	ClaimsContextKey ContextKey = "claims"
	// RequestIDContextKey is the key for request ID in context
	RequestIDContextKey ContextKey = "request_id"

	RequestIDHeader = "X-Request-ID"
	AdminKeyHeader  = "X-Admin-Key"
)

// OptionalAuth validates a bearer token when one is sent and continues anonymously otherwise.
// A token that is present but invalid is rejected rather than ignored.
func OptionalAuth(authService service.AuthService, logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || authService == nil {
				next.ServeHTTP(w, r)
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				WriteError(w, r, errors.NewAuthenticationError("Invalid authorization header format"), logger)
				return
			}

			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			if token == "" {
				WriteError(w, r, errors.NewAuthenticationError("Token is required"), logger)
				return
			}

			ctx := r.Context()
			claims, err := authService.ValidateToken(ctx, token)
			if err != nil {
				if appErr, ok := err.(*errors.AppError); ok {
					WriteError(w, r, appErr, logger)
					return
				}
				WriteError(w, r, errors.NewAuthenticationError("Invalid or expired token"), logger)
				return
			}

			ctx = context.WithValue(ctx, ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the verified caller, or nil for anonymous requests
func ClaimsFromContext(ctx context.Context) *domain.AuthClaims {
	claims, _ := ctx.Value(ClaimsContextKey).(*domain.AuthClaims)
	return claims
}

// AccountID returns the verified subject, or "" for anonymous requests
func AccountID(ctx context.Context) string {
	if claims := ClaimsFromContext(ctx); claims != nil {
		return claims.Subject
	}
	return ""
}

// RequestID tags each request with an id, reusing a well-formed inbound X-Request-ID
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.NewString()
			}

			ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)
			w.Header().Set(RequestIDHeader, requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestID returns the id set by RequestID
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}

// AdminKey guards operator endpoints. An empty key leaves them open.
func AdminKey(key string, logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			sent := r.Header.Get(AdminKeyHeader)
			if sent == "" {
				WriteError(w, r, errors.NewAuthenticationError("Admin key is required"), logger)
				return
			}
			if subtle.ConstantTimeCompare([]byte(sent), []byte(key)) != 1 {
				logger.WithField("path", r.URL.Path).Warn("Rejected admin request")
				WriteError(w, r, errors.NewAuthorizationError("Invalid admin key"), logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteError writes appErr as the standard JSON error body
func WriteError(w http.ResponseWriter, r *http.Request, appErr *errors.AppError, logger *logger.Logger) {
	requestID := GetRequestID(r.Context())

	l := logger.WithField("request_id", requestID).WithField("error_type", string(appErr.Type))
	if appErr.StatusCode >= http.StatusInternalServerError {
		l.WithError(appErr).Error("Request error")
	} else {
		l.WithField("message", appErr.Message).Debug("Request rejected")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	if err := json.NewEncoder(w).Encode(appErr.Response(requestID)); err != nil {
		l.WithError(err).Error("Failed to encode error response")
	}
}
