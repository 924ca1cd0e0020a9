package domain

import "time"

// AuthClaims is the verified identity of a caller carrying a bearer token
type AuthClaims struct {
	Subject   string    `json:"sub"`
	Email     string    `json:"email,omitempty"`
	Issuer    string    `json:"iss,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
}
