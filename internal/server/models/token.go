package models

import "time"

// TokenType distinguishes the two halves of a session pair.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Valid reports whether t is one of the known token types.
func (t TokenType) Valid() bool {
	return t == TokenTypeAccess || t == TokenTypeRefresh
}

// TokenRecord is one ledger row. A record is usable only while IsActive is
// true and ExpiresAt is in the future; once IsActive is false it never
// becomes true again.
type TokenRecord struct {
	JTI       string     `json:"jti"`
	Type      TokenType  `json:"token_type"`
	OwnerID   string     `json:"owner_id"`
	ExpiresAt time.Time  `json:"expires_at"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// Expired reports whether the record's lifetime ended at or before now.
func (r *TokenRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}
