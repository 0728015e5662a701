// Package common defines shared constants and sentinel errors used across
// the server and client layers. Callers should use errors.Is to match these
// values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal         = errors.New("internal error")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrPersistence wraps storage failures that are not a "not found".
	// ErrLedgerUnavailable is the token ledger flavour of it; authorization
	// treats it as a denial.
	ErrPersistence       = errors.New("persistence error")
	ErrLedgerUnavailable = fmt.Errorf("%w: token ledger unavailable", ErrPersistence)

	// Token errors. ErrMalformedToken and ErrInvalidSignature both match
	// ErrInvalidToken under errors.Is.
	ErrInvalidToken     = errors.New("invalid token")
	ErrMalformedToken   = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrInvalidSignature = fmt.Errorf("%w: signature mismatch", ErrInvalidToken)
	ErrWrongTokenType   = fmt.Errorf("%w: wrong token type", ErrInvalidToken)

	// Token lifecycle errors.
	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token revoked")

	// ErrTokenUnknown means the ledger has no row for the jti. It matches
	// ErrTokenRevoked so callers can treat both the same way.
	ErrTokenUnknown = fmt.Errorf("%w: unknown jti", ErrTokenRevoked)
)
