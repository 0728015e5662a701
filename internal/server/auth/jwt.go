// Package auth contains the token codec that mints and verifies signed
// session tokens, and the bcrypt password helpers.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/LouAnabel/someContacts/internal/common"
	"github.com/LouAnabel/someContacts/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the payload of every issued token. Subject carries the user id
// and ID carries the jti.
type Claims struct {
	jwt.RegisteredClaims
	Type models.TokenType `json:"type"`
}

// IssuedToken is a freshly signed token together with the fields the ledger
// needs to record it.
type IssuedToken struct {
	Token     string
	JTI       string
	Type      models.TokenType
	Subject   string
	ExpiresAt time.Time
}

// Record converts the issued token into an active ledger row.
func (t IssuedToken) Record() models.TokenRecord {
	return models.TokenRecord{
		JTI:       t.JTI,
		Type:      t.Type,
		OwnerID:   t.Subject,
		ExpiresAt: t.ExpiresAt,
		IsActive:  true,
	}
}

// Codec signs and verifies HS256 tokens with a single secret.
type Codec struct {
	secret []byte
	now    func() time.Time
	newJTI func() string
}

// Option customises a Codec.
type Option func(*Codec)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// WithJTIGenerator replaces the random UUID jti source.
func WithJTIGenerator(gen func() string) Option {
	return func(c *Codec) { c.newJTI = gen }
}

func NewCodec(secret []byte, opts ...Option) *Codec {
	c := &Codec{secret: secret, now: time.Now, newJTI: uuid.NewString}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Issue signs a token of the given type for subject, valid for ttl.
func (c *Codec) Issue(subject string, typ models.TokenType, ttl time.Duration) (IssuedToken, error) {
	if !typ.Valid() {
		return IssuedToken{}, fmt.Errorf("unknown token type %q", typ)
	}

	now := c.now()
	jti := c.newJTI()
	// NumericDate truncates to whole seconds; the ledger keeps the same value
	exp := jwt.NewNumericDate(now.Add(ttl))

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: exp,
		},
		Type: typ,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign token: %w", err)
	}

	return IssuedToken{
		Token:     signed,
		JTI:       jti,
		Type:      typ,
		Subject:   subject,
		ExpiresAt: exp.Time,
	}, nil
}

// Decode verifies tokenString and returns its claims. Errors are
// common.ErrTokenExpired, common.ErrInvalidSignature or
// common.ErrMalformedToken.
func (c *Codec) Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, common.ErrInvalidSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, common.ErrTokenExpired
		default:
			return nil, common.ErrMalformedToken
		}
	}

	if claims.Subject == "" || claims.ID == "" || !claims.Type.Valid() {
		return nil, common.ErrMalformedToken
	}

	return claims, nil
}
