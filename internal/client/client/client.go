package client

import (
	"context"
	"time"
)

// User is the account profile returned by the server.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is one active token of the current user.
type Session struct {
	JTI       string    `json:"jti"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	Current   bool      `json:"current"`
}

type Client interface {
	Register(ctx context.Context, email string, password []byte, firstName, lastName string) (*User, error)
	Login(ctx context.Context, email string, password []byte) (*User, error)
	Refresh(ctx context.Context) error
	Logout(ctx context.Context) (bool, error)
	LogoutAll(ctx context.Context) (int64, error)
	Me(ctx context.Context) (*User, error)
	Sessions(ctx context.Context) ([]Session, error)
	Ping(ctx context.Context) error
	LoggedIn() bool
	Close() error
}
