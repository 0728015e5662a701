// Package services contains application services for the someContacts CLI.
// This file defines the authentication service: register, login, token
// refresh, logout and the profile/session queries of the current user.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/LouAnabel/someContacts/internal/client/client"
	"github.com/LouAnabel/someContacts/internal/common"
	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong  = errors.New("password must be at most 72 bytes")
)

const (
	minPasswordLen = 8
	maxPasswordLen = 72
)

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - Register / Login: validate input locally, then open a session.
//   - Refresh: rotate the held token pair.
//   - Logout: revoke the current access token; LogoutAll revokes every token.
//   - Me / Sessions: query the current user.
//   - CurrentUser: the last profile seen, nil when logged out.
//   - Ping: check server readiness.
//   - Close: forget the held session.
//
// All methods must honor context cancellation/timeouts.
type AuthService interface {
	Register(ctx context.Context, email string, password []byte, firstName, lastName string) (*client.User, error)
	Login(ctx context.Context, email string, password []byte) (*client.User, error)
	Refresh(ctx context.Context) error
	Logout(ctx context.Context) (bool, error)
	LogoutAll(ctx context.Context) (int64, error)
	Me(ctx context.Context) (*client.User, error)
	Sessions(ctx context.Context) ([]client.Session, error)
	CurrentUser() *client.User
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type authService struct {
	client   client.Client
	validate *validator.Validate

	mu   sync.Mutex
	user *client.User
}

// NewAuthService constructs an AuthService bound to the given API client.
func NewAuthService(c client.Client) AuthService {
	return &authService{client: c, validate: validator.New()}
}

func (a *authService) setUser(u *client.User) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user = u
}

func (a *authService) CurrentUser() *client.User {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user
}

func (a *authService) checkEmail(email string) (string, error) {
	email = common.NormalizeEmail(email)
	if err := a.validate.Var(email, "required,email"); err != nil {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func (a *authService) Register(ctx context.Context, email string, password []byte, firstName, lastName string) (*client.User, error) {
	email, err := a.checkEmail(email)
	if err != nil {
		return nil, err
	}
	switch {
	case len(password) < minPasswordLen:
		return nil, ErrPasswordTooShort
	case len(password) > maxPasswordLen:
		return nil, ErrPasswordTooLong
	}

	u, err := a.client.Register(ctx, email, password, firstName, lastName)
	if err != nil {
		return nil, fmt.Errorf("register error: %w", err)
	}
	a.setUser(u)
	return u, nil
}

func (a *authService) Login(ctx context.Context, email string, password []byte) (*client.User, error) {
	email, err := a.checkEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) == 0 {
		return nil, client.ErrUnauthorized
	}

	u, err := a.client.Login(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("login error: %w", err)
	}
	a.setUser(u)
	return u, nil
}

func (a *authService) Refresh(ctx context.Context) error {
	if err := a.client.Refresh(ctx); err != nil {
		if !a.client.LoggedIn() {
			a.setUser(nil)
		}
		return fmt.Errorf("refresh error: %w", err)
	}
	return nil
}

func (a *authService) Logout(ctx context.Context) (bool, error) {
	revoked, err := a.client.Logout(ctx)
	if err != nil {
		return false, fmt.Errorf("logout error: %w", err)
	}
	a.setUser(nil)
	return revoked, nil
}

func (a *authService) LogoutAll(ctx context.Context) (int64, error) {
	n, err := a.client.LogoutAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("logout-all error: %w", err)
	}
	a.setUser(nil)
	return n, nil
}

func (a *authService) Me(ctx context.Context) (*client.User, error) {
	u, err := a.client.Me(ctx)
	if err != nil {
		return nil, err
	}
	a.setUser(u)
	return u, nil
}

func (a *authService) Sessions(ctx context.Context) ([]client.Session, error) {
	return a.client.Sessions(ctx)
}

func (a *authService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

func (a *authService) Close(ctx context.Context) error {
	a.setUser(nil)
	return a.client.Close()
}
