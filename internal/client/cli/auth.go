package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/LouAnabel/someContacts/internal/client/client"
	"github.com/LouAnabel/someContacts/internal/common"
)

// Prompt indirections, replaced in tests.
var (
	promptLine        = PromptLine
	promptEmail       = PromptEmail
	promptPassword    = PromptPassword
	promptNewPassword = PromptNewPassword
)

// Register prompts for email, a confirmed password and optional names and creates an
// account. The server opens a session right away, so a successful register
// also logs the user in. The password is wiped before returning.
func (a *App) Register(ctx context.Context) error {
	email, err := promptEmail(a.reader, os.Stdout)
	if err != nil {
		return err
	}

	password, err := promptNewPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	firstName, err := promptLine(a.reader, "First name (optional)", os.Stdout)
	if err != nil {
		return err
	}
	lastName, err := promptLine(a.reader, "Last name (optional)", os.Stdout)
	if err != nil {
		return err
	}

	u, err := a.authService.Register(ctx, email, password, firstName, lastName)
	if err != nil {
		log.Printf("Register unsuccessful: %s", describe(err))
		a.noteUnavailable(err)
		return err
	}

	a.setMode(ModeOnline)
	printlnFn(fmt.Sprintf("Welcome, %s!", u.Email))
	return nil
}

// Login prompts the user for credentials and opens a session. A transport
// failure switches the app to offline mode.
func (a *App) Login(ctx context.Context) error {
	email, err := promptEmail(a.reader, os.Stdout)
	if err != nil {
		return err
	}

	password, err := promptPassword("Password", os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if _, err := a.authService.Login(ctx, email, password); err != nil {
		log.Printf("Login unsuccessful: %s", describe(err))
		a.noteUnavailable(err)
		return err
	}

	log.Printf("Login successful")
	a.setMode(ModeOnline)
	return nil
}

// Logout revokes the current access token. The refresh token of the same
// pair stays valid on the server until it expires; use logout-all to end
// every session.
func (a *App) Logout(ctx context.Context) error {
	revoked, err := a.authService.Logout(ctx)
	if err != nil {
		log.Printf("Logout unsuccessful: %s", describe(err))
		a.noteUnavailable(err)
		return err
	}
	if revoked {
		printlnFn("Logged out.")
	} else {
		printlnFn("Token was already revoked.")
	}
	return nil
}

// LogoutAll revokes every active token of the current user.
func (a *App) LogoutAll(ctx context.Context) error {
	n, err := a.authService.LogoutAll(ctx)
	if err != nil {
		log.Printf("Logout unsuccessful: %s", describe(err))
		a.noteUnavailable(err)
		return err
	}
	printlnFn(fmt.Sprintf("Logged out everywhere, %d token(s) revoked.", n))
	return nil
}

func (a *App) noteUnavailable(err error) {
	if errors.Is(err, client.ErrUnavailable) {
		a.setMode(ModeOffline)
	}
}

// describe turns service errors into short user-facing text.
func describe(err error) string {
	switch {
	case client.IsCode(err, client.CodeInvalidCredentials):
		return "wrong email or password"
	case client.IsCode(err, client.CodeEmailTaken):
		return "this email is already registered"
	case client.IsCode(err, client.CodeTokenExpired),
		client.IsCode(err, client.CodeTokenRevoked),
		client.IsCode(err, client.CodeInvalidToken):
		return "session ended, please log in again"
	case errors.Is(err, client.ErrNotLoggedIn):
		return "not logged in"
	case errors.Is(err, client.ErrUnavailable):
		return "server unavailable"
	default:
		return err.Error()
	}
}
