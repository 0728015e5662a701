package cli

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// Me prints the profile of the logged-in user.
func (a *App) Me(ctx context.Context) error {
	u, err := a.authService.Me(ctx)
	if err != nil {
		log.Printf("error: %s", describe(err))
		a.noteUnavailable(err)
		return err
	}

	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = "-"
	}
	printlnFn(fmt.Sprintf("ID:      %s", u.ID))
	printlnFn(fmt.Sprintf("Email:   %s", u.Email))
	printlnFn(fmt.Sprintf("Name:    %s", name))
	printlnFn(fmt.Sprintf("Created: %s", u.CreatedAt.Format(time.RFC3339)))
	return nil
}

// Sessions lists the active tokens of the user, marking the one in use.
func (a *App) Sessions(ctx context.Context) error {
	list, err := a.authService.Sessions(ctx)
	if err != nil {
		log.Printf("error: %s", describe(err))
		a.noteUnavailable(err)
		return err
	}

	if len(list) == 0 {
		printlnFn("No active sessions.")
		return nil
	}
	for _, s := range list {
		marker := " "
		if s.Current {
			marker = "*"
		}
		printlnFn(fmt.Sprintf("%s %-7s %s expires %s", marker, s.TokenType, s.JTI, s.ExpiresAt.Format(time.RFC3339)))
	}
	return nil
}

// Refresh rotates the held token pair.
func (a *App) Refresh(ctx context.Context) error {
	if err := a.authService.Refresh(ctx); err != nil {
		log.Printf("Refresh unsuccessful: %s", describe(err))
		a.noteUnavailable(err)
		return err
	}
	printlnFn("Tokens refreshed.")
	return nil
}
