package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/LouAnabel/someContacts/internal/client/client"
)

type fakeAuth struct {
	user *client.User

	regEmail, regFirst, regLast string
	regPass                     []byte
	regErr                      error

	loginEmail string
	loginPass  []byte
	loginErr   error

	refreshErr error

	revoked   bool
	revokedN  int64
	logoutErr error

	meErr       error
	sessions    []client.Session
	sessionsErr error

	pingErr error
	pings   int
	closed  bool
}

func (f *fakeAuth) Register(_ context.Context, email string, pass []byte, first, last string) (*client.User, error) {
	f.regEmail, f.regFirst, f.regLast = email, first, last
	f.regPass = append([]byte(nil), pass...)
	if f.regErr != nil {
		return nil, f.regErr
	}
	f.user = &client.User{ID: "u1", Email: email, FirstName: first, LastName: last}
	return f.user, nil
}

func (f *fakeAuth) Login(_ context.Context, email string, pass []byte) (*client.User, error) {
	f.loginEmail, f.loginPass = email, append([]byte(nil), pass...)
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	f.user = &client.User{ID: "u1", Email: email}
	return f.user, nil
}

func (f *fakeAuth) Refresh(context.Context) error { return f.refreshErr }

func (f *fakeAuth) Logout(context.Context) (bool, error) {
	if f.logoutErr != nil {
		return false, f.logoutErr
	}
	f.user = nil
	return f.revoked, nil
}

func (f *fakeAuth) LogoutAll(context.Context) (int64, error) {
	if f.logoutErr != nil {
		return 0, f.logoutErr
	}
	f.user = nil
	return f.revokedN, nil
}

func (f *fakeAuth) Me(context.Context) (*client.User, error) {
	if f.meErr != nil {
		return nil, f.meErr
	}
	return f.user, nil
}

func (f *fakeAuth) Sessions(context.Context) ([]client.Session, error) {
	return f.sessions, f.sessionsErr
}

func (f *fakeAuth) CurrentUser() *client.User { return f.user }

func (f *fakeAuth) Ping(context.Context) error {
	f.pings++
	return f.pingErr
}

func (f *fakeAuth) Close(context.Context) error {
	f.closed = true
	return nil
}

// stubInputs replaces the interactive prompts: text answers are returned in
// order, the password is returned for every password prompt.
func stubInputs(t *testing.T, password []byte, answers ...string) {
	t.Helper()
	origLine, origEmail, origPW, origNewPW := promptLine, promptEmail, promptPassword, promptNewPassword
	next := func() (string, error) {
		if len(answers) == 0 {
			return "", io.EOF
		}
		a := answers[0]
		answers = answers[1:]
		return a, nil
	}
	promptLine = func(*bufio.Reader, string, io.Writer) (string, error) { return next() }
	promptEmail = func(*bufio.Reader, io.Writer) (string, error) { return next() }
	promptPassword = func(string, io.Writer) ([]byte, error) { return append([]byte(nil), password...), nil }
	promptNewPassword = func(io.Writer) ([]byte, error) { return append([]byte(nil), password...), nil }
	t.Cleanup(func() {
		promptLine, promptEmail = origLine, origEmail
		promptPassword, promptNewPassword = origPW, origNewPW
	})
}

// capturePrintln collects everything written through printlnFn.
func capturePrintln(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		s := strings.TrimSuffix(fmt.Sprintln(a...), "\n")
		lines = append(lines, s)
		return len(s), nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &lines
}
