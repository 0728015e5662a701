package cli

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/LouAnabel/someContacts/internal/common"
	"golang.org/x/term"
)

// Prompts share the App's line reader with the REPL so the two never race
// for stdin. Passwords bypass the reader and are read from the terminal
// without echo.

// readPassword is swapped in tests so no terminal is needed.
var readPassword = term.ReadPassword

// maxEmailAttempts bounds how often PromptEmail asks again.
const maxEmailAttempts = 3

var (
	errNoEmail          = errors.New("no email address entered")
	errPasswordMismatch = errors.New("passwords do not match")
)

// PromptLine prints "label: " and returns the next line with surrounding
// space trimmed. A final line without a newline is still returned.
func PromptLine(reader *bufio.Reader, label string, w io.Writer) (string, error) {
	if _, err := fmt.Fprintf(w, "%s: ", label); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if errors.Is(err, io.EOF) && line != "" {
		err = nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// PromptEmail asks for an address until the answer at least contains an
// "@", at most maxEmailAttempts times. The answer comes back normalized;
// full validation is left to the auth service.
func PromptEmail(reader *bufio.Reader, w io.Writer) (string, error) {
	for i := 0; i < maxEmailAttempts; i++ {
		email, err := PromptLine(reader, "Email", w)
		if err != nil {
			return "", err
		}
		if email = common.NormalizeEmail(email); strings.Contains(email, "@") {
			return email, nil
		}
		fmt.Fprintln(w, "That does not look like an email address.")
	}
	return "", errNoEmail
}

// PromptPassword reads a password without echo. The caller wipes the
// returned slice.
func PromptPassword(label string, w io.Writer) ([]byte, error) {
	if _, err := fmt.Fprintf(w, "%s: ", label); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// PromptNewPassword asks for a password twice and fails when the answers
// differ. Both copies except the returned one are wiped.
func PromptNewPassword(w io.Writer) ([]byte, error) {
	pw, err := promptPassword("Password", w)
	if err != nil {
		return nil, err
	}
	again, err := promptPassword("Repeat password", w)
	if err != nil {
		common.WipeByteArray(pw)
		return nil, err
	}
	defer common.WipeByteArray(again)

	if !bytes.Equal(pw, again) {
		common.WipeByteArray(pw)
		return nil, errPasswordMismatch
	}
	return pw, nil
}
