package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Me(ctx context.Context) error
	Sessions(ctx context.Context) error
	Refresh(ctx context.Context) error
	Logout(ctx context.Context) error
	LogoutAll(ctx context.Context) error
}

// runREPL reads commands from scanner and dispatches them to a until EOF
// or "exit"/"quit".
//
//	Not logged in:
//	  - help           show available commands
//	  - register       create an account and log in
//	  - login          authenticate
//	  - exit | quit    leave the program
//
//	Logged in:
//	  - help           show available commands
//	  - me             show the profile
//	  - sessions       list active tokens
//	  - refresh        rotate the token pair
//	  - logout         revoke the current access token
//	  - logout-all     revoke every token of the account
//	  - exit | quit    leave the program
//
// Handler errors are not reported here; handlers log their own.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("sc %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		if cmd == "exit" || cmd == "quit" {
			printlnFn("Bye!")
			return
		}

		if a.isLoggedIn() {
			switch cmd {
			case "help":
				printlnFn("Available commands: me, sessions, refresh, logout, logout-all, exit")
			case "me":
				_ = a.Me(ctx)
			case "sessions":
				_ = a.Sessions(ctx)
			case "refresh":
				_ = a.Refresh(ctx)
			case "logout":
				_ = a.Logout(ctx)
			case "logout-all":
				_ = a.LogoutAll(ctx)
			case "register", "login":
				printlnFn("Already logged in, use logout first")
			default:
				printlnFn("Unknown command:", cmd)
			}
			continue
		}

		switch cmd {
		case "help":
			printlnFn("Available commands: register, login, exit")
		case "register":
			_ = a.Register(ctx)
		case "login":
			_ = a.Login(ctx)
		case "me", "sessions", "refresh", "logout", "logout-all":
			printlnFn("Not logged in, use login first")
		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
