// Package cli provides the interactive someContacts command-line client.
//
// It wires configuration, the HTTP API client and the auth service into a
// small REPL. A background watcher pings the server and shows whether the
// client is online or offline in the prompt.
//
// Commands cover the account lifecycle: register, login, me, sessions,
// refresh, logout and logout-all. The REPL is started via App.Root(ctx),
// which blocks until the user exits.
package cli
