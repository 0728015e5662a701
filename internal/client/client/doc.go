// Package client contains the API client used by the someContacts CLI.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic API contract (see the Client interface):
//     Register, Login, Refresh, Logout, LogoutAll, Me, Sessions and Ping.
//  2. A JSON/HTTP implementation (see HTTPClient) that keeps the current
//     token pair in memory, sends the access token as a Bearer header and
//     transparently refreshes once when the server reports token_expired.
//
// # Error Handling
//
// Non-2xx answers become *APIError. 401 and 503 answers, as well as
// transport failures, also match the sentinels ErrUnauthorized and
// ErrUnavailable under errors.Is. Calls that need a session return
// ErrNotLoggedIn when no token pair is held.
//
// Concurrency & Contexts
//
// HTTPClient is safe for concurrent use. All operations accept
// context.Context and honor cancellation/timeouts.
package client
