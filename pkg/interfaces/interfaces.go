// Package interfaces defines the core abstractions of the relay.
// The relay service depends on these rather than on concrete components,
// so upstream collaborators can be faked in tests.
package interfaces

import (
	"context"
	"net/http"
)

// TokenProvider issues and caches the short-lived signed token required by
// the upstream resolve endpoint.
type TokenProvider interface {
	// Token returns a currently valid token, fetching a fresh one from
	// the auth endpoint only when the cached credential has expired.
	Token(ctx context.Context) (string, error)
}

// LocationResolver exchanges an indirection URL for a direct CDN URL.
type LocationResolver interface {
	// Resolve returns the CDN URL for sourceURL, using token to sign the
	// resolve call. Results are cached per source URL.
	Resolve(ctx context.Context, sourceURL, token string) (string, error)
}

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Logger defines the logging interface used throughout the application.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
