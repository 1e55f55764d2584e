// Package types defines core domain types used throughout the application.
package types

import (
	"io"
	"time"
)

// Mode selects how the relay routes a request upstream.
type Mode string

const (
	// ModeStandard proxies the target URL directly with the identity
	// profile matching its host.
	ModeStandard Mode = "standard"

	// ModeAuth additionally attaches the signed token as a signature
	// header on indirection-domain requests.
	ModeAuth Mode = "auth"

	// ModeCDN exchanges indirection URLs for direct CDN URLs before
	// fetching.
	ModeCDN Mode = "cdn"
)

// ParseMode maps a query parameter value to a Mode.
// An empty value means ModeStandard.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case "", ModeStandard:
		return ModeStandard, true
	case ModeAuth:
		return ModeAuth, true
	case ModeCDN:
		return ModeCDN, true
	}
	return "", false
}

// Identity is the outbound client profile presented to an upstream server.
type Identity string

const (
	// IdentityDevice mimics the vendor's mobile app. Used against the
	// upstream indirection domain.
	IdentityDevice Identity = "device"

	// IdentityBrowser mimics a desktop browser, including its TLS
	// fingerprint. Used against already-resolved CDN hosts.
	IdentityBrowser Identity = "browser"
)

// RelayRequest is the per-call input to the relay service.
type RelayRequest struct {
	TargetURL   string
	Mode        Mode
	RangeHeader string
}

// RelayResponse is the outcome of a relay call, ready to be written to the
// client.
type RelayResponse struct {
	StatusCode  int
	ContentType string
	Headers     map[string]string
	Body        io.ReadCloser
	IsPlaylist  bool
}

// Credential is a short-lived signed token issued by the auth endpoint.
type Credential struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Valid reports whether the credential can still be used.
func (c Credential) Valid(now time.Time) bool {
	return c.Token != "" && now.Before(c.ExpiresAt)
}

// Channel is one entry of the upstream channel catalog.
type Channel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Group    string `json:"group"`
	Logo     string `json:"logo,omitempty"`
	URL      string `json:"url"`
	RelayURL string `json:"relay_url"`
}
