// Package resolver exchanges upstream indirection URLs for direct CDN URLs
// via the vendor's resolve endpoint.
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"stream-relay-go/pkg/cache"
	"stream-relay-go/pkg/config"
	"stream-relay-go/pkg/interfaces"
	"stream-relay-go/pkg/logging"

	"github.com/buger/jsonparser"
)

// Error reports a failed resolve call.
type Error struct {
	Status int
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("resolve endpoint returned status %d", e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("resolve failed: %s: %v", e.Reason, e.Err)
	}
	return "resolve failed: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// Resolver implements interfaces.LocationResolver. Successful resolutions
// are cached per source URL for the configured TTL.
type Resolver struct {
	client    interfaces.HTTPClient
	log       *logging.Logger
	locations *cache.Cache[string]

	endpoint      string
	sigHeader     string
	userAgent     string
	language      string
	region        string
	clientVersion string
	ttl           time.Duration
	timeout       time.Duration
}

// New creates a resolver backed by the given cache.
func New(client interfaces.HTTPClient, log *logging.Logger, locations *cache.Cache[string], cfg *config.Config) *Resolver {
	return &Resolver{
		client:        client,
		log:           log.WithComponent("resolver"),
		locations:     locations,
		endpoint:      cfg.ResolveEndpoint,
		sigHeader:     cfg.SignatureHeader,
		userAgent:     cfg.DeviceUserAgent,
		language:      cfg.Language,
		region:        cfg.Region,
		clientVersion: cfg.ClientVersion,
		ttl:           cfg.ResolveTTL,
		timeout:       cfg.VendorTimeout,
	}
}

// Resolve returns the CDN URL behind sourceURL, signing the call with token.
func (r *Resolver) Resolve(ctx context.Context, sourceURL, token string) (string, error) {
	if cached, ok := r.locations.Get(sourceURL); ok {
		return cached, nil
	}

	r.log.Debug("resolving indirection URL", "url", sourceURL)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	payload := map[string]string{
		"language":      r.language,
		"region":        r.region,
		"url":           sourceURL,
		"clientVersion": r.clientVersion,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", &Error{Reason: "marshaling resolve payload", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Reason: "building resolve request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set(r.sigHeader, token)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", &Error{Reason: "resolve endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Reason: "reading resolve response", Err: err}
	}

	resolved, err := extractURL(data)
	if err != nil {
		return "", err
	}

	r.locations.Set(sourceURL, resolved, r.ttl)
	r.log.Debug("resolved indirection URL", "source", sourceURL, "cdn", resolved)

	return resolved, nil
}

// extractURL pulls the CDN URL out of a resolve response. The endpoint has
// returned two shapes over time: an array whose first element carries a
// "url" field, and a bare object with a top-level "url" field.
func extractURL(data []byte) (string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return "", &Error{Reason: "empty resolve response"}
	}

	var resolved string
	var err error
	if trimmed[0] == '[' {
		resolved, err = jsonparser.GetString(trimmed, "[0]", "url")
	} else {
		resolved, err = jsonparser.GetString(trimmed, "url")
	}
	if err != nil || resolved == "" {
		return "", &Error{Reason: "no url in resolve response"}
	}
	return resolved, nil
}

var _ interfaces.LocationResolver = (*Resolver)(nil)
