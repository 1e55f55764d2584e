// Package relay orchestrates a single proxied exchange: classify the
// target, apply the routing mode, fetch upstream with the right identity,
// and rewrite or stream the response.
package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"stream-relay-go/pkg/config"
	"stream-relay-go/pkg/httpclient"
	"stream-relay-go/pkg/interfaces"
	"stream-relay-go/pkg/logging"
	"stream-relay-go/pkg/playlist"
	"stream-relay-go/pkg/types"
)

// UpstreamError reports a non-2xx/206 status from the origin.
type UpstreamError struct {
	Status int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Status)
}

// Service ties the credential provider, the resolver and the fetcher
// together per request.
type Service struct {
	client   *httpclient.Client
	log      *logging.Logger
	tokens   interfaces.TokenProvider
	resolver interfaces.LocationResolver
	cfg      *config.Config
	baseURL  string
}

// NewService creates the relay service.
func NewService(
	client *httpclient.Client,
	log *logging.Logger,
	tokens interfaces.TokenProvider,
	resolver interfaces.LocationResolver,
	cfg *config.Config,
	baseURL string,
) *Service {
	return &Service{
		client:   client,
		log:      log.WithComponent("relay"),
		tokens:   tokens,
		resolver: resolver,
		cfg:      cfg,
		baseURL:  baseURL,
	}
}

// Relay performs one proxied exchange. The returned response body must be
// closed by the caller; closing it also releases the fetch timeout.
func (s *Service) Relay(ctx context.Context, req *types.RelayRequest) (*types.RelayResponse, error) {
	parsed, err := url.Parse(req.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("parsing target URL: %w", err)
	}

	isIndirection := s.cfg.IsIndirectionHost(parsed.Host)
	target := req.TargetURL

	identity := types.IdentityBrowser
	if isIndirection {
		identity = types.IdentityDevice
	}

	var sigToken string
	switch req.Mode {
	case types.ModeAuth:
		if isIndirection {
			sigToken, err = s.tokens.Token(ctx)
			if err != nil {
				return nil, err
			}
		}
	case types.ModeCDN:
		if isIndirection {
			token, err := s.tokens.Token(ctx)
			if err != nil {
				return nil, err
			}
			resolved, err := s.resolver.Resolve(ctx, target, token)
			if err != nil {
				return nil, err
			}
			s.log.Debug("routing via resolved CDN URL", "source", target, "cdn", resolved)
			target = resolved
			// A resolved CDN host needs no vendor headers.
			identity = types.IdentityBrowser
		}
	}

	wantPlaylist := playlist.IsPlaylist("", target)
	timeout := s.cfg.SegmentTimeout
	if wantPlaylist {
		timeout = s.cfg.ManifestTimeout
	}

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)

	resp, err := s.fetch(fetchCtx, target, identity, sigToken, req.RangeHeader)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("fetching %s: %w", target, err)
	}

	// Origins sometimes reject the device profile on segment requests.
	// One retry with the browser profile, then give up.
	if resp.StatusCode == http.StatusForbidden && !wantPlaylist && identity == types.IdentityDevice {
		s.log.Debug("segment fetch got 403, retrying with browser identity", "url", target)
		resp.Body.Close()
		resp, err = s.fetch(fetchCtx, target, types.IdentityBrowser, "", req.RangeHeader)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("fetching %s: %w", target, err)
		}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		cancel()
		return nil, &UpstreamError{Status: resp.StatusCode}
	}

	// Relative references must resolve against the URL the origin finally
	// served, not the one we asked for.
	finalURL := target
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	contentType := resp.Header.Get("Content-Type")

	if playlist.IsPlaylist(contentType, target, finalURL) {
		defer cancel()
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading manifest: %w", err)
		}

		rewritten, err := playlist.Rewrite(body, finalURL, s.baseURL, req.Mode)
		if err != nil {
			return nil, fmt.Errorf("rewriting manifest: %w", err)
		}

		// A rewritten manifest is always served complete, so an upstream
		// 206 collapses to 200 here.
		return &types.RelayResponse{
			StatusCode:  http.StatusOK,
			ContentType: playlist.MimeType,
			Headers: map[string]string{
				"Cache-Control": "no-cache, no-store, must-revalidate",
			},
			Body:       io.NopCloser(bytes.NewReader(rewritten)),
			IsPlaylist: true,
		}, nil
	}

	if contentType == "" {
		contentType = "video/MP2T"
	}

	headers := map[string]string{
		"Cache-Control": "public, max-age=31536000, immutable",
		"Accept-Ranges": "bytes",
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		headers["Content-Length"] = cl
	}
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		headers["Content-Range"] = cr
	}

	return &types.RelayResponse{
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Headers:     headers,
		Body:        &cancelOnClose{ReadCloser: resp.Body, cancel: cancel},
	}, nil
}

// fetch issues the upstream GET with the chosen identity profile.
func (s *Service) fetch(ctx context.Context, target string, identity types.Identity, sigToken, rangeHeader string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	ua := s.cfg.BrowserUserAgent
	if identity == types.IdentityDevice {
		ua = s.cfg.DeviceUserAgent
	}
	req.Header.Set("User-Agent", ua)

	if sigToken != "" {
		req.Header.Set(s.cfg.SignatureHeader, sigToken)
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	return s.client.DoAs(req, identity)
}

// cancelOnClose releases the fetch timeout when the streamed body is done.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
