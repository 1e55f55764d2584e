// Package api provides the HTTP handlers for the relay.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"stream-relay-go/pkg/appctx"
	"stream-relay-go/pkg/auth"
	"stream-relay-go/pkg/logging"
	"stream-relay-go/pkg/relay"
	"stream-relay-go/pkg/resolver"
	"stream-relay-go/pkg/types"
)

// Handlers contains all API handlers.
type Handlers struct {
	ctx *appctx.Context
	log *logging.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(ctx *appctx.Context) *Handlers {
	return &Handlers{
		ctx: ctx,
		log: ctx.Log.WithComponent("api"),
	}
}

// RegisterRoutes registers all API routes. OPTIONS preflights are answered
// by the CORS middleware before routing.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /", h.handleIndex)
	mux.HandleFunc("GET /api/info", h.handleAPIInfo)
	mux.HandleFunc("GET /favicon.ico", h.handleFavicon)

	mux.HandleFunc("GET /relay", h.handleRelay)
	mux.HandleFunc("GET /channels", h.handleChannels)
}

// handleRelay proxies one manifest or segment request.
func (h *Handlers) handleRelay(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "url parameter required")
		return
	}

	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		h.writeError(w, http.StatusBadRequest, "invalid target url")
		return
	}

	mode, ok := types.ParseMode(r.URL.Query().Get("mode"))
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid mode")
		return
	}

	h.log.Debug("relay request", "url", raw, "mode", string(mode))

	resp, err := h.ctx.Relay.Relay(r.Context(), &types.RelayRequest{
		TargetURL:   raw,
		Mode:        mode,
		RangeHeader: r.Header.Get("Range"),
	})
	if err != nil {
		h.writeRelayError(w, raw, err)
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", resp.ContentType)
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		// Client went away mid-stream; closing the body cancels the
		// upstream fetch.
		h.log.Debug("relay stream interrupted", "url", raw, "error", err)
	}
}

// writeRelayError translates the relay error taxonomy into HTTP statuses.
// Token values must never appear in error bodies.
func (h *Handlers) writeRelayError(w http.ResponseWriter, target string, err error) {
	var authErr *auth.Error
	var resolveErr *resolver.Error
	var upstreamErr *relay.UpstreamError

	switch {
	case errors.As(err, &authErr):
		h.log.Warn("upstream auth failed", "url", target, "error", err)
		h.writeError(w, http.StatusBadGateway, "upstream authentication failed")
	case errors.As(err, &resolveErr):
		h.log.Warn("upstream resolve failed", "url", target, "error", err)
		h.writeError(w, http.StatusBadGateway, "upstream resolve failed")
	case errors.As(err, &upstreamErr):
		h.log.Warn("upstream error", "url", target, "status", upstreamErr.Status)
		h.writeJSON(w, upstreamErr.Status, map[string]any{
			"error":           "upstream error",
			"upstream_status": upstreamErr.Status,
		})
	case isTimeout(err):
		h.log.Warn("upstream timeout", "url", target)
		h.writeError(w, http.StatusGatewayTimeout, "upstream timeout")
	default:
		h.log.Error("relay failed", "url", target, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// handleChannels returns the channel catalog grouped by country.
func (h *Handlers) handleChannels(w http.ResponseWriter, r *http.Request) {
	group := r.URL.Query().Get("group")

	groups, err := h.ctx.Catalog.Channels(r.Context(), group)
	if err != nil {
		h.log.Error("catalog fetch failed", "error", err)
		h.writeError(w, http.StatusBadGateway, "catalog unavailable")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

// handleIndex serves a minimal landing page.
func (h *Handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>StreamRelay</title></head>
<body>
    <h1>StreamRelay</h1>
    <p>Endpoints:</p>
    <ul>
        <li><code>GET /relay?url=...&amp;mode=standard|auth|cdn</code></li>
        <li><code>GET /channels?group=...</code></li>
        <li><code>GET /api/info</code></li>
    </ul>
</body>
</html>`)
}

// handleAPIInfo returns server status as JSON.
func (h *Handlers) handleAPIInfo(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "running",
		"version": "1.0.0",
	})
}

// handleFavicon serves the favicon.
func (h *Handlers) handleFavicon(w http.ResponseWriter, r *http.Request) {
	http.NotFound(w, r)
}

// Helper methods

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// isTimeout reports whether err is a deadline or network timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
