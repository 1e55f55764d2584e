package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"stream-relay-go/pkg/appctx"
	"stream-relay-go/pkg/auth"
	"stream-relay-go/pkg/cache"
	"stream-relay-go/pkg/catalog"
	"stream-relay-go/pkg/config"
	"stream-relay-go/pkg/httpclient"
	"stream-relay-go/pkg/logging"
	"stream-relay-go/pkg/middleware"
	"stream-relay-go/pkg/relay"
	"stream-relay-go/pkg/resolver"
	"stream-relay-go/pkg/types"
)

type stubTokens struct {
	token string
	err   error
}

func (s *stubTokens) Token(ctx context.Context) (string, error) {
	return s.token, s.err
}

type stubResolver struct {
	resolved string
	err      error
}

func (s *stubResolver) Resolve(ctx context.Context, sourceURL, token string) (string, error) {
	return s.resolved, s.err
}

func testConfig() *config.Config {
	return &config.Config{
		BaseURL:            "http://localhost:7860",
		IndirectionDomains: []string{"indirection.example"},
		DeviceUserAgent:    "MediaHubMX/2",
		BrowserUserAgent:   "Mozilla/5.0 Chrome/120",
		SignatureHeader:    "mediahubmx-signature",
		ManifestTimeout:    5 * time.Second,
		SegmentTimeout:     5 * time.Second,
		VendorTimeout:      5 * time.Second,
		CatalogTTL:         time.Minute,
	}
}

func newTestMux(t *testing.T, cfg *config.Config, tokens *stubTokens, res *stubResolver) *http.ServeMux {
	t.Helper()

	log := logging.New("error", false, io.Discard)
	ctx := appctx.New(cfg, log)

	httpClient := httpclient.New(cfg, log)
	ctx.WithRelay(relay.NewService(httpClient, log, tokens, res, cfg, ctx.BaseURL))

	entries := cache.New[[]types.Channel](0)
	t.Cleanup(entries.Close)
	ctx.WithCatalog(catalog.New(httpClient, log, tokens, entries, cfg, ctx.BaseURL))

	mux := http.NewServeMux()
	NewHandlers(ctx).RegisterRoutes(mux)
	return mux
}

func doRelay(t *testing.T, mux *http.ServeMux, query string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/relay"+query, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %q", rec.Body.String())
	}
	return body
}

func TestHandleRelay_BadInput(t *testing.T) {
	mux := newTestMux(t, testConfig(), &stubTokens{}, &stubResolver{})

	tests := []struct {
		name  string
		query string
	}{
		{"missing url", ""},
		{"relative url", "?url=seg1.ts"},
		{"unsupported scheme", "?url=" + url.QueryEscape("ftp://host/file")},
		{"no host", "?url=" + url.QueryEscape("https:///path")},
		{"unknown mode", "?url=" + url.QueryEscape("https://cdn.example/a.ts") + "&mode=bogus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRelay(t, mux, tt.query)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if _, ok := decodeError(t, rec)["error"]; !ok {
				t.Error("error body missing error field")
			}
		})
	}
}

func TestHandleRelay_AuthFailure(t *testing.T) {
	tokens := &stubTokens{err: &auth.Error{Status: http.StatusForbidden}}
	mux := newTestMux(t, testConfig(), tokens, &stubResolver{})

	rec := doRelay(t, mux, "?url="+url.QueryEscape("https://indirection.example/play/1")+"&mode=cdn")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	// Token material must never leak into responses.
	if strings.Contains(rec.Body.String(), "tok") {
		t.Errorf("error body leaks token material: %q", rec.Body.String())
	}
}

func TestHandleRelay_ResolveFailure(t *testing.T) {
	tokens := &stubTokens{token: "tok"}
	res := &stubResolver{err: &resolver.Error{Reason: "no url in resolve response"}}
	mux := newTestMux(t, testConfig(), tokens, res)

	rec := doRelay(t, mux, "?url="+url.QueryEscape("https://indirection.example/play/1")+"&mode=cdn")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestHandleRelay_UpstreamStatusPassthrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer upstream.Close()

	mux := newTestMux(t, testConfig(), &stubTokens{}, &stubResolver{})

	rec := doRelay(t, mux, "?url="+url.QueryEscape(upstream.URL+"/live/index.m3u8"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want upstream 404", rec.Code)
	}
	body := decodeError(t, rec)
	if body["upstream_status"] != float64(http.StatusNotFound) {
		t.Errorf("upstream_status = %v, want 404", body["upstream_status"])
	}
}

func TestHandleRelay_Timeout(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer upstream.Close()

	cfg := testConfig()
	cfg.ManifestTimeout = 50 * time.Millisecond
	mux := newTestMux(t, cfg, &stubTokens{}, &stubResolver{})

	rec := doRelay(t, mux, "?url="+url.QueryEscape(upstream.URL+"/live/index.m3u8"))
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rec.Code)
	}
}

func TestHandleRelay_ManifestEndToEnd(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		w.Write([]byte("#EXTM3U\nseg1.ts\n"))
	}))
	defer upstream.Close()

	mux := newTestMux(t, testConfig(), &stubTokens{}, &stubResolver{})

	rec := doRelay(t, mux, "?url="+url.QueryEscape(upstream.URL+"/live/index.m3u8"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/vnd.apple.mpegurl" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "/relay?url=") {
		t.Errorf("manifest not rewritten: %q", rec.Body.String())
	}
}

func TestHandleRelay_SegmentHeaders(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/MP2T")
		w.Write([]byte("segment-bytes"))
	}))
	defer upstream.Close()

	mux := newTestMux(t, testConfig(), &stubTokens{}, &stubResolver{})

	rec := doRelay(t, mux, "?url="+url.QueryEscape(upstream.URL+"/seg1.ts"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "immutable") {
		t.Errorf("segment Cache-Control = %q, want immutable", cc)
	}
	if rec.Body.String() != "segment-bytes" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestHandleChannels(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items": [{"id": "1", "name": "News", "group": "DE", "url": "https://indirection.example/play/1"}]}`))
	}))
	defer upstream.Close()

	cfg := testConfig()
	cfg.CatalogEndpoint = upstream.URL
	mux := newTestMux(t, cfg, &stubTokens{token: "tok"}, &stubResolver{})

	req := httptest.NewRequest(http.MethodGet, "/channels", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Groups map[string][]types.Channel `json:"groups"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(body.Groups["DE"]) != 1 || body.Groups["DE"][0].Name != "News" {
		t.Errorf("groups = %+v", body.Groups)
	}
}

func TestHandleChannels_UpstreamFailure(t *testing.T) {
	cfg := testConfig()
	cfg.CatalogEndpoint = "http://127.0.0.1:1/channels"
	mux := newTestMux(t, cfg, &stubTokens{token: "tok"}, &stubResolver{})

	req := httptest.NewRequest(http.MethodGet, "/channels", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	mux := newTestMux(t, testConfig(), &stubTokens{}, &stubResolver{})
	handler := middleware.CORS(mux)

	req := httptest.NewRequest(http.MethodOptions, "/relay", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if origin := rec.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("Allow-Origin = %q", origin)
	}
	if expose := rec.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(expose, "Content-Range") {
		t.Errorf("Expose-Headers = %q, want Content-Range", expose)
	}
}

func TestAPIInfo(t *testing.T) {
	mux := newTestMux(t, testConfig(), &stubTokens{}, &stubResolver{})

	req := httptest.NewRequest(http.MethodGet, "/api/info", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "running" {
		t.Errorf("status field = %v", body["status"])
	}
}
