package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"stream-relay-go/pkg/config"
	"stream-relay-go/pkg/logging"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name           string
		configPassword string
		path           string
		queryPassword  string
		headerPassword string
		wantStatus     int
	}{
		{
			name:           "no password configured",
			configPassword: "",
			path:           "/relay",
			wantStatus:     http.StatusOK,
		},
		{
			name:           "correct query parameter",
			configPassword: "secret123",
			path:           "/relay",
			queryPassword:  "secret123",
			wantStatus:     http.StatusOK,
		},
		{
			name:           "correct header",
			configPassword: "secret123",
			path:           "/relay",
			headerPassword: "secret123",
			wantStatus:     http.StatusOK,
		},
		{
			name:           "wrong password",
			configPassword: "secret123",
			path:           "/relay",
			queryPassword:  "wrong",
			wantStatus:     http.StatusUnauthorized,
		},
		{
			name:           "missing password",
			configPassword: "secret123",
			path:           "/relay",
			wantStatus:     http.StatusUnauthorized,
		},
		{
			name:           "public endpoint skips auth",
			configPassword: "secret123",
			path:           "/api/info",
			wantStatus:     http.StatusOK,
		},
	}

	log := logging.New("error", false, io.Discard)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{APIPassword: tt.configPassword}
			handler := Auth(cfg, log)(okHandler())

			target := tt.path
			if tt.queryPassword != "" {
				target += "?api_password=" + tt.queryPassword
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.headerPassword != "" {
				req.Header.Set("X-API-Password", tt.headerPassword)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	handler := RequestID(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/relay", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated X-Request-ID header")
	}

	// An incoming ID is preserved, not replaced.
	req = httptest.NewRequest(http.MethodGet, "/relay", nil)
	req.Header.Set("X-Request-ID", "client-id-1")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "client-id-1" {
		t.Errorf("X-Request-ID = %q, want client-supplied value", got)
	}
}

func TestRecovery(t *testing.T) {
	log := logging.New("error", false, io.Discard)
	handler := Recovery(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/relay", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mk := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := Chain(okHandler(), mk("first"), mk("second"))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("middleware order = %v, want [first second]", order)
	}
}
