package httpclient

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"stream-relay-go/pkg/config"
	"stream-relay-go/pkg/logging"
	"stream-relay-go/pkg/types"
)

func newTestClient(cfg *config.Config) *Client {
	return New(cfg, logging.New("error", false, io.Discard))
}

func TestForIdentity(t *testing.T) {
	c := newTestClient(&config.Config{})

	device := c.ForIdentity(types.IdentityDevice)
	browser := c.ForIdentity(types.IdentityBrowser)

	if device == browser {
		t.Error("device and browser identities must use separate clients")
	}
	if _, ok := device.Transport.(*http.Transport); !ok {
		t.Errorf("device transport is %T, want *http.Transport", device.Transport)
	}
	if _, ok := browser.Transport.(*utlsRoundTripper); !ok {
		t.Errorf("browser transport is %T, want *utlsRoundTripper", browser.Transport)
	}
}

func TestDoAs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := newTestClient(&config.Config{})

	for _, id := range []types.Identity{types.IdentityDevice, types.IdentityBrowser} {
		req, err := http.NewRequest(http.MethodGet, server.URL, nil)
		if err != nil {
			t.Fatal(err)
		}
		resp, err := c.DoAs(req, id)
		if err != nil {
			t.Fatalf("identity %q: %v", id, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(body) != "ok" {
			t.Errorf("identity %q: body = %q", id, body)
		}
	}
}

func TestNew_HTTPProxy(t *testing.T) {
	c := newTestClient(&config.Config{
		GlobalProxies: []string{"http://proxy.example:8080"},
	})

	transport, ok := c.deviceClient.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("device transport is %T", c.deviceClient.Transport)
	}
	if transport.Proxy == nil {
		t.Error("expected device transport to route through the configured proxy")
	}
}

func TestNew_InvalidProxyIgnored(t *testing.T) {
	c := newTestClient(&config.Config{
		GlobalProxies: []string{"::not-a-url::"},
	})

	transport := c.deviceClient.Transport.(*http.Transport)
	if transport.Proxy != nil {
		t.Error("invalid proxy URL must leave the transport direct")
	}
}
