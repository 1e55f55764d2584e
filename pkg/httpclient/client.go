// Package httpclient provides outbound HTTP clients for the two identity
// profiles the relay presents upstream, with optional proxy routing.
package httpclient

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stream-relay-go/pkg/config"
	"stream-relay-go/pkg/logging"
	"stream-relay-go/pkg/types"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"
)

// Client bundles the device-identity and browser-identity HTTP clients.
// The device client is a plain pooled transport; the browser client carries
// a Chrome TLS fingerprint so CDN-side fingerprint checks see a browser.
type Client struct {
	deviceClient  *http.Client
	browserClient *http.Client
	log           *logging.Logger
}

// ipv4DialContext forces IPv4-only connections. Avoids stalls in
// environments where IPv6 is advertised but not routable.
func ipv4DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if network == "tcp" {
		network = "tcp4"
	}
	d := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 60 * time.Second,
	}
	return d.DialContext(ctx, network, addr)
}

// New creates a new client pair from the given configuration.
func New(cfg *config.Config, log *logging.Logger) *Client {
	c := &Client{
		log: log.WithComponent("httpclient"),
	}

	transport := &http.Transport{
		DialContext:           ipv4DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if len(cfg.GlobalProxies) > 0 {
		c.applyProxy(transport, cfg.GlobalProxies[0])
	}

	c.deviceClient = &http.Client{Transport: transport}
	c.browserClient = &http.Client{Transport: newUTLSRoundTripper()}

	return c
}

// applyProxy routes the transport through an HTTP or SOCKS5 proxy URL.
func (c *Client) applyProxy(transport *http.Transport, proxyURL string) {
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		c.log.Error("failed to parse proxy URL", "url", proxyURL, "error", err)
		return
	}

	switch parsed.Scheme {
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(parsed, proxy.Direct)
		if err != nil {
			c.log.Error("failed to create SOCKS5 dialer", "error", err)
			return
		}
		if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = contextDialer.DialContext
		} else {
			transport.Dial = dialer.Dial
		}
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsed)
	default:
		c.log.Warn("unsupported proxy scheme", "scheme", parsed.Scheme)
	}
}

// ForIdentity returns the underlying http.Client for an identity profile.
func (c *Client) ForIdentity(id types.Identity) *http.Client {
	if id == types.IdentityBrowser {
		return c.browserClient
	}
	return c.deviceClient
}

// Do executes a request with the device-identity client. This satisfies
// interfaces.HTTPClient for the components that only talk to the vendor
// endpoints (auth, resolve, catalog).
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.deviceClient.Do(req)
}

// DoAs executes a request with the client for the given identity profile.
func (c *Client) DoAs(req *http.Request, id types.Identity) (*http.Response, error) {
	return c.ForIdentity(id).Do(req)
}

// utlsRoundTripper implements http.RoundTripper with utls and HTTP/2 support.
type utlsRoundTripper struct {
	dialer      *net.Dialer
	h2Transport *http2.Transport
}

func newUTLSRoundTripper() *utlsRoundTripper {
	return &utlsRoundTripper{
		dialer: &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 60 * time.Second,
		},
		h2Transport: &http2.Transport{
			DisableCompression: false,
			AllowHTTP:          false,
		},
	}
}

func (t *utlsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// Only handle HTTPS
	if req.URL.Scheme != "https" {
		return http.DefaultTransport.RoundTrip(req)
	}

	addr := req.URL.Host
	if !strings.Contains(addr, ":") {
		addr = addr + ":443"
	}

	// Force IPv4
	conn, err := t.dialer.DialContext(req.Context(), "tcp4", addr)
	if err != nil {
		return nil, err
	}

	// Create utls connection with Chrome fingerprint
	tlsConfig := &utls.Config{
		ServerName: req.URL.Hostname(),
	}
	utlsConn := utls.UClient(conn, tlsConfig, utls.HelloChrome_120)

	if err := utlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, err
	}

	if utlsConn.ConnectionState().NegotiatedProtocol == "h2" {
		h2Conn, err := t.h2Transport.NewClientConn(utlsConn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return h2Conn.RoundTrip(req)
	}

	// Fallback to HTTP/1.1
	return t.doHTTP1Request(utlsConn, req)
}

func (t *utlsRoundTripper) doHTTP1Request(conn net.Conn, req *http.Request) (*http.Response, error) {
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, err
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		conn.Close()
		return nil, err
	}

	// Wrap body to close connection when done
	resp.Body = &connCloser{resp.Body, conn}
	return resp, nil
}

type connCloser struct {
	io.ReadCloser
	conn net.Conn
}

func (c *connCloser) Close() error {
	c.ReadCloser.Close()
	return c.conn.Close()
}
