// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port         int
	BaseURL      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Authentication
	APIPassword string

	// Upstream endpoints
	AuthEndpoint    string
	ResolveEndpoint string
	CatalogEndpoint string

	// Hosts treated as the upstream indirection domain. A target URL whose
	// host matches (or is a subdomain of) one of these is eligible for the
	// auth and resolve steps.
	IndirectionDomains []string

	// Identity profiles
	DeviceUserAgent  string
	BrowserUserAgent string
	SignatureHeader  string

	// Resolve request metadata
	Language      string
	Region        string
	ClientVersion string

	// Cache TTLs
	TokenTTL    time.Duration
	ResolveTTL  time.Duration
	CatalogTTL  time.Duration
	CacheSweep  time.Duration

	// Fetch timeouts
	ManifestTimeout time.Duration
	SegmentTimeout  time.Duration
	VendorTimeout   time.Duration

	// Outbound proxy settings
	GlobalProxies []string

	// Logging
	LogLevel string
	LogJSON  bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	port := getEnvInt("PORT", 7860)
	cfg := &Config{
		Port:         port,
		BaseURL:      getEnvString("BASE_URL", fmt.Sprintf("http://localhost:%d", port)),
		ReadTimeout:  getEnvDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout: getEnvDuration("WRITE_TIMEOUT", 120*time.Second),
		IdleTimeout:  getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		APIPassword:  os.Getenv("API_PASSWORD"),

		AuthEndpoint:    getEnvString("AUTH_ENDPOINT", "https://www.vavoo.tv/api/app/ping"),
		ResolveEndpoint: getEnvString("RESOLVE_ENDPOINT", "https://vavoo.to/mediahubmx-resolve.json"),
		CatalogEndpoint: getEnvString("CATALOG_ENDPOINT", "https://vavoo.to/channels"),

		IndirectionDomains: getEnvStringSlice("INDIRECTION_DOMAINS", []string{"vavoo.to", "vavoo.tv"}),

		DeviceUserAgent:  getEnvString("DEVICE_USER_AGENT", "MediaHubMX/2"),
		BrowserUserAgent: getEnvString("BROWSER_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		SignatureHeader:  getEnvString("SIGNATURE_HEADER", "mediahubmx-signature"),

		Language:      getEnvString("RESOLVE_LANGUAGE", "de"),
		Region:        getEnvString("RESOLVE_REGION", "AT"),
		ClientVersion: getEnvString("RESOLVE_CLIENT_VERSION", "3.0.2"),

		TokenTTL:   getEnvDuration("TOKEN_TTL", time.Hour),
		ResolveTTL: getEnvDuration("RESOLVE_TTL", 30*time.Minute),
		CatalogTTL: getEnvDuration("CATALOG_TTL", 15*time.Minute),
		CacheSweep: getEnvDuration("CACHE_SWEEP_INTERVAL", 5*time.Minute),

		ManifestTimeout: getEnvDuration("MANIFEST_TIMEOUT", 30*time.Second),
		SegmentTimeout:  getEnvDuration("SEGMENT_TIMEOUT", 60*time.Second),
		VendorTimeout:   getEnvDuration("VENDOR_TIMEOUT", 30*time.Second),

		GlobalProxies: getEnvStringSlice("GLOBAL_PROXIES", nil),

		LogLevel: getEnvString("LOG_LEVEL", "info"),
		LogJSON:  getEnvBool("LOG_JSON", false),
	}

	// Legacy single proxy support
	if globalProxy := os.Getenv("GLOBAL_PROXY"); globalProxy != "" && len(cfg.GlobalProxies) == 0 {
		cfg.GlobalProxies = []string{globalProxy}
	}

	return cfg
}

// IsIndirectionHost reports whether host belongs to the configured
// upstream indirection domain.
func (c *Config) IsIndirectionHost(host string) bool {
	host = strings.ToLower(host)
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	for _, d := range c.IndirectionDomains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return strings.ToLower(val) == "true" || val == "1"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		// Try parsing as seconds first
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
		// Try parsing as duration string
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultVal
}
