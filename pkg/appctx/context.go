// Package appctx provides the application context that holds all runtime dependencies.
package appctx

import (
	"fmt"

	"stream-relay-go/pkg/catalog"
	"stream-relay-go/pkg/config"
	"stream-relay-go/pkg/logging"
	"stream-relay-go/pkg/relay"
)

// Context holds all application runtime dependencies.
// Pass this single struct to components instead of individual parameters.
type Context struct {
	Config  *config.Config
	Log     *logging.Logger
	Relay   *relay.Service
	Catalog *catalog.Service
	BaseURL string
}

// New creates a new application context.
func New(cfg *config.Config, log *logging.Logger) *Context {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	return &Context{
		Config:  cfg,
		Log:     log,
		BaseURL: baseURL,
	}
}

// WithRelay sets the relay service.
func (c *Context) WithRelay(s *relay.Service) *Context {
	c.Relay = s
	return c
}

// WithCatalog sets the catalog service.
func (c *Context) WithCatalog(s *catalog.Service) *Context {
	c.Catalog = s
	return c
}
