// Package app provides the main application setup and dependency injection.
package app

import (
	"stream-relay-go/pkg/appctx"
	"stream-relay-go/pkg/auth"
	"stream-relay-go/pkg/cache"
	"stream-relay-go/pkg/catalog"
	"stream-relay-go/pkg/config"
	"stream-relay-go/pkg/handlers/api"
	"stream-relay-go/pkg/httpclient"
	"stream-relay-go/pkg/logging"
	"stream-relay-go/pkg/relay"
	"stream-relay-go/pkg/resolver"
	"stream-relay-go/pkg/server"
	"stream-relay-go/pkg/types"
)

// App is the main application container.
type App struct {
	Ctx        *appctx.Context
	Server     *server.Server
	HTTPClient *httpclient.Client

	credCache    *cache.Cache[types.Credential]
	locCache     *cache.Cache[string]
	catalogCache *cache.Cache[[]types.Channel]
}

// New creates and initializes the application.
func New() (*App, error) {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log := logging.New(cfg.LogLevel, cfg.LogJSON, nil)
	log.Info("initializing StreamRelay", "port", cfg.Port, "log_level", cfg.LogLevel)

	// Create application context
	ctx := appctx.New(cfg, log)

	// Create HTTP client pair (device + browser identity)
	httpClient := httpclient.New(cfg, log)

	// Caches with a defined lifecycle, injected into the components that
	// use them rather than referenced as globals.
	credCache := cache.New[types.Credential](cfg.CacheSweep)
	locCache := cache.New[string](cfg.CacheSweep)
	catalogCache := cache.New[[]types.Channel](cfg.CacheSweep)

	// Upstream resolution components
	tokens := auth.NewProvider(httpClient, log, credCache, cfg)
	locations := resolver.New(httpClient, log, locCache, cfg)

	// Relay service
	relaySvc := relay.NewService(httpClient, log, tokens, locations, cfg, ctx.BaseURL)
	ctx.WithRelay(relaySvc)

	// Catalog service
	catalogSvc := catalog.New(httpClient, log, tokens, catalogCache, cfg, ctx.BaseURL)
	ctx.WithCatalog(catalogSvc)

	// Create HTTP server and register routes
	srv := server.New(cfg, log)
	handlers := api.NewHandlers(ctx)
	handlers.RegisterRoutes(srv.Router())

	return &App{
		Ctx:          ctx,
		Server:       srv,
		HTTPClient:   httpClient,
		credCache:    credCache,
		locCache:     locCache,
		catalogCache: catalogCache,
	}, nil
}

// Run starts the application.
func (a *App) Run() error {
	a.Ctx.Log.Info("starting StreamRelay server", "port", a.Ctx.Config.Port)
	return a.Server.Start()
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() {
	a.Ctx.Log.Info("shutting down application")

	a.credCache.Close()
	a.locCache.Close()
	a.catalogCache.Close()
}
