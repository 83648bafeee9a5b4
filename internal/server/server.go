package server

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/arkturian/share-proxy/internal/api/events"
	"github.com/arkturian/share-proxy/internal/api/imageproxy"
	"github.com/arkturian/share-proxy/internal/api/objects"
	"github.com/arkturian/share-proxy/internal/middleware"
	"github.com/arkturian/share-proxy/pkg/cache"
	"github.com/arkturian/share-proxy/pkg/config"
	"github.com/arkturian/share-proxy/pkg/fetch"
	"github.com/arkturian/share-proxy/pkg/logging"
)

const proxyName = "share-proxy"

// Server represents the proxy server
type Server struct {
	echo       *echo.Echo
	addr       string
	instanceID string
}

// New creates a new proxy server instance and wires the three proxy
// variants onto it.
func New(e *echo.Echo, cfg config.Config, instanceID string) (*Server, error) {
	// The events cache is content-addressed forever: the key encodes the
	// transform, so entries never expire. The other variants refetch after
	// the configured TTL.
	eventsStore, err := cache.NewFileStore(cfg.Cache.EventsDir, 0)
	if err != nil {
		return nil, err
	}
	proxyStore, err := cache.NewFileStore(cfg.Cache.ProxyDir, cfg.Cache.TTL)
	if err != nil {
		return nil, err
	}
	objectsStore, err := cache.NewFileStore(cfg.Cache.ObjectsDir, cfg.Cache.TTL)
	if err != nil {
		return nil, err
	}

	eventsHandler := events.NewHandler(cfg.Media.Root, eventsStore)
	proxyHandler := imageproxy.NewHandler(proxyStore, fetch.NewHTTPFetcher(30*time.Second))
	// Object payloads can be large, so this fetcher gets a longer budget.
	objectsHandler := objects.NewHandler(objectsStore, fetch.NewHTTPFetcher(60*time.Second), cfg.Upstream.APIKey, cfg.Cache.MaxBytes,
		func(host string) string {
			return config.ResolveUpstreamBase(host, config.Get())
		})

	events.RegisterRoutes(e.Group("/events", middleware.ProxyIDMiddleware(proxyName+"/events")), eventsHandler)
	imageproxy.RegisterRoutes(e.Group("/imageproxy", middleware.ProxyIDMiddleware(proxyName)), proxyHandler)
	objects.RegisterRoutes(e.Group("/objects", middleware.ProxyIDMiddleware(proxyName+"/objects")), objectsHandler)

	srv := &Server{
		echo:       e,
		addr:       cfg.Server.Addr,
		instanceID: instanceID,
	}

	// Health check (no auth - for load balancers/probes)
	// Supports ?info=true to return instance information
	e.GET("/health", srv.handleHealth)

	return srv, nil
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(c echo.Context) error {
	if c.QueryParam("info") == "true" {
		return c.JSON(200, map[string]string{
			"proxy":       proxyName,
			"instance_id": s.instanceID,
		})
	}
	return c.NoContent(200)
}

// Start starts the proxy server
func (s *Server) Start() error {
	logging.Logger.Info("Starting server", zap.String("addr", s.addr))
	return s.echo.Start(s.addr)
}
