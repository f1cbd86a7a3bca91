// Package api exposes the HTTP and WebSocket surface: library
// browsing, item management, stats, and the Overseerr webhook.
package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/iPromKnight/riven/internal/content"
	"github.com/iPromKnight/riven/internal/scheduler"
	"github.com/iPromKnight/riven/internal/store"
	"github.com/iPromKnight/riven/internal/symlinker"
	"github.com/iPromKnight/riven/internal/websocket"
	"github.com/iPromKnight/riven/internal/workflow"
)

// Server handles HTTP requests for the riven API.
type Server struct {
	echo      *echo.Echo
	store     *store.Store
	engine    *workflow.Engine
	symlinker *symlinker.Service
	overseerr *content.Overseerr
	scheduler *scheduler.Scheduler
	hub       *websocket.Hub
	logger    zerolog.Logger
}

// Options carries the optional collaborators.
type Options struct {
	Symlinker *symlinker.Service
	Overseerr *content.Overseerr
	Scheduler *scheduler.Scheduler
}

// NewServer creates a new API server instance.
func NewServer(st *store.Store, engine *workflow.Engine, hub *websocket.Hub, opts Options, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		store:     st,
		engine:    engine,
		symlinker: opts.Symlinker,
		overseerr: opts.Overseerr,
		scheduler: opts.Scheduler,
		hub:       hub,
		logger:    logger.With().Str("component", "api").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())

	s.echo.Use(middleware.RequestID())

	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Info().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))

	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			// Skip compression for WebSocket
			return c.Request().Header.Get("Upgrade") == "websocket"
		},
	}))
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/ws", s.hub.HandleWebSocket)

	api := s.echo.Group("/api/v1")
	api.GET("/stats", s.getStats)
	api.GET("/tasks", s.listTasks)

	api.GET("/items", s.listItems)
	api.GET("/items/:imdb", s.getItem)
	api.DELETE("/items/:imdb", s.deleteItem)
	api.POST("/items/:imdb/retry", s.retryItem)

	api.POST("/webhook/overseerr", s.overseerrWebhook)
}

// Start begins listening for HTTP requests.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
