// Package server exposes Dify agents as AG-UI endpoints over Server-Sent
// Events.
//
// Routes, relative to the configured base path:
//
//	POST /:agent_id/send-message  run the agent and stream AG-UI events
//	POST /send-message            same, when exactly one agent is configured
//	GET  /healthz                 service health
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/spetersoncode/difybridge/agui"
	"github.com/spetersoncode/difybridge/config"
)

// ShutdownTimeout bounds graceful shutdown after the serve context ends.
const ShutdownTimeout = 30 * time.Second

// ServiceName is reported by the health endpoint.
const ServiceName = "difybridge"

// Runner runs one AG-UI request. *agent.Agent implements it.
type Runner interface {
	Run(ctx context.Context, input *agui.RunAgentInput) <-chan events.Event
}

// Server routes AG-UI requests to agents.
type Server struct {
	cfg    config.ServerConfig
	agents map[string]Runner
	ids    []string
	logger *slog.Logger
	echo   *echo.Echo
}

// New creates a server for the given agents, keyed by agent id.
// A nil logger uses slog.Default().
func New(cfg config.ServerConfig, agents map[string]Runner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	ids := make([]string, 0, len(agents))
	for id := range agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	s := &Server{
		cfg:    cfg,
		agents: agents,
		ids:    ids,
		logger: logger,
		echo:   echo.New(),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Use(middleware.Recover())
	s.echo.Use(s.requestLogger())
	if cfg.CORS {
		s.echo.Use(middleware.CORS())
	}

	s.RegisterRoutes(s.echo)
	return s
}

// RegisterRoutes registers the AG-UI routes under the base path.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	g := e.Group(s.cfg.BasePath)
	g.POST("/:agent_id/send-message", s.SendMessage)
	g.POST("/send-message", s.SendMessage)
	g.GET("/healthz", s.Health)
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on the configured port until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server starting",
			"addr", addr,
			"base_path", s.basePath(),
			"agents", s.ids,
		)
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	err := g.Wait()
	s.logger.Info("server stopped")
	return err
}

func (s *Server) basePath() string {
	if s.cfg.BasePath == "" {
		return "/"
	}
	return s.cfg.BasePath
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			}
			if v.Error != nil {
				s.logger.Warn("request", append(attrs, "error", v.Error)...)
				return nil
			}
			s.logger.Debug("request", attrs...)
			return nil
		},
	})
}
