// Package server exposes the orchestration engine over HTTP: a
// websocket session endpoint that speaks the execution protocol, plus
// a small REST surface for inspecting the run archive.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/jfelder/stepwise/internal/capability"
	"github.com/jfelder/stepwise/internal/config"
	"github.com/jfelder/stepwise/internal/orchestrator"
	"github.com/jfelder/stepwise/internal/state"
)

// Server hosts websocket sessions and the run archive API.
type Server struct {
	echo     *echo.Echo
	caps     capability.Set
	archive  *state.DB
	cfg      *config.Config
	logger   *zap.Logger
	limiter  *orchestrator.Limiter
	upgrader websocket.Upgrader
}

// New creates a server. archive may be nil, in which case runs are not
// persisted and the archive endpoints report 503.
func New(caps capability.Set, archive *state.DB, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg == nil {
		cfg = config.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	})

	s := &Server{
		echo:    e,
		caps:    caps,
		archive: archive,
		cfg:     cfg,
		logger:  logger,
		limiter: orchestrator.NewLimiter(cfg.Orchestrator.MaxConcurrentPlans),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Sessions are driven by local executor clients.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/ws", s.handleSession)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/runs", s.handleListRuns)
	v1.GET("/runs/:id", s.handleGetRun)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleSession upgrades the connection and runs the session protocol
// until the peer disconnects.
func (s *Server) handleSession(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return nil
	}

	sess := newSession(conn, s.caps, s.archive, s.cfg, s.limiter, s.logger)
	sess.run()
	return nil
}

func (s *Server) handleListRuns(c echo.Context) error {
	if s.archive == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "run archive disabled")
	}

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	runs, err := s.archive.ListRuns(limit)
	if err != nil {
		s.logger.Error("list runs", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "list runs failed")
	}
	if runs == nil {
		runs = []state.RunSummary{}
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *Server) handleGetRun(c echo.Context) error {
	if s.archive == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "run archive disabled")
	}

	plan, err := s.archive.GetRun(c.Param("id"))
	if errors.Is(err, state.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	if err != nil {
		s.logger.Error("get run", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "get run failed")
	}
	return c.JSON(http.StatusOK, plan)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.echo.Shutdown(ctx)
}
