// Package http serves the agent, knowledge search and stored sessions over
// a JSON API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentkb/internal/agent"
	"github.com/fyrsmithlabs/agentkb/internal/config"
	"github.com/fyrsmithlabs/agentkb/internal/logging"
	"github.com/fyrsmithlabs/agentkb/internal/model"
	"github.com/fyrsmithlabs/agentkb/internal/storage"
	"github.com/fyrsmithlabs/agentkb/internal/vectorstore"
)

// Runner answers questions within a session.
type Runner interface {
	Run(ctx context.Context, sessionID, input string, onChunk model.ChunkFunc) (*agent.Result, error)
}

// Searcher returns knowledge references for a query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]vectorstore.SearchResult, error)
}

// Deps are the components the API exposes. Knowledge may be nil.
type Deps struct {
	Agent     Runner
	Knowledge Searcher
	Sessions  storage.Store
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// ConfigFrom converts the application's server section.
func ConfigFrom(c config.ServerConfig) *Config {
	return &Config{Host: c.Host, Port: c.Port}
}

// Server provides the HTTP endpoints.
type Server struct {
	echo    *echo.Echo
	deps    Deps
	metrics *RunMetrics
	logger  *logging.Logger
	config  *Config
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *logging.Logger, cfg *Config) (*Server, error) {
	if deps.Agent == nil {
		return nil, fmt.Errorf("agent cannot be nil")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9090,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	e.Use(NewHTTPMetrics(logger.Underlying()).MetricsMiddleware())

	s := &Server{
		echo:    e,
		deps:    deps,
		metrics: NewRunMetrics(),
		logger:  logger,
		config:  cfg,
	}
	s.registerRoutes()
	return s, nil
}

// requestLogger puts the request id and logger in the request context and
// logs each request once it completes.
func requestLogger(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			ctx := logging.WithRequestID(c.Request().Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			ctx = logging.WithLogger(ctx, logger)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("route", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/ask", s.handleAsk)
	v1.POST("/knowledge/search", s.handleSearch)
	v1.GET("/sessions", s.handleListSessions)
	v1.GET("/sessions/:id", s.handleGetSession)
	v1.DELETE("/sessions/:id", s.handleDeleteSession)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleAsk(c echo.Context) error {
	ctx := c.Request().Context()
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(ctx, "invalid ask request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx = logging.WithSessionID(ctx, req.SessionID)
	start := time.Now()
	res, err := s.deps.Agent.Run(ctx, req.SessionID, req.Question, nil)
	s.metrics.Observe(time.Since(start), err)
	if err != nil {
		return s.httpError(ctx, err)
	}

	ctx = logging.WithRunID(logging.WithSessionID(ctx, res.SessionID), res.RunID)
	s.logger.Debug(ctx, "answered", zap.Int("references", len(res.References)))

	resp := AskResponse{
		SessionID: res.SessionID,
		RunID:     res.RunID,
		Answer:    res.Output,
	}
	if req.References {
		resp.References = toReferences(res.References)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSearch(c echo.Context) error {
	if s.deps.Knowledge == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no knowledge configured")
	}

	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	results, err := s.deps.Knowledge.Search(ctx, req.Query)
	if err != nil {
		return s.httpError(ctx, err)
	}
	return c.JSON(http.StatusOK, SearchResponse{Results: toReferences(results)})
}

func (s *Server) handleListSessions(c echo.Context) error {
	ctx := c.Request().Context()
	ids, err := s.deps.Sessions.List(ctx)
	if err != nil {
		return s.httpError(ctx, err)
	}
	return c.JSON(http.StatusOK, SessionListResponse{Sessions: ids, Count: len(ids)})
}

func (s *Server) handleGetSession(c echo.Context) error {
	ctx := logging.WithSessionID(c.Request().Context(), c.Param("id"))
	session, err := s.deps.Sessions.Read(ctx, c.Param("id"))
	if err != nil {
		return s.httpError(ctx, err)
	}
	return c.JSON(http.StatusOK, session)
}

func (s *Server) handleDeleteSession(c echo.Context) error {
	ctx := logging.WithSessionID(c.Request().Context(), c.Param("id"))
	if err := s.deps.Sessions.Delete(ctx, c.Param("id")); err != nil {
		return s.httpError(ctx, err)
	}
	s.logger.Info(ctx, "session deleted")
	return c.NoContent(http.StatusNoContent)
}

// httpError maps domain errors to status codes. Unknown errors are logged
// and reported as 500 without detail.
func (s *Server) httpError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, agent.ErrEmptyInput),
		errors.Is(err, storage.ErrInvalidSessionID),
		errors.Is(err, vectorstore.ErrInvalidQuery):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "request cancelled")
	default:
		s.logger.Error(ctx, "request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
