// Package httpapi exposes the engine over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/sessionlens/sessiond/internal/config"
	"github.com/sessionlens/sessiond/internal/engine"
	"github.com/sessionlens/sessiond/internal/logging"
	"github.com/sessionlens/sessiond/internal/orchestrator"
	"github.com/sessionlens/sessiond/internal/relationship"
	"github.com/sessionlens/sessiond/internal/semantic"
	"github.com/sessionlens/sessiond/internal/sessionstate"
	"github.com/sessionlens/sessiond/internal/store"
)

// Server provides the HTTP endpoints for session analysis.
type Server struct {
	echo   *echo.Echo
	cfg    config.ServerConfig
	log    *logging.Logger
	store  store.Store
	sem    *semantic.Analyzer
	state  *sessionstate.Analyzer
	mapper *relationship.Mapper
	orch   *orchestrator.Orchestrator
}

// NewServer wires the HTTP surface to the analyzers and the store.
func NewServer(cfg config.ServerConfig, st store.Store, sem *semantic.Analyzer, state *sessionstate.Analyzer, mapper *relationship.Mapper, orch *orchestrator.Orchestrator, log *logging.Logger) (*Server, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
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

			log.Underlying().Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:   e,
		cfg:    cfg,
		log:    log.Named("http"),
		store:  st,
		sem:    sem,
		state:  state,
		mapper: mapper,
		orch:   orch,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/sessions", s.handleSaveSession)
	v1.GET("/sessions", s.handleListSessions)
	v1.GET("/sessions/:id/semantic", s.handleSemantic)
	v1.GET("/sessions/:id/state", s.handleState)
	v1.GET("/sessions/:id/relationships", s.handleRelationships)
	v1.POST("/orchestrate", s.handleOrchestrate)
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// OrchestrateRequest is the request body for POST /api/v1/orchestrate.
type OrchestrateRequest struct {
	SessionID string `json:"session_id"`
	Intent    string `json:"intent,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleSaveSession ingests or replaces one session document.
func (s *Server) handleSaveSession(c echo.Context) error {
	var session engine.Session
	if err := c.Bind(&session); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if session.SessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}
	if err := s.store.SaveSession(c.Request().Context(), &session); err != nil {
		if errors.Is(err, engine.ErrMissingMessages) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.log.Error(c.Request().Context(), "save session failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save session")
	}
	return c.JSON(http.StatusCreated, map[string]string{"session_id": session.SessionID})
}

func (s *Server) handleListSessions(c echo.Context) error {
	sessions, err := s.store.ListSessions(c.Request().Context(), 0)
	if err != nil {
		s.log.Error(c.Request().Context(), "list sessions failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list sessions")
	}
	return c.JSON(http.StatusOK, sessions)
}

func (s *Server) handleSemantic(c echo.Context) error {
	session, err := s.loadSession(c)
	if err != nil {
		return err
	}
	profile, err := s.sem.Analyze(c.Request().Context(), session)
	if err != nil {
		return s.analysisError(c, err)
	}
	return c.JSON(http.StatusOK, profile)
}

func (s *Server) handleState(c echo.Context) error {
	session, err := s.loadSession(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	profile, err := s.state.Analyze(ctx, session)
	if err != nil {
		return s.analysisError(c, err)
	}
	if err := s.store.SaveStateProfile(ctx, profile); err != nil {
		s.log.Warn(ctx, "state profile write-back failed", zap.Error(err))
	}
	return c.JSON(http.StatusOK, profile)
}

func (s *Server) handleRelationships(c echo.Context) error {
	session, err := s.loadSession(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	candidates, err := s.store.FindCandidateSessions(ctx, session)
	if err != nil {
		s.log.Error(ctx, "candidate lookup failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load candidates")
	}
	set, err := s.mapper.MapRelationships(ctx, session, candidates)
	if err != nil {
		return s.analysisError(c, err)
	}
	if err := s.store.SaveRelationships(ctx, set); err != nil {
		s.log.Warn(ctx, "relationship write-back failed", zap.Error(err))
	}
	return c.JSON(http.StatusOK, set)
}

func (s *Server) handleOrchestrate(c echo.Context) error {
	var req OrchestrateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.SessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}

	ctx := c.Request().Context()
	session, err := s.store.LoadSession(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		s.log.Error(ctx, "load session failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load session")
	}
	candidates, err := s.store.FindCandidateSessions(ctx, session)
	if err != nil {
		s.log.Error(ctx, "candidate lookup failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load candidates")
	}

	result, err := s.orch.Orchestrate(ctx, engine.Request{
		Session:    session,
		Candidates: candidates,
		Intent:     req.Intent,
	})
	if err != nil {
		return s.analysisError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// loadSession resolves the :id path parameter to a full session.
func (s *Server) loadSession(c echo.Context) (*engine.Session, error) {
	id := c.Param("id")
	if id == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}
	session, err := s.store.LoadSession(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		s.log.Error(c.Request().Context(), "load session failed", zap.Error(err))
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to load session")
	}
	return session, nil
}

// analysisError maps validation failures to 400 and everything else to 500.
func (s *Server) analysisError(c echo.Context, err error) error {
	if errors.Is(err, engine.ErrNilSession) || errors.Is(err, engine.ErrMissingMessages) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.log.Error(c.Request().Context(), "analysis failed", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "analysis failed")
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.log.Underlying().Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Underlying().Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
