// Package api serves the run status, an interrupt endpoint and Prometheus
// metrics over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gwillem/armseq/pkg/sequencer"
)

// Controller is the part of the sequencer the API exposes.
type Controller interface {
	Status() sequencer.State
	Interrupt() bool
}

// Server provides the HTTP endpoints.
type Server struct {
	echo   *echo.Echo
	ctrl   Controller
	logger *zap.Logger
}

// NewServer creates a server. gatherer may be nil to leave out /metrics.
func NewServer(ctrl Controller, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Debug("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	})

	s := &Server{echo: e, ctrl: ctrl, logger: logger}

	e.GET("/health", s.handleHealth)
	api := e.Group("/api")
	api.GET("/status", s.handleStatus)
	api.POST("/interrupt", s.handleInterrupt)
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return s
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// InterruptResponse is the response body for POST /api/interrupt.
type InterruptResponse struct {
	Interrupted bool   `json:"interrupted"`
	Program     string `json:"program,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleInterrupt(c echo.Context) error {
	st := s.ctrl.Status()
	if !s.ctrl.Interrupt() {
		return echo.NewHTTPError(http.StatusConflict, "no program running")
	}
	s.logger.Info("Interrupt requested over HTTP",
		zap.String("program", st.Program),
		zap.String("remote", c.RealIP()),
	)
	return c.JSON(http.StatusAccepted, InterruptResponse{Interrupted: true, Program: st.Program})
}

// ServeHTTP lets the server be used as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
