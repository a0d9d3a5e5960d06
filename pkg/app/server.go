package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes metrics and a health check over HTTP.
type Server struct {
	echo   *echo.Echo
	logger *slog.Logger
}

// NewServer creates a server serving gatherer's metrics on metricsPath.
func NewServer(gatherer prometheus.Gatherer, metricsPath string, logger *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET(metricsPath, echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return &Server{echo: e, logger: logger}
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("jobs: metrics listen: %w", err)
	}
	s.echo.Listener = ln

	go func() {
		s.logger.Info("metrics server listening", "addr", ln.Addr().String())
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.echo.Listener == nil {
		return ""
	}
	return s.echo.Listener.Addr().String()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}
