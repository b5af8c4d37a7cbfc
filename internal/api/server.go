// Package api hosts the watchpost HTTP server: health, metrics and the
// /api/v2 endpoints.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	v2 "github.com/facilityops/watchpost/internal/api/v2"
	"github.com/facilityops/watchpost/internal/conf"
	"github.com/facilityops/watchpost/internal/logger"
	"github.com/facilityops/watchpost/internal/observability/metrics"
	"github.com/facilityops/watchpost/internal/telemetry"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server wraps the echo instance.
type Server struct {
	echo       *echo.Echo
	controller *v2.Controller
	listen     string
	log        logger.Logger
	started    time.Time
}

// NewServer builds the router. m and deps.Reporter may be nil.
func NewServer(cfg conf.ServerSettings, deps v2.Deps, m *metrics.Metrics) *Server {
	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}
	log = log.With(logger.String("component", "http"))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(recoverMiddleware(deps.Reporter, log))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug("request",
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency))
			return nil
		},
	}))

	s := &Server{
		echo:    e,
		listen:  cfg.Listen,
		log:     log,
		started: time.Now(),
	}
	e.GET("/healthz", s.health)
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})))
	}
	s.controller = v2.New(e.Group("/api/v2"), deps)
	return s
}

// recoverMiddleware turns handler panics into 500 responses and reports them.
func recoverMiddleware(reporter *telemetry.Reporter, log logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					reporter.Recover(c.Request().Context(), r)
					log.Error("handler panicked",
						logger.String("path", c.Path()),
						logger.Any("panic", r))
					err = c.JSON(http.StatusInternalServerError, v2.ErrorResponse{
						Error: "Internal server error",
						Code:  http.StatusInternalServerError,
					})
				}
			}()
			return next(c)
		}
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.log.Info("http server listening", logger.String("listen", s.listen))
	if err := s.echo.Start(s.listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.echo.Shutdown(ctx)
}
