// Package api implements the /api/v2 JSON endpoints of the watchpost
// dashboard.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/facilityops/watchpost/internal/alerting"
	"github.com/facilityops/watchpost/internal/catalog"
	"github.com/facilityops/watchpost/internal/conf"
	"github.com/facilityops/watchpost/internal/datastore/entities"
	"github.com/facilityops/watchpost/internal/datastore/repository"
	"github.com/facilityops/watchpost/internal/logger"
	"github.com/facilityops/watchpost/internal/notification"
	"github.com/facilityops/watchpost/internal/telemetry"
	"github.com/facilityops/watchpost/internal/watch"
	"github.com/labstack/echo/v4"
)

// WatchService is the watch store as seen by the API.
type WatchService interface {
	CreateRule(ctx context.Context, req watch.CreateRequest) (*entities.WatchRule, error)
	EndRule(ctx context.Context, id uint, endedBy string) (*entities.WatchRule, error)
	GetRule(ctx context.Context, id uint) (*entities.WatchRule, error)
	ListRules(ctx context.Context, filter watch.Filter) ([]entities.WatchRule, error)
	History(ctx context.Context, filter repository.WatchAlertFilter) ([]entities.WatchAlert, int64, error)
	Now() time.Time
}

// HistoryStore clears recorded alerts.
type HistoryStore interface {
	DeleteHistory(ctx context.Context) (int64, error)
}

// NotificationFeed serves recent notifications and the live stream.
type NotificationFeed interface {
	Recent(limit int) []*notification.Notification
	Subscribe() (<-chan *notification.Notification, func())
}

// Deps are the collaborators behind the endpoints. Reporter may be nil.
type Deps struct {
	Watches       WatchService
	History       HistoryStore
	Catalog       catalog.Catalog
	Notifications NotificationFeed
	Settings      *conf.Settings
	Reporter      *telemetry.Reporter
	Log           logger.Logger
	// Ctx ends long-lived streams on shutdown.
	Ctx context.Context
}

// Controller holds the route handlers.
type Controller struct {
	Group *echo.Group

	watches       WatchService
	history       HistoryStore
	catalog       catalog.Catalog
	notifications NotificationFeed
	settings      *conf.Settings
	reporter      *telemetry.Reporter
	log           logger.Logger
	ctx           context.Context
}

// New registers every route on group and returns the controller.
func New(group *echo.Group, deps Deps) *Controller {
	if deps.Log == nil {
		deps.Log = logger.NewNop()
	}
	if deps.Ctx == nil {
		deps.Ctx = context.Background()
	}
	if deps.Settings == nil {
		deps.Settings = conf.Default()
	}
	c := &Controller{
		Group:         group,
		watches:       deps.Watches,
		history:       deps.History,
		catalog:       deps.Catalog,
		notifications: deps.Notifications,
		settings:      deps.Settings,
		reporter:      deps.Reporter,
		log:           deps.Log.With(logger.String("component", "api")),
		ctx:           deps.Ctx,
	}
	c.initWatchRoutes()
	c.initCatalogRoutes()
	c.initNotificationRoutes()
	return c
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, watch.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, watch.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, watch.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// HandleError writes a JSON error. Server errors are logged and reported.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	if code >= http.StatusInternalServerError {
		c.log.Error(message,
			logger.String("path", ctx.Path()),
			logger.Error(err))
		c.reporter.CaptureError(err, map[string]string{
			"path":   ctx.Path(),
			"method": ctx.Request().Method,
		})
	}
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Message = err.Error()
	}
	return ctx.JSON(code, resp)
}

// handleDomainError picks the status for err and writes it.
func (c *Controller) handleDomainError(ctx echo.Context, err error, message string) error {
	return c.HandleError(ctx, err, message, statusFor(err))
}

func badRequest(ctx echo.Context, message string) error {
	return ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: message, Code: http.StatusBadRequest})
}

// parseUintParam parses a uint route parameter.
func parseUintParam(ctx echo.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(v), nil
}

// matchMode returns the configured correlation mode.
func (c *Controller) matchMode() alerting.MatchMode {
	return alerting.MatchMode(c.settings.Correlation.MatchMode)
}
