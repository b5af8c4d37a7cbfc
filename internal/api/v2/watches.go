package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/facilityops/watchpost/internal/alerting"
	"github.com/facilityops/watchpost/internal/conf"
	"github.com/facilityops/watchpost/internal/datastore/entities"
	"github.com/facilityops/watchpost/internal/datastore/repository"
	"github.com/facilityops/watchpost/internal/export"
	"github.com/facilityops/watchpost/internal/logger"
	"github.com/facilityops/watchpost/internal/watch"
	"github.com/labstack/echo/v4"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// initWatchRoutes registers watch rule and alert history endpoints.
func (c *Controller) initWatchRoutes() {
	watches := c.Group.Group("/watches")
	watches.GET("", c.ListWatches)
	watches.POST("", c.CreateWatch)
	watches.GET("/schema", c.GetWatchSchema)
	watches.GET("/export", c.ExportWatches)
	watches.GET("/:id", c.GetWatch)
	watches.POST("/:id/end", c.EndWatch)

	alerts := c.Group.Group("/alerts")
	alerts.GET("/history", c.ListAlertHistory)
	alerts.DELETE("/history", c.ClearAlertHistory)
}

// CreateWatchRequest is the body of POST /watches.
type CreateWatchRequest struct {
	TargetType string    `json:"target_type"`
	TargetID   string    `json:"target_id"`
	RuleText   string    `json:"rule_text"`
	Reason     string    `json:"reason"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	CreatedBy  string    `json:"created_by"`
}

// EndWatchRequest is the optional body of POST /watches/:id/end.
type EndWatchRequest struct {
	EndedBy string `json:"ended_by"`
}

// parseWatchFilter reads target_type and status query parameters.
func parseWatchFilter(ctx echo.Context) (watch.Filter, error) {
	var filter watch.Filter
	if v := ctx.QueryParam("target_type"); v != "" {
		filter.TargetType = entities.TargetType(v)
		if !filter.TargetType.Valid() {
			return filter, fmt.Errorf("invalid target_type %q", v)
		}
	}
	if v := ctx.QueryParam("status"); v != "" {
		filter.Status = entities.RuleStatus(v)
		if !filter.Status.Valid() {
			return filter, fmt.Errorf("invalid status %q", v)
		}
	}
	return filter, nil
}

// ListWatches returns watch rules in creation order, optionally filtered.
func (c *Controller) ListWatches(ctx echo.Context) error {
	filter, err := parseWatchFilter(ctx)
	if err != nil {
		return badRequest(ctx, err.Error())
	}

	rules, err := c.watches.ListRules(ctx.Request().Context(), filter)
	if err != nil {
		return c.handleDomainError(ctx, err, "Failed to list watch rules")
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// GetWatch returns a single watch rule by ID.
func (c *Controller) GetWatch(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return badRequest(ctx, "Invalid rule ID")
	}

	rule, err := c.watches.GetRule(ctx.Request().Context(), id)
	if err != nil {
		return c.handleDomainError(ctx, err, "Failed to get watch rule")
	}
	return ctx.JSON(http.StatusOK, rule)
}

// CreateWatch creates a watch rule against a catalog entry.
func (c *Controller) CreateWatch(ctx echo.Context) error {
	var req CreateWatchRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, "Invalid request body")
	}

	rule, err := c.watches.CreateRule(ctx.Request().Context(), watch.CreateRequest{
		Target:    watch.Target{Type: entities.TargetType(req.TargetType), ID: req.TargetID},
		RuleText:  req.RuleText,
		Reason:    req.Reason,
		Window:    watch.Window{Start: req.Start, End: req.End},
		CreatedBy: req.CreatedBy,
	})
	if err != nil {
		return c.handleDomainError(ctx, err, "Failed to create watch rule")
	}

	c.log.Info("watch rule created via api",
		logger.Uint64("id", uint64(rule.ID)),
		logger.String("target_id", rule.TargetID))
	return ctx.JSON(http.StatusCreated, rule)
}

// EndWatch ends an active watch rule.
func (c *Controller) EndWatch(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return badRequest(ctx, "Invalid rule ID")
	}

	var req EndWatchRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, "Invalid request body")
	}

	rule, err := c.watches.EndRule(ctx.Request().Context(), id, req.EndedBy)
	if err != nil {
		return c.handleDomainError(ctx, err, "Failed to end watch rule")
	}
	return ctx.JSON(http.StatusOK, rule)
}

// GetWatchSchema returns the enumerations the dashboard needs.
func (c *Controller) GetWatchSchema(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, alerting.GetSchema(c.matchMode(), c.settings.Simulator.Locations))
}

// ExportWatches streams the filtered rules as CSV or XLSX.
func (c *Controller) ExportWatches(ctx echo.Context) error {
	format := ctx.QueryParam("format")
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV && format != FormatXLSX {
		return badRequest(ctx, fmt.Sprintf("Unsupported export format %q", format))
	}
	filter, err := parseWatchFilter(ctx)
	if err != nil {
		return badRequest(ctx, err.Error())
	}

	rules, err := c.watches.ListRules(ctx.Request().Context(), filter)
	if err != nil {
		return c.handleDomainError(ctx, err, "Failed to list watch rules")
	}

	loc, err := c.settings.ExportLocation()
	if err != nil {
		return c.HandleError(ctx, err, "Invalid export timezone", http.StatusInternalServerError)
	}
	opts := export.Options{
		Location: loc,
		Encoding: c.settings.Export.Encoding,
		Now:      c.watches.Now(),
	}

	var buf bytes.Buffer
	contentType := "text/csv; charset=utf-8"
	if format == FormatXLSX {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		err = export.WriteXLSX(&buf, rules, opts)
	} else {
		if opts.Encoding == conf.EncodingGB18030 {
			contentType = "text/csv; charset=gb18030"
		}
		err = export.WriteCSV(&buf, rules, opts)
	}
	if err != nil {
		return c.HandleError(ctx, err, "Failed to export watch rules", http.StatusInternalServerError)
	}

	filename := fmt.Sprintf("watches-%s.%s", opts.Now.In(loc).Format("20060102-150405"), format)
	ctx.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename="+filename)
	return ctx.Blob(http.StatusOK, contentType, buf.Bytes())
}

// ListAlertHistory returns paginated correlated detections, newest first.
func (c *Controller) ListAlertHistory(ctx echo.Context) error {
	filter := repository.WatchAlertFilter{Limit: defaultHistoryLimit}

	if v := ctx.QueryParam("rule_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return badRequest(ctx, "Invalid rule_id")
		}
		filter.RuleID = uint(id)
	}
	if v := ctx.QueryParam("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			filter.Limit = min(limit, maxHistoryLimit)
		}
	}
	if v := ctx.QueryParam("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	items, total, err := c.watches.History(ctx.Request().Context(), filter)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list alert history", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"history": items,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// ClearAlertHistory deletes every alert history record.
func (c *Controller) ClearAlertHistory(ctx echo.Context) error {
	deleted, err := c.history.DeleteHistory(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "Failed to clear alert history", http.StatusInternalServerError)
	}
	c.log.Info("alert history cleared", logger.Int64("deleted", deleted))
	return ctx.JSON(http.StatusOK, map[string]any{"deleted": deleted})
}
