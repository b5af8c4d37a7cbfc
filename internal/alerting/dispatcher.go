package alerting

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/facilityops/watchpost/internal/datastore/entities"
	"github.com/facilityops/watchpost/internal/logger"
	"github.com/facilityops/watchpost/internal/notification"
	"github.com/facilityops/watchpost/internal/simulator"
)

const timeLayout = "2006-01-02 15:04:05"

// NotificationDispatcher turns correlated detections into notifications and
// hands them to the sink.
type NotificationDispatcher struct {
	sink          notification.Sink
	titleTemplate string
	bodyTemplate  string
	location      *time.Location
	log           logger.Logger
}

// DispatcherConfig configures a NotificationDispatcher. Empty templates use
// the defaults; a nil location renders times in local time.
type DispatcherConfig struct {
	TitleTemplate string
	BodyTemplate  string
	Location      *time.Location
}

// NewNotificationDispatcher creates a dispatcher delivering to sink.
func NewNotificationDispatcher(sink notification.Sink, cfg DispatcherConfig, log logger.Logger) *NotificationDispatcher {
	if cfg.TitleTemplate == "" {
		cfg.TitleTemplate = DefaultTitleTemplate
	}
	if cfg.BodyTemplate == "" {
		cfg.BodyTemplate = DefaultBodyTemplate
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &NotificationDispatcher{
		sink:          sink,
		titleTemplate: cfg.TitleTemplate,
		bodyTemplate:  cfg.BodyTemplate,
		location:      cfg.Location,
		log:           log,
	}
}

// Build renders the notification for a rule that absorbed event.
func (d *NotificationDispatcher) Build(rule *entities.WatchRule, event *simulator.DetectionEvent, severity notification.Severity) *notification.Notification {
	n := notification.NewNotification(severity,
		d.render(d.titleTemplate, rule, event),
		d.render(d.bodyTemplate, rule, event))
	n.Icon = iconFor(rule.TargetType)
	n.RuleID = rule.ID
	if !event.Timestamp.IsZero() {
		n.Timestamp = event.Timestamp.UTC()
	}
	return n
}

// Dispatch delivers n. Sink failures are logged and reported, never retried.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, n *notification.Notification) error {
	if d.sink == nil {
		return nil
	}
	if err := d.sink.Deliver(ctx, n); err != nil {
		d.log.Error("failed to deliver notification",
			logger.Uint64("rule_id", uint64(n.RuleID)),
			logger.Error(err))
		return err
	}
	return nil
}

// render substitutes template placeholders.
func (d *NotificationDispatcher) render(tmpl string, rule *entities.WatchRule, event *simulator.DetectionEvent) string {
	name := rule.TargetName
	if name == "" {
		name = rule.TargetID
	}
	return strings.NewReplacer(
		PlaceholderTargetType, rule.TargetType.Label(),
		PlaceholderTargetID, rule.TargetID,
		PlaceholderTargetName, name,
		PlaceholderTargetInfo, rule.TargetInfo,
		PlaceholderLocation, event.Location,
		PlaceholderTime, event.Timestamp.In(d.location).Format(timeLayout),
		PlaceholderRuleText, rule.RuleText,
		PlaceholderReason, rule.Reason,
		PlaceholderAlertCount, strconv.FormatUint(rule.AlertCount, 10),
		PlaceholderEventSource, event.Source,
	).Replace(tmpl)
}
