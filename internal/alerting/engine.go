package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/facilityops/watchpost/internal/datastore/entities"
	"github.com/facilityops/watchpost/internal/logger"
	"github.com/facilityops/watchpost/internal/notification"
	"github.com/facilityops/watchpost/internal/observability/metrics"
	"github.com/facilityops/watchpost/internal/simulator"
	"github.com/facilityops/watchpost/internal/watch"
	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
)

const (
	// correlateTimeout bounds one correlation pass started from the bus.
	correlateTimeout = 5 * time.Second
	// cleanupTimeout is the context deadline for the periodic history deletion.
	cleanupTimeout = 5 * time.Second
	// cleanupInterval is how often the history cleanup goroutine runs.
	cleanupInterval = 1 * time.Hour
)

// RuleStore is the part of the watch store the engine drives.
type RuleStore interface {
	ListRules(ctx context.Context, filter watch.Filter) ([]entities.WatchRule, error)
	RecordDetection(ctx context.Context, id uint, location string, at time.Time, source string) (*entities.WatchRule, error)
}

// HistoryCleaner deletes old alert history.
type HistoryCleaner interface {
	DeleteHistoryBefore(ctx context.Context, before time.Time) (int64, error)
}

// CorrelationResult summarises one correlation pass.
type CorrelationResult struct {
	Event simulator.DetectionEvent
	// Matched lists candidate rule IDs in creation order.
	Matched []uint
	Updated []uint
	Skipped []uint
	// Notifications were handed to the sink in creation order.
	Notifications []*notification.Notification
	// SkipErr aggregates the reason for every skipped rule.
	SkipErr error
}

// Escalation raises the severity of notifications for rules that see many
// detections in a short time.
type Escalation struct {
	Threshold int
	Window    time.Duration
}

// Engine correlates detection events with active watch rules.
type Engine struct {
	store      RuleStore
	history    HistoryCleaner
	dispatcher *NotificationDispatcher
	mode       MatchMode
	escalation Escalation
	tracker    *RateTracker
	log        logger.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	// History cleanup
	cleanupMu   sync.Mutex
	cleanupStop chan struct{}
	cleanupDone chan struct{}
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	Mode       MatchMode
	Escalation Escalation
	Metrics    *metrics.Metrics
	// Now replaces time.Now for cleanup cutoffs, mainly for tests.
	Now func() time.Time
}

// NewEngine creates a correlation engine.
func NewEngine(store RuleStore, history HistoryCleaner, dispatcher *NotificationDispatcher, cfg EngineConfig, log logger.Logger) (*Engine, error) {
	if cfg.Mode == "" {
		cfg.Mode = MatchByType
	}
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("unknown match mode %q", cfg.Mode)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{
		store:      store,
		history:    history,
		dispatcher: dispatcher,
		mode:       cfg.Mode,
		escalation: cfg.Escalation,
		tracker:    NewRateTracker(),
		log:        log.With(logger.String("component", "correlation")),
		metrics:    cfg.Metrics,
		now:        cfg.Now,
	}, nil
}

// Mode returns the active match mode.
func (e *Engine) Mode() MatchMode {
	return e.mode
}

// Correlate applies event to every matching active rule. A rule that cannot
// be updated (for example because it ended after the candidates were listed)
// is logged and skipped; the pass continues with the remaining rules. The
// returned error is non-nil only when the candidates cannot be listed.
func (e *Engine) Correlate(ctx context.Context, event simulator.DetectionEvent) (*CorrelationResult, error) {
	active, err := e.store.ListRules(ctx, watch.Filter{Status: entities.StatusActive})
	if err != nil {
		return nil, fmt.Errorf("failed to list active watch rules: %w", err)
	}
	e.metrics.SetActiveRules(len(active))

	candidates := lo.Filter(active, func(rule entities.WatchRule, _ int) bool {
		return Matches(e.mode, &rule, &event)
	})
	result := &CorrelationResult{
		Event:   event,
		Matched: lo.Map(candidates, func(rule entities.WatchRule, _ int) uint { return rule.ID }),
	}

	var skipErrs *multierror.Error
	for i := range candidates {
		id := candidates[i].ID
		updated, err := e.store.RecordDetection(ctx, id, event.Location, event.Timestamp, event.Source)
		if err != nil {
			result.Skipped = append(result.Skipped, id)
			skipErrs = multierror.Append(skipErrs, fmt.Errorf("rule %d: %w", id, err))
			e.metrics.RecordSkipped()
			e.logSkip(id, &event, err)
			if errors.Is(err, watch.ErrInvalidState) || errors.Is(err, watch.ErrNotFound) {
				e.tracker.Forget(id)
			}
			continue
		}
		result.Updated = append(result.Updated, id)
		e.metrics.RecordCorrelation(string(updated.TargetType))

		n := e.dispatcher.Build(updated, &event, e.severityFor(updated.ID, event.Timestamp))
		if err := e.dispatcher.Dispatch(ctx, n); err == nil {
			result.Notifications = append(result.Notifications, n)
		}
	}
	result.SkipErr = skipErrs.ErrorOrNil()

	if len(result.Updated) > 0 || len(result.Skipped) > 0 {
		e.log.Info("detection correlated",
			logger.String("target_type", string(event.TargetType)),
			logger.String("location", event.Location),
			logger.Int("matched", len(result.Matched)),
			logger.Int("updated", len(result.Updated)),
			logger.Int("skipped", len(result.Skipped)))
	}
	return result, nil
}

func (e *Engine) logSkip(id uint, event *simulator.DetectionEvent, err error) {
	fields := []logger.Field{
		logger.Uint64("rule_id", uint64(id)),
		logger.String("location", event.Location),
		logger.Error(err),
	}
	if errors.Is(err, watch.ErrInvalidState) || errors.Is(err, watch.ErrNotFound) {
		e.log.Warn("skipped watch rule update", fields...)
		return
	}
	e.log.Error("failed to update watch rule", fields...)
}

// severityFor records the detection and escalates to critical when the rule
// crossed the escalation threshold.
func (e *Engine) severityFor(ruleID uint, at time.Time) notification.Severity {
	if e.escalation.Threshold <= 0 {
		return notification.SeverityWarning
	}
	e.tracker.Record(ruleID, at)
	if e.tracker.Count(ruleID, e.escalation.Window, at) >= e.escalation.Threshold {
		return notification.SeverityCritical
	}
	return notification.SeverityWarning
}

// HandleEvent is the bus subscriber. Errors are logged; it never panics the bus.
func (e *Engine) HandleEvent(event simulator.DetectionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), correlateTimeout)
	defer cancel()
	if _, err := e.Correlate(ctx, event); err != nil {
		e.log.Error("correlation failed",
			logger.String("target_type", string(event.TargetType)),
			logger.Error(err))
	}
}

// StartHistoryCleanup starts a background goroutine that periodically deletes
// alert history entries older than retentionDays. A value of 0 disables cleanup.
func (e *Engine) StartHistoryCleanup(retentionDays int) {
	if retentionDays <= 0 || e.history == nil {
		return
	}
	// Stop any existing cleanup goroutine before starting a new one.
	e.stopCleanup()
	e.cleanupMu.Lock()
	e.cleanupStop = make(chan struct{})
	e.cleanupDone = make(chan struct{})
	stopCh, doneCh := e.cleanupStop, e.cleanupDone
	e.cleanupMu.Unlock()

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.CleanupHistory(retentionDays)
			case <-stopCh:
				return
			}
		}
	}()
}

// CleanupHistory deletes history older than retentionDays once.
func (e *Engine) CleanupHistory(retentionDays int) int64 {
	cutoff := e.now().UTC().AddDate(0, 0, -retentionDays)
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	deleted, err := e.history.DeleteHistoryBefore(ctx, cutoff)
	if err != nil {
		e.log.Error("alert history cleanup failed", logger.Error(err))
		return 0
	}
	if deleted > 0 {
		e.log.Info("alert history cleanup completed",
			logger.Int64("deleted", deleted),
			logger.Int("retention_days", retentionDays))
	}
	return deleted
}

// stopCleanup signals the cleanup goroutine to exit and waits for it.
func (e *Engine) stopCleanup() {
	e.cleanupMu.Lock()
	stopCh, doneCh := e.cleanupStop, e.cleanupDone
	e.cleanupStop, e.cleanupDone = nil, nil
	e.cleanupMu.Unlock()
	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}
}

// Stop shuts down background goroutines (history cleanup).
func (e *Engine) Stop() {
	e.stopCleanup()
}
