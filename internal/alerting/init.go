package alerting

import (
	"fmt"
	"time"

	"github.com/facilityops/watchpost/internal/conf"
	"github.com/facilityops/watchpost/internal/logger"
	"github.com/facilityops/watchpost/internal/notification"
	"github.com/facilityops/watchpost/internal/observability/metrics"
)

// Deps are the collaborators wired by Initialize.
type Deps struct {
	Store   RuleStore
	History HistoryCleaner
	Sink    notification.Sink
	Bus     *DetectionBus
	Metrics *metrics.Metrics
	Log     logger.Logger
}

// Initialize creates the correlation engine from settings, subscribes it to
// the detection bus and starts the history cleanup.
func Initialize(settings *conf.Settings, deps Deps) (*Engine, error) {
	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}

	loc, err := settings.ExportLocation()
	if err != nil {
		return nil, err
	}

	dispatcher := NewNotificationDispatcher(deps.Sink, DispatcherConfig{
		TitleTemplate: settings.Alerting.TitleTemplate,
		BodyTemplate:  settings.Alerting.BodyTemplate,
		Location:      loc,
	}, log)

	engine, err := NewEngine(deps.Store, deps.History, dispatcher, EngineConfig{
		Mode: MatchMode(settings.Correlation.MatchMode),
		Escalation: Escalation{
			Threshold: settings.Alerting.EscalationThreshold,
			Window:    settings.Alerting.EscalationWindow.Std(),
		},
		Metrics: deps.Metrics,
		Now:     time.Now,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create correlation engine: %w", err)
	}

	if deps.Bus != nil {
		deps.Bus.Subscribe(engine.HandleEvent)
	}
	engine.StartHistoryCleanup(settings.Alerting.HistoryRetentionDays)

	log.Info("correlation engine initialized",
		logger.String("match_mode", string(engine.Mode())),
		logger.Int("escalation_threshold", settings.Alerting.EscalationThreshold))
	return engine, nil
}
