package alerting

import (
	"context"

	"github.com/facilityops/watchpost/internal/logger"
	"github.com/facilityops/watchpost/internal/observability/metrics"
	"github.com/facilityops/watchpost/internal/simulator"
)

// DetectionBridge feeds events pulled by a simulator.Runner into the
// detection bus. Its Handle method is a simulator.Handler.
type DetectionBridge struct {
	bus     *DetectionBus
	log     logger.Logger
	metrics *metrics.Metrics
}

// NewDetectionBridge creates a bridge publishing to bus.
func NewDetectionBridge(bus *DetectionBus, m *metrics.Metrics, log logger.Logger) *DetectionBridge {
	if log == nil {
		log = logger.NewNop()
	}
	return &DetectionBridge{bus: bus, log: log, metrics: m}
}

// Handle publishes event without blocking the runner.
func (b *DetectionBridge) Handle(_ context.Context, event simulator.DetectionEvent) {
	b.metrics.RecordDetection(event.Source, string(event.TargetType))
	b.log.Debug("detection received",
		logger.String("source", event.Source),
		logger.String("target_type", string(event.TargetType)),
		logger.String("target_id", event.TargetID),
		logger.String("location", event.Location))
	b.bus.Publish(event)
}
