// Package simulator produces detection events for the correlation engine.
// Events come from a synthetic generator or from a real feed; both sit
// behind EventSource and are pulled on a fixed cadence by Runner.
package simulator

import (
	"context"
	"time"

	"github.com/facilityops/watchpost/internal/datastore/entities"
)

// Detection sources.
const (
	SourceSimulator = "simulator"
	SourceMQTT      = "mqtt"
)

// DetectionEvent is a single sighting of a person or vehicle. It is never
// persisted on its own.
type DetectionEvent struct {
	TargetType entities.TargetType `json:"target_type"`
	// TargetID is empty when the source cannot identify the subject.
	TargetID  string    `json:"target_id,omitempty"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// EventSource yields zero or one event per call. ok is false when nothing
// was detected this time.
type EventSource interface {
	Next(ctx context.Context) (event DetectionEvent, ok bool, err error)
}
