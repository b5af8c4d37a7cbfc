package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/facilityops/watchpost/internal/datastore/entities"
)

// IDProvider lists known identifiers per target type.
type IDProvider interface {
	IDs(ctx context.Context, targetType entities.TargetType) ([]string, error)
}

// Config controls the synthetic generator.
type Config struct {
	// Probability is the chance that a call to Next yields an event.
	Probability float64
	Locations   []string
	// Seed makes the sequence reproducible. Zero picks a random seed.
	Seed uint64
}

// Simulator synthesizes detections: with probability p per call it picks a
// target type and a location uniformly, and a subject from the catalog when
// one is available.
type Simulator struct {
	mu  sync.Mutex
	rng *rand.Rand
	cfg Config
	ids IDProvider
	now func() time.Time
}

// New creates a Simulator. ids may be nil, in which case events carry no
// target ID.
func New(cfg Config, ids IDProvider) (*Simulator, error) {
	if cfg.Probability < 0 || cfg.Probability > 1 {
		return nil, fmt.Errorf("probability %v must be within [0, 1]", cfg.Probability)
	}
	if len(cfg.Locations) == 0 {
		return nil, errors.New("at least one location is required")
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Simulator{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		cfg: cfg,
		ids: ids,
		now: time.Now,
	}, nil
}

// Next rolls for a detection.
func (s *Simulator) Next(ctx context.Context) (DetectionEvent, bool, error) {
	if err := ctx.Err(); err != nil {
		return DetectionEvent{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rng.Float64() >= s.cfg.Probability {
		return DetectionEvent{}, false, nil
	}

	event := DetectionEvent{
		TargetType: entities.TargetTypes[s.rng.IntN(len(entities.TargetTypes))],
		Location:   s.cfg.Locations[s.rng.IntN(len(s.cfg.Locations))],
		Timestamp:  s.now().UTC(),
		Source:     SourceSimulator,
	}

	if s.ids != nil {
		ids, err := s.ids.IDs(ctx, event.TargetType)
		if err != nil {
			return DetectionEvent{}, false, fmt.Errorf("failed to list %s ids: %w", event.TargetType, err)
		}
		if len(ids) > 0 {
			event.TargetID = ids[s.rng.IntN(len(ids))]
		}
	}
	return event, true, nil
}
