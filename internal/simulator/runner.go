package simulator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/facilityops/watchpost/internal/logger"
)

// Handler receives every event pulled by a Runner.
type Handler func(ctx context.Context, event DetectionEvent)

// Runner pulls an EventSource on a fixed interval and pushes the events to a
// Handler. A source error only skips the current tick.
type Runner struct {
	source   EventSource
	interval time.Duration
	batch    int
	handler  Handler
	log      logger.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithBatch lets one tick pull up to n events. Buffered feeds use it to
// drain faster than one event per interval.
func WithBatch(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.batch = n
		}
	}
}

// WithRunnerLogger sets the runner logger.
func WithRunnerLogger(l logger.Logger) RunnerOption {
	return func(r *Runner) { r.log = l }
}

// NewRunner creates a Runner. interval must be positive.
func NewRunner(source EventSource, interval time.Duration, handler Handler, opts ...RunnerOption) (*Runner, error) {
	if source == nil || handler == nil {
		return nil, errors.New("runner requires a source and a handler")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("runner interval %v must be positive", interval)
	}
	r := &Runner{
		source:   source,
		interval: interval,
		batch:    1,
		handler:  handler,
		log:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(logger.String("component", "detection_runner"))
	return r, nil
}

// Run ticks until ctx is cancelled. The tick in progress when ctx is
// cancelled completes before Run returns.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("detection runner started", logger.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.log.Info("detection runner stopped")
			return nil
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick performs one pull cycle and reports how many events were handled.
func (r *Runner) Tick(ctx context.Context) int {
	handled := 0
	for range r.batch {
		event, ok, err := r.source.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				r.log.Warn("detection source failed, skipping tick", logger.Error(err))
			}
			return handled
		}
		if !ok {
			return handled
		}
		r.dispatch(ctx, event)
		handled++
	}
	return handled
}

func (r *Runner) dispatch(ctx context.Context, event DetectionEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("detection handler panicked",
				logger.Any("panic", rec),
				logger.String("target_type", string(event.TargetType)),
				logger.String("location", event.Location))
		}
	}()
	r.handler(ctx, event)
}
