package alerting

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/facilityops/watchpost/internal/logger"
	"github.com/facilityops/watchpost/internal/observability/metrics"
	"github.com/facilityops/watchpost/internal/simulator"
)

// defaultBusBuffer is the capacity of the async event channel. Events are
// dropped if the buffer is full to avoid blocking the detection feed.
const defaultBusBuffer = 1000

// DetectionHandler processes detection events.
type DetectionHandler func(event simulator.DetectionEvent)

// DetectionBus is an async pub/sub for detection events. Publish is
// non-blocking: events go to a buffered channel and a single worker
// goroutine hands them to the subscribers, so correlation runs on one
// logical thread.
type DetectionBus struct {
	handlers []DetectionHandler
	mu       sync.RWMutex
	eventCh  chan simulator.DetectionEvent
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	dropped  atomic.Uint64

	log     logger.Logger
	metrics *metrics.Metrics
}

// BusOption configures a DetectionBus.
type BusOption func(*DetectionBus)

// WithBusLogger sets the logger used for dropped events and handler panics.
func WithBusLogger(l logger.Logger) BusOption {
	return func(b *DetectionBus) { b.log = l }
}

// WithBusMetrics records dropped events.
func WithBusMetrics(m *metrics.Metrics) BusOption {
	return func(b *DetectionBus) { b.metrics = m }
}

// NewDetectionBus creates a bus and starts its worker. A non-positive buffer
// uses the default capacity.
func NewDetectionBus(buffer int, opts ...BusOption) *DetectionBus {
	if buffer <= 0 {
		buffer = defaultBusBuffer
	}
	b := &DetectionBus{
		eventCh: make(chan simulator.DetectionEvent, buffer),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		log:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With(logger.String("component", "detection_bus"))
	go b.processLoop()
	return b
}

// Subscribe registers a handler for detection events.
func (b *DetectionBus) Subscribe(handler DetectionHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Publish enqueues an event and reports whether it was accepted. Events are
// dropped when the buffer is full or after Stop.
func (b *DetectionBus) Publish(event simulator.DetectionEvent) bool {
	select {
	case <-b.stopCh:
		return false
	default:
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case b.eventCh <- event:
		return true
	default:
		b.dropped.Add(1)
		b.metrics.RecordBusDrop()
		b.log.Warn("detection bus full, dropping event",
			logger.String("target_type", string(event.TargetType)),
			logger.String("location", event.Location))
		return false
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (b *DetectionBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Stop shuts down the worker after draining queued events. Safe to call
// multiple times; every call returns once the worker has exited.
func (b *DetectionBus) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	<-b.doneCh
}

// processLoop drains the event channel and dispatches to handlers.
func (b *DetectionBus) processLoop() {
	defer close(b.doneCh)
	for {
		select {
		case event := <-b.eventCh:
			b.dispatch(event)
		case <-b.stopCh:
			// Drain remaining events before exiting
			for {
				select {
				case event := <-b.eventCh:
					b.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (b *DetectionBus) dispatch(event simulator.DetectionEvent) {
	b.mu.RLock()
	handlers := make([]DetectionHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.safeCall(handler, event)
	}
}

// safeCall invokes a handler with panic recovery so a panicking handler
// cannot kill the bus goroutine.
func (b *DetectionBus) safeCall(handler DetectionHandler, event simulator.DetectionEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("detection handler panicked", logger.Any("panic", r))
		}
	}()
	handler(event)
}
