package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/facilityops/watchpost/internal/logger"
	"github.com/facilityops/watchpost/internal/observability/metrics"
	"github.com/google/uuid"
)

const (
	defaultRecentLimit     = 200
	defaultProviderTimeout = 10 * time.Second
	subscriberBuffer       = 32
)

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// RecentLimit caps the in-memory history served to the dashboard.
	RecentLimit     int
	ProviderTimeout time.Duration
	Providers       []Provider
	Log             logger.Logger
	Metrics         *metrics.Metrics
}

// Service is the default Sink.
type Service struct {
	mu          sync.RWMutex
	recent      []*Notification // oldest first
	limit       int
	subscribers map[chan *Notification]struct{}
	closed      bool

	providers       []Provider
	providerTimeout time.Duration
	providerWG      sync.WaitGroup

	log     logger.Logger
	metrics *metrics.Metrics
}

// NewService creates a Service. Disabled or misconfigured providers are
// logged and left out.
func NewService(cfg ServiceConfig) *Service {
	log := cfg.Log
	if log == nil {
		log = logger.NewNop()
	}
	log = log.With(logger.String("component", "notification"))

	limit := cfg.RecentLimit
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	timeout := cfg.ProviderTimeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}

	var providers []Provider
	for _, p := range cfg.Providers {
		if !p.Enabled() {
			continue
		}
		if err := p.ValidateConfig(); err != nil {
			log.Warn("notification provider disabled: invalid configuration",
				logger.String("provider", p.Name()),
				logger.Error(err))
			continue
		}
		providers = append(providers, p)
	}

	return &Service{
		limit:           limit,
		subscribers:     make(map[chan *Notification]struct{}),
		providers:       providers,
		providerTimeout: timeout,
		log:             log,
		metrics:         cfg.Metrics,
	}
}

// Deliver records n, broadcasts it to subscribers and hands it to every
// provider in the background. Provider failures are logged, not returned.
func (s *Service) Deliver(ctx context.Context, n *Notification) error {
	if n == nil {
		return errors.New("notification is nil")
	}
	if !n.Severity.Valid() {
		return fmt.Errorf("invalid notification severity %q", n.Severity)
	}
	if n.Title == "" {
		return errors.New("notification title is required")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("notification service is closed")
	}
	s.recent = append(s.recent, n)
	if over := len(s.recent) - s.limit; over > 0 {
		s.recent = append(s.recent[:0:0], s.recent[over:]...)
	}
	for ch := range s.subscribers {
		select {
		case ch <- n:
		default:
			s.log.Debug("subscriber too slow, notification skipped", logger.String("id", n.ID))
		}
	}
	s.providerWG.Add(len(s.providers))
	s.mu.Unlock()

	s.metrics.RecordNotification(string(n.Severity))

	sendCtx := context.WithoutCancel(ctx)
	for _, p := range s.providers {
		go s.send(sendCtx, p, n)
	}
	return nil
}

func (s *Service) send(ctx context.Context, p Provider, n *Notification) {
	defer s.providerWG.Done()
	ctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	if err := p.Send(ctx, n); err != nil {
		s.metrics.RecordProviderFailure(p.Name())
		s.log.Error("notification provider failed",
			logger.String("provider", p.Name()),
			logger.String("notification_id", n.ID),
			logger.Error(err))
	}
}

// Recent returns up to limit notifications, newest first. A non-positive
// limit returns everything retained.
func (s *Service) Recent(limit int) []*Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.recent) {
		limit = len(s.recent)
	}
	out := make([]*Notification, 0, limit)
	for i := len(s.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.recent[i])
	}
	return out
}

// Subscribe returns a channel that receives every new notification and a
// function that cancels the subscription. Slow subscribers miss entries
// rather than block delivery.
func (s *Service) Subscribe() (<-chan *Notification, func()) {
	ch := make(chan *Notification, subscriberBuffer)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subscribers[ch]; ok {
				delete(s.subscribers, ch)
				close(ch)
			}
		})
	}
}

// Close waits for in-flight provider sends and closes every subscription.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.mu.Unlock()

	s.providerWG.Wait()
}
