package alerting

import (
	"sync"
	"time"
)

const (
	// maxSamplesPerRule is the maximum number of detections retained per rule.
	maxSamplesPerRule = 120
	// maxSampleAge is the maximum age of a detection before eviction.
	maxSampleAge = time.Hour
)

// RateTracker keeps recent detection times per rule so a burst of sightings
// can escalate the notification severity.
type RateTracker struct {
	buffers map[uint][]time.Time
	mu      sync.RWMutex
}

// NewRateTracker creates a new RateTracker.
func NewRateTracker() *RateTracker {
	return &RateTracker{
		buffers: make(map[uint][]time.Time),
	}
}

// Record adds a detection and evicts stale entries.
func (t *RateTracker) Record(ruleID uint, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	samples := append(t.buffers[ruleID], at)

	// Evict samples older than maxSampleAge
	cutoff := at.Add(-maxSampleAge)
	start := 0
	for start < len(samples) && samples[start].Before(cutoff) {
		start++
	}
	samples = samples[start:]

	// Cap buffer size
	if len(samples) > maxSamplesPerRule {
		samples = samples[len(samples)-maxSamplesPerRule:]
	}

	t.buffers[ruleID] = samples
}

// Count returns how many detections of ruleID fall within (now-window, now].
func (t *RateTracker) Count(ruleID uint, window time.Duration, now time.Time) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	from := now.Add(-window)
	n := 0
	for _, s := range t.buffers[ruleID] {
		if s.After(from) && !s.After(now) {
			n++
		}
	}
	return n
}

// Forget drops the samples of a rule.
func (t *RateTracker) Forget(ruleID uint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.buffers, ruleID)
}
