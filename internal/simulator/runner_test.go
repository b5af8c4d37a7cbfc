package simulator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/facilityops/watchpost/internal/datastore/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type step struct {
	event DetectionEvent
	ok    bool
	err   error
}

// scriptedSource replays steps, then reports nothing.
type scriptedSource struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (s *scriptedSource) Next(context.Context) (DetectionEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.steps) == 0 {
		return DetectionEvent{}, false, nil
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	return st.event, st.ok, st.err
}

type recorder struct {
	mu     sync.Mutex
	events []DetectionEvent
}

func (r *recorder) handle(_ context.Context, ev DetectionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []DetectionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DetectionEvent(nil), r.events...)
}

func event(loc string) DetectionEvent {
	return DetectionEvent{TargetType: entities.TargetPerson, Location: loc, Source: SourceSimulator}
}

func TestNewRunner_Validation(t *testing.T) {
	_, err := NewRunner(nil, time.Second, func(context.Context, DetectionEvent) {})
	require.Error(t, err)
	_, err = NewRunner(&scriptedSource{}, 0, func(context.Context, DetectionEvent) {})
	require.Error(t, err)
}

func TestRunner_TickSkipsOnSourceError(t *testing.T) {
	src := &scriptedSource{steps: []step{
		{err: errors.New("sensor offline")},
		{event: event("配电房"), ok: true},
		{ok: false},
	}}
	rec := &recorder{}
	r, err := NewRunner(src, time.Second, rec.handle)
	require.NoError(t, err)

	assert.Equal(t, 0, r.Tick(t.Context()), "failed tick handles nothing")
	assert.Equal(t, 1, r.Tick(t.Context()), "next tick continues normally")
	assert.Equal(t, 0, r.Tick(t.Context()))
	assert.Equal(t, []DetectionEvent{event("配电房")}, rec.snapshot())
}

func TestRunner_BatchDrainsUntilEmpty(t *testing.T) {
	src := &scriptedSource{steps: []step{
		{event: event("A"), ok: true},
		{event: event("B"), ok: true},
		{event: event("C"), ok: true},
	}}
	rec := &recorder{}
	r, err := NewRunner(src, time.Second, rec.handle, WithBatch(10))
	require.NoError(t, err)

	assert.Equal(t, 3, r.Tick(t.Context()))
	assert.Equal(t, 4, src.calls, "stops at the first empty pull")
}

func TestRunner_HandlerPanicDoesNotStopTicks(t *testing.T) {
	src := &scriptedSource{steps: []step{
		{event: event("A"), ok: true},
		{event: event("B"), ok: true},
	}}
	calls := 0
	r, err := NewRunner(src, time.Second, func(_ context.Context, ev DetectionEvent) {
		calls++
		if ev.Location == "A" {
			panic("boom")
		}
	})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		r.Tick(t.Context())
		r.Tick(t.Context())
	})
	assert.Equal(t, 2, calls)
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	src := &scriptedSource{steps: []step{
		{event: event("A"), ok: true},
		{err: errors.New("transient")},
		{event: event("B"), ok: true},
	}}
	rec := &recorder{}
	r, err := NewRunner(src, 5*time.Millisecond, rec.handle)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
	assert.Equal(t, "B", rec.snapshot()[1].Location)
}
