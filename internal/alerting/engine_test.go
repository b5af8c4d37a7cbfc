package alerting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/facilityops/watchpost/internal/datastore/entities"
	"github.com/facilityops/watchpost/internal/datastore/repository"
	"github.com/facilityops/watchpost/internal/notification"
	"github.com/facilityops/watchpost/internal/observability/metrics"
	"github.com/facilityops/watchpost/internal/simulator"
	"github.com/facilityops/watchpost/internal/watch"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine_Mode(t *testing.T) {
	env := newTestEnv(t)

	engine := env.engine(t, EngineConfig{})
	assert.Equal(t, MatchByType, engine.Mode(), "type matching is the default")

	_, err := NewEngine(env.store, env.repo, nil, EngineConfig{Mode: "fuzzy"}, nil)
	assert.ErrorContains(t, err, "unknown match mode")
}

func TestCorrelate_TypeModeCountsPerType(t *testing.T) {
	env := newTestEnv(t)
	engine := env.engine(t, EngineConfig{Mode: MatchByType})
	ctx := t.Context()

	person := env.createRule(t, entities.TargetPerson, "E1001")
	vehicle := env.createRule(t, entities.TargetVehicle, "沪A12345")

	events := []simulator.DetectionEvent{
		detection(entities.TargetPerson, "E1003", "1号厂区大门", 1*time.Minute),
		detection(entities.TargetVehicle, "苏E88888", "停车场东区", 2*time.Minute),
		detection(entities.TargetPerson, "E1004", "配电房", 3*time.Minute),
		detection(entities.TargetVehicle, "浙C24680", "停车场西区", 4*time.Minute),
		detection(entities.TargetPerson, "E1005", "危化品仓库", 5*time.Minute),
	}
	for _, ev := range events {
		result, err := engine.Correlate(ctx, ev)
		require.NoError(t, err)
		assert.Len(t, result.Updated, 1)
		assert.NoError(t, result.SkipErr)
	}

	got, err := env.store.GetRule(ctx, person.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got.AlertCount)
	assert.Equal(t, "危化品仓库", got.LastKnownLocation)
	require.NotNil(t, got.LastSeenAt)
	assert.True(t, got.LastSeenAt.Equal(baseTime.Add(5*time.Minute)))

	got, err = env.store.GetRule(ctx, vehicle.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.AlertCount)
	assert.Equal(t, "停车场西区", got.LastKnownLocation)

	assert.Len(t, env.sink.Items(), 5, "one notification per updated rule")
}

func TestCorrelate_AllMatchingRulesUpdated(t *testing.T) {
	env := newTestEnv(t)
	engine := env.engine(t, EngineConfig{})

	first := env.createRule(t, entities.TargetPerson, "E1001")
	second := env.createRule(t, entities.TargetPerson, "E1002")
	env.createRule(t, entities.TargetVehicle, "沪A12345")

	result, err := engine.Correlate(t.Context(), detection(entities.TargetPerson, "E1006", "行政楼大厅", time.Minute))
	require.NoError(t, err)

	assert.Equal(t, []uint{first.ID, second.ID}, result.Matched)
	assert.Equal(t, []uint{first.ID, second.ID}, result.Updated)
	require.Len(t, result.Notifications, 2)
	assert.Equal(t, first.ID, result.Notifications[0].RuleID)
	assert.Equal(t, second.ID, result.Notifications[1].RuleID)
}

func TestCorrelate_IdentityMode(t *testing.T) {
	env := newTestEnv(t)
	engine := env.engine(t, EngineConfig{Mode: MatchByIdentity})
	ctx := t.Context()

	rule := env.createRule(t, entities.TargetVehicle, "沪A12345")

	result, err := engine.Correlate(ctx, detection(entities.TargetVehicle, "苏E88888", "停车场东区", time.Minute))
	require.NoError(t, err)
	assert.Empty(t, result.Matched)

	result, err = engine.Correlate(ctx, detection(entities.TargetVehicle, "沪a12345", "停车场东区", 2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []uint{rule.ID}, result.Updated)

	got, err := env.store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.AlertCount)
}

func TestCorrelate_IgnoresTerminalRules(t *testing.T) {
	env := newTestEnv(t)
	engine := env.engine(t, EngineConfig{})
	ctx := t.Context()

	ended := env.createRule(t, entities.TargetPerson, "E1001")
	_, err := env.store.EndRule(ctx, ended.ID, "值班主管")
	require.NoError(t, err)

	result, err := engine.Correlate(ctx, detection(entities.TargetPerson, "E1001", "配电房", time.Minute))
	require.NoError(t, err)
	assert.Empty(t, result.Matched)
	assert.Empty(t, env.sink.Items())

	got, err := env.store.GetRule(ctx, ended.ID)
	require.NoError(t, err)
	assert.Zero(t, got.AlertCount)
}

func TestCorrelate_ExpiredRulesAreNotCandidates(t *testing.T) {
	env := newTestEnv(t)
	engine := env.engine(t, EngineConfig{})
	ctx := t.Context()

	rule := env.createRule(t, entities.TargetPerson, "E1001")
	env.clock.Set(baseTime.Add(time.Hour))

	result, err := engine.Correlate(ctx, detection(entities.TargetPerson, "E1001", "配电房", 61*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, result.Matched)

	got, err := env.store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusExpired, got.Status)
}

// endingStore ends a rule right after listing, as if an operator ended it
// while the correlation pass was running.
type endingStore struct {
	*watch.Store
	endID uint
}

func (s *endingStore) ListRules(ctx context.Context, filter watch.Filter) ([]entities.WatchRule, error) {
	rules, err := s.Store.ListRules(ctx, filter)
	if err != nil {
		return nil, err
	}
	if _, err := s.Store.EndRule(ctx, s.endID, "值班主管"); err != nil {
		return nil, err
	}
	return rules, nil
}

func TestCorrelate_RuleEndedMidPassIsSkipped(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	ended := env.createRule(t, entities.TargetPerson, "E1001")
	live := env.createRule(t, entities.TargetPerson, "E1002")

	m, err := metrics.NewMetrics()
	require.NoError(t, err)
	dispatcher := NewNotificationDispatcher(env.sink, DispatcherConfig{}, nil)
	engine, err := NewEngine(&endingStore{Store: env.store, endID: ended.ID}, env.repo, dispatcher, EngineConfig{Metrics: m}, nil)
	require.NoError(t, err)

	result, err := engine.Correlate(ctx, detection(entities.TargetPerson, "E1003", "配电房", time.Minute))
	require.NoError(t, err, "a skipped rule does not fail the pass")

	assert.Equal(t, []uint{ended.ID, live.ID}, result.Matched)
	assert.Equal(t, []uint{ended.ID}, result.Skipped)
	assert.Equal(t, []uint{live.ID}, result.Updated)
	require.Error(t, result.SkipErr)
	assert.ErrorIs(t, result.SkipErr, watch.ErrInvalidState)
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(`
# HELP watchpost_correlation_skipped_total Candidate rule updates skipped during correlation.
# TYPE watchpost_correlation_skipped_total counter
watchpost_correlation_skipped_total 1
`), "watchpost_correlation_skipped_total"))

	got, err := env.store.GetRule(ctx, ended.ID)
	require.NoError(t, err)
	assert.Zero(t, got.AlertCount, "ended rules keep their final count")
	assert.Equal(t, entities.StatusEnded, got.Status)

	_, total, err := env.store.History(ctx, repository.WatchAlertFilter{RuleID: ended.ID})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCorrelate_SkippedRuleDropsRateSamples(t *testing.T) {
	env := newTestEnv(t)

	ended := env.createRule(t, entities.TargetPerson, "E1001")
	live := env.createRule(t, entities.TargetPerson, "E1002")

	dispatcher := NewNotificationDispatcher(env.sink, DispatcherConfig{}, nil)
	engine, err := NewEngine(&endingStore{Store: env.store, endID: ended.ID}, env.repo, dispatcher,
		EngineConfig{Escalation: Escalation{Threshold: 5, Window: 10 * time.Minute}}, nil)
	require.NoError(t, err)

	seen := baseTime.Add(30 * time.Second)
	engine.tracker.Record(ended.ID, seen)
	engine.tracker.Record(live.ID, seen)

	_, err = engine.Correlate(t.Context(), detection(entities.TargetPerson, "E1003", "配电房", time.Minute))
	require.NoError(t, err)

	now := baseTime.Add(time.Minute)
	assert.Zero(t, engine.tracker.Count(ended.ID, 10*time.Minute, now), "samples of a rule that left active are dropped")
	assert.Equal(t, 2, engine.tracker.Count(live.ID, 10*time.Minute, now))
}

func TestCorrelate_EscalatesBursts(t *testing.T) {
	env := newTestEnv(t)
	engine := env.engine(t, EngineConfig{Escalation: Escalation{Threshold: 3, Window: 10 * time.Minute}})
	env.createRule(t, entities.TargetPerson, "E1001")

	offsets := []time.Duration{1 * time.Minute, 2 * time.Minute, 3 * time.Minute, 20 * time.Minute}
	for _, off := range offsets {
		_, err := engine.Correlate(t.Context(), detection(entities.TargetPerson, "E1001", "配电房", off))
		require.NoError(t, err)
	}

	items := env.sink.Items()
	require.Len(t, items, 4)
	assert.Equal(t, notification.SeverityWarning, items[0].Severity)
	assert.Equal(t, notification.SeverityWarning, items[1].Severity)
	assert.Equal(t, notification.SeverityCritical, items[2].Severity)
	assert.Equal(t, notification.SeverityWarning, items[3].Severity, "the burst has left the window")
}

func TestCorrelate_SinkFailureStillCounts(t *testing.T) {
	env := newTestEnv(t)
	env.sink.err = errors.New("sink down")
	engine := env.engine(t, EngineConfig{})
	rule := env.createRule(t, entities.TargetPerson, "E1001")

	result, err := engine.Correlate(t.Context(), detection(entities.TargetPerson, "E1001", "配电房", time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []uint{rule.ID}, result.Updated)
	assert.Empty(t, result.Notifications)

	got, err := env.store.GetRule(t.Context(), rule.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.AlertCount)
}

type failingStore struct{}

func (failingStore) ListRules(context.Context, watch.Filter) ([]entities.WatchRule, error) {
	return nil, errors.New("database is locked")
}

func (failingStore) RecordDetection(context.Context, uint, string, time.Time, string) (*entities.WatchRule, error) {
	return nil, errors.New("unreachable")
}

func TestCorrelate_ListFailure(t *testing.T) {
	engine, err := NewEngine(failingStore{}, nil, NewNotificationDispatcher(nil, DispatcherConfig{}, nil), EngineConfig{}, nil)
	require.NoError(t, err)

	_, err = engine.Correlate(t.Context(), detection(entities.TargetPerson, "E1", "配电房", 0))
	assert.ErrorContains(t, err, "database is locked")

	assert.NotPanics(t, func() {
		engine.HandleEvent(detection(entities.TargetPerson, "E1", "配电房", 0))
	})
}

func TestCleanupHistory(t *testing.T) {
	env := newTestEnv(t)
	now := baseTime
	engine := env.engine(t, EngineConfig{Now: func() time.Time { return now }})
	env.createRule(t, entities.TargetPerson, "E1001")

	for i := range 3 {
		_, err := engine.Correlate(t.Context(), detection(entities.TargetPerson, "E1001", "配电房", time.Duration(i+1)*time.Minute))
		require.NoError(t, err)
	}

	assert.Zero(t, engine.CleanupHistory(30), "nothing older than the retention period")

	now = baseTime.AddDate(0, 0, 31)
	assert.Equal(t, int64(3), engine.CleanupHistory(30))
}

func TestStartHistoryCleanup_StopIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	engine := env.engine(t, EngineConfig{})

	engine.StartHistoryCleanup(0)
	engine.StartHistoryCleanup(7)
	engine.StartHistoryCleanup(7)
	engine.Stop()
	engine.Stop()
}
