package simulator

import (
	"context"
	"errors"
	"testing"

	"github.com/facilityops/watchpost/internal/conf"
	"github.com/facilityops/watchpost/internal/datastore/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticIDs map[entities.TargetType][]string

func (s staticIDs) IDs(_ context.Context, t entities.TargetType) ([]string, error) {
	return s[t], nil
}

type failingIDs struct{}

func (failingIDs) IDs(context.Context, entities.TargetType) ([]string, error) {
	return nil, errors.New("catalog unavailable")
}

func TestNew_RejectsBadConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Probability: 1.5, Locations: conf.DefaultLocations}, nil)
	require.Error(t, err)

	_, err = New(Config{Probability: 0.3}, nil)
	require.Error(t, err)
}

func TestSimulator_ProbabilityBounds(t *testing.T) {
	t.Parallel()

	never, err := New(Config{Probability: 0, Locations: conf.DefaultLocations, Seed: 1}, nil)
	require.NoError(t, err)
	always, err := New(Config{Probability: 1, Locations: conf.DefaultLocations, Seed: 1}, nil)
	require.NoError(t, err)

	for range 200 {
		_, ok, err := never.Next(t.Context())
		require.NoError(t, err)
		assert.False(t, ok)

		ev, ok, err := always.Next(t.Context())
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, ev.TargetType.Valid())
		assert.Contains(t, conf.DefaultLocations, ev.Location)
		assert.Equal(t, SourceSimulator, ev.Source)
		assert.Empty(t, ev.TargetID, "no id provider means no identity")
	}
}

func TestSimulator_RateAndUniformity(t *testing.T) {
	t.Parallel()

	sim, err := New(Config{Probability: 0.3, Locations: []string{"A", "B"}, Seed: 42}, nil)
	require.NoError(t, err)

	const rolls = 20000
	emitted := 0
	byType := map[entities.TargetType]int{}
	byLocation := map[string]int{}
	for range rolls {
		ev, ok, err := sim.Next(t.Context())
		require.NoError(t, err)
		if !ok {
			continue
		}
		emitted++
		byType[ev.TargetType]++
		byLocation[ev.Location]++
	}

	assert.InDelta(t, 0.3, float64(emitted)/rolls, 0.02)
	assert.InDelta(t, 0.5, float64(byType[entities.TargetPerson])/float64(emitted), 0.03)
	assert.InDelta(t, 0.5, float64(byLocation["A"])/float64(emitted), 0.03)
}

func TestSimulator_SeedIsReproducible(t *testing.T) {
	t.Parallel()

	cfg := Config{Probability: 0.5, Locations: conf.DefaultLocations, Seed: 7}
	ids := staticIDs{
		entities.TargetPerson:  {"E1", "E2", "E3"},
		entities.TargetVehicle: {"沪A1", "沪A2"},
	}
	a, err := New(cfg, ids)
	require.NoError(t, err)
	b, err := New(cfg, ids)
	require.NoError(t, err)

	for range 100 {
		evA, okA, errA := a.Next(t.Context())
		evB, okB, errB := b.Next(t.Context())
		require.NoError(t, errA)
		require.NoError(t, errB)
		require.Equal(t, okA, okB)
		assert.Equal(t, evA.TargetType, evB.TargetType)
		assert.Equal(t, evA.TargetID, evB.TargetID)
		assert.Equal(t, evA.Location, evB.Location)
		if okA {
			assert.Contains(t, ids[evA.TargetType], evA.TargetID)
		}
	}
}

func TestSimulator_IDProviderErrorFailsTheCall(t *testing.T) {
	t.Parallel()

	sim, err := New(Config{Probability: 1, Locations: conf.DefaultLocations, Seed: 3}, failingIDs{})
	require.NoError(t, err)

	_, ok, err := sim.Next(t.Context())
	assert.False(t, ok)
	assert.ErrorContains(t, err, "catalog unavailable")
}

func TestSimulator_CancelledContext(t *testing.T) {
	t.Parallel()

	sim, err := New(Config{Probability: 1, Locations: conf.DefaultLocations, Seed: 3}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, ok, err := sim.Next(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}
