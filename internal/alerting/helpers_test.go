package alerting

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/facilityops/watchpost/internal/catalog"
	"github.com/facilityops/watchpost/internal/conf"
	"github.com/facilityops/watchpost/internal/datastore"
	"github.com/facilityops/watchpost/internal/datastore/entities"
	"github.com/facilityops/watchpost/internal/datastore/repository"
	"github.com/facilityops/watchpost/internal/notification"
	"github.com/facilityops/watchpost/internal/simulator"
	"github.com/facilityops/watchpost/internal/watch"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// recordingSink captures delivered notifications.
type recordingSink struct {
	mu    sync.Mutex
	items []*notification.Notification
	err   error
}

func (s *recordingSink) Deliver(_ context.Context, n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.items = append(s.items, n)
	return nil
}

func (s *recordingSink) Items() []*notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*notification.Notification(nil), s.items...)
}

type testEnv struct {
	store *watch.Store
	repo  repository.WatchRuleRepository
	clock *fakeClock
	sink  *recordingSink
}

// newTestEnv builds a watch store on a seeded in-memory database.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := datastore.Open(conf.DatabaseSettings{
		Driver: conf.DriverSQLite,
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=ON", uuid.NewString()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = datastore.Close(db) })

	catRepo := repository.NewCatalogRepository(db)
	_, err = catalog.SeedFromFile(t.Context(), catRepo, "")
	require.NoError(t, err)

	repo := repository.NewWatchRuleRepository(db)
	clock := &fakeClock{t: baseTime}
	return &testEnv{
		store: watch.NewStore(repo, catalog.NewService(catRepo, time.Minute, nil), watch.WithClock(clock.Now)),
		repo:  repo,
		clock: clock,
		sink:  &recordingSink{},
	}
}

func (e *testEnv) engine(t *testing.T, cfg EngineConfig) *Engine {
	t.Helper()
	dispatcher := NewNotificationDispatcher(e.sink, DispatcherConfig{Location: time.UTC}, nil)
	engine, err := NewEngine(e.store, e.repo, dispatcher, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(engine.Stop)
	return engine
}

func (e *testEnv) createRule(t *testing.T, targetType entities.TargetType, id string) *entities.WatchRule {
	t.Helper()
	rule, err := e.store.CreateRule(t.Context(), watch.CreateRequest{
		Target:    watch.Target{Type: targetType, ID: id},
		RuleText:  "禁止进入危化品仓库",
		Reason:    "安全违规",
		Window:    watch.Window{Start: baseTime, End: baseTime.Add(time.Hour)},
		CreatedBy: "值班主管",
	})
	require.NoError(t, err)
	return rule
}

func detection(targetType entities.TargetType, id, location string, offset time.Duration) simulator.DetectionEvent {
	return simulator.DetectionEvent{
		TargetType: targetType,
		TargetID:   id,
		Location:   location,
		Timestamp:  baseTime.Add(offset),
		Source:     simulator.SourceSimulator,
	}
}
