// Package app assembles the watchpost services from settings and runs them
// under one supervisor.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/facilityops/watchpost/internal/alerting"
	"github.com/facilityops/watchpost/internal/api"
	v2 "github.com/facilityops/watchpost/internal/api/v2"
	"github.com/facilityops/watchpost/internal/catalog"
	"github.com/facilityops/watchpost/internal/conf"
	"github.com/facilityops/watchpost/internal/datastore"
	"github.com/facilityops/watchpost/internal/datastore/repository"
	"github.com/facilityops/watchpost/internal/logger"
	"github.com/facilityops/watchpost/internal/notification"
	"github.com/facilityops/watchpost/internal/observability/metrics"
	"github.com/facilityops/watchpost/internal/simulator"
	"github.com/facilityops/watchpost/internal/telemetry"
	"github.com/facilityops/watchpost/internal/watch"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const sentryFlushTimeout = 2 * time.Second

// App owns every long-lived component of a serve process.
type App struct {
	settings *conf.Settings
	log      logger.Logger

	db            *gorm.DB
	metrics       *metrics.Metrics
	reporter      *telemetry.Reporter
	catalog       *catalog.Service
	store         *watch.Store
	notifications *notification.Service
	bus           *alerting.DetectionBus
	engine        *alerting.Engine
	mqtt          *simulator.MQTTSource
	runners       []*simulator.Runner
	server        *api.Server

	// streamCtx ends websocket streams on shutdown.
	streamCtx    context.Context
	cancelStream context.CancelFunc
	closeOnce    sync.Once
}

// New opens the database, seeds the catalog and wires the correlation
// pipeline. Feed connections are made here so a bad broker fails fast.
func New(ctx context.Context, settings *conf.Settings, log logger.Logger, release string) (_ *App, err error) {
	if log == nil {
		log = logger.NewNop()
	}

	a := &App{settings: settings, log: log}
	a.streamCtx, a.cancelStream = context.WithCancel(context.Background())
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.reporter, err = telemetry.New(settings.Sentry, release); err != nil {
		return nil, err
	}
	if a.metrics, err = metrics.NewMetrics(); err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	if a.db, err = datastore.Open(settings.Database); err != nil {
		return nil, err
	}

	catalogRepo := repository.NewCatalogRepository(a.db)
	fixture, err := catalog.SeedFromFile(ctx, catalogRepo, settings.Catalog.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to seed catalog: %w", err)
	}
	log.Info("catalog seeded",
		logger.Int("persons", len(fixture.Persons)),
		logger.Int("vehicles", len(fixture.Vehicles)))
	a.catalog = catalog.NewService(catalogRepo, settings.Catalog.CacheTTL.Std(), log)

	watchRepo := repository.NewWatchRuleRepository(a.db)
	a.store = watch.NewStore(watchRepo, a.catalog, watch.WithLogger(log))

	a.notifications = notification.NewService(notification.ServiceConfig{
		RecentLimit: settings.Notification.RecentLimit,
		Providers:   providers(settings.Notification),
		Log:         log,
		Metrics:     a.metrics,
	})

	a.bus = alerting.NewDetectionBus(settings.Alerting.BusBuffer,
		alerting.WithBusLogger(log), alerting.WithBusMetrics(a.metrics))
	a.engine, err = alerting.Initialize(settings, alerting.Deps{
		Store:   a.store,
		History: watchRepo,
		Sink:    a.notifications,
		Bus:     a.bus,
		Metrics: a.metrics,
		Log:     log,
	})
	if err != nil {
		return nil, err
	}

	if err := a.buildRunners(ctx); err != nil {
		return nil, err
	}

	a.server = api.NewServer(settings.Server, v2.Deps{
		Watches:       a.store,
		History:       watchRepo,
		Catalog:       a.catalog,
		Notifications: a.notifications,
		Settings:      settings,
		Reporter:      a.reporter,
		Log:           log,
		Ctx:           a.streamCtx,
	}, a.metrics)
	return a, nil
}

// providers builds the configured delivery channels. Unconfigured ones are
// dropped by the notification service.
func providers(cfg conf.NotificationSettings) []notification.Provider {
	return []notification.Provider{
		notification.NewWebhookProvider(cfg.Webhook.URL, cfg.Webhook.Timeout.Std(), cfg.Webhook.RateLimit, cfg.Webhook.Burst),
		notification.NewShoutrrrProvider("shoutrrr", len(cfg.Shoutrrr.URLs) > 0, cfg.Shoutrrr.URLs, cfg.Shoutrrr.Timeout.Std()),
	}
}

func (a *App) buildRunners(ctx context.Context) error {
	bridge := alerting.NewDetectionBridge(a.bus, a.metrics, a.log)

	if sim := a.settings.Simulator; sim.Enabled {
		source, err := simulator.New(simulator.Config{
			Probability: sim.Probability,
			Locations:   sim.Locations,
			Seed:        sim.Seed,
		}, a.catalog)
		if err != nil {
			return fmt.Errorf("failed to create simulator: %w", err)
		}
		runner, err := simulator.NewRunner(source, sim.Interval.Std(), bridge.Handle,
			simulator.WithRunnerLogger(a.log.With(logger.String("source", simulator.SourceSimulator))))
		if err != nil {
			return err
		}
		a.runners = append(a.runners, runner)
	}

	if feed := a.settings.Feed.MQTT; feed.Enabled {
		a.mqtt = simulator.NewMQTTSource(feed, a.log)
		if err := a.mqtt.Start(ctx); err != nil {
			return err
		}
		batch := feed.Buffer
		if batch <= 0 {
			batch = 1
		}
		runner, err := simulator.NewRunner(a.mqtt, feed.Interval.Std(), bridge.Handle,
			simulator.WithBatch(batch),
			simulator.WithRunnerLogger(a.log.With(logger.String("source", simulator.SourceMQTT))))
		if err != nil {
			return err
		}
		a.runners = append(a.runners, runner)
	}

	if len(a.runners) == 0 {
		a.log.Warn("no detection source enabled; rules will only change through the API")
	}
	return nil
}

// Handler exposes the HTTP router.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Store exposes the watch rule store.
func (a *App) Store() *watch.Store {
	return a.store
}

// Run serves until ctx is cancelled or a component fails, then shuts down
// feeds, the bus, the engine and the HTTP server in that order.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	var feeds sync.WaitGroup
	for _, r := range a.runners {
		feeds.Add(1)
		g.Go(func() error {
			defer feeds.Done()
			return r.Run(gctx)
		})
	}

	g.Go(func() error {
		if err := a.server.Start(); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")
		feeds.Wait()
		a.bus.Stop()
		a.engine.Stop()
		a.cancelStream()
		if err := a.server.Shutdown(context.Background(), a.settings.Server.ShutdownTimeout.Std()); err != nil {
			return fmt.Errorf("http shutdown failed: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases what Run does not: the feed connection, notification
// providers, the database and buffered Sentry events. It is safe to call
// more than once.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.cancelStream()
		if a.mqtt != nil {
			a.mqtt.Stop()
		}
		if a.bus != nil {
			a.bus.Stop()
		}
		if a.engine != nil {
			a.engine.Stop()
		}
		if a.notifications != nil {
			a.notifications.Close()
		}
		if a.db != nil {
			if err := datastore.Close(a.db); err != nil {
				a.log.Warn("failed to close database", logger.Error(err))
			}
		}
		if a.reporter != nil {
			a.reporter.Flush(sentryFlushTimeout)
		}
		_ = a.log.Sync()
	})
}
