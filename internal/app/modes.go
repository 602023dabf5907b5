package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantpulse/microflow/internal/domain"
	"github.com/quantpulse/microflow/internal/feature"
	"github.com/quantpulse/microflow/internal/feed"
	"github.com/quantpulse/microflow/internal/monitor"
	"github.com/quantpulse/microflow/internal/notify"
	"github.com/quantpulse/microflow/internal/platform/bybit"
	"github.com/quantpulse/microflow/internal/publish"
	"github.com/quantpulse/microflow/internal/server"
	"github.com/quantpulse/microflow/internal/server/handler"
)

// EngineMode runs the streaming engine: workers, publisher, and staleness
// watcher, without the HTTP API.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startEngine(ctx, g, deps)

	return g.Wait()
}

// ServeMode runs only the HTTP API, reading features from the shared cache
// populated by an engine process elsewhere.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	if !a.cfg.Server.Enabled {
		return fmt.Errorf("app: serve mode requires server.enabled")
	}

	g, ctx := errgroup.WithContext(ctx)

	source := &cachedFeatureSource{
		cache:       deps.FeatureCache,
		instruments: a.cfg.Instruments,
	}
	a.startHTTPServer(ctx, g, source, nil)

	return g.Wait()
}

// FullMode runs the engine and the HTTP API in one process. The API reads
// the live in-process feature store.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	store, sup := a.startEngine(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, &liveFeatureSource{store: store}, workerInfos(sup))
	}

	return g.Wait()
}

// startEngine launches the supervisor, snapshot publisher, and staleness
// watcher on the errgroup and returns the live store and supervisor.
func (a *App) startEngine(ctx context.Context, g *errgroup.Group, deps *Dependencies) (*feature.Store, *feed.Supervisor) {
	store := feature.NewStore(a.cfg.Instruments)

	dialer := bybit.NewDialer(
		bybit.WithURL(a.cfg.Feed.WSURL),
		bybit.WithDepth(a.cfg.Feed.Depth),
		bybit.WithQuoteSuffix(a.cfg.Feed.QuoteSuffix),
	)

	sup := feed.NewSupervisor(a.cfg.Instruments, dialer, store, feed.WorkerConfig{
		BackoffFloor:   a.cfg.Feed.BackoffFloor.Duration,
		BackoffCeiling: a.cfg.Feed.BackoffCeiling.Duration,
		IdleTimeout:    a.cfg.Feed.IdleTimeout.Duration,
		TradeRetention: a.cfg.Features.Retention.Duration,
	}, a.logger)
	g.Go(func() error {
		return sup.Run(ctx)
	})

	publisher := publish.NewPublisher(store, publish.Config{
		Path:     a.cfg.Features.SnapshotPath,
		Interval: a.cfg.Features.PublishInterval.Duration,
	}, a.logger)
	publisher.WithCache(deps.FeatureCache)
	publisher.WithBus(deps.SignalBus, a.cfg.Redis.SnapshotChannel)
	if deps.SnapshotStore != nil {
		publisher.WithStore(deps.SnapshotStore)
	}
	if deps.BlobWriter != nil {
		publisher.WithBlob(deps.BlobWriter, a.cfg.S3.ObjectKey)
	}
	g.Go(func() error {
		return publisher.Run(ctx)
	})

	watcher := monitor.NewWatcher(store, deps.Notifier, monitor.Config{
		StaleAfter:    a.cfg.Notify.StaleAfter.Duration,
		CheckInterval: a.cfg.Notify.CheckInterval.Duration,
	}, a.logger)
	g.Go(func() error {
		return watcher.Run(ctx)
	})

	// Lifecycle alerts are best effort.
	if err := deps.Notifier.Notify(ctx, notify.EventEngineStart, "Engine started",
		fmt.Sprintf("Streaming %d instruments.", len(a.cfg.Instruments))); err != nil {
		a.logger.WarnContext(ctx, "start alert failed", slog.String("error", err.Error()))
	}
	g.Go(func() error {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := deps.Notifier.Notify(stopCtx, notify.EventEngineStop, "Engine stopping", ""); err != nil {
			a.logger.Warn("stop alert failed", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})

	return store, sup
}

// startHTTPServer adds the HTTP server goroutine plus a shutdown watcher to
// the errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, source handler.FeatureSource, workers func() []handler.WorkerInfo) {
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
	}, server.Handlers{
		Health:   handler.NewHealthHandler(a.logger),
		Features: handler.NewFeatureHandler(source, a.logger),
		Status:   handler.NewStatusHandler(a.cfg.Mode, workers),
	}, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("server shutdown", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})
}

// workerInfos exposes the supervisor's worker states for the status
// endpoint.
func workerInfos(sup *feed.Supervisor) func() []handler.WorkerInfo {
	return func() []handler.WorkerInfo {
		workers := sup.Workers()
		out := make([]handler.WorkerInfo, 0, len(workers))
		for _, w := range workers {
			out = append(out, handler.WorkerInfo{
				Instrument: w.Instrument(),
				Feed:       string(w.Feed()),
				State:      w.State().String(),
			})
		}
		return out
	}
}

// liveFeatureSource serves API reads from the in-process feature store.
type liveFeatureSource struct {
	store *feature.Store
}

func (s *liveFeatureSource) Records(ctx context.Context) (map[string]domain.FeatureRecord, error) {
	return s.store.ReadAll(), nil
}

func (s *liveFeatureSource) Record(ctx context.Context, instrument string) (domain.FeatureRecord, error) {
	rec, ok := s.store.Get(instrument)
	if !ok {
		return domain.FeatureRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

// cachedFeatureSource serves API reads from the shared cache. Configured
// instruments that have no cached record yet surface as empty records, so
// serve mode matches the engine's view of the instrument set.
type cachedFeatureSource struct {
	cache       domain.FeatureCache
	instruments []string
}

func (s *cachedFeatureSource) Records(ctx context.Context) (map[string]domain.FeatureRecord, error) {
	cached, err := s.cache.GetRecords(ctx, s.instruments)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.FeatureRecord, len(s.instruments))
	for _, inst := range s.instruments {
		out[inst] = cached[inst]
	}
	return out, nil
}

func (s *cachedFeatureSource) Record(ctx context.Context, instrument string) (domain.FeatureRecord, error) {
	known := false
	for _, inst := range s.instruments {
		if inst == instrument {
			known = true
			break
		}
	}
	if !known {
		return domain.FeatureRecord{}, domain.ErrNotFound
	}

	rec, err := s.cache.GetRecord(ctx, instrument)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Known instrument, no data published yet.
			return domain.FeatureRecord{}, nil
		}
		return domain.FeatureRecord{}, err
	}
	return rec, nil
}
