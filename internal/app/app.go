// Package app wires all Animus subsystems into a running service.
//
// The App struct owns the full lifecycle: New connects Postgres and Redis,
// runs migrations and builds the job pipeline; Run starts the HTTP server and
// every background loop; Shutdown tears everything down in order.
//
// Providers are constructed by main.go through the config registry and handed
// in as interface values, so tests can substitute mocks without touching any
// wiring here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/animus-ai/animus/internal/config"
	"github.com/animus-ai/animus/internal/configcascade"
	"github.com/animus-ai/animus/internal/dedup"
	"github.com/animus-ai/animus/internal/health"
	"github.com/animus-ai/animus/internal/httpapi"
	"github.com/animus-ai/animus/internal/jobs"
	"github.com/animus-ai/animus/internal/observe"
	"github.com/animus-ai/animus/internal/reasoning"
	"github.com/animus-ai/animus/internal/transcript"
	"github.com/animus-ai/animus/internal/transcript/phonetic"
	"github.com/animus-ai/animus/internal/worker"
	"github.com/animus-ai/animus/pkg/memory"
	"github.com/animus-ai/animus/pkg/memory/postgres"
	"github.com/animus-ai/animus/pkg/provider/embeddings"
	"github.com/animus-ai/animus/pkg/provider/llm"
	"github.com/animus-ai/animus/pkg/provider/stt"
	"github.com/animus-ai/animus/pkg/provider/vision"
)

// Default maintenance cadences for settings the config leaves at zero.
const (
	defaultOutboxDrainInterval = 30 * time.Second
	defaultOutboxBatch         = 50
	defaultCleanupInterval     = 6 * time.Hour
	defaultDaysToKeep          = 30
	cascadeSweepInterval       = time.Minute
)

// Providers holds one interface value per provider slot, populated by main.go
// via the config registry. The LLM slot typically carries a
// [resilience.LLMFallback] chain rather than a bare provider.
type Providers struct {
	LLM        llm.Provider
	STT        stt.Transcriber
	Vision     vision.Describer
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger

	pool *pgxpool.Pool
	rdb  *redis.Client

	store       *jobs.Store
	importStore *jobs.ImportStore
	queue       *jobs.Queue
	bus         *jobs.ResultBus
	sweeper     *jobs.Sweeper

	memories *memory.Service
	resolver *configcascade.Resolver
	dedup    *dedup.Cache
	workers  *worker.Pool

	httpSrv *http.Server

	// closers are called in reverse order during Shutdown.
	closers  []func(context.Context) error
	stopOnce sync.Once
}

// New builds the App: connects the stores, runs migrations and assembles the
// worker pool and HTTP surface. Nothing starts running until Run.
func New(ctx context.Context, cfg *config.Config, providers *Providers, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := requireProviders(providers); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	a := &App{cfg: cfg, providers: providers, log: logger}

	if err := a.initStores(ctx); err != nil {
		return nil, fmt.Errorf("app: init stores: %w", err)
	}
	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}
	a.initHTTP()

	return a, nil
}

// requireProviders rejects startup without a full provider set. The config
// loader only warns on missing optional providers so partial configs can be
// validated; running the worker pool needs all four.
func requireProviders(p *Providers) error {
	var errs []error
	if p.LLM == nil {
		errs = append(errs, errors.New("llm provider is required"))
	}
	if p.STT == nil {
		errs = append(errs, errors.New("stt provider is required"))
	}
	if p.Vision == nil {
		errs = append(errs, errors.New("vision provider is required"))
	}
	if p.Embeddings == nil {
		errs = append(errs, errors.New("embeddings provider is required"))
	}
	return errors.Join(errs...)
}

// initStores connects Postgres and Redis and runs all migrations.
func (a *App) initStores(ctx context.Context) error {
	pool, err := postgres.Connect(ctx, a.cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	a.pool = pool
	a.closers = append(a.closers, func(context.Context) error {
		pool.Close()
		return nil
	})

	// Connect already ran the memory schema migration; the job and override
	// tables are migrated here.
	for _, migrate := range []func(context.Context, *pgxpool.Pool) error{
		jobs.Migrate,
		jobs.MigrateImports,
		configcascade.MigrateOverrides,
	} {
		if err := migrate(ctx, pool); err != nil {
			return err
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	a.rdb = rdb
	a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })

	a.store = jobs.NewStore(pool)
	a.importStore = jobs.NewImportStore(pool)
	a.queue = jobs.NewQueue(rdb)
	if err := a.queue.EnsureGroups(ctx); err != nil {
		return err
	}
	a.bus = jobs.NewResultBus(rdb, a.cfg.Jobs.ResultTTL.Std())
	return nil
}

// initPipeline assembles the memory service, the config cascade and the
// worker pool.
func (a *App) initPipeline() error {
	a.memories = memory.NewService(
		a.providers.Embeddings,
		postgres.NewStore(a.pool),
		postgres.NewOutbox(a.pool),
		a.log,
	)
	directory := postgres.NewDirectory(a.pool)
	a.resolver = configcascade.NewResolver(configcascade.NewPostgresStore(a.pool), 0, a.log)
	a.dedup = dedup.New(dedup.DefaultTTL)

	router, err := vision.NewRouter(a.cfg.Vision.ModelPatterns, a.cfg.Vision.FallbackModel)
	if err != nil {
		return err
	}
	classifier := reasoning.NewClassifier(a.cfg.Reasoning.Rules)
	corrector := transcript.NewCorrector(phonetic.New())
	fetcher := worker.NewHTTPFetcher(nil)

	audio := worker.NewAudioWorker(a.providers.STT, corrector, fetcher, a.log)
	image := worker.NewImageWorker(a.providers.Vision, router, a.cfg.Workers.ImageConcurrency, a.log)
	generation := worker.NewGenerationWorker(
		a.bus, a.resolver, directory, a.memories,
		a.providers.LLM, classifier, worker.NewDupWindow(0), a.log,
	)
	importer := worker.NewImportWorker(a.importStore, directory, a.memories, fetcher, a.log)

	a.workers = worker.NewPool(
		a.queue, a.store, a.bus,
		audio, image, generation, importer,
		worker.PoolSizes{
			Audio:      a.cfg.Workers.Audio,
			Image:      a.cfg.Workers.Image,
			Generation: a.cfg.Workers.Generation,
		},
		a.log,
	)
	a.sweeper = jobs.NewSweeper(
		a.store, a.cfg.Jobs.StuckAge.Std(), a.cfg.Jobs.SweepInterval.Std(), 0, a.log)
	return nil
}

// initHTTP builds the request mux: API routes, health probes and the
// Prometheus scrape endpoint, all behind the tracing middleware.
func (a *App) initHTTP() {
	metrics := observe.DefaultMetrics()
	api := httpapi.New(a.dedup, a.store, a.queue, a.bus, a.importStore, metrics, a.log)

	mux := http.NewServeMux()
	api.Register(mux)
	checks := []health.Checker{
		{Name: "postgres", Check: a.pool.Ping},
		{Name: "redis", Check: func(ctx context.Context) error {
			return a.rdb.Ping(ctx).Err()
		}},
	}
	if hc, ok := a.providers.Embeddings.(embeddings.HealthChecker); ok {
		checks = append(checks, health.Checker{Name: "embeddings", Check: func(ctx context.Context) error {
			if !hc.Healthy(ctx) {
				return errors.New("embedding model not loaded")
			}
			return nil
		}})
	}
	health.New(checks...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.httpSrv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Run starts the HTTP server and every background loop, blocking until ctx is
// cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.serveHTTP(ctx) })
	g.Go(func() error { return a.workers.Run(ctx) })
	g.Go(func() error {
		a.sweeper.Run(ctx)
		return nil
	})
	g.Go(func() error {
		a.dedup.Run(ctx, dedup.DefaultSweepInterval)
		return nil
	})
	g.Go(func() error {
		a.resolver.Run(ctx, cascadeSweepInterval)
		return nil
	})
	g.Go(func() error {
		a.resolver.ListenInvalidations(ctx, a.rdb)
		return nil
	})
	g.Go(func() error {
		interval := a.cfg.Memory.OutboxDrainInterval.Std()
		if interval <= 0 {
			interval = defaultOutboxDrainInterval
		}
		batch := a.cfg.Memory.OutboxBatch
		if batch <= 0 {
			batch = defaultOutboxBatch
		}
		a.memories.RunOutboxDrain(ctx, interval, batch)
		return nil
	})
	g.Go(func() error {
		a.runResultCleanup(ctx)
		return nil
	})

	a.log.Info("animus running",
		"listenAddr", a.cfg.Server.ListenAddr,
		"tls", a.cfg.Server.TLS != nil,
	)
	return g.Wait()
}

// serveHTTP runs the listener and shuts it down when ctx is cancelled.
func (a *App) serveHTTP(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpSrv.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("http shutdown error", "error", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}

// runResultCleanup deletes delivered results past their retention window on a
// fixed cadence.
func (a *App) runResultCleanup(ctx context.Context) {
	interval := a.cfg.Jobs.CleanupInterval.Std()
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	days := a.cfg.Jobs.DaysToKeep
	if days <= 0 {
		days = defaultDaysToKeep
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.store.DeleteOldResults(ctx, days)
			if err != nil {
				a.log.Error("result cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				a.log.Info("cleaned up delivered results", "count", n, "daysToKeep", days)
			}
		}
	}
}

// Shutdown closes the stores in reverse-init order. Run must have returned
// before Shutdown is called.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", i+1)
				errs = append(errs, ctx.Err())
				return
			default:
			}
			if err := a.closers[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
		a.log.Info("shutdown complete")
	})
	return errors.Join(errs...)
}
