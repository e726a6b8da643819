// Command tmtweb serves the metadata resolution API: clients submit test,
// plan, and story lookups against git repositories and poll for the
// resolved metadata.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/teemtee/tmtweb/internal/adapter/fmf"
	"github.com/teemtee/tmtweb/internal/adapter/gitcli"
	twhttp "github.com/teemtee/tmtweb/internal/adapter/http"
	twnats "github.com/teemtee/tmtweb/internal/adapter/nats"
	twotel "github.com/teemtee/tmtweb/internal/adapter/otel"
	"github.com/teemtee/tmtweb/internal/adapter/postgres"
	"github.com/teemtee/tmtweb/internal/adapter/redisstore"
	"github.com/teemtee/tmtweb/internal/adapter/ristretto"
	"github.com/teemtee/tmtweb/internal/config"
	"github.com/teemtee/tmtweb/internal/git"
	"github.com/teemtee/tmtweb/internal/logger"
	"github.com/teemtee/tmtweb/internal/middleware"
	"github.com/teemtee/tmtweb/internal/port/taskstore"
	"github.com/teemtee/tmtweb/internal/repocache"
	"github.com/teemtee/tmtweb/internal/resilience"
	"github.com/teemtee/tmtweb/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"store", cfg.Store.Backend,
		"workers", cfg.Executor.Workers,
	)

	ctx := context.Background()

	// Tracing
	if cfg.Tracing.Enabled {
		shutdown, err := twotel.InitTracer(ctx, cfg.Logging.Service, cfg.Tracing.Endpoint)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}

	// Task store
	var store taskstore.Store
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Store.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := postgres.RunMigrations(ctx, cfg.Store.Postgres.DSN); err != nil {
			pool.Close()
			return fmt.Errorf("migrations: %w", err)
		}
		store = postgres.NewStore(pool)
		log.Info("postgres store ready")
	default:
		store, err = redisstore.Connect(ctx, cfg.Store.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		log.Info("redis store ready", "addr", cfg.Store.Redis.Addr, "task_ttl", cfg.Store.Redis.TaskTTL)
	}
	defer func() { _ = store.Close() }()

	// Queue
	queue, err := twnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	// Git transport and working-copy cache
	gitPool := git.NewPool(cfg.Git.MaxConcurrent)
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	gitClient := gitcli.New(gitPool, breaker)
	repos := repocache.New(cfg.Git.BasePath, cfg.Git.DefaultRef, gitClient, log)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sweepLoop(sweepCtx, repos, cfg.Git.MaxIdle, log)

	// Render cache
	renders, err := ristretto.New(cfg.Cache.RenderMaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("render cache: %w", err)
	}
	defer renders.Close()

	// Services
	extractor := service.NewExtractor(repos, fmf.NewParser())
	tasks := service.NewTaskService(store, queue, renders, cfg.Cache.RenderTTL, log)
	executor := service.NewExecutor(store, queue, extractor, cfg.Executor, log)
	if err := executor.Start(ctx); err != nil {
		return fmt.Errorf("executor: %w", err)
	}
	defer executor.Stop()

	// HTTP
	handlers := twhttp.NewHandlers(tasks, store, queue, cfg.Server.Hostname, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(twhttp.Logger)
	r.Use(chimw.Timeout(30 * time.Second))
	if cfg.Tracing.Enabled {
		r.Use(twotel.HTTPMiddleware(cfg.Logging.Service))
	}
	twhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
		}
	}()

	<-done
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	// Let in-flight workers finish their queue messages.
	return queue.Drain()
}

// sweepLoop periodically removes idle working copies.
func sweepLoop(ctx context.Context, repos *repocache.Cache, maxIdle time.Duration, log *slog.Logger) {
	interval := maxIdle / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := repos.Sweep(maxIdle); n > 0 {
				log.Info("swept idle working copies", "removed", n)
			}
		}
	}
}
