// Command agentfleet runs the AgentFleet control plane: the per-agent
// sandbox orchestrator, task dispatcher, and operator API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/AgentFleet/internal/adapter/docker"
	afhttp "github.com/Strob0t/AgentFleet/internal/adapter/http"
	afnats "github.com/Strob0t/AgentFleet/internal/adapter/nats"
	afotel "github.com/Strob0t/AgentFleet/internal/adapter/otel"
	"github.com/Strob0t/AgentFleet/internal/adapter/postgres"
	"github.com/Strob0t/AgentFleet/internal/adapter/ristretto"
	"github.com/Strob0t/AgentFleet/internal/adapter/ws"
	"github.com/Strob0t/AgentFleet/internal/config"
	"github.com/Strob0t/AgentFleet/internal/logger"
	"github.com/Strob0t/AgentFleet/internal/middleware"
	"github.com/Strob0t/AgentFleet/internal/port/messagequeue"
	"github.com/Strob0t/AgentFleet/internal/resilience"
	"github.com/Strob0t/AgentFleet/internal/secrets"
	"github.com/Strob0t/AgentFleet/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

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

	log, closeLog := logger.NewAsync(cfg.Logging)
	defer closeLog()
	log.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"sandbox_image", cfg.Sandbox.Image,
	)

	ctx := context.Background()

	// --- Telemetry ---

	shutdownTelemetry, err := afotel.Setup(ctx, cfg.Logging.Service, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(sctx)
	}()

	inst, err := afotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metric instruments: %w", err)
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	log.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("migrations applied")

	// NATS is an accelerator, not a dependency: without it dispatch runs
	// inline and queue events are skipped, same as the degraded container
	// mode after a failed runtime probe.
	var queue messagequeue.Queue
	if nq, err := afnats.Connect(ctx, cfg.NATS.URL, log); err != nil {
		log.Warn("nats unavailable, running queue-less with inline dispatch", "error", err)
	} else {
		queue = nq
		defer func() { _ = nq.Close() }()
	}

	cache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cache.Close()

	vault, err := secrets.NewVault(secrets.PrefixEnvLoader(cfg.Secrets.EnvPrefix))
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}

	// --- Services ---

	store := postgres.NewStore(pool)
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	rt := docker.NewClient(breaker)
	locks := service.NewLockRegistry()
	mode := &service.ExecutionMode{}

	lifecycle := service.NewLifecycleService(rt, locks, cache, cfg.Sandbox, cfg.Cache.InspectTTL, log)
	reconciler := service.NewReconciler(rt, lifecycle, store, mode, log)
	tasks := service.NewTaskStore(store, queue, cfg.Analytics.TaskTailLimit, log)
	dispatcher := service.NewDispatcher(lifecycle, rt, mode, vault, inst, cfg.Dispatch, log)
	metrics := service.NewMetricsService(store, tasks, inst, cfg.Analytics.WindowDays, log)
	tasks.OnTerminal(metrics.Record)
	orch := service.NewOrchestrator(store, tasks, dispatcher, metrics, queue, log)
	agents := service.NewAgentService(store, lifecycle, mode, queue, log)
	chat := service.NewChatService(agents, orch, log)

	// Restore the persisted tail and rebuild the analytics window before
	// anything dispatches.
	if err := tasks.LoadTail(ctx); err != nil {
		return fmt.Errorf("task tail: %w", err)
	}
	if err := metrics.RebuildRollup(ctx, cfg.Analytics.TaskTailLimit); err != nil {
		log.Warn("rebuild analytics rollup failed", "error", err)
	}

	// Probe the container runtime, then converge sandboxes to desired state.
	reconciler.Probe(ctx)
	if err := reconciler.Reconcile(ctx); err != nil {
		log.Error("startup reconcile failed", "error", err)
	}

	cancelDispatch, err := orch.StartDispatchSubscriber(ctx)
	if err != nil {
		return fmt.Errorf("dispatch subscriber: %w", err)
	}
	defer cancelDispatch()

	// --- Live updates ---

	hub := ws.NewHub(nil)
	snapshot := service.NewSnapshotService(store, tasks, hub, cfg.Broadcast, log)
	hub.SetWelcome(func(ctx context.Context) any {
		return snapshot.Build(ctx)
	})

	bctx, cancelBroadcast := context.WithCancel(ctx)
	defer cancelBroadcast()
	go snapshot.Run(bctx)

	// --- HTTP ---

	handlers := &afhttp.Handlers{
		Agents:     agents,
		Orch:       orch,
		Tasks:      tasks,
		Metrics:    metrics,
		Snapshot:   snapshot,
		Chat:       chat,
		Reconciler: reconciler,
		Mode:       mode,
	}

	r := chi.NewRouter()
	r.Use(afhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(afhttp.Logger)
	r.Use(afotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(5 * time.Minute))

	afhttp.MountRoutes(r, handlers, hub.HandleWS, cfg.Auth.APIKeyHash)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
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
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
