// Command taskfleetd runs the TaskFleet dispatcher: intent routing,
// budget-gated job publication, and the per-role worker fleet.
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

	"github.com/taskfleet/taskfleet/internal/adapter/discord"
	fleethttp "github.com/taskfleet/taskfleet/internal/adapter/http"
	"github.com/taskfleet/taskfleet/internal/adapter/litellm"
	fleetnats "github.com/taskfleet/taskfleet/internal/adapter/nats"
	"github.com/taskfleet/taskfleet/internal/adapter/natskv"
	fleetotel "github.com/taskfleet/taskfleet/internal/adapter/otel"
	"github.com/taskfleet/taskfleet/internal/adapter/postgres"
	"github.com/taskfleet/taskfleet/internal/adapter/ristretto"
	"github.com/taskfleet/taskfleet/internal/config"
	"github.com/taskfleet/taskfleet/internal/domain/agent"
	"github.com/taskfleet/taskfleet/internal/logger"
	"github.com/taskfleet/taskfleet/internal/port/toolregistry"
	"github.com/taskfleet/taskfleet/internal/resilience"
	"github.com/taskfleet/taskfleet/internal/route"
	"github.com/taskfleet/taskfleet/internal/service"
	"github.com/taskfleet/taskfleet/internal/worker"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"worker_roles", cfg.Workers.Roles,
		"session_budget_usd", cfg.Budget.SessionUSD,
	)

	ctx := context.Background()

	// --- Observability ---
	otelShutdown, err := fleetotel.InitMeter(ctx, cfg.Logging.Service, cfg.Otel.Endpoint)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	instruments, err := fleetotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel instruments: %w", err)
	}

	// --- Infrastructure ---
	queue, err := fleetnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.AckWait)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	var journalStore *postgres.Journal
	if cfg.Postgres.DSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		journalStore = postgres.NewJournal(pool)
		slog.Info("postgres journal enabled")
	}

	kvStore, err := natskv.Open(ctx, queue.JetStream())
	if err != nil {
		return fmt.Errorf("tool registry: %w", err)
	}
	tools, err := ristretto.NewCachedStore(kvStore, int64(cfg.Tools.CacheEntries), cfg.Tools.CacheTTL)
	if err != nil {
		return fmt.Errorf("tool cache: %w", err)
	}
	defer tools.Close()

	// --- Domain ---
	breaker := resilience.NewBreaker(resilience.Config{
		MaxFailures: cfg.Breaker.MaxFailures,
		Window:      cfg.Breaker.Window,
		Cooldown:    cfg.Breaker.Cooldown,
	})
	registry := agent.NewRegistry()
	router := route.NewRouterWithCapacity(registry, cfg.Router.CacheCapacity)

	// --- Services ---
	dispatcher := service.NewDispatchService(router, registry, queue, cfg.Budget.SessionUSD)
	dispatcher.SetToolStore(tools)
	dispatcher.SetInstruments(instruments)
	if journalStore != nil {
		dispatcher.SetJournal(journalStore)
	}

	alerts := service.NewAlertPublisher(queue, cfg.Alerts.DefaultChannels,
		discord.NewNotifier(cfg.Alerts.DiscordWebhookURL))
	if journalStore != nil {
		alerts.SetJournal(journalStore)
	}

	llm := litellm.NewClient(cfg.LiteLLM.URL, cfg.LiteLLM.APIKey)
	llm.SetBreaker(breaker)
	handler := service.NewCompletionHandler(llm, queue, dispatcher, cfg.LiteLLM.Model, cfg.LiteLLM.MaxTokens)

	workers := make([]*worker.Worker, 0, len(cfg.Workers.Roles))
	for _, role := range cfg.Workers.Roles {
		w := worker.New(worker.Config{
			Name:                role,
			Subscription:        "jobs." + role,
			MaxConcurrency:      cfg.Workers.MaxConcurrency,
			PollInterval:        cfg.Workers.PollInterval,
			LeaseExtendInterval: cfg.Workers.LeaseExtendInterval,
			LeaseSeconds:        cfg.Workers.LeaseSeconds,
			DrainTimeout:        cfg.Workers.DrainTimeout,
		}, queue, breaker, handler.Process)
		w.SetAlertSink(alerts)
		w.SetInstruments(instruments)
		workers = append(workers, w)
	}
	fleet := service.NewFleet(workers...)
	fleet.StartAll(ctx)

	// Seed role flags so operators see every toggle in the registry.
	for _, profile := range registry.All() {
		key := toolregistry.RoleKey(string(profile.Role))
		if _, err := tools.Enabled(ctx, key); err != nil {
			slog.Warn("tool flag seed failed", "key", key, "error", err)
		}
	}

	// --- HTTP ---
	handlers := &fleethttp.Handlers{
		Dispatcher: dispatcher,
		Fleet:      fleet,
		Breaker:    breaker,
		Registry:   registry,
		Tools:      tools,
		Version:    version,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(fleetotel.HTTPMiddleware(cfg.Logging.Service))
	fleethttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Workers.DrainTimeout+10*time.Second)
	defer cancel()

	if err := fleet.StopAll(shutdownCtx); err != nil {
		slog.Warn("fleet drain incomplete", "error", err)
	}
	return srv.Shutdown(shutdownCtx)
}
