package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	dbfs "github.com/garnizeh/fixbuddy/db"
	"github.com/garnizeh/fixbuddy/api"
	"github.com/garnizeh/fixbuddy/internal/agent"
	"github.com/garnizeh/fixbuddy/internal/config"
	"github.com/garnizeh/fixbuddy/internal/db"
	"github.com/garnizeh/fixbuddy/internal/jobs"
	"github.com/garnizeh/fixbuddy/internal/metrics"
	sqlite "github.com/garnizeh/fixbuddy/internal/repository/sqlite"
	"github.com/garnizeh/fixbuddy/pkg/gemini"
	"github.com/garnizeh/fixbuddy/pkg/ollama"
	"github.com/garnizeh/fixbuddy/pkg/youtube"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)
	api.SetLogger(logger)
	agent.SetLogger(logger)
	gemini.SetLogger(logger)
	ollama.SetLogger(logger)
	youtube.SetLogger(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting fixbuddy", slog.String("version", version), slog.String("build_time", buildTime))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("close db", slog.Any("err", err))
		}
	}()
	if err := db.Migrate(ctx, database, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	repo := sqlite.New(database, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	pool := jobs.NewWorkerPool(jobs.NewRepository(database), map[string]jobs.Handler{
		jobs.TypePruneDiagnoses: jobs.PruneDiagnosesHandler(repo, m.DiagnosesPruned),
	}, logger, jobs.Options{
		Workers:      cfg.Jobs.Workers,
		PollInterval: cfg.Jobs.PollInterval,
		Recorder:     m,
	})
	pool.Start(ctx)
	defer pool.Stop()

	strategies, closers, err := buildStrategies(ctx, cfg, repo, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			_ = c()
		}
	}()

	videos, err := youtube.New(ctx, cfg.YouTube)
	if err != nil {
		return fmt.Errorf("youtube: %w", err)
	}

	var runner api.DiagnosisRunner
	if len(strategies) > 0 {
		runner = agent.NewOrchestrator(agent.Options{
			Strategies:   strategies,
			Gate:         agent.NewSafetyGate(*cfg.Engine.StrictSafety, cfg.Engine.HazardKeywords...),
			Videos:       videos,
			Profiles:     repo,
			History:      repo,
			Diagnoses:    repo,
			Pruner:       pool,
			Metrics:      m,
			HistoryLimit: cfg.Engine.HistoryLimit,
			HistoryCap:   cfg.History.Cap,
			MaxTutorials: cfg.Engine.MaxTutorials,
			DiagnosisCap: cfg.Engine.DiagnosisCap,
		})
	} else {
		logger.Warn("no diagnosis backend configured; /api/agent will answer NOT_IMPLEMENTED")
	}

	handler := api.SetupRoutes(cfg, version, buildTime, api.Deps{
		Users:     repo,
		Profiles:  repo,
		Diagnoses: repo,
		History:   repo,
		Runner:    runner,
		Metrics:   m,
		Ping:      func(ctx context.Context) error { return database.GetConn().PingContext(ctx) },
	})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.APITimeout,
		WriteTimeout: cfg.APITimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}

// buildStrategies turns engine.strategies into runnable strategies, skipping
// those whose backend is not configured. The returned closers release clients.
func buildStrategies(ctx context.Context, cfg *config.Config, repo *sqlite.SQLiteRepo, logger *slog.Logger) ([]agent.Strategy, []func() error, error) {
	loader, err := agent.NewLoader(ctx, repo)
	if err != nil {
		return nil, nil, fmt.Errorf("load schemas: %w", err)
	}
	parser := agent.NewParser(loader, cfg.Engine.TemplateVersion)
	prompts := agent.NewPrompts(repo, cfg.Engine.TemplateVersion)
	timeout := cfg.Engine.Timeout

	var (
		strategies []agent.Strategy
		closers    []func() error
		remote     agent.Generator
		local      agent.Generator
	)
	for _, name := range cfg.Engine.Strategies {
		switch name {
		case agent.StrategyTwoStage, agent.StrategySingleCall:
			if remote == nil {
				if cfg.Gemini.APIKey == "" {
					logger.Warn("gemini api key not set, skipping strategy", slog.String("strategy", name))
					continue
				}
				c, err := gemini.New(ctx, cfg.Gemini)
				if err != nil {
					return nil, closers, fmt.Errorf("gemini: %w", err)
				}
				closers = append(closers, c.Close)
				remote = agent.NewGeminiGenerator(c)
			}
			if name == agent.StrategyTwoStage {
				strategies = append(strategies, agent.NewTwoStage(remote, prompts, parser, timeout))
			} else {
				strategies = append(strategies, agent.NewSingleCall(name, remote, prompts, parser, timeout))
			}
		case agent.StrategyLocal:
			if local == nil {
				c, err := ollama.NewDefaultClient(cfg.Ollama)
				if err != nil {
					return nil, closers, fmt.Errorf("ollama: %w", err)
				}
				closers = append(closers, c.Close)
				local = agent.NewOllamaGenerator(c)
			}
			strategies = append(strategies, agent.NewSingleCall(agent.StrategyLocal, local, prompts, parser, timeout))
		}
	}

	names := make([]string, 0, len(strategies))
	for _, s := range strategies {
		names = append(names, s.Name())
	}
	logger.Info("diagnosis strategies", slog.String("order", strings.Join(names, ",")))
	return strategies, closers, nil
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
