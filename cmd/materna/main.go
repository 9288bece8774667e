// Materna - Obstetric risk classification service.
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

	"github.com/joho/godotenv"

	"github.com/opensource-health/materna/internal/api"
	"github.com/opensource-health/materna/internal/bus"
	"github.com/opensource-health/materna/internal/cache"
	"github.com/opensource-health/materna/internal/config"
	"github.com/opensource-health/materna/internal/model"
	"github.com/opensource-health/materna/internal/predict"
	"github.com/opensource-health/materna/internal/repository"
	"github.com/opensource-health/materna/internal/rules"
	"github.com/opensource-health/materna/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// A local .env is a convenience, not a requirement.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting materna",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"models_dir", cfg.Models.Dir,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"alert_rules", len(cfg.AlertRules),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Warm every model bundle before serving. A process that cannot
	// classify all three risks must not come up.
	store := model.NewStore(cfg.Models)
	if err := store.LoadAll(ctx); err != nil {
		slog.Error("model warm-up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("models loaded", "count", len(store.Cached()))

	alertEngine, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize alert engine", "error", err)
		os.Exit(1)
	}
	if err := alertEngine.LoadRules(cfg.AlertRules); err != nil {
		slog.Error("failed to compile alert rules", "error", err)
		os.Exit(1)
	}
	slog.Info("alert engine initialized", "rules_count", len(alertEngine.LoadedRules()))

	predictor := predict.NewPredictor(store, cfg.Prediction, alertEngine)

	asyncWorker := worker.NewWorker(busImpl, repo)
	if err := asyncWorker.Start(); err != nil {
		slog.Error("failed to start async worker", "error", err)
		os.Exit(1)
	}
	slog.Info("async worker started")

	srv := api.NewServer(cfg, store, predictor, repo, cacheImpl, busImpl, alertEngine, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("materna is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	asyncWorker.Stop()

	slog.Info("materna shutdown complete")
}

func printBanner(version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🤰 MATERNA                  ║")
	fmt.Println("  ║    Obstetric Risk Classification Engine   ║")
	fmt.Println("  ║       Every pregnancy, watched over.      ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Printf("   version %s\n", version)
	fmt.Println()
}

func setupLogging(level, format string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
