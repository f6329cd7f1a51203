// Finch - Personal finance rewards and alerts that deploy in 60 seconds.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

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

	"github.com/opensource-finance/finch/internal/alerts"
	"github.com/opensource-finance/finch/internal/api"
	"github.com/opensource-finance/finch/internal/bus"
	"github.com/opensource-finance/finch/internal/cache"
	"github.com/opensource-finance/finch/internal/domain"
	"github.com/opensource-finance/finch/internal/repository"
	"github.com/opensource-finance/finch/internal/rewards"
	"github.com/opensource-finance/finch/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("FINCH_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting finch",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("FINCH_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	// Optional YAML config overrides the tier defaults
	if path := os.Getenv("FINCH_CONFIG"); path != "" {
		loaded, err := domain.LoadConfig(path)
		if err != nil {
			slog.Error("failed to load config file", "path", path, "error", err)
			os.Exit(1)
		}
		cfg = loaded
		slog.Info("config file loaded", "path", path)
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Reward Ledger
	calc := rewards.NewCalculator(cfg.Rewards)
	ledger := rewards.NewLedger(repo, cacheImpl, busImpl, calc, cfg.Rewards)
	slog.Info("reward ledger initialized",
		"base_points_per_dollar", cfg.Rewards.BasePointsPerDollar,
	)

	// Initialize custom rule engine and alert service
	custom, err := alerts.NewCustomEngine(100)
	if err != nil {
		slog.Error("failed to initialize custom rule engine", "error", err)
		os.Exit(1)
	}
	alertService := alerts.NewService(repo, cacheImpl, busImpl, custom, cfg.Alerts)

	// Load custom rules from database (no hardcoded defaults - configure via API)
	if count, err := alertService.ReloadRules(ctx); err != nil {
		slog.Warn("failed to load custom rules, starting empty", "error", err)
	} else {
		slog.Info("alert engine initialized", "custom_rules", count)
	}

	// Initialize async worker: bus-driven checks plus scheduled sweeps
	asyncWorker := worker.NewWorker(busImpl, alertService, cfg.Alerts)
	if err := asyncWorker.Start(); err != nil {
		slog.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, ledger, alertService, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("finch is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("finch shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║                🐦 FINCH                   ║")
	fmt.Println("  ║     Rewards & Alerts for Your Money       ║")
	fmt.Println("  ║       Every bill earns its keep.          ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /rewards             - Record a bill payment reward")
	fmt.Println("    GET  /rewards             - List reward entries")
	fmt.Println("    GET  /rewards/summary     - Points, tier, and streak rollup")
	fmt.Println("    GET  /rewards/tiers       - Tier table and progress")
	fmt.Println("    GET  /rewards/leaderboard - Ranked points leaderboard")
	fmt.Println("    POST /alerts/check        - Run alert rules for a user")
	fmt.Println("    GET  /alerts              - List alerts")
	fmt.Println("    POST /alerts/{id}/read    - Mark an alert read")
	fmt.Println("    POST /alerts/{id}/resolve - Resolve an alert")
	fmt.Println("    POST /alerts/{id}/dismiss - Dismiss an alert")
	fmt.Println("    GET  /alerts/rules        - List custom CEL rules")
	fmt.Println("    POST /alerts/rules        - Create a custom CEL rule")
	fmt.Println("    POST /alerts/rules/reload - Hot-reload custom rules")
	fmt.Println("    GET  /health              - Health check")
	fmt.Println()
}
