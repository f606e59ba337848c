// Package main is the entry point for the flash loan arbitrage bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ndmikkelsen/flashloaner/business/arbitrage"
	arbitrageDI "github.com/ndmikkelsen/flashloaner/business/arbitrage/di"
	"github.com/ndmikkelsen/flashloaner/business/blockchain"
	"github.com/ndmikkelsen/flashloaner/business/execution"
	"github.com/ndmikkelsen/flashloaner/business/pricing"
	"github.com/ndmikkelsen/flashloaner/internal/apm"
	"github.com/ndmikkelsen/flashloaner/internal/config"
	"github.com/ndmikkelsen/flashloaner/internal/health"
	"github.com/ndmikkelsen/flashloaner/internal/logger"
	"github.com/ndmikkelsen/flashloaner/internal/metrics"
	"github.com/ndmikkelsen/flashloaner/internal/monolith"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	uiMode := flag.String("ui", "", "UI mode: console or tui (overrides config)")
	live := flag.Bool("live", false, "Submit transactions for real (overrides dry_run)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("flashloaner %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		cancel()
	}()

	if err := run(ctx, *configPath, *uiMode, *live); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, uiMode string, live bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if uiMode != "" {
		cfg.App.UI = uiMode
	}
	if live {
		cfg.Execution.DryRun = false
	}

	logLevel := logger.ParseLevel(cfg.App.LogLevel)

	// The dashboard owns the terminal, so logs are discarded in TUI mode.
	var log *logger.Logger
	if cfg.App.UI == "tui" {
		log = logger.New(io.Discard, logLevel, cfg.App.Name, nil)
	} else {
		log = logger.New(os.Stderr, logLevel, cfg.App.Name, nil)
		log.Info(ctx, "starting flash loan arbitrage bot",
			"version", version,
			"environment", cfg.App.Environment,
			"dry_run", cfg.Execution.DryRun,
		)
	}

	var traceProvider apm.TraceProvider
	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.ServiceName != "" {
			os.Setenv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
		}
		if cfg.Telemetry.OTLPEndpoint != "" {
			os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
		}
		if cfg.Telemetry.OTLPHeaders != "" {
			os.Setenv("OTEL_EXPORTER_OTLP_HEADERS", cfg.Telemetry.OTLPHeaders)
		}

		traceProvider = apm.NewTraceProvider(log, apm.WithProvider(apm.ZipkinProvider, log))
		log.Info(ctx, "tracing initialized", "provider", "zipkin", "endpoint", cfg.Telemetry.OTLPEndpoint)

		metrics.NewMetricProvider(
			metrics.WithServiceName(cfg.Telemetry.ServiceName),
			metrics.WithProviderConfig(metrics.ProviderCfg{
				Provider: metrics.PrometheusProvider,
			}),
		)

		port := cfg.Telemetry.PrometheusPort
		if port == 0 {
			port = 9090
		}
		go metrics.ServePrometheusMetrics(metrics.WithPort(strconv.Itoa(port)))
		log.Info(ctx, "prometheus metrics server started", "port", port)
	}
	defer func() {
		if traceProvider != nil {
			traceProvider.Stop()
		}
	}()

	healthPort := cfg.Telemetry.HealthPort
	if healthPort == 0 {
		healthPort = 8081
	}
	healthServer := health.NewServer(healthPort, version)
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", healthPort)
	}
	defer healthServer.Stop(ctx)

	mono, err := monolith.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()

	healthServer.RegisterCheck("ethereum", func(ctx context.Context) (bool, string) {
		if _, err := mono.EthClient().BlockNumber(ctx); err != nil {
			return false, err.Error()
		}
		return true, ""
	})

	// Modules in dependency order: blockchain provides the chain
	// connection, pricing feeds the analyzer, execution consumes its
	// verdicts.
	modules := []monolith.Module{
		&blockchain.Module{},
		&pricing.Module{},
		&arbitrage.Module{},
		&execution.Module{},
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}
	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	log.Info(ctx, "all modules started")
	<-ctx.Done()

	log.Info(ctx, "shutting down")
	reporter := arbitrageDI.GetReporter(mono.Services())
	if err := reporter.Stop(); err != nil {
		log.Error(ctx, "error stopping reporter", "error", err)
	}

	return ctx.Err()
}
