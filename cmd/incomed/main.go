// Package main is the entry point for the income reporting server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fd1az/starfire-income/business/income"
	"github.com/fd1az/starfire-income/business/income/app"
	incomeDI "github.com/fd1az/starfire-income/business/income/di"
	"github.com/fd1az/starfire-income/internal/apm"
	"github.com/fd1az/starfire-income/internal/config"
	"github.com/fd1az/starfire-income/internal/health"
	"github.com/fd1az/starfire-income/internal/logger"
	"github.com/fd1az/starfire-income/internal/metrics"
	"github.com/fd1az/starfire-income/internal/monolith"
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
	consoleMode := flag.Bool("console", true, "Print income events to stdout")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("incomed %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *consoleMode); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, consoleMode bool) error {
	cfg, v, err := config.LoadWithViper(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(os.Stderr, logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, apm.TraceID)
	log.Info(ctx, "starting income server",
		"version", version,
		"environment", cfg.App.Environment,
	)

	if cfg.Telemetry.Enabled {
		shutdown, err := setupTelemetry(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	mono := monolith.New(cfg, log)

	mod := &income.Module{Viper: v, Console: consoleMode}
	if err := mono.RegisterModules(mod); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}

	if cfg.Health.Enabled {
		healthServer := health.NewServer(cfg.Health.Port, version, log)
		svc := incomeDI.GetIncomeService(mono.Services())
		healthServer.RegisterCheck("income_server", func(ctx context.Context) (bool, string) {
			if svc.State() != app.StateRunning {
				return false, string(svc.State())
			}
			return true, fmt.Sprintf("%d connections", svc.Connections())
		})
		healthServer.Handle("/events", incomeDI.GetEventFeed(mono.Services()))

		if err := healthServer.Start(); err != nil {
			log.Warn(ctx, "failed to start health server", "error", err)
		} else {
			log.Info(ctx, "health server started", "addr", healthServer.Addr().String())
			defer healthServer.Stop(context.Background())
		}
	}

	if err := mono.StartModules(ctx, mod); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	<-ctx.Done()
	log.Info(context.Background(), "shutting down")

	if err := mod.Shutdown(context.Background(), mono); err != nil {
		log.Error(context.Background(), "error stopping income server", "error", err)
	}
	return nil
}

func setupTelemetry(ctx context.Context, cfg *config.Config, log logger.LoggerInterface) (func(), error) {
	provider := apm.ParseProvider(cfg.Telemetry.TraceProvider)
	traceProvider := apm.NewTraceProvider(
		apm.WithServiceName(cfg.Telemetry.ServiceName),
		apm.WithProvider(provider, cfg.Telemetry.OTLPEndpoint, log),
	)
	log.Info(ctx, "tracing initialized", "provider", provider, "endpoint", cfg.Telemetry.OTLPEndpoint)

	opts := []metrics.OptionFn{
		metrics.WithServiceName(cfg.Telemetry.ServiceName),
		metrics.WithProviderConfig(metrics.NewPrometheusConfig()),
	}
	if provider == apm.OTLPGRPCProvider && cfg.Telemetry.OTLPEndpoint != "" {
		opts = append(opts, metrics.WithProviderConfig(
			metrics.NewOtelCollectorConfig(cfg.Telemetry.OTLPEndpoint, nil, metrics.InsecureOtel),
		))
	}
	meterProvider, err := metrics.NewMetricProvider(ctx, opts...)
	if err != nil {
		traceProvider.Stop()
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	promServer, err := metrics.ServePrometheusMetrics(log, metrics.WithPort(strconv.Itoa(cfg.Telemetry.PrometheusPort)))
	if err != nil {
		log.Warn(ctx, "failed to start prometheus server", "error", err)
	} else {
		log.Info(ctx, "prometheus metrics server started", "addr", promServer.Addr().String())
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if promServer != nil {
			promServer.Stop(ctx)
		}
		meterProvider.Shutdown(ctx)
		traceProvider.Stop()
	}, nil
}
