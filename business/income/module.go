// Package income implements the income bounded context: the TCP channel
// workers report earnings on and receive price configuration from.
package income

import (
	"context"
	"time"

	"github.com/spf13/viper"

	"github.com/fd1az/starfire-income/business/income/app"
	incomeDI "github.com/fd1az/starfire-income/business/income/di"
	"github.com/fd1az/starfire-income/business/income/infra/console"
	"github.com/fd1az/starfire-income/business/income/infra/feed"
	"github.com/fd1az/starfire-income/business/income/infra/pricefile"
	"github.com/fd1az/starfire-income/business/income/infra/tcp"
	"github.com/fd1az/starfire-income/internal/config"
	"github.com/fd1az/starfire-income/internal/currency"
	"github.com/fd1az/starfire-income/internal/di"
	"github.com/fd1az/starfire-income/internal/logger"
	"github.com/fd1az/starfire-income/internal/monolith"
	"github.com/fd1az/starfire-income/internal/wsfeed"
)

// Module implements the income bounded context.
type Module struct {
	// Viper backs price hot reload when pricing.watch is set. Optional.
	Viper *viper.Viper
	// Console enables the stdout reporter.
	Console bool
}

// RegisterServices registers all income services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, incomeDI.Registry, func(sr di.ServiceRegistry) *tcp.Registry {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		return tcp.NewRegistry(cfg.Server.WriteTimeout, log)
	})

	di.RegisterToken(c, incomeDI.Publisher, func(sr di.ServiceRegistry) *app.PriceSyncPublisher {
		log := sr.Get("logger").(logger.LoggerInterface)
		return app.NewPriceSyncPublisher(log)
	})

	di.RegisterToken(c, incomeDI.PriceSource, func(sr di.ServiceRegistry) *pricefile.Source {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		return pricefile.New(cfg.Pricing, log)
	})

	di.RegisterToken(c, incomeDI.EventFeed, func(sr di.ServiceRegistry) *wsfeed.Hub {
		log := sr.Get("logger").(logger.LoggerInterface)
		return wsfeed.New(wsfeed.DefaultConfig(), log)
	})

	di.RegisterToken(c, incomeDI.Reporter, func(sr di.ServiceRegistry) *console.Reporter {
		currencies := sr.Get("currencies").(*currency.Registry)
		return console.NewReporter(currencies)
	})

	di.RegisterToken(c, incomeDI.Notifier, func(sr di.ServiceRegistry) app.Notifier {
		log := sr.Get("logger").(logger.LoggerInterface)
		notifiers := app.MultiNotifier{feed.NewNotifier(incomeDI.GetEventFeed(sr), log)}
		if m.Console {
			notifiers = append(notifiers, incomeDI.GetReporter(sr))
		}
		return notifiers
	})

	// Register IncomeService (public - exposed to other modules). The server
	// is built here because it needs the service as its connection handler.
	di.RegisterToken(c, incomeDI.IncomeService, func(sr di.ServiceRegistry) *app.IncomeService {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := incomeDI.GetRegistry(sr)

		svc, err := app.NewIncomeService(
			registry,
			incomeDI.GetNotifier(sr),
			incomeDI.GetPriceSource(sr),
			incomeDI.GetPublisher(sr),
			log,
		)
		if err != nil {
			panic("failed to create income service: " + err.Error())
		}

		server := tcp.NewServer(tcp.Config{
			PollInterval:    cfg.Server.PollInterval,
			MaxFrameSize:    cfg.Server.MaxFrameSize,
			FramesPerSecond: cfg.Server.FramesPerSecond,
			FrameBurst:      cfg.Server.FrameBurst,
		}, registry, svc, log)
		svc.AttachServer(server)

		return svc
	})

	return nil
}

// Startup binds the listener, publishes the configured prices and, when
// enabled, starts watching the config file for price changes.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cfg := mono.Config()
	sr := mono.Services()

	svc := incomeDI.GetIncomeService(sr)
	if err := svc.Start(ctx, cfg.Server.Host, cfg.Server.Port); err != nil {
		return err
	}

	if m.Console {
		incomeDI.GetReporter(sr).Start(svc.Addr().String())
	}

	// Cached until the first worker connects.
	if _, err := svc.PublishPrices(ctx); err != nil {
		log.Warn(ctx, "initial price publish failed", "error", err)
	}

	if cfg.Pricing.Watch && m.Viper != nil {
		incomeDI.GetPriceSource(sr).Watch(ctx, m.Viper, func(ctx context.Context) {
			if _, err := svc.PublishPrices(ctx); err != nil {
				log.Warn(ctx, "price republish failed", "error", err)
			}
		})
		log.Info(ctx, "watching config for price changes", "file", m.Viper.ConfigFileUsed())
	}

	log.Info(ctx, "income module started", "addr", svc.Addr().String())
	return nil
}

// Shutdown stops the listener and closes every worker connection.
func (m *Module) Shutdown(ctx context.Context, mono monolith.Monolith) error {
	sr := mono.Services()
	svc := incomeDI.GetIncomeService(sr)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := svc.Stop(ctx)
	if m.Console {
		incomeDI.GetReporter(sr).Stop(svc.Snapshot())
	}
	return err
}
