// Package pricefile serves the price table from the application config file
// and republishes it when the file changes.
package pricefile

import (
	"context"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/fd1az/starfire-income/business/income/domain"
	"github.com/fd1az/starfire-income/internal/config"
	"github.com/fd1az/starfire-income/internal/logger"
)

// Source implements app.PriceSource.
type Source struct {
	logger logger.LoggerInterface

	mu       sync.RWMutex
	table    domain.PriceTable
	defaults domain.PriceDefaults
}

// New creates a Source holding cfg.
func New(cfg config.PricingConfig, log logger.LoggerInterface) *Source {
	s := &Source{logger: log}
	s.Update(cfg)
	return s
}

// Prices returns the current table and defaults. The table is a copy.
func (s *Source) Prices() (domain.PriceTable, domain.PriceDefaults) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table := make(domain.PriceTable, len(s.table))
	for k, v := range s.table {
		table[k] = v
	}
	return table, s.defaults
}

// Update replaces the table and defaults.
func (s *Source) Update(cfg config.PricingConfig) {
	table, defaults := FromConfig(cfg)

	s.mu.Lock()
	s.table = table
	s.defaults = defaults
	s.mu.Unlock()
}

// FromConfig converts the pricing section into domain types.
func FromConfig(cfg config.PricingConfig) (domain.PriceTable, domain.PriceDefaults) {
	table := make(domain.PriceTable, len(cfg.Models))
	for _, m := range cfg.Models {
		table[m.Model] = domain.PriceEntry{
			Model:  m.Model,
			Engine: m.Engine,
			IPPM:   m.IPPM,
			OPPM:   m.OPPM,
		}
	}
	return table, domain.PriceDefaults{
		Mode: domain.Mode(cfg.Mode),
		IPPM: cfg.DefaultIPPM,
		OPPM: cfg.DefaultOPPM,
	}
}

// Watch reloads the pricing section whenever v's config file changes and
// then calls onChange. Invalid files are logged and the previous table is
// kept. Changes arriving after ctx is done are ignored.
func (s *Source) Watch(ctx context.Context, v *viper.Viper, onChange func(context.Context)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}

		cfg, err := config.Decode(v)
		if err != nil {
			s.logger.Warn(ctx, "price config reload rejected", "file", e.Name, "error", err)
			return
		}

		s.Update(cfg.Pricing)
		s.logger.Info(ctx, "price config reloaded", "file", e.Name, "op", e.Op.String(), "models", len(cfg.Pricing.Models))

		if onChange != nil {
			onChange(ctx)
		}
	})
	v.WatchConfig()
}
