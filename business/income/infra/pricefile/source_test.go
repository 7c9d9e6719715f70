package pricefile

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/starfire-income/business/income/domain"
	"github.com/fd1az/starfire-income/internal/config"
	"github.com/fd1az/starfire-income/internal/logger"
)

func TestFromConfig(t *testing.T) {
	table, defaults := FromConfig(config.PricingConfig{
		Mode:        "vllm",
		DefaultIPPM: "3.8",
		DefaultOPPM: "8.3",
		Models: []config.ModelPriceConfig{
			{Model: "llama3", IPPM: "1", OPPM: "2"},
			{Model: "Qwen", Engine: "vllm"},
		},
	})

	assert.Equal(t, domain.ModeVLLM, defaults.Mode)
	assert.Equal(t, "3.8", defaults.IPPM)
	require.Len(t, table, 2)
	assert.Equal(t, domain.PriceEntry{Model: "llama3", IPPM: "1", OPPM: "2"}, table["llama3"])
	assert.Equal(t, "vllm", table["Qwen"].Engine)
}

func TestSource_PricesIsCopy(t *testing.T) {
	s := New(config.PricingConfig{Models: []config.ModelPriceConfig{{Model: "a"}}}, logger.NewDiscard())
	table, _ := s.Prices()
	delete(table, "a")

	again, _ := s.Prices()
	assert.Len(t, again, 1)
}

func TestSource_WatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pricing:\n  mode: ollama\n"), 0o600))

	cfg, v, err := config.LoadWithViper(path)
	require.NoError(t, err)

	s := New(cfg.Pricing, logger.NewDiscard())
	table, _ := s.Prices()
	require.Empty(t, table)

	var changes atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Watch(ctx, v, func(context.Context) { changes.Add(1) })

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`pricing:
  mode: proxy
  models:
    - model: llama3
      ippm: "1.5"
      oppm: "2.5"
`), 0o600))

	require.Eventually(t, func() bool {
		table, _ := s.Prices()
		return len(table) == 1
	}, 5*time.Second, 20*time.Millisecond)

	table, defaults := s.Prices()
	assert.Equal(t, "1.5", table["llama3"].IPPM)
	assert.Equal(t, domain.ModeProxy, defaults.Mode)
	assert.GreaterOrEqual(t, changes.Load(), int32(1))
}
