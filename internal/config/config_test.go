package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 19527, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:19527", cfg.Server.Address())
	assert.Equal(t, time.Second, cfg.Server.PollInterval)
	assert.Equal(t, uint32(1<<20), cfg.Server.MaxFrameSize)
	assert.Equal(t, "ollama", cfg.Pricing.Mode)
	assert.Equal(t, "3.8", cfg.Pricing.DefaultIPPM)
	assert.Equal(t, "8.3", cfg.Pricing.DefaultOPPM)
	assert.Empty(t, cfg.Pricing.Models)
}

func TestLoad_ModelsKeepCase(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
pricing:
  mode: proxy
  models:
    - model: Qwen2.5-7B
      engine: openai
      ippm: "1.2"
      oppm: "2.4"
    - model: llama3
`))
	require.NoError(t, err)

	require.Len(t, cfg.Pricing.Models, 2)
	assert.Equal(t, "Qwen2.5-7B", cfg.Pricing.Models[0].Model)
	assert.Equal(t, "openai", cfg.Pricing.Models[0].Engine)
	assert.Equal(t, "1.2", cfg.Pricing.Models[0].IPPM)
	assert.Equal(t, "", cfg.Pricing.Models[1].IPPM)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("INCOME_PORT", "20000")
	t.Setenv("INCOME_MODE", "vllm")

	cfg, err := Load(writeConfig(t, "app:\n  name: test\n"))
	require.NoError(t, err)
	assert.Equal(t, 20000, cfg.Server.Port)
	assert.Equal(t, "vllm", cfg.Pricing.Mode)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad_mode", "pricing:\n  mode: tpu\n", "invalid pricing.mode"},
		{"bad_default_price", "pricing:\n  default_ippm: abc\n", "invalid pricing.default_ippm"},
		{"negative_price", "pricing:\n  default_oppm: \"-1\"\n", "cannot be negative"},
		{"missing_model", "pricing:\n  models:\n    - ippm: \"1\"\n", "model is required"},
		{"duplicate_model", "pricing:\n  models:\n    - model: a\n    - model: a\n", "duplicate model"},
		{"bad_port", "server:\n  port: 70000\n", "invalid server.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
