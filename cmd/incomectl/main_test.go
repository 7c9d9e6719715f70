package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/starfire-income/internal/health"
	"github.com/fd1az/starfire-income/internal/logger"
	"github.com/fd1az/starfire-income/internal/wsfeed"
	"github.com/fd1az/starfire-income/pkg/incomeclient"
)

func TestSendOptions_Income(t *testing.T) {
	tests := []struct {
		name    string
		opts    sendOptions
		wantErr bool
	}{
		{name: "structured", opts: sendOptions{format: "structured", amount: "0.5", total: "10", tokens: []int64{3, 4}}},
		{name: "structured_without_total", opts: sendOptions{format: "structured", amount: "0.5"}, wantErr: true},
		{name: "legacy", opts: sendOptions{format: "legacy", amount: "1"}},
		{name: "text", opts: sendOptions{format: "text", amount: "12.50"}},
		{name: "bad_amount", opts: sendOptions{format: "legacy", amount: "abc"}, wantErr: true},
		{name: "bad_format", opts: sendOptions{format: "xml", amount: "1"}, wantErr: true},
		{name: "bad_tokens", opts: sendOptions{format: "legacy", amount: "1", tokens: []int64{1}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := tt.opts.income()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			_, err = in.Encode()
			assert.NoError(t, err)
		})
	}

	in, err := (&sendOptions{format: "structured", amount: "1", total: "2", tokens: []int64{3, 4}}).income()
	require.NoError(t, err)
	require.NotNil(t, in.Usage)
	assert.Equal(t, int64(7), in.Usage.TotalTokens)
}

func TestPrintPrices(t *testing.T) {
	var buf bytes.Buffer
	err := printPrices(&buf, &incomeclient.PriceConfig{
		Timestamp: 0,
		Data: []incomeclient.ModelPrice{
			{Model: "*", Engine: "ollama", IPPM: "3.8", OPPM: "8.3"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "prices @ 1970-01-01T00:00:00Z")
	assert.Contains(t, buf.String(), "ollama")
	assert.Contains(t, buf.String(), "8.3")
}

func TestVersionCmd(t *testing.T) {
	var buf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "dev\n", buf.String())
}

func TestPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	err := printStatus(&buf, health.Status{
		Status:  "healthy",
		Version: "dev",
		Checks: map[string]health.Check{
			"income_server": {Healthy: true, Message: "2 connections"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "healthy (version dev")
	assert.Contains(t, buf.String(), "income_server")
	assert.Contains(t, buf.String(), "2 connections")
}

func TestStatusCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"healthy","version":"v1","checks":{"income_server":{"healthy":true}}}`))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"status", "--health-url", srv.URL})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "healthy (version v1")
}

func TestEventsCmd(t *testing.T) {
	hub := wsfeed.New(wsfeed.DefaultConfig(), logger.NewDiscard())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	var buf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"events", "--count", "1", "--url", "ws" + strings.TrimPrefix(srv.URL, "http")})

	done := make(chan error, 1)
	go func() { done <- cmd.Execute() }()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, hub.Publish(map[string]string{"kind": "income"}))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("events command did not exit")
	}
	assert.JSONEq(t, `{"kind":"income"}`, strings.TrimSpace(buf.String()))
}
