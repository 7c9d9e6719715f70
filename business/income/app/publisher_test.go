package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/starfire-income/business/income/domain"
	"github.com/fd1az/starfire-income/internal/logger"
)

var testDefaults = domain.PriceDefaults{Mode: domain.ModeOllama, IPPM: "3.8", OPPM: "8.3"}

func newTestPublisher() *PriceSyncPublisher {
	p := NewPriceSyncPublisher(logger.NewDiscard())
	p.now = func() time.Time { return time.Unix(1700000000, 0) }
	return p
}

func decodeMessage(t *testing.T, b []byte) PriceMessage {
	t.Helper()
	var msg PriceMessage
	require.NoError(t, json.Unmarshal(b, &msg))
	return msg
}

func TestBuildMessage_EmptyTableWildcard(t *testing.T) {
	tests := []struct {
		mode   domain.Mode
		engine string
	}{
		{domain.ModeOllama, "ollama"},
		{domain.ModeProxy, "openai"},
		{domain.ModeVLLM, "vllm"},
		{domain.ModeLlamaCpp, "llama.cpp"},
	}

	p := newTestPublisher()
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			defaults := testDefaults
			defaults.Mode = tt.mode

			b, engine, err := p.BuildMessage(context.Background(), nil, defaults)
			require.NoError(t, err)
			assert.Equal(t, tt.engine, engine)

			msg := decodeMessage(t, b)
			assert.Equal(t, "model_price_config", msg.ID)
			assert.Equal(t, "model_prices", msg.Type)
			assert.Equal(t, int64(1700000000), msg.Timestamp)
			require.Len(t, msg.Data, 1)
			assert.Equal(t, domain.PriceEntry{Model: "*", Engine: tt.engine, IPPM: "3.8", OPPM: "8.3"}, msg.Data[0])
		})
	}
}

func TestBuildMessage_Table(t *testing.T) {
	p := newTestPublisher()
	table := domain.PriceTable{
		"qwen":    {Model: "qwen", Engine: "vllm", IPPM: "1", OPPM: "2"},
		"llama3":  {IPPM: "3.8", OPPM: "8.3"},
		"mistral": {Model: "mistral", OPPM: "9"},
	}

	b, engine, err := p.BuildMessage(context.Background(), table, testDefaults)
	require.NoError(t, err)
	assert.Equal(t, "ollama,vllm", engine)

	msg := decodeMessage(t, b)
	require.Len(t, msg.Data, 3)
	assert.Equal(t, domain.PriceEntry{Model: "llama3", Engine: "ollama", IPPM: "3.8", OPPM: "8.3"}, msg.Data[0])
	assert.Equal(t, domain.PriceEntry{Model: "mistral", Engine: "ollama", IPPM: "3.8", OPPM: "9"}, msg.Data[1])
	assert.Equal(t, domain.PriceEntry{Model: "qwen", Engine: "vllm", IPPM: "1", OPPM: "2"}, msg.Data[2])
}

func TestBuildMessage_MissingPrices(t *testing.T) {
	p := newTestPublisher()
	_, _, err := p.BuildMessage(context.Background(), domain.PriceTable{"x": {}}, domain.PriceDefaults{})
	assert.Error(t, err)
}

func TestPublish_CachesWithoutConnections(t *testing.T) {
	p := newTestPublisher()
	b := newFakeBroadcaster()

	res, err := p.Publish(context.Background(), b, nil, testDefaults)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, 0, res.Sent)
	assert.Zero(t, b.broadc)
	require.NotNil(t, p.Pending())

	msg := decodeMessage(t, p.Pending())
	require.Len(t, msg.Data, 1)
	assert.Equal(t, "*", msg.Data[0].Model)
}

func TestPublish_BroadcastsAndLastWriteWins(t *testing.T) {
	p := newTestPublisher()
	b := newFakeBroadcaster("c1", "c2")

	_, err := p.Publish(context.Background(), b, nil, testDefaults)
	require.NoError(t, err)

	res, err := p.Publish(context.Background(), b, domain.PriceTable{"llama3": {IPPM: "3.8", OPPM: "8.3"}}, testDefaults)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
	assert.False(t, res.Cached)

	msg := decodeMessage(t, p.Pending())
	require.Len(t, msg.Data, 1)
	assert.Equal(t, "llama3", msg.Data[0].Model)
	assert.Len(t, b.received("c1"), 2)
}

func TestOnConnect(t *testing.T) {
	p := newTestPublisher()
	b := newFakeBroadcaster("c1")

	sent, err := p.OnConnect(context.Background(), b, "c1")
	require.NoError(t, err)
	assert.False(t, sent, "nothing pending")

	_, err = p.Publish(context.Background(), newFakeBroadcaster(), nil, testDefaults)
	require.NoError(t, err)

	sent, err = p.OnConnect(context.Background(), b, "c1")
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, p.Pending(), b.received("c1")[0])

	b.fail("c1")
	sent, err = p.OnConnect(context.Background(), b, "c1")
	assert.Error(t, err)
	assert.False(t, sent)
	assert.Zero(t, b.Count())
}

// gatedBroadcaster holds every SendTo until gate is closed.
type gatedBroadcaster struct {
	*fakeBroadcaster
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedBroadcaster) SendTo(ctx context.Context, id string, payload []byte) error {
	close(g.entered)
	<-g.gate
	return g.fakeBroadcaster.SendTo(ctx, id, payload)
}

func TestOnConnect_RacingPublishLeavesWorkerOnNewest(t *testing.T) {
	p := newTestPublisher()
	ctx := context.Background()

	table := func(model string) domain.PriceTable {
		return domain.PriceTable{model: {Model: model, IPPM: "1", OPPM: "2"}}
	}

	_, err := p.Publish(ctx, newFakeBroadcaster(), table("old"), testDefaults)
	require.NoError(t, err)

	b := &gatedBroadcaster{
		fakeBroadcaster: newFakeBroadcaster("w1"),
		entered:         make(chan struct{}),
		gate:            make(chan struct{}),
	}

	connected := make(chan error, 1)
	go func() {
		_, err := p.OnConnect(ctx, b, "w1")
		connected <- err
	}()
	<-b.entered

	published := make(chan error, 1)
	go func() {
		_, err := p.Publish(ctx, b, table("new"), testDefaults)
		published <- err
	}()

	// Give Publish time to reach the delivery lock before the send completes.
	time.Sleep(50 * time.Millisecond)
	close(b.gate)

	require.NoError(t, <-connected)
	require.NoError(t, <-published)

	got := b.received("w1")
	require.NotEmpty(t, got)
	assert.Equal(t, "new", decodeMessage(t, got[len(got)-1]).Data[0].Model)
	assert.Equal(t, "new", decodeMessage(t, p.Pending()).Data[0].Model)
}
