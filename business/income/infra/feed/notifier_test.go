package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/starfire-income/business/income/domain"
	"github.com/fd1az/starfire-income/internal/logger"
	"github.com/fd1az/starfire-income/internal/wsfeed"
)

func TestToEvent_JSON(t *testing.T) {
	ev := domain.NewIncomeEvent(domain.SourceStructured, decimal.RequireFromString("0.5"), "$").
		WithTotal(decimal.RequireFromString("10"))
	ev.Model = "llama3"

	b, err := json.Marshal(ToEvent(domain.Notification{
		Kind:         domain.KindMessage,
		ConnectionID: "c1",
		Content:      "{}",
		Event:        &ev,
		Total:        "10",
	}))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "message", got["kind"])
	assert.Equal(t, "c1", got["connection_id"])
	assert.Equal(t, "10", got["total_income"])

	income := got["income"].(map[string]any)
	assert.Equal(t, "0.5", income["amount"])
	assert.Equal(t, "USD", income["currency_code"])
	assert.Equal(t, "structured", income["source_format"])
	assert.Equal(t, "llama3", income["model"])
}

type failingPublisher struct{}

func (failingPublisher) Publish(any) error { return errors.New("boom") }

func TestNotifier_PublishErrorIsSwallowed(t *testing.T) {
	n := NewNotifier(failingPublisher{}, logger.NewDiscard())
	assert.NotPanics(t, func() {
		n.Notify(context.Background(), domain.Notification{Kind: domain.KindError})
	})
}

func TestNotifier_OverWebSocket(t *testing.T) {
	hub := wsfeed.New(wsfeed.DefaultConfig(), logger.NewDiscard())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer c.CloseNow()
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	NewNotifier(hub, logger.NewDiscard()).Notify(ctx, domain.Notification{
		Kind:    domain.KindConnect,
		Remote:  "127.0.0.1:1",
		Content: "worker connected: 127.0.0.1:1",
	})

	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"connect"`)
	assert.NotContains(t, string(data), `"income"`)
}
