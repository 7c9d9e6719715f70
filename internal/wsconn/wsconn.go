// Package wsconn provides a WebSocket client that reconnects with backoff.
package wsconn

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"

	"github.com/fd1az/starfire-income/internal/apperror"
	"github.com/fd1az/starfire-income/internal/logger"
)

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Config holds WebSocket client configuration.
type Config struct {
	URL            string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxReconnects  uint // dial attempts per outage; 0 = backoff's elapsed-time limit only
	PingInterval   time.Duration
	PongTimeout    time.Duration
	ReadLimit      int64
	BufferSize     int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url string) Config {
	return Config{
		URL:            url,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
		ReadLimit:      1 << 20,
		BufferSize:     100,
	}
}

// Client is a read-mostly WebSocket client. Received messages are delivered
// on Messages until the client is closed or gives up reconnecting, at which
// point the channel is closed.
type Client struct {
	config Config
	logger logger.LoggerInterface

	state    State
	stateMu  sync.RWMutex
	messages chan []byte

	connMu sync.Mutex
	conn   *websocket.Conn

	cancel     context.CancelFunc
	done       chan struct{}
	closeOnce  sync.Once
	reconnects atomic.Int64
}

// New creates a new WebSocket client.
func New(config Config, log logger.LoggerInterface) *Client {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig("").BufferSize
	}
	return &Client{
		config:   config,
		logger:   log,
		state:    StateDisconnected,
		messages: make(chan []byte, config.BufferSize),
		done:     make(chan struct{}),
	}
}

// Connect dials once and starts the read loop. Later disconnects are
// retried in the background; ctx only bounds this first dial.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		return apperror.New(apperror.CodeConnectionFailed, apperror.WithContext(c.config.URL), apperror.WithCause(err))
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.setState(StateConnected)

	go c.run(runCtx, conn)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, c.config.URL, nil)
	if err != nil {
		return nil, err
	}
	if c.config.ReadLimit > 0 {
		conn.SetReadLimit(c.config.ReadLimit)
	}
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return conn, nil
}

func (c *Client) run(ctx context.Context, conn *websocket.Conn) {
	defer close(c.done)
	defer close(c.messages)

	for {
		err := c.readLoop(ctx, conn)
		conn.CloseNow()
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}
		c.logger.Warn(ctx, "websocket disconnected", "url", c.config.URL, "error", err)

		conn, err = c.reconnect(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Error(ctx, "websocket reconnect gave up", "url", c.config.URL, "error", err)
			}
			c.setState(StateDisconnected)
			return
		}
		c.setState(StateConnected)
		c.logger.Info(ctx, "websocket reconnected", "url", c.config.URL)
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if c.config.PingInterval > 0 {
		go c.pingLoop(ctx, conn)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		select {
		case c.messages <- data:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pingCtx, cancel := context.WithTimeout(ctx, c.config.PongTimeout)
		err := conn.Ping(pingCtx)
		cancel()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn(ctx, "websocket ping failed", "url", c.config.URL, "error", err)
				conn.Close(websocket.StatusGoingAway, "ping timeout")
			}
			return
		}
	}
}

func (c *Client) reconnect(ctx context.Context) (*websocket.Conn, error) {
	c.setState(StateReconnecting)

	b := backoff.NewExponentialBackOff()
	if c.config.InitialBackoff > 0 {
		b.InitialInterval = c.config.InitialBackoff
	}
	if c.config.MaxBackoff > 0 {
		b.MaxInterval = c.config.MaxBackoff
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Debug(ctx, "websocket dial failed", "url", c.config.URL, "retry_in", next.String(), "error", err)
		}),
	}
	if c.config.MaxReconnects > 0 {
		opts = append(opts, backoff.WithMaxTries(c.config.MaxReconnects))
	}

	return backoff.Retry(ctx, func() (*websocket.Conn, error) {
		c.reconnects.Add(1)
		return c.dial(ctx)
	}, opts...)
}

// Messages returns the channel for receiving messages.
func (c *Client) Messages() <-chan []byte {
	return c.messages
}

// Send writes a text message on the current connection.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn == nil || c.State() != StateConnected {
		return apperror.New(apperror.CodeConnectionClosed, apperror.WithContext(c.config.URL))
	}
	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return apperror.Wrap(err, apperror.CodeSendFailure, "websocket write")
	}
	return nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// IsConnected reports whether the client currently holds a live connection.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Reconnects returns the number of reconnect dial attempts so far.
func (c *Client) Reconnects() int64 {
	return c.reconnects.Load()
}

// Close stops the read loop and closes the connection. It waits for the
// Messages channel to be closed.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.cancel == nil {
			close(c.messages)
			return
		}
		c.cancel()
		<-c.done
	})
	c.setState(StateDisconnected)
	return nil
}

func (c *Client) setState(state State) {
	c.stateMu.Lock()
	c.state = state
	c.stateMu.Unlock()
}
