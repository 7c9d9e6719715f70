// Package incomeclient is the worker side of the income channel: it dials the
// income server, reports earnings and receives price configuration.
package incomeclient

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/fd1az/starfire-income/internal/apperror"
	"github.com/fd1az/starfire-income/internal/circuitbreaker"
	"github.com/fd1az/starfire-income/internal/logger"
	"github.com/fd1az/starfire-income/pkg/frame"
)

// Config holds client settings.
type Config struct {
	Addr            string
	DialTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxFrameSize    uint32 // inbound; 0 = unlimited
	MaxTries        uint   // dial attempts per Connect; 0 = until ctx is done
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Breaker         circuitbreaker.Config
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:            addr,
		DialTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		MaxFrameSize:    frame.DefaultMaxSize,
		MaxTries:        5,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Breaker:         circuitbreaker.DefaultConfig("income-client"),
	}
}

// Client is a single connection to the income server. Send and Receive may
// be used from different goroutines.
type Client struct {
	config Config
	logger logger.LoggerInterface
	cb     *circuitbreaker.CircuitBreaker[net.Conn]

	mu      sync.RWMutex
	conn    net.Conn
	writeMu sync.Mutex
}

// New creates a disconnected client.
func New(cfg Config, log logger.LoggerInterface) *Client {
	return &Client{
		config: cfg,
		logger: log,
		cb:     circuitbreaker.New[net.Conn](cfg.Breaker),
	}
}

// Connect dials with exponential backoff. Dials go through a circuit
// breaker, so once it opens further attempts fail fast until it half-opens.
func (c *Client) Connect(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	if c.config.InitialInterval > 0 {
		b.InitialInterval = c.config.InitialInterval
	}
	if c.config.MaxInterval > 0 {
		b.MaxInterval = c.config.MaxInterval
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn(ctx, "dial failed, retrying", "addr", c.config.Addr, "retry_in", next.String(), "error", err)
		}),
	}
	if c.config.MaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(c.config.MaxTries))
	}

	conn, err := backoff.Retry(ctx, func() (net.Conn, error) {
		conn, err := c.cb.Execute(func() (net.Conn, error) {
			d := net.Dialer{Timeout: c.config.DialTimeout}
			return d.DialContext(ctx, "tcp", c.config.Addr)
		})
		if apperror.HasCode(err, apperror.CodeCircuitOpen) {
			return nil, backoff.Permanent(err)
		}
		return conn, err
	}, opts...)
	if err != nil {
		return apperror.New(apperror.CodeConnectionFailed, apperror.WithContext(c.config.Addr), apperror.WithCause(err))
	}

	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.mu.Unlock()
	if old != nil {
		old.Close()
	}

	c.logger.Info(ctx, "connected to income server", "addr", c.config.Addr, "local", conn.LocalAddr().String())
	return nil
}

func (c *Client) current() (net.Conn, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return nil, apperror.New(apperror.CodeConnectionClosed, apperror.WithContext("not connected"))
	}
	return c.conn, nil
}

// Send writes one raw frame.
func (c *Client) Send(ctx context.Context, payload []byte) error {
	conn, err := c.current()
	if err != nil {
		return err
	}

	encoded, err := frame.Encode(payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.config.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return apperror.Wrap(err, apperror.CodeSendFailure, "set deadline")
	}
	if _, err := conn.Write(encoded); err != nil {
		return apperror.Wrap(err, apperror.CodeSendFailure, "write frame")
	}
	return nil
}

// SendIncome encodes and sends one report.
func (c *Client) SendIncome(ctx context.Context, in Income) error {
	payload, err := in.Encode()
	if err != nil {
		return err
	}
	return c.Send(ctx, payload)
}

// Receive reads one raw frame. It blocks until a frame arrives, the
// connection closes or ctx is done.
func (c *Client) Receive(ctx context.Context) ([]byte, error) {
	conn, err := c.current()
	if err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	payload, err := frame.Read(conn, c.config.MaxFrameSize)
	if err != nil {
		return nil, c.readErr(ctx, err)
	}
	return payload, nil
}

// readErr maps a read failure. A stream that ended between frames is
// CONNECTION_CLOSED; one that ended inside a frame stays INCOMPLETE_FRAME.
func (c *Client) readErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if frame.IsCleanEOF(err) {
		return apperror.New(apperror.CodeConnectionClosed, apperror.WithCause(err))
	}
	return err
}

// ReceivePrices reads frames until a price config arrives. Other frames are
// skipped.
func (c *Client) ReceivePrices(ctx context.Context) (*PriceConfig, error) {
	for {
		payload, err := c.Receive(ctx)
		if err != nil {
			return nil, err
		}
		pc, err := DecodePriceConfig(payload)
		if err != nil {
			c.logger.Debug(ctx, "skipping non-price frame", "error", err)
			continue
		}
		return pc, nil
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}
