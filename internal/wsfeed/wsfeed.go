// Package wsfeed fans JSON events out to WebSocket subscribers.
package wsfeed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/fd1az/starfire-income/internal/logger"
)

// Config holds hub settings.
type Config struct {
	BufferSize   int           // per-subscriber queue; events are dropped when full
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:   64,
		WriteTimeout: 5 * time.Second,
	}
}

type subscriber struct {
	msgs chan []byte
}

// Hub is an http.Handler that upgrades requests to WebSocket and streams
// every published event to them. Subscribers are read-only.
type Hub struct {
	config Config
	log    logger.LoggerInterface

	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	dropped uint64
}

// New creates a Hub.
func New(config Config, log logger.LoggerInterface) *Hub {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}
	return &Hub{
		config: config,
		log:    log,
		subs:   make(map[*subscriber]struct{}),
	}
}

// Publish marshals v and queues it for every subscriber. It never blocks.
func (h *Hub) Publish(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.msgs <- b:
		default:
			h.dropped++
		}
	}
	return nil
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many events were discarded for slow subscribers.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and streams events until the peer leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket accept failed", "error", err)
		return
	}
	defer c.CloseNow()

	s := &subscriber{msgs: make(chan []byte, h.config.BufferSize)}
	h.add(s)
	defer h.remove(s)

	h.log.Debug(r.Context(), "event subscriber connected", "remote", r.RemoteAddr)

	ctx := c.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.msgs:
			if err := h.write(ctx, c, msg); err != nil {
				if !errors.Is(err, context.Canceled) {
					h.log.Debug(ctx, "event subscriber write failed", "error", err)
				}
				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, c *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, h.config.WriteTimeout)
	defer cancel()
	return c.Write(ctx, websocket.MessageText, msg)
}
