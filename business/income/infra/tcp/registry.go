package tcp

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fd1az/starfire-income/business/income/app"
	"github.com/fd1az/starfire-income/internal/apperror"
	"github.com/fd1az/starfire-income/internal/logger"
	"github.com/fd1az/starfire-income/pkg/frame"
)

// Conn is one worker connection. Writes are serialized; Close is idempotent.
type Conn struct {
	id          string
	remote      string
	connectedAt time.Time
	nc          net.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps nc with a fresh id.
func NewConn(nc net.Conn) *Conn {
	remote := ""
	if addr := nc.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	return &Conn{
		id:          uuid.NewString(),
		remote:      remote,
		connectedAt: time.Now(),
		nc:          nc,
	}
}

func (c *Conn) ID() string             { return c.id }
func (c *Conn) Remote() string         { return c.remote }
func (c *Conn) ConnectedAt() time.Time { return c.connectedAt }

// Peer returns the identity handed to the connection handler.
func (c *Conn) Peer() app.Peer {
	return app.Peer{ID: c.id, Remote: c.remote}
}

// writeFrame writes an already encoded frame, bounded by timeout and ctx.
func (c *Conn) writeFrame(ctx context.Context, encoded []byte, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := c.nc.SetWriteDeadline(deadline); err != nil {
		return err
	}

	_, err := c.nc.Write(encoded)
	return err
}

// Close closes the underlying socket once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.nc.Close()
	})
	return c.closeErr
}

// Registry tracks live connections. It implements app.Broadcaster.
type Registry struct {
	writeTimeout time.Duration
	logger       logger.LoggerInterface

	mu    sync.Mutex
	conns map[string]*Conn
}

var _ app.Broadcaster = (*Registry)(nil)

// NewRegistry creates an empty registry. writeTimeout bounds each send; 0
// means no per-send deadline.
func NewRegistry(writeTimeout time.Duration, log logger.LoggerInterface) *Registry {
	return &Registry{
		writeTimeout: writeTimeout,
		logger:       log,
		conns:        make(map[string]*Conn),
	}
}

// Register adds c.
func (r *Registry) Register(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.id] = c
}

// Unregister removes c if present and reports whether it was.
func (r *Registry) Unregister(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.conns[c.id]; ok && cur == c {
		delete(r.conns, c.id)
		return true
	}
	return false
}

// Get looks a connection up by id.
func (r *Registry) Get(id string) (*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	return c, ok
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Snapshot returns the live connections, oldest first.
func (r *Registry) Snapshot() []*Conn {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	sort.Slice(conns, func(i, j int) bool {
		return conns[i].connectedAt.Before(conns[j].connectedAt)
	})
	return conns
}

// Broadcast sends payload to every connection. The set is snapshotted so
// the lock is not held across network writes. Connections that fail are
// evicted and closed; their reader then reports the disconnect.
func (r *Registry) Broadcast(ctx context.Context, payload []byte) int {
	encoded, err := frame.Encode(payload)
	if err != nil {
		r.logger.Error(ctx, "broadcast encode failed", "error", err)
		return 0
	}

	sent := 0
	for _, c := range r.Snapshot() {
		if err := c.writeFrame(ctx, encoded, r.writeTimeout); err != nil {
			r.evict(ctx, c, err)
			continue
		}
		sent++
	}
	return sent
}

// SendTo sends payload to one connection, evicting it on failure.
func (r *Registry) SendTo(ctx context.Context, id string, payload []byte) error {
	c, ok := r.Get(id)
	if !ok {
		return apperror.New(apperror.CodeNotFound, apperror.WithContext("connection "+id))
	}

	encoded, err := frame.Encode(payload)
	if err != nil {
		return err
	}

	if err := c.writeFrame(ctx, encoded, r.writeTimeout); err != nil {
		r.evict(ctx, c, err)
		return apperror.New(apperror.CodeSendFailure, apperror.WithContext("connection "+id), apperror.WithCause(err))
	}
	return nil
}

func (r *Registry) evict(ctx context.Context, c *Conn, cause error) {
	if r.Unregister(c) {
		r.logger.Warn(ctx, "send failed, evicting connection",
			"conn_id", c.id, "remote", c.remote, "code", apperror.CodeSendFailure, "error", cause)
	}
	c.Close()
}

// CloseAll closes and removes every connection and returns how many there were.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*Conn)
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	return len(conns)
}
