// Package tcp implements the income channel transport: the connection
// registry and the accept loop over length-prefixed frames.
package tcp

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/fd1az/starfire-income/business/income/app"
	"github.com/fd1az/starfire-income/internal/apperror"
	"github.com/fd1az/starfire-income/internal/logger"
	"github.com/fd1az/starfire-income/internal/ratelimit"
	"github.com/fd1az/starfire-income/pkg/frame"
)

// Config holds server settings.
type Config struct {
	PollInterval    time.Duration // accept wait before re-checking state
	MaxFrameSize    uint32        // 0 = unlimited
	FramesPerSecond float64       // per connection; 0 = unlimited
	FrameBurst      int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: time.Second,
		MaxFrameSize: frame.DefaultMaxSize,
		FrameBurst:   50,
	}
}

// Server owns the listening socket and one reader goroutine per connection.
// It implements app.Lifecycle.
type Server struct {
	config   Config
	registry *Registry
	handler  app.ConnectionHandler
	limiter  *ratelimit.Keyed
	logger   logger.LoggerInterface

	mu         sync.Mutex
	state      app.ServerState
	ln         listener
	cancel     context.CancelFunc
	acceptDone chan struct{}
	readers    sync.WaitGroup
}

var _ app.Lifecycle = (*Server)(nil)

// listener is the part of *net.TCPListener the accept loop uses.
type listener interface {
	SetDeadline(t time.Time) error
	Accept() (net.Conn, error)
	Close() error
	Addr() net.Addr
}

// NewServer creates a stopped server.
func NewServer(cfg Config, registry *Registry, handler app.ConnectionHandler, log logger.LoggerInterface) *Server {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Server{
		config:   cfg,
		registry: registry,
		handler:  handler,
		limiter:  ratelimit.NewKeyed(cfg.FramesPerSecond, cfg.FrameBurst),
		logger:   log,
		state:    app.StateStopped,
	}
}

// State returns the lifecycle state.
func (s *Server) State() app.ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the bound address while running, else nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start binds host:port and starts accepting. Port 0 picks a free port; use
// Addr to find it. ctx only supplies values: the server runs until Stop.
func (s *Server) Start(ctx context.Context, host string, port int) error {
	s.mu.Lock()
	switch s.state {
	case app.StateStopped:
	case app.StateRunning:
		s.mu.Unlock()
		return apperror.New(apperror.CodeAlreadyRunning)
	default:
		st := s.state
		s.mu.Unlock()
		return apperror.New(apperror.CodeInvalidState, apperror.WithContext("server is "+string(st)))
	}
	s.state = app.StateStarting
	s.mu.Unlock()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.setState(app.StateStopped)
		return apperror.New(apperror.CodeBindError, apperror.WithContext(addr), apperror.WithCause(err))
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	s.mu.Lock()
	s.ln = ln.(*net.TCPListener)
	s.cancel = cancel
	s.acceptDone = done
	s.state = app.StateRunning
	s.mu.Unlock()

	s.logger.Info(ctx, "income server listening", "addr", ln.Addr().String())

	go s.acceptLoop(loopCtx, s.ln, done)
	return nil
}

// Stop closes the listener and every connection and waits for the reader
// goroutines to finish or ctx to expire. Calling it on a stopped server is
// a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != app.StateRunning {
		s.mu.Unlock()
		return nil
	}
	s.state = app.StateStopping
	ln, cancel, acceptDone := s.ln, s.cancel, s.acceptDone
	s.mu.Unlock()

	cancel()
	ln.Close()
	<-acceptDone

	closed := s.registry.CloseAll()

	waited := make(chan struct{})
	go func() {
		s.readers.Wait()
		close(waited)
	}()

	var err error
	select {
	case <-waited:
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.mu.Lock()
	s.ln = nil
	s.cancel = nil
	s.acceptDone = nil
	s.state = app.StateStopped
	s.mu.Unlock()

	s.logger.Info(ctx, "income server stopped", "closed_connections", closed)
	return err
}

func (s *Server) setState(st app.ServerState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Server) running() bool {
	return s.State() == app.StateRunning
}

func (s *Server) acceptLoop(ctx context.Context, ln listener, done chan struct{}) {
	defer close(done)

	for s.running() {
		if err := ln.SetDeadline(time.Now().Add(s.config.PollInterval)); err != nil {
			// The listener is gone.
			return
		}

		nc, err := ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) || !s.running() {
				return
			}
			s.handler.OnError(ctx, app.Peer{}, apperror.New(apperror.CodeAcceptError, apperror.WithCause(err)))
			continue
		}

		if !s.running() {
			nc.Close()
			return
		}

		c := NewConn(nc)
		s.registry.Register(c)
		s.readers.Add(1)
		go s.serve(ctx, c)
	}
}

// serve is the per-connection reader. Frames are handled strictly in order.
func (s *Server) serve(ctx context.Context, c *Conn) {
	defer s.readers.Done()

	peer := c.Peer()
	s.handler.OnConnect(ctx, peer)

	var exitErr error
	for {
		payload, err := frame.Read(c.nc, s.config.MaxFrameSize)
		if err != nil {
			exitErr = s.readExit(ctx, c, err)
			break
		}

		// Back-pressure only: the frame is already read and is never dropped.
		if err := s.limiter.Wait(ctx, c.id); err != nil {
			s.handler.OnFrame(ctx, peer, payload)
			break
		}

		s.handler.OnFrame(ctx, peer, payload)
	}

	s.registry.Unregister(c)
	c.Close()
	s.limiter.Forget(c.id)

	s.handler.OnDisconnect(ctx, peer, exitErr)
}

// readExit classifies the error that ended a reader. It returns nil for an
// orderly end: a clean EOF, or a close initiated by this process.
func (s *Server) readExit(ctx context.Context, c *Conn, err error) error {
	if frame.IsCleanEOF(err) {
		return nil
	}
	if _, live := s.registry.Get(c.id); !live || ctx.Err() != nil {
		// Evicted by a failed send or closed by Stop.
		return nil
	}
	if apperror.HasCode(err, apperror.CodeFrameTooLarge) {
		// The stream cannot be resynchronised after an unread body.
		s.handler.OnError(ctx, c.Peer(), err)
	}
	return err
}
