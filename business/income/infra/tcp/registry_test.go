package tcp

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/starfire-income/internal/apperror"
	"github.com/fd1az/starfire-income/internal/logger"
	"github.com/fd1az/starfire-income/pkg/frame"
)

// stubConn is a net.Conn that records writes and can be made to fail.
type stubConn struct {
	net.Conn

	mu      sync.Mutex
	fail    bool
	written [][]byte
	closed  bool
}

func (s *stubConn) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail || s.closed {
		return 0, errors.New("broken pipe")
	}
	s.written = append(s.written, append([]byte(nil), b...))
	return len(b), nil
}

func (s *stubConn) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubConn) SetWriteDeadline(time.Time) error { return nil }
func (s *stubConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
}

func (s *stubConn) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestRegistry_BroadcastEvictsFailed(t *testing.T) {
	reg := NewRegistry(time.Second, logger.NewDiscard())

	s1, s2, s3 := &stubConn{}, &stubConn{fail: true}, &stubConn{}
	c1, c2, c3 := NewConn(s1), NewConn(s2), NewConn(s3)
	reg.Register(c1)
	reg.Register(c2)
	reg.Register(c3)

	sent := reg.Broadcast(context.Background(), []byte(`{"id":"model_price_config"}`))
	assert.Equal(t, 2, sent)
	assert.Equal(t, 2, reg.Count())

	_, ok := reg.Get(c2.ID())
	assert.False(t, ok)
	_, ok = reg.Get(c1.ID())
	assert.True(t, ok)
	_, ok = reg.Get(c3.ID())
	assert.True(t, ok)
	assert.True(t, s2.isClosed())

	require.Len(t, s1.written, 1)
	payload, err := frame.Read(bytes.NewReader(s1.written[0]), 0)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"model_price_config"}`, string(payload))
}

func TestRegistry_SendTo(t *testing.T) {
	reg := NewRegistry(0, logger.NewDiscard())
	good, bad := &stubConn{}, &stubConn{fail: true}
	cg, cb := NewConn(good), NewConn(bad)
	reg.Register(cg)
	reg.Register(cb)

	require.NoError(t, reg.SendTo(context.Background(), cg.ID(), []byte("x")))
	assert.Len(t, good.written, 1)

	err := reg.SendTo(context.Background(), cb.ID(), []byte("x"))
	assert.True(t, apperror.HasCode(err, apperror.CodeSendFailure))
	assert.Equal(t, 1, reg.Count())

	err = reg.SendTo(context.Background(), "missing", []byte("x"))
	assert.True(t, apperror.HasCode(err, apperror.CodeNotFound))
}

func TestRegistry_UnregisterIdempotent(t *testing.T) {
	reg := NewRegistry(0, logger.NewDiscard())
	c := NewConn(&stubConn{})
	reg.Register(c)

	assert.True(t, reg.Unregister(c))
	assert.False(t, reg.Unregister(c))
	assert.Zero(t, reg.Count())
}

func TestRegistry_CloseAll(t *testing.T) {
	reg := NewRegistry(0, logger.NewDiscard())
	stubs := []*stubConn{{}, {}, {}}
	for _, s := range stubs {
		reg.Register(NewConn(s))
	}

	assert.Equal(t, 3, reg.CloseAll())
	assert.Zero(t, reg.Count())
	for _, s := range stubs {
		assert.True(t, s.isClosed())
	}
	assert.Zero(t, reg.Broadcast(context.Background(), []byte("x")))
}

func TestConn_Identity(t *testing.T) {
	a, b := NewConn(&stubConn{}), NewConn(&stubConn{})
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, "127.0.0.1:40000", a.Remote())
	assert.Equal(t, a.ID(), a.Peer().ID)
	assert.False(t, a.ConnectedAt().IsZero())
}
