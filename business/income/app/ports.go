// Package app contains application services and port definitions for the income context.
package app

import (
	"context"
	"net"

	"github.com/fd1az/starfire-income/business/income/domain"
)

// Broadcaster fans frames out to live worker connections.
type Broadcaster interface {
	// Broadcast sends payload to every connection and returns how many
	// succeeded. Failed connections are evicted.
	Broadcast(ctx context.Context, payload []byte) int

	// SendTo sends payload to one connection, evicting it on failure.
	SendTo(ctx context.Context, connID string, payload []byte) error

	// Count returns the number of live connections.
	Count() int
}

// Notifier receives every notification the channel emits. Implementations
// must not block for long; they run on connection reader goroutines.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n domain.Notification)

func (f NotifierFunc) Notify(ctx context.Context, n domain.Notification) { f(ctx, n) }

// PriceSource provides the active price table and global defaults.
type PriceSource interface {
	Prices() (domain.PriceTable, domain.PriceDefaults)
}

// Peer identifies one worker connection.
type Peer struct {
	ID     string
	Remote string
}

// ConnectionHandler is driven by the transport for each connection. Calls
// for a single peer are serialized; calls for different peers are not.
type ConnectionHandler interface {
	OnConnect(ctx context.Context, peer Peer)
	OnFrame(ctx context.Context, peer Peer, payload []byte)
	OnError(ctx context.Context, peer Peer, err error)
	OnDisconnect(ctx context.Context, peer Peer, err error)
}

// ServerState is the lifecycle state of the listener.
type ServerState string

const (
	StateStopped  ServerState = "stopped"
	StateStarting ServerState = "starting"
	StateRunning  ServerState = "running"
	StateStopping ServerState = "stopping"
)

// Lifecycle is the start/stop surface of the transport.
type Lifecycle interface {
	Start(ctx context.Context, host string, port int) error
	Stop(ctx context.Context) error
	State() ServerState
	Addr() net.Addr
}
