package lunomcp

import (
	"context"
	"net"
	"time"
)

// Handler processes one encoded JSON-RPC request and returns the encoded reply.
//
// Implementations encode protocol-level failures (unknown method, bad params)
// as JSON-RPC error objects in the returned bytes. A non-nil error is reserved
// for unexpected faults; transports log it and keep serving the client.
//
// A nil or empty reply means the request was a notification and nothing is
// written back.
type Handler interface {
	HandleMessage(ctx context.Context, request []byte) ([]byte, error)
}

// HandlerFunc adapts an ordinary function to the Handler interface.
//
// Example:
//
//	echo := lunomcp.HandlerFunc(func(ctx context.Context, req []byte) ([]byte, error) {
//	    return req, nil
//	})
type HandlerFunc func(ctx context.Context, request []byte) ([]byte, error)

// HandleMessage calls f(ctx, request).
func (f HandlerFunc) HandleMessage(ctx context.Context, request []byte) ([]byte, error) {
	return f(ctx, request)
}

// Transport receives encoded requests from a concrete medium, applies its
// policy and hands them to a Handler.
//
// Example usage:
//
//	transport := ws.New(ws.DefaultConfig())
//	if err := transport.Run(ctx, dispatcher); err != nil {
//	    log.Fatal(err)
//	}
type Transport interface {
	// Run serves requests until the context is cancelled or the medium is
	// exhausted (EOF on standard input). It returns nil on a clean stop.
	//
	// Returns an error if the transport is already running or if it cannot
	// bind to its network address.
	Run(ctx context.Context, handler Handler) error
}

// Broadcaster delivers a server notification to every connected client.
type Broadcaster interface {
	// Broadcast wraps message in a JSON-RPC notification and sends it to all
	// open connections. Delivery is best effort: a failure for one client
	// does not affect the others and is never reported to the caller.
	Broadcast(ctx context.Context, message string)
}

// WebsocketTransport is a multi-client Transport served over WebSocket.
type WebsocketTransport interface {
	Transport
	Broadcaster

	// ConnectionCount returns the number of currently admitted connections.
	ConnectionCount() int

	// Ready is closed once the listener is bound.
	Ready() <-chan struct{}

	// Addr returns the bound listener address, or nil before Ready.
	Addr() net.Addr
}

// Client represents a connected WebSocket client.
//
// Each client has a unique identifier and maintains its own connection state.
// The client's context is automatically cancelled when the connection closes.
type Client interface {
	// ID returns a unique identifier for the connected client.
	//
	// The ID is generated when the client connects and remains constant for
	// the lifetime of the connection. It is used for logging only.
	ID() string

	// Identity returns the key used for rate limiting, derived from the
	// remote address and port ("192.168.1.100:54321").
	Identity() string

	// RemoteAddr returns the client's remote network address.
	RemoteAddr() string

	// ConnectedAt returns the time the connection was accepted.
	ConnectedAt() time.Time

	// Context returns the client's lifecycle context.
	//
	// This context is cancelled when the connection closes, which lets
	// handlers abandon work for a client that went away.
	Context() context.Context

	// Send queues a text frame for delivery to the client.
	//
	// Returns ErrConnectionClosed if the connection is closed.
	Send(ctx context.Context, data []byte) error

	// Close closes the client connection with websocket.CloseNormalClosure.
	Close(ctx context.Context) error

	// CloseWithCode closes the connection with a specific WebSocket close code and optional reason.
	//
	// Common close codes:
	//   - 1000 (websocket.CloseNormalClosure): Normal closure
	//   - 1001 (websocket.CloseGoingAway): Server shutting down
	//   - 1008 (websocket.ClosePolicyViolation): Too many connections
	CloseWithCode(ctx context.Context, code int, reason string) error

	// IsAlive returns true if the connection is still active.
	IsAlive() bool
}
