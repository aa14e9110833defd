package ws

import (
	"net/http"

	"github.com/amanasmuei/lunomcp"
	"github.com/amanasmuei/lunomcp/internal/websocket"
)

type ServerConfig = websocket.ServerConfig
type CheckOriginFn = websocket.CheckOriginFn
type OnConnectFn = websocket.OnConnectFn
type OnDisconnectFn = websocket.OnClientDisconnectFn

// New creates a WebSocket transport.
//
// The transport admits at most cfg.MaxConnections clients, answers messages
// over cfg.MaxMessageSize and clients over cfg.RateLimit requests per minute
// with JSON-RPC errors, and serves wss when cfg.CertFile and cfg.KeyFile load.
//
// Example:
//
//	cfg := ws.DefaultConfig()
//	cfg.CheckOrigin = ws.AllowOrigins("example.com")
//	transport := ws.New(cfg)
//	err := transport.Run(ctx, handler)
func New(cfg *ServerConfig) lunomcp.WebsocketTransport {
	return websocket.New(cfg)
}

// DefaultConfig returns localhost:8765, 50 connections, 1 MiB messages,
// 100 requests per client per minute and certificates under ./certs.
func DefaultConfig() *ServerConfig {
	return websocket.DefaultConfig()
}

// AllOrigins returns a checkOrigin function that allows all origins
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool {
		return true
	}
}

// AllowOrigins returns a checkOrigin function accepting the given origin hosts.
func AllowOrigins(origins ...string) CheckOriginFn {
	return websocket.AllowOrigins(origins...)
}
