// Package lunomcp serves Luno exchange tools to AI assistants over the Model
// Context Protocol (JSON-RPC 2.0).
//
// # Architecture
//
// A Transport reads encoded requests from its medium and hands each one to a
// Handler, which returns the encoded reply. The two layers only share bytes:
//
//	transport (ws, stdio)  ->  Handler (MCP dispatcher)  ->  Luno REST client
//
// Two transports are provided:
//
//   - ws: a multi-client WebSocket server with connection, size and rate
//     policies, optional TLS, a health probe and Prometheus metrics.
//   - stdio: newline-delimited JSON-RPC on standard input/output for a
//     single client that launched the process.
//
// # Quick Start
//
//	import (
//	    "github.com/amanasmuei/lunomcp/ws"
//	)
//
//	cfg := ws.DefaultConfig()
//	cfg.CheckOrigin = ws.AllowOrigins("example.com")
//	transport := ws.New(cfg)
//
//	err := transport.Run(ctx, lunomcp.HandlerFunc(func(ctx context.Context, req []byte) ([]byte, error) {
//	    return req, nil
//	}))
//
// The lunomcp command wires the transports to the MCP dispatcher and the Luno
// tools; see cmd/lunomcp.
//
// # Message Policy
//
// Every text frame is one JSON-RPC message. The WebSocket transport checks
// each message in order:
//
//  1. Size: a message over MaxMessageSize bytes gets
//     {"jsonrpc":"2.0","error":{"code":-32600,"message":"Message too large"},"id":null}
//     and does not count against the rate limit.
//  2. Rate: a client over RateLimit messages in its current one minute window
//     gets the same shape with code -32000 and "Rate limit exceeded".
//     The window resets once a minute has passed since it started.
//  3. Otherwise the Handler runs and its reply, if any, is sent verbatim.
//
// Replies to one connection keep the order of its requests. A slow request
// never holds up another connection.
//
// # Close Codes
//
//   - 1008 (Policy Violation): "Maximum connections reached"
//   - 1001 (Going Away): "Server shutting down"
//   - 1009 (Message Too Big): frame over 16 MiB when MaxMessageSize is disabled
//
// # Notifications
//
// Broadcast sends
//
//	{"jsonrpc":"2.0","method":"server_notification","params":{"message":"..."}}
//
// to every open connection. Failed deliveries are logged and skipped.
//
// # Important
//
//   - Configure CheckOrigin in production (ws.AllOrigins accepts any page)
//   - Without a loadable certificate the server falls back to plain ws and logs a warning
package lunomcp
