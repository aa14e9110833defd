package lunomcp

import "errors"

// Standard error messages
const (
	// Protocol errors
	ErrParseError        = "Parse error"
	ErrInvalidRequest    = "Invalid Request"
	ErrMethodNotFound    = "Method not found"
	ErrInvalidParams     = "Invalid params"
	ErrInternalError     = "Internal error"
	ErrMessageTooLarge   = "Message too large"
	ErrRateLimitExceeded = "Rate limit exceeded"

	// Connection close reasons
	ReasonMaxConnections = "Maximum connections reached"
	ReasonShutdown       = "Server shutting down"
)

// JSON-RPC error codes (following JSON-RPC 2.0 specification)
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603

	// JSONRPCRateLimited lives in the implementation-defined server error range.
	JSONRPCRateLimited = -32000

	// JSONRPCMessageTooLarge reuses the invalid request code for oversize frames.
	JSONRPCMessageTooLarge = JSONRPCInvalidRequest
)

// JSON-RPC version
const (
	JSONRPCVersion = "2.0"
)

// NotificationMethod is the method name used for server broadcasts.
const NotificationMethod = "server_notification"

var (
	// ErrConnectionClosed is returned when writing to a closed client.
	ErrConnectionClosed = errors.New("client connection is closed")
	// ErrServerAlreadyRunning is returned by Run on a transport that is already serving.
	ErrServerAlreadyRunning = errors.New("server already running")
)
