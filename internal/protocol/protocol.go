package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/amanasmuei/lunomcp"
)

// Request represents a JSON-RPC 2.0 request
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// IsNotification reports whether the request carries no id.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response represents a JSON-RPC 2.0 response
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Error represents a JSON-RPC 2.0 error
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Notification is a message that expects no reply.
type Notification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

var nullID = json.RawMessage("null")

// Decode parses a single JSON-RPC request. Batches are not supported.
func Decode(data []byte) (*Request, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty message")
	}
	if trimmed[0] != '{' {
		return nil, errors.New("message is not a JSON object")
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// EncodeResult marshals result into a success response for id.
func EncodeResult(id json.RawMessage, result interface{}) ([]byte, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return json.Marshal(Response{
		JSONRPC: lunomcp.JSONRPCVersion,
		Result:  raw,
		ID:      orNull(id),
	})
}

// EncodeError builds an error response. A nil id is encoded as null.
func EncodeError(id json.RawMessage, code int, message string) []byte {
	data, err := json.Marshal(Response{
		JSONRPC: lunomcp.JSONRPCVersion,
		Error:   &Error{Code: code, Message: message},
		ID:      orNull(id),
	})
	if err != nil {
		// Only reachable with an invalid raw id; answer without it.
		data, _ = json.Marshal(Response{
			JSONRPC: lunomcp.JSONRPCVersion,
			Error:   &Error{Code: code, Message: message},
			ID:      nullID,
		})
	}
	return data
}

// EncodeNotification builds a notification with the given method and params.
func EncodeNotification(method string, params interface{}) ([]byte, error) {
	return json.Marshal(Notification{
		JSONRPC: lunomcp.JSONRPCVersion,
		Method:  method,
		Params:  params,
	})
}

// Pre-encoded transport errors. They never carry an id because the transport
// does not parse the request it rejects.
var (
	MessageTooLarge   = EncodeError(nil, lunomcp.JSONRPCMessageTooLarge, lunomcp.ErrMessageTooLarge)
	RateLimitExceeded = EncodeError(nil, lunomcp.JSONRPCRateLimited, lunomcp.ErrRateLimitExceeded)
)

func orNull(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return nullID
	}
	return id
}
