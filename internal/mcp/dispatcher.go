// Package mcp implements the Model Context Protocol method table on top of
// JSON-RPC 2.0. A Dispatcher is a lunomcp.Handler and is shared by every
// transport client.
package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/amanasmuei/lunomcp"
	"github.com/amanasmuei/lunomcp/internal/protocol"
)

// ToolFunc runs a tool. The result is marshalled to JSON.
type ToolFunc func(ctx context.Context, args Arguments) (any, error)

// ToolDefinition is a tool as registered with the dispatcher.
type ToolDefinition struct {
	Tool
	// RequiresAuth hides the tool from listings when no exchange
	// credentials are configured.
	RequiresAuth bool
	Call         ToolFunc
}

// ResourceFunc produces the current contents of a resource. The result is
// marshalled to JSON.
type ResourceFunc func(ctx context.Context) (any, error)

// ResourceDefinition is a resource as registered with the dispatcher.
type ResourceDefinition struct {
	Resource
	Read ResourceFunc
}

type methodFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Dispatcher routes decoded requests to built-in MCP methods and tools.
type Dispatcher struct {
	info          Implementation
	log           logrus.FieldLogger
	authenticated bool
	methods       map[string]methodFunc

	mu            sync.RWMutex
	tools         map[string]*ToolDefinition
	order         []string
	resources     map[string]*ResourceDefinition
	resourceOrder []string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(d *Dispatcher) {
		d.log = log
	}
}

// WithAuthenticated tells the dispatcher whether exchange credentials are
// configured, which decides whether auth-only tools are listed.
func WithAuthenticated(authenticated bool) Option {
	return func(d *Dispatcher) {
		d.authenticated = authenticated
	}
}

// NewDispatcher returns a dispatcher announcing itself as info.
func NewDispatcher(info Implementation, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		info:      info,
		log:       logrus.StandardLogger(),
		tools:     make(map[string]*ToolDefinition),
		resources: make(map[string]*ResourceDefinition),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.WithField("component", "mcp")

	d.methods = map[string]methodFunc{
		"initialize":                d.initialize,
		"initialized":               d.ack,
		"notifications/initialized": d.ack,
		"ping":                      d.ping,
		"describe_capabilities":     d.describeCapabilities,
		"tools/list":                d.listTools,
		"tools/call":                d.callTool,
		"resources/list":            d.listResources,
		"resources/read":            d.readResource,
	}
	return d
}

// Register adds a tool. Names must be unique and must not shadow a built-in
// method, since tools are also callable directly by name.
func (d *Dispatcher) Register(def ToolDefinition) error {
	if def.Name == "" || def.Call == nil {
		return stderrors.New("tool needs a name and a function")
	}
	if _, ok := d.methods[def.Name]; ok {
		return errors.Errorf("tool name %q collides with a built-in method", def.Name)
	}
	if len(def.InputSchema) == 0 {
		def.InputSchema = json.RawMessage(`{"type":"object","properties":{}}`)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.tools[def.Name]; ok {
		return errors.Errorf("tool %q already registered", def.Name)
	}
	d.tools[def.Name] = &def
	d.order = append(d.order, def.Name)
	return nil
}

// Tools returns the tools visible to clients in registration order.
func (d *Dispatcher) Tools() []Tool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Tool, 0, len(d.order))
	for _, name := range d.order {
		def := d.tools[name]
		if def.RequiresAuth && !d.authenticated {
			continue
		}
		out = append(out, def.Tool)
	}
	return out
}

// ToolNames splits every registered tool name, listed or not, into those
// usable without credentials and those requiring them.
func (d *Dispatcher) ToolNames() (public, private []string) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, name := range d.order {
		if d.tools[name].RequiresAuth {
			private = append(private, name)
		} else {
			public = append(public, name)
		}
	}
	return public, private
}

// RegisterResource adds a resource. URIs must be unique.
func (d *Dispatcher) RegisterResource(def ResourceDefinition) error {
	if def.URI == "" || def.Read == nil {
		return stderrors.New("resource needs a uri and a function")
	}
	if def.MIMEType == "" {
		def.MIMEType = "application/json"
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.resources[def.URI]; ok {
		return errors.Errorf("resource %q already registered", def.URI)
	}
	d.resources[def.URI] = &def
	d.resourceOrder = append(d.resourceOrder, def.URI)
	return nil
}

// Resources returns the registered resources in registration order.
func (d *Dispatcher) Resources() []Resource {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Resource, 0, len(d.resourceOrder))
	for _, uri := range d.resourceOrder {
		out = append(out, d.resources[uri].Resource)
	}
	return out
}

func (d *Dispatcher) tool(name string) (*ToolDefinition, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	def, ok := d.tools[name]
	return def, ok
}

// HandleMessage decodes one JSON-RPC request and returns the encoded reply.
// Protocol failures are answered with JSON-RPC errors; the returned error is
// reserved for replies that cannot be encoded.
func (d *Dispatcher) HandleMessage(ctx context.Context, data []byte) ([]byte, error) {
	req, err := protocol.Decode(data)
	if err != nil {
		if json.Valid(data) {
			return protocol.EncodeError(nil, lunomcp.JSONRPCInvalidRequest, lunomcp.ErrInvalidRequest), nil
		}
		return protocol.EncodeError(nil, lunomcp.JSONRPCParseError, lunomcp.ErrParseError), nil
	}

	if req.JSONRPC != lunomcp.JSONRPCVersion || req.Method == "" {
		return protocol.EncodeError(req.ID, lunomcp.JSONRPCInvalidRequest, lunomcp.ErrInvalidRequest), nil
	}

	log := d.log.WithField("method", req.Method)
	log.Debug("Dispatching request")

	result, err := d.dispatch(ctx, req)
	if req.IsNotification() {
		if err != nil {
			log.WithError(err).Debug("Notification failed")
		}
		return nil, nil
	}
	if err != nil {
		code, msg := errorCode(err)
		if code == lunomcp.JSONRPCInternalError {
			log.WithError(err).Error("Request failed")
		}
		return protocol.EncodeError(req.ID, code, msg), nil
	}

	resp, err := protocol.EncodeResult(req.ID, result)
	if err != nil {
		log.WithError(err).Error("Failed to encode result")
		return protocol.EncodeError(req.ID, lunomcp.JSONRPCInternalError, lunomcp.ErrInternalError), nil
	}
	return resp, nil
}

// rpcError carries an explicit JSON-RPC code out of a method.
type rpcError struct {
	code int
	msg  string
}

func (e *rpcError) Error() string {
	return e.msg
}

func errorCode(err error) (int, string) {
	var rpc *rpcError
	if stderrors.As(err, &rpc) {
		return rpc.code, rpc.msg
	}
	var invalid *InvalidParamsError
	if stderrors.As(err, &invalid) {
		return lunomcp.JSONRPCInvalidParams, lunomcp.ErrInvalidParams + ": " + invalid.Message
	}
	return lunomcp.JSONRPCInternalError, err.Error()
}

func (d *Dispatcher) dispatch(ctx context.Context, req *protocol.Request) (any, error) {
	if method, ok := d.methods[req.Method]; ok {
		return method(ctx, req.Params)
	}

	// Older clients call tools directly by name.
	if def, ok := d.tool(req.Method); ok {
		args, err := ParseArguments(req.Params)
		if err != nil {
			return nil, err
		}
		return def.Call(ctx, args)
	}

	return nil, &rpcError{
		code: lunomcp.JSONRPCMethodNotFound,
		msg:  fmt.Sprintf("%s: %s", lunomcp.ErrMethodNotFound, req.Method),
	}
}

func (d *Dispatcher) initialize(ctx context.Context, params json.RawMessage) (any, error) {
	var p InitializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, InvalidParams("initialize params must be an object")
		}
	}
	d.log.WithFields(logrus.Fields{
		"client_name":      p.ClientInfo.Name,
		"client_version":   p.ClientInfo.Version,
		"protocol_version": p.ProtocolVersion,
	}).Info("Client initialized session")

	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ServerCapabilities{Tools: &ToolsCapability{}, Resources: &ResourcesCapability{}},
		ServerInfo:      d.info,
	}, nil
}

func (d *Dispatcher) ack(ctx context.Context, params json.RawMessage) (any, error) {
	return struct{}{}, nil
}

func (d *Dispatcher) ping(ctx context.Context, params json.RawMessage) (any, error) {
	return struct{}{}, nil
}

func (d *Dispatcher) describeCapabilities(ctx context.Context, params json.RawMessage) (any, error) {
	return Capabilities{
		ServerInfo:      d.info,
		ProtocolVersion: ProtocolVersion,
		Authenticated:   d.authenticated,
		Tools:           d.Tools(),
	}, nil
}

func (d *Dispatcher) listTools(ctx context.Context, params json.RawMessage) (any, error) {
	return ListToolsResult{Tools: d.Tools()}, nil
}

func (d *Dispatcher) callTool(ctx context.Context, params json.RawMessage) (any, error) {
	var p CallToolParams
	if len(params) == 0 || json.Unmarshal(params, &p) != nil {
		return nil, InvalidParams("tools/call params must be an object")
	}
	if p.Name == "" {
		return nil, InvalidParams("missing tool name")
	}
	def, ok := d.tool(p.Name)
	if !ok {
		return nil, InvalidParams("unknown tool %q", p.Name)
	}
	args, err := ParseArguments(p.Arguments)
	if err != nil {
		return nil, err
	}

	result, err := def.Call(ctx, args)
	if err != nil {
		var invalid *InvalidParamsError
		if stderrors.As(err, &invalid) {
			return nil, err
		}
		d.log.WithError(err).WithField("tool", p.Name).Warn("Tool call failed")
		return CallToolResult{
			Content: []Content{{Type: "text", Text: err.Error()}},
			IsError: true,
		}, nil
	}

	text, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s result", p.Name)
	}
	return CallToolResult{
		Content: []Content{{Type: "text", Text: string(text)}},
	}, nil
}

func (d *Dispatcher) listResources(ctx context.Context, params json.RawMessage) (any, error) {
	return ListResourcesResult{Resources: d.Resources()}, nil
}

func (d *Dispatcher) readResource(ctx context.Context, params json.RawMessage) (any, error) {
	var p ReadResourceParams
	if len(params) == 0 || json.Unmarshal(params, &p) != nil {
		return nil, InvalidParams("resources/read params must be an object")
	}
	if p.URI == "" {
		return nil, InvalidParams("missing resource uri")
	}

	d.mu.RLock()
	def, ok := d.resources[p.URI]
	d.mu.RUnlock()
	if !ok {
		return nil, InvalidParams("unknown resource %q", p.URI)
	}

	result, err := def.Read(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", p.URI)
	}
	text, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", p.URI)
	}
	return ReadResourceResult{
		Contents: []ResourceContents{{URI: def.URI, MIMEType: def.MIMEType, Text: string(text)}},
	}, nil
}
