// Package server assembles the MCP handler and the configured transport.
package server

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/amanasmuei/lunomcp"
	"github.com/amanasmuei/lunomcp/internal/config"
	"github.com/amanasmuei/lunomcp/internal/luno"
	"github.com/amanasmuei/lunomcp/internal/mcp"
	"github.com/amanasmuei/lunomcp/internal/metrics"
	"github.com/amanasmuei/lunomcp/internal/stdio"
	"github.com/amanasmuei/lunomcp/internal/tools"
	"github.com/amanasmuei/lunomcp/internal/websocket"
)

// Name is announced to MCP clients.
const Name = "lunomcp"

// Server runs exactly one transport in front of one handler.
type Server struct {
	cfg       *config.Config
	log       logrus.FieldLogger
	handler   lunomcp.Handler
	transport lunomcp.Transport
}

type options struct {
	in      io.Reader
	out     io.Writer
	metrics *metrics.Metrics
}

// Option customises New.
type Option func(*options)

// WithStdio replaces standard input and output for the stdio transport.
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(o *options) {
		o.in, o.out = in, out
	}
}

// WithMetrics sets the collectors of the websocket transport.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// NewDispatcher builds the MCP dispatcher with every exchange tool registered.
func NewDispatcher(cfg *config.Config, version string, log logrus.FieldLogger) (*mcp.Dispatcher, error) {
	client, err := luno.New(luno.Config{
		BaseURL:           cfg.Luno.BaseURL,
		APIKey:            cfg.Luno.APIKey,
		APISecret:         cfg.Luno.APISecret,
		Timeout:           cfg.Luno.Timeout,
		RequestsPerMinute: disabledAsNegative(cfg.Luno.RequestsPerMinute),
		MaxRetries:        disabledAsNegative(cfg.Luno.MaxRetries),
		Logger:            log,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create exchange client")
	}

	d := mcp.NewDispatcher(mcp.Implementation{Name: Name, Version: version},
		mcp.WithLogger(log), mcp.WithAuthenticated(client.HasCredentials()))
	if err := tools.Register(d, client, nil); err != nil {
		return nil, err
	}
	if err := tools.RegisterResources(d, client, nil, settings(cfg, version)); err != nil {
		return nil, err
	}
	return d, nil
}

func settings(cfg *config.Config, version string) tools.Settings {
	return tools.Settings{
		Name:              Name,
		Version:           version,
		Transport:         cfg.Transport,
		Host:              cfg.WebSocket.Host,
		Port:              cfg.WebSocket.Port,
		LogLevel:          cfg.Log.Level,
		BaseURL:           cfg.Luno.BaseURL,
		Timeout:           cfg.Luno.Timeout.String(),
		RequestsPerMinute: cfg.Luno.RequestsPerMinute,
	}
}

// disabledAsNegative maps the configuration's "0 disables" to the client's
// "negative disables".
func disabledAsNegative(v int) int {
	if v == 0 {
		return -1
	}
	return v
}

// New selects the transport named by cfg.Transport.
func New(cfg *config.Config, handler lunomcp.Handler, log logrus.FieldLogger, opts ...Option) (*Server, error) {
	o := options{in: os.Stdin, out: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &Server{cfg: cfg, log: log, handler: handler}
	switch cfg.Transport {
	case config.TransportStdio:
		s.transport = stdio.New(o.in, o.out, log)
	case config.TransportWebSocket:
		s.transport = websocket.New(websocketConfig(cfg.WebSocket, log, o.metrics))
	default:
		return nil, errors.Errorf("unknown transport %q", cfg.Transport)
	}
	return s, nil
}

func websocketConfig(c config.WebSocketConfig, log logrus.FieldLogger, m *metrics.Metrics) *websocket.ServerConfig {
	return &websocket.ServerConfig{
		Host:            c.Host,
		Port:            c.Port,
		Path:            c.Path,
		MaxConnections:  c.MaxConnections,
		MaxMessageSize:  c.MaxMessageSize,
		RateLimit:       c.RateLimit,
		CertFile:        c.CertFile,
		KeyFile:         c.KeyFile,
		MonitorInterval: c.MonitorInterval,
		CheckOrigin:     websocket.AllowOrigins(c.AllowedOrigins...),
		Logger:          log,
		Metrics:         m,
	}
}

// Transport returns the selected transport.
func (s *Server) Transport() lunomcp.Transport {
	return s.transport
}

// Run serves until ctx is cancelled or the transport stops on its own.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.HasCredentials() {
		s.log.Info("API credentials found, private tools enabled")
	} else {
		s.log.Warn("No API credentials found, only public tools are available")
		s.log.Info("Set LUNO_API_KEY and LUNO_API_SECRET for full functionality")
	}
	s.log.WithField("transport", s.cfg.Transport).Info("Starting Luno MCP server")

	if err := s.transport.Run(ctx, s.handler); err != nil {
		return errors.Wrapf(err, "%s transport", s.cfg.Transport)
	}
	s.log.Info("Luno MCP server stopped")
	return nil
}
