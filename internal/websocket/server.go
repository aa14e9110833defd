package websocket

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/amanasmuei/lunomcp"
	"github.com/amanasmuei/lunomcp/internal/metrics"
	"github.com/amanasmuei/lunomcp/internal/protocol"
	"github.com/amanasmuei/lunomcp/internal/ratelimit"
)

const (
	// shutdownTimeout bounds http.Server.Shutdown.
	shutdownTimeout = 5 * time.Second
	// logExcerpt is how much of a failing message is copied into logs.
	logExcerpt = 256
	// startupNotice is broadcast once the listener is up.
	startupNotice = "Server started and ready"
)

// Server implements the lunomcp.WebsocketTransport interface
type Server struct {
	cfg      *ServerConfig
	log      logrus.FieldLogger
	registry *Registry
	limiter  *ratelimit.Limiter
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	running bool
	secure  bool
	addr    net.Addr
	ready   chan struct{}
}

// New creates a WebSocket transport. Zero-valued optional fields of cfg
// (clock, logger, metrics, path, monitor interval) get defaults.
//
// Example:
//
//	server := New(DefaultConfig())
//	err := server.Run(ctx, handler)
func New(cfg *ServerConfig) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg = cfg.withDefaults()

	return &Server{
		cfg:      cfg,
		log:      cfg.Logger.WithField("component", "websocket"),
		registry: NewRegistry(cfg.MaxConnections),
		limiter:  ratelimit.New(cfg.RateLimit, cfg.Clock),
		metrics:  cfg.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		ready: make(chan struct{}),
	}
}

// Run binds the listener and serves clients until ctx is cancelled.
//
// On cancellation it stops accepting, stops the monitor, closes every
// admitted connection with 1001 and waits for their loops to finish.
// A Server runs once; later calls return lunomcp.ErrServerAlreadyRunning.
// A Run that fails to bind leaves the Server unused, so it may be retried.
func (s *Server) Run(ctx context.Context, handler lunomcp.Handler) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return lunomcp.ErrServerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	s.log.Infof("Starting WebSocket server on %s", s.cfg.Addr())

	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}

	var tlsCfg *tls.Config
	if tlsCfg = secureConfig(s.cfg.CertFile, s.cfg.KeyFile, s.log); tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}

	httpServer := &http.Server{
		Handler:           s.Router(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.secure = tlsCfg != nil
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return s.monitor(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown(httpServer)
	})

	scheme := "ws"
	if s.secure {
		scheme = "wss"
	}
	s.log.Infof("WebSocket server started on %s://%s%s", scheme, ln.Addr(), s.cfg.Path)
	close(s.ready)
	s.Broadcast(ctx, startupNotice)

	err = g.Wait()
	s.registry.Wait()
	s.log.Info("WebSocket server stopped")
	return err
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listener address, or nil before Ready.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Secure reports whether the listener serves TLS.
func (s *Server) Secure() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secure
}

// ConnectionCount returns the number of admitted connections.
func (s *Server) ConnectionCount() int {
	return s.registry.Len()
}

// Router returns the HTTP routes of the transport: the upgrade endpoint on
// the configured path and on "/", a health probe and Prometheus metrics.
func (s *Server) Router(handler lunomcp.Handler) http.Handler {
	upgrade := s.upgradeHandler(handler)

	rtr := chi.NewRouter()
	rtr.Get("/healthz", s.healthz)
	rtr.Handle("/metrics", s.metrics.Handler())
	rtr.Get(s.cfg.Path, upgrade)
	if s.cfg.Path != "/" {
		rtr.Get("/", upgrade)
	}
	return rtr
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "ok",
		"connections": s.registry.Len(),
	})
}

// upgradeHandler handles incoming WebSocket connections
func (s *Server) upgradeHandler(handler lunomcp.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already replied with an HTTP error.
			s.log.WithError(err).WithField("remote_addr", r.RemoteAddr).Warn("failed to upgrade connection")
			return
		}

		client := NewClient(conn, r.RemoteAddr, s.log)
		if !s.registry.TryAdmit(client) {
			code, reason := websocket.ClosePolicyViolation, lunomcp.ReasonMaxConnections
			if s.registry.Draining() {
				code, reason = websocket.CloseGoingAway, lunomcp.ReasonShutdown
			}
			client.log.Warnf("Rejecting client: %s", reason)
			s.metrics.ConnectionsRejected.Inc()
			_ = client.CloseWithCode(context.Background(), code, reason)
			return
		}
		s.metrics.ConnectionsAccepted.Inc()
		s.metrics.ConnectionsActive.Set(float64(s.registry.Len()))

		go s.handleClient(client, handler)
	}
}

// handleClient runs the receive loop of one admitted client
func (s *Server) handleClient(client *Client, handler lunomcp.Handler) {
	client.log.Info("Client connected")

	defer func() {
		voluntary := client.IsAlive()
		s.registry.Remove(client)
		s.metrics.ConnectionsActive.Set(float64(s.registry.Len()))
		_ = client.Close(context.Background())

		if s.cfg.OnClientDisconnect != nil {
			s.cfg.OnClientDisconnect(client, voluntary)
		}
		client.log.Info("Client disconnected")
	}()

	client.conn.SetReadLimit(s.cfg.frameLimit())
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if s.cfg.OnConnect != nil {
		s.cfg.OnConnect(client)
	}

	for {
		_, r, err := client.conn.NextReader()
		if err == nil {
			client.conn.SetReadDeadline(time.Now().Add(pongWait))
			var data []byte
			var size int64
			if data, size, err = s.readMessage(r); err == nil {
				err = s.processMessage(client, handler, data, size)
				if errors.Is(err, lunomcp.ErrConnectionClosed) {
					return
				}
				continue
			}
		}

		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) && client.IsAlive() {
			client.log.WithError(err).Warn("Unexpected WebSocket close")
		} else {
			client.log.WithError(err).Debug("Connection closed")
		}
		return
	}
}

// readMessage reads one frame. With a MaxMessageSize set, at most
// MaxMessageSize+1 bytes are kept and the rest of a larger frame is
// discarded; data is then nil and size is the full frame length.
func (s *Server) readMessage(r io.Reader) (data []byte, size int64, err error) {
	max := int64(s.cfg.MaxMessageSize)
	if max <= 0 {
		data, err = io.ReadAll(r)
		return data, int64(len(data)), err
	}

	data, err = io.ReadAll(io.LimitReader(r, max+1))
	if err != nil || int64(len(data)) <= max {
		return data, int64(len(data)), err
	}
	rest, err := io.Copy(io.Discard, r)
	return nil, int64(len(data)) + rest, err
}

// processMessage applies the size and rate policies to one message, runs the
// handler and writes its reply. Only a closed-connection error is returned;
// everything else is logged so the client's session survives.
func (s *Server) processMessage(client *Client, handler lunomcp.Handler, data []byte, size int64) error {
	if s.cfg.MaxMessageSize > 0 && size > int64(s.cfg.MaxMessageSize) {
		client.log.Warnf("Message exceeds maximum size: %d bytes", size)
		s.metrics.Observe(metrics.OutcomeTooLarge)
		return s.reply(client, protocol.MessageTooLarge)
	}

	if !s.limiter.Allow(client.Identity()) {
		client.log.Warn("Rate limit exceeded")
		s.metrics.Observe(metrics.OutcomeRateLimited)
		return s.reply(client, protocol.RateLimitExceeded)
	}

	client.log.Debugf("Received message: %s", excerpt(data))

	response, err := s.invoke(client, handler, data)
	if err != nil {
		client.log.WithError(err).WithField("message", excerpt(data)).Error("Error handling message")
		s.metrics.Observe(metrics.OutcomeHandlerError)
		return nil
	}
	if len(response) == 0 {
		s.metrics.Observe(metrics.OutcomeOK)
		return nil
	}

	if err := s.reply(client, response); err != nil {
		return err
	}
	s.metrics.Observe(metrics.OutcomeOK)
	return nil
}

func (s *Server) invoke(client *Client, handler lunomcp.Handler, data []byte) (response []byte, err error) {
	start := time.Now()
	defer func() {
		s.metrics.HandlerDuration.Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler.HandleMessage(client.Context(), data)
}

func (s *Server) reply(client *Client, data []byte) error {
	err := client.Send(client.Context(), data)
	if err == nil {
		return nil
	}
	if errors.Is(err, lunomcp.ErrConnectionClosed) {
		return err
	}
	client.log.WithError(err).Error("Failed to send response")
	s.metrics.Observe(metrics.OutcomeSendError)
	return nil
}

// Broadcast sends a server notification to all admitted clients. A client
// whose send queue is full misses the notification; nobody waits for it.
func (s *Server) Broadcast(ctx context.Context, message string) {
	payload, err := protocol.EncodeNotification(lunomcp.NotificationMethod, map[string]string{"message": message})
	if err != nil {
		s.log.WithError(err).Error("Failed to encode notification")
		return
	}

	clients := s.registry.Snapshot()
	for _, client := range clients {
		if ctx.Err() != nil {
			break
		}
		if err := client.TrySend(payload); err != nil {
			client.log.WithError(err).Debug("Failed to send notification")
		}
	}
	s.metrics.Broadcasts.Inc()
}

// shutdown stops the HTTP server and closes every admitted connection
func (s *Server) shutdown(httpServer *http.Server) error {
	s.log.Info("Shutting down WebSocket server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := httpServer.Shutdown(ctx)
	if err != nil {
		s.log.WithError(err).Warn("HTTP server did not shut down cleanly")
	}

	clients := s.registry.Drain()
	for _, client := range clients {
		client.log.Info("Closing connection for shutdown")
		_ = client.CloseWithCode(ctx, websocket.CloseGoingAway, lunomcp.ReasonShutdown)
	}
	return nil
}

func excerpt(data []byte) string {
	if len(data) <= logExcerpt {
		return string(data)
	}
	return string(data[:logExcerpt]) + "..."
}
