package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/amanasmuei/lunomcp"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// pongWait is how long the connection may stay silent before it is dropped.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// sendBuffer is the number of outbound frames queued per client.
	sendBuffer = 256
)

// ErrSendQueueFull is returned by TrySend when the outbound queue is full.
var ErrSendQueueFull = errors.New("client send queue is full")

// Client implements the lunomcp.Client interface
type Client struct {
	id          string
	identity    string
	remoteAddr  string
	connectedAt time.Time
	conn        *websocket.Conn
	log         logrus.FieldLogger
	ctx         context.Context
	cancel      context.CancelFunc
	sendCh      chan []byte
	mu          sync.RWMutex
	closed      bool
}

// NewClient wraps an upgraded connection and starts its write pump.
func NewClient(conn *websocket.Conn, remoteAddr string, log logrus.FieldLogger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	id := uuid.New().String()
	client := &Client{
		id:          id,
		identity:    remoteAddr,
		remoteAddr:  remoteAddr,
		connectedAt: time.Now(),
		conn:        conn,
		log:         log.WithFields(logrus.Fields{"client_id": id, "remote_addr": remoteAddr}),
		ctx:         ctx,
		cancel:      cancel,
		sendCh:      make(chan []byte, sendBuffer),
	}

	go client.writePump()

	return client
}

// ID returns a unique identifier for the connected client
func (c *Client) ID() string {
	return c.id
}

// Identity returns the rate limit key of the client
func (c *Client) Identity() string {
	return c.identity
}

// RemoteAddr returns the client's remote network address
func (c *Client) RemoteAddr() string {
	return c.remoteAddr
}

// ConnectedAt returns the time the connection was accepted
func (c *Client) ConnectedAt() time.Time {
	return c.connectedAt
}

// Context returns the client's lifecycle context
func (c *Client) Context() context.Context {
	return c.ctx
}

// Send queues data as a single text frame
func (c *Client) Send(ctx context.Context, data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed || c.ctx.Err() != nil {
		return lunomcp.ErrConnectionClosed
	}

	select {
	case c.sendCh <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return lunomcp.ErrConnectionClosed
	}
}

// TrySend queues data without waiting. It returns ErrSendQueueFull when the
// client's queue is full, for deliveries that must not stall on one peer.
func (c *Client) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed || c.ctx.Err() != nil {
		return lunomcp.ErrConnectionClosed
	}

	select {
	case c.sendCh <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close closes the client connection
func (c *Client) Close(ctx context.Context) error {
	return c.CloseWithCode(ctx, websocket.CloseNormalClosure, "")
}

// CloseWithCode closes the connection with a close code and optional reason
func (c *Client) CloseWithCode(ctx context.Context, code int, reason string) error {
	// Unblock senders waiting on a full queue before taking the write lock.
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	deadline := time.Now().Add(time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)

	close(c.sendCh)
	return c.conn.Close()
}

// IsAlive returns true if the connection is still active
func (c *Client) IsAlive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// writePump pumps messages from the send channel to the websocket connection.
// It is the only goroutine writing data frames to the connection. A failed
// write tears the connection down so the read loop unblocks; otherwise the
// closer owns the socket.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.sendCh:
			if !ok {
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.WithError(err).Debug("write failed, stopping write pump")
				c.abort()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.abort()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) abort() {
	c.cancel()
	c.conn.Close()
}
