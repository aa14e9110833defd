package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/amanasmuei/lunomcp"
	"github.com/amanasmuei/lunomcp/internal/protocol"
)

const readTimeout = 5 * time.Second

// stubHandler answers every request with {"jsonrpc":"2.0","result":"ok","id":<id>}
// and counts its invocations. Messages "boom" and "panic" fail, "notify" has
// no reply.
type stubHandler struct {
	calls atomic.Int32
	delay func(n int32) time.Duration
}

func (h *stubHandler) HandleMessage(ctx context.Context, request []byte) ([]byte, error) {
	n := h.calls.Add(1)
	if h.delay != nil {
		time.Sleep(h.delay(n))
	}

	switch string(request) {
	case "boom":
		return nil, errors.New("upstream exploded")
	case "panic":
		panic("handler bug")
	case "notify":
		return nil, nil
	}

	id := json.RawMessage("null")
	if req, err := protocol.Decode(request); err == nil && len(req.ID) > 0 {
		id = req.ID
	}
	return []byte(fmt.Sprintf(`{"jsonrpc":"2.0","result":"ok","id":%s}`, id)), nil
}

var _ lunomcp.Handler = (*stubHandler)(nil)

func newTestLogger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

// startServer serves cfg through httptest and returns the server and the ws:// URL.
func startServer(t *testing.T, cfg *ServerConfig, handler lunomcp.Handler) (*Server, string) {
	t.Helper()

	if cfg.Logger == nil {
		cfg.Logger, _ = newTestLogger()
	}
	srv := New(cfg)
	ts := httptest.NewServer(srv.Router(handler))
	t.Cleanup(ts.Close)

	return srv, "ws" + strings.TrimPrefix(ts.URL, "http") + DefaultPath
}

func newDialer() *websocket.Dialer {
	return &websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := newDialer().Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
}

func read(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

// readResponse skips server notifications and returns the next response.
func readResponse(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	for {
		msg := read(t, conn)
		var probe struct {
			Method string `json:"method"`
		}
		if json.Unmarshal([]byte(msg), &probe) == nil && probe.Method == lunomcp.NotificationMethod {
			continue
		}
		return msg
	}
}

func roundTrip(t *testing.T, conn *websocket.Conn, msg string) string {
	t.Helper()
	send(t, conn, msg)
	return read(t, conn)
}

// closeGracefully sends a normal close frame before closing the socket.
func closeGracefully(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = conn.Close()
}

func request(method string, id int) string {
	return fmt.Sprintf(`{"jsonrpc":"2.0","method":%q,"params":{},"id":%d}`, method, id)
}

func okResponse(id int) string {
	return fmt.Sprintf(`{"jsonrpc":"2.0","result":"ok","id":%d}`, id)
}

// newClosedClient returns a client that is closed but still looks registrable.
func newClosedClient(id string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return &Client{
		id:       id,
		identity: id,
		log:      logrus.NewEntry(logrus.New()),
		ctx:      ctx,
		cancel:   cancel,
		closed:   true,
	}
}

// newStalledClient is an open client whose write pump never runs, with its
// send queue already full.
func newStalledClient(id string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		id:       id,
		identity: id,
		log:      logrus.NewEntry(logrus.New()),
		ctx:      ctx,
		cancel:   cancel,
		sendCh:   make(chan []byte, 1),
	}
	c.sendCh <- []byte("queued")
	return c
}
