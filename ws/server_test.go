package ws_test

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/amanasmuei/lunomcp"
	"github.com/amanasmuei/lunomcp/ws"
)

// Helper function to create a WebSocket dialer
func newDialer() *websocket.Dialer {
	return &websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
}

func startEcho(t *testing.T, cfg *ws.ServerConfig) lunomcp.WebsocketTransport {
	t.Helper()

	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.CertFile = ""
	cfg.KeyFile = ""

	transport := ws.New(cfg)
	echo := lunomcp.HandlerFunc(func(ctx context.Context, req []byte) ([]byte, error) {
		return req, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- transport.Run(ctx, echo) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	select {
	case <-transport.Ready():
	case err := <-done:
		t.Fatalf("Failed to start server: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	return transport
}

func TestBasicEcho(t *testing.T) {
	t.Parallel()

	connected := make(chan string, 1)
	disconnected := make(chan bool, 1)

	cfg := ws.DefaultConfig()
	cfg.CheckOrigin = ws.AllOrigins()
	cfg.OnConnect = func(client lunomcp.Client) { connected <- client.ID() }
	cfg.OnClientDisconnect = func(client lunomcp.Client, voluntary bool) { disconnected <- voluntary }
	transport := startEcho(t, cfg)

	conn, _, err := newDialer().Dial("ws://"+transport.Addr().String()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	select {
	case id := <-connected:
		if id == "" {
			t.Error("client has no id")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("OnConnect was not called")
	}

	// The startup notice may already be queued; skip notifications.
	msg := []byte(`{"jsonrpc":"2.0","method":"ping","id":1}`)
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		t.Fatalf("Failed to send: %v", err)
	}
	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, response, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Failed to read: %v", err)
		}
		if string(response) == string(msg) {
			break
		}
	}

	if n := transport.ConnectionCount(); n != 1 {
		t.Errorf("Expected 1 connection, got %d", n)
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	conn.Close()

	select {
	case voluntary := <-disconnected:
		if !voluntary {
			t.Error("Expected a voluntary disconnect")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("OnClientDisconnect was not called")
	}
}

func TestOriginRejected(t *testing.T) {
	t.Parallel()

	cfg := ws.DefaultConfig()
	cfg.CheckOrigin = ws.AllowOrigins("example.com")
	transport := startEcho(t, cfg)

	header := map[string][]string{"Origin": {"https://evil.test"}}
	_, resp, err := newDialer().Dial("ws://"+transport.Addr().String()+"/ws", header)
	if err == nil {
		t.Fatal("Expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != 403 {
		t.Fatalf("Expected 403, got %v", resp)
	}
}

func TestBroadcast(t *testing.T) {
	t.Parallel()

	transport := startEcho(t, ws.DefaultConfig())

	conns := make([]*websocket.Conn, 2)
	for i := range conns {
		conn, _, err := newDialer().Dial("ws://"+transport.Addr().String()+"/", nil)
		if err != nil {
			t.Fatalf("Failed to connect: %v", err)
		}
		defer conn.Close()
		conns[i] = conn
	}

	deadline := time.Now().Add(5 * time.Second)
	for transport.ConnectionCount() != len(conns) {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d connections, got %d", len(conns), transport.ConnectionCount())
		}
		time.Sleep(10 * time.Millisecond)
	}

	transport.Broadcast(context.Background(), "maintenance in 5 minutes")

	want := `{"jsonrpc":"2.0","method":"server_notification","params":{"message":"maintenance in 5 minutes"}}`
	for i, conn := range conns {
		for {
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			_, data, err := conn.ReadMessage()
			if err != nil {
				t.Fatalf("client %d: Failed to read: %v", i, err)
			}
			if string(data) == want {
				break
			}
		}
	}
}
