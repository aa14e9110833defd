package protocol

import (
	"encoding/json"
	"testing"

	"github.com/amanasmuei/lunomcp"
)

// TestTransportErrors checks the exact bytes of the pre-encoded transport errors
func TestTransportErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		got  []byte
		want string
	}{
		{
			name: "message too large",
			got:  MessageTooLarge,
			want: `{"jsonrpc":"2.0","error":{"code":-32600,"message":"Message too large"},"id":null}`,
		},
		{
			name: "rate limit exceeded",
			got:  RateLimitExceeded,
			want: `{"jsonrpc":"2.0","error":{"code":-32000,"message":"Rate limit exceeded"},"id":null}`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if string(tt.got) != tt.want {
				t.Errorf("got %s, want %s", tt.got, tt.want)
			}
		})
	}
}

// TestDecode tests the Decode function with various inputs
func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		input            string
		wantErr          bool
		wantMethod       string
		wantNotification bool
	}{
		{
			name:       "numeric id",
			input:      `{"jsonrpc":"2.0","method":"describe_capabilities","params":{},"id":1}`,
			wantMethod: "describe_capabilities",
		},
		{
			name:       "string id",
			input:      `{"jsonrpc":"2.0","method":"tools/list","id":"abc"}`,
			wantMethod: "tools/list",
		},
		{
			name:             "notification",
			input:            `{"jsonrpc":"2.0","method":"notifications/initialized"}`,
			wantMethod:       "notifications/initialized",
			wantNotification: true,
		},
		{
			name:       "surrounding whitespace",
			input:      "  {\"jsonrpc\":\"2.0\",\"method\":\"ping\",\"id\":7}\n",
			wantMethod: "ping",
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "batch",
			input:   `[{"jsonrpc":"2.0","method":"ping","id":1}]`,
			wantErr: true,
		},
		{
			name:    "garbage",
			input:   "1234567890ABC",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req, err := Decode([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if req.Method != tt.wantMethod {
				t.Errorf("Method = %q, want %q", req.Method, tt.wantMethod)
			}
			if req.IsNotification() != tt.wantNotification {
				t.Errorf("IsNotification() = %v, want %v", req.IsNotification(), tt.wantNotification)
			}
		})
	}
}

// TestEncodeResultPreservesID tests that ids are echoed exactly
func TestEncodeResultPreservesID(t *testing.T) {
	t.Parallel()

	ids := []string{`1`, `"req-1"`, `null`}
	for _, id := range ids {
		data, err := EncodeResult(json.RawMessage(id), "ok")
		if err != nil {
			t.Fatalf("EncodeResult(%s) error: %v", id, err)
		}
		want := `{"jsonrpc":"2.0","result":"ok","id":` + id + `}`
		if string(data) != want {
			t.Errorf("EncodeResult(%s) = %s, want %s", id, data, want)
		}
	}
}

// TestEncodeResultNull tests that a nil result still produces a result member
func TestEncodeResultNull(t *testing.T) {
	t.Parallel()

	data, err := EncodeResult(json.RawMessage(`3`), nil)
	if err != nil {
		t.Fatalf("EncodeResult error: %v", err)
	}
	if string(data) != `{"jsonrpc":"2.0","result":null,"id":3}` {
		t.Errorf("got %s", data)
	}
}

// TestEncodeError tests error responses with ids
func TestEncodeError(t *testing.T) {
	t.Parallel()

	data := EncodeError(json.RawMessage(`5`), lunomcp.JSONRPCMethodNotFound, "Method not found: nope")

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != lunomcp.JSONRPCMethodNotFound {
		t.Fatalf("unexpected error member: %+v", resp.Error)
	}
	if string(resp.ID) != "5" {
		t.Errorf("ID = %s, want 5", resp.ID)
	}
	if resp.Result != nil {
		t.Errorf("Result should be absent, got %s", resp.Result)
	}
}

// TestEncodeNotification tests that notifications carry no id
func TestEncodeNotification(t *testing.T) {
	t.Parallel()

	data, err := EncodeNotification(lunomcp.NotificationMethod, map[string]string{"message": "hi"})
	if err != nil {
		t.Fatalf("EncodeNotification error: %v", err)
	}
	want := `{"jsonrpc":"2.0","method":"server_notification","params":{"message":"hi"}}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

// BenchmarkDecode benchmarks request decoding
func BenchmarkDecode(b *testing.B) {
	data := []byte(`{"jsonrpc":"2.0","method":"get_crypto_price","params":{"pair":"XBTZAR"},"id":2}`)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Decode(data)
	}
}
