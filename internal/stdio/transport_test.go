package stdio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amanasmuei/lunomcp"
)

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func upper() lunomcp.Handler {
	return lunomcp.HandlerFunc(func(ctx context.Context, req []byte) ([]byte, error) {
		switch string(req) {
		case "fail":
			return nil, errors.New("no")
		case "panic":
			panic("bug")
		case "quiet":
			return nil, nil
		}
		return bytes.ToUpper(req), nil
	})
}

func TestRun_LineHandling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"single line", "abc\n", "ABC\n"},
		{"no trailing newline", "abc", "ABC\n"},
		{"whitespace trimmed", "  abc \t\r\n", "ABC\n"},
		{"empty lines skipped", "\n\n  \nabc\n\n", "ABC\n"},
		{"several lines in order", "a\nb\nc\n", "A\nB\nC\n"},
		{"notification has no reply", "quiet\nx\n", "X\n"},
		{"handler error continues", "fail\nx\n", "X\n"},
		{"handler panic continues", "panic\nx\n", "X\n"},
		{"empty input", "", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, _ := test.NewNullLogger()
			var out bytes.Buffer
			tr := New(strings.NewReader(tt.input), &out, logger)

			require.NoError(t, tr.Run(context.Background(), upper()))
			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestRun_LogsHandlerErrors(t *testing.T) {
	logger, hook := test.NewNullLogger()
	var out bytes.Buffer

	require.NoError(t, New(strings.NewReader("fail\n"), &out, logger).Run(context.Background(), upper()))

	var found bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			found = true
			assert.Equal(t, "fail", e.Data["message"])
		}
	}
	assert.True(t, found, "handler error was not logged")
}

func TestRun_StopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	logger, _ := test.NewNullLogger()
	out := &syncBuffer{}
	tr := New(pr, out, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx, upper()) }()

	_, err := pw.Write([]byte("hello\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return out.String() == "HELLO\n" }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}

	assert.ErrorIs(t, tr.Run(context.Background(), upper()), lunomcp.ErrServerAlreadyRunning)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestRun_WriteFailureStops(t *testing.T) {
	logger, _ := test.NewNullLogger()
	tr := New(strings.NewReader("a\nb\n"), failingWriter{}, logger)

	err := tr.Run(context.Background(), upper())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("bad fd") }

func TestRun_ReadFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	err := New(failingReader{}, io.Discard, logger).Run(context.Background(), upper())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read standard input")
}

func TestBroadcast(t *testing.T) {
	var out bytes.Buffer
	New(strings.NewReader(""), &out, nil).Broadcast(context.Background(), "hi")
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"server_notification","params":{"message":"hi"}}`, strings.TrimSpace(out.String()))
}
