// Package stdio serves a lunomcp.Handler over newline-delimited JSON-RPC on a
// pair of byte streams, normally the process's standard input and output.
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/amanasmuei/lunomcp"
	"github.com/amanasmuei/lunomcp/internal/protocol"
)

const logExcerpt = 256

// Transport is the single-client transport. It applies no rate or size
// policy: the peer is the process that launched us.
type Transport struct {
	in  io.Reader
	out io.Writer
	log logrus.FieldLogger

	mu      sync.Mutex
	running bool
	writeMu sync.Mutex
}

// New returns a transport reading requests from in and writing replies to out.
func New(in io.Reader, out io.Writer, log logrus.FieldLogger) *Transport {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Transport{
		in:  in,
		out: out,
		log: log.WithField("component", "stdio"),
	}
}

// Run handles one request per line until the input ends or ctx is cancelled.
// EOF is a clean stop. Handler errors are logged and the next line is read.
func (t *Transport) Run(ctx context.Context, handler lunomcp.Handler) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return lunomcp.ErrServerAlreadyRunning
	}
	t.running = true
	t.mu.Unlock()

	t.log.Info("Serving MCP over standard input/output")

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go t.readLines(ctx, lines, readErr)

	for {
		select {
		case <-ctx.Done():
			t.log.Info("Standard input transport stopped")
			return nil
		case line, ok := <-lines:
			if !ok {
				err := <-readErr
				if err == nil {
					t.log.Info("Standard input closed")
				}
				return err
			}
			if err := t.process(ctx, handler, line); err != nil {
				return err
			}
		}
	}
}

// Broadcast writes a server notification line to the single peer.
func (t *Transport) Broadcast(ctx context.Context, message string) {
	payload, err := protocol.EncodeNotification(lunomcp.NotificationMethod, map[string]string{"message": message})
	if err != nil {
		t.log.WithError(err).Error("Failed to encode notification")
		return
	}
	if err := t.write(payload); err != nil {
		t.log.WithError(err).Debug("Failed to send notification")
	}
}

// readLines feeds non-empty, trimmed lines into out. It closes out after
// storing the terminal read error (nil on EOF) in errc.
func (t *Transport) readLines(ctx context.Context, out chan<- []byte, errc chan<- error) {
	r := bufio.NewReader(t.in)
	for {
		line, err := r.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			select {
			case out <- trimmed:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				err = nil
			} else {
				err = errors.Wrap(err, "read standard input")
			}
			errc <- err
			close(out)
			return
		}
	}
}

func (t *Transport) process(ctx context.Context, handler lunomcp.Handler, line []byte) error {
	response, err := invoke(ctx, handler, line)
	if err != nil {
		t.log.WithError(err).WithField("message", excerpt(line)).Error("Error handling message")
		return nil
	}
	if len(response) == 0 {
		return nil
	}
	return errors.Wrap(t.write(response), "write response")
}

func (t *Transport) write(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, data...)
	buf = append(buf, '\n')
	_, err := t.out.Write(buf)
	return err
}

func invoke(ctx context.Context, handler lunomcp.Handler, data []byte) (response []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler.HandleMessage(ctx, data)
}

func excerpt(data []byte) string {
	if len(data) <= logExcerpt {
		return string(data)
	}
	return string(data[:logExcerpt]) + "..."
}
