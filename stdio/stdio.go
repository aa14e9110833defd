// Package stdio exposes the standard-stream transport.
package stdio

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/amanasmuei/lunomcp"
	"github.com/amanasmuei/lunomcp/internal/stdio"
)

// Transport reads one JSON-RPC request per line and writes one reply per line.
type Transport interface {
	lunomcp.Transport
	lunomcp.Broadcaster
}

// New returns a transport over in and out. log may be nil.
func New(in io.Reader, out io.Writer, log logrus.FieldLogger) Transport {
	return stdio.New(in, out, log)
}

// NewStd returns a transport over the process's standard input and output.
// Logs must not go to standard output while it runs.
func NewStd(log logrus.FieldLogger) Transport {
	return stdio.New(os.Stdin, os.Stdout, log)
}
