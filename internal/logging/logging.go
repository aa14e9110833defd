package logging

import (
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// New returns a logger writing to out (stderr when nil) at level, formatted
// as "text" or "json".
func New(level, format string, out io.Writer) (*log.Logger, error) {
	logger := log.New()
	if err := Configure(logger, level, format, out); err != nil {
		return nil, err
	}
	return logger, nil
}

// Configure applies level, format and output to logger. Standard output is
// left alone so the stdio transport owns it.
func Configure(logger *log.Logger, level, format string, out io.Writer) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return errors.Wrap(err, "log level")
	}

	switch format {
	case "", "text":
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	default:
		return errors.Errorf("unknown log format %q", format)
	}

	if out == nil {
		out = os.Stderr
	}
	logger.SetOutput(out)
	logger.SetLevel(lvl)
	return nil
}
