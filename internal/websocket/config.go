package websocket

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/amanasmuei/lunomcp"
	"github.com/amanasmuei/lunomcp/internal/metrics"
)

// CheckOriginFn is a function that validates the origin of a WebSocket connection request.
// It receives the HTTP request and returns true if the origin is allowed, false otherwise.
type CheckOriginFn = func(r *http.Request) bool

// OnConnectFn is called after a client has been admitted and before its
// receive loop starts. It runs on the connection's goroutine, so long work
// delays that client's first message.
type OnConnectFn = func(client lunomcp.Client)

// OnClientDisconnectFn is invoked when an admitted client leaves. voluntary is
// true when the client closed the connection itself.
type OnClientDisconnectFn = func(client lunomcp.Client, voluntary bool)

// Defaults used by DefaultConfig.
const (
	DefaultHost            = "localhost"
	DefaultPort            = 8765
	DefaultPath            = "/ws"
	DefaultMaxConnections  = 50
	DefaultMaxMessageSize  = 1024 * 1024
	DefaultRateLimit       = 100
	DefaultCertFile        = "./certs/server.crt"
	DefaultKeyFile         = "./certs/server.key"
	DefaultMonitorInterval = time.Minute

	// unlimitedFrameLimit caps frames when MaxMessageSize is disabled.
	unlimitedFrameLimit = 16 * 1024 * 1024
)

// ServerConfig configures one WebSocket transport run.
type ServerConfig struct {
	Host string
	Port int
	// Path is the upgrade endpoint. "/" is always accepted as well.
	Path string

	// MaxConnections caps concurrently admitted clients; <= 0 is unlimited.
	MaxConnections int
	// MaxMessageSize is the largest message, in bytes, forwarded to the
	// handler; <= 0 is unlimited.
	MaxMessageSize int
	// RateLimit is the number of messages per client per minute; <= 0 disables it.
	RateLimit int

	CertFile string
	KeyFile  string

	MonitorInterval time.Duration

	CheckOrigin        CheckOriginFn
	OnConnect          OnConnectFn
	OnClientDisconnect OnClientDisconnectFn

	Clock   clock.WithTicker
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

// DefaultConfig returns the configuration the server ships with.
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Host:            DefaultHost,
		Port:            DefaultPort,
		Path:            DefaultPath,
		MaxConnections:  DefaultMaxConnections,
		MaxMessageSize:  DefaultMaxMessageSize,
		RateLimit:       DefaultRateLimit,
		CertFile:        DefaultCertFile,
		KeyFile:         DefaultKeyFile,
		MonitorInterval: DefaultMonitorInterval,
	}
}

// Addr returns host:port.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// frameLimit is the read limit handed to the websocket connection; 0 means
// none. With MaxMessageSize set, frames are read through a bounded reader
// and any size gets a JSON-RPC error. Without it, frames over
// unlimitedFrameLimit close the connection with 1009.
func (c *ServerConfig) frameLimit() int64 {
	if c.MaxMessageSize <= 0 {
		return unlimitedFrameLimit
	}
	return 0
}

func (c *ServerConfig) withDefaults() *ServerConfig {
	out := *c
	if out.Path == "" {
		out.Path = DefaultPath
	}
	if !strings.HasPrefix(out.Path, "/") {
		out.Path = "/" + out.Path
	}
	if out.MonitorInterval <= 0 {
		out.MonitorInterval = DefaultMonitorInterval
	}
	if out.Clock == nil {
		out.Clock = clock.RealClock{}
	}
	if out.Logger == nil {
		out.Logger = logrus.StandardLogger()
	}
	if out.Metrics == nil {
		out.Metrics = metrics.New()
	}
	return &out
}

// AllowOrigins returns a CheckOriginFn accepting requests whose Origin host
// is one of origins or a subdomain of one. "*" accepts everything. Requests
// without an Origin header (non-browser clients) are always accepted.
func AllowOrigins(origins ...string) CheckOriginFn {
	return func(r *http.Request) bool {
		org := r.Header.Get("Origin")
		if org == "" {
			return true
		}
		u, err := url.Parse(org)
		if err != nil {
			return false
		}
		host := strings.ToLower(u.Hostname())
		for _, o := range origins {
			if _, rest, ok := strings.Cut(o, "://"); ok {
				o = rest
			}
			o = strings.ToLower(strings.TrimSuffix(o, "/"))
			if o == "*" || strings.EqualFold(u.Host, o) || host == o || strings.HasSuffix(host, "."+o) {
				return true
			}
		}
		return false
	}
}
