// Package config loads the server configuration from defaults, an optional
// yaml file, environment variables and command line flags, in increasing
// order of precedence.
package config

import (
	stderrors "errors"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	TransportStdio     = "stdio"
	TransportWebSocket = "websocket"

	// EnvPrefix prefixes every setting's environment variable, with dots
	// replaced by underscores: LUNO_MCP_WEBSOCKET_PORT.
	EnvPrefix = "LUNO_MCP"

	// ConfigFlag names the flag and key holding the config file path.
	ConfigFlag = "config"

	redacted = "********"
)

// Config is the full server configuration.
type Config struct {
	Transport string          `mapstructure:"transport" yaml:"transport"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	WebSocket WebSocketConfig `mapstructure:"websocket" yaml:"websocket"`
	Luno      LunoConfig      `mapstructure:"luno" yaml:"luno"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type WebSocketConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	Path            string        `mapstructure:"path" yaml:"path"`
	MaxConnections  int           `mapstructure:"max_connections" yaml:"max_connections"`
	MaxMessageSize  int           `mapstructure:"max_message_size" yaml:"max_message_size"`
	RateLimit       int           `mapstructure:"rate_limit" yaml:"rate_limit"`
	CertFile        string        `mapstructure:"cert_file" yaml:"cert_file"`
	KeyFile         string        `mapstructure:"key_file" yaml:"key_file"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	MonitorInterval time.Duration `mapstructure:"monitor_interval" yaml:"monitor_interval"`
}

type LunoConfig struct {
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`
	APISecret         string        `mapstructure:"api_secret" yaml:"api_secret"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries"`
}

var defaults = map[string]any{
	"transport":                  TransportStdio,
	"log.level":                  "info",
	"log.format":                 "text",
	"websocket.host":             "localhost",
	"websocket.port":             8765,
	"websocket.path":             "/ws",
	"websocket.max_connections":  50,
	"websocket.max_message_size": 1024 * 1024,
	"websocket.rate_limit":       100,
	"websocket.cert_file":        "./certs/server.crt",
	"websocket.key_file":         "./certs/server.key",
	"websocket.allowed_origins":  []string{"*"},
	"websocket.monitor_interval": time.Minute,
	"luno.base_url":              "https://api.luno.com",
	"luno.api_key":               "",
	"luno.api_secret":            "",
	"luno.timeout":               30 * time.Second,
	"luno.requests_per_minute":   60,
	"luno.max_retries":           3,
}

// Plain environment variables kept for compatibility with existing
// deployments. They rank below the prefixed names.
var envAliases = map[string]string{
	"luno.api_key":        "LUNO_API_KEY",
	"luno.api_secret":     "LUNO_API_SECRET",
	"websocket.cert_file": "SSL_CERT_PATH",
	"websocket.key_file":  "SSL_KEY_PATH",
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"transport":        "transport",
	"log-level":        "log.level",
	"log-format":       "log.format",
	"host":             "websocket.host",
	"port":             "websocket.port",
	"max-connections":  "websocket.max_connections",
	"max-message-size": "websocket.max_message_size",
	"rate-limit":       "websocket.rate_limit",
	"cert-file":        "websocket.cert_file",
	"key-file":         "websocket.key_file",
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(ConfigFlag, "", "path to a yaml configuration file")
	fs.String("transport", TransportStdio, "transport to serve: stdio or websocket")
	fs.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	fs.String("log-format", "text", "log format: text or json")
	fs.String("host", "localhost", "websocket listen host")
	fs.Int("port", 8765, "websocket listen port")
	fs.Int("max-connections", 50, "maximum concurrent websocket connections, 0 for unlimited")
	fs.Int("max-message-size", 1024*1024, "maximum message size in bytes, 0 for unlimited")
	fs.Int("rate-limit", 100, "requests per client per minute, 0 to disable")
	fs.String("cert-file", "./certs/server.crt", "TLS certificate file")
	fs.String("key-file", "./certs/server.key", "TLS private key file")
}

// Load builds the configuration. fs may be nil; flags it carries are bound
// when they were registered with RegisterFlags.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		if err := v.BindEnv(key, envName(key), alias); err != nil {
			return nil, errors.Wrapf(err, "bind env %s", alias)
		}
	}

	if fs != nil {
		for flag, key := range flagKeys {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Wrapf(err, "bind flag %s", flag)
				}
			}
		}
		if f := fs.Lookup(ConfigFlag); f != nil {
			if err := v.BindPFlag(ConfigFlag, f); err != nil {
				return nil, errors.Wrap(err, "bind config flag")
			}
		}
	}

	if path := v.GetString(ConfigFlag); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
	} else {
		v.SetConfigName("lunomcp")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !stderrors.As(err, &notFound) {
				return nil, errors.Wrap(err, "read config file")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode configuration")
	}
	cfg.Transport = strings.ToLower(strings.TrimSpace(cfg.Transport))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportStdio, TransportWebSocket:
	default:
		return errors.Errorf("transport must be %q or %q, got %q", TransportStdio, TransportWebSocket, c.Transport)
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	ws := c.WebSocket
	if ws.Port < 0 || ws.Port > 65535 {
		return errors.Errorf("websocket.port %d is out of range", ws.Port)
	}
	for name, v := range map[string]int{
		"websocket.max_connections":  ws.MaxConnections,
		"websocket.max_message_size": ws.MaxMessageSize,
		"websocket.rate_limit":       ws.RateLimit,
	} {
		if v < 0 {
			return errors.Errorf("%s must not be negative, got %d", name, v)
		}
	}

	u, err := url.Parse(c.Luno.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Errorf("luno.base_url %q is not an http(s) URL", c.Luno.BaseURL)
	}
	if c.Luno.Timeout <= 0 {
		return errors.Errorf("luno.timeout must be positive, got %s", c.Luno.Timeout)
	}
	if (c.Luno.APIKey == "") != (c.Luno.APISecret == "") {
		return errors.New("luno.api_key and luno.api_secret must be set together")
	}
	return nil
}

// HasCredentials reports whether exchange credentials are configured.
func (c *Config) HasCredentials() bool {
	return c.Luno.APIKey != "" && c.Luno.APISecret != ""
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	out.WebSocket.AllowedOrigins = append([]string(nil), c.WebSocket.AllowedOrigins...)
	if out.Luno.APIKey != "" {
		out.Luno.APIKey = redacted
	}
	if out.Luno.APISecret != "" {
		out.Luno.APISecret = redacted
	}
	return &out
}

// YAML renders the redacted configuration.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, errors.Wrap(err, "encode configuration")
	}
	return data, nil
}
