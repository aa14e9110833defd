package tools

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/amanasmuei/lunomcp/internal/mcp"
)

// Settings is the configuration published as luno://config. It has no
// credential fields; only whether credentials are present is reported.
type Settings struct {
	Name              string `json:"server_name"`
	Version           string `json:"version"`
	Transport         string `json:"transport"`
	Host              string `json:"host"`
	Port              int    `json:"port"`
	LogLevel          string `json:"log_level"`
	BaseURL           string `json:"api_base_url"`
	Timeout           string `json:"request_timeout"`
	RequestsPerMinute int    `json:"max_requests_per_minute"`
	HasCredentials    bool   `json:"has_credentials"`
}

// RegisterResources adds the luno://config, luno://status and
// luno://endpoints resources to d. Call it after Register so the endpoint
// listing sees every tool.
func RegisterResources(d *mcp.Dispatcher, ex Exchange, clk clock.PassiveClock, settings Settings) error {
	if clk == nil {
		clk = clock.RealClock{}
	}
	ts := &toolset{ex: ex, clock: clk}
	settings.HasCredentials = ex.HasCredentials()

	defs := []mcp.ResourceDefinition{
		{
			Resource: mcp.Resource{
				URI:         "luno://config",
				Name:        "Server configuration",
				Description: "Current server configuration, without credentials.",
			},
			Read: func(ctx context.Context) (any, error) {
				return settings, nil
			},
		},
		{
			Resource: mcp.Resource{
				URI:         "luno://status",
				Name:        "Server status",
				Description: "Server health and connectivity to the exchange API.",
			},
			Read: ts.status,
		},
		{
			Resource: mcp.Resource{
				URI:         "luno://endpoints",
				Name:        "Available endpoints",
				Description: "Tools grouped by whether they need API credentials.",
			},
			Read: func(ctx context.Context) (any, error) {
				public, private := d.ToolNames()
				return map[string]any{
					"public_endpoints": map[string]any{
						"description": "These endpoints do not require authentication",
						"tools":       public,
					},
					"private_endpoints": map[string]any{
						"description":              "These endpoints require API credentials",
						"tools":                    private,
						"authentication_available": ex.HasCredentials(),
					},
				}, nil
			},
		},
	}

	for _, def := range defs {
		if err := d.RegisterResource(def); err != nil {
			return errors.Wrapf(err, "register %s", def.URI)
		}
	}
	return nil
}

func (ts *toolset) status(ctx context.Context) (any, error) {
	out := map[string]any{
		"server_healthy":  true,
		"api_healthy":     true,
		"has_credentials": ts.ex.HasCredentials(),
		"timestamp":       ts.clock.Now().UTC().Format(time.RFC3339),
	}
	if err := ts.checkAPI(ctx); err != nil {
		out["api_healthy"] = false
		out["error"] = err.Error()
	}
	return out, nil
}
