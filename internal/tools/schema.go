package tools

import (
	"encoding/json"

	"github.com/amanasmuei/lunomcp/internal/mcp"
)

type property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
	Minimum     *int     `json:"minimum,omitempty"`
	Maximum     *int     `json:"maximum,omitempty"`
}

type props map[string]property

type objectSchema struct {
	Type       string   `json:"type"`
	Properties props    `json:"properties"`
	Required   []string `json:"required,omitempty"`
}

var (
	pairProp    = property{Type: "string", Description: "Trading pair, e.g. XBTZAR or ETHZAR"}
	orderIDProp = property{Type: "string", Description: "Order ID"}
)

func object(required []string, properties props) json.RawMessage {
	if properties == nil {
		properties = props{}
	}
	data, err := json.Marshal(objectSchema{Type: "object", Properties: properties, Required: required})
	if err != nil {
		panic(err)
	}
	return data
}

func tool(name, description string, schema json.RawMessage) mcp.Tool {
	return mcp.Tool{Name: name, Description: description, InputSchema: schema}
}

func intPtr(v int) *int {
	return &v
}
