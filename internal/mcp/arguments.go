package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// InvalidParamsError is returned for missing or mistyped arguments. The
// dispatcher maps it to -32602.
type InvalidParamsError struct {
	Message string
}

func (e *InvalidParamsError) Error() string {
	return e.Message
}

// InvalidParams formats an InvalidParamsError.
func InvalidParams(format string, args ...any) error {
	return &InvalidParamsError{Message: fmt.Sprintf(format, args...)}
}

// Arguments are the named arguments of one tool call.
type Arguments map[string]json.RawMessage

// ParseArguments decodes a JSON object of arguments. Absent or null params
// yield empty arguments.
func ParseArguments(raw json.RawMessage) (Arguments, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Arguments{}, nil
	}
	var args Arguments
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, InvalidParams("arguments must be a JSON object")
	}
	if args == nil {
		args = Arguments{}
	}
	return args, nil
}

func (a Arguments) present(key string) (json.RawMessage, bool) {
	raw, ok := a[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

// String returns a required string argument.
func (a Arguments) String(key string) (string, error) {
	s, ok, err := a.OptionalString(key)
	if err != nil {
		return "", err
	}
	if !ok || s == "" {
		return "", InvalidParams("missing required parameter %q", key)
	}
	return s, nil
}

// OptionalString returns a string argument and whether it was given. Numbers
// are accepted and returned in their JSON spelling.
func (a Arguments) OptionalString(key string) (string, bool, error) {
	raw, ok := a.present(key)
	if !ok {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true, nil
	}
	return "", false, InvalidParams("parameter %q must be a string", key)
}

// Int returns a required integer argument.
func (a Arguments) Int(key string) (int64, error) {
	n, ok, err := a.OptionalInt(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, InvalidParams("missing required parameter %q", key)
	}
	return n, nil
}

// OptionalInt returns an integer argument and whether it was given. Numeric
// strings are accepted.
func (a Arguments) OptionalInt(key string) (int64, bool, error) {
	raw, ok := a.present(key)
	if !ok {
		return 0, false, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false, InvalidParams("parameter %q must be an integer", key)
		}
		n = json.Number(s)
	}
	v, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return 0, false, InvalidParams("parameter %q must be an integer", key)
	}
	return v, true, nil
}

// IntOr returns an integer argument or def when it is absent.
func (a Arguments) IntOr(key string, def int64) (int64, error) {
	n, ok, err := a.OptionalInt(key)
	if err != nil || !ok {
		return def, err
	}
	return n, nil
}
