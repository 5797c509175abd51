package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Reserved field names with protocol significance.
const (
	FieldAction   = "action"
	FieldStatus   = "status"
	FieldComplete = "complete"
	FieldProgress = "progress"
	FieldResults  = "results"
	FieldMessage  = "message"
)

// Protocol-significant status tokens.
const (
	StatusReady    = "ready"
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusComplete = "complete"
)

// ActionShutdown is the best-effort final command sent before closing a
// worker's input stream.
const ActionShutdown = "shutdown"

// ActionPing is the heartbeat probe used by the health monitor.
const ActionPing = "ping"

// Command is an outbound request: a named action plus opaque parameters.
// Parameters must not use the reserved "action" key.
type Command struct {
	Action string
	Params map[string]any
}

// NewCommand builds a command for the given action.
func NewCommand(action string, params map[string]any) Command {
	return Command{Action: action, Params: params}
}

// MarshalJSON flattens the action and parameters into one object.
func (c Command) MarshalJSON() ([]byte, error) {
	if strings.TrimSpace(c.Action) == "" {
		return nil, errors.New("command requires an action")
	}
	payload := make(map[string]any, len(c.Params)+1)
	for key, value := range c.Params {
		if key == FieldAction {
			continue
		}
		payload[key] = value
	}
	payload[FieldAction] = c.Action
	return json.Marshal(payload)
}

// EncodeLine renders the command as a single newline-terminated line.
func EncodeLine(cmd Command) ([]byte, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return append(data, '\n'), nil
}

// Response is an inbound worker message. Reserved fields are decoded into
// typed members; the full payload stays available through Fields.
type Response struct {
	Status   string
	Complete bool
	Message  string

	hasProgress bool
	hasResults  bool

	// Fields holds every key of the raw payload, reserved ones included.
	Fields map[string]json.RawMessage
}

// DecodeResponse parses one protocol line into a Response.
func DecodeResponse(line []byte) (*Response, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	resp := &Response{Fields: fields}
	if raw, ok := fields[FieldStatus]; ok {
		if err := json.Unmarshal(raw, &resp.Status); err != nil {
			return nil, fmt.Errorf("decode response status: %w", err)
		}
	}
	if raw, ok := fields[FieldComplete]; ok {
		if err := json.Unmarshal(raw, &resp.Complete); err != nil {
			return nil, fmt.Errorf("decode response complete flag: %w", err)
		}
	}
	if raw, ok := fields[FieldMessage]; ok {
		// Non-string message detail is tolerated; it stays in Fields.
		_ = json.Unmarshal(raw, &resp.Message)
	}
	_, resp.hasProgress = fields[FieldProgress]
	_, resp.hasResults = fields[FieldResults]
	return resp, nil
}

// Final reports whether this response terminates an exchange: an explicit
// complete flag, a terminal status, or a results payload that is not marked
// as a progress notification.
func (r *Response) Final() bool {
	if r.Complete {
		return true
	}
	switch r.Status {
	case StatusComplete, StatusError:
		return true
	}
	return r.hasResults && !r.hasProgress
}

// Ready reports whether this response is a valid startup handshake.
func (r *Response) Ready() bool {
	return r.Status == StatusReady
}

// Success reports whether the response carries a non-error outcome.
func (r *Response) Success() bool {
	return r.Status == StatusSuccess || r.Status == StatusComplete || r.Status == StatusReady
}

// Get returns the raw payload value for key.
func (r *Response) Get(key string) (json.RawMessage, bool) {
	raw, ok := r.Fields[key]
	return raw, ok
}

// ErrorResponse builds a synthetic terminal error response, used when a
// streaming caller must be told the exchange is over without a worker ever
// producing output.
func ErrorResponse(message string) *Response {
	fields := map[string]json.RawMessage{
		FieldStatus:   json.RawMessage(`"error"`),
		FieldComplete: json.RawMessage(`true`),
	}
	if message != "" {
		if data, err := json.Marshal(message); err == nil {
			fields[FieldMessage] = data
		}
	}
	return &Response{
		Status:   StatusError,
		Complete: true,
		Message:  message,
		Fields:   fields,
	}
}
