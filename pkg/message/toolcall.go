package message

import "encoding/json"

// ToolCall is one model-requested tool invocation. ArgumentsJSON is kept as
// the raw JSON the provider emitted rather than eagerly decoded, so that a
// tool call that cannot yet be matched against a registered tool's schema
// still round-trips losslessly.
type ToolCall struct {
	ID               string          `json:"id"`
	ToolName         string          `json:"tool_name"`
	ArgumentsJSON    json.RawMessage `json:"arguments_json"`
	ThoughtSignature string          `json:"thought_signature,omitempty"`
}
