// Package message implements the polymorphic chat message hierarchy as a
// tagged union: one concrete Go type per wire variant, joined by the Message
// interface. Unlike a single flat struct carrying every variant's fields at
// once, a tool-result message has nowhere to keep its tool_name except at
// the top level of its own type, which is what makes the historical
// top-level-vs-nested tool_name round-trip bug unrepresentable here.
package message

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies which side of the conversation produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleDeveloper Role = "developer"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is implemented by every message variant. Variants never share a
// struct; each owns exactly the fields its wire contract names.
type Message interface {
	Role() Role
	MessageID() string
	CreatedAt() time.Time
	Metadata() map[string]any
	Extras() map[string]any
	json.Marshaler
}

// base holds the fields every variant carries: identity, timestamp, and the
// free-form metadata/extras bags. Embedded, never exported standalone.
type base struct {
	ID        string         `json:"message_uuid"`
	Created   time.Time      `json:"-"`
	Meta      map[string]any `json:"metadata,omitempty"`
	ExtraData map[string]any `json:"extras,omitempty"`
}

func newBase() base {
	return base{ID: "msg_" + uuid.NewString()}
}

func (b base) MessageID() string        { return b.ID }
func (b base) CreatedAt() time.Time     { return b.Created }
func (b base) Metadata() map[string]any { return b.Meta }
func (b base) Extras() map[string]any   { return b.ExtraData }

func isoTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseISOTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// envelope is the shape every variant serialises through: common fields
// plus whatever the variant contributes to "content" and any top-level
// extensions (tool_call_id, tool_name, tool_calls, usage, complete).
type envelope struct {
	Role           Role            `json:"role"`
	Content        json.RawMessage `json:"content"`
	MessageUUID    string          `json:"message_uuid"`
	MessageCreated string          `json:"message_created"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	Extras         map[string]any  `json:"extras,omitempty"`

	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	Usage      *Usage     `json:"usage,omitempty"`
	Complete   *bool      `json:"complete,omitempty"`
}

// Usage carries token accounting attached to an assistant message.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Unmarshal decodes a wire-form message into the correct concrete variant
// based on its role and shape. This is the single point where the
// discriminator is read; every variant's UnmarshalJSON-equivalent logic
// lives in this file, not scattered across the variant types.
func Unmarshal(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("message: decode envelope: %w", err)
	}

	b := base{
		ID:        env.MessageUUID,
		Created:   parseISOTime(env.MessageCreated),
		Meta:      env.Metadata,
		ExtraData: env.Extras,
	}

	switch env.Role {
	case RoleSystem:
		var text string
		_ = json.Unmarshal(env.Content, &text)
		return &SystemMessage{base: b, Text: text}, nil

	case RoleDeveloper:
		var text string
		_ = json.Unmarshal(env.Content, &text)
		return &DeveloperMessage{base: b, Text: text}, nil

	case RoleUser:
		parts, err := decodeUserContent(env.Content)
		if err != nil {
			return nil, err
		}
		return &UserMessage{base: b, Parts: parts}, nil

	case RoleTool:
		var content string
		_ = json.Unmarshal(env.Content, &content)
		toolName := env.ToolName
		if toolName == "" {
			// Backward-compatible fallback for records written before the
			// tool_name fix: it may be nested under content as an object
			// {"result":..., "tool_name":...} instead of a plain string.
			var nested struct {
				Result   string `json:"result"`
				ToolName string `json:"tool_name"`
			}
			if err := json.Unmarshal(env.Content, &nested); err == nil && nested.ToolName != "" {
				toolName = nested.ToolName
				content = nested.Result
			}
		}
		return &ToolResultMessage{
			base:       b,
			ToolCallID: env.ToolCallID,
			ToolName:   toolName,
			Result:     content,
		}, nil

	case RoleAssistant:
		if len(env.ToolCalls) > 0 {
			return &ToolCallMessage{base: b, Calls: env.ToolCalls}, nil
		}
		if env.Complete != nil {
			var text string
			_ = json.Unmarshal(env.Content, &text)
			return &StreamedAssistantMessage{base: b, Buffer: text, Done: *env.Complete}, nil
		}
		var text string
		_ = json.Unmarshal(env.Content, &text)
		return &AssistantMessage{base: b, Text: text, TokenUsage: env.Usage}, nil
	}

	return nil, fmt.Errorf("message: unknown role %q", env.Role)
}

func decodeUserContent(raw json.RawMessage) ([]ContentPart, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return []ContentPart{{Type: ContentText, Text: text}}, nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, fmt.Errorf("message: decode user content: %w", err)
	}
	return parts, nil
}
