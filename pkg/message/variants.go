package message

import "encoding/json"

// ContentType distinguishes the kinds of content a UserMessage part may
// carry.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentImageURL ContentType = "image_url"
)

// ContentPart is one element of a UserMessage's content sequence.
type ContentPart struct {
	Type     ContentType `json:"type"`
	Text     string      `json:"text,omitempty"`
	ImageURL string      `json:"image_url,omitempty"`
}

func (p *ContentPart) isPlainText() bool {
	return p.Type == ContentText
}

// SystemMessage carries plain-text system instructions.
type SystemMessage struct {
	base
	Text string
}

func (m *SystemMessage) Role() Role { return RoleSystem }

func (m *SystemMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{
		Role:           RoleSystem,
		Content:        mustMarshal(m.Text),
		MessageUUID:    m.ID,
		MessageCreated: isoTime(m.Created),
		Metadata:       m.Meta,
		Extras:         m.ExtraData,
	})
}

// DeveloperMessage carries plain-text developer instructions; providers
// lacking the distinction fold it into the system channel at format time.
type DeveloperMessage struct {
	base
	Text string
}

func (m *DeveloperMessage) Role() Role { return RoleDeveloper }

func (m *DeveloperMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{
		Role:           RoleDeveloper,
		Content:        mustMarshal(m.Text),
		MessageUUID:    m.ID,
		MessageCreated: isoTime(m.Created),
		Metadata:       m.Meta,
		Extras:         m.ExtraData,
	})
}

// UserMessage carries either plain text or a sequence of content parts
// (text and image references).
type UserMessage struct {
	base
	Parts []ContentPart
}

func (m *UserMessage) Role() Role { return RoleUser }

// Text returns the message as plain text when it is a single text part,
// concatenating multiple text parts with a space otherwise.
func (m *UserMessage) Text() string {
	if len(m.Parts) == 1 && m.Parts[0].isPlainText() {
		return m.Parts[0].Text
	}
	out := ""
	for i, p := range m.Parts {
		if !p.isPlainText() {
			continue
		}
		if i > 0 && out != "" {
			out += " "
		}
		out += p.Text
	}
	return out
}

func (m *UserMessage) MarshalJSON() ([]byte, error) {
	var content json.RawMessage
	if len(m.Parts) == 1 && m.Parts[0].isPlainText() {
		content = mustMarshal(m.Parts[0].Text)
	} else {
		content = mustMarshal(m.Parts)
	}
	return json.Marshal(envelope{
		Role:           RoleUser,
		Content:        content,
		MessageUUID:    m.ID,
		MessageCreated: isoTime(m.Created),
		Metadata:       m.Meta,
		Extras:         m.ExtraData,
	})
}

// AssistantMessage carries the model's final text reply for a turn, plus
// the token usage the provider reported for the call that produced it.
type AssistantMessage struct {
	base
	Text       string
	TokenUsage *Usage
}

func (m *AssistantMessage) Role() Role { return RoleAssistant }

func (m *AssistantMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{
		Role:           RoleAssistant,
		Content:        mustMarshal(m.Text),
		MessageUUID:    m.ID,
		MessageCreated: isoTime(m.Created),
		Metadata:       m.Meta,
		Extras:         m.ExtraData,
		Usage:          m.TokenUsage,
	})
}

// StreamedAssistantMessage accumulates incremental text as a provider
// streams a reply. Done becomes true on the final chunk.
type StreamedAssistantMessage struct {
	base
	Buffer string
	Done   bool
}

func (m *StreamedAssistantMessage) Role() Role { return RoleAssistant }

// Append adds the next chunk of provider-streamed text to the buffer.
func (m *StreamedAssistantMessage) Append(chunk string) {
	m.Buffer += chunk
}

func (m *StreamedAssistantMessage) MarshalJSON() ([]byte, error) {
	done := m.Done
	return json.Marshal(envelope{
		Role:           RoleAssistant,
		Content:        mustMarshal(m.Buffer),
		MessageUUID:    m.ID,
		MessageCreated: isoTime(m.Created),
		Metadata:       m.Meta,
		Extras:         m.ExtraData,
		Complete:       &done,
	})
}

// ToolCallMessage carries the ordered list of tool invocations the model
// requested in a single turn.
type ToolCallMessage struct {
	base
	Calls []ToolCall
}

func (m *ToolCallMessage) Role() Role { return RoleAssistant }

func (m *ToolCallMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{
		Role:           RoleAssistant,
		Content:        mustMarshal(""),
		MessageUUID:    m.ID,
		MessageCreated: isoTime(m.Created),
		Metadata:       m.Meta,
		Extras:         m.ExtraData,
		ToolCalls:      m.Calls,
	})
}

// ToolResultMessage carries the outcome of executing one tool call.
//
// tool_name is always emitted at the top level of the wire envelope, never
// nested inside content — this is the fix for the historical
// serialisation defect: a reader that only looks at the top level can
// never observe an empty tool_name for a message that was written with one.
type ToolResultMessage struct {
	base
	ToolCallID string
	ToolName   string
	Result     string
	IsError    bool
}

func (m *ToolResultMessage) Role() Role { return RoleTool }

func (m *ToolResultMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{
		Role:           RoleTool,
		Content:        mustMarshal(m.Result),
		MessageUUID:    m.ID,
		MessageCreated: isoTime(m.Created),
		Metadata:       m.Meta,
		Extras:         m.ExtraData,
		ToolCallID:     m.ToolCallID,
		ToolName:       m.ToolName,
	})
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		// Only called with strings/slices of ContentPart/ToolCall, never
		// with a value that can fail to marshal.
		panic(err)
	}
	return b
}

// Constructors. Each stamps a fresh ID and timestamp; callers never set
// either directly, satisfying "id is immutable" and "once appended a
// message is immutable".

func NewSystem(text string) *SystemMessage {
	return &SystemMessage{base: newBase(), Text: text}
}

func NewDeveloper(text string) *DeveloperMessage {
	return &DeveloperMessage{base: newBase(), Text: text}
}

func NewUserText(text string) *UserMessage {
	return &UserMessage{base: newBase(), Parts: []ContentPart{{Type: ContentText, Text: text}}}
}

func NewUserParts(parts ...ContentPart) *UserMessage {
	return &UserMessage{base: newBase(), Parts: parts}
}

func NewAssistant(text string, usage *Usage) *AssistantMessage {
	return &AssistantMessage{base: newBase(), Text: text, TokenUsage: usage}
}

func NewStreamedAssistant() *StreamedAssistantMessage {
	return &StreamedAssistantMessage{base: newBase()}
}

func NewToolCall(calls ...ToolCall) *ToolCallMessage {
	return &ToolCallMessage{base: newBase(), Calls: calls}
}

func NewToolResult(toolCallID, toolName, result string, isError bool) *ToolResultMessage {
	return &ToolResultMessage{
		base:       newBase(),
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Result:     result,
		IsError:    isError,
	}
}
