// Package providers implements the ProviderDriver contract: formatting
// messages/tools for one provider family, sending the request, and parsing
// the response back into the internal message model, including streaming.
package providers

import (
	"context"

	"github.com/MaestroError/laragent/pkg/message"
)

// FinishReason is the normalised completion reason, the same four-plus-one
// values regardless of which provider family produced the raw response.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishOther         FinishReason = "other"
)

// Request is the provider-agnostic shape the orchestrator hands to Format.
type Request struct {
	Messages []message.Message
	Tools    []ToolSpec
	Schema   map[string]any // structured-output schema, nil if not requested
	Options  Options
}

// ToolSpec is the subset of a registered tool a driver needs to format a
// tool declaration: it deliberately excludes the callback.
type ToolSpec struct {
	Name             string
	Description      string
	ParametersSchema map[string]any
}

// Options carries the per-call ProviderConfig fields a driver may consult.
type Options struct {
	Model               string
	APIKey              string
	APIURL              string
	MaxCompletionTokens int
	Temperature         *float64
	TopP                *float64
	N                   int
	FrequencyPenalty    *float64
	PresencePenalty     *float64
	ParallelToolCalls   *bool
	ToolChoice          any // "auto" | "none" | "required" | {type,function:{name}}
	Modalities          []string
	Extras              map[string]any
}

// Merge returns a copy of o with override's non-nil/non-zero fields
// applied, and the union of Extras — the same "override wins, extras
// union" rule ProviderConfig merging uses everywhere else in this module.
func (o Options) Merge(override Options) Options {
	merged := o
	if override.Model != "" {
		merged.Model = override.Model
	}
	if override.APIKey != "" {
		merged.APIKey = override.APIKey
	}
	if override.APIURL != "" {
		merged.APIURL = override.APIURL
	}
	if override.MaxCompletionTokens > 0 {
		merged.MaxCompletionTokens = override.MaxCompletionTokens
	}
	if override.Temperature != nil {
		merged.Temperature = override.Temperature
	}
	if override.TopP != nil {
		merged.TopP = override.TopP
	}
	if override.N > 0 {
		merged.N = override.N
	}
	if override.FrequencyPenalty != nil {
		merged.FrequencyPenalty = override.FrequencyPenalty
	}
	if override.PresencePenalty != nil {
		merged.PresencePenalty = override.PresencePenalty
	}
	if override.ParallelToolCalls != nil {
		merged.ParallelToolCalls = override.ParallelToolCalls
	}
	if override.ToolChoice != nil {
		merged.ToolChoice = override.ToolChoice
	}
	if len(override.Modalities) > 0 {
		merged.Modalities = override.Modalities
	}
	if len(override.Extras) > 0 {
		union := map[string]any{}
		for k, v := range merged.Extras {
			union[k] = v
		}
		for k, v := range override.Extras {
			union[k] = v
		}
		merged.Extras = union
	}
	return merged
}

// Response is the normalised shape every driver's Send returns: either
// content text or a set of tool calls, never both.
type Response struct {
	ContentText string
	ToolCalls   []message.ToolCall
	Finish      FinishReason
	Usage       message.Usage
	Raw         any // the provider's raw payload, for error diagnostics
}

// Chunk is one unit of a streamed response.
type Chunk struct {
	TextDelta string
	ToolCall  *message.ToolCall
	Finish    FinishReason
	Usage     *message.Usage
	Done      bool
	Err       error
}

// Payload is the provider-family-specific wire request a driver's Format
// produces and Send consumes. Opaque to the orchestrator.
type Payload any

// Driver is the contract every provider family implements.
type Driver interface {
	// Family identifies the wire-format family, e.g. "openai", "anthropic",
	// "google", "bedrock".
	Family() string

	Format(req Request) (Payload, error)
	Send(ctx context.Context, payload Payload) (Response, error)
	SendStreamed(ctx context.Context, payload Payload) (<-chan Chunk, error)

	// ExtractUsage reads {prompt, completion, total} from a raw response
	// regardless of the provider's native field names.
	ExtractUsage(raw any) message.Usage
}
