package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/MaestroError/laragent/pkg/message"
)

// GoogleDriver formats and sends requests in the Gemini generateContent
// shape: a dedicated SystemInstruction field instead of a system message in
// the turn, "model" instead of "assistant" as the role name, and
// functionDeclarations instead of a JSON-schema-shaped tool list. Gemini
// never echoes a tool-call ID, so one is synthesised deterministically from
// the call's position in the turn.
type GoogleDriver struct {
	BaseDriver
	client *genai.Client
}

type googlePayload struct {
	model   string
	content []*genai.Content
	config  *genai.GenerateContentConfig
}

// NewGoogleDriver builds a driver against the given API key.
func NewGoogleDriver(ctx context.Context, apiKey string) (*GoogleDriver, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("google: new client: %w", err)
	}
	return &GoogleDriver{BaseDriver: NewBaseDriver(DefaultRetryConfig()), client: client}, nil
}

func (d *GoogleDriver) Family() string { return "google" }

func (d *GoogleDriver) Format(req Request) (Payload, error) {
	content, systemParts, err := convertMessagesGoogle(req.Messages)
	if err != nil {
		return nil, err
	}

	cfg := &genai.GenerateContentConfig{}
	if len(systemParts) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: systemParts}
	}
	if req.Options.Temperature != nil {
		t := float32(*req.Options.Temperature)
		cfg.Temperature = &t
	}
	if req.Options.TopP != nil {
		p := float32(*req.Options.TopP)
		cfg.TopP = &p
	}
	if req.Options.MaxCompletionTokens > 0 {
		cfg.MaxOutputTokens = int32(req.Options.MaxCompletionTokens)
	}
	if len(req.Tools) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: convertToolsGoogle(req.Tools)}}
	}

	return googlePayload{model: req.Options.Model, content: content, config: cfg}, nil
}

func (d *GoogleDriver) Send(ctx context.Context, payload Payload) (Response, error) {
	p, ok := payload.(googlePayload)
	if !ok {
		return Response{}, fmt.Errorf("google: unexpected payload type %T", payload)
	}

	var resp *genai.GenerateContentResponse
	err := d.WithRetry(ctx, func() error {
		r, err := d.client.Models.GenerateContent(ctx, p.model, p.content, p.config)
		if err != nil {
			return WrapError("google", 0, err)
		}
		resp = r
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	return googleToResponse(resp), nil
}

func (d *GoogleDriver) SendStreamed(ctx context.Context, payload Payload) (<-chan Chunk, error) {
	p, ok := payload.(googlePayload)
	if !ok {
		return nil, fmt.Errorf("google: unexpected payload type %T", payload)
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		callIndex := 0
		for resp, err := range d.client.Models.GenerateContentStream(ctx, p.model, p.content, p.config) {
			if err != nil {
				out <- Chunk{Err: WrapError("google", 0, err), Done: true}
				return
			}
			if len(resp.Candidates) == 0 {
				continue
			}
			cand := resp.Candidates[0]
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part.Text != "" {
					out <- Chunk{TextDelta: part.Text}
				}
				if part.FunctionCall != nil {
					args, _ := json.Marshal(part.FunctionCall.Args)
					out <- Chunk{ToolCall: &message.ToolCall{
						ID:            googleToolCallID(callIndex),
						ToolName:      part.FunctionCall.Name,
						ArgumentsJSON: args,
					}}
					callIndex++
				}
			}
			if cand.FinishReason != "" {
				usage := message.Usage{}
				if resp.UsageMetadata != nil {
					usage = message.Usage{
						PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
						CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
						TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
					}
				}
				out <- Chunk{Finish: mapGoogleFinishReason(string(cand.FinishReason)), Usage: &usage, Done: true}
			}
		}
	}()
	return out, nil
}

func (d *GoogleDriver) ExtractUsage(raw any) message.Usage {
	resp, ok := raw.(*genai.GenerateContentResponse)
	if !ok || resp.UsageMetadata == nil {
		return message.Usage{}
	}
	return message.Usage{
		PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
		CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
	}
}

func convertMessagesGoogle(msgs []message.Message) ([]*genai.Content, []*genai.Part, error) {
	var content []*genai.Content
	var system []*genai.Part

	for _, m := range msgs {
		switch v := m.(type) {
		case *message.SystemMessage:
			system = append(system, genai.NewPartFromText(v.Text))
		case *message.DeveloperMessage:
			system = append(system, genai.NewPartFromText(v.Text))
		case *message.UserMessage:
			content = append(content, genai.NewContentFromText(v.Text(), genai.RoleUser))
		case *message.AssistantMessage:
			content = append(content, genai.NewContentFromText(v.Text, genai.RoleModel))
		case *message.ToolCallMessage:
			parts := make([]*genai.Part, 0, len(v.Calls))
			for _, tc := range v.Calls {
				var args map[string]any
				_ = json.Unmarshal(tc.ArgumentsJSON, &args)
				parts = append(parts, genai.NewPartFromFunctionCall(tc.ToolName, args))
			}
			content = append(content, &genai.Content{Role: genai.RoleModel, Parts: parts})
		case *message.ToolResultMessage:
			content = append(content, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{genai.NewPartFromFunctionResponse(
					v.ToolName, map[string]any{"result": v.Result},
				)},
			})
		default:
			return nil, nil, fmt.Errorf("google: unsupported message type %T", m)
		}
	}
	return content, system, nil
}

func convertToolsGoogle(specs []ToolSpec) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, s := range specs {
		schema := schemaToGoogle(s.ParametersSchema)
		out = append(out, &genai.FunctionDeclaration{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  schema,
		})
	}
	return out
}

// schemaToGoogle round-trips a JSON-Schema map through genai.Schema's own
// JSON tags; Gemini's function-declaration schema is a narrowed dialect of
// JSON Schema so a marshal/unmarshal pair is sufficient rather than a
// bespoke field-by-field translator.
func schemaToGoogle(raw map[string]any) *genai.Schema {
	if raw == nil {
		return nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var s genai.Schema
	if err := json.Unmarshal(b, &s); err != nil {
		return nil
	}
	return &s
}

func googleToResponse(resp *genai.GenerateContentResponse) Response {
	out := Response{Raw: resp}
	if len(resp.Candidates) == 0 {
		out.Finish = FinishOther
		return out
	}
	cand := resp.Candidates[0]
	callIndex := 0
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				out.ContentText += part.Text
			}
			if part.FunctionCall != nil {
				args, _ := json.Marshal(part.FunctionCall.Args)
				out.ToolCalls = append(out.ToolCalls, message.ToolCall{
					ID:            googleToolCallID(callIndex),
					ToolName:      part.FunctionCall.Name,
					ArgumentsJSON: args,
				})
				callIndex++
			}
		}
	}
	if len(out.ToolCalls) > 0 {
		out.Finish = FinishToolCalls
	} else {
		out.Finish = mapGoogleFinishReason(string(cand.FinishReason))
	}
	if resp.UsageMetadata != nil {
		out.Usage = message.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out
}

// googleToolCallID synthesises an ID Gemini never sends, so downstream
// code can still correlate a ToolResultMessage back to its call.
func googleToolCallID(index int) string {
	return fmt.Sprintf("tool_call_%d", index)
}

func mapGoogleFinishReason(reason string) FinishReason {
	switch strings.ToUpper(reason) {
	case "STOP":
		return FinishStop
	case "MAX_TOKENS":
		return FinishLength
	case "SAFETY", "RECITATION":
		return FinishContentFilter
	default:
		if reason == "" {
			return FinishOther
		}
		return FinishOther
	}
}
