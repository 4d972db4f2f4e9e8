package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/MaestroError/laragent/pkg/message"
)

// OpenAIDriver formats and sends requests in the OpenAI chat-completions
// wire shape, also used by any OpenAI-compatible endpoint reachable via
// Options.APIURL (local runners, proxies, etc.).
type OpenAIDriver struct {
	BaseDriver
	client *openai.Client
}

// NewOpenAIDriver builds a driver against the given API key, optionally
// pointed at a custom base URL (for OpenAI-compatible endpoints).
func NewOpenAIDriver(apiKey, baseURL string) *OpenAIDriver {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIDriver{
		BaseDriver: NewBaseDriver(DefaultRetryConfig()),
		client:     openai.NewClientWithConfig(cfg),
	}
}

func (d *OpenAIDriver) Family() string { return "openai" }

func (d *OpenAIDriver) Format(req Request) (Payload, error) {
	msgs, err := convertMessagesOpenAI(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("openai: convert messages: %w", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Options.Model,
		Messages: msgs,
	}
	if req.Options.MaxCompletionTokens > 0 {
		chatReq.MaxCompletionTokens = req.Options.MaxCompletionTokens
	}
	if req.Options.Temperature != nil {
		chatReq.Temperature = float32(*req.Options.Temperature)
	}
	if req.Options.TopP != nil {
		chatReq.TopP = float32(*req.Options.TopP)
	}
	if req.Options.N > 0 {
		chatReq.N = req.Options.N
	}
	if req.Options.FrequencyPenalty != nil {
		chatReq.FrequencyPenalty = float32(*req.Options.FrequencyPenalty)
	}
	if req.Options.PresencePenalty != nil {
		chatReq.PresencePenalty = float32(*req.Options.PresencePenalty)
	}
	if req.Options.ParallelToolCalls != nil {
		chatReq.ParallelToolCalls = *req.Options.ParallelToolCalls
	}
	if req.Options.ToolChoice != nil {
		chatReq.ToolChoice = req.Options.ToolChoice
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertToolsOpenAI(req.Tools)
	}
	if req.Schema != nil {
		b, err := json.Marshal(req.Schema)
		if err != nil {
			return nil, fmt.Errorf("openai: marshal schema: %w", err)
		}
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "structured_output",
				Schema: json.RawMessage(b),
				Strict: true,
			},
		}
	}
	return chatReq, nil
}

func (d *OpenAIDriver) Send(ctx context.Context, payload Payload) (Response, error) {
	chatReq, ok := payload.(openai.ChatCompletionRequest)
	if !ok {
		return Response{}, fmt.Errorf("openai: unexpected payload type %T", payload)
	}
	chatReq.Stream = false

	var resp openai.ChatCompletionResponse
	err := d.WithRetry(ctx, func() error {
		r, err := d.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return WrapError("openai", statusFromOpenAIErr(err), err)
		}
		resp = r
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	return openaiToResponse(resp), nil
}

func (d *OpenAIDriver) SendStreamed(ctx context.Context, payload Payload) (<-chan Chunk, error) {
	chatReq, ok := payload.(openai.ChatCompletionRequest)
	if !ok {
		return nil, fmt.Errorf("openai: unexpected payload type %T", payload)
	}
	chatReq.Stream = true

	stream, err := d.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, WrapError("openai", statusFromOpenAIErr(err), err)
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer stream.Close()

		pending := map[int]*message.ToolCall{}
		order := []int{}

		for {
			select {
			case <-ctx.Done():
				out <- Chunk{Err: ctx.Err(), Done: true}
				return
			default:
			}

			resp, err := stream.Recv()
			if err != nil {
				if err == io.EOF {
					for _, idx := range order {
						tc := pending[idx]
						if tc != nil && tc.ID != "" {
							out <- Chunk{ToolCall: tc}
						}
					}
					finish := FinishStop
					if len(order) > 0 {
						finish = FinishToolCalls
					}
					out <- Chunk{Finish: finish, Done: true}
					return
				}
				out <- Chunk{Err: WrapError("openai", 0, err), Done: true}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta
			if delta.Content != "" {
				out <- Chunk{TextDelta: delta.Content}
			}
			for _, tc := range delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				if pending[idx] == nil {
					pending[idx] = &message.ToolCall{}
					order = append(order, idx)
				}
				if tc.ID != "" {
					pending[idx].ID = tc.ID
				}
				if tc.Function.Name != "" {
					pending[idx].ToolName = tc.Function.Name
				}
				if tc.Function.Arguments != "" {
					pending[idx].ArgumentsJSON = append(pending[idx].ArgumentsJSON, []byte(tc.Function.Arguments)...)
				}
			}
		}
	}()
	return out, nil
}

func (d *OpenAIDriver) ExtractUsage(raw any) message.Usage {
	resp, ok := raw.(openai.ChatCompletionResponse)
	if !ok {
		return message.Usage{}
	}
	return message.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
}

func convertMessagesOpenAI(msgs []message.Message) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		switch v := m.(type) {
		case *message.SystemMessage:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: v.Text})
		case *message.DeveloperMessage:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleDeveloper, Content: v.Text})
		case *message.UserMessage:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: v.Text()})
		case *message.AssistantMessage:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: v.Text})
		case *message.ToolCallMessage:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}
			for _, tc := range v.Calls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.ToolName,
						Arguments: string(tc.ArgumentsJSON),
					},
				})
			}
			out = append(out, msg)
		case *message.ToolResultMessage:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    v.Result,
				ToolCallID: v.ToolCallID,
			})
		default:
			return nil, fmt.Errorf("openai: unsupported message type %T", m)
		}
	}
	return out, nil
}

func convertToolsOpenAI(specs []ToolSpec) []openai.Tool {
	out := make([]openai.Tool, 0, len(specs))
	for _, s := range specs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.ParametersSchema,
			},
		})
	}
	return out
}

func openaiToResponse(resp openai.ChatCompletionResponse) Response {
	out := Response{Raw: resp}
	if len(resp.Choices) == 0 {
		out.Finish = FinishOther
		return out
	}
	choice := resp.Choices[0]
	out.ContentText = choice.Message.Content
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, message.ToolCall{
			ID:            tc.ID,
			ToolName:      tc.Function.Name,
			ArgumentsJSON: []byte(tc.Function.Arguments),
		})
	}
	out.Finish = mapOpenAIFinishReason(string(choice.FinishReason))
	out.Usage = message.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return out
}

func mapOpenAIFinishReason(reason string) FinishReason {
	switch reason {
	case "stop":
		return FinishStop
	case "tool_calls", "function_call":
		return FinishToolCalls
	case "length":
		return FinishLength
	case "content_filter":
		return FinishContentFilter
	default:
		return FinishOther
	}
}

func statusFromOpenAIErr(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	return 0
}
