package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/MaestroError/laragent/pkg/message"
)

// AnthropicDriver formats and sends requests in the Anthropic Messages API
// shape: a separate top-level system field, content-block arrays instead
// of plain strings, and input_schema instead of "parameters" for tools.
type AnthropicDriver struct {
	BaseDriver
	client anthropic.Client
}

// NewAnthropicDriver builds a driver against the given API key.
func NewAnthropicDriver(apiKey string) *AnthropicDriver {
	return &AnthropicDriver{
		BaseDriver: NewBaseDriver(DefaultRetryConfig()),
		client:     anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

func (d *AnthropicDriver) Family() string { return "anthropic" }

func (d *AnthropicDriver) Format(req Request) (Payload, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Options.Model),
		MaxTokens: 4096,
	}
	if req.Options.MaxCompletionTokens > 0 {
		params.MaxTokens = int64(req.Options.MaxCompletionTokens)
	}
	if req.Options.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Options.Temperature)
	}
	if req.Options.TopP != nil {
		params.TopP = anthropic.Float(*req.Options.TopP)
	}

	var systemLines []string
	var convMsgs []anthropic.MessageParam

	for _, m := range req.Messages {
		switch v := m.(type) {
		case *message.SystemMessage:
			systemLines = append(systemLines, v.Text)
		case *message.DeveloperMessage:
			// Anthropic has no developer channel; fold into system per §4.4.
			systemLines = append(systemLines, v.Text)
		case *message.UserMessage:
			convMsgs = append(convMsgs, anthropic.NewUserMessage(anthropic.NewTextBlock(v.Text())))
		case *message.AssistantMessage:
			convMsgs = append(convMsgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(v.Text)))
		case *message.ToolCallMessage:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(v.Calls))
			for _, tc := range v.Calls {
				var input any
				_ = json.Unmarshal(tc.ArgumentsJSON, &input)
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.ToolName))
			}
			convMsgs = append(convMsgs, anthropic.NewAssistantMessage(blocks...))
		case *message.ToolResultMessage:
			convMsgs = append(convMsgs, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(v.ToolCallID, v.Result, v.IsError),
			))
		default:
			return nil, fmt.Errorf("anthropic: unsupported message type %T", m)
		}
	}
	// All system/developer text joins into the single block the Anthropic
	// API expects, rather than one block per source message.
	if len(systemLines) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(systemLines, "\n")}}
	}
	params.Messages = convMsgs

	if len(req.Tools) > 0 {
		tools, err := convertToolsAnthropic(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}
	if req.Options.ToolChoice != nil {
		if name, ok := req.Options.ToolChoice.(string); ok && name != "auto" && name != "none" {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{
				OfTool: &anthropic.ToolChoiceToolParam{Name: name},
			}
		}
	}
	return params, nil
}

func (d *AnthropicDriver) Send(ctx context.Context, payload Payload) (Response, error) {
	params, ok := payload.(anthropic.MessageNewParams)
	if !ok {
		return Response{}, fmt.Errorf("anthropic: unexpected payload type %T", payload)
	}

	var msg *anthropic.Message
	err := d.WithRetry(ctx, func() error {
		m, err := d.client.Messages.New(ctx, params)
		if err != nil {
			return WrapError("anthropic", statusFromAnthropicErr(err), err)
		}
		msg = m
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	return anthropicToResponse(msg), nil
}

func (d *AnthropicDriver) SendStreamed(ctx context.Context, payload Payload) (<-chan Chunk, error) {
	params, ok := payload.(anthropic.MessageNewParams)
	if !ok {
		return nil, fmt.Errorf("anthropic: unexpected payload type %T", payload)
	}

	stream := d.client.Messages.NewStreaming(ctx, params)
	out := make(chan Chunk)

	go func() {
		defer close(out)

		var acc anthropic.Message
		var currentToolID, currentToolName string
		var currentInput []byte
		inToolBlock := false

		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				out <- Chunk{Err: err, Done: true}
				return
			}

			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				if tu := ev.ContentBlock.AsAny(); true {
					if toolUse, ok := tu.(anthropic.ToolUseBlock); ok {
						inToolBlock = true
						currentToolID = toolUse.ID
						currentToolName = toolUse.Name
						currentInput = nil
					}
				}
			case anthropic.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					out <- Chunk{TextDelta: delta.Text}
				case anthropic.InputJSONDelta:
					if inToolBlock {
						currentInput = append(currentInput, []byte(delta.PartialJSON)...)
					}
				}
			case anthropic.ContentBlockStopEvent:
				if inToolBlock {
					out <- Chunk{ToolCall: &message.ToolCall{
						ID:            currentToolID,
						ToolName:      currentToolName,
						ArgumentsJSON: currentInput,
					}}
					inToolBlock = false
				}
			case anthropic.MessageStopEvent:
				usage := message.Usage{
					PromptTokens:     int(acc.Usage.InputTokens),
					CompletionTokens: int(acc.Usage.OutputTokens),
					TotalTokens:      int(acc.Usage.InputTokens + acc.Usage.OutputTokens),
				}
				out <- Chunk{Finish: mapAnthropicStopReason(string(acc.StopReason)), Usage: &usage, Done: true}
			}
		}
		if err := stream.Err(); err != nil {
			out <- Chunk{Err: WrapError("anthropic", statusFromAnthropicErr(err), err), Done: true}
		}
	}()
	return out, nil
}

func (d *AnthropicDriver) ExtractUsage(raw any) message.Usage {
	msg, ok := raw.(*anthropic.Message)
	if !ok {
		return message.Usage{}
	}
	return message.Usage{
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
		TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
}

func convertToolsAnthropic(specs []ToolSpec) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, s := range specs {
		b, err := json.Marshal(s.ParametersSchema)
		if err != nil {
			return nil, fmt.Errorf("anthropic: marshal schema for %s: %w", s.Name, err)
		}
		var inputSchema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(b, &inputSchema); err != nil {
			return nil, fmt.Errorf("anthropic: decode schema for %s: %w", s.Name, err)
		}
		out = append(out, anthropic.ToolUnionParamOfTool(inputSchema, s.Name))
	}
	return out, nil
}

func anthropicToResponse(msg *anthropic.Message) Response {
	out := Response{Raw: msg}
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.ContentText += b.Text
		case anthropic.ToolUseBlock:
			input, _ := json.Marshal(b.Input)
			out.ToolCalls = append(out.ToolCalls, message.ToolCall{
				ID:            b.ID,
				ToolName:      b.Name,
				ArgumentsJSON: input,
			})
		}
	}
	out.Finish = mapAnthropicStopReason(string(msg.StopReason))
	out.Usage = message.Usage{
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
		TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
	return out
}

func mapAnthropicStopReason(reason string) FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return FinishStop
	case "tool_use":
		return FinishToolCalls
	case "max_tokens":
		return FinishLength
	default:
		return FinishOther
	}
}

func statusFromAnthropicErr(err error) int {
	var apiErr *anthropic.Error
	if aerr, ok := err.(*anthropic.Error); ok {
		apiErr = aerr
		return apiErr.StatusCode
	}
	return 0
}
