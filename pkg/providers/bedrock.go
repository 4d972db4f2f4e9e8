package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/MaestroError/laragent/pkg/message"
)

// bedrockBody mirrors Anthropic's native Messages API request shape, which
// is what the "anthropic_version"/bedrock-2023-05-31 model family expects
// as its InvokeModel request body — Bedrock is a transport wrapper around
// the same content-block wire format the direct Anthropic API uses.
type bedrockBody struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	System           string             `json:"system,omitempty"`
	Messages         []bedrockMessage   `json:"messages"`
	Tools            []bedrockTool      `json:"tools,omitempty"`
	Temperature      *float64           `json:"temperature,omitempty"`
	TopP             *float64           `json:"top_p,omitempty"`
}

type bedrockMessage struct {
	Role    string           `json:"role"`
	Content []bedrockContent `json:"content"`
}

type bedrockContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type bedrockTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type bedrockResponse struct {
	Content    []bedrockContent `json:"content"`
	StopReason string           `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// BedrockDriver formats and sends requests to Anthropic-family models
// through AWS Bedrock's InvokeModel API.
type BedrockDriver struct {
	BaseDriver
	client *bedrockruntime.Client
}

// NewBedrockDriver builds a driver using the default AWS credential chain
// for the given region.
func NewBedrockDriver(ctx context.Context, region string) (*BedrockDriver, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: load aws config: %w", err)
	}
	return &BedrockDriver{
		BaseDriver: NewBaseDriver(DefaultRetryConfig()),
		client:     bedrockruntime.NewFromConfig(cfg),
	}, nil
}

func (d *BedrockDriver) Family() string { return "bedrock" }

func (d *BedrockDriver) Format(req Request) (Payload, error) {
	body := bedrockBody{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        4096,
	}
	if req.Options.MaxCompletionTokens > 0 {
		body.MaxTokens = req.Options.MaxCompletionTokens
	}
	body.Temperature = req.Options.Temperature
	body.TopP = req.Options.TopP

	var system []string
	for _, m := range req.Messages {
		switch v := m.(type) {
		case *message.SystemMessage:
			system = append(system, v.Text)
		case *message.DeveloperMessage:
			system = append(system, v.Text)
		case *message.UserMessage:
			body.Messages = append(body.Messages, bedrockMessage{
				Role:    "user",
				Content: []bedrockContent{{Type: "text", Text: v.Text()}},
			})
		case *message.AssistantMessage:
			body.Messages = append(body.Messages, bedrockMessage{
				Role:    "assistant",
				Content: []bedrockContent{{Type: "text", Text: v.Text}},
			})
		case *message.ToolCallMessage:
			var blocks []bedrockContent
			for _, tc := range v.Calls {
				blocks = append(blocks, bedrockContent{
					Type: "tool_use", ID: tc.ID, Name: tc.ToolName, Input: tc.ArgumentsJSON,
				})
			}
			body.Messages = append(body.Messages, bedrockMessage{Role: "assistant", Content: blocks})
		case *message.ToolResultMessage:
			body.Messages = append(body.Messages, bedrockMessage{
				Role: "user",
				Content: []bedrockContent{{
					Type: "tool_result", ToolUseID: v.ToolCallID, Content: v.Result, IsError: v.IsError,
				}},
			})
		default:
			return nil, fmt.Errorf("bedrock: unsupported message type %T", m)
		}
	}
	if len(system) > 0 {
		for i, s := range system {
			if i > 0 {
				body.System += "\n\n"
			}
			body.System += s
		}
	}

	for _, s := range req.Tools {
		body.Tools = append(body.Tools, bedrockTool{
			Name: s.Name, Description: s.Description, InputSchema: s.ParametersSchema,
		})
	}

	return bedrockPayload{modelID: req.Options.Model, body: body}, nil
}

type bedrockPayload struct {
	modelID string
	body    bedrockBody
}

func (d *BedrockDriver) Send(ctx context.Context, payload Payload) (Response, error) {
	p, ok := payload.(bedrockPayload)
	if !ok {
		return Response{}, fmt.Errorf("bedrock: unexpected payload type %T", payload)
	}
	encoded, err := json.Marshal(p.body)
	if err != nil {
		return Response{}, fmt.Errorf("bedrock: marshal body: %w", err)
	}

	var raw bedrockResponse
	err = d.WithRetry(ctx, func() error {
		out, err := d.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(p.modelID),
			ContentType: aws.String("application/json"),
			Body:        encoded,
		})
		if err != nil {
			return WrapError("bedrock", statusFromBedrockErr(err), err)
		}
		return json.Unmarshal(out.Body, &raw)
	})
	if err != nil {
		return Response{}, err
	}
	return bedrockToResponse(raw), nil
}

func (d *BedrockDriver) SendStreamed(ctx context.Context, payload Payload) (<-chan Chunk, error) {
	p, ok := payload.(bedrockPayload)
	if !ok {
		return nil, fmt.Errorf("bedrock: unexpected payload type %T", payload)
	}
	encoded, err := json.Marshal(p.body)
	if err != nil {
		return nil, fmt.Errorf("bedrock: marshal body: %w", err)
	}

	resp, err := d.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(p.modelID),
		ContentType: aws.String("application/json"),
		Body:        encoded,
	})
	if err != nil {
		return nil, WrapError("bedrock", statusFromBedrockErr(err), err)
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer resp.GetStream().Close()

		var currentToolID, currentToolName string
		var currentInput []byte
		inToolBlock := false

		for event := range resp.GetStream().Events() {
			chunkEvent, ok := event.(*brtypes.ResponseStreamMemberChunk)
			if !ok {
				continue
			}
			var evt struct {
				Type  string `json:"type"`
				Delta struct {
					Type         string `json:"type"`
					Text         string `json:"text"`
					PartialJSON  string `json:"partial_json"`
					StopReason   string `json:"stop_reason"`
				} `json:"delta"`
				ContentBlock struct {
					Type string `json:"type"`
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"content_block"`
				Usage struct {
					InputTokens  int `json:"input_tokens"`
					OutputTokens int `json:"output_tokens"`
				} `json:"usage"`
			}
			if err := json.Unmarshal(chunkEvent.Value.Bytes, &evt); err != nil {
				continue
			}
			switch evt.Type {
			case "content_block_start":
				if evt.ContentBlock.Type == "tool_use" {
					inToolBlock = true
					currentToolID = evt.ContentBlock.ID
					currentToolName = evt.ContentBlock.Name
					currentInput = nil
				}
			case "content_block_delta":
				if evt.Delta.Type == "text_delta" {
					out <- Chunk{TextDelta: evt.Delta.Text}
				} else if evt.Delta.Type == "input_json_delta" && inToolBlock {
					currentInput = append(currentInput, []byte(evt.Delta.PartialJSON)...)
				}
			case "content_block_stop":
				if inToolBlock {
					out <- Chunk{ToolCall: &message.ToolCall{
						ID: currentToolID, ToolName: currentToolName, ArgumentsJSON: currentInput,
					}}
					inToolBlock = false
				}
			case "message_delta":
				usage := message.Usage{
					PromptTokens:     evt.Usage.InputTokens,
					CompletionTokens: evt.Usage.OutputTokens,
					TotalTokens:      evt.Usage.InputTokens + evt.Usage.OutputTokens,
				}
				out <- Chunk{Finish: mapAnthropicStopReason(evt.Delta.StopReason), Usage: &usage, Done: true}
			}
		}
		if err := resp.GetStream().Err(); err != nil {
			out <- Chunk{Err: WrapError("bedrock", 0, err), Done: true}
		}
	}()
	return out, nil
}

func (d *BedrockDriver) ExtractUsage(raw any) message.Usage {
	resp, ok := raw.(bedrockResponse)
	if !ok {
		return message.Usage{}
	}
	return message.Usage{
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}
}

func bedrockToResponse(resp bedrockResponse) Response {
	out := Response{Raw: resp}
	for _, c := range resp.Content {
		switch c.Type {
		case "text":
			out.ContentText += c.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, message.ToolCall{
				ID: c.ID, ToolName: c.Name, ArgumentsJSON: c.Input,
			})
		}
	}
	out.Finish = mapAnthropicStopReason(resp.StopReason)
	out.Usage = message.Usage{
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}
	return out
}

type awsAPIError interface {
	ErrorCode() string
}

func statusFromBedrockErr(err error) int {
	var apiErr awsAPIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException":
			return 429
		case "AccessDeniedException":
			return 403
		case "ValidationException":
			return 400
		}
	}
	return 0
}
