package providers

import (
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/MaestroError/laragent/pkg/message"
)

func TestConvertMessagesOpenAIMapsRolesAndToolCalls(t *testing.T) {
	msgs := []message.Message{
		message.NewSystem("Be terse."),
		message.NewDeveloper("Prefer bullet points."),
		message.NewUserText("What's the weather?"),
		message.NewToolCall(message.ToolCall{ID: "call_1", ToolName: "get_weather", ArgumentsJSON: []byte(`{"city":"SF"}`)}),
		message.NewToolResult("call_1", "get_weather", `{"temp_f":72}`, false),
		message.NewAssistant("It's 72F.", nil),
	}

	out, err := convertMessagesOpenAI(msgs)
	if err != nil {
		t.Fatalf("convertMessagesOpenAI: %v", err)
	}
	if len(out) != len(msgs) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(msgs))
	}

	if out[0].Role != openai.ChatMessageRoleSystem || out[0].Content != "Be terse." {
		t.Errorf("out[0] = %+v, want system role with system text", out[0])
	}
	if out[1].Role != openai.ChatMessageRoleDeveloper {
		t.Errorf("out[1].Role = %q, want developer", out[1].Role)
	}
	if out[2].Role != openai.ChatMessageRoleUser || out[2].Content != "What's the weather?" {
		t.Errorf("out[2] = %+v, want user role with the user text", out[2])
	}
	if out[3].Role != openai.ChatMessageRoleAssistant || len(out[3].ToolCalls) != 1 {
		t.Fatalf("out[3] = %+v, want assistant role with one tool call", out[3])
	}
	if out[3].ToolCalls[0].Function.Name != "get_weather" {
		t.Errorf("tool call function name = %q, want get_weather", out[3].ToolCalls[0].Function.Name)
	}
	if out[4].Role != openai.ChatMessageRoleTool || out[4].ToolCallID != "call_1" {
		t.Errorf("out[4] = %+v, want tool role carrying the call ID", out[4])
	}
	if out[5].Role != openai.ChatMessageRoleAssistant || out[5].Content != "It's 72F." {
		t.Errorf("out[5] = %+v, want assistant role with the reply text", out[5])
	}
}

func TestOpenAIFormatBuildsChatCompletionRequest(t *testing.T) {
	d := &OpenAIDriver{BaseDriver: NewBaseDriver(DefaultRetryConfig())}

	req := Request{
		Messages: []message.Message{message.NewUserText("Hi")},
		Options:  Options{Model: "gpt-4o-mini", MaxCompletionTokens: 128},
	}

	payload, err := d.Format(req)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	chatReq, ok := payload.(openai.ChatCompletionRequest)
	if !ok {
		t.Fatalf("payload = %T, want openai.ChatCompletionRequest", payload)
	}
	if chatReq.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q, want gpt-4o-mini", chatReq.Model)
	}
	if chatReq.MaxCompletionTokens != 128 {
		t.Errorf("MaxCompletionTokens = %d, want 128", chatReq.MaxCompletionTokens)
	}
	if len(chatReq.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(chatReq.Messages))
	}
}

func TestOpenAIToResponseMapsFinishReasonAndUsage(t *testing.T) {
	resp := openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Content: "done"},
			FinishReason: openai.FinishReasonLength,
		}},
		Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}

	out := openaiToResponse(resp)
	if out.ContentText != "done" {
		t.Errorf("ContentText = %q, want %q", out.ContentText, "done")
	}
	if out.Finish != FinishLength {
		t.Errorf("Finish = %q, want %q", out.Finish, FinishLength)
	}
	if out.Usage.TotalTokens != 15 {
		t.Errorf("Usage.TotalTokens = %d, want 15", out.Usage.TotalTokens)
	}
}

func TestMapOpenAIFinishReason(t *testing.T) {
	cases := map[string]FinishReason{
		"stop":           FinishStop,
		"tool_calls":     FinishToolCalls,
		"function_call":  FinishToolCalls,
		"length":         FinishLength,
		"content_filter": FinishContentFilter,
		"unknown_value":  FinishOther,
	}
	for reason, want := range cases {
		if got := mapOpenAIFinishReason(reason); got != want {
			t.Errorf("mapOpenAIFinishReason(%q) = %q, want %q", reason, got, want)
		}
	}
}
