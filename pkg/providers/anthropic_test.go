package providers

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/MaestroError/laragent/pkg/message"
)

func TestAnthropicFormatJoinsSystemAndDeveloperIntoOneBlock(t *testing.T) {
	d := &AnthropicDriver{BaseDriver: NewBaseDriver(DefaultRetryConfig())}

	req := Request{
		Messages: []message.Message{
			message.NewSystem("You are helpful."),
			message.NewDeveloper("Be concise."),
			message.NewUserText("Hello"),
		},
		Options: Options{Model: "claude-3-5-sonnet-20241022"},
	}

	payload, err := d.Format(req)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	params, ok := payload.(anthropic.MessageNewParams)
	if !ok {
		t.Fatalf("payload = %T, want anthropic.MessageNewParams", payload)
	}

	if len(params.System) != 1 {
		t.Fatalf("len(System) = %d, want 1 joined block", len(params.System))
	}
	want := "You are helpful.\nBe concise."
	if params.System[0].Text != want {
		t.Errorf("System[0].Text = %q, want %q", params.System[0].Text, want)
	}

	if len(params.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1 (system/developer excluded)", len(params.Messages))
	}
	if params.Messages[0].Role != anthropic.MessageParamRoleUser {
		t.Errorf("Messages[0].Role = %v, want user", params.Messages[0].Role)
	}
}

func TestAnthropicFormatOmitsSystemWhenNoSystemOrDeveloperMessages(t *testing.T) {
	d := &AnthropicDriver{BaseDriver: NewBaseDriver(DefaultRetryConfig())}

	req := Request{
		Messages: []message.Message{message.NewUserText("Hello")},
		Options:  Options{Model: "claude-3-5-sonnet-20241022"},
	}

	payload, err := d.Format(req)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	params := payload.(anthropic.MessageNewParams)
	if len(params.System) != 0 {
		t.Errorf("System = %v, want empty when no system/developer messages present", params.System)
	}
}

func TestAnthropicFormatMultipleSystemMessagesJoinInOrder(t *testing.T) {
	d := &AnthropicDriver{BaseDriver: NewBaseDriver(DefaultRetryConfig())}

	req := Request{
		Messages: []message.Message{
			message.NewSystem("First."),
			message.NewSystem("Second."),
			message.NewUserText("Hi"),
		},
		Options: Options{Model: "claude-3-5-sonnet-20241022"},
	}

	payload, err := d.Format(req)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	params := payload.(anthropic.MessageNewParams)
	if len(params.System) != 1 {
		t.Fatalf("len(System) = %d, want 1 joined block", len(params.System))
	}
	want := "First.\nSecond."
	if params.System[0].Text != want {
		t.Errorf("System[0].Text = %q, want %q", params.System[0].Text, want)
	}
}

func TestMapAnthropicStopReason(t *testing.T) {
	cases := map[string]FinishReason{
		"end_turn":      FinishStop,
		"stop_sequence": FinishStop,
		"tool_use":      FinishToolCalls,
		"max_tokens":    FinishLength,
		"refusal":       FinishOther,
	}
	for reason, want := range cases {
		if got := mapAnthropicStopReason(reason); got != want {
			t.Errorf("mapAnthropicStopReason(%q) = %q, want %q", reason, got, want)
		}
	}
}
