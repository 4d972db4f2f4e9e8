package truncate

import (
	"context"
	"strings"
	"testing"

	"github.com/MaestroError/laragent/pkg/message"
)

type fakeSummariser struct {
	text string
	err  error
}

func (f *fakeSummariser) Summarise(ctx context.Context, messages []message.Message, maxChars int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.text != "" {
		return f.text, nil
	}
	return "condensed history", nil
}

type fakeSymboliser struct{}

func (fakeSymboliser) Symbolise(ctx context.Context, m message.Message, wordLimit int) (string, error) {
	return "gist", nil
}

type recordingBus struct {
	events []any
}

func (b *recordingBus) Dispatch(event any) { b.events = append(b.events, event) }

func buildHistory(n int) []message.Message {
	out := make([]message.Message, 0, n+1)
	out = append(out, message.NewSystem("system prompt"))
	for i := 0; i < n; i++ {
		out = append(out, message.NewUserText("turn"))
	}
	return out
}

func TestEngineDropOldestStrategy(t *testing.T) {
	e := NewEngine(Config{Strategy: StrategyDropOldest, KeepRecent: 2}, nil, nil, nil)
	msgs := buildHistory(10) // 1 leading + 10 user turns

	out, err := e.Apply(context.Background(), "k", msgs)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// leading(1) + recent(2) = 3, middle dropped entirely.
	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3", len(out))
	}
	if _, ok := out[0].(*message.SystemMessage); !ok {
		t.Error("leading system message was not preserved")
	}
}

func TestEngineSummariseStrategyProducesSingleSystemMessage(t *testing.T) {
	e := NewEngine(Config{Strategy: StrategySummarise, KeepRecent: 2}, &fakeSummariser{text: "summary text"}, nil, nil)
	msgs := buildHistory(10)

	out, err := e.Apply(context.Background(), "k", msgs)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// leading(1) + summary(1) + recent(2) = 4
	if len(out) != 4 {
		t.Fatalf("len(out) = %d, want 4", len(out))
	}
	sys, ok := out[1].(*message.SystemMessage)
	if !ok {
		t.Fatalf("out[1] = %T, want *SystemMessage", out[1])
	}
	if !strings.HasPrefix(sys.Text, "[summary] ") || !strings.Contains(sys.Text, "summary text") {
		t.Errorf("summary text = %q, want prefix [summary] containing %q", sys.Text, "summary text")
	}
}

func TestEngineSummariseWithoutSummariserErrors(t *testing.T) {
	e := NewEngine(Config{Strategy: StrategySummarise, KeepRecent: 2}, nil, nil, nil)
	msgs := buildHistory(10)
	if _, err := e.Apply(context.Background(), "k", msgs); err == nil {
		t.Error("expected an error when no Summariser is configured")
	}
}

func TestEngineSymboliseStrategyProducesOneGlossPerMessage(t *testing.T) {
	e := NewEngine(Config{Strategy: StrategySymbolise, KeepRecent: 2}, nil, fakeSymboliser{}, nil)
	msgs := buildHistory(10)

	out, err := e.Apply(context.Background(), "k", msgs)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	middleCount := 10 - 2
	// leading(1) + gloss-per-middle-message + recent(2)
	if len(out) != 1+middleCount+2 {
		t.Fatalf("len(out) = %d, want %d", len(out), 1+middleCount+2)
	}
	for i := 1; i <= middleCount; i++ {
		sys, ok := out[i].(*message.SystemMessage)
		if !ok || !strings.HasPrefix(sys.Text, "[symbol] ") {
			t.Errorf("out[%d] = %v, want a [symbol]-prefixed system message", i, out[i])
		}
	}
}

func TestEngineLeavesHistoryUntouchedWhenWithinBudget(t *testing.T) {
	e := NewEngine(Config{Strategy: StrategyDropOldest, KeepRecent: 20}, nil, nil, nil)
	msgs := buildHistory(5)

	out, err := e.Apply(context.Background(), "k", msgs)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out) != len(msgs) {
		t.Errorf("len(out) = %d, want unchanged %d", len(out), len(msgs))
	}
}

func TestEngineIsIdempotent(t *testing.T) {
	e := NewEngine(Config{Strategy: StrategySummarise, KeepRecent: 2}, &fakeSummariser{text: "summary text"}, nil, nil)
	msgs := buildHistory(10)

	first, err := e.Apply(context.Background(), "k", msgs)
	if err != nil {
		t.Fatalf("Apply (first): %v", err)
	}
	second, err := e.Apply(context.Background(), "k", first)
	if err != nil {
		t.Fatalf("Apply (second): %v", err)
	}
	if len(second) != len(first) {
		t.Errorf("second pass changed length: got %d, want unchanged %d", len(second), len(first))
	}
}

func TestEnginePreservesLeadingDeveloperMessages(t *testing.T) {
	e := NewEngine(Config{Strategy: StrategyDropOldest, KeepRecent: 1}, nil, nil, nil)
	msgs := []message.Message{
		message.NewSystem("sys"),
		message.NewDeveloper("dev"),
		message.NewUserText("one"),
		message.NewUserText("two"),
		message.NewUserText("three"),
	}

	out, err := e.Apply(context.Background(), "k", msgs)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3 (sys + dev + recent)", len(out))
	}
	if _, ok := out[0].(*message.SystemMessage); !ok {
		t.Error("leading system message dropped")
	}
	if _, ok := out[1].(*message.DeveloperMessage); !ok {
		t.Error("leading developer message dropped")
	}
}

func TestEngineDispatchesTruncationEvent(t *testing.T) {
	bus := &recordingBus{}
	e := NewEngine(Config{Strategy: StrategyDropOldest, KeepRecent: 2}, nil, nil, bus)
	msgs := buildHistory(10)

	if _, err := e.Apply(context.Background(), "session-x", msgs); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(bus.events) != 1 {
		t.Fatalf("bus received %d events, want 1", len(bus.events))
	}
	evt, ok := bus.events[0].(ChatHistoryTruncated)
	if !ok {
		t.Fatalf("event type = %T, want ChatHistoryTruncated", bus.events[0])
	}
	if evt.SessionKey != "session-x" || evt.Strategy != StrategyDropOldest {
		t.Errorf("unexpected event: %+v", evt)
	}
}

func TestEngineAppliesDefaultsForZeroConfig(t *testing.T) {
	e := NewEngine(Config{Strategy: StrategyDropOldest}, nil, nil, nil)
	if e.cfg.KeepRecent != 10 {
		t.Errorf("KeepRecent = %d, want default 10", e.cfg.KeepRecent)
	}
}
