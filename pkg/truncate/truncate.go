// Package truncate implements the three context-reduction strategies a
// ChatHistory can be subjected to when it grows past an agent's configured
// window: dropping the oldest turns outright, replacing them with an
// LLM-generated summary, or replacing each message with a short symbol.
// All three preserve the leading system/developer messages and the most
// recent turns untouched, and are idempotent: truncating an
// already-truncated history a second time is a no-op.
package truncate

import (
	"context"
	"fmt"

	"github.com/MaestroError/laragent/pkg/message"
)

// Strategy identifies which reduction a TruncationEngine applies.
type Strategy string

const (
	StrategyDropOldest Strategy = "drop_oldest"
	StrategySummarise  Strategy = "summarise"
	StrategySymbolise  Strategy = "symbolise"
)

// Config controls a TruncationEngine.
type Config struct {
	Strategy Strategy

	// KeepRecent is how many trailing messages are never touched.
	KeepRecent int

	// MaxSummaryChars bounds a generated summary (Summarise only).
	MaxSummaryChars int

	// SymbolWordLimit bounds each per-message symbol (Symbolise only).
	SymbolWordLimit int
}

// DefaultConfig keeps the last ten messages untouched; everything older
// is a truncation candidate.
func DefaultConfig() Config {
	return Config{
		Strategy:        StrategySummarise,
		KeepRecent:      10,
		MaxSummaryChars: 2000,
		SymbolWordLimit: 10,
	}
}

// Summariser generates a natural-language summary of a run of messages,
// typically by making a cheap sub-call to the same or a smaller model.
type Summariser interface {
	Summarise(ctx context.Context, messages []message.Message, maxChars int) (string, error)
}

// Symboliser reduces a single message to a short gloss (at most a handful
// of words) that preserves just enough meaning to keep the turn sequence
// legible.
type Symboliser interface {
	Symbolise(ctx context.Context, m message.Message, wordLimit int) (string, error)
}

// EventBus receives lifecycle notifications. Dispatch must not block.
type EventBus interface {
	Dispatch(event any)
}

// ChatHistoryTruncated is dispatched once a truncation has been applied.
type ChatHistoryTruncated struct {
	SessionKey   string
	Strategy     Strategy
	DroppedCount int
	KeptCount    int
}

// Engine applies one Strategy to a ChatHistory's message slice.
type Engine struct {
	cfg        Config
	summariser Summariser
	symboliser Symboliser
	bus        EventBus
}

// NewEngine builds an Engine. summariser/symboliser may be nil if cfg's
// Strategy never needs them; bus may be nil to disable notifications.
func NewEngine(cfg Config, summariser Summariser, symboliser Symboliser, bus EventBus) *Engine {
	if cfg.KeepRecent <= 0 {
		cfg.KeepRecent = 10
	}
	if cfg.MaxSummaryChars <= 0 {
		cfg.MaxSummaryChars = 2000
	}
	if cfg.SymbolWordLimit <= 0 {
		cfg.SymbolWordLimit = 10
	}
	return &Engine{cfg: cfg, summariser: summariser, symboliser: symboliser, bus: bus}
}

// Apply truncates msgs per the engine's configured strategy, returning the
// new message slice. Leading system/developer messages and the trailing
// KeepRecent messages are always preserved verbatim.
func (e *Engine) Apply(ctx context.Context, sessionKey string, msgs []message.Message) ([]message.Message, error) {
	leadingLen := leadingSystemLen(msgs)
	recentStart := len(msgs) - e.cfg.KeepRecent
	if recentStart < leadingLen {
		// Nothing old enough to touch: already within budget.
		return msgs, nil
	}

	middle := msgs[leadingLen:recentStart]
	if len(middle) == 0 {
		return msgs, nil
	}
	if isAlreadyReduced(middle) {
		// Idempotence: a prior pass already collapsed this run.
		return msgs, nil
	}

	var replacement []message.Message
	var err error
	switch e.cfg.Strategy {
	case StrategyDropOldest:
		replacement = nil
	case StrategySymbolise:
		replacement, err = e.symbolise(ctx, middle)
	default:
		replacement, err = e.summarise(ctx, middle)
	}
	if err != nil {
		return nil, err
	}

	out := make([]message.Message, 0, leadingLen+len(replacement)+len(msgs[recentStart:]))
	out = append(out, msgs[:leadingLen]...)
	out = append(out, replacement...)
	out = append(out, msgs[recentStart:]...)

	if e.bus != nil {
		e.bus.Dispatch(ChatHistoryTruncated{
			SessionKey:   sessionKey,
			Strategy:     e.cfg.Strategy,
			DroppedCount: len(middle) - len(replacement),
			KeptCount:    len(out),
		})
	}
	return out, nil
}

func (e *Engine) summarise(ctx context.Context, middle []message.Message) ([]message.Message, error) {
	if e.summariser == nil {
		return nil, fmt.Errorf("truncate: summarise strategy configured without a Summariser")
	}
	text, err := e.summariser.Summarise(ctx, middle, e.cfg.MaxSummaryChars)
	if err != nil {
		return nil, fmt.Errorf("truncate: summarise: %w", err)
	}
	summary := message.NewSystem(summaryMarker + text)
	return []message.Message{summary}, nil
}

func (e *Engine) symbolise(ctx context.Context, middle []message.Message) ([]message.Message, error) {
	if e.symboliser == nil {
		return nil, fmt.Errorf("truncate: symbolise strategy configured without a Symboliser")
	}
	out := make([]message.Message, 0, len(middle))
	for _, m := range middle {
		gloss, err := e.symboliser.Symbolise(ctx, m, e.cfg.SymbolWordLimit)
		if err != nil {
			return nil, fmt.Errorf("truncate: symbolise: %w", err)
		}
		out = append(out, message.NewSystem(symbolMarker+gloss))
	}
	return out, nil
}

// summaryMarker/symbolMarker prefix generated messages so isAlreadyReduced
// can recognise a prior pass's output without a side channel.
const (
	summaryMarker = "[summary] "
	symbolMarker  = "[symbol] "
)

func isAlreadyReduced(msgs []message.Message) bool {
	for _, m := range msgs {
		sys, ok := m.(*message.SystemMessage)
		if !ok {
			return false
		}
		if !hasPrefix(sys.Text, summaryMarker) && !hasPrefix(sys.Text, symbolMarker) {
			return false
		}
	}
	return true
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func leadingSystemLen(msgs []message.Message) int {
	n := 0
	for _, m := range msgs {
		switch m.(type) {
		case *message.SystemMessage, *message.DeveloperMessage:
			n++
		default:
			return n
		}
	}
	return n
}
