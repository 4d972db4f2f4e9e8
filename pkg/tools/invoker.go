package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MaestroError/laragent/internal/backoff"
	"github.com/MaestroError/laragent/pkg/message"
)

// ExecConfig controls the invoker's concurrency, per-call timeout, and
// retry policy.
//
// Concurrency defaults to 1, not 4: the orchestrator's round-trip loop
// must observe tool calls completing in the order the model requested
// them, since a later call's arguments sometimes depend on an earlier
// call's side effects. Callers confident their tools are independent may
// raise Concurrency to get full concurrent-dispatch behaviour back.
type ExecConfig struct {
	Concurrency    int
	PerToolTimeout time.Duration
	MaxAttempts    int
	RetryBackoff   backoff.BackoffPolicy
}

// DefaultExecConfig returns the sequential, single-attempt, 30s-timeout
// default.
func DefaultExecConfig() ExecConfig {
	return ExecConfig{
		Concurrency:    1,
		PerToolTimeout: 30 * time.Second,
		MaxAttempts:    1,
		RetryBackoff:   backoff.AggressivePolicy(),
	}
}

// EventKind identifies a tool lifecycle event.
type EventKind string

const (
	EventStarted   EventKind = "tool_started"
	EventCompleted EventKind = "tool_completed"
	EventFailed    EventKind = "tool_failed"
	EventTimeout   EventKind = "tool_timeout"
)

// Event is emitted for every tool-call attempt, success, and failure.
type Event struct {
	Kind     EventKind
	ToolName string
	CallID   string
	Attempt  int
	Duration time.Duration
}

// EventCallback receives lifecycle events. It must not block.
type EventCallback func(Event)

// Invoker drives the model-calls-tools round trip: dispatching each call
// in a ToolCallMessage to the Registry, retrying per ExecConfig, and
// assembling the resulting ToolResultMessages.
type Invoker struct {
	registry *Registry
	config   ExecConfig
}

// NewInvoker builds an Invoker. A zero-value cfg becomes DefaultExecConfig.
func NewInvoker(registry *Registry, cfg ExecConfig) *Invoker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PerToolTimeout <= 0 {
		cfg.PerToolTimeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryBackoff == (backoff.BackoffPolicy{}) {
		cfg.RetryBackoff = backoff.AggressivePolicy()
	}
	return &Invoker{registry: registry, config: cfg}
}

// Dispatch executes every call in calls (honouring Concurrency) and
// returns one ToolResultMessage per call, in the same order.
func (inv *Invoker) Dispatch(ctx context.Context, calls []message.ToolCall, emit EventCallback) []*message.ToolResultMessage {
	if inv.config.Concurrency <= 1 {
		return inv.dispatchSequential(ctx, calls, emit)
	}
	return inv.dispatchConcurrent(ctx, calls, emit)
}

func (inv *Invoker) dispatchSequential(ctx context.Context, calls []message.ToolCall, emit EventCallback) []*message.ToolResultMessage {
	out := make([]*message.ToolResultMessage, len(calls))
	for i, call := range calls {
		out[i] = inv.executeWithRetry(ctx, call, emit)
	}
	return out
}

func (inv *Invoker) dispatchConcurrent(ctx context.Context, calls []message.ToolCall, emit EventCallback) []*message.ToolResultMessage {
	out := make([]*message.ToolResultMessage, len(calls))
	sem := make(chan struct{}, inv.config.Concurrency)
	done := make(chan struct{})
	remaining := len(calls)
	if remaining == 0 {
		return out
	}

	for i, call := range calls {
		go func(idx int, c message.ToolCall) {
			sem <- struct{}{}
			defer func() { <-sem }()
			out[idx] = inv.executeWithRetry(ctx, c, emit)
			done <- struct{}{}
		}(i, call)
	}
	for range calls {
		<-done
	}
	return out
}

// errAttemptFailed signals backoff.RetryWithBackoff to retry; the actual
// failure content travels out-of-band via the last closure variable, since
// a failed tool call is a Result, not a Go error, by the time it reaches a
// ToolResultMessage.
var errAttemptFailed = errors.New("tool attempt failed")

func (inv *Invoker) executeWithRetry(ctx context.Context, call message.ToolCall, emit EventCallback) *message.ToolResultMessage {
	var last Result

	_, err := backoff.RetryWithBackoff(ctx, inv.config.RetryBackoff, inv.config.MaxAttempts, func(attempt int) (Result, error) {
		inv.emit(emit, Event{Kind: EventStarted, ToolName: call.ToolName, CallID: call.ID, Attempt: attempt})

		start := time.Now()
		result, timedOut := inv.executeOnce(ctx, call)
		elapsed := time.Since(start)
		last = result

		if !result.IsError {
			inv.emit(emit, Event{Kind: EventCompleted, ToolName: call.ToolName, CallID: call.ID, Attempt: attempt, Duration: elapsed})
			return result, nil
		}

		kind := EventFailed
		if timedOut {
			kind = EventTimeout
		}
		inv.emit(emit, Event{Kind: kind, ToolName: call.ToolName, CallID: call.ID, Attempt: attempt, Duration: elapsed})
		return result, errAttemptFailed
	})

	if err != nil && ctx.Err() != nil {
		last = Result{Content: "tool execution canceled", IsError: true}
	}
	return message.NewToolResult(call.ID, call.ToolName, last.Content, last.IsError)
}

func (inv *Invoker) executeOnce(ctx context.Context, call message.ToolCall) (Result, bool) {
	toolCtx, cancel := context.WithTimeout(ctx, inv.config.PerToolTimeout)
	defer cancel()

	type outcome struct{ result Result }
	resultCh := make(chan outcome, 1)

	go func() {
		resultCh <- outcome{result: inv.registry.Execute(toolCtx, call.ToolName, call.ArgumentsJSON)}
	}()

	select {
	case <-toolCtx.Done():
		timedOut := errors.Is(toolCtx.Err(), context.DeadlineExceeded)
		content := "tool execution canceled"
		if timedOut {
			content = fmt.Sprintf("tool execution timed out after %v", inv.config.PerToolTimeout)
		}
		return Result{Content: content, IsError: true}, timedOut
	case o := <-resultCh:
		return o.result, false
	}
}

func (inv *Invoker) emit(cb EventCallback, e Event) {
	if cb != nil {
		cb(e)
	}
}

// RoundTripGuard enforces a maximum number of model↔tool round trips
// within one Respond call, so a tool-calling loop that never converges
// cannot run forever.
type RoundTripGuard struct {
	max   int
	count int
}

// NewRoundTripGuard builds a guard with max trips (10 if max <= 0, the
// configurable default every agent starts with).
func NewRoundTripGuard(max int) *RoundTripGuard {
	if max <= 0 {
		max = 10
	}
	return &RoundTripGuard{max: max}
}

// Advance records one round trip and reports whether the limit has been
// reached.
func (g *RoundTripGuard) Advance() (exceeded bool) {
	g.count++
	return g.count > g.max
}

// Count returns the number of round trips recorded so far.
func (g *RoundTripGuard) Count() int { return g.count }
