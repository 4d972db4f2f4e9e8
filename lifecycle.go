package laragent

import (
	"context"

	"github.com/MaestroError/laragent/pkg/message"
	"github.com/MaestroError/laragent/pkg/providers"
	"github.com/MaestroError/laragent/pkg/tools"
	"github.com/MaestroError/laragent/pkg/truncate"
)

// Hooks lets a caller observe and, where noted, veto steps of a Respond
// call. Every hook is optional; a nil hook is simply skipped. Hooks run
// synchronously on the calling goroutine in the order named here.
type Hooks struct {
	// BeforeSend runs once per provider round trip, just before the
	// formatted request is sent. Returning an error aborts the call.
	BeforeSend func(ctx context.Context, req providers.Request) error

	// AfterSend runs once per provider round trip, right after Send
	// returns, before the response is interpreted.
	AfterSend func(ctx context.Context, resp providers.Response)

	// BeforeResponse runs before the Respond call begins processing the
	// user's new message against history.
	BeforeResponse func(ctx context.Context, history *message.ChatHistory)

	// AfterResponse runs once per Respond call, after the final
	// AssistantMessage has been appended to history.
	AfterResponse func(ctx context.Context, final message.Message)

	// BeforeToolExecution runs once per tool call, before dispatch.
	// Returning an error skips execution and records it as the tool
	// result.
	BeforeToolExecution func(ctx context.Context, call message.ToolCall) error

	// AfterToolExecution runs once per tool call, after the result is
	// known.
	AfterToolExecution func(ctx context.Context, result *message.ToolResultMessage)

	// BeforeStructuredOutput runs just before a final assistant text is
	// parsed against a requested schema.
	BeforeStructuredOutput func(ctx context.Context, raw string) (string, error)

	// OnEngineError runs whenever Respond is about to return a non-nil
	// error, letting the caller log or annotate it without altering it.
	OnEngineError func(ctx context.Context, err error)

	// ToolEvents receives every tool lifecycle event the invoker emits.
	ToolEvents tools.EventCallback

	// OnTruncation runs whenever the truncation engine reduces a history.
	OnTruncation func(event truncate.ChatHistoryTruncated)
}

func (h Hooks) fireBeforeSend(ctx context.Context, req providers.Request) error {
	if h.BeforeSend == nil {
		return nil
	}
	return h.BeforeSend(ctx, req)
}

func (h Hooks) fireAfterSend(ctx context.Context, resp providers.Response) {
	if h.AfterSend != nil {
		h.AfterSend(ctx, resp)
	}
}

func (h Hooks) fireBeforeResponse(ctx context.Context, history *message.ChatHistory) {
	if h.BeforeResponse != nil {
		h.BeforeResponse(ctx, history)
	}
}

func (h Hooks) fireAfterResponse(ctx context.Context, final message.Message) {
	if h.AfterResponse != nil {
		h.AfterResponse(ctx, final)
	}
}

func (h Hooks) fireBeforeTool(ctx context.Context, call message.ToolCall) error {
	if h.BeforeToolExecution == nil {
		return nil
	}
	return h.BeforeToolExecution(ctx, call)
}

func (h Hooks) fireAfterTool(ctx context.Context, result *message.ToolResultMessage) {
	if h.AfterToolExecution != nil {
		h.AfterToolExecution(ctx, result)
	}
}

func (h Hooks) fireOnError(ctx context.Context, err error) {
	if h.OnEngineError != nil && err != nil {
		h.OnEngineError(ctx, err)
	}
}

func (h Hooks) fireOnTruncation(event truncate.ChatHistoryTruncated) {
	if h.OnTruncation != nil {
		h.OnTruncation(event)
	}
}
