package laragent

import (
	"context"
	"reflect"

	"github.com/MaestroError/laragent/internal/obslog"
	"github.com/MaestroError/laragent/pkg/message"
	"github.com/MaestroError/laragent/pkg/providers"
	"github.com/MaestroError/laragent/pkg/schema"
	"github.com/MaestroError/laragent/pkg/tools"
)

// StreamEvent is one unit of a RespondStreamed call: either a text delta,
// a completed tool result, the final assistant message, or a terminal
// error.
type StreamEvent struct {
	TextDelta  string
	ToolResult *message.ToolResultMessage
	Final      message.Message
	Err        error
}

// RespondStreamed behaves like Respond but streams text deltas as they
// arrive from the provider, still driving the same tool round-trip loop
// internally — a caller sees every intermediate tool round trip's text
// output, not just the final one.
func (a *Agent) RespondStreamed(ctx context.Context, identity message.SessionIdentity, userInput string, schemaType reflect.Type) <-chan StreamEvent {
	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		a.respondStreamed(ctx, identity, userInput, schemaType, out)
	}()
	return out
}

func (a *Agent) respondStreamed(ctx context.Context, identity message.SessionIdentity, userInput string, schemaType reflect.Type, out chan<- StreamEvent) {
	log := obslog.WithSession(a.opts.Logger, a.Name, identity.Key())
	log.Debug("responding (streamed)", "input_len", len(userInput))

	hist, err := a.history.Load(identity)
	if err != nil {
		out <- StreamEvent{Err: newError(KindConfig, "load history", err)}
		return
	}
	a.seedInstructions(hist)
	a.hooks.fireBeforeResponse(ctx, hist)
	hist.Append(message.NewUserText(userInput))

	if a.truncator != nil {
		reduced, err := a.truncator.Apply(ctx, identity.Key(), hist.Messages)
		if err != nil {
			out <- StreamEvent{Err: newError(KindConfig, "truncate history", err)}
			return
		}
		hist.Replace(reduced)
	}

	guard := tools.NewRoundTripGuard(a.opts.MaxRoundTrips)
	toolSpecs := a.toolSpecs()

	var reqSchema map[string]any
	if schemaType != nil {
		sch, err := schema.SchemaFor(schemaType)
		if err != nil {
			out <- StreamEvent{Err: newError(KindConfig, "derive structured-output schema", err)}
			return
		}
		reqSchema = sch.Raw
	}

	cursor := newFallbackCursor(a.opts.Providers, a.registry)

	for {
		resp, cfg, err := a.sendStreamedOnce(ctx, cursor, hist.Messages, toolSpecs, reqSchema, out)
		if err != nil {
			a.hooks.fireOnError(ctx, err)
			out <- StreamEvent{Err: err}
			return
		}
		a.ledger.Record(usageRecord(identity, cfg, resp.Usage))

		if resp.Finish != providers.FinishToolCalls || len(resp.ToolCalls) == 0 {
			final, err := a.finalizeResponse(ctx, hist, resp, schemaType)
			if err != nil {
				a.hooks.fireOnError(ctx, err)
				out <- StreamEvent{Err: err}
				return
			}
			if err := a.history.SaveHistory(hist); err != nil {
				out <- StreamEvent{Err: newError(KindConfig, "persist history", err)}
				return
			}
			a.hooks.fireAfterResponse(ctx, final)
			out <- StreamEvent{Final: final}
			return
		}

		hist.Append(message.NewToolCall(resp.ToolCalls...))

		if guard.Advance() {
			out <- StreamEvent{Err: newError(KindLoopLimit, "exceeded tool round trips", ErrLoopLimit)}
			return
		}

		for _, r := range a.runTools(ctx, resp.ToolCalls) {
			hist.Append(r)
			out <- StreamEvent{ToolResult: r}
		}
		if err := a.history.SaveHistory(hist); err != nil {
			out <- StreamEvent{Err: newError(KindConfig, "persist history", err)}
			return
		}
	}
}

func (a *Agent) sendStreamedOnce(ctx context.Context, cursor *fallbackCursor, msgs []message.Message, toolSpecs []providers.ToolSpec, reqSchema map[string]any, out chan<- StreamEvent) (providers.Response, ProviderConfig, error) {
	type result struct {
		resp providers.Response
		cfg  ProviderConfig
	}

	r, err := sendWithFallback(ctx, cursor, func(driver providers.Driver, cfg ProviderConfig) (result, error) {
		req := providers.Request{Messages: msgs, Tools: toolSpecs, Schema: reqSchema, Options: cfg.Options}
		if err := a.hooks.fireBeforeSend(ctx, req); err != nil {
			return result{}, err
		}
		payload, err := driver.Format(req)
		if err != nil {
			return result{}, newError(KindConfig, "format provider request", err)
		}
		chunks, err := driver.SendStreamed(ctx, payload)
		if err != nil {
			return result{}, err
		}

		var acc providers.Response
		var toolCalls []message.ToolCall
		for chunk := range chunks {
			if chunk.Err != nil {
				return result{}, chunk.Err
			}
			if chunk.TextDelta != "" {
				acc.ContentText += chunk.TextDelta
				out <- StreamEvent{TextDelta: chunk.TextDelta}
			}
			if chunk.ToolCall != nil {
				toolCalls = append(toolCalls, *chunk.ToolCall)
			}
			if chunk.Usage != nil {
				acc.Usage = *chunk.Usage
			}
			if chunk.Done {
				acc.Finish = chunk.Finish
			}
		}
		acc.ToolCalls = toolCalls
		a.hooks.fireAfterSend(ctx, acc)
		return result{resp: acc, cfg: cfg}, nil
	})
	return r.resp, r.cfg, err
}
