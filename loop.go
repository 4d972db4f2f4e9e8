package laragent

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/MaestroError/laragent/internal/obslog"
	"github.com/MaestroError/laragent/pkg/message"
	"github.com/MaestroError/laragent/pkg/providers"
	"github.com/MaestroError/laragent/pkg/schema"
	"github.com/MaestroError/laragent/pkg/tools"
	"github.com/MaestroError/laragent/pkg/usage"
)

// Respond appends userInput to identity's history, drives the full
// model↔tool round-trip loop against the provider fallback chain, and
// returns the final assistant message once the model stops requesting
// tool calls. schemaType, if non-nil, requests structured output and
// Respond decodes the final text into a value of that type.
func (a *Agent) Respond(ctx context.Context, identity message.SessionIdentity, userInput string, schemaType reflect.Type) (message.Message, error) {
	log := obslog.WithSession(a.opts.Logger, a.Name, identity.Key())

	hist, err := a.history.Load(identity)
	if err != nil {
		return nil, newError(KindConfig, "load history", err)
	}
	a.seedInstructions(hist)
	a.hooks.fireBeforeResponse(ctx, hist)

	log.Debug("responding", "input_len", len(userInput))
	hist.Append(message.NewUserText(userInput))

	if a.truncator != nil {
		reduced, err := a.truncator.Apply(ctx, identity.Key(), hist.Messages)
		if err != nil {
			a.hooks.fireOnError(ctx, err)
			return nil, newError(KindConfig, "truncate history", err)
		}
		hist.Replace(reduced)
	}

	guard := tools.NewRoundTripGuard(a.opts.MaxRoundTrips)
	toolSpecs := a.toolSpecs()

	var reqSchema map[string]any
	if schemaType != nil {
		sch, err := schema.SchemaFor(schemaType)
		if err != nil {
			return nil, newError(KindConfig, "derive structured-output schema", err)
		}
		reqSchema = sch.Raw
	}

	// One cursor for the whole call: once a round trip commits to a
	// provider, every later round trip in the same turn stays pinned to it
	// rather than restarting the fallback search from the top.
	cursor := newFallbackCursor(a.opts.Providers, a.registry)

	for {
		resp, cfg, err := a.sendOnce(ctx, cursor, hist.Messages, toolSpecs, reqSchema)
		if err != nil {
			log.Error("provider round trip failed", "error", err)
			a.hooks.fireOnError(ctx, err)
			return nil, err
		}
		log.Debug("provider round trip complete", "provider", cfg.Name, "finish", resp.Finish)

		a.ledger.Record(usageRecord(identity, cfg, resp.Usage))

		if resp.Finish != providers.FinishToolCalls || len(resp.ToolCalls) == 0 {
			final, err := a.finalizeResponse(ctx, hist, resp, schemaType)
			if err != nil {
				a.hooks.fireOnError(ctx, err)
				return nil, err
			}
			if err := a.history.SaveHistory(hist); err != nil {
				return nil, newError(KindConfig, "persist history", err)
			}
			a.hooks.fireAfterResponse(ctx, final)
			return final, nil
		}

		callMsg := message.NewToolCall(resp.ToolCalls...)
		hist.Append(callMsg)

		if guard.Advance() {
			err := newError(KindLoopLimit, fmt.Sprintf("exceeded %d tool round trips", a.opts.MaxRoundTrips), ErrLoopLimit)
			a.hooks.fireOnError(ctx, err)
			return nil, err
		}

		results := a.runTools(ctx, resp.ToolCalls)
		for _, r := range results {
			hist.Append(r)
		}
		if err := a.history.SaveHistory(hist); err != nil {
			return nil, newError(KindConfig, "persist history", err)
		}
	}
}

// sendOnce formats and sends a single provider round trip against cursor,
// a fallback cursor scoped to the whole Respond call (never shared with any
// other in-flight Respond call, but shared across every round trip within
// this one so a mid-turn failover stays pinned for the rest of the turn).
func (a *Agent) sendOnce(ctx context.Context, cursor *fallbackCursor, msgs []message.Message, toolSpecs []providers.ToolSpec, reqSchema map[string]any) (providers.Response, ProviderConfig, error) {
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
		resp, err := driver.Send(ctx, payload)
		if err != nil {
			return result{}, err
		}
		a.hooks.fireAfterSend(ctx, resp)
		return result{resp: resp, cfg: cfg}, nil
	})
	return r.resp, r.cfg, err
}

func (a *Agent) toolSpecs() []providers.ToolSpec {
	all := a.tools.All()
	out := make([]providers.ToolSpec, 0, len(all))
	for _, t := range all {
		out = append(out, providers.ToolSpec{Name: t.Name, Description: t.Description, ParametersSchema: t.ParametersSchema})
	}
	return out
}

func (a *Agent) runTools(ctx context.Context, calls []message.ToolCall) []*message.ToolResultMessage {
	// BeforeToolExecution may veto a call; vetoed calls are filtered into a
	// synthetic error result rather than sent to the invoker.
	dispatchable := make([]message.ToolCall, 0, len(calls))
	vetoed := map[string]error{}
	for _, c := range calls {
		if err := a.hooks.fireBeforeTool(ctx, c); err != nil {
			vetoed[c.ID] = err
			continue
		}
		dispatchable = append(dispatchable, c)
	}

	dispatched := a.invoker.Dispatch(ctx, dispatchable, a.hooks.ToolEvents)

	out := make([]*message.ToolResultMessage, 0, len(calls))
	dispatchedByID := map[string]*message.ToolResultMessage{}
	for _, r := range dispatched {
		dispatchedByID[r.ToolCallID] = r
	}
	for _, c := range calls {
		if err, ok := vetoed[c.ID]; ok {
			out = append(out, message.NewToolResult(c.ID, c.ToolName, err.Error(), true))
			continue
		}
		r := dispatchedByID[c.ID]
		a.hooks.fireAfterTool(ctx, r)
		out = append(out, r)
	}
	return out
}

// finalizeResponse builds the final AssistantMessage for a turn, running
// structured-output parsing when schemaType is non-nil.
func (a *Agent) finalizeResponse(ctx context.Context, hist *message.ChatHistory, resp providers.Response, schemaType reflect.Type) (message.Message, error) {
	text := resp.ContentText
	if schemaType != nil {
		var err error
		text, err = a.parseStructured(ctx, text, schemaType)
		if err != nil {
			return nil, err
		}
	}

	usageCopy := resp.Usage
	final := message.NewAssistant(resp.ContentText, &usageCopy)
	hist.Append(final)
	if schemaType != nil {
		// The decoded structured value travels in Metadata so callers can
		// retrieve it without re-parsing the text a second time.
		final.Meta = map[string]any{"structured_output": text}
	}
	return final, nil
}

// parseStructured strips a fenced code block if present, decodes the JSON,
// validates it against schemaType's derived schema, and coerces it into a
// Go value.
func (a *Agent) parseStructured(ctx context.Context, raw string, schemaType reflect.Type) (any, error) {
	if a.hooks.BeforeStructuredOutput != nil {
		var err error
		raw, err = a.hooks.BeforeStructuredOutput(ctx, raw)
		if err != nil {
			return nil, newError(KindStructuredOutputParse, "BeforeStructuredOutput hook", err)
		}
	}

	cleaned := stripFencedCodeBlock(raw)

	var decoded any
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return nil, newError(KindStructuredOutputParse, "decode JSON", err)
	}

	sch, err := schema.SchemaFor(schemaType)
	if err != nil {
		return nil, newError(KindConfig, "derive schema", err)
	}
	if err := sch.Validate(decoded); err != nil {
		return nil, newError(KindStructuredOutputParse, "validate against schema", err)
	}

	coerced, err := schema.Coerce(decoded, schemaType)
	if err != nil {
		return nil, newError(KindStructuredOutputParse, "coerce to target type", err)
	}
	return coerced, nil
}

// stripFencedCodeBlock removes a single leading/trailing ``` or ```json
// fence, the common wrapper a model adds around JSON output even when
// asked not to.
func stripFencedCodeBlock(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}

func usageRecord(identity message.SessionIdentity, cfg ProviderConfig, u message.Usage) usage.Record {
	return usage.Record{
		AgentName:        identity.AgentName,
		Model:            cfg.Options.Model,
		Provider:         cfg.Name,
		UserID:           identity.UserID,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}
