// Package laragent implements a provider-agnostic LLM agent runtime: one
// Agent type orchestrates message history, structured-output parsing,
// tool-calling round trips, provider fallback, and context truncation
// across OpenAI, Anthropic, Google, and Bedrock-hosted models.
package laragent

import (
	"github.com/MaestroError/laragent/pkg/history"
	"github.com/MaestroError/laragent/pkg/message"
	"github.com/MaestroError/laragent/pkg/providers"
	"github.com/MaestroError/laragent/pkg/tools"
	"github.com/MaestroError/laragent/pkg/truncate"
	"github.com/MaestroError/laragent/pkg/usage"
)

// Agent binds a name, a provider fallback chain, a tool registry, and
// persistence/usage/truncation machinery into one callable unit. Agents
// are safe for concurrent Respond/RespondStreamed calls: per-call state
// (the fallback cursor, the round-trip guard) is never shared across
// calls, per fallback.go's design.
type Agent struct {
	Name string

	registry *providers.Registry
	opts     Options
	hooks    Hooks

	tools     *tools.Registry
	invoker   *tools.Invoker
	history   *history.Store
	ledger    *usage.Ledger
	truncator *truncate.Engine
}

// New builds an Agent. registry must already have every provider named in
// opts.Providers registered. toolRegistry, historyStore, and ledger may be
// nil; reasonable zero-value equivalents are substituted (an empty tool
// registry, an in-memory-only history store, an unregistered usage
// ledger).
func New(name string, registry *providers.Registry, toolRegistry *tools.Registry, historyStore *history.Store, ledger *usage.Ledger, opts Options, hooks Hooks) *Agent {
	merged := mergeOptions(DefaultOptions(), opts)
	if toolRegistry == nil {
		toolRegistry = tools.NewRegistry()
	}
	if historyStore == nil {
		historyStore = history.NewStore(history.NewMemoryDriver())
	}
	if ledger == nil {
		ledger = usage.NewLedger(nil)
	}

	var truncator *truncate.Engine
	if merged.Truncation.Strategy != "" {
		truncator = truncate.NewEngine(merged.Truncation, nil, nil, truncateBus{hooks})
	}

	return &Agent{
		Name:      name,
		registry:  registry,
		opts:      merged,
		hooks:     hooks,
		tools:     toolRegistry,
		invoker:   tools.NewInvoker(toolRegistry, merged.ToolExec),
		history:   historyStore,
		ledger:    ledger,
		truncator: truncator,
	}
}

// RegisterTool adds a callable tool to this agent's registry.
func (a *Agent) RegisterTool(t tools.Tool) { a.tools.Register(t) }

// AddMessage appends msg directly to identity's history and persists the
// result, the low-level counterpart to Respond for callers assembling a
// turn by hand (e.g. seeding a transcript before the first call).
func (a *Agent) AddMessage(identity message.SessionIdentity, msg message.Message) error {
	return a.history.Append(identity, msg)
}

// LastMessage returns the most recently appended message in identity's
// history, if any.
func (a *Agent) LastMessage(identity message.SessionIdentity) (message.Message, bool, error) {
	return a.history.Last(identity)
}

// ChatHistory returns identity's full chat history.
func (a *Agent) ChatHistory(identity message.SessionIdentity) (*message.ChatHistory, error) {
	return a.history.Load(identity)
}

// Clear discards identity's history, both cached and persisted.
func (a *Agent) Clear(identity message.SessionIdentity) error {
	return a.history.Clear(identity)
}

// seedInstructions re-injects a fresh copy of a.opts.Instructions as the
// leading SystemMessage of hist, stripping any leading system message(s)
// already present (e.g. from a previous call's injection, or a differently
// worded instructions string loaded from a stale persisted history). A
// blank Instructions leaves hist untouched, so an agent can opt out of a
// system message entirely.
func (a *Agent) seedInstructions(hist *message.ChatHistory) {
	if a.opts.Instructions == "" {
		return
	}
	i := 0
	for i < len(hist.Messages) {
		if _, ok := hist.Messages[i].(*message.SystemMessage); !ok {
			break
		}
		i++
	}
	fresh := make([]message.Message, 0, len(hist.Messages)-i+1)
	fresh = append(fresh, message.NewSystem(a.opts.Instructions))
	fresh = append(fresh, hist.Messages[i:]...)
	hist.Replace(fresh)
}

// SetTruncationAdapters wires a Summariser/Symboliser into the agent's
// truncation engine after construction, since they typically need a
// reference back to the agent itself (a sub-call through the same
// provider chain) that isn't available at New time.
func (a *Agent) SetTruncationAdapters(summariser truncate.Summariser, symboliser truncate.Symboliser) {
	if a.opts.Truncation.Strategy != "" {
		a.truncator = truncate.NewEngine(a.opts.Truncation, summariser, symboliser, truncateBus{a.hooks})
	}
}

// truncateBus adapts Hooks to truncate.EventBus, forwarding
// ChatHistoryTruncated notifications to Hooks.OnTruncation.
type truncateBus struct{ hooks Hooks }

func (b truncateBus) Dispatch(event any) {
	if ev, ok := event.(truncate.ChatHistoryTruncated); ok {
		b.hooks.fireOnTruncation(ev)
	}
}
