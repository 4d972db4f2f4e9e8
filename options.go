package laragent

import (
	"log/slog"
	"time"

	"github.com/MaestroError/laragent/pkg/providers"
	"github.com/MaestroError/laragent/pkg/tools"
	"github.com/MaestroError/laragent/pkg/truncate"
)

// ProviderConfig names one entry in an agent's provider fallback chain: a
// registered driver plus the per-call options to format requests with.
type ProviderConfig struct {
	Name    string // key into a providers.Registry
	Options providers.Options
}

// Options configures an Agent. Every field has a documented default
// applied by DefaultOptions, and a caller-supplied Options is merged over
// the default with "override wins, zero value means unset" semantics —
// the same merge rule RuntimeOptions uses.
type Options struct {
	// Providers is the ordered fallback chain: Respond tries Providers[0]
	// first, advancing only on a *providers.Error that reports
	// ShouldFailover.
	Providers []ProviderConfig

	// Instructions is the agent's system prompt. A fresh SystemMessage
	// carrying this text is re-inserted at the top of history on every
	// Respond/RespondStreamed call, replacing whatever system message(s)
	// the persisted history already led with. Leave empty to run without
	// a system message at all.
	Instructions string

	MaxRoundTrips int
	ToolExec      tools.ExecConfig
	Truncation    truncate.Config

	Logger *slog.Logger
}

// DefaultOptions returns the baseline configuration: one sequential round
// trip guard of 10, a sequential tool invoker, summarising truncation at
// 10 kept messages, a generic system prompt, and slog.Default() as the
// logger.
func DefaultOptions() Options {
	return Options{
		Instructions:  "You are a helpful assistant.",
		MaxRoundTrips: 10,
		ToolExec:      tools.DefaultExecConfig(),
		Truncation:    truncate.DefaultConfig(),
		Logger:        slog.Default(),
	}
}

// mergeOptions applies override's set fields onto base, returning the
// result. Zero-valued fields in override never replace a set field in
// base.
func mergeOptions(base, override Options) Options {
	merged := base
	if len(override.Providers) > 0 {
		merged.Providers = override.Providers
	}
	if override.Instructions != "" {
		merged.Instructions = override.Instructions
	}
	if override.MaxRoundTrips > 0 {
		merged.MaxRoundTrips = override.MaxRoundTrips
	}
	if override.ToolExec.Concurrency > 0 {
		merged.ToolExec = override.ToolExec
	}
	if override.Truncation.Strategy != "" {
		merged.Truncation = override.Truncation
	}
	if override.Logger != nil {
		merged.Logger = override.Logger
	}
	return merged
}

// retryBackoffFloor is the minimum backoff the fallback cursor waits
// between exhausting one provider and trying the next, avoiding a tight
// loop against a provider that is failing instantly.
const retryBackoffFloor = 200 * time.Millisecond
