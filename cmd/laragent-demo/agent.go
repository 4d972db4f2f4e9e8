package main

import (
	"context"
	"fmt"
	"time"

	"github.com/MaestroError/laragent"
	"github.com/MaestroError/laragent/internal/backoff"
	"github.com/MaestroError/laragent/internal/config"
	"github.com/MaestroError/laragent/internal/obslog"
	"github.com/MaestroError/laragent/pkg/providers"
	"github.com/MaestroError/laragent/pkg/tools"
	"github.com/MaestroError/laragent/pkg/truncate"
)

// buildAgent loads cfgPath and wires a laragent.Agent with every provider
// family it names registered against its real SDK client.
func buildAgent(ctx context.Context, cfgPath string) (*laragent.Agent, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := obslog.New(obslog.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	registry := providers.NewRegistry()
	for name, pc := range cfg.LLM.Providers {
		driver, err := buildDriver(ctx, pc)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		registry.Register(name, driver)
	}

	chain := make([]laragent.ProviderConfig, 0, 1+len(cfg.LLM.FallbackChain))
	chain = append(chain, laragent.ProviderConfig{
		Name:    cfg.LLM.DefaultProvider,
		Options: providerOptions(cfg.LLM.Providers[cfg.LLM.DefaultProvider]),
	})
	for _, name := range cfg.LLM.FallbackChain {
		chain = append(chain, laragent.ProviderConfig{Name: name, Options: providerOptions(cfg.LLM.Providers[name])})
	}

	opts := laragent.Options{
		Providers:  chain,
		ToolExec:   toolExecFromConfig(cfg.ToolExec),
		Truncation: truncationFromConfig(cfg.Truncation),
		Logger:     logger,
	}

	agent := laragent.New("laragent-demo", registry, nil, nil, nil, opts, laragent.Hooks{
		OnEngineError: func(_ context.Context, err error) { logger.Error("engine error", "error", err) },
		OnTruncation: func(ev truncate.ChatHistoryTruncated) {
			logger.Info("history truncated", "strategy", ev.Strategy, "dropped", ev.DroppedCount, "kept", ev.KeptCount)
		},
	})
	return agent, nil
}

func buildDriver(ctx context.Context, pc config.LLMProviderConfig) (providers.Driver, error) {
	switch pc.Family {
	case "openai":
		return providers.NewOpenAIDriver(pc.APIKey, pc.BaseURL), nil
	case "anthropic":
		return providers.NewAnthropicDriver(pc.APIKey), nil
	case "google":
		return providers.NewGoogleDriver(ctx, pc.APIKey)
	case "bedrock":
		return providers.NewBedrockDriver(ctx, pc.Region)
	default:
		return nil, fmt.Errorf("unknown provider family %q", pc.Family)
	}
}

func providerOptions(pc config.LLMProviderConfig) providers.Options {
	return providers.Options{Model: pc.DefaultModel, APIKey: pc.APIKey, APIURL: pc.BaseURL}
}

func toolExecFromConfig(c config.ToolExecConfig) tools.ExecConfig {
	cfg := tools.DefaultExecConfig()
	if c.Concurrency > 0 {
		cfg.Concurrency = c.Concurrency
	}
	if d, err := time.ParseDuration(c.PerToolTimeout); err == nil && d > 0 {
		cfg.PerToolTimeout = d
	}
	if c.MaxAttempts > 0 {
		cfg.MaxAttempts = c.MaxAttempts
	}
	if d, err := time.ParseDuration(c.RetryBackoff); err == nil && d > 0 {
		cfg.RetryBackoff = backoff.BackoffPolicy{InitialMs: float64(d.Milliseconds()), MaxMs: float64(d.Milliseconds() * 10), Factor: 2, Jitter: 0.1}
	}
	return cfg
}

func truncationFromConfig(c config.TruncationConfig) truncate.Config {
	cfg := truncate.DefaultConfig()
	if c.Strategy != "" {
		cfg.Strategy = truncate.Strategy(c.Strategy)
	}
	if c.KeepRecent > 0 {
		cfg.KeepRecent = c.KeepRecent
	}
	if c.MaxSummaryChars > 0 {
		cfg.MaxSummaryChars = c.MaxSummaryChars
	}
	if c.SymbolWordLimit > 0 {
		cfg.SymbolWordLimit = c.SymbolWordLimit
	}
	return cfg
}
