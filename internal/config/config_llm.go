package config

// Config is the root of a laragent deployment's YAML/JSON5 configuration: a
// named set of provider credentials, the fallback order an Agent should try
// them in, tool-execution limits, and truncation policy.
type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	ToolExec   ToolExecConfig   `yaml:"tool_exec"`
	Truncation TruncationConfig `yaml:"truncation"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LLMConfig names every provider an Agent may use and the order to fall
// back through when the default fails.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`

	// FallbackChain specifies provider IDs to try if the default provider
	// fails, in order. Example: ["openai", "anthropic"].
	FallbackChain []string `yaml:"fallback_chain"`
}

// LLMProviderConfig is one entry in LLMConfig.Providers: the family name
// (openai/anthropic/google/bedrock), its credentials, and the model to use
// absent a per-call override.
type LLMProviderConfig struct {
	Family       string `yaml:"family"`
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
	Region       string `yaml:"region"` // bedrock only
}

// ToolExecConfig mirrors pkg/tools.ExecConfig's shape for YAML decoding;
// config.Load converts this into the real tools.ExecConfig.
type ToolExecConfig struct {
	Concurrency    int    `yaml:"concurrency"`
	PerToolTimeout string `yaml:"per_tool_timeout"`
	MaxAttempts    int    `yaml:"max_attempts"`
	RetryBackoff   string `yaml:"retry_backoff"`
}

// TruncationConfig mirrors pkg/truncate.Config's shape for YAML decoding.
type TruncationConfig struct {
	Strategy        string `yaml:"strategy"`
	KeepRecent      int    `yaml:"keep_recent"`
	MaxSummaryChars int    `yaml:"max_summary_chars"`
	SymbolWordLimit int    `yaml:"symbol_word_limit"`
}

// LoggingConfig controls the slog handler cmd/laragent-demo builds.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}
