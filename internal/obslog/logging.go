// Package obslog builds the *slog.Logger an Agent is configured with: level
// and format selection, API-key redaction, and session-scoped attrs.
package obslog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Config controls New's handler selection.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "info".
	Level string

	// Format is "json" or "text". Defaults to "json".
	Format string

	// Output defaults to os.Stdout.
	Output io.Writer

	AddSource bool
}

// defaultRedactPatterns catches the provider API keys an agent's
// ProviderConfig carries, so a careless %v on an Options value never leaks
// a credential into a log line.
var defaultRedactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
	regexp.MustCompile(`(?i)(bearer|api[_-]?key)[\s:=]+["']?([a-zA-Z0-9_\-.]{16,})["']?`),
}

// redactingHandler wraps an slog.Handler, replacing string attribute values
// that match a secret pattern before they reach the underlying writer.
type redactingHandler struct {
	slog.Handler
}

func (h redactingHandler) Handle(ctx context.Context, r slog.Record) error {
	redacted := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		redacted.AddAttrs(redactAttr(a))
		return true
	})
	return h.Handler.Handle(ctx, redacted)
}

func (h redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = redactAttr(a)
	}
	return redactingHandler{h.Handler.WithAttrs(out)}
}

func redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString {
		return a
	}
	s := a.Value.String()
	for _, re := range defaultRedactPatterns {
		if re.MatchString(s) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}
	return a
}

// New builds a *slog.Logger from cfg, defaulting to info-level JSON on
// stdout with redaction of anything that looks like a provider API key.
func New(cfg Config) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

	var base slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		base = slog.NewTextHandler(cfg.Output, opts)
	} else {
		base = slog.NewJSONHandler(cfg.Output, opts)
	}

	return slog.New(redactingHandler{base})
}

// WithSession returns a child logger annotated with the fields a laragent
// session's log lines should always carry.
func WithSession(l *slog.Logger, agentName, sessionKey string) *slog.Logger {
	return l.With(slog.String("agent", agentName), slog.String("session", sessionKey))
}
