package laragent

import (
	"errors"
	"fmt"

	"github.com/MaestroError/laragent/pkg/providers"
)

// Sentinel errors returned by Respond/RespondStreamed in situations with
// no further context to attach.
var (
	ErrNoProviders   = errors.New("laragent: no provider configured")
	ErrLoopLimit     = errors.New("laragent: tool round-trip limit exceeded")
	ErrContextClosed = errors.New("laragent: context cancelled")
)

// Kind classifies why a call failed, the seven-way taxonomy every error
// this package returns belongs to.
type Kind string

const (
	KindConfig                Kind = "config"
	KindTransport             Kind = "transport"
	KindProvider              Kind = "provider"
	KindToolValidation        Kind = "tool_validation"
	KindToolExecution         Kind = "tool_execution"
	KindStructuredOutputParse Kind = "structured_output_parse"
	KindLoopLimit             Kind = "loop_limit"
)

// Error wraps any failure surfaced by this package with a Kind so callers
// can branch on category without string-matching a message, the same
// classify-don't-parse discipline the tool/loop error taxonomy applies.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("laragent: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("laragent: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// classifyProviderErr folds a *providers.Error into this package's Kind
// taxonomy, so callers never need to import pkg/providers just to inspect
// an error returned from Respond.
func classifyProviderErr(err error) *Error {
	var pErr *providers.Error
	if errors.As(err, &pErr) {
		return newError(KindProvider, fmt.Sprintf("%s call failed", pErr.Provider), err)
	}
	return newError(KindTransport, "provider call failed", err)
}

// IsRetryable reports whether retrying the same Respond call (without
// advancing the fallback cursor) has a chance of succeeding.
func IsRetryable(err error) bool {
	var pErr *providers.Error
	if errors.As(err, &pErr) {
		return pErr.Retryable()
	}
	return false
}
