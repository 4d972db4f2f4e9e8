package laragent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MaestroError/laragent/pkg/providers"
)

// fallbackCursor walks an agent's provider chain for a single Respond
// call. It is constructed once at the top of Respond/RespondStreamed and
// threaded into every round trip of that call, so a turn that fails over
// mid-way stays pinned to the provider it committed to rather than
// restarting the search on the next round trip. It is never stored on the
// Agent itself, so concurrent calls never share or race over which
// provider index is "current" — each call gets its own cursor starting at
// index 0, and that cursor never survives past the call that created it.
type fallbackCursor struct {
	chain    []ProviderConfig
	registry *providers.Registry
	index    int
}

func newFallbackCursor(chain []ProviderConfig, registry *providers.Registry) *fallbackCursor {
	return &fallbackCursor{chain: chain, registry: registry}
}

func (c *fallbackCursor) exhausted() bool {
	return c.index >= len(c.chain)
}

// current resolves the cursor's current position to a driver and its
// merged options.
func (c *fallbackCursor) current() (providers.Driver, ProviderConfig, error) {
	if c.exhausted() {
		return nil, ProviderConfig{}, ErrNoProviders
	}
	cfg := c.chain[c.index]
	driver, err := c.registry.Get(cfg.Name)
	if err != nil {
		return nil, cfg, newError(KindConfig, fmt.Sprintf("provider %q not registered", cfg.Name), err)
	}
	return driver, cfg, nil
}

// advance moves to the next provider in the chain.
func (c *fallbackCursor) advance() { c.index++ }

// send runs fn (a Send or SendStreamed call) against the current provider,
// advancing and retrying against the next provider whenever fn's error
// reports ShouldFailover, until the chain is exhausted or fn succeeds.
func sendWithFallback[T any](ctx context.Context, cursor *fallbackCursor, fn func(providers.Driver, ProviderConfig) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for !cursor.exhausted() {
		driver, cfg, err := cursor.current()
		if err != nil {
			return zero, err
		}

		result, err := fn(driver, cfg)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var pErr *providers.Error
		if errors.As(err, &pErr) && pErr.ShouldFailover() {
			cursor.advance()
			if !cursor.exhausted() {
				select {
				case <-ctx.Done():
					return zero, ctx.Err()
				case <-time.After(retryBackoffFloor):
				}
			}
			continue
		}
		// Not a failover-eligible error: no point trying the next
		// provider with the same malformed request.
		return zero, classifyProviderErr(err)
	}

	if lastErr == nil {
		return zero, ErrNoProviders
	}
	return zero, classifyProviderErr(lastErr)
}
