// Package usage implements the UsageLedger: an append-only, concurrency-safe
// log of token usage per provider call, filterable by model/provider/
// user/time, with Prometheus counters mirrored alongside the raw records.
package usage

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Record is one entry in the ledger: the token accounting for a single
// provider call.
type Record struct {
	RecordID         string
	AgentName        string
	Model            string
	Provider         string
	UserID           string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	RecordedAt       time.Time
}

// Filter narrows a ledger query. Zero-value fields are ignored.
type Filter struct {
	Model     string
	Provider  string
	UserID    string
	Since     time.Time
	Until     time.Time
}

func (f Filter) matches(r Record) bool {
	if f.Model != "" && r.Model != f.Model {
		return false
	}
	if f.Provider != "" && r.Provider != f.Provider {
		return false
	}
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if !f.Since.IsZero() && r.RecordedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && r.RecordedAt.After(f.Until) {
		return false
	}
	return true
}

// Ledger is an append-only usage log, safe for concurrent writers.
type Ledger struct {
	mu      sync.RWMutex
	records []Record

	tokenCounter *prometheus.CounterVec
}

// NewLedger builds an empty ledger. If reg is non-nil, a
// laragent_tokens_total counter vector (labelled provider, model, kind) is
// registered against it.
func NewLedger(reg prometheus.Registerer) *Ledger {
	l := &Ledger{}
	l.tokenCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "laragent_tokens_total",
		Help: "Cumulative tokens recorded by the usage ledger.",
	}, []string{"provider", "model", "kind"})
	if reg != nil {
		_ = reg.Register(l.tokenCounter)
	}
	return l
}

// Record appends a usage entry. RecordID and RecordedAt are stamped here if
// unset, so callers never need to generate them.
func (l *Ledger) Record(r Record) Record {
	if r.RecordID == "" {
		r.RecordID = "usage_" + uuid.NewString()
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now().UTC()
	}

	l.mu.Lock()
	l.records = append(l.records, r)
	l.mu.Unlock()

	if l.tokenCounter != nil {
		l.tokenCounter.WithLabelValues(r.Provider, r.Model, "prompt").Add(float64(r.PromptTokens))
		l.tokenCounter.WithLabelValues(r.Provider, r.Model, "completion").Add(float64(r.CompletionTokens))
		l.tokenCounter.WithLabelValues(r.Provider, r.Model, "total").Add(float64(r.TotalTokens))
	}
	return r
}

// Query returns every record matching f, oldest first.
func (l *Ledger) Query(f Filter) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Record, 0, len(l.records))
	for _, r := range l.records {
		if f.matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// Totals sums prompt/completion/total tokens across every record matching
// f.
func (l *Ledger) Totals(f Filter) Record {
	var total Record
	for _, r := range l.Query(f) {
		total.PromptTokens += r.PromptTokens
		total.CompletionTokens += r.CompletionTokens
		total.TotalTokens += r.TotalTokens
	}
	return total
}
