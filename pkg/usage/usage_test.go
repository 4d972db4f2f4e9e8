package usage

import (
	"testing"
	"time"
)

func TestLedgerRecordStampsIDAndTimestamp(t *testing.T) {
	l := NewLedger(nil)
	r := l.Record(Record{Provider: "openai", Model: "gpt-4o", PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})

	if r.RecordID == "" {
		t.Error("RecordID was not stamped")
	}
	if r.RecordedAt.IsZero() {
		t.Error("RecordedAt was not stamped")
	}
}

func TestLedgerRecordPreservesCallerSuppliedIDAndTimestamp(t *testing.T) {
	l := NewLedger(nil)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := l.Record(Record{RecordID: "usage_fixed", RecordedAt: ts, Provider: "openai"})

	if r.RecordID != "usage_fixed" {
		t.Errorf("RecordID = %q, want %q", r.RecordID, "usage_fixed")
	}
	if !r.RecordedAt.Equal(ts) {
		t.Errorf("RecordedAt = %v, want %v", r.RecordedAt, ts)
	}
}

func TestLedgerQueryFiltersByModelProviderUser(t *testing.T) {
	l := NewLedger(nil)
	l.Record(Record{Provider: "openai", Model: "gpt-4o", UserID: "alice", TotalTokens: 1})
	l.Record(Record{Provider: "anthropic", Model: "claude", UserID: "bob", TotalTokens: 2})
	l.Record(Record{Provider: "openai", Model: "gpt-4o-mini", UserID: "alice", TotalTokens: 3})

	byProvider := l.Query(Filter{Provider: "openai"})
	if len(byProvider) != 2 {
		t.Errorf("Query(Provider=openai) = %d records, want 2", len(byProvider))
	}

	byModel := l.Query(Filter{Model: "gpt-4o"})
	if len(byModel) != 1 {
		t.Errorf("Query(Model=gpt-4o) = %d records, want 1", len(byModel))
	}

	byUser := l.Query(Filter{UserID: "bob"})
	if len(byUser) != 1 || byUser[0].Provider != "anthropic" {
		t.Errorf("Query(UserID=bob) = %+v, want a single anthropic record", byUser)
	}
}

func TestLedgerQueryFiltersByTimeRange(t *testing.T) {
	l := NewLedger(nil)
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mid := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	late := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	l.Record(Record{RecordedAt: early, TotalTokens: 1})
	l.Record(Record{RecordedAt: mid, TotalTokens: 2})
	l.Record(Record{RecordedAt: late, TotalTokens: 3})

	got := l.Query(Filter{Since: early.Add(time.Hour), Until: late.Add(-time.Hour)})
	if len(got) != 1 || got[0].TotalTokens != 2 {
		t.Errorf("Query(Since,Until) = %+v, want only the mid record", got)
	}
}

func TestLedgerQueryReturnsEmptyNotNilWhenNoRecords(t *testing.T) {
	l := NewLedger(nil)
	got := l.Query(Filter{})
	if got == nil {
		t.Error("Query on an empty ledger returned nil, want an empty slice")
	}
	if len(got) != 0 {
		t.Errorf("len(got) = %d, want 0", len(got))
	}
}

func TestLedgerTotalsSumsAcrossMatchingRecords(t *testing.T) {
	l := NewLedger(nil)
	l.Record(Record{Provider: "openai", PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
	l.Record(Record{Provider: "openai", PromptTokens: 20, CompletionTokens: 8, TotalTokens: 28})
	l.Record(Record{Provider: "anthropic", PromptTokens: 100, CompletionTokens: 100, TotalTokens: 200})

	totals := l.Totals(Filter{Provider: "openai"})
	if totals.PromptTokens != 30 || totals.CompletionTokens != 13 || totals.TotalTokens != 43 {
		t.Errorf("Totals = %+v, want Prompt=30 Completion=13 Total=43", totals)
	}
}

func TestLedgerRecordConcurrentWritesAreSafe(t *testing.T) {
	l := NewLedger(nil)
	const n = 50
	done := make(chan struct{})
	for i := 0; i < n; i++ {
		go func() {
			l.Record(Record{Provider: "openai", TotalTokens: 1})
			done <- struct{}{}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}

	if got := len(l.Query(Filter{})); got != n {
		t.Errorf("got %d records after %d concurrent writes, want %d", got, n, n)
	}
}
