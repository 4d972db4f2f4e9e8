package history

import (
	"testing"

	"github.com/MaestroError/laragent/pkg/message"
)

func testIdentity(name string) message.SessionIdentity {
	return message.SessionIdentity{AgentName: "bot", UserID: name}
}

func TestStoreLoadEmpty(t *testing.T) {
	s := NewStore(NewMemoryDriver())
	h, err := s.Load(testIdentity("alice"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(h.Messages) != 0 {
		t.Errorf("len(Messages) = %d, want 0", len(h.Messages))
	}
}

func TestStoreAppendPersists(t *testing.T) {
	driver := NewMemoryDriver()
	s := NewStore(driver)
	id := testIdentity("alice")

	if err := s.Append(id, message.NewUserText("hello")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(id, message.NewAssistant("hi", nil)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	h, err := s.Load(id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(h.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(h.Messages))
	}

	// A freshly built store over the same driver must read back the same
	// messages, proving Append actually persisted rather than only caching.
	reopened := NewStore(driver)
	h2, err := reopened.Load(id)
	if err != nil {
		t.Fatalf("Load (reopened): %v", err)
	}
	if len(h2.Messages) != 2 {
		t.Fatalf("reopened len(Messages) = %d, want 2", len(h2.Messages))
	}
	if um, ok := h2.Messages[0].(*message.UserMessage); !ok || um.Text() != "hello" {
		t.Errorf("reopened Messages[0] = %v, want user text %q", h2.Messages[0], "hello")
	}
}

func TestStoreIndependentIdentitiesDoNotShareHistory(t *testing.T) {
	driver := NewMemoryDriver()
	s := NewStore(driver)

	if err := s.Append(testIdentity("alice"), message.NewUserText("alice msg")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(testIdentity("bob"), message.NewUserText("bob msg")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	alice, err := s.Load(testIdentity("alice"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	bob, err := s.Load(testIdentity("bob"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(alice.Messages) != 1 || len(bob.Messages) != 1 {
		t.Fatalf("expected 1 message each, got alice=%d bob=%d", len(alice.Messages), len(bob.Messages))
	}
	if alice.Messages[0].(*message.UserMessage).Text() == bob.Messages[0].(*message.UserMessage).Text() {
		t.Error("distinct identities should not share message content")
	}
}

func TestStoreClearRemovesHistory(t *testing.T) {
	driver := NewMemoryDriver()
	s := NewStore(driver)
	id := testIdentity("alice")

	if err := s.Append(id, message.NewUserText("hello")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Clear(id); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	h, err := s.Load(id)
	if err != nil {
		t.Fatalf("Load after Clear: %v", err)
	}
	if len(h.Messages) != 0 {
		t.Errorf("len(Messages) after Clear = %d, want 0", len(h.Messages))
	}
}

func TestStoreLast(t *testing.T) {
	s := NewStore(NewMemoryDriver())
	id := testIdentity("alice")

	if _, ok, err := s.Last(id); err != nil || ok {
		t.Fatalf("Last on empty history: ok=%v err=%v, want ok=false err=nil", ok, err)
	}

	if err := s.Append(id, message.NewUserText("one")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(id, message.NewUserText("two")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	last, ok, err := s.Last(id)
	if err != nil || !ok {
		t.Fatalf("Last: ok=%v err=%v", ok, err)
	}
	if um, ok := last.(*message.UserMessage); !ok || um.Text() != "two" {
		t.Errorf("Last() = %v, want the most recently appended message", last)
	}
}

func TestStoreSaveHistoryReplacesSequence(t *testing.T) {
	driver := NewMemoryDriver()
	s := NewStore(driver)
	id := testIdentity("alice")

	if err := s.Append(id, message.NewUserText("one")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(id, message.NewUserText("two")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	summary := &message.ChatHistory{
		Identity: id,
		Messages: []message.Message{message.NewSystem("[summary] condensed")},
	}
	if err := s.SaveHistory(summary); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}

	h, err := s.Load(id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(h.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(h.Messages))
	}
	if sys, ok := h.Messages[0].(*message.SystemMessage); !ok || sys.Text != "[summary] condensed" {
		t.Errorf("Messages[0] = %v, want the replacement summary", h.Messages[0])
	}
}

func TestMemoryDriverReadReturnsIndependentCopy(t *testing.T) {
	d := NewMemoryDriver()
	if err := d.Write("k", map[string]any{"messages": []any{"a"}}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	first, err := d.Read("k")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	first["messages"] = []any{"mutated"}

	second, err := d.Read("k")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	list := second["messages"].([]any)
	if list[0] != "a" {
		t.Errorf("mutating a returned map leaked into the driver's stored copy: got %v", list)
	}
}

func TestMemoryDriverReadMissingKeyReturnsEmptyMap(t *testing.T) {
	d := NewMemoryDriver()
	m, err := d.Read("missing")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(m) != 0 {
		t.Errorf("got %v, want empty map", m)
	}
}
