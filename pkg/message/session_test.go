package message

import "testing"

func TestSessionIdentityKey(t *testing.T) {
	tests := []struct {
		name     string
		identity SessionIdentity
		want     string
	}{
		{"agent only", SessionIdentity{AgentName: "support-bot"}, "support-bot"},
		{
			"agent and chat",
			SessionIdentity{AgentName: "support-bot", ChatName: "room-1"},
			"support-bot|chat:room-1",
		},
		{
			"full identity",
			SessionIdentity{AgentName: "support-bot", ChatName: "room-1", UserID: "u42", Group: "acme"},
			"support-bot|chat:room-1|user:u42|group:acme",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.identity.Key(); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSessionIdentityKeyDistinguishesIdentities(t *testing.T) {
	a := SessionIdentity{AgentName: "bot", UserID: "alice"}
	b := SessionIdentity{AgentName: "bot", UserID: "bob"}
	if a.Key() == b.Key() {
		t.Error("distinct user IDs produced the same session key")
	}
}

func TestChatHistoryAppendAndLast(t *testing.T) {
	h := &ChatHistory{Identity: SessionIdentity{AgentName: "bot"}}
	if _, ok := h.Last(); ok {
		t.Fatal("Last() on empty history should report ok=false")
	}

	h.Append(NewUserText("one"))
	h.Append(NewUserText("two"))

	last, ok := h.Last()
	if !ok {
		t.Fatal("Last() should report ok=true after appends")
	}
	if um, ok := last.(*UserMessage); !ok || um.Text() != "two" {
		t.Errorf("Last() = %v, want the most recently appended message", last)
	}
	if len(h.Messages) != 2 {
		t.Errorf("len(Messages) = %d, want 2", len(h.Messages))
	}
}

func TestChatHistoryReplace(t *testing.T) {
	h := &ChatHistory{}
	h.Append(NewUserText("one"))
	h.Append(NewUserText("two"))

	replacement := []Message{NewSystem("[summary] condensed")}
	h.Replace(replacement)

	if len(h.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(h.Messages))
	}
	if sys, ok := h.Messages[0].(*SystemMessage); !ok || sys.Text != "[summary] condensed" {
		t.Errorf("Messages[0] = %v, want the replacement summary", h.Messages[0])
	}
}

func TestChatHistoryCloneIsIndependent(t *testing.T) {
	h := &ChatHistory{Identity: SessionIdentity{AgentName: "bot"}}
	h.Append(NewUserText("one"))

	clone := h.Clone()
	clone.Append(NewUserText("two"))

	if len(h.Messages) != 1 {
		t.Errorf("original history mutated by appending to clone: len = %d, want 1", len(h.Messages))
	}
	if len(clone.Messages) != 2 {
		t.Errorf("clone len(Messages) = %d, want 2", len(clone.Messages))
	}
}
