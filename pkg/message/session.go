package message

import "strings"

// SessionIdentity is the composite key scoping a conversation's history,
// usage records, and persisted session-storage map. Immutable once built.
type SessionIdentity struct {
	AgentName string
	ChatName  string
	UserID    string
	Group     string
}

// Key derives the string form used by HistoryStore and every pluggable
// storage backend to scope data for this identity.
func (s SessionIdentity) Key() string {
	parts := []string{s.AgentName}
	if s.ChatName != "" {
		parts = append(parts, "chat:"+s.ChatName)
	}
	if s.UserID != "" {
		parts = append(parts, "user:"+s.UserID)
	}
	if s.Group != "" {
		parts = append(parts, "group:"+s.Group)
	}
	return strings.Join(parts, "|")
}

// ChatHistory is the ordered message sequence for a single SessionIdentity,
// plus its cumulative usage. Created on first access by an Orchestrator,
// mutated only between provider round-trips, and persisted wholesale on the
// beforeSaveHistory hook.
type ChatHistory struct {
	Identity  SessionIdentity
	Messages  []Message
	Usage     Usage
}

// Append adds a message to the end of the history. Append is O(1).
func (h *ChatHistory) Append(m Message) {
	h.Messages = append(h.Messages, m)
}

// Last returns the most recently appended message, if any.
func (h *ChatHistory) Last() (Message, bool) {
	if len(h.Messages) == 0 {
		return nil, false
	}
	return h.Messages[len(h.Messages)-1], true
}

// Replace atomically swaps the message sequence, used by the truncation
// engine to install a shortened history in one step.
func (h *ChatHistory) Replace(messages []Message) {
	h.Messages = messages
}

// Clone returns a ChatHistory with an independent Messages slice (messages
// themselves are immutable once appended, so their pointers are shared).
func (h *ChatHistory) Clone() *ChatHistory {
	clone := &ChatHistory{Identity: h.Identity, Usage: h.Usage}
	clone.Messages = append([]Message(nil), h.Messages...)
	return clone
}
