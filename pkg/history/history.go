// Package history implements the HistoryStore: an append-only message
// sequence scoped by SessionIdentity, backed by a pluggable persistence
// tier. The store itself only knows how to (de)serialise a ChatHistory to
// the free-form map a Driver persists; it never assumes anything about
// where that map actually lives.
package history

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/MaestroError/laragent/pkg/message"
)

// Driver is the persistence-tier contract. A driver need not know anything
// about messages: it reads and writes an opaque map keyed by a session's
// identity key.
type Driver interface {
	Read(key string) (map[string]any, error)
	Write(key string, data map[string]any) error
}

// messagesKey is the conventional key under which a history's serialised
// message list is stored inside a session-storage record.
const messagesKey = "messages"

// Store is the HistoryStore: Load, Append, Save, Clear, Last, scoped by
// SessionIdentity. A single identity's history is not safe for concurrent
// mutation; Store serialises access per identity with a striped lock so
// independent identities never block each other.
type Store struct {
	driver Driver

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	cached map[string]*message.ChatHistory
}

// NewStore builds a HistoryStore over the given persistence driver.
func NewStore(driver Driver) *Store {
	return &Store{
		driver: driver,
		locks:  map[string]*sync.Mutex{},
		cached: map[string]*message.ChatHistory{},
	}
}

func (s *Store) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Load returns the chat history for identity, reading through to the
// driver on first access and caching thereafter until Clear or Save.
func (s *Store) Load(identity message.SessionIdentity) (*message.ChatHistory, error) {
	key := identity.Key()
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()
	return s.loadLocked(identity)
}

func (s *Store) loadLocked(identity message.SessionIdentity) (*message.ChatHistory, error) {
	key := identity.Key()
	if h, ok := s.cached[key]; ok {
		return h, nil
	}

	data, err := s.driver.Read(key)
	if err != nil {
		return nil, fmt.Errorf("history: read %s: %w", key, err)
	}

	h := &message.ChatHistory{Identity: identity}
	if raw, ok := data[messagesKey]; ok {
		msgs, err := decodeMessages(raw)
		if err != nil {
			return nil, err
		}
		h.Messages = msgs
	}
	s.cached[key] = h
	return h, nil
}

// Append adds msg to identity's history and persists the result. Append is
// O(1) amortised; persistence cost is the driver's.
func (s *Store) Append(identity message.SessionIdentity, msg message.Message) error {
	key := identity.Key()
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	h, err := s.loadLocked(identity)
	if err != nil {
		return err
	}
	h.Append(msg)
	return s.saveLocked(h)
}

// Save persists the current in-memory history for identity.
func (s *Store) Save(identity message.SessionIdentity) error {
	key := identity.Key()
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	h, err := s.loadLocked(identity)
	if err != nil {
		return err
	}
	return s.saveLocked(h)
}

// SaveHistory persists an already-built ChatHistory (used after truncation
// replaces the sequence, so the new, shorter sequence becomes the
// store's view atomically).
func (s *Store) SaveHistory(h *message.ChatHistory) error {
	key := h.Identity.Key()
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()
	s.cached[key] = h
	return s.saveLocked(h)
}

func (s *Store) saveLocked(h *message.ChatHistory) error {
	key := h.Identity.Key()
	s.cached[key] = h
	raw, err := encodeMessages(h.Messages)
	if err != nil {
		return err
	}
	data := map[string]any{messagesKey: raw}
	if err := s.driver.Write(key, data); err != nil {
		return fmt.Errorf("history: write %s: %w", key, err)
	}
	return nil
}

// Clear discards identity's history, both cached and persisted.
func (s *Store) Clear(identity message.SessionIdentity) error {
	key := identity.Key()
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	delete(s.cached, key)
	return s.driver.Write(key, map[string]any{messagesKey: []any{}})
}

// Last returns the most recent message for identity, if any.
func (s *Store) Last(identity message.SessionIdentity) (message.Message, bool, error) {
	h, err := s.Load(identity)
	if err != nil {
		return nil, false, err
	}
	m, ok := h.Last()
	return m, ok, nil
}

func encodeMessages(msgs []message.Message) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(msgs))
	for _, m := range msgs {
		b, err := m.MarshalJSON()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func decodeMessages(raw any) ([]message.Message, error) {
	list, ok := raw.([]any)
	if !ok {
		if rawMsgs, ok := raw.([]json.RawMessage); ok {
			out := make([]message.Message, 0, len(rawMsgs))
			for _, r := range rawMsgs {
				m, err := message.Unmarshal(r)
				if err != nil {
					return nil, err
				}
				out = append(out, m)
			}
			return out, nil
		}
		return nil, fmt.Errorf("history: messages field has unexpected type %T", raw)
	}

	out := make([]message.Message, 0, len(list))
	for _, entry := range list {
		b, err := json.Marshal(entry)
		if err != nil {
			return nil, err
		}
		m, err := message.Unmarshal(b)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
