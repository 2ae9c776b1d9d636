// Package conversation holds the short-term memory of the assistant.
//
// The store is an ordered sequence of user/assistant turns owned by the
// orchestrator for the lifetime of the process. It supports exactly three
// operations: append, snapshot, and rollback of a trailing user turn. No
// backend-specific formatting lives here.
package conversation

import "sync"

// Role tags a turn's author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single role-tagged message in the conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Store is an append-only-except-rollback ordered sequence of turns.
// All methods are safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	turns []Turn
}

// NewStore creates an empty conversation store.
func NewStore() *Store {
	return &Store{}
}

// Append adds a turn at the tail.
func (s *Store) Append(t Turn) {
	s.mu.Lock()
	s.turns = append(s.turns, t)
	s.mu.Unlock()
}

// RollbackLastUser removes the tail turn only if its role is user.
// Calling it when the tail is an assistant turn, or when the store is
// empty, is a no-op. Rollback is idempotent and safe after partial appends.
func (s *Store) RollbackLastUser() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.turns); n > 0 && s.turns[n-1].Role == RoleUser {
		s.turns = s.turns[:n-1]
	}
}

// Snapshot returns a copy of the full ordered sequence.
func (s *Store) Snapshot() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len reports the number of stored turns.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}
