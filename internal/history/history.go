// Package history provides in-memory conversation history for agents,
// keyed by agent name. Histories outlive the agents they belong to and
// are discarded when the process exits.
package history

import (
	"sync"

	"github.com/agentoven/orchestrator/pkg/models"
)

// MemoryStore is a thread-safe in-memory conversation store.
type MemoryStore struct {
	mu    sync.RWMutex
	convs map[string][]models.Message // key: agent name
}

// NewMemoryStore creates an empty history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		convs: make(map[string][]models.Message),
	}
}

// Reset starts an empty conversation for name, replacing any previous one.
func (s *MemoryStore) Reset(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[name] = []models.Message{}
}

// Append adds messages to the end of name's conversation.
func (s *MemoryStore) Append(name string, msgs ...models.Message) {
	if len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[name] = append(s.convs[name], msgs...)
}

// Get returns a copy of name's conversation, keeping only the last limit
// messages when limit > 0. Unknown names yield an empty slice.
func (s *MemoryStore) Get(name string, limit int) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv := s.convs[name]
	if limit > 0 && limit < len(conv) {
		conv = conv[len(conv)-limit:]
	}
	out := make([]models.Message, len(conv))
	copy(out, conv)
	return out
}

// Len returns the number of messages stored for name.
func (s *MemoryStore) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.convs[name])
}
