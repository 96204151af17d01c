package store

import (
	"context"
	"sync"

	"github.com/peakform/coachcore/core"
)

// MemoryBackend is a volatile PersistenceBackend keeping messages in a
// process-local map. Best suited for tests and ephemeral deployments; the
// sqlite backend is the durable choice.
type MemoryBackend struct {
	mu       sync.RWMutex
	messages map[string][]core.ConversationMessage
}

// NewMemoryBackend constructs an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{messages: make(map[string][]core.ConversationMessage)}
}

// Append implements PersistenceBackend.
func (b *MemoryBackend) Append(_ context.Context, msg core.ConversationMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[msg.SessionID] = append(b.messages[msg.SessionID], msg)
	return nil
}

// Read implements PersistenceBackend.
func (b *MemoryBackend) Read(_ context.Context, sessionID string, limit int) ([]core.ConversationMessage, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	msgs := b.messages[sessionID]
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]core.ConversationMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Prune implements PersistenceBackend.
func (b *MemoryBackend) Prune(_ context.Context, sessionID string, keepLast int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.messages[sessionID]
	if keepLast < len(msgs) {
		b.messages[sessionID] = append(msgs[:0:0], msgs[len(msgs)-keepLast:]...)
	}
	return nil
}

// Delete implements PersistenceBackend.
func (b *MemoryBackend) Delete(_ context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.messages, sessionID)
	return nil
}

// LastSeq implements PersistenceBackend.
func (b *MemoryBackend) LastSeq(_ context.Context, sessionID string) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	msgs := b.messages[sessionID]
	if len(msgs) == 0 {
		return 0, nil
	}
	return msgs[len(msgs)-1].Seq, nil
}

// Count returns the number of durable messages for a session. Test helper.
func (b *MemoryBackend) Count(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.messages[sessionID])
}
