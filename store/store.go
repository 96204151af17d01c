// Package store implements conversation persistence with three policies
// keyed by InteractionType: chat histories are durable and pruned to a
// configurable tail, transaction exchanges live only in a small in-memory
// ring buffer, and hybrid sessions are durable for the active exchange
// window and discarded once it expires.
//
// Mutations for a given session are serialized through a per-session lock so
// sequence numbers stay strictly increasing; different sessions proceed
// fully in parallel. The durable side is abstracted behind the
// PersistenceBackend interface (see the in-memory backend here and the
// sqlite backend in store/sqlite).
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/peakform/coachcore/core"
	"github.com/peakform/coachcore/logging"
)

// PersistenceBackend is the durable storage contract. Append must be atomic
// so concurrent sessions cannot interleave a session's ordering.
type PersistenceBackend interface {
	Append(ctx context.Context, msg core.ConversationMessage) error
	// Read returns the newest limit messages in chronological order;
	// limit <= 0 means all.
	Read(ctx context.Context, sessionID string, limit int) ([]core.ConversationMessage, error)
	// Prune keeps only the keepLast newest messages.
	Prune(ctx context.Context, sessionID string, keepLast int) error
	// Delete removes every message for the session.
	Delete(ctx context.Context, sessionID string) error
	// LastSeq returns the highest assigned sequence number (0 if none).
	LastSeq(ctx context.Context, sessionID string) (uint64, error)
}

// Config carries the pruning thresholds. Disputed constants from earlier
// revisions are deliberately configuration, not code.
type Config struct {
	ChatKeepLast      int           // durable tail for chat sessions; 0 => 50
	TransactionBuffer int           // ring size for transaction sessions; 0 => 4
	HybridIdleTimeout time.Duration // inactivity window for hybrid sessions; 0 => 10m
}

type sessionState struct {
	mu         sync.Mutex
	kind       core.InteractionType
	nextSeq    uint64
	seqLoaded  bool
	ring       []core.ConversationMessage // transaction policy only
	lastActive time.Time
}

// Store is the conversation store. Safe for concurrent use.
type Store struct {
	backend PersistenceBackend
	cfg     Config
	logger  logging.Logger

	mu       sync.Mutex
	sessions map[string]*sessionState
}

// New constructs a Store over the given backend with defaults applied.
func New(backend PersistenceBackend, cfg Config, logger logging.Logger) *Store {
	if cfg.ChatKeepLast <= 0 {
		cfg.ChatKeepLast = 50
	}
	if cfg.TransactionBuffer <= 0 {
		cfg.TransactionBuffer = 4
	}
	if cfg.HybridIdleTimeout <= 0 {
		cfg.HybridIdleTimeout = 10 * time.Minute
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Store{
		backend:  backend,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*sessionState),
	}
}

// Open registers a session with its interaction type, creating it on first
// use. Reopening with a different type is rejected: the policy of a live
// session never changes mid-exchange.
func (s *Store) Open(sessionID string, kind core.InteractionType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.sessions[sessionID]; ok {
		if st.kind != kind {
			return fmt.Errorf("session %s already open as %s", sessionID, st.kind)
		}
		return nil
	}
	s.sessions[sessionID] = &sessionState{kind: kind, lastActive: time.Now()}
	return nil
}

// Kind returns the interaction type a session was opened with.
func (s *Store) Kind(sessionID string) (core.InteractionType, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return 0, false
	}
	return st.kind, true
}

func (s *Store) state(sessionID string) (*sessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s not open", sessionID)
	}
	return st, nil
}

// Append persists a message according to the session's policy and returns it
// with its assigned sequence number. All appends for one session are
// serialized; sequence numbers are strictly increasing.
func (s *Store) Append(ctx context.Context, sessionID string, msg core.ConversationMessage) (core.ConversationMessage, error) {
	st, err := s.state(sessionID)
	if err != nil {
		return core.ConversationMessage{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.seqLoaded {
		if st.kind != core.InteractionTransaction {
			last, err := s.backend.LastSeq(ctx, sessionID)
			if err != nil {
				return core.ConversationMessage{}, &core.PersistenceError{Op: "last_seq", Err: err}
			}
			st.nextSeq = last
		}
		st.seqLoaded = true
	}

	st.nextSeq++
	msg.SessionID = sessionID
	msg.Seq = st.nextSeq
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	st.lastActive = time.Now()

	switch st.kind {
	case core.InteractionChat:
		if err := s.backend.Append(ctx, msg); err != nil {
			return core.ConversationMessage{}, &core.PersistenceError{Op: "append", Err: err}
		}
		if err := s.backend.Prune(ctx, sessionID, s.cfg.ChatKeepLast); err != nil {
			return core.ConversationMessage{}, &core.PersistenceError{Op: "prune", Err: err}
		}
	case core.InteractionTransaction:
		st.ring = append(st.ring, msg)
		if overflow := len(st.ring) - s.cfg.TransactionBuffer; overflow > 0 {
			st.ring = append(st.ring[:0:0], st.ring[overflow:]...)
		}
	case core.InteractionHybrid:
		if err := s.backend.Append(ctx, msg); err != nil {
			return core.ConversationMessage{}, &core.PersistenceError{Op: "append", Err: err}
		}
	}

	s.logger.Debug("store.append", "session_id", sessionID, "seq", msg.Seq, "kind", st.kind.String())
	return msg, nil
}

// Recent returns the most recent limit messages in chronological order,
// sourced from the backing store the session's policy uses.
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]core.ConversationMessage, error) {
	st, err := s.state(sessionID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.kind == core.InteractionTransaction {
		msgs := st.ring
		if limit > 0 && limit < len(msgs) {
			msgs = msgs[len(msgs)-limit:]
		}
		out := make([]core.ConversationMessage, len(msgs))
		copy(out, msgs)
		return out, nil
	}

	msgs, err := s.backend.Read(ctx, sessionID, limit)
	if err != nil {
		return nil, &core.PersistenceError{Op: "read", Err: err}
	}
	return msgs, nil
}

// Prune trims durable history so exactly min(keepLast, total) newest
// messages remain, in original order. A no-op for transaction sessions,
// whose ring already enforces its own bound.
func (s *Store) Prune(ctx context.Context, sessionID string, keepLast int) error {
	st, err := s.state(sessionID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.kind == core.InteractionTransaction {
		if keepLast < len(st.ring) {
			st.ring = append(st.ring[:0:0], st.ring[len(st.ring)-keepLast:]...)
		}
		return nil
	}
	if err := s.backend.Prune(ctx, sessionID, keepLast); err != nil {
		return &core.PersistenceError{Op: "prune", Err: err}
	}
	return nil
}

// CloseExchange marks a logical exchange complete. Transaction buffers are
// discarded immediately; hybrid sessions drop their durable rows; chat
// sessions are untouched.
func (s *Store) CloseExchange(ctx context.Context, sessionID string) error {
	st, err := s.state(sessionID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	switch st.kind {
	case core.InteractionChat:
		return nil
	case core.InteractionTransaction:
		st.ring = nil
	case core.InteractionHybrid:
		if err := s.backend.Delete(ctx, sessionID); err != nil {
			return &core.PersistenceError{Op: "delete", Err: err}
		}
		st.nextSeq = 0
		st.seqLoaded = true
	}

	s.logger.Info("store.exchange.closed", "session_id", sessionID, "kind", st.kind.String())
	return nil
}

// ExpireIdle discards hybrid sessions whose inactivity window elapsed.
// Intended to be driven periodically (see the schedule package). Returns the
// number of sessions expired.
func (s *Store) ExpireIdle(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	candidates := make([]string, 0)
	for id, st := range s.sessions {
		if st.kind == core.InteractionHybrid {
			candidates = append(candidates, id)
		}
	}
	s.mu.Unlock()

	expired := 0
	for _, id := range candidates {
		st, err := s.state(id)
		if err != nil {
			continue
		}
		st.mu.Lock()
		idle := now.Sub(st.lastActive) >= s.cfg.HybridIdleTimeout
		st.mu.Unlock()
		if !idle {
			continue
		}
		if err := s.CloseExchange(ctx, id); err != nil {
			s.logger.Warn("store.expire.failed", "session_id", id, "error", err.Error())
			continue
		}
		expired++
	}
	if expired > 0 {
		s.logger.Info("store.expire.swept", "expired", expired)
	}
	return expired
}
