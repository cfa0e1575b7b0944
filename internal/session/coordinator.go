// Package session implements the write-intent/commit protocol: any number of
// mutations against a session are visible in memory immediately, and the
// backing store is flushed at most once per dirty realm when the session
// commits.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/ektropy/realm-authz/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State tracks a session's position in the Clean -> Dirty -> Flushed cycle.
// A flushed session accepts further writes, which move it back to Dirty.
type State int

const (
	StateClean State = iota
	StateDirty
	StateFlushed
)

func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateDirty:
		return "dirty"
	case StateFlushed:
		return "flushed"
	default:
		return "unknown"
	}
}

// Flusher writes a realm's in-memory state to persistent storage. Implemented
// by the persistence layer; the coordinator never flushes on its own.
type Flusher interface {
	Flush(ctx context.Context, realmID string) error
}

// FlusherFunc adapts a function to the Flusher interface.
type FlusherFunc func(ctx context.Context, realmID string) error

func (f FlusherFunc) Flush(ctx context.Context, realmID string) error {
	return f(ctx, realmID)
}

// Session scopes write-intent bookkeeping to one logical request. Two
// sessions over the same model never share commit state.
type Session struct {
	id string

	mu       sync.Mutex
	state    State
	dirty    map[string]struct{}
	poisoned bool
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Poisoned reports whether a failed flush has made the session unusable.
func (s *Session) Poisoned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poisoned
}

// Coordinator owns the requestWrite/commit contract for all sessions.
type Coordinator struct {
	flusher Flusher
	logger  *zap.Logger
}

func NewCoordinator(flusher Flusher, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		flusher: flusher,
		logger:  logger,
	}
}

// Begin opens a fresh clean session.
func (c *Coordinator) Begin() *Session {
	return &Session{
		id:    uuid.NewString(),
		dirty: make(map[string]struct{}),
	}
}

// RequestWrite marks the realm dirty for the session. Idempotent: mutators
// may over-mark freely, only a missed mark is a correctness bug. A write
// request that cannot be registered is fatal to the session.
func (c *Coordinator) RequestWrite(s *Session, realmID string) error {
	if s == nil {
		return fmt.Errorf("request write without an active session")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned {
		return &models.CommitError{
			SessionID: s.id,
			Err:       fmt.Errorf("session aborted by earlier commit failure"),
		}
	}

	s.dirty[realmID] = struct{}{}
	s.state = StateDirty
	return nil
}

// Commit flushes each dirty realm exactly once; committing a clean or
// already-flushed session is a no-op. A flush failure poisons the session:
// in-memory state has
// diverged from storage and the caller must discard the session.
func (c *Coordinator) Commit(ctx context.Context, s *Session) error {
	if s == nil {
		return fmt.Errorf("commit without an active session")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned {
		return &models.CommitError{
			SessionID: s.id,
			Err:       fmt.Errorf("session aborted by earlier commit failure"),
		}
	}

	if s.state != StateDirty {
		return nil
	}

	for realmID := range s.dirty {
		if err := c.flusher.Flush(ctx, realmID); err != nil {
			s.poisoned = true
			c.logger.Error("Flush failed, aborting session",
				zap.String("session_id", s.id),
				zap.String("realm_id", realmID),
				zap.Error(err))
			return &models.CommitError{SessionID: s.id, Err: err}
		}
		c.logger.Debug("Realm flushed",
			zap.String("session_id", s.id),
			zap.String("realm_id", realmID))
	}

	s.dirty = make(map[string]struct{})
	s.state = StateFlushed
	return nil
}

// Rollback discards pending write intents without flushing.
func (c *Coordinator) Rollback(s *Session) {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.dirty) > 0 {
		c.logger.Debug("Rolling back session write intents",
			zap.String("session_id", s.id),
			zap.Int("dirty_realms", len(s.dirty)))
	}
	s.dirty = make(map[string]struct{})
	s.state = StateClean
}
