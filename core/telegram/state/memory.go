package state

import (
	"context"
	"log/slog"
	"sync"

	"github.com/m3rciful/enrollbot/core/logger"
)

var _ Manager[int] = (*MemoryStore[int])(nil)

type entry[T any] struct {
	mu      sync.Mutex
	version uint64
	value   T
}

// MemoryStore keeps sessions in process memory. The index lock is held only
// while looking up or inserting entries, so users never wait on each other's
// commits.
type MemoryStore[T any] struct {
	mu       sync.RWMutex
	sessions map[int64]*entry[T]
	newFn    func(userID int64) T
	clone    func(T) T
}

// NewMemoryStore constructs an in-memory store. newFn builds the initial value
// for unseen users; clone, when set, copies values crossing the store boundary.
func NewMemoryStore[T any](newFn func(userID int64) T, clone func(T) T) *MemoryStore[T] {
	if newFn == nil {
		newFn = func(int64) T {
			var zero T
			return zero
		}
	}
	return &MemoryStore[T]{
		sessions: make(map[int64]*entry[T]),
		newFn:    newFn,
		clone:    clone,
	}
}

// GetOrCreate returns the user's session, creating a fresh one on first contact.
func (m *MemoryStore[T]) GetOrCreate(userID int64) Snapshot[T] {
	e := m.lookup(userID)
	if e == nil {
		m.mu.Lock()
		e = m.sessions[userID]
		if e == nil {
			e = &entry[T]{value: m.newFn(userID)}
			m.sessions[userID] = e
			logger.Debug(context.Background(), "state", "session.created",
				slog.Int64("user_id", userID),
			)
		}
		m.mu.Unlock()
	}
	return m.snapshot(userID, e)
}

// Get returns the user's session if it exists.
func (m *MemoryStore[T]) Get(userID int64) (Snapshot[T], bool) {
	e := m.lookup(userID)
	if e == nil {
		return Snapshot[T]{UserID: userID}, false
	}
	return m.snapshot(userID, e), true
}

// Commit stores value if the session is still at version, then bumps the version.
func (m *MemoryStore[T]) Commit(userID int64, version uint64, value T) error {
	e := m.lookup(userID)
	if e == nil {
		m.mu.Lock()
		e = m.sessions[userID]
		if e == nil {
			// No prior read; only a version-0 write can succeed.
			e = &entry[T]{value: m.newFn(userID)}
			m.sessions[userID] = e
		}
		m.mu.Unlock()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.version != version {
		logger.Debug(context.Background(), "tg", "session.stale",
			slog.Int64("user_id", userID),
			slog.Uint64("expected", version),
			slog.Uint64("actual", e.version),
		)
		return ErrStaleSession
	}
	e.value = m.copy(value)
	e.version++
	return nil
}

// Len reports how many sessions are held.
func (m *MemoryStore[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryStore[T]) lookup(userID int64) *entry[T] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[userID]
}

func (m *MemoryStore[T]) snapshot(userID int64, e *entry[T]) Snapshot[T] {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot[T]{UserID: userID, Version: e.version, Value: m.copy(e.value)}
}

func (m *MemoryStore[T]) copy(v T) T {
	if m.clone == nil {
		return v
	}
	return m.clone(v)
}
