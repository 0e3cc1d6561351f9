package interview

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	model "github.com/zhouzirui/z-interview/backend/internal/model/interview"
)

// entry owns one session. turn is held for the whole of a model turn, mu
// guards the session fields and is never held across network calls.
type entry struct {
	turn sync.Mutex

	mu       sync.Mutex
	session  model.Session
	cancel   context.CancelFunc
	quitting bool
	// touched is the last time a client or a turn used the session.
	touched time.Time
}

func (e *entry) snapshot() model.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone()
}

// Store keeps sessions in memory, keyed by session id.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	now      func() time.Time
}

func newStore(now func() time.Time) *Store {
	return &Store{sessions: make(map[string]*entry), now: now}
}

// create assigns a fresh id to session and stores it.
func (s *Store) create(session model.Session) *entry {
	session.ID = uuid.NewString()
	e := &entry{session: session, touched: s.now()}

	s.mu.Lock()
	s.sessions[session.ID] = e
	s.mu.Unlock()

	return e
}

func (s *Store) get(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	e.mu.Lock()
	e.touched = s.now()
	e.mu.Unlock()
	return e, nil
}

// sweep drops completed sessions unused for completedTTL and any session
// unused for idleTTL. Sessions with a turn in flight are kept.
func (s *Store) sweep(completedTTL, idleTTL time.Duration) int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		e.mu.Lock()
		idle := now.Sub(e.touched)
		expired := idle >= idleTTL || (e.session.State == model.StateCompleted && idle >= completedTTL)
		busy := e.cancel != nil
		e.mu.Unlock()

		if expired && !busy {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *Store) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
