package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"perk-quiz-service/internal/domain"
)

const sweepInterval = 10 * time.Minute

// SessionStore is an in-memory implementation of app.SessionRepository.
// Expiry is passive: stale sessions read as not found, and Create sweeps them periodically.
type SessionStore struct {
	ttl   time.Duration
	clock func() time.Time

	mu        sync.Mutex
	sessions  map[string]*domain.Session
	lastSweep time.Time
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:       ttl,
		clock:     time.Now,
		sessions:  make(map[string]*domain.Session),
		lastSweep: time.Now(),
	}
}

func (s *SessionStore) Create(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if now.Sub(s.lastSweep) >= sweepInterval {
		s.sweepLocked(now)
	}
	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	stored := session
	s.sessions[session.ID] = &stored
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if s.expireLocked(session) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return *session, nil
}

func (s *SessionStore) MarkSubmitted(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if s.expireLocked(session) {
		return domain.ErrSessionNotFound
	}
	if session.Status != domain.SessionOpen {
		return fmt.Errorf("%w: session is %s", domain.ErrInvalidSessionState, session.Status)
	}
	session.Status = domain.SessionSubmitted
	session.SubmittedAt = s.clock()
	return nil
}

// Sweep drops sessions older than the TTL and returns how many were removed.
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.clock())
}

// Len reports the number of retained sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionStore) sweepLocked(now time.Time) int {
	s.lastSweep = now
	removed := 0
	for id, session := range s.sessions {
		if session.ExpiredAt(now, s.ttl) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// expireLocked flags an open session past its TTL and reports whether it is expired.
func (s *SessionStore) expireLocked(session *domain.Session) bool {
	if session.Status == domain.SessionExpired {
		return true
	}
	if session.Status == domain.SessionOpen && session.ExpiredAt(s.clock(), s.ttl) {
		session.Status = domain.SessionExpired
		return true
	}
	return false
}
