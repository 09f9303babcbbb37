package orchestrator

import (
	"sync"
	"time"
)

type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type session struct {
	mu       sync.Mutex
	turns    []Turn
	lastSeen time.Time
}

// SessionStore keeps per-session conversation history. Sessions are
// capped at maxTurns (oldest turns dropped) and reaped lazily once
// idle longer than idleTTL.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	maxTurns int
	idleTTL  time.Duration
}

func NewSessionStore(maxTurns int, idleTTL time.Duration) *SessionStore {
	if maxTurns <= 0 {
		maxTurns = 50
	}
	if idleTTL <= 0 {
		idleTTL = 2 * time.Hour
	}
	return &SessionStore{
		sessions: make(map[string]*session),
		maxTurns: maxTurns,
		idleTTL:  idleTTL,
	}
}

func (s *SessionStore) get(sessionID string, create bool) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reapLocked()

	sess, ok := s.sessions[sessionID]
	if !ok {
		if !create {
			return nil
		}
		sess = &session{}
		s.sessions[sessionID] = sess
	}
	sess.lastSeen = time.Now()
	return sess
}

func (s *SessionStore) reapLocked() {
	cutoff := time.Now().Add(-s.idleTTL)
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}

func (s *SessionStore) Append(sessionID string, turns ...Turn) {
	sess := s.get(sessionID, true)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.turns = append(sess.turns, turns...)
	if len(sess.turns) > s.maxTurns {
		sess.turns = sess.turns[len(sess.turns)-s.maxTurns:]
	}
}

func (s *SessionStore) History(sessionID string) []Turn {
	sess := s.get(sessionID, false)
	if sess == nil {
		return nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	out := make([]Turn, len(sess.turns))
	copy(out, sess.turns)
	return out
}

func (s *SessionStore) Clear(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	return ok
}

func (s *SessionStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
