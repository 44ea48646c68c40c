package drafting

import (
	"sync"
	"time"

	"github.com/DocExplain/DocExplain-app/internal/prompt"
	"github.com/DocExplain/DocExplain-app/internal/utils"
)

// DefaultSessionTTL is how long an idle session is kept.
const DefaultSessionTTL = 2 * time.Hour

type session struct {
	controller *Controller
	lastUsed   time.Time
}

// SessionStore keeps one Controller per drafting session.
type SessionStore struct {
	drafter Drafter
	lexicon prompt.Lexicon
	ttl     time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func NewSessionStore(drafter Drafter, lexicon prompt.Lexicon, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		drafter:  drafter,
		lexicon:  lexicon,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// Create starts a session and returns its id.
func (s *SessionStore) Create(settings Settings) (string, *Controller) {
	id := utils.GenerateID()
	c := NewController(s.drafter, s.lexicon, settings)

	s.mu.Lock()
	s.sessions[id] = &session{controller: c, lastUsed: s.now()}
	s.mu.Unlock()
	return id, c
}

// Get returns the session's controller and marks it used.
func (s *SessionStore) Get(id string) (*Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	sess.lastUsed = s.now()
	return sess.controller, true
}

// Delete cancels any in-flight turn and removes the session.
func (s *SessionStore) Delete(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		sess.controller.Cancel()
	}
	return ok
}

// Sweep removes sessions idle for longer than the TTL. Busy sessions are kept.
func (s *SessionStore) Sweep() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.lastUsed.Before(cutoff) && !sess.controller.Busy() {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
