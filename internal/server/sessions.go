package server

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/whatif/internal/observability"
	"github.com/iwvelando/whatif/internal/workbook"
	"github.com/iwvelando/whatif/pkg/scenario"
	"go.uber.org/zap"
)

var errSessionLimit = errors.New("workbook session limit reached")

// session is one uploaded workbook and the scenarios defined against it.
// Tools mutate the workbook, so every request holds mu for its duration.
type session struct {
	mu        sync.Mutex
	book      *workbook.Workbook
	scenarios *scenario.Manager
	created   time.Time
}

func newSession(logger *zap.Logger, book *workbook.Workbook) *session {
	return &session{
		book:      book,
		scenarios: scenario.NewManager(logger, book),
		created:   time.Now().UTC(),
	}
}

type sessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*session
	max      int
	metrics  *observability.Collector
}

func newSessionStore(limit int, metrics *observability.Collector) *sessionStore {
	return &sessionStore{
		sessions: make(map[uuid.UUID]*session),
		max:      limit,
		metrics:  metrics,
	}
}

func (s *sessionStore) add(sess *session) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.max > 0 && len(s.sessions) >= s.max {
		return uuid.Nil, errSessionLimit
	}
	id := uuid.New()
	s.sessions[id] = sess
	s.metrics.SetSessions(len(s.sessions))
	return id, nil
}

func (s *sessionStore) get(raw string) (*session, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *sessionStore) remove(raw string) bool {
	id, err := uuid.Parse(raw)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	s.metrics.SetSessions(len(s.sessions))
	return true
}

func (s *sessionStore) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
