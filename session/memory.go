package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/openomni/omni/schema"
)

// MemoryStore keeps sessions in process memory. Useful for tests and
// single-shot runs.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", schema.ErrSessionNotFound, id)
	}
	return cloneSession(sess), nil
}

func (s *MemoryStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("save session: missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := cloneSession(sess)
	copied.UpdatedAt = time.Now()
	s.sessions[sess.ID] = copied
	return nil
}

func (s *MemoryStore) AddRun(ctx context.Context, id string, run RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = NewSession(id)
		s.sessions[id] = sess
	}
	sess.Runs = append(sess.Runs, run)
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Close() error { return nil }

func cloneSession(sess *Session) *Session {
	out := *sess
	out.Runs = make([]RunRecord, len(sess.Runs))
	copy(out.Runs, sess.Runs)
	if sess.State != nil {
		out.State = make(map[string]any, len(sess.State))
		for k, v := range sess.State {
			out.State[k] = v
		}
	}
	return &out
}
