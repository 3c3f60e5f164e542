package calls

import (
	"slices"
	"sync"
)

// Store keeps call sessions in memory. Reads return copies.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
	}
}

func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return clone(cs), true
}

func (s *Store) Update(cs *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[cs.ID] = clone(cs)
}

func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Newest returns up to n sessions, most recently started first. n <= 0
// means all of them.
func (s *Store) Newest(n int) []*Session {
	s.mu.RLock()
	result := make([]*Session, 0, len(s.sessions))
	for _, cs := range s.sessions {
		result = append(result, clone(cs))
	}
	s.mu.RUnlock()

	slices.SortFunc(result, func(a, b *Session) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	if n > 0 && len(result) > n {
		result = result[:n]
	}
	return result
}

// Prune drops everything but the n newest sessions.
func (s *Store) Prune(n int) {
	keep := s.Newest(n)
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[string]bool, len(keep))
	for _, cs := range keep {
		ids[cs.ID] = true
	}
	for id := range s.sessions {
		if !ids[id] {
			delete(s.sessions, id)
		}
	}
}

func clone(cs *Session) *Session {
	c := *cs
	c.Details = slices.Clone(cs.Details)
	return &c
}
