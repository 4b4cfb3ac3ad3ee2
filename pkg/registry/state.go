package registry

import "sync"

// State is a session-scoped bag handlers may use to share data between
// evaluations. It survives across Evaluate calls and is safe for concurrent use.
type State struct {
	mu sync.RWMutex
	m  map[string]any
}

func NewState() *State {
	return &State{m: make(map[string]any)}
}

func (s *State) Load(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *State) Store(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = v
}

func (s *State) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}

func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
