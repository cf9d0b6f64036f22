package pivot

import "sync"

// ExpandState tracks which node keys are expanded. Nodes are collapsed
// unless marked otherwise. The zero value is ready to use.
type ExpandState struct {
	mu       sync.RWMutex
	expanded map[string]struct{}
}

// NewExpandState returns a state with the given keys expanded.
func NewExpandState(keys ...string) *ExpandState {
	s := &ExpandState{expanded: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		s.expanded[k] = struct{}{}
	}
	return s
}

// IsExpanded reports whether key is expanded.
func (s *ExpandState) IsExpanded(key string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.expanded[key]
	return ok
}

// Expand marks key expanded.
func (s *ExpandState) Expand(key string) {
	s.mu.Lock()
	s.ensure()
	s.expanded[key] = struct{}{}
	s.mu.Unlock()
}

// ensure allocates the key set; callers hold the write lock.
func (s *ExpandState) ensure() {
	if s.expanded == nil {
		s.expanded = make(map[string]struct{})
	}
}

// Collapse marks key collapsed.
func (s *ExpandState) Collapse(key string) {
	s.mu.Lock()
	delete(s.expanded, key)
	s.mu.Unlock()
}

// Toggle flips key and returns the new state.
func (s *ExpandState) Toggle(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expanded[key]; ok {
		delete(s.expanded, key)
		return false
	}
	s.ensure()
	s.expanded[key] = struct{}{}
	return true
}

// ExpandAll expands every non-leaf node of the tree.
func ExpandAll[T any](s *ExpandState, nodes []*Node[T]) {
	Walk(nodes, func(n *Node[T]) bool {
		if !n.IsLeaf() {
			s.Expand(n.Key)
		}
		return true
	})
}

// Len returns the number of expanded keys.
func (s *ExpandState) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.expanded)
}
