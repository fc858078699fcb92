package automation

import "sync"

// listenerSet is the per-handle fan-out table. Each registration gets its own
// detach func so owners can remove exactly what they installed.
type listenerSet struct {
	mu     sync.RWMutex
	next   int
	byKind map[EventKind]map[int]func(Event)
}

func newListenerSet() *listenerSet {
	return &listenerSet{byKind: make(map[EventKind]map[int]func(Event))}
}

func (s *listenerSet) add(kind EventKind, fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	if s.byKind[kind] == nil {
		s.byKind[kind] = make(map[int]func(Event))
	}
	s.byKind[kind][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.byKind[kind], id)
		})
	}
}

func (s *listenerSet) removeAll(kind EventKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byKind, kind)
}

func (s *listenerSet) count(kind EventKind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKind[kind])
}

func (s *listenerSet) emit(ev Event) {
	s.mu.RLock()
	fns := make([]func(Event), 0, len(s.byKind[ev.Kind]))
	for _, fn := range s.byKind[ev.Kind] {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
