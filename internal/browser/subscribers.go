package browser

import "sync"

// Subscribers is a registry of callbacks shared by session implementations.
// Dispatch works on a snapshot, so a callback may unsubscribe itself.
type Subscribers[T any] struct {
	mu     sync.Mutex
	nextID int
	funcs  map[int]func(T)
}

// Add registers fn and returns an idempotent unsubscribe function.
func (s *Subscribers[T]) Add(fn func(T)) func() {
	s.mu.Lock()
	if s.funcs == nil {
		s.funcs = make(map[int]func(T))
	}
	id := s.nextID
	s.nextID++
	s.funcs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.funcs, id)
			s.mu.Unlock()
		})
	}
}

// Dispatch calls every registered callback with v.
func (s *Subscribers[T]) Dispatch(v T) {
	s.mu.Lock()
	snapshot := make([]func(T), 0, len(s.funcs))
	for _, fn := range s.funcs {
		snapshot = append(snapshot, fn)
	}
	s.mu.Unlock()

	for _, fn := range snapshot {
		fn(v)
	}
}

// Len returns the number of registered callbacks.
func (s *Subscribers[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.funcs)
}
