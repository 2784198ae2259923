package kv

import (
	"sync"

	"github.com/google/uuid"
)

type watcher struct {
	handle string
	fn     func(Change)
}

type Shared struct {
	backend Backend

	mu       sync.RWMutex
	next     uint64
	watchers map[uint64]watcher
}

func NewShared(b Backend) *Shared {
	return &Shared{
		backend:  b,
		watchers: make(map[uint64]watcher),
	}
}

func (s *Shared) Backend() Backend {
	return s.backend
}

// Open returns a new handle over the shared medium.
func (s *Shared) Open() *Handle {
	return &Handle{shared: s, id: uuid.NewString()}
}

func (s *Shared) watch(handle string, fn func(Change)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.watchers[id] = watcher{handle: handle, fn: fn}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
}

func (s *Shared) publish(c Change) {
	s.mu.RLock()
	targets := make([]func(Change), 0, len(s.watchers))
	for _, w := range s.watchers {
		if w.handle == c.Origin {
			continue
		}
		targets = append(targets, w.fn)
	}
	s.mu.RUnlock()

	for _, fn := range targets {
		fn(c)
	}
}

type Handle struct {
	shared *Shared
	id     string
}

func (h *Handle) ID() string {
	return h.id
}

func (h *Handle) Get(key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	return h.shared.backend.Get(key)
}

func (h *Handle) Set(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := h.shared.backend.Set(key, value); err != nil {
		return err
	}
	h.shared.publish(Change{Key: key, Value: value, Origin: h.id})
	return nil
}

func (h *Handle) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := h.shared.backend.Delete(key); err != nil {
		return err
	}
	h.shared.publish(Change{Key: key, Deleted: true, Origin: h.id})
	return nil
}

// Watch registers fn for writes made through other handles.
func (h *Handle) Watch(fn func(Change)) func() {
	return h.shared.watch(h.id, fn)
}
