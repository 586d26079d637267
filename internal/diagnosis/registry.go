package diagnosis

import (
	"sync"

	"github.com/google/uuid"
)

// Registry holds published snapshots of sessions currently in flight so
// concurrent callers can observe them. Each session is still owned
// exclusively by its own run, which replaces its snapshot as it
// progresses; the registry only guards the map itself.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*SessionState
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uuid.UUID]*SessionState)}
}

func (r *Registry) Insert(st *SessionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[st.ID] = st
}

func (r *Registry) Get(id uuid.UUID) (*SessionState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.sessions[id]
	return st, ok
}

func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
