package sessions

import (
	"errors"
	"sync"
)

// ErrDuplicateSession indicates a session id collision on registration.
// Duplicate ids point at an id-generation bug upstream; the registry fails
// loudly instead of silently replacing a live stream.
var ErrDuplicateSession = errors.New("session id already registered")

// Registry is the in-memory table mapping session ids to sessions. It is
// owned by the transport layer: one instance per transport, constructed at
// startup and torn down with it. A session is discoverable iff its state is
// pending-bind or active; removal marks it closed.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register inserts a new session. It fails with ErrDuplicateSession when the
// id is already present.
func (r *Registry) Register(sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[sess.ID()]; exists {
		return ErrDuplicateSession
	}
	r.sessions[sess.ID()] = sess
	return nil
}

// Lookup returns the session for id, if present. Pending-bind sessions are
// returned too: callers deciding deliverability must check State, not mere
// presence.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Remove deletes the session for id and transitions it to closed. Removing an
// absent id is a no-op; disconnect and error teardown paths may both run.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		_ = sess.Close()
	}
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the ids of all registered sessions.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
