package savedmodel

import (
	"sync"

	"github.com/23skdu/longbow-nock/internal/native"
)

// SessionStore defines a generic interface for tracking loaded sessions
// by numeric handle.
type SessionStore interface {
	// Put registers a session and returns its handle.
	Put(sess *native.Session) int64
	// Get retrieves a session by handle.
	Get(id int64) (*native.Session, bool)
	// Delete removes a session by handle and returns it.
	Delete(id int64) (*native.Session, bool)
	// Len returns the number of live sessions.
	Len() int
}

// MapRegistry is a simple in-memory implementation of SessionStore.
type MapRegistry struct {
	mu      sync.RWMutex
	next    int64
	entries map[int64]*native.Session
}

func NewMapRegistry() *MapRegistry {
	return &MapRegistry{entries: make(map[int64]*native.Session)}
}

func (r *MapRegistry) Put(sess *native.Session) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	r.entries[r.next] = sess
	return r.next
}

func (r *MapRegistry) Get(id int64) (*native.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.entries[id]
	return sess, ok
}

func (r *MapRegistry) Delete(id int64) (*native.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	return sess, ok
}

func (r *MapRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
