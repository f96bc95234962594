// Package presence maintains the authoritative set of display names that are
// currently admitted to the room. The registry is the single serialization
// point for admission races: TryAdmit either claims a name or reports that
// another live session already holds it.
package presence

import (
	"log"
	"sort"
	"sync"
)

// Registry is a linearizable set of display names. The mutex guards every
// operation; critical sections are a single set operation plus, at most,
// copying the names into a local slice. Nothing inside a critical section
// blocks on I/O or channels.
type Registry struct {
	mu    sync.Mutex
	names map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// TryAdmit atomically inserts name and reports whether the insert happened.
// It returns false exactly when the name is already held.
func (r *Registry) TryAdmit(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.names[name]; taken {
		return false
	}
	r.names[name] = struct{}{}
	return true
}

// Release removes name from the registry. Releasing a name that is not
// present is a logged no-op; it indicates a teardown path ran for a session
// that never completed admission.
func (r *Registry) Release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.names[name]; !ok {
		log.Printf("presence: release of unknown name %q", name)
		return
	}
	delete(r.names, name)
}

// Snapshot returns a sorted copy of the current names. The copy is built
// under the lock and owned by the caller; later mutations do not affect it.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.names))
	for name := range r.names {
		names = append(names, name)
	}
	r.mu.Unlock()

	sort.Strings(names)
	return names
}

// Len reports how many names are currently admitted.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.names)
}
