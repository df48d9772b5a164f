package events

import (
	"sync"

	"github.com/xkilldash9x/polyplug/internal/dom"
)

// Registration is the native listener installed for one remote listener id.
type Registration struct {
	Listener  *dom.Listener
	EventType string
	// Nodes are the elements the listener was attached to.
	Nodes []dom.Node
}

// Registry maps remote listener ids to their registrations. Each bridge owns
// its own registry.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Registration
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Registration)}
}

// Get returns the registration stored under id.
func (r *Registry) Get(id string) (*Registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.entries[id]
	return reg, ok
}

// Put stores reg under id and returns the entry it overwrote, if any.
func (r *Registry) Put(id string, reg *Registration) *Registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.entries[id]
	r.entries[id] = reg
	return prev
}

// Delete removes id.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// Len reports how many ids are registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
