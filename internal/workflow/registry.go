package workflow

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the current set of workflow definitions. Replace swaps the
// whole set atomically, which is how the watcher applies reloads.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{defs: make(map[string]Definition)}
	r.Replace(defs)
	return r
}

func (r *Registry) Replace(defs []Definition) {
	next := make(map[string]Definition, len(defs))
	for _, def := range defs {
		next[def.ID] = def.clone()
	}
	r.mu.Lock()
	r.defs = next
	r.mu.Unlock()
}

func (r *Registry) Get(id string) (Definition, error) {
	r.mu.RLock()
	def, ok := r.defs[id]
	r.mu.RUnlock()
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrWorkflowNotFound, id)
	}
	return def.clone(), nil
}

// IDs lists known workflow ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.defs))
	for id := range r.defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
