package source

import (
	"fmt"
	"sort"
)

// Registry maps source ids to their adapters. Built once at startup;
// read-only afterwards.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

func (r *Registry) Register(a Adapter) error {
	if _, exists := r.adapters[a.ID()]; exists {
		return fmt.Errorf("duplicate source id: %s", a.ID())
	}
	r.adapters[a.ID()] = a
	return nil
}

func (r *Registry) Get(id string) (Adapter, bool) {
	a, ok := r.adapters[id]
	return a, ok
}

// All returns every registered adapter ordered by id.
func (r *Registry) All() []Adapter {
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Adapter, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.adapters[id])
	}
	return out
}

func (r *Registry) Count() int {
	return len(r.adapters)
}
