// Package registry keeps the authoritative in-memory list of fans discovered
// on the platform together with their last hardware sample.
package registry

import (
	"sort"
	"sync"

	"codeberg.org/mutker/fand/internal/fan"
)

// Origin records how a fan entered the registry.
type Origin int

const (
	// Hardware fans are sampled from the platform every pass.
	Hardware Origin = iota + 1
	// Injected fans were inserted as rows by an operator in simulation; the
	// injected row is their hardware truth.
	Injected
)

// Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	fans   map[string]fan.Record
	origin map[string]Origin
	order  []string
}

func New() *Registry {
	return &Registry{
		fans:   make(map[string]fan.Record),
		origin: make(map[string]Origin),
	}
}

// Upsert inserts or replaces the record keyed by r.Name. Invalid records are
// rejected and leave the table untouched.
func (r *Registry) Upsert(rec fan.Record) error {
	return r.upsert(rec, Hardware)
}

// Inject registers rec as an operator-inserted fan.
func (r *Registry) Inject(rec fan.Record) error {
	return r.upsert(rec, Injected)
}

func (r *Registry) upsert(rec fan.Record, origin Origin) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.fans[rec.Name]; !ok {
		r.order = append(r.order, rec.Name)
		sort.Strings(r.order)
		r.origin[rec.Name] = origin
	}
	r.fans[rec.Name] = rec

	return nil
}

// Get returns the record for name.
func (r *Registry) Get(name string) (fan.Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.fans[name]
	return rec, ok
}

// OriginOf returns how name was registered; zero if unknown.
func (r *Registry) OriginOf(name string) Origin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.origin[name]
}

// ListFans returns a snapshot ordered by fan name.
func (r *Registry) ListFans() []fan.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]fan.Record, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.fans[name])
	}

	return out
}

// Remove forgets name. Used only when the owning subsystem disappears.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.fans[name]; !ok {
		return
	}
	delete(r.fans, name)
	delete(r.origin, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of registered fans.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.fans)
}
