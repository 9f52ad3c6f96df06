package rewrite

import (
	"maps"
	"slices"
	"sync"
)

// Registry records which files import which specifiers during a rewrite
// pass. A build session owns one registry and discards it at the end;
// watch tooling reads it to decide what a changed file invalidates.
type Registry struct {
	mu        sync.Mutex
	importers map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{importers: map[string]map[string]struct{}{}}
}

// Record notes that importer references specifier.
func (r *Registry) Record(specifier, importer string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.importers[specifier]
	if !ok {
		set = map[string]struct{}{}
		r.importers[specifier] = set
	}
	set[importer] = struct{}{}
}

// Importers returns the files that import specifier, sorted.
func (r *Registry) Importers(specifier string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.importers[specifier]))
}

// Specifiers returns every recorded specifier, sorted.
func (r *Registry) Specifiers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.importers))
}
