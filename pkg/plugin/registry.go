package plugin

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory instantiates a plugin from its raw configuration options.
type Factory func(options map[string]any) (Plugin, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// RegisterFactory makes a plugin available under the given name, typically
// from an init function. Registering the same name twice panics, like
// database/sql driver registration does.
func RegisterFactory(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if factory == nil {
		panic("plugin: RegisterFactory factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("plugin: RegisterFactory called twice for " + name)
	}
	factories[name] = factory
}

// LookupFactory returns the factory registered under name.
func LookupFactory(name string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// FactoryNames returns the registered plugin names sorted.
func FactoryNames() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry holds the plugins configured for one build, in configuration
// order. The zero value is empty and usable.
type Registry struct {
	plugins []Plugin
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a plugin. Duplicate names are an error since diagnostics
// refer to plugins by name.
func (r *Registry) Register(p Plugin) error {
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin %q registered twice", p.Name())
		}
	}
	r.plugins = append(r.plugins, p)
	return nil
}

// Plugins returns the registered plugins in registration order.
func (r *Registry) Plugins() []Plugin {
	return r.plugins
}

// LoaderFor returns the first registered loader claiming the extension,
// along with the output extension it produces.
func (r *Registry) LoaderFor(ext string) (Loader, string, bool) {
	ext = strings.ToLower(ext)
	for _, p := range r.plugins {
		loader, ok := p.(Loader)
		if !ok {
			continue
		}
		for in, out := range loader.Extensions() {
			if strings.ToLower(in) == ext {
				return loader, out, true
			}
		}
	}
	return nil, "", false
}

// Transformers returns the registered transformers in registration order.
func (r *Registry) Transformers() []Transformer {
	var ts []Transformer
	for _, p := range r.plugins {
		if t, ok := p.(Transformer); ok {
			ts = append(ts, t)
		}
	}
	return ts
}

// Optimizers returns the registered optimizers in registration order.
func (r *Registry) Optimizers() []Optimizer {
	var os []Optimizer
	for _, p := range r.plugins {
		if o, ok := p.(Optimizer); ok {
			os = append(os, o)
		}
	}
	return os
}
