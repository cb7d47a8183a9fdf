package provider

import (
	"fmt"
	"sort"
	"sync"

	pv "github.com/stackplan-io/stackplan/pkg/provider"
	"github.com/stackplan-io/stackplan/providers/aws"
	"github.com/stackplan-io/stackplan/providers/docker"
	"github.com/stackplan-io/stackplan/providers/null"
)

// Registry tracks loaded providers by name. Providers run in-process; loading
// one instantiates it, configuration happens separately through Configure.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]pv.Provider
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]pv.Provider),
	}
}

// LoadProvider instantiates the named provider. Loading an already loaded
// provider is a no-op.
func (r *Registry) LoadProvider(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[name]; ok {
		return nil
	}

	var p pv.Provider
	switch name {
	case "null", "":
		p = null.New()
	case "docker":
		p = docker.New()
	case "aws":
		p = aws.New()
	default:
		return fmt.Errorf("unknown provider %q", name)
	}

	r.providers[name] = p
	return nil
}

// Get returns a loaded provider by name.
func (r *Registry) Get(name string) (pv.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = "null"
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not loaded", name)
	}
	return p, nil
}

// Register installs a provider under a name, replacing any existing one.
// Used by tests to inject fakes.
func (r *Registry) Register(name string, p pv.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Loaded returns the names of all loaded providers, sorted.
func (r *Registry) Loaded() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
