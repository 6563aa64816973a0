package ipywire

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Factory builds the widget of a model name. fromFrontend is true when
// the frontend created the widget: its state is about to be applied, so
// the factory must not build the widgets it references.
type Factory func(mgr *Manager, fromFrontend bool) (Widget, error)

// Provider registers a set of factories. Providers passed to
// `NewRegistry` are loaded once, on first use.
type Provider func(reg *Registry) error

// Registry maps model names to factories.
type Registry struct {
	providers []Provider
	once      sync.Once
	loadErr   error

	lk        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry(providers ...Provider) *Registry {
	return &Registry{
		providers: providers,
		factories: make(map[string]Factory),
	}
}

// Register adds a factory for name.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return ErrInvalidFactory
	}

	r.lk.Lock()
	defer r.lk.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %s", ErrFactoryExists, name)
	}
	r.factories[name] = f
	return nil
}

// Lookup returns the factory of name. Errors of providers are reported
// along with unknown names.
func (r *Registry) Lookup(name string) (Factory, error) {
	r.load()

	r.lk.RLock()
	defer r.lk.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		return nil, errors.Join(fmt.Errorf("%w: %s", ErrUnknownModel, name), r.loadErr)
	}
	return f, nil
}

// Names of every registered model, sorted.
func (r *Registry) Names() []string {
	r.load()

	r.lk.RLock()
	defer r.lk.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *Registry) load() {
	r.once.Do(func() {
		var errs []error
		for _, p := range r.providers {
			if err := p(r); err != nil {
				errs = append(errs, err)
			}
		}
		r.loadErr = errors.Join(errs...)
	})
}
