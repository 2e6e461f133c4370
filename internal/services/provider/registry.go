package provider

import (
	"fmt"
	"slices"

	"theater-site/internal/status"
	"theater-site/models"
)

// Registry holds the configured providers. The first one registered is the
// default for checkouts that do not name a provider.
type Registry struct {
	providers map[models.Provider]Provider
	primary   models.Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[models.Provider]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
	if r.primary == "" {
		r.primary = p.Name()
	}
}

// Get returns the named provider, or the primary one for an empty name.
func (r *Registry) Get(name models.Provider) (Provider, error) {
	if name == "" {
		name = r.primary
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", status.ErrUnknownProvider, name)
	}
	return p, nil
}

func (r *Registry) SetPrimary(name models.Provider) error {
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("%w: %q", status.ErrUnknownProvider, name)
	}
	r.primary = name
	return nil
}

func (r *Registry) Available() []models.Provider {
	names := make([]models.Provider, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
