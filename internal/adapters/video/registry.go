package video

import (
	"fmt"
	"strings"
)

// Registry holds providers by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry registers providers. Later duplicates replace earlier ones.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

// Get returns the provider registered as name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Ordered returns the providers named in priority order.
func (r *Registry) Ordered(priority []string) ([]Provider, error) {
	out := make([]Provider, 0, len(priority))
	seen := make(map[string]struct{}, len(priority))
	for _, name := range priority {
		p, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[p.Name()]; dup {
			continue
		}
		seen[p.Name()] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}
