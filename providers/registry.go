package providers

import (
	"sort"
)

// Registry looks adapters up by provider name. It is built once at startup and read only
// afterwards.
type Registry struct {
	adapters map[Name]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[Name]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Descriptor().Name] = a
	}
	return r
}

// NewDefaultRegistry registers every supported provider. opts apply to every adapter, so
// only provider-neutral options such as WithHTTPClient belong here.
func NewDefaultRegistry(credentials *CredentialResolver, opts ...Option) *Registry {
	return NewRegistry(
		NewGoogle(credentials, opts...),
		NewBox(credentials, opts...),
		NewDropbox(credentials, opts...),
		NewSlack(credentials, opts...),
	)
}

func (r *Registry) Get(name Name) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

func (r *Registry) Has(name Name) bool {
	_, ok := r.adapters[name]
	return ok
}

func (r *Registry) Names() []Name {
	names := make([]Name, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func (r *Registry) Descriptors() []Descriptor {
	names := r.Names()
	descriptors := make([]Descriptor, 0, len(names))
	for _, name := range names {
		descriptors = append(descriptors, r.adapters[name].Descriptor())
	}
	return descriptors
}
