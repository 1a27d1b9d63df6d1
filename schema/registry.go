package schema

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/schema/field"
)

// ErrSealed is returned when registering an entity type after the metadata
// has been built.
var ErrSealed = errors.New("schema: registry is sealed, register entities before the first lookup")

// Registry holds the entity types of a process and their metadata.
//
// Metadata of all registered types is built together on the first lookup:
// the init functions run once, then relationships are derived from the
// declared columns. The result is cached until Reset.
type Registry struct {
	mu    sync.RWMutex
	inits map[string]InitFunc
	order []string
	built map[string]*Descriptor
	err   error
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{inits: make(map[string]InitFunc)}
}

// Register adds an entity type.
func (r *Registry) Register(name string, fn InitFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("schema: register needs a name and an init function")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.built != nil || r.err != nil {
		return ErrSealed
	}
	if _, ok := r.inits[name]; ok {
		return fmt.Errorf("schema: entity %q already registered", name)
	}
	r.inits[name] = fn
	r.order = append(r.order, name)
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, fn InitFunc) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Registered reports if the entity type is registered.
func (r *Registry) Registered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.inits[name]
	return ok
}

// Names returns the registered entity names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Descriptor returns the metadata of the named entity type, building the
// metadata of all registered types on first use.
func (r *Registry) Descriptor(name string) (*Descriptor, error) {
	descs, err := r.load()
	if err != nil {
		return nil, err
	}
	d, ok := descs[name]
	if !ok {
		return nil, fmt.Errorf("schema: entity %q is not registered", name)
	}
	return d, nil
}

// Descriptors returns the metadata of all entity types in registration order.
func (r *Registry) Descriptors() ([]*Descriptor, error) {
	descs, err := r.load()
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, descs[name])
	}
	return out, nil
}

// Reset drops the cached metadata and unseals the registry. Registered
// types are kept.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.built, r.err = nil, nil
}

func (r *Registry) load() (map[string]*Descriptor, error) {
	r.mu.RLock()
	built, err := r.built, r.err
	r.mu.RUnlock()
	if built != nil || err != nil {
		return built, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.built == nil && r.err == nil {
		r.built, r.err = build(r.inits, r.order)
	}
	return r.built, r.err
}

// build runs every init function once, then derives the relations.
func build(inits map[string]InitFunc, order []string) (map[string]*Descriptor, error) {
	descs := make(map[string]*Descriptor, len(order))
	for _, name := range order {
		d, err := declare(name, inits[name])
		if err != nil {
			return nil, err
		}
		descs[name] = d
	}
	if err := deriveRelations(descs, order); err != nil {
		return nil, err
	}
	return descs, nil
}

func declare(name string, fn InitFunc) (*Descriptor, error) {
	def := &Def{desc: newDescriptor(name)}
	fn(def)
	d := def.desc
	if len(def.errs) > 0 {
		return nil, tabula.NewMetadataError(name, "%v", errors.Join(def.errs...))
	}
	id, ok := d.columns[ID]
	switch {
	case !ok:
		id = field.Sequence(ID).Descriptor()
		d.columns[ID] = id
		d.Columns = append([]*field.Descriptor{id}, d.Columns...)
	case id.Type != field.TypeSequence:
		return nil, tabula.NewMetadataError(name, "column %q must be a sequence, got %s", ID, id.Type)
	}
	for _, c := range d.Columns {
		if err := c.Err(); err != nil {
			return nil, tabula.NewMetadataError(name, "%v", err)
		}
		if c.Type == field.TypeSequence && c.Name != ID {
			return nil, tabula.NewMetadataError(name, "sequence column %q is not the primary key", c.Name)
		}
		if c.Verbose == "" {
			c.Verbose = humanize(c.Name)
		}
	}
	for _, idx := range d.Indexes {
		if err := idx.Err(); err != nil {
			return nil, tabula.NewMetadataError(name, "%v", err)
		}
		for _, f := range idx.Fields {
			c, ok := d.columns[f]
			if !ok {
				return nil, tabula.NewMetadataError(name, "index %q references unknown column %q", idx.Name, f)
			}
			if c.IsManyToMany() {
				return nil, tabula.NewMetadataError(name, "index %q references many-to-many column %q", idx.Name, f)
			}
		}
	}
	if d.Verbose == "" {
		d.Verbose = humanize(name)
	}
	if d.Table == "" {
		return nil, tabula.NewMetadataError(name, "empty table name")
	}
	return d, nil
}
