// Package index provides builders for the indexes of an entity table.
package index

import "fmt"

// Descriptor describes one index.
type Descriptor struct {
	Name       string   // set by the registry from the entity when empty
	Fields     []string // indexed columns, in order
	Unique     bool
	StorageKey string // explicit index name in the database
}

// Err returns an error when the descriptor is not usable.
func (d *Descriptor) Err() error {
	if len(d.Fields) == 0 {
		return fmt.Errorf("index: %q has no columns", d.Name)
	}
	seen := make(map[string]struct{}, len(d.Fields))
	for _, f := range d.Fields {
		if _, ok := seen[f]; ok {
			return fmt.Errorf("index: %q lists column %q twice", d.Name, f)
		}
		seen[f] = struct{}{}
	}
	return nil
}

// Builder for indexes.
type Builder struct {
	desc *Descriptor
}

// Fields creates an index on the given columns.
//
//	index.Fields("list", "completed")
func Fields(fields ...string) *Builder {
	return &Builder{desc: &Descriptor{Fields: fields}}
}

// Name sets the index key used in the entity descriptor.
func (b *Builder) Name(name string) *Builder {
	b.desc.Name = name
	return b
}

// Unique makes the index unique.
func (b *Builder) Unique() *Builder {
	b.desc.Unique = true
	return b
}

// StorageKey sets the index name in the database.
func (b *Builder) StorageKey(key string) *Builder {
	b.desc.StorageKey = key
	return b
}

// Descriptor returns the index descriptor.
func (b *Builder) Descriptor() *Descriptor {
	return b.desc
}
