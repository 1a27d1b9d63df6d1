package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/schema/field"
)

// Kind is the kind of a relationship accessor.
type Kind uint8

// Accessor kinds.
const (
	// ForeignKey resolves the single entity referenced by a column of the owner.
	ForeignKey Kind = iota + 1
	// ManyToMany lists the entities associated through a junction table.
	ManyToMany
	// ReverseForeignKey lists the entities whose foreign key references the owner.
	ReverseForeignKey
	// ReverseManyToMany lists the entities whose many-to-many column targets the owner.
	ReverseManyToMany
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case ForeignKey:
		return "foreignkey"
	case ManyToMany:
		return "manytomany"
	case ReverseForeignKey:
		return "reverse foreignkey"
	case ReverseManyToMany:
		return "reverse manytomany"
	}
	return "invalid"
}

// IsList reports if the accessor returns a list of entities.
func (k Kind) IsList() bool { return k != ForeignKey }

// IsManyToMany reports if the accessor goes through a junction table.
func (k Kind) IsManyToMany() bool { return k == ManyToMany || k == ReverseManyToMany }

// Junction is the table backing a many-to-many relation, seen from one side.
type Junction struct {
	Table        string // without the connection prefix
	SelfColumn   string // holds the id of the accessor owner
	TargetColumn string // holds the id of the related entity
	Symmetric    bool   // both sides are the same entity type
}

// JunctionTable returns the junction table name of two entity types. The
// lowercased names are sorted so the name does not depend on which side
// declares the relation.
func JunctionTable(a, b string) string {
	names := []string{strings.ToLower(a), strings.ToLower(b)}
	slices.Sort(names)
	return names[0] + "_" + names[1] + "_assoc"
}

// JunctionColumn returns the junction column holding ids of the given entity.
func JunctionColumn(entity string) string {
	return strings.ToLower(entity) + "_id"
}

// NewJunction returns the junction between self and target as seen from self.
// A self-referential junction stores the related side in related_<name>_id.
func NewJunction(self, target string) Junction {
	j := Junction{
		Table:        JunctionTable(self, target),
		SelfColumn:   JunctionColumn(self),
		TargetColumn: JunctionColumn(target),
	}
	if strings.EqualFold(self, target) {
		j.TargetColumn = "related_" + j.SelfColumn
		j.Symmetric = true
	}
	return j
}

// Flip returns the junction as seen from the other side.
func (j Junction) Flip() Junction {
	if j.Symmetric {
		return j
	}
	j.SelfColumn, j.TargetColumn = j.TargetColumn, j.SelfColumn
	return j
}

// Accessor is one generated relationship method of an entity type.
type Accessor struct {
	Method   string // get_<relation> or get_<relation>_list
	Kind     Kind
	Target   string    // entity type returned by the accessor
	Column   string    // declaring column: on the owner for direct kinds, on Target for reverse kinds
	Junction *Junction // many-to-many kinds only
}

// Relations is the accessor table derived from the columns of all
// registered entities.
type Relations struct {
	ForeignKeys []*Accessor // own foreign key columns
	ManyToMany  []*Accessor // own many-to-many columns and reverse many-to-many
	Reverse     []*Accessor // relations declared by other entities

	byMethod map[string]*Accessor
	order    []string
}

// Methods returns the accessor method names in derivation order.
func (r *Relations) Methods() []string {
	return slices.Clone(r.order)
}

// Lookup returns the accessor with the given method name.
func (r *Relations) Lookup(method string) (*Accessor, bool) {
	a, ok := r.byMethod[method]
	return a, ok
}

// To returns the list accessors targeting the given entity type.
func (r *Relations) To(target string) []*Accessor {
	var out []*Accessor
	for _, m := range r.order {
		if a := r.byMethod[m]; a.Target == target {
			out = append(out, a)
		}
	}
	return out
}

// ManyToManyWith returns the junction accessor relating the owner with target.
func (r *Relations) ManyToManyWith(target string) (*Accessor, bool) {
	for _, a := range r.ManyToMany {
		if a.Target == target {
			return a, true
		}
	}
	return nil, false
}

func newRelations() *Relations {
	return &Relations{byMethod: make(map[string]*Accessor)}
}

func (r *Relations) add(owner string, a *Accessor) error {
	if prev, ok := r.byMethod[a.Method]; ok {
		if prev.Kind.IsManyToMany() && a.Kind.IsManyToMany() && prev.Junction.Table == a.Junction.Table {
			return nil
		}
		return tabula.NewMetadataError(owner,
			"accessor %q is defined by %s.%s and %s.%s, set distinct relate names",
			a.Method, declaring(owner, prev), prev.Column, declaring(owner, a), a.Column)
	}
	r.byMethod[a.Method] = a
	r.order = append(r.order, a.Method)
	switch a.Kind {
	case ForeignKey:
		r.ForeignKeys = append(r.ForeignKeys, a)
	case ManyToMany:
		r.ManyToMany = append(r.ManyToMany, a)
	case ReverseManyToMany:
		r.ManyToMany = append(r.ManyToMany, a)
		r.Reverse = append(r.Reverse, a)
	case ReverseForeignKey:
		r.Reverse = append(r.Reverse, a)
	}
	return nil
}

func declaring(owner string, a *Accessor) string {
	if a.Kind == ReverseForeignKey || a.Kind == ReverseManyToMany {
		return a.Target
	}
	return owner
}

// reverseMethod names the accessor added to the target of a relation column.
func reverseMethod(declarer string, c *field.Descriptor) string {
	name := c.RelateName
	if name == "" {
		name = declarer
	}
	return "get_" + strings.ToLower(name) + "_list"
}

// deriveRelations fills Relations for every descriptor. Only already declared
// columns are read, so no init function runs again and self references
// terminate.
func deriveRelations(descs map[string]*Descriptor, order []string) error {
	for _, name := range order {
		descs[name].Relations = newRelations()
	}
	junctions := make(map[string]string)
	for _, name := range order {
		d := descs[name]
		for _, c := range d.Columns {
			if !c.Type.IsRelation() {
				continue
			}
			target, ok := descs[c.Target]
			if !ok {
				return tabula.NewMetadataError(name, "column %q targets unregistered entity %q", c.Name, c.Target)
			}
			switch c.Type {
			case field.TypeForeignKey:
				if err := d.Relations.add(name, &Accessor{
					Method: "get_" + c.Name,
					Kind:   ForeignKey,
					Target: target.Name,
					Column: c.Name,
				}); err != nil {
					return err
				}
				if err := target.Relations.add(target.Name, &Accessor{
					Method: reverseMethod(name, c),
					Kind:   ReverseForeignKey,
					Target: name,
					Column: c.Name,
				}); err != nil {
					return err
				}
			case field.TypeManyToMany:
				j := NewJunction(name, target.Name)
				key := name + "." + c.Name
				if prev, ok := junctions[j.Table]; ok && !mirrors(prev, key) {
					return tabula.NewMetadataError(name,
						"columns %s and %s share junction table %q", prev, key, j.Table)
				}
				junctions[j.Table] = key
				if err := d.Relations.add(name, &Accessor{
					Method:   "get_" + c.Name + "_list",
					Kind:     ManyToMany,
					Target:   target.Name,
					Column:   c.Name,
					Junction: &j,
				}); err != nil {
					return err
				}
				flipped := j.Flip()
				if err := target.Relations.add(target.Name, &Accessor{
					Method:   reverseMethod(name, c),
					Kind:     ReverseManyToMany,
					Target:   name,
					Column:   c.Name,
					Junction: &flipped,
				}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// mirrors reports if the two many-to-many columns, given as Entity.column,
// declare the same relation from opposite sides.
func mirrors(a, b string) bool {
	ea, _, _ := strings.Cut(a, ".")
	eb, _, _ := strings.Cut(b, ".")
	return ea != eb
}

// String implements fmt.Stringer.
func (a *Accessor) String() string {
	return fmt.Sprintf("%s %s -> %s", a.Kind, a.Method, a.Target)
}
