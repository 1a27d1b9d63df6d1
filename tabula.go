// Package tabula maps declarative entity metadata onto SQL tables of
// PostgreSQL, MySQL and SQLite databases.
//
// The root package holds the types shared by all layers: the error
// taxonomy, mutation operations and the policy contracts evaluated by the
// model client before reads and writes.
package tabula

import "context"

// Op represents the operation of a mutation.
type Op uint

// Mutation operations.
const (
	OpCreate Op = 1 << iota // entity creation
	OpUpdate                // update of one entity
	OpDelete                // removal of one entity and its dependents
)

// Is reports whether o matches the given operation.
func (i Op) Is(o Op) bool { return i&o != 0 }

// String implements fmt.Stringer.
func (i Op) String() string {
	switch i {
	case OpCreate:
		return "OpCreate"
	case OpUpdate:
		return "OpUpdate"
	case OpDelete:
		return "OpDelete"
	}
	return "Op(unknown)"
}

// Filter restricts the rows a query or mutation applies to.
type Filter interface {
	// Where appends SQL conditions, ANDed with the existing ones.
	Where(clauses ...string)
}

// Query is a list or lookup query about to run against an entity table.
type Query interface {
	// Entity returns the queried entity type.
	Entity() string
	// Filter returns the filter of the query.
	Filter() Filter
}

// Mutation is a create, update or delete about to run on one entity.
type Mutation interface {
	// Entity returns the mutated entity type.
	Entity() string
	// Op returns the operation.
	Op() Op
	// ID returns the primary key of the entity, zero on creation.
	ID() int64
	// Field returns the value of a column.
	Field(name string) (any, bool)
}

// Policy decides whether queries and mutations are allowed.
type Policy interface {
	EvalQuery(context.Context, Query) error
	EvalMutation(context.Context, Mutation) error
}
