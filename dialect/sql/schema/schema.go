// Package schema generates the DDL of registered entity types for
// PostgreSQL, MySQL and SQLite.
package schema

import (
	"context"
	"crypto/md5"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/syssam/tabula/dialect"
	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
)

// Conn is the part of a connection the generators need: escaping, the table
// prefix and the column type casts used to write default values.
type Conn interface {
	dialect.Escaper
	Dialect() string
	Prefix() string
	Cast(field.Type) field.Cast
}

// Generator translates entity metadata into DDL statements.
type Generator interface {
	// CreateTables returns the CREATE TABLE statements of the entity table and
	// of the junction tables of its many-to-many columns.
	CreateTables(*schema.Descriptor) ([]string, error)
	// CreateIndexes returns the CREATE INDEX statements of the entity.
	CreateIndexes(*schema.Descriptor) ([]string, error)
	// CreateConstraints returns the foreign key constraints of the entity and
	// of its junction tables.
	CreateConstraints(*schema.Descriptor) ([]string, error)
	// DropConstraints drops what CreateConstraints creates.
	DropConstraints(*schema.Descriptor) ([]string, error)
	// Drop returns the statements dropping the entity table and its junction tables.
	Drop(*schema.Descriptor) ([]string, error)
}

// Lookup resolves the metadata of an entity type by name.
type Lookup interface {
	Descriptor(name string) (*schema.Descriptor, error)
}

// New returns the generator of the connection dialect. Relation targets are
// resolved with reg.
func New(conn Conn, reg Lookup) (Generator, error) {
	b := builder{conn: conn, reg: reg}
	switch conn.Dialect() {
	case dialect.Postgres:
		return &Postgres{b}, nil
	case dialect.MySQL:
		return &MySQL{b}, nil
	case dialect.SQLite:
		return &SQLite{b}, nil
	}
	return nil, fmt.Errorf("dialect/sql/schema: unsupported dialect %q", conn.Dialect())
}

// builder holds what the dialect generators share.
type builder struct {
	conn Conn
	reg  Lookup
}

// table returns the prefixed table name.
func (b builder) table(name string) string {
	return b.conn.Prefix() + name
}

// junction is a many-to-many column resolved to its junction table.
type junction struct {
	schema.Junction
	selfTable   string // prefixed
	targetTable string // prefixed
}

// junctions returns the junction tables of the many-to-many columns
// declared by d, in declaration order. Junction columns are ordered by name.
func (b builder) junctions(d *schema.Descriptor) ([]junction, error) {
	var out []junction
	for _, c := range d.Columns {
		if !c.IsManyToMany() {
			continue
		}
		a, ok := d.Accessor("get_" + c.Name + "_list")
		if !ok || a.Junction == nil {
			return nil, fmt.Errorf("dialect/sql/schema: %s.%s has no junction", d.Name, c.Name)
		}
		target, err := b.reg.Descriptor(c.Target)
		if err != nil {
			return nil, err
		}
		j := junction{
			Junction:    *a.Junction,
			selfTable:   b.table(d.Table),
			targetTable: b.table(target.Table),
		}
		// Both sides of a relation declared twice emit the same statements.
		if !j.Symmetric && j.SelfColumn > j.TargetColumn {
			j.Junction = j.Flip()
			j.selfTable, j.targetTable = j.targetTable, j.selfTable
		}
		out = append(out, j)
	}
	return out, nil
}

// target returns the prefixed table referenced by a foreign key column.
func (b builder) target(c *field.Descriptor) (string, error) {
	t, err := b.reg.Descriptor(c.Target)
	if err != nil {
		return "", err
	}
	return b.table(t.Table), nil
}

// defaultValue writes the declared default of c as a literal.
func (b builder) defaultValue(c *field.Descriptor) (string, error) {
	v, err := field.Coerce(c, c.Default)
	if err != nil {
		return "", fmt.Errorf("dialect/sql/schema: default of column %q: %w", c.Name, err)
	}
	return b.conn.Cast(c.Type).ToDB(v, b.conn)
}

// indexes returns the declared indexes, sorted by name, followed by the
// unique and indexed columns.
func indexes(d *schema.Descriptor) []indexSpec {
	var out []indexSpec
	for _, name := range slices.Sorted(maps.Keys(d.Indexes)) {
		idx := d.Indexes[name]
		key := idx.StorageKey
		if key == "" {
			key = name
		}
		out = append(out, indexSpec{name: key, unique: idx.Unique, columns: idx.Fields})
	}
	for _, c := range d.Columns {
		switch {
		case c.Name == schema.ID:
		case c.Unique:
			out = append(out, indexSpec{name: c.Name + "_unique_idx", unique: true, columns: []string{c.Name}})
		case c.Index:
			out = append(out, indexSpec{name: c.Name + "_idx", columns: []string{c.Name}})
		}
	}
	return out
}

type indexSpec struct {
	name    string
	unique  bool
	columns []string
}

func (b builder) quoteColumns(cols []string) string {
	q := make([]string, len(cols))
	for i, c := range cols {
		q[i] = b.conn.Qn(c)
	}
	return strings.Join(q, ", ")
}

// ShortIdentifier keeps identifiers within 64 characters: longer names are
// cut to 55 characters and suffixed with 8 hexadecimal characters of their
// MD5 sum.
func ShortIdentifier(name string) string {
	if len(name) <= 64 {
		return name
	}
	return fmt.Sprintf("%s_%x", name[:55], md5.Sum([]byte(name)))[:64]
}

// Execer runs DDL statements.
type Execer interface {
	Execute(ctx context.Context, query string) (int64, error)
}

// Statements returns the DDL creating every given entity: all tables first,
// then the indexes, then the constraints. Junction tables shared by two
// entities are emitted once.
func Statements(g Generator, descs []*schema.Descriptor) ([]string, error) {
	var (
		out  []string
		seen = make(map[string]bool)
	)
	add := func(stmts []string) {
		for _, s := range stmts {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	for _, step := range []func(*schema.Descriptor) ([]string, error){g.CreateTables, g.CreateIndexes, g.CreateConstraints} {
		for _, d := range descs {
			stmts, err := step(d)
			if err != nil {
				return nil, fmt.Errorf("dialect/sql/schema: %s: %w", d.Name, err)
			}
			add(stmts)
		}
	}
	return out, nil
}

// DropStatements returns the DDL dropping every given entity: constraints
// first, then the tables.
func DropStatements(g Generator, descs []*schema.Descriptor) ([]string, error) {
	var (
		out  []string
		seen = make(map[string]bool)
	)
	for _, step := range []func(*schema.Descriptor) ([]string, error){g.DropConstraints, g.Drop} {
		for _, d := range descs {
			stmts, err := step(d)
			if err != nil {
				return nil, fmt.Errorf("dialect/sql/schema: %s: %w", d.Name, err)
			}
			for _, s := range stmts {
				if !seen[s] {
					seen[s] = true
					out = append(out, s)
				}
			}
		}
	}
	return out, nil
}

// Exec runs the statements in order and stops at the first failure.
func Exec(ctx context.Context, conn Execer, stmts []string) error {
	for _, s := range stmts {
		if _, err := conn.Execute(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
