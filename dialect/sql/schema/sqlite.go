package schema

import (
	"fmt"
	"strings"

	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
)

// SQLite generates SQLite DDL. Foreign keys are declared inline with the
// column, as SQLite cannot add constraints to an existing table.
type SQLite struct{ builder }

var sqliteTypes = map[field.Type]string{
	field.TypeSequence:   "integer",
	field.TypeVarchar:    "varchar",
	field.TypeBoolean:    "bool",
	field.TypeInteger:    "integer",
	field.TypeFloat:      "real",
	field.TypeText:       "text",
	field.TypeHTML:       "text",
	field.TypeDate:       "date",
	field.TypeDatetime:   "datetime",
	field.TypeTime:       "time",
	field.TypeForeignKey: "integer",
	field.TypePassword:   "varchar",
	field.TypeEmail:      "varchar",
	field.TypeFile:       "varchar",
	field.TypeBlob:       "blob",
	field.TypeCompressed: "blob",
}

var sqliteDefaults = map[field.Type]string{
	field.TypeVarchar:  "''",
	field.TypeBoolean:  "0",
	field.TypeInteger:  "0",
	field.TypeFloat:    "0.0",
	field.TypeText:     "''",
	field.TypeHTML:     "''",
	field.TypeDate:     "'0001-01-01'",
	field.TypeDatetime: "'0001-01-01 00:00:00'",
	field.TypeTime:     "'00:00:00'",
	field.TypePassword: "''",
	field.TypeEmail:    "''",
	field.TypeFile:     "''",
}

// CreateTables implements Generator.
func (g *SQLite) CreateTables(d *schema.Descriptor) ([]string, error) {
	var cols []string
	for _, c := range d.Columns {
		if c.IsManyToMany() {
			continue
		}
		def, err := g.column(c)
		if err != nil {
			return nil, err
		}
		cols = append(cols, def)
	}
	stmts := []string{fmt.Sprintf("CREATE TABLE %s (\n%s\n);", g.conn.Qn(g.table(d.Table)), strings.Join(cols, ",\n"))}

	js, err := g.junctions(d)
	if err != nil {
		return nil, err
	}
	for _, j := range js {
		self, target := g.conn.Qn(j.SelfColumn), g.conn.Qn(j.TargetColumn)
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE %s (\n%s integer default 0 REFERENCES %s (%s),\n%s integer default 0 REFERENCES %s (%s),\nPRIMARY KEY (%s, %s)\n);",
			g.conn.Qn(g.table(j.Table)),
			self, g.conn.Qn(j.selfTable), g.conn.Qn(schema.ID),
			target, g.conn.Qn(j.targetTable), g.conn.Qn(schema.ID),
			self, target))
	}
	return stmts, nil
}

func (g *SQLite) column(c *field.Descriptor) (string, error) {
	if c.Type == field.TypeSequence {
		return g.conn.Qn(c.Name) + " integer PRIMARY KEY AUTOINCREMENT", nil
	}
	typ, ok := sqliteTypes[c.Type]
	if !ok {
		return "", fmt.Errorf("dialect/sql/schema: no sqlite type for %s column %q", c.Type, c.Name)
	}
	var b strings.Builder
	b.WriteString(g.conn.Qn(c.Name) + " " + typ)
	if !c.Nullable {
		b.WriteString(" NOT NULL")
	}
	switch {
	case c.Default != nil:
		v, err := g.defaultValue(c)
		if err != nil {
			return "", err
		}
		b.WriteString(" default " + v)
	case c.Nullable:
		b.WriteString(" default NULL")
	default:
		if v, ok := sqliteDefaults[c.Type]; ok {
			b.WriteString(" default " + v)
		}
	}
	if c.IsForeignKey() {
		ref, err := g.target(c)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, " REFERENCES %s (%s)", g.conn.Qn(ref), g.conn.Qn(schema.ID))
	}
	return b.String(), nil
}

// CreateIndexes implements Generator.
func (g *SQLite) CreateIndexes(d *schema.Descriptor) ([]string, error) {
	table := g.table(d.Table)
	var stmts []string
	for _, idx := range indexes(d) {
		unique := ""
		if idx.unique {
			unique = "UNIQUE "
		}
		stmts = append(stmts, fmt.Sprintf("CREATE %sINDEX %s ON %s (%s);",
			unique, g.conn.Qn(table+"_"+idx.name), g.conn.Qn(table), g.quoteColumns(idx.columns)))
	}
	return stmts, nil
}

// CreateConstraints implements Generator. Constraints are part of the
// table definitions.
func (g *SQLite) CreateConstraints(*schema.Descriptor) ([]string, error) {
	return nil, nil
}

// DropConstraints implements Generator.
func (g *SQLite) DropConstraints(*schema.Descriptor) ([]string, error) {
	return nil, nil
}

// Drop implements Generator.
func (g *SQLite) Drop(d *schema.Descriptor) ([]string, error) {
	stmts := []string{fmt.Sprintf("DROP TABLE IF EXISTS %s", g.conn.Qn(g.table(d.Table)))}
	js, err := g.junctions(d)
	if err != nil {
		return nil, err
	}
	for _, j := range js {
		stmts = append(stmts, fmt.Sprintf("DROP TABLE IF EXISTS %s", g.conn.Qn(g.table(j.Table))))
	}
	return stmts, nil
}
