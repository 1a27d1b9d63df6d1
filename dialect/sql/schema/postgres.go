package schema

import (
	"fmt"
	"strings"

	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
)

// Postgres generates PostgreSQL DDL.
type Postgres struct{ builder }

var postgresTypes = map[field.Type]string{
	field.TypeSequence:   "serial",
	field.TypeVarchar:    "character varying",
	field.TypeBoolean:    "boolean",
	field.TypeInteger:    "integer",
	field.TypeFloat:      "real",
	field.TypeText:       "text",
	field.TypeHTML:       "text",
	field.TypeDate:       "date",
	field.TypeDatetime:   "timestamp",
	field.TypeTime:       "time",
	field.TypeForeignKey: "integer",
	field.TypePassword:   "character varying",
	field.TypeEmail:      "character varying",
	field.TypeFile:       "character varying",
	field.TypeBlob:       "bytea",
	field.TypeCompressed: "bytea",
}

var postgresDefaults = map[field.Type]string{
	field.TypeVarchar:    "''",
	field.TypeBoolean:    "FALSE",
	field.TypeInteger:    "0",
	field.TypeFloat:      "0.0",
	field.TypeText:       "''",
	field.TypeHTML:       "''",
	field.TypeDate:       "'0001-01-01'",
	field.TypeDatetime:   "'0001-01-01 00:00:00'",
	field.TypeTime:       "'00:00:00'",
	field.TypePassword:   "''",
	field.TypeEmail:      "''",
	field.TypeFile:       "''",
	field.TypeBlob:       "''",
	field.TypeCompressed: "''",
}

// CreateTables implements Generator.
func (g *Postgres) CreateTables(d *schema.Descriptor) ([]string, error) {
	table := g.table(d.Table)
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
	cols = append(cols, fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)", g.conn.Qn(ShortIdentifier(table+"_pkey")), g.conn.Qn(schema.ID)))
	stmts := []string{fmt.Sprintf("CREATE TABLE %s (\n%s\n);", g.conn.Qn(table), strings.Join(cols, ",\n"))}

	js, err := g.junctions(d)
	if err != nil {
		return nil, err
	}
	for _, j := range js {
		jt := g.table(j.Table)
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE %s (\n%s integer default 0,\n%s integer default 0,\nCONSTRAINT %s PRIMARY KEY (%s, %s)\n);",
			g.conn.Qn(jt),
			g.conn.Qn(j.SelfColumn), g.conn.Qn(j.TargetColumn),
			g.conn.Qn(ShortIdentifier(jt+"_pkey")), g.conn.Qn(j.SelfColumn), g.conn.Qn(j.TargetColumn)))
	}
	return stmts, nil
}

func (g *Postgres) column(c *field.Descriptor) (string, error) {
	typ, ok := postgresTypes[c.Type]
	if !ok {
		return "", fmt.Errorf("dialect/sql/schema: no postgres type for %s column %q", c.Type, c.Name)
	}
	var b strings.Builder
	b.WriteString(g.conn.Qn(c.Name))
	b.WriteString(" ")
	b.WriteString(typ)
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
	case c.Nullable && c.Type != field.TypeSequence:
		b.WriteString(" default NULL")
	default:
		if v, ok := postgresDefaults[c.Type]; ok {
			b.WriteString(" default " + v)
		}
	}
	return b.String(), nil
}

// CreateIndexes implements Generator.
func (g *Postgres) CreateIndexes(d *schema.Descriptor) ([]string, error) {
	table := g.table(d.Table)
	var stmts []string
	for _, idx := range indexes(d) {
		unique := ""
		if idx.unique {
			unique = "UNIQUE "
		}
		stmts = append(stmts, fmt.Sprintf("CREATE %sINDEX %s ON %s (%s);",
			unique, g.conn.Qn(ShortIdentifier(table+"_"+idx.name)), g.conn.Qn(table), g.quoteColumns(idx.columns)))
	}
	return stmts, nil
}

// CreateConstraints implements Generator.
func (g *Postgres) CreateConstraints(d *schema.Descriptor) ([]string, error) {
	table := g.table(d.Table)
	var stmts []string
	for _, c := range d.Columns {
		if !c.IsForeignKey() {
			continue
		}
		ref, err := g.target(c)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, g.foreignKey(table, ShortIdentifier(table+"_"+c.Name+"_fkey"), c.Name, ref))
	}
	js, err := g.junctions(d)
	if err != nil {
		return nil, err
	}
	for _, j := range js {
		jt := g.table(j.Table)
		stmts = append(stmts,
			g.foreignKey(jt, ShortIdentifier(jt+"_fkey1"), j.SelfColumn, j.selfTable),
			g.foreignKey(jt, ShortIdentifier(jt+"_fkey2"), j.TargetColumn, j.targetTable),
		)
	}
	return stmts, nil
}

func (g *Postgres) foreignKey(table, name, column, ref string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s\n    FOREIGN KEY (%s)\n    REFERENCES %s (%s) MATCH SIMPLE\n    ON UPDATE NO ACTION ON DELETE NO ACTION",
		g.conn.Qn(table), g.conn.Qn(name), g.conn.Qn(column), g.conn.Qn(ref), g.conn.Qn(schema.ID))
}

// DropConstraints implements Generator.
func (g *Postgres) DropConstraints(d *schema.Descriptor) ([]string, error) {
	table := g.table(d.Table)
	var stmts []string
	for _, c := range d.Columns {
		if c.IsForeignKey() {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE IF EXISTS %s DROP CONSTRAINT IF EXISTS %s",
				g.conn.Qn(table), g.conn.Qn(ShortIdentifier(table+"_"+c.Name+"_fkey"))))
		}
	}
	js, err := g.junctions(d)
	if err != nil {
		return nil, err
	}
	for _, j := range js {
		jt := g.table(j.Table)
		for _, suffix := range []string{"_fkey1", "_fkey2"} {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE IF EXISTS %s DROP CONSTRAINT IF EXISTS %s",
				g.conn.Qn(jt), g.conn.Qn(ShortIdentifier(jt+suffix))))
		}
	}
	return stmts, nil
}

// Drop implements Generator. CASCADE removes the constraints of other tables
// referencing the dropped ones.
func (g *Postgres) Drop(d *schema.Descriptor) ([]string, error) {
	stmts := []string{fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", g.conn.Qn(g.table(d.Table)))}
	js, err := g.junctions(d)
	if err != nil {
		return nil, err
	}
	for _, j := range js {
		stmts = append(stmts, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", g.conn.Qn(g.table(j.Table))))
	}
	return stmts, nil
}
