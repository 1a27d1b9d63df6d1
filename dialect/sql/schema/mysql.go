package schema

import (
	"fmt"
	"strings"

	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
)

// MySQL generates MySQL DDL. Tables use the InnoDB engine.
type MySQL struct{ builder }

var mysqlTypes = map[field.Type]string{
	field.TypeSequence:   "mediumint(9) unsigned",
	field.TypeBoolean:    "bool",
	field.TypeInteger:    "integer",
	field.TypeText:       "longtext",
	field.TypeHTML:       "longtext",
	field.TypeDate:       "date",
	field.TypeDatetime:   "datetime",
	field.TypeTime:       "time",
	field.TypeForeignKey: "mediumint(9) unsigned",
	field.TypeBlob:       "longblob",
	field.TypeCompressed: "longblob",
}

// MySQL rejects defaults on text and blob columns.
var mysqlDefaults = map[field.Type]string{
	field.TypeVarchar:  "''",
	field.TypeBoolean:  "0",
	field.TypeInteger:  "0",
	field.TypeFloat:    "0.0",
	field.TypeDate:     "'1000-01-01'",
	field.TypeDatetime: "'1000-01-01 00:00:00'",
	field.TypeTime:     "'00:00:00'",
	field.TypePassword: "''",
	field.TypeEmail:    "''",
	field.TypeFile:     "''",
}

// CreateTables implements Generator.
func (g *MySQL) CreateTables(d *schema.Descriptor) ([]string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (", g.conn.Qn(g.table(d.Table)))
	for _, c := range d.Columns {
		if c.IsManyToMany() {
			continue
		}
		def, err := g.column(c)
		if err != nil {
			return nil, err
		}
		b.WriteString("\n" + def + ",")
	}
	fmt.Fprintf(&b, "\nprimary key (%s)\n) ENGINE=InnoDB DEFAULT CHARSET=utf8;", g.conn.Qn(schema.ID))
	stmts := []string{b.String()}

	js, err := g.junctions(d)
	if err != nil {
		return nil, err
	}
	for _, j := range js {
		self, target := g.conn.Qn(j.SelfColumn), g.conn.Qn(j.TargetColumn)
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE %s (\n%s %s not null default 0,\n%s %s not null default 0,\nprimary key (%s, %s)\n) ENGINE=InnoDB DEFAULT CHARSET=utf8;",
			g.conn.Qn(g.table(j.Table)),
			self, mysqlTypes[field.TypeForeignKey], target, mysqlTypes[field.TypeForeignKey],
			self, target))
	}
	return stmts, nil
}

func (g *MySQL) column(c *field.Descriptor) (string, error) {
	var typ string
	switch c.Type {
	case field.TypeVarchar, field.TypePassword, field.TypeEmail, field.TypeFile:
		size := c.Size
		if size == 0 {
			size = field.DefaultVarcharSize
		}
		typ = fmt.Sprintf("varchar(%d)", size)
	case field.TypeFloat:
		digits, places := c.MaxDigits, c.DecimalPlaces
		if digits == 0 {
			digits, places = field.DefaultMaxDigits, field.DefaultDecimalPlaces
		}
		typ = fmt.Sprintf("numeric(%d, %d)", digits, places)
	default:
		var ok bool
		if typ, ok = mysqlTypes[c.Type]; !ok {
			return "", fmt.Errorf("dialect/sql/schema: no mysql type for %s column %q", c.Type, c.Name)
		}
	}
	var b strings.Builder
	b.WriteString(g.conn.Qn(c.Name) + " " + typ)
	if !c.Nullable {
		b.WriteString(" not null")
	}
	switch {
	case c.Type == field.TypeSequence:
		b.WriteString(" auto_increment")
	case c.Default != nil:
		v, err := g.defaultValue(c)
		if err != nil {
			return "", err
		}
		b.WriteString(" default " + v)
	case c.Nullable:
		b.WriteString(" default NULL")
	default:
		if v, ok := mysqlDefaults[c.Type]; ok {
			b.WriteString(" default " + v)
		}
	}
	return b.String(), nil
}

// CreateIndexes implements Generator. Foreign key columns get a supporting
// index named <column>_foreignkey_idx.
func (g *MySQL) CreateIndexes(d *schema.Descriptor) ([]string, error) {
	table := g.conn.Qn(g.table(d.Table))
	var stmts []string
	for _, idx := range indexes(d) {
		unique := ""
		if idx.unique {
			unique = "UNIQUE "
		}
		stmts = append(stmts, fmt.Sprintf("CREATE %sINDEX %s ON %s (%s);",
			unique, g.conn.Qn(idx.name), table, g.quoteColumns(idx.columns)))
	}
	for _, c := range d.Columns {
		if c.IsForeignKey() {
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX %s ON %s (%s);",
				g.conn.Qn(c.Name+"_foreignkey_idx"), table, g.conn.Qn(c.Name)))
		}
	}
	return stmts, nil
}

// CreateConstraints implements Generator. Relations are not enforced by
// MySQL constraints: a row and its dependents are removed by the model
// layer in dependency order.
func (g *MySQL) CreateConstraints(*schema.Descriptor) ([]string, error) {
	return nil, nil
}

// DropConstraints implements Generator.
func (g *MySQL) DropConstraints(*schema.Descriptor) ([]string, error) {
	return nil, nil
}

// Drop implements Generator. The entity table and its junction tables are
// dropped in one statement.
func (g *MySQL) Drop(d *schema.Descriptor) ([]string, error) {
	tables := []string{g.conn.Qn(g.table(d.Table))}
	js, err := g.junctions(d)
	if err != nil {
		return nil, err
	}
	for _, j := range js {
		tables = append(tables, g.conn.Qn(g.table(j.Table)))
	}
	return []string{"DROP TABLE IF EXISTS " + strings.Join(tables, ", ")}, nil
}
