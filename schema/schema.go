package schema

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/syssam/tabula/schema/field"
	"github.com/syssam/tabula/schema/index"
)

// ID is the name of the primary key column of every entity.
const ID = "id"

// View is a named query fragment merged with the options of a list query.
type View struct {
	Select      string   `yaml:"select,omitempty" json:"select,omitempty"`
	SelectCount string   `yaml:"select_count,omitempty" json:"select_count,omitempty"`
	Join        string   `yaml:"join,omitempty" json:"join,omitempty"`
	Where       string   `yaml:"where,omitempty" json:"where,omitempty"`
	Group       string   `yaml:"group,omitempty" json:"group,omitempty"`
	Having      string   `yaml:"having,omitempty" json:"having,omitempty"`
	Order       string   `yaml:"order,omitempty" json:"order,omitempty"`
	Props       []string `yaml:"props,omitempty" json:"props,omitempty"` // computed columns exposed by Select
}

// Descriptor is the metadata of one entity type. It is built once by the
// Registry and never modified afterwards.
type Descriptor struct {
	Name      string
	Table     string // without the connection prefix
	Verbose   string
	Columns   []*field.Descriptor
	Indexes   map[string]*index.Descriptor
	Views     map[string]View
	Relations *Relations

	columns map[string]*field.Descriptor
}

// Column returns the column with the given name.
func (d *Descriptor) Column(name string) (*field.Descriptor, bool) {
	c, ok := d.columns[name]
	return c, ok
}

// ColumnNames returns the column names in declaration order.
func (d *Descriptor) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// View returns the named view. The empty name is the default view.
func (d *Descriptor) View(name string) (View, error) {
	if name == "" {
		return d.Views[""], nil
	}
	v, ok := d.Views[name]
	if !ok {
		return View{}, fmt.Errorf("schema: %s has no view %q", d.Name, name)
	}
	return v, nil
}

// Accessor returns the relationship accessor with the given method name.
func (d *Descriptor) Accessor(method string) (*Accessor, bool) {
	if d.Relations == nil {
		return nil, false
	}
	a, ok := d.Relations.byMethod[method]
	return a, ok
}

// Def is handed to the init function of an entity to declare its metadata.
type Def struct {
	desc *Descriptor
	errs []error
}

// InitFunc declares the columns, indexes and views of an entity type.
type InitFunc func(*Def)

// Table overrides the table name. It defaults to the lowercase entity name.
func (d *Def) Table(name string) *Def {
	d.desc.Table = name
	return d
}

// Verbose sets the human readable entity name.
func (d *Def) Verbose(s string) *Def {
	d.desc.Verbose = s
	return d
}

// Fields appends columns.
func (d *Def) Fields(fields ...*field.Builder) *Def {
	for _, f := range fields {
		d.Column(f.Descriptor())
	}
	return d
}

// Column appends a column descriptor.
func (d *Def) Column(c *field.Descriptor) *Def {
	if _, ok := d.desc.columns[c.Name]; ok {
		d.errs = append(d.errs, fmt.Errorf("column %q declared twice", c.Name))
		return d
	}
	d.desc.columns[c.Name] = c
	d.desc.Columns = append(d.desc.Columns, c)
	return d
}

// Indexes adds indexes. Unnamed indexes are keyed by their joined columns.
func (d *Def) Indexes(indexes ...*index.Builder) *Def {
	for _, b := range indexes {
		idx := b.Descriptor()
		if idx.Name == "" {
			idx.Name = strings.Join(idx.Fields, "_")
		}
		if _, ok := d.desc.Indexes[idx.Name]; ok {
			d.errs = append(d.errs, fmt.Errorf("index %q declared twice", idx.Name))
			continue
		}
		d.desc.Indexes[idx.Name] = idx
	}
	return d
}

// View adds a named view. The empty name replaces the default view.
func (d *Def) View(name string, v View) *Def {
	d.desc.Views[name] = v
	return d
}

// Error records a declaration error reported when the metadata is built.
func (d *Def) Error(err error) *Def {
	d.errs = append(d.errs, err)
	return d
}

// humanize turns an identifier into a readable label: "todo_item" -> "Todo Item".
func humanize(s string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(strings.ToLower(s), "_", " "))
}

func newDescriptor(name string) *Descriptor {
	return &Descriptor{
		Name:    name,
		Table:   strings.ToLower(name),
		Indexes: make(map[string]*index.Descriptor),
		Views:   make(map[string]View),
		columns: make(map[string]*field.Descriptor),
	}
}
