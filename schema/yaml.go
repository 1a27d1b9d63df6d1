package schema

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/syssam/tabula/schema/field"
	"github.com/syssam/tabula/schema/index"
)

// File is the YAML document declaring entity types.
//
//	entities:
//	  - name: Todo_Item
//	    columns:
//	      - {name: item, type: varchar, size: 250, required: true}
//	      - {name: list, type: foreignkey, target: Todo_List}
//	    views:
//	      open: {where: "completed = 0"}
type File struct {
	Entities []EntitySpec `yaml:"entities"`
}

// EntitySpec declares one entity type.
type EntitySpec struct {
	Name    string          `yaml:"name"`
	Table   string          `yaml:"table,omitempty"`
	Verbose string          `yaml:"verbose,omitempty"`
	Columns []ColumnSpec    `yaml:"columns"`
	Indexes []IndexSpec     `yaml:"indexes,omitempty"`
	Views   map[string]View `yaml:"views,omitempty"`
}

// ColumnSpec declares one column.
type ColumnSpec struct {
	Name          string     `yaml:"name"`
	Type          field.Type `yaml:"type"`
	Nullable      bool       `yaml:"nullable,omitempty"`
	Required      bool       `yaml:"required,omitempty"`
	Default       any        `yaml:"default,omitempty"`
	Size          int        `yaml:"size,omitempty"`
	MaxDigits     int        `yaml:"max_digits,omitempty"`
	DecimalPlaces int        `yaml:"decimal_places,omitempty"`
	Unique        bool       `yaml:"unique,omitempty"`
	Index         bool       `yaml:"index,omitempty"`
	Target        string     `yaml:"target,omitempty"`
	RelateName    string     `yaml:"relate_name,omitempty"`
	Verbose       string     `yaml:"verbose,omitempty"`
	HelpText      string     `yaml:"help_text,omitempty"`
	Validate      string     `yaml:"validate,omitempty"` // "url" or "email"
}

// IndexSpec declares one index.
type IndexSpec struct {
	Name       string   `yaml:"name,omitempty"`
	Fields     []string `yaml:"fields"`
	Unique     bool     `yaml:"unique,omitempty"`
	StorageKey string   `yaml:"storage_key,omitempty"`
}

// ParseYAML decodes entity declarations.
func ParseYAML(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return &f, nil
		}
		return nil, fmt.Errorf("schema: decoding entities: %w", err)
	}
	return &f, nil
}

// LoadFile registers the entity types declared in the YAML file at path.
func (r *Registry) LoadFile(path string) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	return r.LoadYAML(fh)
}

// LoadYAML registers the entity types declared in a YAML document.
func (r *Registry) LoadYAML(rd io.Reader) error {
	f, err := ParseYAML(rd)
	if err != nil {
		return err
	}
	for _, e := range f.Entities {
		if err := r.Register(e.Name, e.Init); err != nil {
			return err
		}
	}
	return nil
}

// Init declares the entity on def. It is the InitFunc of a YAML entity.
func (e EntitySpec) Init(def *Def) {
	if e.Table != "" {
		def.Table(e.Table)
	}
	if e.Verbose != "" {
		def.Verbose(e.Verbose)
	}
	for _, c := range e.Columns {
		b := field.New(c.Name, c.Type).
			Target(c.Target).
			RelateName(c.RelateName).
			Verbose(c.Verbose).
			HelpText(c.HelpText)
		if c.Nullable {
			b.Nullable()
		}
		if c.Required {
			b.Required()
		}
		if c.Default != nil {
			b.Default(c.Default)
		}
		if c.Size > 0 {
			b.Size(c.Size)
		}
		if c.MaxDigits > 0 {
			b.Precision(c.MaxDigits, c.DecimalPlaces)
		}
		if c.Unique {
			b.Unique()
		}
		if c.Index {
			b.Index()
		}
		switch c.Validate {
		case "":
		case "url":
			b.Validate(field.ValidateURL)
		case "email":
			b.Validate(field.ValidateEmail)
		default:
			def.Error(fmt.Errorf("column %q: unknown validator %q", c.Name, c.Validate))
		}
		def.Fields(b)
	}
	for _, idx := range e.Indexes {
		b := index.Fields(idx.Fields...).Name(idx.Name).StorageKey(idx.StorageKey)
		if idx.Unique {
			b.Unique()
		}
		def.Indexes(b)
	}
	for name, v := range e.Views {
		def.View(name, v)
	}
}
