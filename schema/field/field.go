package field

import (
	"fmt"
	"strings"
	"time"

	"github.com/syssam/tabula/dialect"
)

// Type is a column type.
type Type uint8

// Column types.
const (
	TypeInvalid Type = iota
	TypeSequence
	TypeVarchar
	TypeBoolean
	TypeInteger
	TypeFloat
	TypeText
	TypeHTML
	TypeDate
	TypeDatetime
	TypeTime
	TypeForeignKey
	TypeManyToMany
	TypePassword
	TypeEmail
	TypeFile
	TypeBlob
	TypeCompressed
	endTypes
)

var typeNames = [...]string{
	TypeInvalid:    "invalid",
	TypeSequence:   "sequence",
	TypeVarchar:    "varchar",
	TypeBoolean:    "boolean",
	TypeInteger:    "integer",
	TypeFloat:      "float",
	TypeText:       "text",
	TypeHTML:       "html",
	TypeDate:       "date",
	TypeDatetime:   "datetime",
	TypeTime:       "time",
	TypeForeignKey: "foreignkey",
	TypeManyToMany: "manytomany",
	TypePassword:   "password",
	TypeEmail:      "email",
	TypeFile:       "file",
	TypeBlob:       "blob",
	TypeCompressed: "compressed",
}

// String returns the lowercase type name.
func (t Type) String() string {
	if t < endTypes {
		return typeNames[t]
	}
	return typeNames[TypeInvalid]
}

// Valid reports if the type is a known column type.
func (t Type) Valid() bool {
	return t > TypeInvalid && t < endTypes
}

// IsRelation reports if the type is a foreign key or a many-to-many relation.
func (t Type) IsRelation() bool {
	return t == TypeForeignKey || t == TypeManyToMany
}

// IsString reports if the in-memory value of the type is a string.
func (t Type) IsString() bool {
	switch t {
	case TypeVarchar, TypeText, TypeHTML, TypePassword, TypeEmail, TypeFile, TypeTime:
		return true
	}
	return false
}

// ParseType returns the type with the given name.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t := TypeSequence; t < endTypes; t++ {
		if typeNames[t] == s {
			return t, nil
		}
	}
	return TypeInvalid, fmt.Errorf("field: unknown type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Default sizes.
const (
	DefaultVarcharSize   = 150
	DefaultMaxDigits     = 32
	DefaultDecimalPlaces = 8
)

// Descriptor describes one column of an entity.
type Descriptor struct {
	Name          string
	Type          Type
	Nullable      bool   // column accepts NULL
	Required      bool   // input must not be blank
	Default       any    // in-memory default, nil means the type zero value
	Size          int    // varchar length
	MaxDigits     int    // float precision
	DecimalPlaces int    // float scale
	Unique        bool   // unique index on the column
	Index         bool   // plain index on the column
	Target        string // related entity for relation types
	RelateName    string // name of the reverse accessor
	Verbose       string
	HelpText      string
	Validators    []func(any) error
}

// IsForeignKey reports if the column is a foreign key.
func (d *Descriptor) IsForeignKey() bool { return d.Type == TypeForeignKey }

// IsManyToMany reports if the column is a many-to-many relation.
func (d *Descriptor) IsManyToMany() bool { return d.Type == TypeManyToMany }

// Zero returns the in-memory value of an unset column.
func (d *Descriptor) Zero() any {
	if d.Default != nil {
		v, err := Coerce(d, d.Default)
		if err == nil {
			return v
		}
	}
	if d.Nullable && d.Type != TypeManyToMany {
		return nil
	}
	switch d.Type {
	case TypeSequence, TypeForeignKey:
		return nil
	case TypeInteger:
		return int64(0)
	case TypeBoolean:
		return false
	case TypeFloat:
		return float64(0)
	case TypeManyToMany:
		return []int64{}
	case TypeDate, TypeDatetime:
		return time.Time{}
	case TypeBlob, TypeCompressed:
		return []byte{}
	}
	return ""
}

// Err returns an error when the descriptor is not usable.
func (d *Descriptor) Err() error {
	switch {
	case d.Name == "":
		return fmt.Errorf("field: missing column name")
	case !d.Type.Valid():
		return fmt.Errorf("field: column %q has an invalid type", d.Name)
	case d.Type.IsRelation() && d.Target == "":
		return fmt.Errorf("field: %s column %q has no target entity", d.Type, d.Name)
	case !d.Type.IsRelation() && d.Target != "":
		return fmt.Errorf("field: %s column %q cannot have a target entity", d.Type, d.Name)
	case d.Type == TypeVarchar && d.Size <= 0:
		return fmt.Errorf("field: varchar column %q has non-positive size %d", d.Name, d.Size)
	}
	return nil
}

// Cast converts column values between their database and in-memory forms.
type Cast struct {
	// FromDB decodes a raw driver value.
	FromDB func(v any) (any, error)
	// ToDB encodes an in-memory value as a SQL literal.
	ToDB func(v any, esc dialect.Escaper) (string, error)
}

// Builder is the fluent builder of column descriptors.
type Builder struct {
	desc *Descriptor
}

func newBuilder(name string, t Type) *Builder {
	b := &Builder{desc: &Descriptor{Name: name, Type: t}}
	switch t {
	case TypeVarchar, TypeEmail, TypePassword, TypeFile:
		b.desc.Size = DefaultVarcharSize
	case TypeFloat:
		b.desc.MaxDigits, b.desc.DecimalPlaces = DefaultMaxDigits, DefaultDecimalPlaces
	}
	return b
}

// Sequence returns a builder for an auto-increment primary key column.
func Sequence(name string) *Builder { return newBuilder(name, TypeSequence) }

// Varchar returns a builder for a bounded string column.
func Varchar(name string) *Builder { return newBuilder(name, TypeVarchar) }

// Boolean returns a builder for a boolean column.
func Boolean(name string) *Builder { return newBuilder(name, TypeBoolean) }

// Integer returns a builder for an integer column.
func Integer(name string) *Builder { return newBuilder(name, TypeInteger) }

// Float returns a builder for a decimal column.
func Float(name string) *Builder { return newBuilder(name, TypeFloat) }

// Text returns a builder for an unbounded text column.
func Text(name string) *Builder { return newBuilder(name, TypeText) }

// HTML returns a builder for an HTML text column.
func HTML(name string) *Builder { return newBuilder(name, TypeHTML) }

// Date returns a builder for a date column.
func Date(name string) *Builder { return newBuilder(name, TypeDate) }

// Datetime returns a builder for a timestamp column.
func Datetime(name string) *Builder { return newBuilder(name, TypeDatetime) }

// Time returns a builder for a time-of-day column.
func Time(name string) *Builder { return newBuilder(name, TypeTime) }

// Password returns a builder for a password hash column.
func Password(name string) *Builder { return newBuilder(name, TypePassword) }

// Email returns a builder for an email address column.
func Email(name string) *Builder { return newBuilder(name, TypeEmail) }

// File returns a builder for a column holding a file path.
func File(name string) *Builder { return newBuilder(name, TypeFile) }

// Blob returns a builder for a binary column.
func Blob(name string) *Builder { return newBuilder(name, TypeBlob) }

// Compressed returns a builder for a binary column stored deflated.
func Compressed(name string) *Builder { return newBuilder(name, TypeCompressed) }

// ForeignKey returns a builder for a column referencing the id of target.
func ForeignKey(name, target string) *Builder {
	b := newBuilder(name, TypeForeignKey)
	b.desc.Target = target
	return b
}

// ManyToMany returns a builder for a many-to-many relation with target.
// The column is stored in a junction table, not in the entity table.
func ManyToMany(name, target string) *Builder {
	b := newBuilder(name, TypeManyToMany)
	b.desc.Target = target
	return b
}

// New returns a builder for a column of the given type. Relation types need
// a target set with Target.
func New(name string, t Type) *Builder { return newBuilder(name, t) }

// Nullable allows NULL values in the column.
func (b *Builder) Nullable() *Builder {
	b.desc.Nullable = true
	return b
}

// Required rejects blank input values.
func (b *Builder) Required() *Builder {
	b.desc.Required = true
	return b
}

// Blank accepts blank input values. It is the default.
func (b *Builder) Blank() *Builder {
	b.desc.Required = false
	return b
}

// Default sets the in-memory default value.
func (b *Builder) Default(v any) *Builder {
	b.desc.Default = v
	return b
}

// Size sets the maximum length of a varchar column.
func (b *Builder) Size(n int) *Builder {
	b.desc.Size = n
	return b
}

// Precision sets the digits and decimal places of a float column.
func (b *Builder) Precision(digits, places int) *Builder {
	b.desc.MaxDigits, b.desc.DecimalPlaces = digits, places
	return b
}

// Unique adds a unique index on the column.
func (b *Builder) Unique() *Builder {
	b.desc.Unique = true
	return b
}

// Index adds a plain index on the column.
func (b *Builder) Index() *Builder {
	b.desc.Index = true
	return b
}

// Target sets the related entity of a relation column.
func (b *Builder) Target(entity string) *Builder {
	b.desc.Target = entity
	return b
}

// RelateName sets the name used for the reverse accessor on the target entity.
func (b *Builder) RelateName(name string) *Builder {
	b.desc.RelateName = name
	return b
}

// Verbose sets the human readable column name.
func (b *Builder) Verbose(s string) *Builder {
	b.desc.Verbose = s
	return b
}

// HelpText sets the column help text.
func (b *Builder) HelpText(s string) *Builder {
	b.desc.HelpText = s
	return b
}

// Validate adds a validator run after the type validators.
func (b *Builder) Validate(fn func(any) error) *Builder {
	b.desc.Validators = append(b.desc.Validators, fn)
	return b
}

// Descriptor returns the column descriptor.
func (b *Builder) Descriptor() *Descriptor {
	return b.desc
}
