package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/syssam/tabula/dialect"
	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
)

// ValidationError represents a problem found in entity metadata before DDL
// generation.
type ValidationError struct {
	Table   string
	Column  string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Table, e.Message)
}

// ValidationResult holds the results of schema validation.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Err returns the errors joined in one error, or nil.
func (r *ValidationResult) Err() error {
	if !r.HasErrors() {
		return nil
	}
	return fmt.Errorf("dialect/sql/schema: invalid schema:\n%s", r)
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	if len(r.Errors) > 0 {
		sb.WriteString("Errors:\n")
		for _, e := range r.Errors {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			sb.WriteString("\n")
		}
	}
	if len(r.Warnings) > 0 {
		sb.WriteString("Warnings:\n")
		for _, w := range r.Warnings {
			sb.WriteString("  - ")
			sb.WriteString(w.Error())
			sb.WriteString("\n")
		}
	}
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

func (r *ValidationResult) errorf(table, column, format string, args ...any) {
	r.Errors = append(r.Errors, &ValidationError{Table: table, Column: column, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) warnf(table, column, format string, args ...any) {
	r.Warnings = append(r.Warnings, &ValidationError{Table: table, Column: column, Message: fmt.Sprintf(format, args...)})
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// maxVarchar is the largest varchar size MySQL accepts with utf8.
const maxVarchar = 21845

// ValidateTable validates the table of a single entity for a dialect.
func ValidateTable(name string, d *schema.Descriptor) *ValidationResult {
	result := &ValidationResult{}
	if !identifier.MatchString(d.Table) {
		result.errorf(d.Table, "", "invalid table name")
	}
	if name == dialect.Postgres && len(d.Table) > 63 {
		result.warnf(d.Table, "", "table name longer than 63 characters is truncated by PostgreSQL")
	}
	for _, c := range d.Columns {
		if !identifier.MatchString(c.Name) {
			result.errorf(d.Table, c.Name, "invalid column name")
		}
		switch c.Type {
		case field.TypeVarchar:
			if name == dialect.MySQL && c.Size > maxVarchar {
				result.errorf(d.Table, c.Name, "varchar size %d exceeds %d", c.Size, maxVarchar)
			}
		case field.TypeFloat:
			if c.MaxDigits > 0 && c.DecimalPlaces > c.MaxDigits {
				result.errorf(d.Table, c.Name, "%d decimal places exceed %d digits", c.DecimalPlaces, c.MaxDigits)
			}
		case field.TypeBlob, field.TypeCompressed, field.TypeText, field.TypeHTML:
			if name == dialect.MySQL && c.Default != nil {
				result.warnf(d.Table, c.Name, "default value of %s column is not supported by MySQL", c.Type)
			}
			if c.Unique && name == dialect.MySQL {
				result.errorf(d.Table, c.Name, "unique %s column needs a key length on MySQL", c.Type)
			}
		}
		if c.Default != nil {
			if _, err := field.Coerce(c, c.Default); err != nil {
				result.errorf(d.Table, c.Name, "invalid default: %v", err)
			}
		}
	}
	for _, idx := range d.Indexes {
		if len(idx.Fields) == 0 {
			result.errorf(d.Table, "", "index %q has no columns", idx.Name)
		}
		for _, f := range idx.Fields {
			if _, ok := d.Column(f); !ok {
				result.errorf(d.Table, "", "index %q references non-existent column %q", idx.Name, f)
			}
		}
	}
	return result
}

// ValidateSchema validates all entity tables and the junction tables they
// imply for a dialect.
func ValidateSchema(name string, descs []*schema.Descriptor) *ValidationResult {
	result := &ValidationResult{}
	tables := make(map[string]string)
	for _, d := range descs {
		if prev, ok := tables[d.Table]; ok {
			result.errorf(d.Table, "", "table used by %s and %s", prev, d.Name)
		}
		tables[d.Table] = d.Name
		r := ValidateTable(name, d)
		result.Errors = append(result.Errors, r.Errors...)
		result.Warnings = append(result.Warnings, r.Warnings...)
	}
	for _, d := range descs {
		if d.Relations == nil {
			continue
		}
		for _, a := range d.Relations.ManyToMany {
			if owner, ok := tables[a.Junction.Table]; ok {
				result.errorf(a.Junction.Table, "", "junction table of %s.%s collides with the table of %s", d.Name, a.Column, owner)
			}
		}
	}
	return result
}
