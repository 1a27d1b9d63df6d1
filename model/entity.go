package model

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect"
	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
)

// Entity is one row of an entity type: its column values, the computed
// properties of the view it was loaded with, and the resolved foreign key
// accessors.
//
// An Entity is not safe for concurrent use.
type Entity struct {
	client *Client
	desc   *schema.Descriptor
	data   map[string]any
	props  map[string]any
	cache  map[string]*Entity
}

// Name returns the entity type name.
func (e *Entity) Name() string { return e.desc.Name }

// Descriptor returns the metadata of the entity type.
func (e *Entity) Descriptor() *schema.Descriptor { return e.desc }

// Client returns the client the entity belongs to.
func (e *Entity) Client() *Client { return e.client }

// ID returns the primary key, zero for an unsaved entity.
func (e *Entity) ID() int64 {
	id, _ := e.data[schema.ID].(int64)
	return id
}

// Value returns the value of a column or of a computed view property. It
// returns nil for unknown names.
func (e *Entity) Value(name string) any {
	v, _ := e.Lookup(name)
	return v
}

// Lookup returns the value of a column or of a computed view property.
func (e *Entity) Lookup(name string) (any, bool) {
	if v, ok := e.data[name]; ok {
		return v, true
	}
	v, ok := e.props[name]
	return v, ok
}

// Str returns the value of a column as a string.
func (e *Entity) Str(name string) string {
	switch v := e.Value(name).(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the value of an integer column.
func (e *Entity) Int(name string) int64 {
	v, _ := e.Value(name).(int64)
	return v
}

// Bool returns the value of a boolean column.
func (e *Entity) Bool(name string) bool {
	v, _ := e.Value(name).(bool)
	return v
}

// Set assigns a column. The value is converted to the in-memory type of
// the column; an *Entity is accepted for foreign keys. Assigning a foreign
// key drops its resolved accessor. For many-to-many columns the id list is
// associated on the next Create or Update.
func (e *Entity) Set(name string, v any) error {
	c, ok := e.desc.Column(name)
	if !ok {
		return fmt.Errorf("model: %s has no column %q", e.desc.Name, name)
	}
	if r, ok := v.(*Entity); ok {
		switch {
		case r == nil:
			v = nil
		case c.IsManyToMany():
			v = []int64{r.ID()}
		default:
			v = r.ID()
		}
	}
	if c.IsManyToMany() {
		if ents, ok := v.([]*Entity); ok {
			ids := make([]int64, len(ents))
			for i, r := range ents {
				ids[i] = r.ID()
			}
			v = ids
		}
	}
	cv, err := field.Coerce(c, v)
	if err != nil {
		return tabula.NewValidationError(name, err)
	}
	if c.IsForeignKey() {
		if cv == int64(0) {
			cv = nil
		}
		delete(e.cache, "get_"+name)
	}
	e.data[name] = cv
	return nil
}

// MustSet is like Set but panics on error.
func (e *Entity) MustSet(name string, v any) *Entity {
	if err := e.Set(name, v); err != nil {
		panic(err)
	}
	return e
}

// SetFromInput validates the given input values and assigns them. Either
// every value is assigned or none, and the validation failures of all
// fields are returned together.
func (e *Entity) SetFromInput(input map[string]any) error {
	var (
		errs   []error
		values = make(map[string]any, len(input))
	)
	for _, name := range e.desc.ColumnNames() {
		v, ok := input[name]
		if !ok {
			continue
		}
		c, _ := e.desc.Column(name)
		if r, ok := v.(*Entity); ok {
			v = r.ID()
		}
		cv, err := field.Validate(c, v)
		if err != nil {
			errs = append(errs, tabula.NewValidationError(name, err))
			continue
		}
		values[name] = cv
	}
	for name := range input {
		if _, ok := e.desc.Column(name); !ok {
			errs = append(errs, tabula.NewValidationError(name, fmt.Errorf("unknown field")))
		}
	}
	if err := tabula.NewAggregateError(errs...); err != nil {
		return err
	}
	for name, v := range values {
		c, _ := e.desc.Column(name)
		if c.IsForeignKey() {
			delete(e.cache, "get_"+name)
		}
		e.data[name] = v
	}
	return nil
}

// Data returns the column values, with many-to-many columns expanded to
// the sorted ids of the associated entities.
func (e *Entity) Data(ctx context.Context) (map[string]any, error) {
	out := maps.Clone(e.data)
	for _, c := range e.desc.Columns {
		if !c.IsManyToMany() {
			continue
		}
		ids := []int64{}
		if e.ID() != 0 {
			related, err := e.RelatedList(ctx, "get_"+c.Name+"_list", ListOptions{})
			if err != nil {
				return nil, err
			}
			for _, r := range related {
				ids = append(ids, r.ID())
			}
			slices.Sort(ids)
		}
		out[c.Name] = ids
	}
	return out, nil
}

// String implements fmt.Stringer.
func (e *Entity) String() string {
	return fmt.Sprintf("%s(%d)", e.desc.Name, e.ID())
}

// Methods returns the names of the relationship accessors of the entity.
func (e *Entity) Methods() []string {
	return e.desc.Relations.Methods()
}

// Call runs the relationship accessor named method. Foreign key accessors
// return an *Entity, which is nil when the key is not set or the row is
// gone. List accessors return []*Entity and accept one ListOptions.
func (e *Entity) Call(ctx context.Context, method string, opts ...ListOptions) (any, error) {
	a, ok := e.desc.Accessor(method)
	if !ok {
		return nil, tabula.NewMethodNotAvailableError(e.desc.Name, method)
	}
	if !a.Kind.IsList() {
		return e.related(ctx, a)
	}
	var o ListOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	return e.relatedList(ctx, a, o)
}

// Related resolves the foreign key accessor named method, for instance
// get_owner. The result is kept until the key is reassigned.
func (e *Entity) Related(ctx context.Context, method string) (*Entity, error) {
	a, ok := e.desc.Accessor(method)
	if !ok || a.Kind.IsList() {
		return nil, tabula.NewMethodNotAvailableError(e.desc.Name, method)
	}
	return e.related(ctx, a)
}

// RelatedList runs the list accessor named method, for instance
// get_tags_list or get_todo_item_list.
func (e *Entity) RelatedList(ctx context.Context, method string, opts ListOptions) ([]*Entity, error) {
	a, ok := e.desc.Accessor(method)
	if !ok || !a.Kind.IsList() {
		return nil, tabula.NewMethodNotAvailableError(e.desc.Name, method)
	}
	return e.relatedList(ctx, a, opts)
}

func (e *Entity) related(ctx context.Context, a *schema.Accessor) (*Entity, error) {
	if r, ok := e.cache[a.Method]; ok {
		return r, nil
	}
	id, _ := e.data[a.Column].(int64)
	if id == 0 {
		return nil, nil
	}
	r, err := e.client.Get(ctx, a.Target, id)
	switch {
	case tabula.IsNotFound(err):
		r = nil
	case err != nil:
		return nil, err
	}
	e.cache[a.Method] = r
	return r, nil
}

// reset sets every column to its default value and drops the resolved
// accessors. Many-to-many columns are left unset.
func (e *Entity) reset() {
	e.data = make(map[string]any, len(e.desc.Columns))
	e.props = nil
	e.cache = make(map[string]*Entity)
	for _, c := range e.desc.Columns {
		if c.IsManyToMany() {
			e.data[c.Name] = nil
			continue
		}
		e.data[c.Name] = c.Zero()
	}
}

// Get reloads the entity from the row with the given primary key. It
// reports false when no such row exists.
func (e *Entity) Get(ctx context.Context, id int64) (bool, error) {
	return e.load(ctx, id)
}

func (e *Entity) load(ctx context.Context, id int64) (bool, error) {
	rows, err := e.client.conn.Select(ctx, e.selectByID(id))
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}
	return true, e.decode(rows[0], nil)
}

func (e *Entity) selectByID(id int64) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s.%s=%s",
		e.client.defaultSelect(e.desc), e.client.table(e.desc),
		e.client.table(e.desc), e.client.conn.Qn(schema.ID), e.client.idLiteral(id))
}

// decode assigns the columns present in row, and the listed computed
// properties, then runs the Restore hook.
func (e *Entity) decode(row dialect.Row, props []string) error {
	for _, c := range e.desc.Columns {
		if c.IsManyToMany() {
			continue
		}
		raw, ok := row[c.Name]
		if !ok {
			continue
		}
		v, err := e.client.conn.Cast(c.Type).FromDB(raw)
		if err != nil {
			return fmt.Errorf("model: decoding %s.%s: %w", e.desc.Name, c.Name, err)
		}
		if c.IsForeignKey() {
			delete(e.cache, "get_"+c.Name)
		}
		e.data[c.Name] = v
	}
	for _, p := range props {
		if e.props == nil {
			e.props = make(map[string]any, len(props))
		}
		switch v := row[p].(type) {
		case []byte:
			e.props[p] = string(v)
		default:
			e.props[p] = v
		}
	}
	if h := e.client.hooks[e.desc.Name]; h.Restore != nil {
		h.Restore(e)
	}
	return nil
}

// clone returns a detached copy of the entity.
func (e *Entity) clone() *Entity {
	return &Entity{
		client: e.client,
		desc:   e.desc,
		data:   maps.Clone(e.data),
		props:  maps.Clone(e.props),
		cache:  make(map[string]*Entity),
	}
}

// key identifies the entity row across types.
func (e *Entity) key() string {
	return e.desc.Name + "#" + fmt.Sprint(e.ID())
}

// Equal reports whether both entities are the same row.
func (e *Entity) Equal(o *Entity) bool {
	return o != nil && e.desc.Name == o.desc.Name && e.ID() == o.ID() && e.ID() != 0
}
