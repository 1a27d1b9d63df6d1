package model

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect"
	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
)

// unboundedLimit is the row limit used when only an offset is given.
const unboundedLimit = 10000000

// ListOptions are the options of list queries. Filter and Order are
// appended to the clauses of the view.
type ListOptions struct {
	// View names the view of the entity type, empty for the default view.
	View string
	// Select replaces the selected columns.
	Select string
	// Filter conditions, ANDed together.
	Filter []string
	// Order clauses, in order.
	Order []string
	// Start is the number of skipped rows.
	Start *int
	// Count is the maximum number of rows.
	Count *int
	// ForUpdate locks the selected rows until the end of the transaction.
	// It is ignored by SQLite.
	ForUpdate bool
}

// Int returns a pointer to n, for ListOptions.Start and ListOptions.Count.
func Int(n int) *int { return &n }

// Where returns options filtering on the given SQL condition.
func Where(format string, args ...any) ListOptions {
	return ListOptions{Filter: []string{fmt.Sprintf(format, args...)}}
}

// query is a list query exposed to policies.
type query struct {
	entity string
	opts   *ListOptions
	esc    dialect.Escaper
}

func (q *query) Entity() string        { return q.entity }
func (q *query) Filter() tabula.Filter { return q }

// Qn quotes an identifier for the conditions added with Where.
func (q *query) Qn(name string) string { return q.esc.Qn(name) }

// Esc quotes a string literal for the conditions added with Where.
func (q *query) Esc(s string) string { return q.esc.Esc(s) }

// Where implements tabula.Filter.
func (q *query) Where(clauses ...string) {
	if q.opts != nil {
		q.opts.Filter = append(q.opts.Filter, clauses...)
	}
}

// statement is a SELECT being built from a view and list options.
type statement struct {
	sel, from, join, where, group, having, order, limit string
	forUpdate                                           bool
	props                                               []string
}

func (s *statement) String() string {
	var b strings.Builder
	b.WriteString("SELECT " + s.sel + " FROM " + s.from)
	if s.join != "" {
		b.WriteString(" " + s.join)
	}
	for _, c := range []struct{ kw, v string }{
		{"WHERE", s.where}, {"GROUP BY", s.group}, {"HAVING", s.having}, {"ORDER BY", s.order},
	} {
		if c.v != "" {
			b.WriteString("\n" + c.kw + " " + c.v)
		}
	}
	if s.limit != "" {
		b.WriteString("\n" + s.limit)
	}
	if s.forUpdate {
		b.WriteString("\nFOR UPDATE")
	}
	return b.String()
}

// defaultSelect lists the table columns of d, many-to-many columns aside.
func (c *Client) defaultSelect(d *schema.Descriptor) string {
	table := c.table(d)
	cols := make([]string, 0, len(d.Columns))
	for _, col := range d.Columns {
		if !col.IsManyToMany() {
			cols = append(cols, table+"."+c.conn.Qn(col.Name)+" AS "+c.conn.Qn(col.Name))
		}
	}
	return strings.Join(cols, ", ")
}

// build merges the view and the options into a SELECT. In count mode the
// projection is the count of the view, or COUNT(*), without order and limit.
func (c *Client) build(d *schema.Descriptor, v schema.View, opts ListOptions, count bool) *statement {
	s := &statement{
		sel:    c.defaultSelect(d),
		from:   c.table(d),
		join:   v.Join,
		where:  v.Where,
		group:  v.Group,
		having: v.Having,
		order:  v.Order,
		props:  v.Props,
	}
	if v.Select != "" {
		s.sel = v.Select
	}
	if opts.Select != "" {
		s.sel = opts.Select
	}
	if len(opts.Filter) > 0 {
		if s.where != "" {
			s.where += " AND "
		}
		s.where += " (" + strings.Join(opts.Filter, " AND ") + ") "
	}
	if len(opts.Order) > 0 {
		o := strings.Join(opts.Order, ", ")
		if s.order != "" && o != "" {
			s.order += ", "
		}
		s.order += o
	}
	switch {
	case opts.Start != nil:
		n := unboundedLimit
		if opts.Count != nil {
			n = *opts.Count
		}
		s.limit = "LIMIT " + strconv.Itoa(n) + " OFFSET " + strconv.Itoa(*opts.Start)
	case opts.Count != nil:
		s.limit = "LIMIT " + strconv.Itoa(*opts.Count)
	}
	if count {
		s.sel = "COUNT(*) AS nb_items"
		if v.SelectCount != "" {
			s.sel = v.SelectCount
		}
		s.order, s.limit = "", ""
		return s
	}
	s.forUpdate = opts.ForUpdate && c.conn.Dialect() != dialect.SQLite
	return s
}

// GetList returns the entities matching the options, in the order of the
// view and the options.
func (c *Client) GetList(ctx context.Context, entity string, opts ListOptions) ([]*Entity, error) {
	d, err := c.reg.Descriptor(entity)
	if err != nil {
		return nil, err
	}
	v, err := d.View(opts.View)
	if err != nil {
		return nil, err
	}
	return c.list(ctx, d, v, opts)
}

func (c *Client) list(ctx context.Context, d *schema.Descriptor, v schema.View, opts ListOptions) ([]*Entity, error) {
	if err := c.evalQuery(ctx, &query{entity: d.Name, opts: &opts, esc: c.conn}); err != nil {
		return nil, err
	}
	s := c.build(d, v, opts, false)
	rows, err := c.conn.Select(ctx, s.String())
	if err != nil {
		return nil, err
	}
	out := make([]*Entity, 0, len(rows))
	for _, row := range rows {
		e := &Entity{client: c, desc: d}
		e.reset()
		if err := e.decode(row, s.props); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// GetOne returns the only entity matching the options, or nil when none
// matches. More than one match is reported with a *tabula.MultipleMatchError.
func (c *Client) GetOne(ctx context.Context, entity string, opts ListOptions) (*Entity, error) {
	items, err := c.GetList(ctx, entity, opts)
	if err != nil {
		return nil, err
	}
	switch len(items) {
	case 0:
		return nil, nil
	case 1:
		return items[0], nil
	}
	return nil, tabula.NewMultipleMatchError(entity, len(items))
}

// GetCount returns the number of entities matching the options. Order and
// pagination are ignored.
func (c *Client) GetCount(ctx context.Context, entity string, opts ListOptions) (int64, error) {
	d, err := c.reg.Descriptor(entity)
	if err != nil {
		return 0, err
	}
	v, err := d.View(opts.View)
	if err != nil {
		return 0, err
	}
	return c.count(ctx, d, v, opts)
}

func (c *Client) count(ctx context.Context, d *schema.Descriptor, v schema.View, opts ListOptions) (int64, error) {
	if err := c.evalQuery(ctx, &query{entity: d.Name, opts: &opts, esc: c.conn}); err != nil {
		return 0, err
	}
	rows, err := c.conn.Select(ctx, c.build(d, v, opts, true).String())
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	raw, ok := rows[0]["nb_items"]
	if !ok && len(rows[0]) == 1 {
		for _, v := range rows[0] {
			raw = v
		}
	}
	n, err := c.conn.Cast(field.TypeInteger).FromDB(raw)
	if err != nil || n == nil {
		return 0, err
	}
	return n.(int64), nil
}

// GetRelated lists the entities of type target related to e. method names
// the list accessor to use; when empty the first accessor of e returning
// target is used.
func (e *Entity) GetRelated(ctx context.Context, target, method string, opts ListOptions) ([]*Entity, error) {
	if method == "" {
		for _, a := range e.desc.Relations.To(target) {
			if a.Kind.IsList() {
				method = a.Method
				break
			}
		}
		if method == "" {
			return nil, tabula.NewAssociationError(e.desc.Name, target)
		}
	}
	a, ok := e.desc.Accessor(method)
	if !ok || !a.Kind.IsList() || a.Target != target {
		return nil, tabula.NewMethodNotAvailableError(e.desc.Name, method)
	}
	return e.relatedList(ctx, a, opts)
}

// CountRelated counts the entities returned by the list accessor method.
func (e *Entity) CountRelated(ctx context.Context, method string, opts ListOptions) (int64, error) {
	a, ok := e.desc.Accessor(method)
	if !ok || !a.Kind.IsList() {
		return 0, tabula.NewMethodNotAvailableError(e.desc.Name, method)
	}
	if e.ID() == 0 {
		return 0, nil
	}
	d, v, opts, err := e.relatedQuery(a, opts)
	if err != nil {
		return 0, err
	}
	return e.client.count(ctx, d, v, opts)
}

func (e *Entity) relatedList(ctx context.Context, a *schema.Accessor, opts ListOptions) ([]*Entity, error) {
	if e.ID() == 0 {
		return nil, nil
	}
	d, v, opts, err := e.relatedQuery(a, opts)
	if err != nil {
		return nil, err
	}
	return e.client.list(ctx, d, v, opts)
}

// relatedQuery returns the query of a list accessor. Reverse foreign keys
// filter on the key column; many-to-many accessors join the junction table
// into the requested view.
func (e *Entity) relatedQuery(a *schema.Accessor, opts ListOptions) (*schema.Descriptor, schema.View, ListOptions, error) {
	c := e.client
	d, err := c.reg.Descriptor(a.Target)
	if err != nil {
		return nil, schema.View{}, opts, err
	}
	v, err := d.View(opts.View)
	if err != nil {
		return nil, schema.View{}, opts, err
	}
	id := c.idLiteral(e.ID())
	if a.Kind == schema.ReverseForeignKey {
		opts.Filter = append(append([]string(nil), opts.Filter...),
			c.table(d)+"."+c.conn.Qn(a.Column)+"="+id)
		return d, v, opts, nil
	}
	jt := c.conn.Qn(c.conn.Prefix() + a.Junction.Table)
	join := "LEFT JOIN " + jt + " ON " + jt + "." + c.conn.Qn(a.Junction.TargetColumn) + " = " + c.table(d) + "." + c.conn.Qn(schema.ID)
	if v.Join != "" {
		join = v.Join + " " + join
	}
	v.Join = join
	cond := jt + "." + c.conn.Qn(a.Junction.SelfColumn) + "=" + id
	if v.Where != "" {
		cond = "(" + v.Where + ") AND " + cond
	}
	v.Where = cond
	return d, v, opts, nil
}
