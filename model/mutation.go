package model

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
)

// Create inserts the entity and sets its primary key. Many-to-many columns
// that were assigned are associated after the insert.
func (e *Entity) Create(ctx context.Context) error {
	return e.create(ctx, false)
}

// CreateRaw inserts the entity with its current primary key, without hooks
// or policies. It is used to restore dumps.
func (e *Entity) CreateRaw(ctx context.Context) error {
	return e.create(ctx, true)
}

func (e *Entity) create(ctx context.Context, raw bool) error {
	c := e.client
	hooks := c.hooks[e.desc.Name]
	if !raw {
		if err := c.evalMutation(ctx, e, tabula.OpCreate); err != nil {
			return err
		}
		if hooks.PreSave != nil {
			if err := hooks.PreSave(ctx, e, true); err != nil {
				return err
			}
		}
	}
	var cols, vals []string
	for _, col := range e.desc.Columns {
		if (col.Name == schema.ID && !raw) || col.IsManyToMany() {
			continue
		}
		lit, err := c.literal(col, e.data[col.Name])
		if err != nil {
			return err
		}
		cols = append(cols, c.conn.Qn(col.Name))
		vals = append(vals, lit)
	}
	q := "INSERT INTO " + c.table(e.desc) + "\n(" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(vals, ",\n") + ")"
	if _, err := c.conn.Execute(ctx, q); err != nil {
		return err
	}
	if !raw {
		id, err := c.conn.LastInsertID(ctx)
		if err != nil {
			return err
		}
		e.data[schema.ID] = id
	}
	if err := e.associatePending(ctx); err != nil {
		return err
	}
	if !raw && hooks.PostSave != nil {
		return hooks.PostSave(ctx, e, true)
	}
	return nil
}

// Update writes every column of the entity to its row and reloads it.
// Many-to-many columns that were assigned replace the associations.
func (e *Entity) Update(ctx context.Context) error {
	return e.UpdateWhere(ctx, "")
}

// UpdateWhere is like Update with the rows to write selected by where
// instead of the primary key.
func (e *Entity) UpdateWhere(ctx context.Context, where string) error {
	c := e.client
	if err := c.evalMutation(ctx, e, tabula.OpUpdate); err != nil {
		return err
	}
	hooks := c.hooks[e.desc.Name]
	if hooks.PreSave != nil {
		if err := hooks.PreSave(ctx, e, false); err != nil {
			return err
		}
	}
	var sets []string
	for _, col := range e.desc.Columns {
		if col.Name == schema.ID || col.IsManyToMany() {
			continue
		}
		lit, err := c.literal(col, e.data[col.Name])
		if err != nil {
			return err
		}
		sets = append(sets, c.conn.Qn(col.Name)+" = "+lit)
	}
	q := "UPDATE " + c.table(e.desc) + " SET\n" + strings.Join(sets, ",\n")
	if where != "" {
		q += " WHERE " + where
	} else {
		q += " WHERE " + c.conn.Qn(schema.ID) + " = " + c.idLiteral(e.ID())
	}
	if _, err := c.conn.Execute(ctx, q); err != nil {
		return err
	}
	if where != "" {
		c.invalidateTable(ctx, e.desc)
	} else {
		c.invalidate(ctx, e.desc, e.ID())
	}
	found, err := e.load(ctx, e.ID())
	if err != nil {
		return err
	}
	if !found {
		return tabula.NewNotFoundErrorWithID(e.desc.Name, e.ID())
	}
	if err := e.associatePending(ctx); err != nil {
		return err
	}
	if hooks.PostSave != nil {
		return hooks.PostSave(ctx, e, false)
	}
	return nil
}

// associatePending replaces the associations of the assigned many-to-many
// columns.
func (e *Entity) associatePending(ctx context.Context) error {
	for _, col := range e.desc.Columns {
		if !col.IsManyToMany() {
			continue
		}
		ids, ok := e.data[col.Name].([]int64)
		if !ok {
			continue
		}
		a, ok := e.desc.Accessor("get_" + col.Name + "_list")
		if !ok {
			return tabula.NewAssociationError(e.desc.Name, col.Target)
		}
		if err := e.batch(ctx, a, ids); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the entity, every entity holding a foreign key to it,
// recursively, and its many-to-many associations, then resets the entity.
// It reports false when the row no longer exists.
func (e *Entity) Delete(ctx context.Context) (bool, error) {
	var deleted bool
	err := e.client.Tx(ctx, func(ctx context.Context) error {
		var err error
		deleted, err = e.delete(ctx)
		return err
	})
	return deleted, err
}

// delete runs the cascade: policies, hooks and association cleanup of
// every removed row first, then the DELETE statements, referencing rows
// before the rows they reference.
func (e *Entity) delete(ctx context.Context) (bool, error) {
	c := e.client
	id := e.ID()
	if id == 0 {
		return false, nil
	}
	found, err := e.load(ctx, id)
	if err != nil || !found {
		return false, err
	}
	deps, err := e.dependents(ctx)
	if err != nil {
		return false, err
	}
	rows := append([]*Entity{e}, deps...)
	for _, r := range rows {
		if err := r.beforeDelete(ctx); err != nil {
			return false, err
		}
	}
	order, err := c.deleteOrder(ctx, rows)
	if err != nil {
		return false, err
	}
	for _, r := range order {
		rid := r.ID()
		q := "DELETE FROM " + c.table(r.desc) + " WHERE " + c.conn.Qn(schema.ID) + " = " + c.idLiteral(rid)
		if _, err := c.conn.Execute(ctx, q); err != nil {
			return false, err
		}
		c.invalidate(ctx, r.desc, rid)
		c.logger.DebugContext(ctx, "deleted", "entity", r.String())
		r.reset()
	}
	return true, nil
}

func (e *Entity) beforeDelete(ctx context.Context) error {
	c := e.client
	if err := c.evalMutation(ctx, e, tabula.OpDelete); err != nil {
		return err
	}
	if h := c.hooks[e.desc.Name]; h.PreDelete != nil {
		if err := h.PreDelete(ctx, e); err != nil {
			return err
		}
	}
	for _, fn := range c.onDelete {
		if err := fn(ctx, e); err != nil {
			return err
		}
	}
	for _, a := range e.desc.Relations.ManyToMany {
		if err := e.clearJunction(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// dependents returns the rows holding a foreign key to e, recursively,
// without duplicates and without e itself.
func (e *Entity) dependents(ctx context.Context) ([]*Entity, error) {
	var out []*Entity
	visited := map[string]bool{e.key(): true}
	var walk func(*Entity) error
	walk = func(cur *Entity) error {
		for _, a := range cur.desc.Relations.Reverse {
			if a.Kind != schema.ReverseForeignKey {
				continue
			}
			related, err := cur.relatedList(ctx, a, ListOptions{})
			if err != nil {
				return err
			}
			for _, r := range related {
				if visited[r.key()] {
					continue
				}
				visited[r.key()] = true
				out = append(out, r)
				if err := walk(r); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(e); err != nil {
		return nil, err
	}
	return out, nil
}

// deleteOrder sorts rows so that no row is deleted while another row of
// the set still references it. Self references are ignored. When the
// remaining rows reference each other in a cycle, their nullable foreign
// keys into the set are set to NULL. A cycle of required keys is left to
// the database to reject.
func (c *Client) deleteOrder(ctx context.Context, rows []*Entity) ([]*Entity, error) {
	type ref struct {
		from   *Entity
		column string
		to     string
	}
	inSet := make(map[string]bool, len(rows))
	for _, r := range rows {
		inSet[r.key()] = true
	}
	var refs []*ref
	incoming := make(map[string]int)
	for _, r := range rows {
		for _, a := range r.desc.Relations.ForeignKeys {
			id, _ := r.data[a.Column].(int64)
			to := a.Target + "#" + fmt.Sprint(id)
			if id == 0 || to == r.key() || !inSet[to] {
				continue
			}
			refs = append(refs, &ref{from: r, column: a.Column, to: to})
			incoming[to]++
		}
	}
	done := make(map[string]bool, len(rows))
	release := func(r *Entity) {
		for _, f := range refs {
			if f.from == r && f.to != "" {
				incoming[f.to]--
				f.to = ""
			}
		}
	}
	order := make([]*Entity, 0, len(rows))
	for len(order) < len(rows) {
		progress := false
		for _, r := range rows {
			if done[r.key()] || incoming[r.key()] > 0 {
				continue
			}
			done[r.key()] = true
			order = append(order, r)
			release(r)
			progress = true
		}
		if progress {
			continue
		}
		for _, f := range refs {
			if f.to == "" || done[f.from.key()] {
				continue
			}
			col, _ := f.from.desc.Column(f.column)
			if !col.Nullable {
				continue
			}
			q := "UPDATE " + c.table(f.from.desc) + " SET " + c.conn.Qn(f.column) + " = NULL WHERE " +
				c.conn.Qn(schema.ID) + " = " + c.idLiteral(f.from.ID())
			if _, err := c.conn.Execute(ctx, q); err != nil {
				return nil, err
			}
			c.logger.DebugContext(ctx, "unlink cyclic reference", "entity", f.from.String(), "column", f.column)
			f.from.data[f.column] = nil
			incoming[f.to]--
			f.to = ""
			progress = true
		}
		if !progress {
			for _, r := range rows {
				if !done[r.key()] {
					done[r.key()] = true
					order = append(order, r)
				}
			}
		}
	}
	return order, nil
}

// DeleteSideEffects returns the entities a Delete of e would remove along
// with it, without duplicates.
func (e *Entity) DeleteSideEffects(ctx context.Context) ([]*Entity, error) {
	return e.dependents(ctx)
}

// BatchAssociation replaces the entities of type target associated with e
// by the given ids. Ids without a row are ignored. The replacement runs in
// a transaction.
func (e *Entity) BatchAssociation(ctx context.Context, target string, ids []int64) error {
	a, ok := e.desc.Relations.ManyToManyWith(target)
	if !ok {
		return tabula.NewAssociationError(e.desc.Name, target)
	}
	return e.batch(ctx, a, ids)
}

// SetAssociations replaces the entities associated through the
// many-to-many column of e by the given ids.
func (e *Entity) SetAssociations(ctx context.Context, column string, ids []int64) error {
	a, ok := e.desc.Accessor("get_" + column + "_list")
	if !ok || a.Kind != schema.ManyToMany {
		return tabula.NewMethodNotAvailableError(e.desc.Name, "get_"+column+"_list")
	}
	return e.batch(ctx, a, ids)
}

func (e *Entity) batch(ctx context.Context, a *schema.Accessor, ids []int64) error {
	if e.ID() == 0 {
		return fmt.Errorf("model: cannot associate unsaved %s", e.desc.Name)
	}
	c := e.client
	return c.Tx(ctx, func(ctx context.Context) error {
		if err := e.clearJunction(ctx, a); err != nil {
			return err
		}
		existing, err := c.existing(ctx, a.Target, ids)
		if err != nil {
			return err
		}
		for _, id := range existing {
			if err := e.insertAssoc(ctx, a, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// Associate adds other to the many-to-many relation between both types.
func (e *Entity) Associate(ctx context.Context, other *Entity) error {
	a, err := e.assocWith(other)
	if err != nil {
		return err
	}
	return e.client.Tx(ctx, func(ctx context.Context) error {
		if err := e.deleteAssoc(ctx, a, other.ID()); err != nil {
			return err
		}
		return e.insertAssoc(ctx, a, other.ID())
	})
}

// Dissociate removes other from the many-to-many relation between both types.
func (e *Entity) Dissociate(ctx context.Context, other *Entity) error {
	a, err := e.assocWith(other)
	if err != nil {
		return err
	}
	return e.deleteAssoc(ctx, a, other.ID())
}

func (e *Entity) assocWith(other *Entity) (*schema.Accessor, error) {
	a, ok := e.desc.Relations.ManyToManyWith(other.desc.Name)
	if !ok {
		return nil, tabula.NewAssociationError(e.desc.Name, other.desc.Name)
	}
	if e.ID() == 0 || other.ID() == 0 {
		return nil, fmt.Errorf("model: cannot associate unsaved %s and %s", e, other)
	}
	return a, nil
}

func (e *Entity) junction(a *schema.Accessor) (table, self, target string) {
	c := e.client
	return c.conn.Qn(c.conn.Prefix() + a.Junction.Table), c.conn.Qn(a.Junction.SelfColumn), c.conn.Qn(a.Junction.TargetColumn)
}

// clearJunction removes every association of e in the junction of a. Both
// directions of a self-referential relation are removed.
func (e *Entity) clearJunction(ctx context.Context, a *schema.Accessor) error {
	table, self, target := e.junction(a)
	id := e.client.idLiteral(e.ID())
	q := "DELETE FROM " + table + " WHERE " + self + " = " + id
	if a.Junction.Symmetric {
		q += " OR " + target + " = " + id
	}
	_, err := e.client.conn.Execute(ctx, q)
	return err
}

func (e *Entity) insertAssoc(ctx context.Context, a *schema.Accessor, id int64) error {
	table, self, target := e.junction(a)
	c := e.client
	pairs := [][2]int64{{e.ID(), id}}
	if a.Junction.Symmetric && id != e.ID() {
		pairs = append(pairs, [2]int64{id, e.ID()})
	}
	for _, p := range pairs {
		q := "INSERT INTO " + table + "\n(" + self + ", " + target + ") VALUES \n(" + c.idLiteral(p[0]) + ", " + c.idLiteral(p[1]) + ")"
		if _, err := c.conn.Execute(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (e *Entity) deleteAssoc(ctx context.Context, a *schema.Accessor, id int64) error {
	table, self, target := e.junction(a)
	c := e.client
	mine, theirs := c.idLiteral(e.ID()), c.idLiteral(id)
	q := "DELETE FROM " + table + " WHERE\n" + self + " = " + mine + " AND " + target + " = " + theirs
	if a.Junction.Symmetric {
		q += " OR " + self + " = " + theirs + " AND " + target + " = " + mine
	}
	_, err := c.conn.Execute(ctx, q)
	return err
}

// existing returns the ids of ids that have a row in the table of entity,
// deduplicated, in the given order.
func (c *Client) existing(ctx context.Context, entity string, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	d, err := c.reg.Descriptor(entity)
	if err != nil {
		return nil, err
	}
	lits := make([]string, len(ids))
	for i, id := range ids {
		lits[i] = c.idLiteral(id)
	}
	q := "SELECT " + c.conn.Qn(schema.ID) + " AS " + c.conn.Qn(schema.ID) + " FROM " + c.table(d) +
		" WHERE " + c.conn.Qn(schema.ID) + " IN (" + strings.Join(lits, ", ") + ")"
	rows, err := c.conn.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	found := make(map[int64]bool, len(rows))
	cast := c.conn.Cast(field.TypeSequence)
	for _, row := range rows {
		v, err := cast.FromDB(row[schema.ID])
		if err != nil {
			return nil, err
		}
		if id, ok := v.(int64); ok {
			found[id] = true
		}
	}
	var out []int64
	for _, id := range ids {
		if found[id] && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out, nil
}
