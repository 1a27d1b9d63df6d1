package model

import (
	"context"
	"slices"
	"strings"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/schema"
)

// GetMany loads the entities with the given ids in one query. The result
// has the length and order of ids; missing rows are nil.
func (c *Client) GetMany(ctx context.Context, entity string, ids []int64) ([]*Entity, error) {
	d, err := c.reg.Descriptor(entity)
	if err != nil {
		return nil, err
	}
	found, err := c.loadIDs(ctx, d, ids)
	if err != nil {
		return nil, err
	}
	return orderByKeys(ids, found, (*Entity).ID), nil
}

// Preload resolves the foreign key accessor named method of every entity
// with one query, so later Related calls do not hit the database. All
// entities must be of the same type.
func (c *Client) Preload(ctx context.Context, entities []*Entity, method string) error {
	if len(entities) == 0 {
		return nil
	}
	d := entities[0].desc
	a, ok := d.Accessor(method)
	if !ok || a.Kind.IsList() {
		return tabula.NewMethodNotAvailableError(d.Name, method)
	}
	var ids []int64
	for _, e := range entities {
		if e.desc != d {
			return tabula.NewAssociationError(e.desc.Name, d.Name)
		}
		if id, _ := e.data[a.Column].(int64); id != 0 && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	target, err := c.reg.Descriptor(a.Target)
	if err != nil {
		return err
	}
	found, err := c.loadIDs(ctx, target, ids)
	if err != nil {
		return err
	}
	byID := groupByKey(found, (*Entity).ID)
	for _, e := range entities {
		id, _ := e.data[a.Column].(int64)
		var r *Entity
		if rs := byID[id]; len(rs) > 0 {
			r = rs[0]
		}
		e.cache[method] = r
	}
	c.logger.DebugContext(ctx, "preloaded", "entity", d.Name, "method", method, "rows", len(found))
	return nil
}

func (c *Client) loadIDs(ctx context.Context, d *schema.Descriptor, ids []int64) ([]*Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	lits := make([]string, len(ids))
	for i, id := range ids {
		lits[i] = c.idLiteral(id)
	}
	v, err := d.View("")
	if err != nil {
		return nil, err
	}
	cond := c.table(d) + "." + c.conn.Qn(schema.ID) + " IN (" + strings.Join(lits, ", ") + ")"
	return c.list(ctx, d, v, ListOptions{Filter: []string{cond}})
}

// orderByKeys arranges values in the order of keys. Keys without a value
// get the zero value.
func orderByKeys[K comparable, V any](keys []K, values []V, key func(V) K) []V {
	lookup := make(map[K]V, len(values))
	for _, v := range values {
		lookup[key(v)] = v
	}
	out := make([]V, len(keys))
	for i, k := range keys {
		out[i] = lookup[k]
	}
	return out
}

// groupByKey groups values by key.
func groupByKey[K comparable, V any](values []V, key func(V) K) map[K][]V {
	out := make(map[K][]V)
	for _, v := range values {
		k := key(v)
		out[k] = append(out[k], v)
	}
	return out
}
