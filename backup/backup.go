// Package backup dumps the rows of every registered entity type to flat
// records and restores them with their primary keys.
package backup

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/syssam/tabula/dialect"
	"github.com/syssam/tabula/model"
	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
)

// Record is one dumped row. Many-to-many columns hold the list of the
// associated ids, binary columns are base64 encoded.
type Record struct {
	Model  string         `json:"model" yaml:"model" msgpack:"model"`
	PK     int64          `json:"pk" yaml:"pk" msgpack:"pk"`
	Fields map[string]any `json:"fields" yaml:"fields" msgpack:"fields"`
}

// Dump returns the records of every row of entity, by primary key.
func Dump(ctx context.Context, c *model.Client, entity string) ([]Record, error) {
	d, err := c.Descriptor(entity)
	if err != nil {
		return nil, err
	}
	conn := c.Conn()
	rows, err := c.GetList(ctx, entity, model.ListOptions{
		Order: []string{conn.Qn(conn.Prefix()+d.Table) + "." + conn.Qn(schema.ID)},
	})
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, e := range rows {
		data, err := e.Data(ctx)
		if err != nil {
			return nil, err
		}
		rec := Record{Model: entity, PK: e.ID(), Fields: make(map[string]any, len(d.Columns))}
		for _, col := range d.Columns {
			if col.Name != schema.ID {
				rec.Fields[col.Name] = export(col, data[col.Name])
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func export(col *field.Descriptor, v any) any {
	switch v := v.(type) {
	case []byte:
		return base64.StdEncoding.EncodeToString(v)
	case time.Time:
		if col.Type == field.TypeDate {
			return v.Format(field.DateLayout)
		}
		return v.Format(field.DatetimeLayout)
	}
	return v
}

func restore(col *field.Descriptor, v any) (any, error) {
	s, ok := v.(string)
	if !ok || (col.Type != field.TypeBlob && col.Type != field.TypeCompressed) {
		return v, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

// Restore inserts the records with their primary keys, parents of foreign
// keys first, then restores the many-to-many associations. It runs in one
// transaction and fails when a primary key already exists.
func Restore(ctx context.Context, c *model.Client, records []Record) error {
	descs, err := c.Registry().Descriptors()
	if err != nil {
		return err
	}
	byModel := make(map[string][]Record)
	for _, r := range records {
		if _, err := c.Descriptor(r.Model); err != nil {
			return err
		}
		byModel[r.Model] = append(byModel[r.Model], r)
	}
	order := Order(descs)
	return c.Tx(ctx, func(ctx context.Context) error {
		for _, d := range order {
			for _, r := range byModel[d.Name] {
				if err := insert(ctx, c, d, r); err != nil {
					return err
				}
			}
		}
		for _, d := range order {
			for _, r := range byModel[d.Name] {
				if err := associate(ctx, c, d, r); err != nil {
					return err
				}
			}
			if len(byModel[d.Name]) > 0 {
				if err := resetSequence(ctx, c, d); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func insert(ctx context.Context, c *model.Client, d *schema.Descriptor, r Record) error {
	e, err := c.New(d.Name)
	if err != nil {
		return err
	}
	found, err := e.Get(ctx, r.PK)
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("backup: %s %d already exists", d.Name, r.PK)
	}
	e, _ = c.New(d.Name)
	if err := e.Set(schema.ID, r.PK); err != nil {
		return err
	}
	for name, v := range r.Fields {
		col, ok := d.Column(name)
		if !ok {
			return fmt.Errorf("backup: %s has no column %q", d.Name, name)
		}
		if col.IsManyToMany() {
			continue
		}
		v, err := restore(col, v)
		if err != nil {
			return fmt.Errorf("backup: decoding %s.%s: %w", d.Name, name, err)
		}
		if err := e.Set(name, v); err != nil {
			return err
		}
	}
	return e.CreateRaw(ctx)
}

func associate(ctx context.Context, c *model.Client, d *schema.Descriptor, r Record) error {
	for _, col := range d.Columns {
		v, ok := r.Fields[col.Name]
		if !col.IsManyToMany() || !ok || v == nil {
			continue
		}
		ids, err := field.Coerce(col, v)
		if err != nil {
			return fmt.Errorf("backup: decoding %s.%s: %w", d.Name, col.Name, err)
		}
		e, err := c.New(d.Name)
		if err != nil {
			return err
		}
		if err := e.Set(schema.ID, r.PK); err != nil {
			return err
		}
		if err := e.SetAssociations(ctx, col.Name, ids.([]int64)); err != nil {
			return err
		}
	}
	return nil
}

// resetSequence moves the PostgreSQL sequence of d past the restored keys.
func resetSequence(ctx context.Context, c *model.Client, d *schema.Descriptor) error {
	conn := c.Conn()
	if conn.Dialect() != dialect.Postgres {
		return nil
	}
	table := conn.Qn(conn.Prefix() + d.Table)
	_, err := conn.Select(ctx, fmt.Sprintf("SELECT setval(pg_get_serial_sequence(%s, %s), MAX(%s)) AS setval FROM %s",
		conn.Esc(table), conn.Esc(schema.ID), conn.Qn(schema.ID), table))
	return err
}

// Order returns the descriptors with the targets of foreign keys before
// the entities referencing them. Self references and cycles keep the
// registration order.
func Order(descs []*schema.Descriptor) []*schema.Descriptor {
	byName := make(map[string]*schema.Descriptor, len(descs))
	for _, d := range descs {
		byName[d.Name] = d
	}
	var (
		out   = make([]*schema.Descriptor, 0, len(descs))
		state = make(map[string]int)
		visit func(*schema.Descriptor)
	)
	visit = func(d *schema.Descriptor) {
		if state[d.Name] != 0 {
			return
		}
		state[d.Name] = 1
		for _, col := range d.Columns {
			if t, ok := byName[col.Target]; ok && col.IsForeignKey() && t != d {
				visit(t)
			}
		}
		state[d.Name] = 2
		out = append(out, d)
	}
	for _, d := range descs {
		visit(d)
	}
	return out
}
