// Package mixin provides reusable column groups for entity types and the
// behavior that maintains them.
//
// Available mixins:
//   - CreateTime: adds the created_at datetime column
//   - UpdateTime: adds the updated_at datetime column
//   - Time: combines CreateTime and UpdateTime
//   - SoftDelete: adds the deleted_at datetime column
//   - TenantID: adds the indexed tenant_id column
//
// Usage:
//
//	reg.MustRegister("Post", mixin.Init(func(d *schema.Def) {
//	    d.Fields(field.Varchar("title"))
//	}, mixin.Time, mixin.SoftDelete))
//
//	opts, _ := mixin.TimeOptions(reg, time.Now)
//	client := model.NewClient(reg, drv, opts...)
package mixin

import (
	"context"
	"fmt"
	"time"

	"github.com/syssam/tabula/model"
	"github.com/syssam/tabula/privacy"
	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
)

// Column names of the mixins.
const (
	CreatedAt = "created_at"
	UpdatedAt = "updated_at"
	DeletedAt = "deleted_at"
	Tenant    = "tenant_id"
)

// Mixin declares a group of columns on an entity type.
type Mixin func(*schema.Def)

// Init returns an init function declaring the mixin columns after the
// columns of init.
func Init(init schema.InitFunc, mixins ...Mixin) schema.InitFunc {
	return func(d *schema.Def) {
		if init != nil {
			init(d)
		}
		for _, m := range mixins {
			m(d)
		}
	}
}

// CreateTime adds created_at, set once when the entity is created.
func CreateTime(d *schema.Def) {
	d.Fields(field.Datetime(CreatedAt).Nullable().Verbose("Created"))
}

// UpdateTime adds updated_at, set on every save.
func UpdateTime(d *schema.Def) {
	d.Fields(field.Datetime(UpdatedAt).Nullable().Verbose("Updated"))
}

// Time composes CreateTime and UpdateTime.
func Time(d *schema.Def) {
	CreateTime(d)
	UpdateTime(d)
}

// SoftDelete adds deleted_at. Rows with a deletion time are hidden by
// NotDeleted.
func SoftDelete(d *schema.Def) {
	d.Fields(field.Datetime(DeletedAt).Nullable().Index())
}

// TenantID adds the tenant_id column.
func TenantID(d *schema.Def) {
	d.Fields(field.Varchar(Tenant).Size(64).Required().Index())
}

// TimeHooks returns the hooks maintaining created_at and updated_at.
// Values are truncated to the second.
func TimeHooks(now func() time.Time) model.Hooks {
	return model.Hooks{
		PreSave: func(_ context.Context, e *model.Entity, create bool) error {
			t := now().UTC().Truncate(time.Second)
			d := e.Descriptor()
			if _, ok := d.Column(CreatedAt); ok && create {
				if v, _ := e.Value(CreatedAt).(time.Time); v.IsZero() {
					if err := e.Set(CreatedAt, t); err != nil {
						return err
					}
				}
			}
			if _, ok := d.Column(UpdatedAt); ok {
				return e.Set(UpdatedAt, t)
			}
			return nil
		},
	}
}

// TimeOptions returns the client options installing TimeHooks on every entity
// type of reg having a time column. The hooks replace other hooks of the
// same types.
func TimeOptions(reg *schema.Registry, now func() time.Time) ([]model.Option, error) {
	descs, err := reg.Descriptors()
	if err != nil {
		return nil, err
	}
	var opts []model.Option
	for _, d := range descs {
		_, created := d.Column(CreatedAt)
		_, updated := d.Column(UpdatedAt)
		if created || updated {
			opts = append(opts, model.WithHooks(d.Name, TimeHooks(now)))
		}
	}
	return opts, nil
}

// NotDeleted is a query rule hiding soft deleted rows.
func NotDeleted() privacy.QueryRule {
	return privacy.FilterFunc(func(_ context.Context, f privacy.Filter) error {
		f.Where(privacy.Quote(f, DeletedAt) + " IS NULL")
		return privacy.Skip
	})
}

// Trash marks e deleted at the given time.
func Trash(ctx context.Context, e *model.Entity, at time.Time) error {
	if _, ok := e.Descriptor().Column(DeletedAt); !ok {
		return fmt.Errorf("mixin: %s has no %s column", e.Name(), DeletedAt)
	}
	if err := e.Set(DeletedAt, at.UTC().Truncate(time.Second)); err != nil {
		return err
	}
	return e.Update(ctx)
}

// Untrash clears the deletion time of e.
func Untrash(ctx context.Context, e *model.Entity) error {
	if _, ok := e.Descriptor().Column(DeletedAt); !ok {
		return fmt.Errorf("mixin: %s has no %s column", e.Name(), DeletedAt)
	}
	if err := e.Set(DeletedAt, nil); err != nil {
		return err
	}
	return e.Update(ctx)
}

// TenantFilter is a query rule restricting rows to the tenant returned by
// tenant. Queries without a tenant are denied.
func TenantFilter(tenant func(context.Context) (string, bool)) privacy.QueryRule {
	return privacy.FilterFunc(func(ctx context.Context, f privacy.Filter) error {
		id, ok := tenant(ctx)
		if !ok {
			return privacy.Denyf("mixin: tenant required")
		}
		f.Where(privacy.Quote(f, Tenant) + "=" + privacy.Literal(f, id))
		return privacy.Skip
	})
}
