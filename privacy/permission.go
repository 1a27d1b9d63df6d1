package privacy

import (
	"context"
	"fmt"
	"strings"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect/sql"
	"github.com/syssam/tabula/model"
	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
	"github.com/syssam/tabula/schema/index"
)

// Entity names of the permission subsystem.
const (
	PermissionEntity    = "Permission"
	RowPermissionEntity = "RowPermission"
)

// Register adds the Permission and RowPermission entity types to reg.
func Register(reg *schema.Registry) error {
	if err := reg.Register(PermissionEntity, func(d *schema.Def) {
		d.Fields(
			field.Varchar("name").Size(255).Required(),
			field.Varchar("code_name").Size(100).Required(),
			field.Text("description").Blank(),
			field.Varchar("application").Size(100).Required(),
		)
		d.Indexes(index.Fields("application", "code_name").Unique())
	}); err != nil {
		return err
	}
	return reg.Register(RowPermissionEntity, func(d *schema.Def) {
		d.Table("row_permission")
		d.Fields(
			field.Integer("model_id"),
			field.Varchar("model_class").Size(100),
			field.Integer("owner_id"),
			field.Varchar("owner_class").Size(100),
			field.Boolean("negative"),
			field.ForeignKey("permission", PermissionEntity),
		)
		d.Indexes(
			index.Fields("model_class", "model_id").Name("model"),
			index.Fields("owner_class", "owner_id").Name("owner"),
		)
	})
}

// ParsePermission splits a permission reference of the form
// "Application.code_name".
func ParsePermission(s string) (app, code string, err error) {
	app, code, ok := strings.Cut(s, ".")
	if !ok || app == "" || code == "" {
		return "", "", fmt.Errorf("privacy: permission %q is not of the form Application.code_name", s)
	}
	return app, code, nil
}

// PermissionFromString returns the Permission entity referenced as
// "Application.code_name". A missing permission is reported with a
// *tabula.NotFoundError.
func PermissionFromString(ctx context.Context, c *model.Client, s string) (*model.Entity, error) {
	app, code, err := ParsePermission(s)
	if err != nil {
		return nil, err
	}
	conn := c.Conn()
	e, err := c.GetOne(ctx, PermissionEntity, model.ListOptions{
		Filter: []string{sql.And(sql.EQ(conn, "application", app), sql.EQ(conn, "code_name", code))},
	})
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, tabula.NewNotFoundError(PermissionEntity + " " + s)
	}
	return e, nil
}

// Ref identifies a row of any entity type, the owner or the target of a
// row permission.
type Ref struct {
	Class string
	ID    int64
}

// RefOf returns the reference of a saved entity.
func RefOf(e *model.Entity) Ref {
	return Ref{Class: e.Name(), ID: e.ID()}
}

// RowPermissions grants permissions on single rows. A negative grant
// overrides every positive grant of the same permission.
type RowPermissions struct {
	client *model.Client
}

// NewRowPermissions returns the row permissions stored through c. The
// registry of c must contain the entities added by Register.
func NewRowPermissions(c *model.Client) *RowPermissions {
	return &RowPermissions{client: c}
}

// Add grants perm on target to owner, or denies it when negative is set.
// A previous grant of the same permission is replaced.
func (r *RowPermissions) Add(ctx context.Context, owner, target Ref, perm string, negative bool) error {
	p, err := PermissionFromString(ctx, r.client, perm)
	if err != nil {
		return err
	}
	return r.client.Tx(ctx, func(ctx context.Context) error {
		if err := r.remove(ctx, owner, target, p.ID()); err != nil {
			return err
		}
		e, err := r.client.New(RowPermissionEntity)
		if err != nil {
			return err
		}
		for name, v := range map[string]any{
			"model_id":    target.ID,
			"model_class": target.Class,
			"owner_id":    owner.ID,
			"owner_class": owner.Class,
			"negative":    negative,
			"permission":  p.ID(),
		} {
			if err := e.Set(name, v); err != nil {
				return err
			}
		}
		return e.Create(ctx)
	})
}

// Remove drops the grants of perm on target to owner.
func (r *RowPermissions) Remove(ctx context.Context, owner, target Ref, perm string) error {
	p, err := PermissionFromString(ctx, r.client, perm)
	if err != nil {
		return err
	}
	return r.remove(ctx, owner, target, p.ID())
}

func (r *RowPermissions) remove(ctx context.Context, owner, target Ref, perm int64) error {
	grants, err := r.client.GetList(ctx, RowPermissionEntity, model.ListOptions{
		Filter: []string{r.match(owner, target), sql.EQ(r.client.Conn(), "permission", perm)},
	})
	if err != nil {
		return err
	}
	for _, g := range grants {
		if _, err := g.Delete(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Has reports if owner holds perm on target.
func (r *RowPermissions) Has(ctx context.Context, owner, target Ref, perm string) (bool, error) {
	p, err := PermissionFromString(ctx, r.client, perm)
	if tabula.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	grants, err := r.client.GetList(ctx, RowPermissionEntity, model.ListOptions{
		Filter: []string{r.match(owner, target), sql.EQ(r.client.Conn(), "permission", p.ID())},
	})
	if err != nil {
		return false, err
	}
	var granted bool
	for _, g := range grants {
		if g.Bool("negative") {
			return false, nil
		}
		granted = true
	}
	return granted, nil
}

// Owners returns the owners granted perm on target.
func (r *RowPermissions) Owners(ctx context.Context, target Ref, perm string) ([]Ref, error) {
	p, err := PermissionFromString(ctx, r.client, perm)
	if err != nil {
		return nil, err
	}
	conn := r.client.Conn()
	grants, err := r.client.GetList(ctx, RowPermissionEntity, model.ListOptions{
		Filter: []string{
			sql.EQ(conn, "model_class", target.Class),
			sql.EQ(conn, "model_id", target.ID),
			sql.EQ(conn, "permission", p.ID()),
			sql.EQ(conn, "negative", false),
		},
		Order: []string{conn.Qn("owner_class"), conn.Qn("owner_id")},
	})
	if err != nil {
		return nil, err
	}
	out := make([]Ref, 0, len(grants))
	for _, g := range grants {
		out = append(out, Ref{Class: g.Str("owner_class"), ID: g.Int("owner_id")})
	}
	return out, nil
}

func (r *RowPermissions) match(owner, target Ref) string {
	conn := r.client.Conn()
	return sql.And(
		sql.EQ(conn, "owner_class", owner.Class), sql.EQ(conn, "owner_id", owner.ID),
		sql.EQ(conn, "model_class", target.Class), sql.EQ(conn, "model_id", target.ID),
	)
}

// DeleteRowPermissions removes the row permissions held by or granted on
// e. Install it with model.OnDelete to clean the grants up in the delete
// cascade of every entity.
func DeleteRowPermissions(ctx context.Context, e *model.Entity) error {
	if e.Name() == RowPermissionEntity || e.ID() == 0 {
		return nil
	}
	c := e.Client()
	d, err := c.Descriptor(RowPermissionEntity)
	if err != nil {
		return err
	}
	conn := c.Conn()
	q := "DELETE FROM " + conn.Qn(conn.Prefix()+d.Table) + " WHERE (" +
		sql.And(sql.EQ(conn, "model_class", e.Name()), sql.EQ(conn, "model_id", e.ID())) + ") OR (" +
		sql.And(sql.EQ(conn, "owner_class", e.Name()), sql.EQ(conn, "owner_id", e.ID())) + ")"
	_, err = conn.Execute(ctx, q)
	return err
}
