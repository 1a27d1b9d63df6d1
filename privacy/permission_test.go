package privacy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/internal/testutil"
	"github.com/syssam/tabula/model"
	"github.com/syssam/tabula/privacy"
	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
)

func newClient(t *testing.T, opts ...model.Option) *model.Client {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, privacy.Register(reg))
	reg.MustRegister("User", func(d *schema.Def) {
		d.Fields(field.Varchar("login"))
	})
	reg.MustRegister("Doc", func(d *schema.Def) {
		d.Fields(field.Varchar("title"), field.Integer("author"))
	})
	opts = append([]model.Option{model.OnDelete(privacy.DeleteRowPermissions)}, opts...)
	return testutil.NewClient(t, reg, opts...)
}

func mustCreate(t *testing.T, c *model.Client, entity string, values map[string]any) *model.Entity {
	t.Helper()
	e := c.MustNew(entity)
	for k, v := range values {
		e.MustSet(k, v)
	}
	require.NoError(t, e.Create(context.Background()))
	return e
}

func TestPermissionFromString(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	mustCreate(t, c, privacy.PermissionEntity, map[string]any{"name": "One", "code_name": "code1", "application": "App"})
	mustCreate(t, c, privacy.PermissionEntity, map[string]any{"name": "Two", "code_name": "code2", "application": "App"})

	p, err := privacy.PermissionFromString(ctx, c, "App.code1")
	require.NoError(t, err)
	assert.Equal(t, "App", p.Str("application"))
	assert.Equal(t, "code1", p.Str("code_name"))
	assert.Equal(t, "One", p.Str("name"))

	_, err = privacy.PermissionFromString(ctx, c, "Other.code1")
	assert.True(t, tabula.IsNotFound(err))

	_, err = privacy.PermissionFromString(ctx, c, "nodot")
	require.Error(t, err)
	assert.False(t, tabula.IsNotFound(err))

	dup := c.MustNew(privacy.PermissionEntity)
	dup.MustSet("name", "Dup").MustSet("code_name", "code1").MustSet("application", "App")
	assert.True(t, tabula.IsConstraintError(dup.Create(ctx)))
}

func TestRowPermissions(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	mustCreate(t, c, privacy.PermissionEntity, map[string]any{"name": "Edit", "code_name": "edit", "application": "Docs"})
	alice := mustCreate(t, c, "User", map[string]any{"login": "alice"})
	bob := mustCreate(t, c, "User", map[string]any{"login": "bob"})
	doc := mustCreate(t, c, "Doc", map[string]any{"title": "plan"})
	perms := privacy.NewRowPermissions(c)

	has := func(u *model.Entity) bool {
		ok, err := perms.Has(ctx, privacy.RefOf(u), privacy.RefOf(doc), "Docs.edit")
		require.NoError(t, err)
		return ok
	}
	require.NoError(t, perms.Add(ctx, privacy.RefOf(alice), privacy.RefOf(doc), "Docs.edit", false))
	require.NoError(t, perms.Add(ctx, privacy.RefOf(bob), privacy.RefOf(doc), "Docs.edit", false))
	assert.True(t, has(alice))
	assert.True(t, has(bob))

	owners, err := perms.Owners(ctx, privacy.RefOf(doc), "Docs.edit")
	require.NoError(t, err)
	assert.Equal(t, []privacy.Ref{privacy.RefOf(alice), privacy.RefOf(bob)}, owners)

	require.NoError(t, perms.Add(ctx, privacy.RefOf(bob), privacy.RefOf(doc), "Docs.edit", true))
	assert.False(t, has(bob))
	n, err := c.GetCount(ctx, privacy.RowPermissionEntity, model.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, perms.Remove(ctx, privacy.RefOf(alice), privacy.RefOf(doc), "Docs.edit"))
	assert.False(t, has(alice))

	ok, err := perms.Has(ctx, privacy.RefOf(alice), privacy.RefOf(doc), "Docs.unknown")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, tabula.IsNotFound(perms.Add(ctx, privacy.RefOf(alice), privacy.RefOf(doc), "Docs.unknown", false)))

	deleted, err := doc.Delete(ctx)
	require.NoError(t, err)
	require.True(t, deleted)
	n, err = c.GetCount(ctx, privacy.RowPermissionEntity, model.ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPermissionDeleteCascade(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	perm := mustCreate(t, c, privacy.PermissionEntity, map[string]any{"name": "Read", "code_name": "read", "application": "Docs"})
	user := mustCreate(t, c, "User", map[string]any{"login": "u"})
	doc := mustCreate(t, c, "Doc", map[string]any{"title": "d"})
	perms := privacy.NewRowPermissions(c)
	require.NoError(t, perms.Add(ctx, privacy.RefOf(user), privacy.RefOf(doc), "Docs.read", false))

	effects, err := perm.DeleteSideEffects(ctx)
	require.NoError(t, err)
	require.Len(t, effects, 1)
	assert.Equal(t, privacy.RowPermissionEntity, effects[0].Name())

	_, err = perm.Delete(ctx)
	require.NoError(t, err)
	n, err := c.GetCount(ctx, privacy.RowPermissionEntity, model.ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPolicyOnClient(t *testing.T) {
	ctx := context.Background()
	var perms *privacy.RowPermissions
	c := newClient(t, model.WithPolicy("Doc", privacy.Policy{
		Query: privacy.QueryPolicy{
			privacy.HasRole("admin"),
			privacy.OwnerFilter("author"),
		},
		Mutation: privacy.MutationPolicy{
			privacy.DenyIfNoViewer(),
			privacy.AllowMutationOperationRule(tabula.OpCreate),
			privacy.IsOwner("author"),
			privacy.MutationRuleFunc(func(ctx context.Context, m tabula.Mutation) error {
				return privacy.HasRowPermission(perms, "Docs.edit").EvalMutation(ctx, m)
			}),
			privacy.AlwaysDenyRule(),
		},
	}))
	perms = privacy.NewRowPermissions(c)
	mustCreate(t, c, privacy.PermissionEntity, map[string]any{"name": "Edit", "code_name": "edit", "application": "Docs"})
	alice := mustCreate(t, c, "User", map[string]any{"login": "alice"})
	bob := mustCreate(t, c, "User", map[string]any{"login": "bob"})
	asAlice := privacy.WithViewer(ctx, privacy.EntityViewer(alice))
	asBob := privacy.WithViewer(ctx, privacy.EntityViewer(bob))
	asAdmin := privacy.WithViewer(ctx, privacy.EntityViewer(bob, "admin"))

	doc := c.MustNew("Doc").MustSet("title", "mine").MustSet("author", alice.ID())
	require.True(t, tabula.IsPrivacyError(doc.Create(ctx)))
	require.NoError(t, doc.Create(asAlice))

	docs, err := c.GetList(asBob, "Doc", model.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, docs)
	docs, err = c.GetList(asAdmin, "Doc", model.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	_, err = c.GetList(ctx, "Doc", model.ListOptions{})
	assert.True(t, tabula.IsPrivacyError(err))

	doc.MustSet("title", "edited")
	require.NoError(t, doc.Update(asAlice))
	err = doc.Update(asBob)
	assert.True(t, tabula.IsPrivacyError(err))

	require.NoError(t, perms.Add(ctx, privacy.RefOf(bob), privacy.RefOf(doc), "Docs.edit", false))
	require.NoError(t, doc.Update(asBob))
}
