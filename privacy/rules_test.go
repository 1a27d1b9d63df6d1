package privacy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/privacy"
)

func viewerCtx(id int64, roles ...string) context.Context {
	return privacy.WithViewer(context.Background(), &privacy.SimpleViewer{
		Owner:     privacy.Ref{Class: "User", ID: id},
		RoleNames: roles,
	})
}

func TestViewerContext(t *testing.T) {
	assert.Nil(t, privacy.ViewerFromContext(context.Background()))
	v := privacy.ViewerFromContext(viewerCtx(4, "admin"))
	if assert.NotNil(t, v) {
		assert.Equal(t, privacy.Ref{Class: "User", ID: 4}, v.Ref())
		assert.Equal(t, []string{"admin"}, v.Roles())
	}
}

func TestDenyIfNoViewer(t *testing.T) {
	rule := privacy.DenyIfNoViewer()
	assert.ErrorIs(t, rule.EvalQuery(context.Background(), &mockQuery{}), privacy.Deny)
	assert.ErrorIs(t, rule.EvalMutation(viewerCtx(1), &mockMutation{}), privacy.Skip)
}

func TestHasRole(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		rule privacy.QueryMutationRule
		want error
	}{
		{name: "NoViewer", ctx: context.Background(), rule: privacy.HasRole("admin"), want: privacy.Skip},
		{name: "Match", ctx: viewerCtx(1, "user", "admin"), rule: privacy.HasRole("admin"), want: privacy.Allow},
		{name: "Missing", ctx: viewerCtx(1, "user"), rule: privacy.HasRole("admin"), want: privacy.Skip},
		{name: "AnyMatch", ctx: viewerCtx(1, "editor"), rule: privacy.HasAnyRole("admin", "editor"), want: privacy.Allow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.rule.EvalQuery(tt.ctx, &mockQuery{}), tt.want)
			assert.ErrorIs(t, tt.rule.EvalMutation(tt.ctx, &mockMutation{}), tt.want)
		})
	}
}

func TestIsOwner(t *testing.T) {
	rule := privacy.IsOwner("author")
	m := &mockMutation{op: tabula.OpUpdate, fields: map[string]any{"author": int64(7)}}

	assert.ErrorIs(t, rule.EvalMutation(context.Background(), m), privacy.Skip)
	assert.ErrorIs(t, rule.EvalMutation(viewerCtx(7), m), privacy.Allow)
	assert.ErrorIs(t, rule.EvalMutation(viewerCtx(8), m), privacy.Skip)
	assert.ErrorIs(t, rule.EvalMutation(viewerCtx(7), &mockMutation{}), privacy.Skip)
}

func TestOwnerFilter(t *testing.T) {
	rule := privacy.OwnerFilter("author")
	assert.ErrorIs(t, rule.EvalQuery(context.Background(), &mockQuery{}), privacy.Deny)

	q := &mockQuery{}
	assert.ErrorIs(t, rule.EvalQuery(viewerCtx(3), q), privacy.Skip)
	assert.Equal(t, []string{`"author"=3`}, q.where)
}

type mysqlQuery struct{ mockQuery }

func (q *mysqlQuery) Filter() tabula.Filter { return q }
func (q *mysqlQuery) Qn(name string) string { return "`" + name + "`" }

func TestOwnerFilterQuoting(t *testing.T) {
	q := &mysqlQuery{}
	assert.ErrorIs(t, privacy.OwnerFilter("author").EvalQuery(viewerCtx(3), q), privacy.Skip)
	assert.Equal(t, []string{"`author`=3"}, q.where)
	assert.Equal(t, `"x"`, privacy.Quote(&mockQuery{}, "x"))
}
