package privacy_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/privacy"
)

type mockMutation struct {
	op     tabula.Op
	entity string
	id     int64
	fields map[string]any
}

func (m *mockMutation) Entity() string { return m.entity }
func (m *mockMutation) Op() tabula.Op  { return m.op }
func (m *mockMutation) ID() int64      { return m.id }
func (m *mockMutation) Field(name string) (any, bool) {
	v, ok := m.fields[name]
	return v, ok
}

type mockQuery struct {
	where []string
}

func (q *mockQuery) Entity() string          { return "Doc" }
func (q *mockQuery) Filter() tabula.Filter   { return q }
func (q *mockQuery) Where(clauses ...string) { q.where = append(q.where, clauses...) }

func TestDecisionErrors(t *testing.T) {
	tests := []struct {
		name      string
		decision  error
		wantAllow bool
		wantDeny  bool
		wantSkip  bool
	}{
		{name: "allow", decision: privacy.Allow, wantAllow: true},
		{name: "deny", decision: privacy.Deny, wantDeny: true},
		{name: "skip", decision: privacy.Skip, wantSkip: true},
		{name: "allowf", decision: privacy.Allowf("user %s allowed", "admin"), wantAllow: true},
		{name: "denyf", decision: privacy.Denyf("user %s denied", "guest"), wantDeny: true},
		{name: "skipf", decision: privacy.Skipf("rule %d skipped", 1), wantSkip: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantAllow, errors.Is(tt.decision, privacy.Allow))
			assert.Equal(t, tt.wantDeny, errors.Is(tt.decision, privacy.Deny))
			assert.Equal(t, tt.wantSkip, errors.Is(tt.decision, privacy.Skip))
		})
	}
	assert.Equal(t, "user guest denied: privacy: deny rule", privacy.Denyf("user %s denied", "guest").Error())
}

func TestAlwaysRules(t *testing.T) {
	ctx := context.Background()
	allow := privacy.AlwaysAllowRule()
	assert.ErrorIs(t, allow.EvalQuery(ctx, &mockQuery{}), privacy.Allow)
	assert.ErrorIs(t, allow.EvalMutation(ctx, &mockMutation{}), privacy.Allow)

	deny := privacy.AlwaysDenyRule()
	assert.ErrorIs(t, deny.EvalQuery(ctx, &mockQuery{}), privacy.Deny)
	assert.ErrorIs(t, deny.EvalMutation(ctx, &mockMutation{}), privacy.Deny)
}

func TestPolicy(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		policy  privacy.Policy
		wantErr error
	}{
		{
			name:   "Empty",
			policy: privacy.Policy{},
		},
		{
			name: "AllowIsNil",
			policy: privacy.Policy{
				Query:    privacy.QueryPolicy{privacy.AlwaysAllowRule(), privacy.AlwaysDenyRule()},
				Mutation: privacy.MutationPolicy{privacy.AlwaysAllowRule(), privacy.AlwaysDenyRule()},
			},
		},
		{
			name: "SkipThenDeny",
			policy: privacy.Policy{
				Query: privacy.QueryPolicy{
					privacy.ContextQueryMutationRule(func(context.Context) error { return privacy.Skip }),
					privacy.AlwaysDenyRule(),
				},
				Mutation: privacy.MutationPolicy{
					privacy.ContextQueryMutationRule(func(context.Context) error { return nil }),
					privacy.AlwaysDenyRule(),
				},
			},
			wantErr: privacy.Deny,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qerr := tt.policy.EvalQuery(ctx, &mockQuery{})
			merr := tt.policy.EvalMutation(ctx, &mockMutation{op: tabula.OpCreate})
			if tt.wantErr == nil {
				assert.NoError(t, qerr)
				assert.NoError(t, merr)
				return
			}
			assert.ErrorIs(t, qerr, tt.wantErr)
			assert.ErrorIs(t, merr, tt.wantErr)
		})
	}
}

func TestPolicies(t *testing.T) {
	ctx := context.Background()
	deny := privacy.Policy{Mutation: privacy.MutationPolicy{privacy.AlwaysDenyRule()}}
	allow := privacy.Policy{Mutation: privacy.MutationPolicy{privacy.AlwaysAllowRule()}}
	m := &mockMutation{op: tabula.OpUpdate}

	assert.NoError(t, privacy.Policies{allow, deny}.EvalMutation(ctx, m))
	assert.ErrorIs(t, privacy.Policies{deny, allow}.EvalMutation(ctx, m), privacy.Deny)
	assert.NoError(t, privacy.Policies{}.EvalQuery(ctx, &mockQuery{}))
}

func TestDecisionContext(t *testing.T) {
	ctx := context.Background()
	deny := privacy.Policy{Mutation: privacy.MutationPolicy{privacy.AlwaysDenyRule()}}
	m := &mockMutation{op: tabula.OpDelete}

	assert.NoError(t, deny.EvalMutation(privacy.DecisionContext(ctx, privacy.Allow), m))
	assert.ErrorIs(t, deny.EvalMutation(privacy.DecisionContext(ctx, privacy.Skip), m), privacy.Deny)

	_, ok := privacy.DecisionFromContext(ctx)
	assert.False(t, ok)
	decision, ok := privacy.DecisionFromContext(privacy.DecisionContext(ctx, privacy.Denyf("maintenance")))
	assert.True(t, ok)
	assert.ErrorIs(t, decision, privacy.Deny)
}

func TestMutationOperationRules(t *testing.T) {
	ctx := context.Background()
	rule := privacy.DenyMutationOperationRule(tabula.OpUpdate | tabula.OpDelete)

	assert.ErrorIs(t, rule.EvalMutation(ctx, &mockMutation{op: tabula.OpCreate}), privacy.Skip)
	err := rule.EvalMutation(ctx, &mockMutation{op: tabula.OpDelete, entity: "Doc"})
	assert.ErrorIs(t, err, privacy.Deny)
	assert.Contains(t, err.Error(), "OpDelete on Doc")

	allow := privacy.AllowMutationOperationRule(tabula.OpCreate)
	assert.ErrorIs(t, allow.EvalMutation(ctx, &mockMutation{op: tabula.OpCreate}), privacy.Allow)
	assert.ErrorIs(t, allow.EvalMutation(ctx, &mockMutation{op: tabula.OpUpdate}), privacy.Skip)
}

func TestFilterFunc(t *testing.T) {
	ctx := context.Background()
	rule := privacy.FilterFunc(func(_ context.Context, f privacy.Filter) error {
		f.Where(`"archived" = 0`)
		return privacy.Skip
	})
	q := &mockQuery{}
	require.ErrorIs(t, rule.EvalQuery(ctx, q), privacy.Skip)
	assert.Equal(t, []string{`"archived" = 0`}, q.where)

	assert.ErrorIs(t, rule.EvalMutation(ctx, &mockMutation{entity: "Doc"}), privacy.Deny)
}
