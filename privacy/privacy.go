package privacy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/syssam/tabula"
)

// Policy decision sentinel errors. Rules return them, possibly wrapped, to
// end or continue the evaluation:
//
//	if errors.Is(err, privacy.Deny) { ... }
var (
	// Allow ends the evaluation and permits the operation.
	Allow = errors.New("privacy: allow rule")

	// Deny ends the evaluation and rejects the operation.
	Deny = errors.New("privacy: deny rule")

	// Skip continues the evaluation with the next rule.
	Skip = errors.New("privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// AlwaysAllowRule returns a rule that always returns an Allow decision.
func AlwaysAllowRule() QueryMutationRule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always returns a Deny decision.
func AlwaysDenyRule() QueryMutationRule {
	return fixedDecision{Deny}
}

// ContextQueryMutationRule creates a rule from a function of the context.
// Returning nil is equivalent to returning Skip.
func ContextQueryMutationRule(eval func(context.Context) error) QueryMutationRule {
	return contextDecision{eval}
}

type (
	// QueryRule decides whether a list query is allowed, and may narrow it
	// through its filter.
	QueryRule interface {
		EvalQuery(context.Context, tabula.Query) error
	}

	// QueryPolicy combines multiple query rules into a single policy.
	QueryPolicy []QueryRule

	// MutationRule decides whether a create, update or delete is allowed.
	MutationRule interface {
		EvalMutation(context.Context, tabula.Mutation) error
	}

	// MutationPolicy combines multiple mutation rules into a single policy.
	MutationPolicy []MutationRule

	// QueryMutationRule is an interface which groups query and mutation rules.
	QueryMutationRule interface {
		QueryRule
		MutationRule
	}
)

// MutationRuleFunc type is an adapter which allows the use of
// ordinary functions as mutation rules.
type MutationRuleFunc func(context.Context, tabula.Mutation) error

// EvalMutation returns f(ctx, m).
func (f MutationRuleFunc) EvalMutation(ctx context.Context, m tabula.Mutation) error {
	return f(ctx, m)
}

// QueryRuleFunc type is an adapter which allows the use of ordinary
// functions as query rules.
type QueryRuleFunc func(context.Context, tabula.Query) error

// EvalQuery returns f(ctx, q).
func (f QueryRuleFunc) EvalQuery(ctx context.Context, q tabula.Query) error {
	return f(ctx, q)
}

// OnMutationOperation evaluates the given rule only on the given operations.
func OnMutationOperation(rule MutationRule, op tabula.Op) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m tabula.Mutation) error {
		if m.Op().Is(op) {
			return rule.EvalMutation(ctx, m)
		}
		return Skip
	})
}

// DenyMutationOperationRule returns a rule denying the given operations.
func DenyMutationOperationRule(op tabula.Op) MutationRule {
	rule := MutationRuleFunc(func(_ context.Context, m tabula.Mutation) error {
		return Denyf("privacy: operation %s on %s is not allowed", m.Op(), m.Entity())
	})
	return OnMutationOperation(rule, op)
}

// AllowMutationOperationRule returns a rule allowing the given operations.
func AllowMutationOperationRule(op tabula.Op) MutationRule {
	rule := MutationRuleFunc(func(context.Context, tabula.Mutation) error {
		return Allow
	})
	return OnMutationOperation(rule, op)
}

// Policy groups query and mutation policies. It implements tabula.Policy
// and can be installed on a model client with model.WithPolicy.
type Policy struct {
	Query    QueryPolicy
	Mutation MutationPolicy
}

// EvalQuery evaluates the query policy. An Allow decision is returned as nil.
func (p Policy) EvalQuery(ctx context.Context, q tabula.Query) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	return final(p.Query.EvalQuery(ctx, q))
}

// EvalMutation evaluates the mutation policy. An Allow decision is returned
// as nil.
func (p Policy) EvalMutation(ctx context.Context, m tabula.Mutation) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	return final(p.Mutation.EvalMutation(ctx, m))
}

// Policies combines multiple policies into a single policy. The first
// policy returning a decision other than Skip ends the evaluation.
type Policies []tabula.Policy

// EvalQuery evaluates the query policies.
func (policies Policies) EvalQuery(ctx context.Context, q tabula.Query) error {
	return policies.eval(ctx, func(policy tabula.Policy) error {
		return policy.EvalQuery(ctx, q)
	})
}

// EvalMutation evaluates the mutation policies.
func (policies Policies) EvalMutation(ctx context.Context, m tabula.Mutation) error {
	return policies.eval(ctx, func(policy tabula.Policy) error {
		return policy.EvalMutation(ctx, m)
	})
}

func (policies Policies) eval(ctx context.Context, eval func(tabula.Policy) error) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, policy := range policies {
		switch decision := eval(policy); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

// EvalQuery evaluates a query against a query policy.
func (policies QueryPolicy) EvalQuery(ctx context.Context, q tabula.Query) error {
	for _, policy := range policies {
		switch decision := policy.EvalQuery(ctx, q); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

// EvalMutation evaluates a mutation against a mutation policy.
func (policies MutationPolicy) EvalMutation(ctx context.Context, m tabula.Mutation) error {
	for _, policy := range policies {
		switch decision := policy.EvalMutation(ctx, m); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

func final(decision error) error {
	if decision == nil || errors.Is(decision, Allow) || errors.Is(decision, Skip) {
		return nil
	}
	return decision
}

type decisionCtxKey struct{}

// DecisionContext creates a new context from the given parent context with
// a policy decision attached to it. The decision overrides every policy,
// for instance to let a maintenance task bypass the rules:
//
//	ctx = privacy.DecisionContext(ctx, privacy.Allow)
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the policy decision from the context.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}

type fixedDecision struct {
	decision error
}

func (f fixedDecision) EvalQuery(context.Context, tabula.Query) error {
	return f.decision
}

func (f fixedDecision) EvalMutation(context.Context, tabula.Mutation) error {
	return f.decision
}

type contextDecision struct {
	eval func(context.Context) error
}

func (c contextDecision) EvalQuery(ctx context.Context, _ tabula.Query) error {
	return c.eval(ctx)
}

func (c contextDecision) EvalMutation(ctx context.Context, _ tabula.Mutation) error {
	return c.eval(ctx)
}

// Filter narrows list queries with SQL conditions.
type Filter = tabula.Filter

// Quote quotes column with the dialect of the filtered query. Filters
// that do not know their dialect get a double quoted identifier.
func Quote(f Filter, column string) string {
	if q, ok := f.(interface{ Qn(string) string }); ok {
		return q.Qn(column)
	}
	return `"` + column + `"`
}

// Literal quotes s as a string literal of the dialect of the filtered query.
func Literal(f Filter, s string) string {
	if q, ok := f.(interface{ Esc(string) string }); ok {
		return q.Esc(s)
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Filterable is implemented by queries and mutations that support filtering.
type Filterable interface {
	Filter() Filter
}

// FilterFunc is an adapter that allows using ordinary functions as
// rules narrowing the rows a query returns:
//
//	privacy.FilterFunc(func(ctx context.Context, f privacy.Filter) error {
//	    f.Where(`"archived" = 0`)
//	    return privacy.Skip
//	})
type FilterFunc func(context.Context, Filter) error

// EvalQuery calls f(ctx, q.Filter()).
func (f FilterFunc) EvalQuery(ctx context.Context, q tabula.Query) error {
	return f(ctx, q.Filter())
}

// EvalMutation calls f(ctx, m.Filter()) if the mutation implements Filterable.
func (f FilterFunc) EvalMutation(ctx context.Context, m tabula.Mutation) error {
	fr, ok := m.(Filterable)
	if !ok {
		return Denyf("privacy: mutation of %s does not support filtering", m.Entity())
	}
	return f(ctx, fr.Filter())
}

var (
	_ QueryMutationRule = FilterFunc(nil)
	_ tabula.Policy     = Policy{}
	_ tabula.Policy     = Policies(nil)
)
