package privacy

import (
	"context"
	"fmt"
	"slices"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/model"
)

// Viewer is the principal an operation runs for.
type Viewer interface {
	// Ref returns the entity row of the viewer, the owner of its row
	// permissions.
	Ref() Ref
	// Roles returns the roles of the viewer.
	Roles() []string
}

type viewerCtxKey struct{}

// WithViewer returns a new context with the viewer attached.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext returns the viewer of the context, or nil.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a Viewer with fixed values.
type SimpleViewer struct {
	Owner     Ref
	RoleNames []string
}

// Ref implements Viewer.
func (v *SimpleViewer) Ref() Ref { return v.Owner }

// Roles implements Viewer.
func (v *SimpleViewer) Roles() []string { return v.RoleNames }

// EntityViewer returns a viewer backed by a saved entity, for instance a
// user row.
func EntityViewer(e *model.Entity, roles ...string) Viewer {
	return &SimpleViewer{Owner: RefOf(e), RoleNames: roles}
}

// DenyIfNoViewer returns a rule denying operations without a viewer.
//
//	privacy.Policy{
//	    Mutation: privacy.MutationPolicy{
//	        privacy.DenyIfNoViewer(),
//	        privacy.HasRole("admin"),
//	        privacy.AlwaysDenyRule(),
//	    },
//	}
func DenyIfNoViewer() QueryMutationRule {
	return ContextQueryMutationRule(func(ctx context.Context) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("privacy: viewer required")
		}
		return Skip
	})
}

// HasRole returns a rule allowing viewers with the given role.
func HasRole(role string) QueryMutationRule {
	return HasAnyRole(role)
}

// HasAnyRole returns a rule allowing viewers with one of the given roles.
func HasAnyRole(roles ...string) QueryMutationRule {
	return ContextQueryMutationRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		for _, role := range roles {
			if slices.Contains(viewer.Roles(), role) {
				return Allow
			}
		}
		return Skip
	})
}

// IsOwner returns a mutation rule allowing the viewer when the given
// column of the mutated entity holds the id of the viewer.
func IsOwner(column string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m tabula.Mutation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		value, ok := m.Field(column)
		if !ok || value == nil {
			return Skip
		}
		if fmt.Sprint(value) == fmt.Sprint(viewer.Ref().ID) {
			return Allow
		}
		return Skip
	})
}

// OwnerFilter returns a query rule restricting queries to the rows whose
// column holds the id of the viewer. Queries without a viewer are denied.
func OwnerFilter(column string) QueryRule {
	return FilterFunc(func(ctx context.Context, f Filter) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Denyf("privacy: viewer required for owner filtered query")
		}
		f.Where(fmt.Sprintf("%s=%d", Quote(f, column), viewer.Ref().ID))
		return Skip
	})
}

// HasRowPermission returns a mutation rule allowing the viewer when it
// holds perm, given as "Application.code_name", on the mutated row.
// Creates have no row yet and are skipped.
func HasRowPermission(perms *RowPermissions, perm string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m tabula.Mutation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil || m.ID() == 0 {
			return Skip
		}
		ok, err := perms.Has(ctx, viewer.Ref(), Ref{Class: m.Entity(), ID: m.ID()}, perm)
		switch {
		case err != nil:
			return err
		case ok:
			return Allow
		}
		return Skip
	})
}
