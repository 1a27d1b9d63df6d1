// Package privacy provides the authorization layer of the model client:
// rules evaluated before list queries and mutations, and the Permission
// and RowPermission entities storing grants on single rows.
//
// # Rules and policies
//
// A rule returns Allow or Deny to end the evaluation, or Skip to let the
// next rule decide. A Policy holds the rules of one entity type and is
// installed on the client:
//
//	client := model.NewClient(reg, conn,
//	    model.WithPolicy("Document", privacy.Policy{
//	        Query: privacy.QueryPolicy{
//	            privacy.HasRole("admin"),
//	            privacy.OwnerFilter("author"),
//	        },
//	        Mutation: privacy.MutationPolicy{
//	            privacy.DenyIfNoViewer(),
//	            privacy.IsOwner("author"),
//	            privacy.HasRowPermission(perms, "Docs.edit"),
//	            privacy.AlwaysDenyRule(),
//	        },
//	    }),
//	)
//
// When every rule skips, the operation is allowed. Query rules may narrow
// the query through its Filter instead of deciding.
//
// # Row permissions
//
// Register adds the Permission and RowPermission entity types to a
// registry. Permissions are referenced as "Application.code_name":
//
//	perms := privacy.NewRowPermissions(client)
//	err := perms.Add(ctx, privacy.RefOf(user), privacy.RefOf(doc), "Docs.edit", false)
//	ok, err := perms.Has(ctx, privacy.RefOf(user), privacy.RefOf(doc), "Docs.edit")
//
// Grants are removed with their owner or target when the client is
// created with model.OnDelete(privacy.DeleteRowPermissions).
package privacy
