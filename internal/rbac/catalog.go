package rbac

// Catalog declares every permission the application knows about. The
// bootstrap step syncs these into the catalog store idempotently; codes are
// stable and never repurposed.
func Catalog() []Definition {
	adminUp := []Role{RoleSuperadmin, RoleAdmin}
	modUp := []Role{RoleSuperadmin, RoleAdmin, RoleModerator}
	everyone := []Role{RoleSuperadmin, RoleAdmin, RoleModerator, RoleUser}

	return []Definition{
		{Code: "users.accounts.view", Description: "List user accounts", DefaultRoles: adminUp},
		{Code: "users.accounts.edit", Description: "Create and update user accounts", DefaultRoles: adminUp},
		{Code: "users.permissions.view", Description: "Inspect effective permissions", DefaultRoles: adminUp},
		{Code: "users.permissions.edit", Description: "Grant and revoke permission overrides", DefaultRoles: []Role{RoleSuperadmin}},

		{Code: "finance.transactions.view", Description: "View finance transactions", DefaultRoles: adminUp},
		{Code: "finance.transactions.edit", Description: "Record finance transactions", DefaultRoles: adminUp},
		{Code: "finance.reports.view", Description: "View finance summaries", DefaultRoles: modUp},

		{Code: "quotations.documents.view", Description: "View quotations", DefaultRoles: modUp},
		{Code: "quotations.documents.edit", Description: "Create and update quotations", DefaultRoles: adminUp},
		{Code: "quotations.sharelinks.manage", Description: "Issue and revoke client share links", DefaultRoles: adminUp},

		{Code: "cv.documents.view", Description: "View CV documents", DefaultRoles: everyone},
		{Code: "cv.documents.edit", Description: "Edit CV documents", DefaultRoles: modUp},

		{Code: "audit.decisions.view", Description: "Read the auth decision log", DefaultRoles: []Role{RoleSuperadmin}},
	}
}

// KnownCodes returns the catalog codes as a set.
func KnownCodes() map[string]struct{} {
	defs := Catalog()
	codes := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		codes[d.Code] = struct{}{}
	}
	return codes
}
