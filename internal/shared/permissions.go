package shared

// Permissions guarding this service's own endpoints.
const (
	PermPermissionsView  = "permissions.view"
	PermPermissionsCheck = "permissions.check"

	PermGrantsView = "grants.view"
	PermGrantsEdit = "grants.edit"

	PermUsersView = "users.view"
	PermRolesView = "roles.view"
)

// CoreScopes lists every permission the service itself consumes.
func CoreScopes() []string {
	return []string{
		PermPermissionsView,
		PermPermissionsCheck,
		PermGrantsView,
		PermGrantsEdit,
		PermUsersView,
		PermRolesView,
	}
}
