package auth

// Seeded role names. The User role is assigned to every registration when
// present; its absence is tolerated.
const (
	RoleAdmin = "Admin"
	RoleUser  = "User"
)

// Built-in permission names.
const (
	PermUsersRead   = "users.read"
	PermUsersCreate = "users.create"
	PermUsersUpdate = "users.update"
	PermUsersDelete = "users.delete"
	PermRolesRead   = "roles.read"
	PermRolesManage = "roles.manage"
)

// BuiltinPermissions is the seeded (resource, action) catalog.
var BuiltinPermissions = []Permission{
	{Name: PermUsersRead, Resource: "users", Action: "read", Description: "Read users"},
	{Name: PermUsersCreate, Resource: "users", Action: "create", Description: "Create users"},
	{Name: PermUsersUpdate, Resource: "users", Action: "update", Description: "Update users"},
	{Name: PermUsersDelete, Resource: "users", Action: "delete", Description: "Delete users"},
	{Name: PermRolesRead, Resource: "roles", Action: "read", Description: "Read roles"},
	{Name: PermRolesManage, Resource: "roles", Action: "manage", Description: "Manage roles and grants"},
}
