package domain

// Permission is a bitset of platform permissions held by an actor in a community.
type Permission uint64

const (
	PermissionViewChannel Permission = 1 << iota
	PermissionSendMessages
	PermissionManageMessages
	PermissionManageChannels
	PermissionManageRoles
	PermissionModerateMembers
)

// AdministrativeBundle is the fixed permission set that grants the ticket capability
// regardless of configured support roles.
const AdministrativeBundle = PermissionManageChannels |
	PermissionManageRoles |
	PermissionModerateMembers |
	PermissionViewChannel |
	PermissionSendMessages |
	PermissionManageMessages

// Has reports whether every bit of want is set.
func (p Permission) Has(want Permission) bool {
	return p&want == want
}

// Actor is an already-authenticated caller as delivered by the command router.
type Actor struct {
	ID          string
	RoleIDs     []string
	Permissions Permission
}

// IsAdministrator reports whether the actor holds the administrative bundle.
func (a Actor) IsAdministrator() bool {
	return a.Permissions.Has(AdministrativeBundle)
}
