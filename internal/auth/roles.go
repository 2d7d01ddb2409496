package auth

import (
	"fmt"
	"sort"
	"strings"

	"github.com/unityvault/ticketflow/internal/domain"
)

var permissionNames = map[string]domain.Permission{
	"view_channel":     domain.PermissionViewChannel,
	"send_messages":    domain.PermissionSendMessages,
	"manage_messages":  domain.PermissionManageMessages,
	"manage_channels":  domain.PermissionManageChannels,
	"manage_roles":     domain.PermissionManageRoles,
	"moderate_members": domain.PermissionModerateMembers,
}

// ParsePermissions turns permission names into a bitset. "admin" expands to the
// administrative bundle.
func ParsePermissions(names []string) (domain.Permission, error) {
	var perms domain.Permission
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if name == "admin" {
			perms |= domain.AdministrativeBundle
			continue
		}
		p, ok := permissionNames[name]
		if !ok {
			return 0, fmt.Errorf("unknown permission %q", raw)
		}
		perms |= p
	}
	return perms, nil
}

// PermissionNames lists the names set in perms, sorted.
func PermissionNames(perms domain.Permission) []string {
	out := make([]string, 0, len(permissionNames))
	for name, p := range permissionNames {
		if perms.Has(p) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
