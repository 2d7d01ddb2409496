package domain

import (
	"sort"
	"strings"
	"time"
)

// CommunityConfig holds per-community ticket settings.
type CommunityConfig struct {
	ID                string
	LogChannel        *string
	TicketCategory    *string
	SupportRoles      []string
	OnboardingChannel *string
	TicketCounter     uint64
	UpdatedAt         time.Time
}

// HasSupportRole reports whether any of roleIDs is a configured support role.
func (c *CommunityConfig) HasSupportRole(roleIDs []string) bool {
	if c == nil || len(c.SupportRoles) == 0 {
		return false
	}
	for _, configured := range c.SupportRoles {
		for _, held := range roleIDs {
			if configured == held {
				return true
			}
		}
	}
	return false
}

// ConfigPatch is a partial update. Nil fields are left untouched.
type ConfigPatch struct {
	LogChannel        *string
	TicketCategory    *string
	SupportRoles      *[]string
	OnboardingChannel *string
}

// Empty reports whether the patch changes nothing.
func (p ConfigPatch) Empty() bool {
	return p.LogChannel == nil && p.TicketCategory == nil && p.SupportRoles == nil && p.OnboardingChannel == nil
}

// JoinRoles encodes a role set as the stored comma-delimited list.
func JoinRoles(roles []string) string {
	return strings.Join(NormalizeRoles(roles), ",")
}

// SplitRoles decodes the stored comma-delimited role list.
func SplitRoles(raw string) []string {
	return NormalizeRoles(strings.Split(raw, ","))
}

// NormalizeRoles trims, de-duplicates and sorts role ids.
func NormalizeRoles(roles []string) []string {
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
