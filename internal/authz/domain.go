package authz

import (
	"sort"
	"strings"

	"github.com/facilityhub/backoffice/internal/shared"
)

// Role is a closed category assigned to a principal.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleTechnician Role = "technician"
	RoleStaff      Role = "staff"
	RoleSecurity   Role = "security"
	RoleViewer     Role = "viewer"
)

// Roles lists every role known to the system.
func Roles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleTechnician, RoleStaff, RoleSecurity, RoleViewer}
}

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	for _, known := range Roles() {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole converts a case-insensitive role name.
func ParseRole(name string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(name)))
	if !role.Valid() {
		return "", shared.Validationf("unknown role %q", name)
	}
	return role, nil
}

// Capability is a single grantable action.
type Capability string

const (
	CapViewAll         Capability = "view_all"
	CapEditAll         Capability = "edit_all"
	CapManageAlerts    Capability = "manage_alerts"
	CapViewSecurity    Capability = "view_security"
	CapAccessLogs      Capability = "access_logs"
	CapViewBasic       Capability = "view_basic"
	CapEditDepartment  Capability = "edit_department"
	CapViewDepartment  Capability = "view_department"
	CapEditUsers       Capability = "edit_users"
	CapManageInventory Capability = "manage_inventory"
	CapDeleteUsers     Capability = "delete_users"
)

// Capabilities lists every capability known to the system.
func Capabilities() []Capability {
	return []Capability{
		CapViewAll,
		CapEditAll,
		CapManageAlerts,
		CapViewSecurity,
		CapAccessLogs,
		CapViewBasic,
		CapEditDepartment,
		CapViewDepartment,
		CapEditUsers,
		CapManageInventory,
		CapDeleteUsers,
	}
}

// Valid reports whether c belongs to the closed capability set.
func (c Capability) Valid() bool {
	for _, known := range Capabilities() {
		if c == known {
			return true
		}
	}
	return false
}

// CapabilitySet is an unordered set of capabilities.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from caps.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Slice returns the members sorted by name.
func (s CapabilitySet) Slice() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the sorted member names.
func (s CapabilitySet) Strings() []string {
	caps := s.Slice()
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = string(c)
	}
	return out
}

// Equal reports set equality.
func (s CapabilitySet) Equal(other CapabilitySet) bool {
	if len(s) != len(other) {
		return false
	}
	for c := range s {
		if !other.Has(c) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (s CapabilitySet) Clone() CapabilitySet {
	out := make(CapabilitySet, len(s))
	for c := range s {
		out[c] = struct{}{}
	}
	return out
}

// ParseCapabilities converts stored names back into a set, skipping unknown names.
func ParseCapabilities(names []string) CapabilitySet {
	set := make(CapabilitySet, len(names))
	for _, n := range names {
		c := Capability(n)
		if c.Valid() {
			set[c] = struct{}{}
		}
	}
	return set
}

func (r Role) String() string { return string(r) }

func (c Capability) String() string { return string(c) }
