package authz

import (
	"fmt"
	"sync"
)

// Table is an immutable mapping from every role to its capability set.
type Table struct {
	grants map[Role]CapabilitySet
}

// NewTable validates grants and builds a Table. Every role in Roles() must be present with a
// non-empty set, and only known roles and capabilities are accepted.
func NewTable(grants map[Role][]Capability) (*Table, error) {
	t := &Table{grants: make(map[Role]CapabilitySet, len(grants))}
	for role, caps := range grants {
		if !role.Valid() {
			return nil, fmt.Errorf("authz: unknown role %q in table", role)
		}
		set := make(CapabilitySet, len(caps))
		for _, c := range caps {
			if !c.Valid() {
				return nil, fmt.Errorf("authz: role %q grants unknown capability %q", role, c)
			}
			set[c] = struct{}{}
		}
		t.grants[role] = set
	}
	for _, role := range Roles() {
		set, ok := t.grants[role]
		if !ok {
			return nil, fmt.Errorf("authz: role %q missing from table", role)
		}
		if len(set) == 0 {
			return nil, fmt.Errorf("authz: role %q has no capabilities", role)
		}
	}
	return t, nil
}

// PermissionsFor returns a copy of the capabilities granted to role. Roles outside the closed
// set yield an empty set.
func (t *Table) PermissionsFor(role Role) CapabilitySet {
	return t.grants[role].Clone()
}

// DefaultGrants is the built-in role table.
func DefaultGrants() map[Role][]Capability {
	return map[Role][]Capability{
		RoleAdmin: Capabilities(),
		RoleManager: {
			CapViewDepartment,
			CapEditDepartment,
			CapManageAlerts,
			CapViewBasic,
			CapEditUsers,
			CapAccessLogs,
		},
		RoleTechnician: {
			CapViewAll,
			CapManageInventory,
			CapManageAlerts,
			CapViewBasic,
		},
		RoleStaff: {
			CapViewBasic,
		},
		RoleSecurity: {
			CapViewSecurity,
			CapAccessLogs,
			CapManageAlerts,
			CapViewBasic,
		},
		RoleViewer: {
			CapViewBasic,
			CapViewDepartment,
		},
	}
}

var defaultTable = sync.OnceValue(func() *Table {
	t, err := NewTable(DefaultGrants())
	if err != nil {
		panic(err)
	}
	return t
})

// DefaultTable returns the process-wide table built from DefaultGrants.
func DefaultTable() *Table {
	return defaultTable()
}
