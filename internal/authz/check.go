package authz

import "context"

// Principal is any actor carrying a derived capability set.
type Principal interface {
	PrincipalID() string
	Capabilities() CapabilitySet
}

// HasPermission reports whether p holds c.
func HasPermission(p Principal, c Capability) bool {
	if p == nil {
		return false
	}
	return p.Capabilities().Has(c)
}

// HasAnyPermission reports whether p holds at least one of caps. No caps means false.
func HasAnyPermission(p Principal, caps ...Capability) bool {
	if p == nil {
		return false
	}
	granted := p.Capabilities()
	for _, c := range caps {
		if granted.Has(c) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether p holds every one of caps. No caps means true.
func HasAllPermissions(p Principal, caps ...Capability) bool {
	if len(caps) == 0 {
		return true
	}
	if p == nil {
		return false
	}
	granted := p.Capabilities()
	for _, c := range caps {
		if !granted.Has(c) {
			return false
		}
	}
	return true
}

// Authorizer derives permissions from roles using an injected table.
type Authorizer struct {
	table *Table
}

// NewAuthorizer wraps table; a nil table falls back to DefaultTable.
func NewAuthorizer(table *Table) *Authorizer {
	if table == nil {
		table = DefaultTable()
	}
	return &Authorizer{table: table}
}

// PermissionsFor returns the capabilities granted to role.
func (a *Authorizer) PermissionsFor(role Role) CapabilitySet {
	return a.table.PermissionsFor(role)
}

// Recompute returns role together with its freshly derived capability set. Callers store both
// wholesale, replacing any previous permissions.
func (a *Authorizer) Recompute(role Role) (Role, CapabilitySet) {
	return role, a.table.PermissionsFor(role)
}

type principalContextKey struct{}

// ContextWithPrincipal stores the authenticated principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok && p != nil
}
