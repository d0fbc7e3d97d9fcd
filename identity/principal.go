// Package identity turns bearer tokens into the caller's principal and answers
// organization-scoped authorization questions about it.
package identity

import "context"

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// ParseRole maps a claim value to a Role. Unknown values become RoleMember.
func ParseRole(value string) Role {
	switch Role(value) {
	case RoleOwner, RoleAdmin:
		return Role(value)
	default:
		return RoleMember
	}
}

// Principal is the authenticated caller.
type Principal struct {
	UserID         string `json:"userId"`
	OrganizationID string `json:"organizationId"`
	Email          string `json:"email,omitempty"`
	Role           Role   `json:"role"`
}

func (p *Principal) IsAdmin() bool {
	return p != nil && (p.Role == RoleOwner || p.Role == RoleAdmin)
}

// CanAccess reports whether the principal belongs to organizationID.
func (p *Principal) CanAccess(organizationID string) bool {
	return p != nil && organizationID != "" && p.OrganizationID == organizationID
}

// CanManage reports whether the principal may connect or disconnect integrations for
// organizationID.
func (p *Principal) CanManage(organizationID string) bool {
	return p.CanAccess(organizationID) && p.IsAdmin()
}

type contextKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(*Principal)
	return p, ok && p != nil
}
