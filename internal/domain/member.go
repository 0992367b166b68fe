package domain

// MembershipStatus is the only membership fact the core consumes.
type MembershipStatus string

const (
	MembershipActive   MembershipStatus = "active"
	MembershipInactive MembershipStatus = "inactive"
)

// RoleAdmin grants the administrative API.
const RoleAdmin = "admin"

// CallerAttributes is what the identity provider asserts about a caller.
// MemberRef is opaque and never leaves the eligibility authority.
type CallerAttributes struct {
	MemberRef        string
	MembershipStatus MembershipStatus
	Roles            []string
}

// HasRole reports whether the caller carries role.
func (c CallerAttributes) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the caller may use administrative operations.
func (c CallerAttributes) IsAdmin() bool {
	return c.HasRole(RoleAdmin)
}
