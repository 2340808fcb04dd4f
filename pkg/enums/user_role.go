package enums

import "fmt"

// UserRole is the marketplace role tier attached to every account.
type UserRole string

const (
	UserRoleUntrusted UserRole = "untrusted"
	UserRoleTrusted   UserRole = "trusted"
	UserRoleAdmin     UserRole = "admin"
)

var validUserRoles = []UserRole{
	UserRoleUntrusted,
	UserRoleTrusted,
	UserRoleAdmin,
}

// IsValid checks whether the given role matches the canonical enum.
func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// CanSell reports whether the role may create listings.
func (r UserRole) CanSell() bool {
	return r == UserRoleTrusted || r == UserRoleAdmin
}

// ParseUserRole converts raw strings into UserRole.
func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
