package enums

import "fmt"

// StaffRole describes the company-side roles carried in access tokens.
type StaffRole string

const (
	StaffRoleAdmin     StaffRole = "admin"
	StaffRoleEstimator StaffRole = "estimator"
)

var validStaffRoles = []StaffRole{
	StaffRoleAdmin,
	StaffRoleEstimator,
}

// IsValid reports whether the value matches the canonical staff role enum.
func (s StaffRole) IsValid() bool {
	for _, candidate := range validStaffRoles {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStaffRole converts the raw string to StaffRole.
func ParseStaffRole(value string) (StaffRole, error) {
	for _, candidate := range validStaffRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid staff role %q", value)
}
