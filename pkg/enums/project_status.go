package enums

import "fmt"

// ProjectStatus describes the allowed values for the `status` column in projects.
type ProjectStatus string

const (
	ProjectStatusPendingPayment ProjectStatus = "pending_payment"
	ProjectStatusActive         ProjectStatus = "active"
	ProjectStatusCompleted      ProjectStatus = "completed"
)

var validProjectStatuses = []ProjectStatus{
	ProjectStatusPendingPayment,
	ProjectStatusActive,
	ProjectStatusCompleted,
}

// IsValid reports whether the value matches the canonical project status enum.
func (p ProjectStatus) IsValid() bool {
	for _, candidate := range validProjectStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProjectStatus converts the raw string to ProjectStatus.
func ParseProjectStatus(value string) (ProjectStatus, error) {
	for _, candidate := range validProjectStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid project status %q", value)
}
