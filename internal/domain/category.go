package domain

import "time"

// Category groups tickets and carries the SLA policy plus the default
// assignee used by the auto-assignment sweep.
type Category struct {
	ID                string
	Name              string
	PolicyID          *string
	DefaultAssigneeID *string
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
