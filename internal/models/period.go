package models

import "time"

// PeriodStatus represents the lifecycle of an academic period.
type PeriodStatus string

// Period lifecycle, forward-only.
const (
	PeriodStatusPlanning       PeriodStatus = "PLANNING"
	PeriodStatusEnrollmentOpen PeriodStatus = "ENROLLMENT_OPEN"
	PeriodStatusInProgress     PeriodStatus = "IN_PROGRESS"
	PeriodStatusClosed         PeriodStatus = "CLOSED"
)

// AcceptsEnrollments reports whether new enrollments may be created.
func (s PeriodStatus) AcceptsEnrollments() bool {
	return s == PeriodStatusEnrollmentOpen || s == PeriodStatusInProgress
}

// Period models an academic period gating enrollment actions.
type Period struct {
	ID        string       `db:"id" json:"id"`
	Name      string       `db:"name" json:"name"`
	StartDate time.Time    `db:"start_date" json:"start_date"`
	EndDate   time.Time    `db:"end_date" json:"end_date"`
	Status    PeriodStatus `db:"status" json:"status"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// PeriodFilter defines filters supported by list operations.
type PeriodFilter struct {
	Status    PeriodStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
