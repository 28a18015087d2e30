package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusApproved  EnrollmentStatus = "APPROVED"
	EnrollmentStatusFailed    EnrollmentStatus = "FAILED"
	EnrollmentStatusWithdrawn EnrollmentStatus = "WITHDRAWN"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
)

// GradeDriven reports whether the aggregator may still revise the status as
// grade entries change. WITHDRAWN and CANCELLED are never revised.
func (s EnrollmentStatus) GradeDriven() bool {
	return s == EnrollmentStatusActive || s == EnrollmentStatusApproved || s == EnrollmentStatusFailed
}

// Enrollment captures a student's registration to a course within a period.
// Unique per (student, course, period).
type Enrollment struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	CourseID    string           `db:"course_id" json:"course_id"`
	PeriodID    string           `db:"period_id" json:"period_id"`
	Status      EnrollmentStatus `db:"status" json:"status"`
	FinalGrade  *float64         `db:"final_grade" json:"final_grade,omitempty"`
	EnrolledAt  time.Time        `db:"enrolled_at" json:"enrolled_at"`
	WithdrawnAt *time.Time       `db:"withdrawn_at" json:"withdrawn_at,omitempty"`
}

// EnrollmentDetail enriches Enrollment with course and period info.
type EnrollmentDetail struct {
	Enrollment
	CourseCode    string `db:"course_code" json:"course_code"`
	CourseName    string `db:"course_name" json:"course_name"`
	CourseCredits int    `db:"course_credits" json:"course_credits"`
	PeriodName    string `db:"period_name" json:"period_name"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	PeriodID  string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
