package models

import "time"

// CourseStatus represents the lifecycle of a course in the catalog.
type CourseStatus string

// Possible course statuses.
const (
	CourseStatusActive   CourseStatus = "ACTIVE"
	CourseStatusInactive CourseStatus = "INACTIVE"
	CourseStatusInReview CourseStatus = "IN_REVIEW"
)

// Course models a catalog course with its credit weight.
type Course struct {
	ID           string       `db:"id" json:"id"`
	Code         string       `db:"code" json:"code"`
	Name         string       `db:"name" json:"name"`
	Credits      int          `db:"credits" json:"credits"`
	Status       CourseStatus `db:"status" json:"status"`
	InstructorID *string      `db:"instructor_id" json:"instructor_id,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// CourseFilter captures supported filters for listing courses.
type CourseFilter struct {
	Status    CourseStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// PrerequisiteKind distinguishes blocking from advisory prerequisites.
type PrerequisiteKind string

const (
	// PrerequisiteMandatory blocks enrollment until the required course is approved.
	PrerequisiteMandatory PrerequisiteKind = "MANDATORY"
	// PrerequisiteRecommended is advisory only and never blocks.
	PrerequisiteRecommended PrerequisiteKind = "RECOMMENDED"
)

// Prerequisite is a directed edge: CourseID requires RequiredCourseID.
type Prerequisite struct {
	ID               string           `db:"id" json:"id"`
	CourseID         string           `db:"course_id" json:"course_id"`
	RequiredCourseID string           `db:"required_course_id" json:"required_course_id"`
	Kind             PrerequisiteKind `db:"kind" json:"kind"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
}

// PrerequisiteDetail enriches an edge with required-course info.
type PrerequisiteDetail struct {
	Prerequisite
	RequiredCourseCode string `db:"required_course_code" json:"required_course_code"`
	RequiredCourseName string `db:"required_course_name" json:"required_course_name"`
}
