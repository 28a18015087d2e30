package models

import "time"

// GradeKind tags a grade entry with its assessment type.
type GradeKind string

const (
	GradeKindMidterm GradeKind = "MIDTERM"
	GradeKindFinal   GradeKind = "FINAL"
	GradeKindQuiz    GradeKind = "QUIZ"
	GradeKindProject GradeKind = "PROJECT"
	GradeKindOther   GradeKind = "OTHER"
)

// GradeEntry is a single grade record owned by exactly one enrollment.
// Weight, when present, is a percentage in [1, 100]; the sum of weights across
// an enrollment's entries must not exceed 100.
type GradeEntry struct {
	ID           string    `db:"id" json:"id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	Kind         GradeKind `db:"kind" json:"kind"`
	Score        float64   `db:"score" json:"score"`
	Weight       *int      `db:"weight" json:"weight,omitempty"`
	Comment      *string   `db:"comment" json:"comment,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
