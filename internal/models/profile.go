package models

import "time"

// StudentProfile is the slice of the student record the engine reads: identity,
// activity flag and the optional per-student credit cap override.
type StudentProfile struct {
	ID         string    `db:"id" json:"id"`
	FullName   string    `db:"full_name" json:"full_name"`
	Active     bool      `db:"active" json:"active"`
	MaxCredits *int      `db:"max_credits" json:"max_credits,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
