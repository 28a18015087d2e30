package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/campuskit/enrollment-engine/internal/models"
)

// ProfileRepository reads the student profile slice the engine needs.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository constructs the repository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// FindByID returns a student profile by its ID.
func (r *ProfileRepository) FindByID(ctx context.Context, id string) (*models.StudentProfile, error) {
	const query = `SELECT id, full_name, active, max_credits, created_at, updated_at FROM student_profiles WHERE id = $1`
	var profile models.StudentProfile
	if err := r.db.GetContext(ctx, &profile, query, id); err != nil {
		return nil, err
	}
	return &profile, nil
}

// SetMaxCredits updates the per-student credit cap override. A nil value
// clears the override, falling back to the configured default.
func (r *ProfileRepository) SetMaxCredits(ctx context.Context, id string, maxCredits *int) error {
	const query = `UPDATE student_profiles SET max_credits = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, maxCredits, time.Now().UTC()); err != nil {
		return fmt.Errorf("set max credits: %w", err)
	}
	return nil
}
