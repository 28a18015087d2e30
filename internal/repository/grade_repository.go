package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campuskit/enrollment-engine/internal/models"
)

// GradeRepository handles persistence of grade entries.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// Create persists a new grade entry.
func (r *GradeRepository) Create(ctx context.Context, entry *models.GradeEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	const query = `INSERT INTO grade_entries (id, enrollment_id, kind, score, weight, comment, created_at, updated_at)
        VALUES (:id, :enrollment_id, :kind, :score, :weight, :comment, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create grade entry: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of a grade entry.
func (r *GradeRepository) Update(ctx context.Context, entry *models.GradeEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	const query = `UPDATE grade_entries SET kind = :kind, score = :score, weight = :weight, comment = :comment, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("update grade entry: %w", err)
	}
	return nil
}

// Delete removes a grade entry.
func (r *GradeRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM grade_entries WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete grade entry: %w", err)
	}
	return nil
}

// FindByID returns a grade entry by its ID.
func (r *GradeRepository) FindByID(ctx context.Context, id string) (*models.GradeEntry, error) {
	const query = `SELECT id, enrollment_id, kind, score, weight, comment, created_at, updated_at FROM grade_entries WHERE id = $1`
	var entry models.GradeEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListByEnrollment returns all grade entries owned by an enrollment.
func (r *GradeRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.GradeEntry, error) {
	const query = `SELECT id, enrollment_id, kind, score, weight, comment, created_at, updated_at FROM grade_entries WHERE enrollment_id = $1 ORDER BY created_at`
	var entries []models.GradeEntry
	if err := r.db.SelectContext(ctx, &entries, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list grade entries: %w", err)
	}
	return entries, nil
}
