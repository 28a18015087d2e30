package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/enrollment-engine/internal/models"
)

func TestGradeRepositoryCreateGeneratesDefaults(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO grade_entries")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	weight := 30
	entry := &models.GradeEntry{EnrollmentID: "e-1", Kind: models.GradeKindMidterm, Score: 4.0, Weight: &weight}
	require.NoError(t, repo.Create(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryListByEnrollment(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "enrollment_id", "kind", "score", "weight", "comment", "created_at", "updated_at"}).
		AddRow("g-1", "e-1", "MIDTERM", 4.0, 30, nil, now, now).
		AddRow("g-2", "e-1", "FINAL", 4.5, 40, nil, now.Add(time.Hour), now.Add(time.Hour))
	mock.ExpectQuery("SELECT id, enrollment_id, kind, score, weight, comment").
		WithArgs("e-1").
		WillReturnRows(rows)

	entries, err := repo.ListByEnrollment(context.Background(), "e-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.GradeKindMidterm, entries[0].Kind)
	require.NotNil(t, entries[1].Weight)
	assert.Equal(t, 40, *entries[1].Weight)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM grade_entries WHERE id = $1")).
		WithArgs("g-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "g-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepositorySetMaxCredits(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewProfileRepository(db)
	override := 30

	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_profiles SET max_credits = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("stu-1", &override, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetMaxCredits(context.Background(), "stu-1", &override))
	require.NoError(t, mock.ExpectationsWereMet())
}
