package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campuskit/enrollment-engine/internal/models"
	appErrors "github.com/campuskit/enrollment-engine/pkg/errors"
)

type mockGradeStore struct {
	entries []models.GradeEntry
	nextID  int
	now     time.Time
}

func (m *mockGradeStore) Create(ctx context.Context, entry *models.GradeEntry) error {
	m.nextID++
	m.now = m.now.Add(time.Second)
	entry.ID = fmt.Sprintf("g-%d", m.nextID)
	entry.CreatedAt = m.now
	entry.UpdatedAt = m.now
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockGradeStore) Update(ctx context.Context, entry *models.GradeEntry) error {
	for i := range m.entries {
		if m.entries[i].ID == entry.ID {
			m.entries[i] = *entry
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockGradeStore) Delete(ctx context.Context, id string) error {
	for i := range m.entries {
		if m.entries[i].ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockGradeStore) FindByID(ctx context.Context, id string) (*models.GradeEntry, error) {
	for i := range m.entries {
		if m.entries[i].ID == id {
			copied := m.entries[i]
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeStore) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.GradeEntry, error) {
	var out []models.GradeEntry
	for _, e := range m.entries {
		if e.EnrollmentID == enrollmentID {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockEnrollmentStore struct {
	enrollments map[string]*models.Enrollment
}

func (m *mockEnrollmentStore) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *enrollment
	return &copied, nil
}

func (m *mockEnrollmentStore) UpdateFinal(ctx context.Context, id string, finalGrade *float64, status models.EnrollmentStatus) error {
	enrollment, ok := m.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	enrollment.FinalGrade = finalGrade
	enrollment.Status = status
	return nil
}

type captureNotifier struct {
	enrolled      int
	withdrawn     int
	gradeUpdated  int
	statusChanges []models.EnrollmentStatus
}

func (n *captureNotifier) OnEnrolled(context.Context, *models.Enrollment) error {
	n.enrolled++
	return nil
}

func (n *captureNotifier) OnGradeUpdated(context.Context, *models.Enrollment, *models.GradeEntry) error {
	n.gradeUpdated++
	return nil
}

func (n *captureNotifier) OnStatusChanged(_ context.Context, _ *models.Enrollment, _, newStatus models.EnrollmentStatus) error {
	n.statusChanges = append(n.statusChanges, newStatus)
	return nil
}

func (n *captureNotifier) OnWithdrawn(context.Context, *models.Enrollment) error {
	n.withdrawn++
	return nil
}

type failingNotifier struct{}

func (failingNotifier) OnEnrolled(context.Context, *models.Enrollment) error {
	return errors.New("sink unavailable")
}

func (failingNotifier) OnGradeUpdated(context.Context, *models.Enrollment, *models.GradeEntry) error {
	return errors.New("sink unavailable")
}

func (failingNotifier) OnStatusChanged(context.Context, *models.Enrollment, models.EnrollmentStatus, models.EnrollmentStatus) error {
	return errors.New("sink unavailable")
}

func (failingNotifier) OnWithdrawn(context.Context, *models.Enrollment) error {
	return errors.New("sink unavailable")
}

func newGradeFixture(status models.EnrollmentStatus, notifier Notifier) (*GradeService, *mockGradeStore, *mockEnrollmentStore) {
	grades := &mockGradeStore{}
	enrollments := &mockEnrollmentStore{enrollments: map[string]*models.Enrollment{
		"e-1": {ID: "e-1", StudentID: "stu-1", CourseID: "c-1", PeriodID: "per-1", Status: status},
	}}
	svc := NewGradeService(grades, enrollments, notifier, nil, nil, zap.NewNop(), 3.0, 5.0)
	return svc, grades, enrollments
}

func TestRecordGradeWeightedAverage(t *testing.T) {
	svc, _, enrollments := newGradeFixture(models.EnrollmentStatusActive, nil)
	ctx := context.Background()

	for _, req := range []RecordGradeRequest{
		{EnrollmentID: "e-1", Kind: models.GradeKindMidterm, Score: 4.0, Weight: intPtr(30)},
		{EnrollmentID: "e-1", Kind: models.GradeKindQuiz, Score: 3.0, Weight: intPtr(30)},
		{EnrollmentID: "e-1", Kind: models.GradeKindFinal, Score: 4.5, Weight: intPtr(40)},
	} {
		_, err := svc.RecordGrade(ctx, req)
		require.NoError(t, err)
	}

	enrollment := enrollments.enrollments["e-1"]
	require.NotNil(t, enrollment.FinalGrade)
	assert.InDelta(t, 3.90, *enrollment.FinalGrade, 1e-9)
	assert.Equal(t, models.EnrollmentStatusApproved, enrollment.Status)
}

func TestRecordGradeUnweightedMean(t *testing.T) {
	svc, _, enrollments := newGradeFixture(models.EnrollmentStatusActive, nil)
	ctx := context.Background()

	_, err := svc.RecordGrade(ctx, RecordGradeRequest{EnrollmentID: "e-1", Kind: models.GradeKindMidterm, Score: 3.5})
	require.NoError(t, err)
	_, err = svc.RecordGrade(ctx, RecordGradeRequest{EnrollmentID: "e-1", Kind: models.GradeKindFinal, Score: 2.0})
	require.NoError(t, err)

	enrollment := enrollments.enrollments["e-1"]
	require.NotNil(t, enrollment.FinalGrade)
	assert.InDelta(t, 2.75, *enrollment.FinalGrade, 1e-9)
	assert.Equal(t, models.EnrollmentStatusFailed, enrollment.Status)
}

func TestRecordGradeMixedWeightsIgnoresUnweighted(t *testing.T) {
	svc, _, enrollments := newGradeFixture(models.EnrollmentStatusActive, nil)
	ctx := context.Background()

	_, err := svc.RecordGrade(ctx, RecordGradeRequest{EnrollmentID: "e-1", Kind: models.GradeKindQuiz, Score: 1.0})
	require.NoError(t, err)
	_, err = svc.RecordGrade(ctx, RecordGradeRequest{EnrollmentID: "e-1", Kind: models.GradeKindFinal, Score: 4.0, Weight: intPtr(50)})
	require.NoError(t, err)

	enrollment := enrollments.enrollments["e-1"]
	require.NotNil(t, enrollment.FinalGrade)
	assert.InDelta(t, 4.0, *enrollment.FinalGrade, 1e-9)
	assert.Equal(t, models.EnrollmentStatusApproved, enrollment.Status)
}

func TestRecordThenRemoveRestoresEnrollment(t *testing.T) {
	notifier := &captureNotifier{}
	svc, _, enrollments := newGradeFixture(models.EnrollmentStatusActive, notifier)
	ctx := context.Background()

	entry, err := svc.RecordGrade(ctx, RecordGradeRequest{EnrollmentID: "e-1", Kind: models.GradeKindFinal, Score: 4.0})
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusApproved, enrollments.enrollments["e-1"].Status)

	require.NoError(t, svc.RemoveGrade(ctx, "e-1", entry.ID))

	enrollment := enrollments.enrollments["e-1"]
	assert.Nil(t, enrollment.FinalGrade)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	assert.Equal(t, []models.EnrollmentStatus{
		models.EnrollmentStatusApproved,
		models.EnrollmentStatusActive,
	}, notifier.statusChanges)
}

func TestRecordGradeOnWithdrawnKeepsStatus(t *testing.T) {
	notifier := &captureNotifier{}
	svc, _, enrollments := newGradeFixture(models.EnrollmentStatusWithdrawn, notifier)

	_, err := svc.RecordGrade(context.Background(), RecordGradeRequest{EnrollmentID: "e-1", Kind: models.GradeKindFinal, Score: 4.5})
	require.NoError(t, err)

	enrollment := enrollments.enrollments["e-1"]
	require.NotNil(t, enrollment.FinalGrade)
	assert.InDelta(t, 4.5, *enrollment.FinalGrade, 1e-9)
	assert.Equal(t, models.EnrollmentStatusWithdrawn, enrollment.Status)
	assert.Equal(t, 1, notifier.gradeUpdated)
	assert.Empty(t, notifier.statusChanges)
}

func TestRecordGradeWeightOverflow(t *testing.T) {
	svc, grades, _ := newGradeFixture(models.EnrollmentStatusActive, nil)
	ctx := context.Background()

	_, err := svc.RecordGrade(ctx, RecordGradeRequest{EnrollmentID: "e-1", Kind: models.GradeKindMidterm, Score: 3.0, Weight: intPtr(60)})
	require.NoError(t, err)

	_, err = svc.RecordGrade(ctx, RecordGradeRequest{EnrollmentID: "e-1", Kind: models.GradeKindFinal, Score: 4.0, Weight: intPtr(50)})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrWeightOverflow.Code, appErr.Code)
	assert.Equal(t, 110, appErr.Details["total"])
	assert.Len(t, grades.entries, 1)
}

func TestUpdateGradeWeightBudgetExcludesReplacedEntry(t *testing.T) {
	svc, _, enrollments := newGradeFixture(models.EnrollmentStatusActive, nil)
	ctx := context.Background()

	entry, err := svc.RecordGrade(ctx, RecordGradeRequest{EnrollmentID: "e-1", Kind: models.GradeKindMidterm, Score: 2.0, Weight: intPtr(60)})
	require.NoError(t, err)

	updated, err := svc.UpdateGrade(ctx, entry.ID, UpdateGradeRequest{Kind: models.GradeKindMidterm, Score: 4.0, Weight: intPtr(90)})
	require.NoError(t, err)
	assert.Equal(t, 90, *updated.Weight)

	enrollment := enrollments.enrollments["e-1"]
	require.NotNil(t, enrollment.FinalGrade)
	assert.InDelta(t, 4.0, *enrollment.FinalGrade, 1e-9)
}

func TestRecordGradeScoreOutOfRange(t *testing.T) {
	svc, grades, _ := newGradeFixture(models.EnrollmentStatusActive, nil)

	_, err := svc.RecordGrade(context.Background(), RecordGradeRequest{EnrollmentID: "e-1", Kind: models.GradeKindQuiz, Score: 5.5})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, grades.entries)
}

func TestRecordGradeWeightOutOfRange(t *testing.T) {
	svc, _, _ := newGradeFixture(models.EnrollmentStatusActive, nil)

	_, err := svc.RecordGrade(context.Background(), RecordGradeRequest{EnrollmentID: "e-1", Kind: models.GradeKindQuiz, Score: 3.0, Weight: intPtr(0)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRemoveGradeWrongEnrollment(t *testing.T) {
	svc, _, _ := newGradeFixture(models.EnrollmentStatusActive, nil)
	ctx := context.Background()

	entry, err := svc.RecordGrade(ctx, RecordGradeRequest{EnrollmentID: "e-1", Kind: models.GradeKindQuiz, Score: 3.0})
	require.NoError(t, err)

	err = svc.RemoveGrade(ctx, "e-2", entry.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRecordGradeUnknownEnrollment(t *testing.T) {
	svc, _, _ := newGradeFixture(models.EnrollmentStatusActive, nil)

	_, err := svc.RecordGrade(context.Background(), RecordGradeRequest{EnrollmentID: "ghost", Kind: models.GradeKindQuiz, Score: 3.0})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRecordGradeNotifierFailureDoesNotRollBack(t *testing.T) {
	svc, _, enrollments := newGradeFixture(models.EnrollmentStatusActive, failingNotifier{})

	_, err := svc.RecordGrade(context.Background(), RecordGradeRequest{EnrollmentID: "e-1", Kind: models.GradeKindFinal, Score: 4.0})
	require.NoError(t, err)

	enrollment := enrollments.enrollments["e-1"]
	require.NotNil(t, enrollment.FinalGrade)
	assert.Equal(t, models.EnrollmentStatusApproved, enrollment.Status)
}
