package service

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/enrollment-engine/internal/models"
	appErrors "github.com/campuskit/enrollment-engine/pkg/errors"
)

const maxTotalWeight = 100

type gradeRepository interface {
	Create(ctx context.Context, entry *models.GradeEntry) error
	Update(ctx context.Context, entry *models.GradeEntry) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*models.GradeEntry, error)
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.GradeEntry, error)
}

type enrollmentGradeStore interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	UpdateFinal(ctx context.Context, id string, finalGrade *float64, status models.EnrollmentStatus) error
}

// RecordGradeRequest describes a new grade entry.
type RecordGradeRequest struct {
	EnrollmentID string           `json:"enrollment_id" validate:"required"`
	Kind         models.GradeKind `json:"kind" validate:"required,oneof=MIDTERM FINAL QUIZ PROJECT OTHER"`
	Score        float64          `json:"score"`
	Weight       *int             `json:"weight,omitempty"`
	Comment      *string          `json:"comment,omitempty"`
}

// UpdateGradeRequest rewrites an existing grade entry.
type UpdateGradeRequest struct {
	Kind    models.GradeKind `json:"kind" validate:"required,oneof=MIDTERM FINAL QUIZ PROJECT OTHER"`
	Score   float64          `json:"score"`
	Weight  *int             `json:"weight,omitempty"`
	Comment *string          `json:"comment,omitempty"`
}

// GradeService maintains the derived state of an enrollment: every grade entry
// mutation recomputes the final grade and drives the approved/failed
// transition while the enrollment is still grade-driven.
type GradeService struct {
	grades       gradeRepository
	enrollments  enrollmentGradeStore
	notifier     Notifier
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
	passingGrade float64
	maxScore     float64
}

// NewGradeService constructs GradeService.
func NewGradeService(grades gradeRepository, enrollments enrollmentGradeStore, notifier Notifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, passingGrade, maxScore float64) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if passingGrade <= 0 {
		passingGrade = 3.0
	}
	if maxScore <= 0 {
		maxScore = 5.0
	}
	return &GradeService{
		grades:       grades,
		enrollments:  enrollments,
		notifier:     notifier,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
		passingGrade: passingGrade,
		maxScore:     maxScore,
	}
}

// List returns the grade entries owned by an enrollment.
func (s *GradeService) List(ctx context.Context, enrollmentID string) ([]models.GradeEntry, error) {
	entries, err := s.grades.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grade entries")
	}
	return entries, nil
}

// RecordGrade validates and persists a new entry, then recomputes the owning
// enrollment. Validation failures are synchronous and mutate nothing.
func (s *GradeService) RecordGrade(ctx context.Context, req RecordGradeRequest) (*models.GradeEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if err := s.checkScoreAndWeight(req.Score, req.Weight); err != nil {
		return nil, err
	}

	enrollment, err := s.loadEnrollment(ctx, req.EnrollmentID)
	if err != nil {
		return nil, err
	}

	entries, err := s.grades.ListByEnrollment(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grade entries")
	}
	if err := s.checkWeightBudget(entries, req.Weight, ""); err != nil {
		return nil, err
	}

	entry := &models.GradeEntry{
		EnrollmentID: enrollment.ID,
		Kind:         req.Kind,
		Score:        req.Score,
		Weight:       req.Weight,
		Comment:      req.Comment,
	}
	if err := s.grades.Create(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grade entry")
	}

	if err := s.recompute(ctx, enrollment, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// UpdateGrade validates and rewrites an entry, then recomputes. The weight
// budget excludes the entry being replaced.
func (s *GradeService) UpdateGrade(ctx context.Context, entryID string, req UpdateGradeRequest) (*models.GradeEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if err := s.checkScoreAndWeight(req.Score, req.Weight); err != nil {
		return nil, err
	}

	entry, err := s.grades.FindByID(ctx, entryID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade entry not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade entry")
	}

	enrollment, err := s.loadEnrollment(ctx, entry.EnrollmentID)
	if err != nil {
		return nil, err
	}

	entries, err := s.grades.ListByEnrollment(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grade entries")
	}
	if err := s.checkWeightBudget(entries, req.Weight, entry.ID); err != nil {
		return nil, err
	}

	entry.Kind = req.Kind
	entry.Score = req.Score
	entry.Weight = req.Weight
	entry.Comment = req.Comment
	if err := s.grades.Update(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update grade entry")
	}

	if err := s.recompute(ctx, enrollment, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// RemoveGrade deletes an entry and recomputes. Removing the last entry
// restores the enrollment to its pre-grading state: no final grade, ACTIVE
// status (when still grade-driven).
func (s *GradeService) RemoveGrade(ctx context.Context, enrollmentID, entryID string) error {
	entry, err := s.grades.FindByID(ctx, entryID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "grade entry not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade entry")
	}
	if entry.EnrollmentID != enrollmentID {
		return appErrors.Clone(appErrors.ErrValidation, "grade entry does not belong to enrollment")
	}

	enrollment, err := s.loadEnrollment(ctx, enrollmentID)
	if err != nil {
		return err
	}

	if err := s.grades.Delete(ctx, entryID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete grade entry")
	}

	return s.recompute(ctx, enrollment, nil)
}

func (s *GradeService) loadEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

func (s *GradeService) checkScoreAndWeight(score float64, weight *int) error {
	if score < 0 || score > s.maxScore {
		return appErrors.Clone(appErrors.ErrValidation, "score out of range")
	}
	if weight != nil && (*weight < 1 || *weight > maxTotalWeight) {
		return appErrors.Clone(appErrors.ErrValidation, "weight out of range")
	}
	return nil
}

// checkWeightBudget ensures the weight sum across the enrollment's entries,
// excluding the one being replaced, stays within 100.
func (s *GradeService) checkWeightBudget(entries []models.GradeEntry, newWeight *int, replacedID string) error {
	if newWeight == nil {
		return nil
	}
	total := *newWeight
	for _, e := range entries {
		if e.ID == replacedID || e.Weight == nil {
			continue
		}
		total += *e.Weight
	}
	if total > maxTotalWeight {
		return appErrors.WithDetails(appErrors.ErrWeightOverflow, "", map[string]interface{}{
			"total":  total,
			"budget": maxTotalWeight,
		})
	}
	return nil
}

// recompute derives the final grade from the current entry set, persists it,
// and drives the status machine while the enrollment is grade-driven. The
// aggregation itself is pure arithmetic over already-validated entries.
func (s *GradeService) recompute(ctx context.Context, enrollment *models.Enrollment, entry *models.GradeEntry) error {
	start := time.Now()

	entries, err := s.grades.ListByEnrollment(ctx, enrollment.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grade entries")
	}

	finalGrade := s.aggregate(entries)

	newStatus := enrollment.Status
	if enrollment.Status.GradeDriven() {
		switch {
		case finalGrade == nil:
			newStatus = models.EnrollmentStatusActive
		case *finalGrade >= s.passingGrade:
			newStatus = models.EnrollmentStatusApproved
		default:
			newStatus = models.EnrollmentStatusFailed
		}
	}

	if err := s.enrollments.UpdateFinal(ctx, enrollment.ID, finalGrade, newStatus); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store final grade")
	}
	oldStatus := enrollment.Status
	enrollment.FinalGrade = finalGrade
	enrollment.Status = newStatus
	s.metrics.RecordRecomputation(time.Since(start))

	s.notify(ctx, enrollment, func() error { return s.notifier.OnGradeUpdated(ctx, enrollment, entry) }, "grade-updated")
	if newStatus != oldStatus {
		s.metrics.RecordStatusTransition(string(newStatus))
		s.notify(ctx, enrollment, func() error {
			return s.notifier.OnStatusChanged(ctx, enrollment, oldStatus, newStatus)
		}, "status-changed")
	}
	return nil
}

// aggregate computes the final grade. When any entry carries a weight the
// result is the weighted average over weighted entries only; unweighted
// entries are silently excluded from a weighted computation. This preserves
// the legacy behavior and is intentionally not "fixed" — treating a missing
// weight as zero would change committed grades. With no weighted entry the
// result is the simple mean. Rounding is round-half-to-even at 2 decimals.
func (s *GradeService) aggregate(entries []models.GradeEntry) *float64 {
	if len(entries) == 0 {
		return nil
	}

	weightedSum := 0.0
	totalWeight := 0.0
	for _, e := range entries {
		if e.Weight == nil {
			continue
		}
		weightedSum += e.Score * float64(*e.Weight)
		totalWeight += float64(*e.Weight)
	}

	var avg float64
	if totalWeight > 0 {
		avg = weightedSum / totalWeight
	} else {
		sum := 0.0
		for _, e := range entries {
			sum += e.Score
		}
		avg = sum / float64(len(entries))
	}

	rounded := math.RoundToEven(avg*100) / 100
	return &rounded
}

// notify dispatches a notifier hook; failures are logged and counted but never
// roll back the committed state change.
func (s *GradeService) notify(_ context.Context, enrollment *models.Enrollment, fn func() error, event string) {
	if err := fn(); err != nil {
		s.metrics.RecordNotifierFailure()
		s.logger.Warn("notifier dispatch failed",
			zap.String("enrollment_id", enrollment.ID),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}
