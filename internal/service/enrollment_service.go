package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/enrollment-engine/internal/models"
	"github.com/campuskit/enrollment-engine/internal/repository"
	appErrors "github.com/campuskit/enrollment-engine/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ExistsByTriple(ctx context.Context, studentID, courseID, periodID string) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, withdrawnAt *time.Time) error
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type periodReader interface {
	FindByID(ctx context.Context, id string) (*models.Period, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentProfile, error)
}

type prerequisiteChecker interface {
	CanEnroll(ctx context.Context, studentID string, course *models.Course) (bool, []models.Course, error)
}

type creditChecker interface {
	CanAddCredits(ctx context.Context, studentID, periodID string, additionalCredits int) (bool, int, int, error)
}

// EnrollStudentRequest describes enrollment creation request.
type EnrollStudentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	CourseID  string `json:"course_id" validate:"required"`
	PeriodID  string `json:"period_id" validate:"required"`
}

// EnrollmentService owns the enrollment lifecycle. Transitions:
// ACTIVE -> APPROVED | FAILED (aggregator), ACTIVE -> WITHDRAWN (explicit),
// any grade-driven status -> CANCELLED (administrative). WITHDRAWN and
// CANCELLED are absolutely terminal.
type EnrollmentService struct {
	repo      enrollmentRepository
	courses   courseReader
	periods   periodReader
	students  studentReader
	prereqs   prerequisiteChecker
	credits   creditChecker
	notifier  Notifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, courses courseReader, periods periodReader, students studentReader, prereqs prerequisiteChecker, credits creditChecker, notifier Notifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &EnrollmentService{
		repo:      repo,
		courses:   courses,
		periods:   periods,
		students:  students,
		prereqs:   prereqs,
		credits:   credits,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// Find returns an enrollment with contextual info.
func (s *EnrollmentService) Find(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// Enroll registers a student to a course for a period. Preconditions are
// checked in order: period accepts enrollments, the (student, course, period)
// triple is new, the student is active, the course is active, mandatory
// prerequisites are approved, and the credit cap allows the course. The first
// failing check is returned as a typed error with structured detail.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollStudentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	period, err := s.periods.FindByID(ctx, req.PeriodID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "period not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period")
	}
	if !period.Status.AcceptsEnrollments() {
		return nil, appErrors.WithDetails(appErrors.ErrPeriodClosed, "", map[string]interface{}{
			"period_id":     period.ID,
			"period_status": period.Status,
		})
	}

	exists, err := s.repo.ExistsByTriple(ctx, req.StudentID, req.CourseID, req.PeriodID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in course for period")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student inactive")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.Status != models.CourseStatusActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "course not active")
	}

	ok, missing, err := s.prereqs.CanEnroll(ctx, req.StudentID, course)
	if err != nil {
		return nil, err
	}
	if !ok {
		codes := make([]string, 0, len(missing))
		for _, c := range missing {
			codes = append(codes, c.Code)
		}
		return nil, appErrors.WithDetails(appErrors.ErrPrerequisiteUnmet, "", map[string]interface{}{
			"missing": codes,
		})
	}

	ok, load, limit, err := s.credits.CanAddCredits(ctx, req.StudentID, req.PeriodID, course.Credits)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErrors.WithDetails(appErrors.ErrCreditLimit, "", map[string]interface{}{
			"current":   load,
			"limit":     limit,
			"requested": course.Credits,
		})
	}

	enrollment := &models.Enrollment{
		StudentID:  req.StudentID,
		CourseID:   req.CourseID,
		PeriodID:   req.PeriodID,
		Status:     models.EnrollmentStatusActive,
		EnrolledAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in course for period")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	s.metrics.RecordEnrollment()

	s.notify(ctx, func() error { return s.notifier.OnEnrolled(ctx, enrollment) }, enrollment.ID, "enrolled")
	return enrollment, nil
}

// Withdraw marks an active enrollment as withdrawn and stamps the time.
func (s *EnrollmentService) Withdraw(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment not active")
	}

	withdrawnAt := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, id, models.EnrollmentStatusWithdrawn, &withdrawnAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}
	oldStatus := enrollment.Status
	enrollment.Status = models.EnrollmentStatusWithdrawn
	enrollment.WithdrawnAt = &withdrawnAt
	s.metrics.RecordWithdrawal()
	s.metrics.RecordStatusTransition(string(models.EnrollmentStatusWithdrawn))

	s.notify(ctx, func() error { return s.notifier.OnWithdrawn(ctx, enrollment) }, enrollment.ID, "withdrawn")
	s.notify(ctx, func() error {
		return s.notifier.OnStatusChanged(ctx, enrollment, oldStatus, models.EnrollmentStatusWithdrawn)
	}, enrollment.ID, "status-changed")
	return enrollment, nil
}

// Cancel administratively terminates an enrollment. Legal from any
// grade-driven status; withdrawn and cancelled enrollments stay as they are.
func (s *EnrollmentService) Cancel(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if !enrollment.Status.GradeDriven() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment already terminal")
	}

	if err := s.repo.UpdateStatus(ctx, id, models.EnrollmentStatusCancelled, enrollment.WithdrawnAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}
	oldStatus := enrollment.Status
	enrollment.Status = models.EnrollmentStatusCancelled
	s.metrics.RecordCancellation()
	s.metrics.RecordStatusTransition(string(models.EnrollmentStatusCancelled))

	s.notify(ctx, func() error {
		return s.notifier.OnStatusChanged(ctx, enrollment, oldStatus, models.EnrollmentStatusCancelled)
	}, enrollment.ID, "status-changed")
	return enrollment, nil
}

// notify dispatches a notifier hook; failures are logged and counted but never
// roll back the committed state change.
func (s *EnrollmentService) notify(_ context.Context, fn func() error, enrollmentID, event string) {
	if err := fn(); err != nil {
		s.metrics.RecordNotifierFailure()
		s.logger.Warn("notifier dispatch failed",
			zap.String("enrollment_id", enrollmentID),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}
