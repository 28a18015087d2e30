package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/campuskit/enrollment-engine/internal/models"
)

// Notifier receives domain events after the corresponding state change has
// been committed. Each hook is invoked exactly once per transition; failures
// are logged by the caller and never roll the transition back.
type Notifier interface {
	OnEnrolled(ctx context.Context, enrollment *models.Enrollment) error
	OnGradeUpdated(ctx context.Context, enrollment *models.Enrollment, entry *models.GradeEntry) error
	OnStatusChanged(ctx context.Context, enrollment *models.Enrollment, oldStatus, newStatus models.EnrollmentStatus) error
	OnWithdrawn(ctx context.Context, enrollment *models.Enrollment) error
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) OnEnrolled(context.Context, *models.Enrollment) error { return nil }
func (NopNotifier) OnGradeUpdated(context.Context, *models.Enrollment, *models.GradeEntry) error {
	return nil
}
func (NopNotifier) OnStatusChanged(context.Context, *models.Enrollment, models.EnrollmentStatus, models.EnrollmentStatus) error {
	return nil
}
func (NopNotifier) OnWithdrawn(context.Context, *models.Enrollment) error { return nil }

// LoggingNotifier records every event on the structured log. Useful as a
// default sink and as the inner element of a MultiNotifier chain.
type LoggingNotifier struct {
	logger *zap.Logger
}

// NewLoggingNotifier constructs a LoggingNotifier.
func NewLoggingNotifier(logger *zap.Logger) *LoggingNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingNotifier{logger: logger}
}

func (n *LoggingNotifier) OnEnrolled(_ context.Context, enrollment *models.Enrollment) error {
	n.logger.Info("enrolled",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", enrollment.StudentID),
		zap.String("course_id", enrollment.CourseID),
		zap.String("period_id", enrollment.PeriodID),
	)
	return nil
}

func (n *LoggingNotifier) OnGradeUpdated(_ context.Context, enrollment *models.Enrollment, entry *models.GradeEntry) error {
	fields := []zap.Field{
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", enrollment.StudentID),
	}
	if entry != nil {
		fields = append(fields, zap.String("entry_id", entry.ID), zap.String("kind", string(entry.Kind)))
	}
	if enrollment.FinalGrade != nil {
		fields = append(fields, zap.Float64("final_grade", *enrollment.FinalGrade))
	}
	n.logger.Info("grade_updated", fields...)
	return nil
}

func (n *LoggingNotifier) OnStatusChanged(_ context.Context, enrollment *models.Enrollment, oldStatus, newStatus models.EnrollmentStatus) error {
	n.logger.Info("enrollment_status_changed",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("old_status", string(oldStatus)),
		zap.String("new_status", string(newStatus)),
	)
	return nil
}

func (n *LoggingNotifier) OnWithdrawn(_ context.Context, enrollment *models.Enrollment) error {
	n.logger.Info("enrollment_withdrawn",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", enrollment.StudentID),
	)
	return nil
}

// MultiNotifier fans events out to several notifiers, returning the first
// error after all have been attempted.
type MultiNotifier []Notifier

func (m MultiNotifier) OnEnrolled(ctx context.Context, enrollment *models.Enrollment) error {
	var first error
	for _, n := range m {
		if err := n.OnEnrolled(ctx, enrollment); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiNotifier) OnGradeUpdated(ctx context.Context, enrollment *models.Enrollment, entry *models.GradeEntry) error {
	var first error
	for _, n := range m {
		if err := n.OnGradeUpdated(ctx, enrollment, entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiNotifier) OnStatusChanged(ctx context.Context, enrollment *models.Enrollment, oldStatus, newStatus models.EnrollmentStatus) error {
	var first error
	for _, n := range m {
		if err := n.OnStatusChanged(ctx, enrollment, oldStatus, newStatus); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiNotifier) OnWithdrawn(ctx context.Context, enrollment *models.Enrollment) error {
	var first error
	for _, n := range m {
		if err := n.OnWithdrawn(ctx, enrollment); err != nil && first == nil {
			first = err
		}
	}
	return first
}
