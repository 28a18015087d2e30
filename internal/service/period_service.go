package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/enrollment-engine/internal/models"
	appErrors "github.com/campuskit/enrollment-engine/pkg/errors"
)

type periodRepository interface {
	Create(ctx context.Context, period *models.Period) error
	FindByID(ctx context.Context, id string) (*models.Period, error)
	FindByName(ctx context.Context, name string) (*models.Period, error)
	List(ctx context.Context, filter models.PeriodFilter) ([]models.Period, int, error)
	UpdateStatus(ctx context.Context, id string, status models.PeriodStatus) error
}

// CreatePeriodRequest describes period creation.
type CreatePeriodRequest struct {
	Name      string    `json:"name" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

// periodSuccessor holds the forward-only lifecycle order.
var periodSuccessor = map[models.PeriodStatus]models.PeriodStatus{
	models.PeriodStatusPlanning:       models.PeriodStatusEnrollmentOpen,
	models.PeriodStatusEnrollmentOpen: models.PeriodStatusInProgress,
	models.PeriodStatusInProgress:     models.PeriodStatusClosed,
}

// PeriodService manages academic periods and their lifecycle.
type PeriodService struct {
	repo      periodRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPeriodService constructs PeriodService.
func NewPeriodService(repo periodRepository, validate *validator.Validate, logger *zap.Logger) *PeriodService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeriodService{repo: repo, validator: validate, logger: logger}
}

// List returns periods with pagination metadata.
func (s *PeriodService) List(ctx context.Context, filter models.PeriodFilter) ([]models.Period, *models.Pagination, error) {
	periods, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list periods")
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
	return periods, pagination, nil
}

// Find returns a period by its ID.
func (s *PeriodService) Find(ctx context.Context, id string) (*models.Period, error) {
	period, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "period not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period")
	}
	return period, nil
}

// Create registers a new period in PLANNING status. Start must precede end.
func (s *PeriodService) Create(ctx context.Context, req CreatePeriodRequest) (*models.Period, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid period payload")
	}
	if !req.StartDate.Before(req.EndDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start date must be before end date")
	}

	if _, err := s.repo.FindByName(ctx, req.Name); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "period name already in use")
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check period name")
	}

	period := &models.Period{
		Name:      req.Name,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Status:    models.PeriodStatusPlanning,
	}
	if err := s.repo.Create(ctx, period); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create period")
	}
	return period, nil
}

// Transition advances a period to the next lifecycle status. Transitions are
// forward-only and single-step: PLANNING -> ENROLLMENT_OPEN -> IN_PROGRESS ->
// CLOSED.
func (s *PeriodService) Transition(ctx context.Context, id string, next models.PeriodStatus) (*models.Period, error) {
	period, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if periodSuccessor[period.Status] != next {
		return nil, appErrors.WithDetails(appErrors.ErrPreconditionFailed, "illegal period transition", map[string]interface{}{
			"current":   period.Status,
			"requested": next,
		})
	}
	if err := s.repo.UpdateStatus(ctx, id, next); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update period status")
	}
	period.Status = next
	return period, nil
}
