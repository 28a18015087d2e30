package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/enrollment-engine/internal/models"
	appErrors "github.com/campuskit/enrollment-engine/pkg/errors"
)

type courseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindByCode(ctx context.Context, code string) (*models.Course, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	UpdateStatus(ctx context.Context, id string, status models.CourseStatus) error
	UpdateInstructor(ctx context.Context, id string, instructorID *string) error
	AddPrerequisite(ctx context.Context, edge *models.Prerequisite) error
	DeletePrerequisite(ctx context.Context, courseID, requiredCourseID string, kind models.PrerequisiteKind) error
	ListPrerequisites(ctx context.Context, courseID string) ([]models.PrerequisiteDetail, error)
}

type edgeValidator interface {
	ValidateEdge(ctx context.Context, courseID, requiredCourseID string, kind models.PrerequisiteKind) error
}

// CreateCourseRequest describes course creation.
type CreateCourseRequest struct {
	Code         string  `json:"code" validate:"required"`
	Name         string  `json:"name" validate:"required"`
	Credits      int     `json:"credits" validate:"required,min=1,max=10"`
	InstructorID *string `json:"instructor_id,omitempty"`
}

// AddPrerequisiteRequest describes a new prerequisite edge.
type AddPrerequisiteRequest struct {
	CourseCode         string                  `json:"course_code" validate:"required"`
	RequiredCourseCode string                  `json:"required_course_code" validate:"required"`
	Kind               models.PrerequisiteKind `json:"kind" validate:"required,oneof=MANDATORY RECOMMENDED"`
}

// CatalogService manages courses and the prerequisite graph.
type CatalogService struct {
	repo      courseRepository
	edges     edgeValidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCatalogService constructs CatalogService.
func NewCatalogService(repo courseRepository, edges edgeValidator, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{repo: repo, edges: edges, validator: validate, logger: logger}
}

// List returns courses with pagination metadata.
func (s *CatalogService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
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
	return courses, pagination, nil
}

// FindByCode returns a course by its unique code.
func (s *CatalogService) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	course, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// CreateCourse registers a new course in ACTIVE status.
func (s *CatalogService) CreateCourse(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	code := strings.TrimSpace(strings.ToUpper(req.Code))

	if _, err := s.repo.FindByCode(ctx, code); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already in use")
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}

	course := &models.Course{
		Code:         code,
		Name:         req.Name,
		Credits:      req.Credits,
		Status:       models.CourseStatusActive,
		InstructorID: req.InstructorID,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// UpdateStatus moves a course to a new lifecycle status.
func (s *CatalogService) UpdateStatus(ctx context.Context, code string, status models.CourseStatus) (*models.Course, error) {
	switch status {
	case models.CourseStatusActive, models.CourseStatusInactive, models.CourseStatusInReview:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown course status")
	}
	course, err := s.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, course.ID, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course status")
	}
	course.Status = status
	return course, nil
}

// AssignInstructor sets or clears the owning instructor reference.
func (s *CatalogService) AssignInstructor(ctx context.Context, code string, instructorID *string) (*models.Course, error) {
	course, err := s.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateInstructor(ctx, course.ID, instructorID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course instructor")
	}
	course.InstructorID = instructorID
	return course, nil
}

// AddPrerequisite validates and persists a new edge. Self-loops, duplicate
// pair+kind edges and transitive cycles are rejected before anything is
// written.
func (s *CatalogService) AddPrerequisite(ctx context.Context, req AddPrerequisiteRequest) (*models.Prerequisite, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid prerequisite payload")
	}

	course, err := s.FindByCode(ctx, req.CourseCode)
	if err != nil {
		return nil, err
	}
	required, err := s.FindByCode(ctx, req.RequiredCourseCode)
	if err != nil {
		return nil, err
	}

	if err := s.edges.ValidateEdge(ctx, course.ID, required.ID, req.Kind); err != nil {
		return nil, err
	}

	edge := &models.Prerequisite{
		CourseID:         course.ID,
		RequiredCourseID: required.ID,
		Kind:             req.Kind,
	}
	if err := s.repo.AddPrerequisite(ctx, edge); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add prerequisite")
	}
	return edge, nil
}

// RemovePrerequisite deletes an edge for the given pair and kind.
func (s *CatalogService) RemovePrerequisite(ctx context.Context, courseCode, requiredCourseCode string, kind models.PrerequisiteKind) error {
	course, err := s.FindByCode(ctx, courseCode)
	if err != nil {
		return err
	}
	required, err := s.FindByCode(ctx, requiredCourseCode)
	if err != nil {
		return err
	}
	if err := s.repo.DeletePrerequisite(ctx, course.ID, required.ID, kind); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "prerequisite not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove prerequisite")
	}
	return nil
}

// Prerequisites returns the edges into a course with required-course detail.
func (s *CatalogService) Prerequisites(ctx context.Context, courseCode string) ([]models.PrerequisiteDetail, error) {
	course, err := s.FindByCode(ctx, courseCode)
	if err != nil {
		return nil, err
	}
	edges, err := s.repo.ListPrerequisites(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list prerequisites")
	}
	return edges, nil
}
