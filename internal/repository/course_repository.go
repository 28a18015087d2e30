package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campuskit/enrollment-engine/internal/models"
)

// CourseRepository handles persistence of courses and prerequisite edges.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// Create persists a new course record.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	if course.Status == "" {
		course.Status = models.CourseStatusActive
	}
	const query = `INSERT INTO courses (id, code, name, credits, status, instructor_id, created_at, updated_at)
        VALUES (:id, :code, :name, :credits, :status, :instructor_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// FindByID returns a course by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, code, name, credits, status, instructor_id, created_at, updated_at FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindByCode returns a course by its unique code.
func (r *CourseRepository) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	const query = `SELECT id, code, name, credits, status, instructor_id, created_at, updated_at FROM courses WHERE code = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, code); err != nil {
		return nil, err
	}
	return &course, nil
}

// List returns courses filtered by the provided criteria.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	base := "FROM courses c"
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("c.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(c.code ILIKE $%d OR c.name ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"code":       "c.code",
		"name":       "c.name",
		"credits":    "c.credits",
		"created_at": "c.created_at",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "code"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "c.code"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT c.id, c.code, c.name, c.credits, c.status, c.instructor_id, c.created_at, c.updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// UpdateStatus updates the lifecycle status of a course.
func (r *CourseRepository) UpdateStatus(ctx context.Context, id string, status models.CourseStatus) error {
	const query = `UPDATE courses SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update course status: %w", err)
	}
	return nil
}

// UpdateInstructor updates the owning instructor reference.
func (r *CourseRepository) UpdateInstructor(ctx context.Context, id string, instructorID *string) error {
	const query = `UPDATE courses SET instructor_id = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, instructorID, time.Now().UTC()); err != nil {
		return fmt.Errorf("update course instructor: %w", err)
	}
	return nil
}

// AddPrerequisite persists a new prerequisite edge.
func (r *CourseRepository) AddPrerequisite(ctx context.Context, edge *models.Prerequisite) error {
	if edge.ID == "" {
		edge.ID = uuid.NewString()
	}
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO prerequisites (id, course_id, required_course_id, kind, created_at)
        VALUES (:id, :course_id, :required_course_id, :kind, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, edge); err != nil {
		return fmt.Errorf("add prerequisite: %w", err)
	}
	return nil
}

// DeletePrerequisite removes an edge for the given pair and kind.
func (r *CourseRepository) DeletePrerequisite(ctx context.Context, courseID, requiredCourseID string, kind models.PrerequisiteKind) error {
	const query = `DELETE FROM prerequisites WHERE course_id = $1 AND required_course_id = $2 AND kind = $3`
	result, err := r.db.ExecContext(ctx, query, courseID, requiredCourseID, kind)
	if err != nil {
		return fmt.Errorf("delete prerequisite: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// EdgeExists checks whether the exact edge (pair and kind) is already defined.
func (r *CourseRepository) EdgeExists(ctx context.Context, courseID, requiredCourseID string, kind models.PrerequisiteKind) (bool, error) {
	const query = `SELECT 1 FROM prerequisites WHERE course_id = $1 AND required_course_id = $2 AND kind = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, courseID, requiredCourseID, kind); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check prerequisite edge: %w", err)
	}
	return true, nil
}

// ListPrerequisites returns the edges into a course with required-course detail.
func (r *CourseRepository) ListPrerequisites(ctx context.Context, courseID string) ([]models.PrerequisiteDetail, error) {
	const query = `SELECT p.id, p.course_id, p.required_course_id, p.kind, p.created_at,
        rc.code AS required_course_code, rc.name AS required_course_name
        FROM prerequisites p
        JOIN courses rc ON rc.id = p.required_course_id
        WHERE p.course_id = $1
        ORDER BY rc.code`
	var edges []models.PrerequisiteDetail
	if err := r.db.SelectContext(ctx, &edges, query, courseID); err != nil {
		return nil, fmt.Errorf("list prerequisites: %w", err)
	}
	return edges, nil
}

// ListMandatoryRequired returns the courses a mandatory edge points at for the target course.
func (r *CourseRepository) ListMandatoryRequired(ctx context.Context, courseID string) ([]models.Course, error) {
	const query = `SELECT rc.id, rc.code, rc.name, rc.credits, rc.status, rc.instructor_id, rc.created_at, rc.updated_at
        FROM prerequisites p
        JOIN courses rc ON rc.id = p.required_course_id
        WHERE p.course_id = $1 AND p.kind = $2
        ORDER BY rc.code`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, courseID, models.PrerequisiteMandatory); err != nil {
		return nil, fmt.Errorf("list mandatory prerequisites: %w", err)
	}
	return courses, nil
}

// ListAllEdges returns the full prerequisite edge set for graph traversal.
func (r *CourseRepository) ListAllEdges(ctx context.Context) ([]models.Prerequisite, error) {
	const query = `SELECT id, course_id, required_course_id, kind, created_at FROM prerequisites`
	var edges []models.Prerequisite
	if err := r.db.SelectContext(ctx, &edges, query); err != nil {
		return nil, fmt.Errorf("list prerequisite edges: %w", err)
	}
	return edges, nil
}
