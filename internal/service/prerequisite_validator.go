package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/campuskit/enrollment-engine/internal/models"
	appErrors "github.com/campuskit/enrollment-engine/pkg/errors"
)

type prerequisiteEdgeReader interface {
	ListMandatoryRequired(ctx context.Context, courseID string) ([]models.Course, error)
	ListAllEdges(ctx context.Context) ([]models.Prerequisite, error)
	EdgeExists(ctx context.Context, courseID, requiredCourseID string, kind models.PrerequisiteKind) (bool, error)
}

type approvedHistoryReader interface {
	ApprovedCourseIDs(ctx context.Context, studentID string) ([]string, error)
}

// PrerequisiteValidator decides enrollment admissibility against the
// prerequisite graph and guards new edges against cycles.
type PrerequisiteValidator struct {
	edges   prerequisiteEdgeReader
	history approvedHistoryReader
	logger  *zap.Logger
}

// NewPrerequisiteValidator constructs PrerequisiteValidator.
func NewPrerequisiteValidator(edges prerequisiteEdgeReader, history approvedHistoryReader, logger *zap.Logger) *PrerequisiteValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrerequisiteValidator{edges: edges, history: history, logger: logger}
}

// CanEnroll reports whether the student satisfies every mandatory prerequisite
// of the target course. The returned slice holds all unmet prerequisites, not
// just the first, so callers can report them at once. Recommended edges never
// block. No side effects.
func (v *PrerequisiteValidator) CanEnroll(ctx context.Context, studentID string, course *models.Course) (bool, []models.Course, error) {
	required, err := v.edges.ListMandatoryRequired(ctx, course.ID)
	if err != nil {
		return false, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisites")
	}
	if len(required) == 0 {
		return true, nil, nil
	}

	approvedIDs, err := v.history.ApprovedCourseIDs(ctx, studentID)
	if err != nil {
		return false, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval history")
	}
	approved := make(map[string]bool, len(approvedIDs))
	for _, id := range approvedIDs {
		approved[id] = true
	}

	var missing []models.Course
	for _, req := range required {
		if !approved[req.ID] {
			missing = append(missing, req)
		}
	}
	return len(missing) == 0, missing, nil
}

// ValidateEdge checks whether the edge course -> requiredCourse may be added.
// Rejects self-loops, exact duplicates (same pair and kind) and any edge that
// would close a cycle: if the candidate course is reachable from the required
// course over existing forward edges, the new edge completes a loop.
func (v *PrerequisiteValidator) ValidateEdge(ctx context.Context, courseID, requiredCourseID string, kind models.PrerequisiteKind) error {
	if courseID == requiredCourseID {
		return appErrors.Clone(appErrors.ErrValidation, "course cannot require itself")
	}

	exists, err := v.edges.EdgeExists(ctx, courseID, requiredCourseID, kind)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check prerequisite edge")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrDuplicateEdge, "")
	}

	edges, err := v.edges.ListAllEdges(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisite graph")
	}

	if v.reachable(edges, requiredCourseID, courseID) {
		return appErrors.WithDetails(appErrors.ErrCycleDetected, "", map[string]interface{}{
			"course_id":          courseID,
			"required_course_id": requiredCourseID,
		})
	}
	return nil
}

// reachable performs an iterative depth-first search from `from` over forward
// edges, reporting whether `target` can be reached. The visited set keeps the
// walk terminating even on malformed pre-existing data.
func (v *PrerequisiteValidator) reachable(edges []models.Prerequisite, from, target string) bool {
	adjacency := make(map[string][]string, len(edges))
	for _, edge := range edges {
		adjacency[edge.CourseID] = append(adjacency[edge.CourseID], edge.RequiredCourseID)
	}

	visited := make(map[string]bool)
	stack := []string{from}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node == target {
			return true
		}
		if visited[node] {
			continue
		}
		visited[node] = true
		stack = append(stack, adjacency[node]...)
	}
	return false
}
