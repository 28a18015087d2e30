package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campuskit/enrollment-engine/internal/models"
	appErrors "github.com/campuskit/enrollment-engine/pkg/errors"
)

type creditLoadReader interface {
	ActiveCreditLoad(ctx context.Context, studentID, periodID string) (int, error)
}

type profileReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentProfile, error)
}

type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CreditValidator enforces the per-period credit cap. Only ACTIVE enrollments
// count toward the load; withdrawn, cancelled, failed and approved ones do not.
type CreditValidator struct {
	enrollments creditLoadReader
	profiles    profileReader
	cache       cacheStore
	defaultCap  int
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewCreditValidator constructs CreditValidator. cache may be nil.
func NewCreditValidator(enrollments creditLoadReader, profiles profileReader, cache cacheStore, defaultCap int, cacheTTL time.Duration, logger *zap.Logger) *CreditValidator {
	if defaultCap <= 0 {
		defaultCap = 24
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreditValidator{
		enrollments: enrollments,
		profiles:    profiles,
		cache:       cache,
		defaultCap:  defaultCap,
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

// CanAddCredits reports whether the student may take on additionalCredits in
// the period. The boundary is inclusive: load + additional == cap passes.
// Returns the current load and the effective cap for caller reporting.
func (v *CreditValidator) CanAddCredits(ctx context.Context, studentID, periodID string, additionalCredits int) (bool, int, int, error) {
	load, err := v.enrollments.ActiveCreditLoad(ctx, studentID, periodID)
	if err != nil {
		return false, 0, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum credit load")
	}

	limit, err := v.resolveCap(ctx, studentID)
	if err != nil {
		return false, 0, 0, err
	}

	if load+additionalCredits > limit {
		return false, load, limit, nil
	}
	return true, load, limit, nil
}

// resolveCap returns the student override when present, the configured
// default otherwise. Profile lookups go through the cache; cache failures
// degrade to a direct read.
func (v *CreditValidator) resolveCap(ctx context.Context, studentID string) (int, error) {
	key := fmt.Sprintf("profile:credit-cap:%s", studentID)

	if v.cache != nil {
		var cached int
		if err := v.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		} else if err != appErrors.ErrCacheMiss {
			v.logger.Warn("profile cache read failed", zap.String("student_id", studentID), zap.Error(err))
		}
	}

	limit := v.defaultCap
	profile, err := v.profiles.FindByID(ctx, studentID)
	if err != nil {
		if err != sql.ErrNoRows {
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
		}
	} else if profile.MaxCredits != nil && *profile.MaxCredits > 0 {
		limit = *profile.MaxCredits
	}

	if v.cache != nil {
		if err := v.cache.Set(ctx, key, limit, v.cacheTTL); err != nil {
			v.logger.Warn("profile cache write failed", zap.String("student_id", studentID), zap.Error(err))
		}
	}
	return limit, nil
}
