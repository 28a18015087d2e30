// Package engine wires the enrollment and grading services against PostgreSQL
// and Redis. Hosting processes construct an Engine and call the services
// directly; no transport is included.
package engine

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/campuskit/enrollment-engine/internal/repository"
	"github.com/campuskit/enrollment-engine/internal/service"
	"github.com/campuskit/enrollment-engine/pkg/cache"
	"github.com/campuskit/enrollment-engine/pkg/config"
	"github.com/campuskit/enrollment-engine/pkg/database"
	"github.com/campuskit/enrollment-engine/pkg/logger"
)

// Options tunes Engine construction. Zero value loads configuration from the
// environment, builds a logger from it and uses a logging notifier.
type Options struct {
	Config   *config.Config
	Logger   *zap.Logger
	Notifier service.Notifier
}

// Engine bundles the services over a shared database, cache and logger.
type Engine struct {
	Catalog     *service.CatalogService
	Periods     *service.PeriodService
	Enrollments *service.EnrollmentService
	Grades      *service.GradeService
	Metrics     *service.MetricsService
	Logger      *zap.Logger

	db    *sqlx.DB
	cache *repository.CacheRepository
}

// New builds an Engine. The database must be reachable; Redis is optional and
// its absence only disables profile cap caching.
func New(opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	logr := opts.Logger
	if logr == nil {
		built, err := logger.New(cfg)
		if err != nil {
			return nil, err
		}
		logr = built
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, err
	}

	var cacheRepo *repository.CacheRepository
	if client, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Warn("redis unavailable, credit cap caching disabled", zap.Error(err))
	} else {
		cacheRepo = repository.NewCacheRepository(client, logr)
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = service.NewLoggingNotifier(logr)
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	courses := repository.NewCourseRepository(db)
	periods := repository.NewPeriodRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)
	grades := repository.NewGradeRepository(db)
	profiles := repository.NewProfileRepository(db)

	prereqs := service.NewPrerequisiteValidator(courses, enrollments, logr)
	credits := service.NewCreditValidator(enrollments, profiles, cacheRepo, cfg.Enrollment.DefaultCreditCap, cfg.Enrollment.ProfileCacheTTL, logr)

	return &Engine{
		Catalog:     service.NewCatalogService(courses, prereqs, validate, logr),
		Periods:     service.NewPeriodService(periods, validate, logr),
		Enrollments: service.NewEnrollmentService(enrollments, courses, periods, profiles, prereqs, credits, notifier, metrics, validate, logr),
		Grades:      service.NewGradeService(grades, enrollments, notifier, metrics, validate, logr, cfg.Grading.PassingGrade, cfg.Grading.MaxScore),
		Metrics:     metrics,
		Logger:      logr,
		db:          db,
		cache:       cacheRepo,
	}, nil
}

// MetricsHandler exposes the Prometheus scrape handler for the host to mount.
func (e *Engine) MetricsHandler() http.Handler {
	return e.Metrics.Handler()
}

// Close releases the database and cache connections.
func (e *Engine) Close() error {
	var first error
	if e.cache != nil {
		if err := e.cache.Close(); err != nil {
			first = err
		}
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
