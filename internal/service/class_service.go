package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-admin-api/internal/models"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
)

const classCachePattern = "classes:*"

type classRepository interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Class, error)
	FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error)
	ExistsByName(ctx context.Context, academicYearID, name, excludeID string) (bool, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	Delete(ctx context.Context, id string) error
	CountActiveEnrollments(ctx context.Context, id string) (int, error)
}

type userLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type gradeLevelLookup interface {
	FindByID(ctx context.Context, id string) (*models.GradeLevel, error)
}

type academicYearLookup interface {
	FindByID(ctx context.Context, id string) (*models.AcademicYear, error)
}

// listCache is the part of CacheService used by read-model listings.
type listCache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
	Invalidate(ctx context.Context, pattern string)
}

type nopCache struct{}

func (nopCache) Get(context.Context, string, interface{}) bool           { return false }
func (nopCache) Set(context.Context, string, interface{}, time.Duration) {}
func (nopCache) Invalidate(context.Context, string)                      {}

// CreateClassRequest captures creation payload.
type CreateClassRequest struct {
	Name              string  `json:"name" validate:"required,max=50"`
	GradeLevelID      string  `json:"grade_level_id" validate:"required"`
	AcademicYearID    string  `json:"academic_year_id" validate:"required"`
	HomeroomTeacherID *string `json:"homeroom_teacher_id"`
	Capacity          int     `json:"capacity" validate:"min=0,max=200"`
}

// UpdateClassRequest modifies class fields. The academic year is fixed at
// creation because enrollments copy it.
type UpdateClassRequest struct {
	Name              string  `json:"name" validate:"required,max=50"`
	GradeLevelID      string  `json:"grade_level_id" validate:"required"`
	HomeroomTeacherID *string `json:"homeroom_teacher_id"`
	Capacity          int     `json:"capacity" validate:"min=0,max=200"`
}

// ClassListResult is the cached shape of a class listing.
type ClassListResult struct {
	Classes    []models.ClassDetail `json:"classes"`
	Pagination *models.Pagination   `json:"pagination"`
}

// ClassService coordinates class operations.
type ClassService struct {
	repo        classRepository
	gradeLevels gradeLevelLookup
	years       academicYearLookup
	users       userLookup
	roster      rosterReader
	cache       listCache
	audit       auditRecorder
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewClassService constructs the service. cache may be nil.
func NewClassService(repo classRepository, gradeLevels gradeLevelLookup, years academicYearLookup, users userLookup, roster rosterReader, cache listCache, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = nopCache{}
	}
	if audit == nil {
		audit = nopAudit{}
	}
	return &ClassService{repo: repo, gradeLevels: gradeLevels, years: years, users: users, roster: roster, cache: cache, audit: audit, validator: validate, logger: logger}
}

// List returns classes, served from cache when possible.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, *models.Pagination, error) {
	key := fmt.Sprintf("classes:list:%s:%s:%s:%d:%d:%s:%s", filter.AcademicYearID, filter.GradeLevelID,
		strings.ToLower(strings.TrimSpace(filter.Search)), filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
	var cached ClassListResult
	if s.cache.Get(ctx, key, &cached) {
		return cached.Classes, cached.Pagination, nil
	}

	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list classes")
	}
	if classes == nil {
		classes = []models.ClassDetail{}
	}
	pagination := models.NewPagination(filter.Page, filter.PageSize, total)
	s.cache.Set(ctx, key, ClassListResult{Classes: classes, Pagination: pagination}, 0)
	return classes, pagination, nil
}

// Get returns class detail.
func (s *ClassService) Get(ctx context.Context, id string) (*models.ClassDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "class not found", "failed to load class")
	}
	return detail, nil
}

// Roster lists the students actively enrolled in a class.
func (s *ClassService) Roster(ctx context.Context, id string) ([]models.StudentRef, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, lookupError(err, "class not found", "failed to load class")
	}
	students, err := s.roster.ListActiveStudents(ctx, id)
	if err != nil {
		return nil, internalError(err, "failed to load class roster")
	}
	if students == nil {
		students = []models.StudentRef{}
	}
	return students, nil
}

// Create adds a class.
func (s *ClassService) Create(ctx context.Context, req CreateClassRequest, meta models.RequestMeta) (*models.ClassDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid class payload")
	}
	if _, err := s.years.FindByID(ctx, req.AcademicYearID); err != nil {
		return nil, referenceError(err, "academic year not found", "failed to load academic year")
	}
	if err := s.checkReferences(ctx, req.GradeLevelID, req.HomeroomTeacherID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if err := s.ensureUniqueName(ctx, req.AcademicYearID, name, ""); err != nil {
		return nil, err
	}

	class := &models.Class{
		Name:              name,
		GradeLevelID:      req.GradeLevelID,
		AcademicYearID:    req.AcademicYearID,
		HomeroomTeacherID: req.HomeroomTeacherID,
		Capacity:          req.Capacity,
	}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, internalError(err, "failed to create class")
	}
	s.cache.Invalidate(ctx, classCachePattern)
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionCreate, "classes", class.ID, nil, class))
	return s.Get(ctx, class.ID)
}

// Update modifies a class. Capacity cannot drop below the current headcount.
func (s *ClassService) Update(ctx context.Context, id string, req UpdateClassRequest, meta models.RequestMeta) (*models.ClassDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid class payload")
	}
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "class not found", "failed to load class")
	}
	if err := s.checkReferences(ctx, req.GradeLevelID, req.HomeroomTeacherID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if err := s.ensureUniqueName(ctx, class.AcademicYearID, name, id); err != nil {
		return nil, err
	}
	if req.Capacity > 0 {
		active, err := s.repo.CountActiveEnrollments(ctx, id)
		if err != nil {
			return nil, internalError(err, "failed to count enrollments")
		}
		if active > req.Capacity {
			return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, fmt.Sprintf("class already has %d active students", active))
		}
	}

	before := *class
	class.Name = name
	class.GradeLevelID = req.GradeLevelID
	class.HomeroomTeacherID = req.HomeroomTeacherID
	class.Capacity = req.Capacity
	if err := s.repo.Update(ctx, class); err != nil {
		return nil, internalError(err, "failed to update class")
	}
	s.cache.Invalidate(ctx, classCachePattern)
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionUpdate, "classes", id, before, class))
	return s.Get(ctx, id)
}

// Delete removes a class without active enrollments.
func (s *ClassService) Delete(ctx context.Context, id string, meta models.RequestMeta) error {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return lookupError(err, "class not found", "failed to load class")
	}
	active, err := s.repo.CountActiveEnrollments(ctx, id)
	if err != nil {
		return internalError(err, "failed to count enrollments")
	}
	if active > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "class still has active enrollments")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return internalError(err, "failed to delete class")
	}
	s.cache.Invalidate(ctx, classCachePattern)
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionDelete, "classes", id, class, nil))
	return nil
}

func (s *ClassService) checkReferences(ctx context.Context, gradeLevelID string, homeroomTeacherID *string) error {
	if _, err := s.gradeLevels.FindByID(ctx, gradeLevelID); err != nil {
		return referenceError(err, "grade level not found", "failed to load grade level")
	}
	if homeroomTeacherID == nil || *homeroomTeacherID == "" {
		return nil
	}
	teacher, err := s.users.FindByID(ctx, *homeroomTeacherID)
	if err != nil {
		return referenceError(err, "homeroom teacher not found", "failed to load homeroom teacher")
	}
	if teacher.Role != models.RoleTeacher || !teacher.Active {
		return appErrors.Clone(appErrors.ErrValidation, "homeroom teacher must be an active teacher")
	}
	return nil
}

func (s *ClassService) ensureUniqueName(ctx context.Context, academicYearID, name, excludeID string) error {
	exists, err := s.repo.ExistsByName(ctx, academicYearID, name, excludeID)
	if err != nil {
		return internalError(err, "failed to check class name")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "class name already exists in academic year")
	}
	return nil
}

// referenceError maps a missing referenced row to a validation failure.
func referenceError(err error, missing, failed string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrValidation, missing)
	}
	return internalError(err, failed)
}
