package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-admin-api/internal/models"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
)

type academicYearRepository interface {
	List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, int, error)
	FindByID(ctx context.Context, id string) (*models.AcademicYear, error)
	ExistsByName(ctx context.Context, name, excludeID string) (bool, error)
	Create(ctx context.Context, year *models.AcademicYear) error
	Update(ctx context.Context, year *models.AcademicYear) error
	Delete(ctx context.Context, id string) error
	HasClasses(ctx context.Context, id string) (bool, error)
	Activate(ctx context.Context, id string) error
}

type semesterRepository interface {
	List(ctx context.Context, filter models.SemesterFilter) ([]models.Semester, int, error)
	FindByID(ctx context.Context, id string) (*models.Semester, error)
	ExistsNumber(ctx context.Context, academicYearID string, number int, excludeID string) (bool, error)
	Create(ctx context.Context, semester *models.Semester) error
	Update(ctx context.Context, semester *models.Semester) error
	Delete(ctx context.Context, id string) error
	HasScores(ctx context.Context, id string) (bool, error)
	Activate(ctx context.Context, id string) error
}

type gradeLevelRepository interface {
	List(ctx context.Context) ([]models.GradeLevel, error)
	FindByID(ctx context.Context, id string) (*models.GradeLevel, error)
	ExistsLevel(ctx context.Context, level int, excludeID string) (bool, error)
	Create(ctx context.Context, level *models.GradeLevel) error
	Update(ctx context.Context, level *models.GradeLevel) error
	Delete(ctx context.Context, id string) error
	InUse(ctx context.Context, id string) (bool, error)
}

// AcademicYearRequest is the create/update payload of an academic year.
type AcademicYearRequest struct {
	Name      string    `json:"name" validate:"required,max=50"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
}

// SemesterRequest is the create/update payload of a semester.
type SemesterRequest struct {
	AcademicYearID string    `json:"academic_year_id" validate:"required"`
	Name           string    `json:"name" validate:"required,max=50"`
	Number         int       `json:"number" validate:"required,oneof=1 2"`
	StartDate      time.Time `json:"start_date" validate:"required"`
	EndDate        time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
}

// GradeLevelRequest is the create/update payload of a grade level.
type GradeLevelRequest struct {
	Name  string `json:"name" validate:"required,max=50"`
	Level int    `json:"level" validate:"required,min=1,max=13"`
}

// AcademicYearService manages academic years.
type AcademicYearService struct {
	repo      academicYearRepository
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAcademicYearService constructs the service.
func NewAcademicYearService(repo academicYearRepository, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *AcademicYearService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = nopAudit{}
	}
	return &AcademicYearService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// List returns academic years.
func (s *AcademicYearService) List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, *models.Pagination, error) {
	years, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list academic years")
	}
	return years, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns one academic year.
func (s *AcademicYearService) Get(ctx context.Context, id string) (*models.AcademicYear, error) {
	year, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "academic year not found", "failed to load academic year")
	}
	return year, nil
}

// Create adds an academic year.
func (s *AcademicYearService) Create(ctx context.Context, req AcademicYearRequest, meta models.RequestMeta) (*models.AcademicYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid academic year payload")
	}
	name := strings.TrimSpace(req.Name)
	if err := s.ensureUniqueName(ctx, name, ""); err != nil {
		return nil, err
	}
	year := &models.AcademicYear{Name: name, StartDate: req.StartDate, EndDate: req.EndDate}
	if err := s.repo.Create(ctx, year); err != nil {
		return nil, internalError(err, "failed to create academic year")
	}
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionCreate, "academic_years", year.ID, nil, year))
	return year, nil
}

// Update modifies an academic year.
func (s *AcademicYearService) Update(ctx context.Context, id string, req AcademicYearRequest, meta models.RequestMeta) (*models.AcademicYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid academic year payload")
	}
	year, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "academic year not found", "failed to load academic year")
	}
	name := strings.TrimSpace(req.Name)
	if err := s.ensureUniqueName(ctx, name, id); err != nil {
		return nil, err
	}
	before := *year
	year.Name, year.StartDate, year.EndDate = name, req.StartDate, req.EndDate
	if err := s.repo.Update(ctx, year); err != nil {
		return nil, internalError(err, "failed to update academic year")
	}
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionUpdate, "academic_years", year.ID, before, year))
	return year, nil
}

// Delete removes an academic year that no class refers to.
func (s *AcademicYearService) Delete(ctx context.Context, id string, meta models.RequestMeta) error {
	year, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return lookupError(err, "academic year not found", "failed to load academic year")
	}
	inUse, err := s.repo.HasClasses(ctx, id)
	if err != nil {
		return internalError(err, "failed to check academic year usage")
	}
	if inUse {
		return appErrors.Clone(appErrors.ErrConflict, "academic year still has classes")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return internalError(err, "failed to delete academic year")
	}
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionDelete, "academic_years", id, year, nil))
	return nil
}

// Activate makes id the only active academic year.
func (s *AcademicYearService) Activate(ctx context.Context, id string, meta models.RequestMeta) (*models.AcademicYear, error) {
	if err := s.repo.Activate(ctx, id); err != nil {
		return nil, lookupError(err, "academic year not found", "failed to activate academic year")
	}
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionActivate, "academic_years", id, nil, map[string]bool{"is_active": true}))
	return s.Get(ctx, id)
}

func (s *AcademicYearService) ensureUniqueName(ctx context.Context, name, excludeID string) error {
	exists, err := s.repo.ExistsByName(ctx, name, excludeID)
	if err != nil {
		return internalError(err, "failed to check academic year name")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "academic year name already exists")
	}
	return nil
}

// SemesterService manages semesters.
type SemesterService struct {
	repo      semesterRepository
	years     academicYearRepository
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSemesterService constructs the service.
func NewSemesterService(repo semesterRepository, years academicYearRepository, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *SemesterService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = nopAudit{}
	}
	return &SemesterService{repo: repo, years: years, audit: audit, validator: validate, logger: logger}
}

// List returns semesters.
func (s *SemesterService) List(ctx context.Context, filter models.SemesterFilter) ([]models.Semester, *models.Pagination, error) {
	semesters, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list semesters")
	}
	return semesters, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns one semester.
func (s *SemesterService) Get(ctx context.Context, id string) (*models.Semester, error) {
	semester, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "semester not found", "failed to load semester")
	}
	return semester, nil
}

// Create adds a semester inside its academic year.
func (s *SemesterService) Create(ctx context.Context, req SemesterRequest, meta models.RequestMeta) (*models.Semester, error) {
	if err := s.validate(ctx, req, ""); err != nil {
		return nil, err
	}
	semester := &models.Semester{
		AcademicYearID: req.AcademicYearID,
		Name:           strings.TrimSpace(req.Name),
		Number:         req.Number,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
	}
	if err := s.repo.Create(ctx, semester); err != nil {
		return nil, internalError(err, "failed to create semester")
	}
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionCreate, "semesters", semester.ID, nil, semester))
	return semester, nil
}

// Update modifies a semester.
func (s *SemesterService) Update(ctx context.Context, id string, req SemesterRequest, meta models.RequestMeta) (*models.Semester, error) {
	semester, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "semester not found", "failed to load semester")
	}
	if err := s.validate(ctx, req, id); err != nil {
		return nil, err
	}
	before := *semester
	semester.AcademicYearID = req.AcademicYearID
	semester.Name = strings.TrimSpace(req.Name)
	semester.Number = req.Number
	semester.StartDate, semester.EndDate = req.StartDate, req.EndDate
	if err := s.repo.Update(ctx, semester); err != nil {
		return nil, internalError(err, "failed to update semester")
	}
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionUpdate, "semesters", id, before, semester))
	return semester, nil
}

// Delete removes a semester without scores.
func (s *SemesterService) Delete(ctx context.Context, id string, meta models.RequestMeta) error {
	semester, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return lookupError(err, "semester not found", "failed to load semester")
	}
	hasScores, err := s.repo.HasScores(ctx, id)
	if err != nil {
		return internalError(err, "failed to check semester usage")
	}
	if hasScores {
		return appErrors.Clone(appErrors.ErrConflict, "semester already has scores")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return internalError(err, "failed to delete semester")
	}
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionDelete, "semesters", id, semester, nil))
	return nil
}

// Activate makes id the only active semester.
func (s *SemesterService) Activate(ctx context.Context, id string, meta models.RequestMeta) (*models.Semester, error) {
	if err := s.repo.Activate(ctx, id); err != nil {
		return nil, lookupError(err, "semester not found", "failed to activate semester")
	}
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionActivate, "semesters", id, nil, map[string]bool{"is_active": true}))
	return s.Get(ctx, id)
}

func (s *SemesterService) validate(ctx context.Context, req SemesterRequest, excludeID string) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid semester payload")
	}
	year, err := s.years.FindByID(ctx, req.AcademicYearID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "academic year not found")
		}
		return internalError(err, "failed to load academic year")
	}
	if req.StartDate.Before(year.StartDate) || req.EndDate.After(year.EndDate) {
		return appErrors.Clone(appErrors.ErrValidation, "semester must fall within its academic year")
	}
	exists, err := s.repo.ExistsNumber(ctx, req.AcademicYearID, req.Number, excludeID)
	if err != nil {
		return internalError(err, "failed to check semester number")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "semester number already exists in academic year")
	}
	return nil
}

// GradeLevelService manages grade levels.
type GradeLevelService struct {
	repo      gradeLevelRepository
	audit     auditRecorder
	validator *validator.Validate
}

// NewGradeLevelService constructs the service.
func NewGradeLevelService(repo gradeLevelRepository, audit auditRecorder, validate *validator.Validate) *GradeLevelService {
	if validate == nil {
		validate = validator.New()
	}
	if audit == nil {
		audit = nopAudit{}
	}
	return &GradeLevelService{repo: repo, audit: audit, validator: validate}
}

// List returns every grade level ordered by level.
func (s *GradeLevelService) List(ctx context.Context) ([]models.GradeLevel, error) {
	levels, err := s.repo.List(ctx)
	if err != nil {
		return nil, internalError(err, "failed to list grade levels")
	}
	return levels, nil
}

// Get returns one grade level.
func (s *GradeLevelService) Get(ctx context.Context, id string) (*models.GradeLevel, error) {
	level, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "grade level not found", "failed to load grade level")
	}
	return level, nil
}

// Create adds a grade level.
func (s *GradeLevelService) Create(ctx context.Context, req GradeLevelRequest, meta models.RequestMeta) (*models.GradeLevel, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid grade level payload")
	}
	if err := s.ensureUniqueLevel(ctx, req.Level, ""); err != nil {
		return nil, err
	}
	level := &models.GradeLevel{Name: strings.TrimSpace(req.Name), Level: req.Level}
	if err := s.repo.Create(ctx, level); err != nil {
		return nil, internalError(err, "failed to create grade level")
	}
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionCreate, "grade_levels", level.ID, nil, level))
	return level, nil
}

// Update modifies a grade level.
func (s *GradeLevelService) Update(ctx context.Context, id string, req GradeLevelRequest, meta models.RequestMeta) (*models.GradeLevel, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid grade level payload")
	}
	level, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "grade level not found", "failed to load grade level")
	}
	if err := s.ensureUniqueLevel(ctx, req.Level, id); err != nil {
		return nil, err
	}
	before := *level
	level.Name, level.Level = strings.TrimSpace(req.Name), req.Level
	if err := s.repo.Update(ctx, level); err != nil {
		return nil, internalError(err, "failed to update grade level")
	}
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionUpdate, "grade_levels", id, before, level))
	return level, nil
}

// Delete removes an unused grade level.
func (s *GradeLevelService) Delete(ctx context.Context, id string, meta models.RequestMeta) error {
	level, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return lookupError(err, "grade level not found", "failed to load grade level")
	}
	inUse, err := s.repo.InUse(ctx, id)
	if err != nil {
		return internalError(err, "failed to check grade level usage")
	}
	if inUse {
		return appErrors.Clone(appErrors.ErrConflict, "grade level is referenced by classes or subjects")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return internalError(err, "failed to delete grade level")
	}
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionDelete, "grade_levels", id, level, nil))
	return nil
}

func (s *GradeLevelService) ensureUniqueLevel(ctx context.Context, level int, excludeID string) error {
	exists, err := s.repo.ExistsLevel(ctx, level, excludeID)
	if err != nil {
		return internalError(err, "failed to check grade level")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "grade level already exists")
	}
	return nil
}
