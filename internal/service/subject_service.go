package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-admin-api/internal/models"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
)

const subjectCachePattern = "subjects:*"

type subjectRepository interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error)
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	ExistsByCode(ctx context.Context, code, excludeID string) (bool, error)
	Create(ctx context.Context, subject *models.Subject) error
	Update(ctx context.Context, subject *models.Subject) error
	Delete(ctx context.Context, id string) error
	HasScores(ctx context.Context, id string) (bool, error)
}

// SubjectRequest is the create/update payload of a subject.
type SubjectRequest struct {
	Code         string  `json:"code" validate:"required,max=20,alphanumunicode"`
	Name         string  `json:"name" validate:"required,max=100"`
	GradeLevelID *string `json:"grade_level_id"`
}

// SubjectListResult is the cached shape of a subject listing.
type SubjectListResult struct {
	Subjects   []models.Subject   `json:"subjects"`
	Pagination *models.Pagination `json:"pagination"`
}

// SubjectService manages subjects.
type SubjectService struct {
	repo        subjectRepository
	gradeLevels gradeLevelLookup
	cache       listCache
	audit       auditRecorder
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewSubjectService constructs the service. cache may be nil.
func NewSubjectService(repo subjectRepository, gradeLevels gradeLevelLookup, cache listCache, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *SubjectService {
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
	return &SubjectService{repo: repo, gradeLevels: gradeLevels, cache: cache, audit: audit, validator: validate, logger: logger}
}

// List returns subjects, served from cache when possible.
func (s *SubjectService) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, *models.Pagination, error) {
	key := fmt.Sprintf("subjects:list:%s:%s:%d:%d:%s:%s", filter.GradeLevelID,
		strings.ToLower(strings.TrimSpace(filter.Search)), filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
	var cached SubjectListResult
	if s.cache.Get(ctx, key, &cached) {
		return cached.Subjects, cached.Pagination, nil
	}

	subjects, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list subjects")
	}
	if subjects == nil {
		subjects = []models.Subject{}
	}
	pagination := models.NewPagination(filter.Page, filter.PageSize, total)
	s.cache.Set(ctx, key, SubjectListResult{Subjects: subjects, Pagination: pagination}, 0)
	return subjects, pagination, nil
}

// Get returns one subject.
func (s *SubjectService) Get(ctx context.Context, id string) (*models.Subject, error) {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "subject not found", "failed to load subject")
	}
	return subject, nil
}

// Create adds a subject. Codes are stored upper-case.
func (s *SubjectService) Create(ctx context.Context, req SubjectRequest, meta models.RequestMeta) (*models.Subject, error) {
	if err := s.validate(ctx, req, ""); err != nil {
		return nil, err
	}
	subject := &models.Subject{
		Code:         strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:         strings.TrimSpace(req.Name),
		GradeLevelID: req.GradeLevelID,
	}
	if err := s.repo.Create(ctx, subject); err != nil {
		return nil, internalError(err, "failed to create subject")
	}
	s.cache.Invalidate(ctx, subjectCachePattern)
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionCreate, "subjects", subject.ID, nil, subject))
	return subject, nil
}

// Update modifies a subject.
func (s *SubjectService) Update(ctx context.Context, id string, req SubjectRequest, meta models.RequestMeta) (*models.Subject, error) {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "subject not found", "failed to load subject")
	}
	if err := s.validate(ctx, req, id); err != nil {
		return nil, err
	}
	before := *subject
	subject.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	subject.Name = strings.TrimSpace(req.Name)
	subject.GradeLevelID = req.GradeLevelID
	if err := s.repo.Update(ctx, subject); err != nil {
		return nil, internalError(err, "failed to update subject")
	}
	s.cache.Invalidate(ctx, subjectCachePattern)
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionUpdate, "subjects", id, before, subject))
	return subject, nil
}

// Delete removes a subject that has no scores.
func (s *SubjectService) Delete(ctx context.Context, id string, meta models.RequestMeta) error {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return lookupError(err, "subject not found", "failed to load subject")
	}
	hasScores, err := s.repo.HasScores(ctx, id)
	if err != nil {
		return internalError(err, "failed to check subject usage")
	}
	if hasScores {
		return appErrors.Clone(appErrors.ErrConflict, "subject already has scores")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return internalError(err, "failed to delete subject")
	}
	s.cache.Invalidate(ctx, subjectCachePattern)
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionDelete, "subjects", id, subject, nil))
	return nil
}

func (s *SubjectService) validate(ctx context.Context, req SubjectRequest, excludeID string) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid subject payload")
	}
	if req.GradeLevelID != nil && *req.GradeLevelID != "" {
		if _, err := s.gradeLevels.FindByID(ctx, *req.GradeLevelID); err != nil {
			return referenceError(err, "grade level not found", "failed to load grade level")
		}
	}
	exists, err := s.repo.ExistsByCode(ctx, strings.TrimSpace(req.Code), excludeID)
	if err != nil {
		return internalError(err, "failed to check subject code")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "subject code already exists")
	}
	return nil
}
