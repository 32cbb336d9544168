package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-admin-api/internal/grading"
	"github.com/noah-isme/school-admin-api/internal/models"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
)

type scoreRepository interface {
	List(ctx context.Context, filter models.ScoreFilter) ([]models.ScoreDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Score, error)
	Create(ctx context.Context, score *models.Score) error
	Update(ctx context.Context, score *models.Score) error
	Delete(ctx context.Context, id string) error
}

type activeEnrollmentChecker interface {
	ExistsActiveInClass(ctx context.Context, studentID, classID string) (bool, error)
}

type subjectReader interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type semesterReader interface {
	FindByID(ctx context.Context, id string) (*models.Semester, error)
}

// CreateScoreRequest records one assessment result.
type CreateScoreRequest struct {
	StudentID  string           `json:"student_id" validate:"required"`
	SubjectID  string           `json:"subject_id" validate:"required"`
	ClassID    string           `json:"class_id" validate:"required"`
	SemesterID string           `json:"semester_id" validate:"required"`
	Category   grading.Category `json:"category" validate:"required"`
	Title      string           `json:"title" validate:"required,max=150"`
	RawScore   float64          `json:"raw_score"`
	MaxScore   float64          `json:"max_score"`
	Weight     float64          `json:"weight"`
}

// UpdateScoreRequest corrects an assessment result. The student, subject,
// class and semester of a score never change.
type UpdateScoreRequest struct {
	Category grading.Category `json:"category" validate:"required"`
	Title    string           `json:"title" validate:"required,max=150"`
	RawScore float64          `json:"raw_score"`
	MaxScore float64          `json:"max_score"`
	Weight   float64          `json:"weight"`
}

// ScoreService persists score records.
type ScoreService struct {
	repo        scoreRepository
	enrollments activeEnrollmentChecker
	subjects    subjectReader
	semesters   semesterReader
	classes     classReader
	audit       auditRecorder
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewScoreService constructs a ScoreService.
func NewScoreService(repo scoreRepository, enrollments activeEnrollmentChecker, subjects subjectReader, semesters semesterReader, classes classReader, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *ScoreService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = nopAudit{}
	}
	return &ScoreService{
		repo:        repo,
		enrollments: enrollments,
		subjects:    subjects,
		semesters:   semesters,
		classes:     classes,
		audit:       audit,
		validator:   validate,
		logger:      logger,
	}
}

// List returns scores with pagination.
func (s *ScoreService) List(ctx context.Context, filter models.ScoreFilter) ([]models.ScoreDetail, *models.Pagination, error) {
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown score category")
	}
	scores, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list scores")
	}
	if scores == nil {
		scores = []models.ScoreDetail{}
	}
	return scores, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns one score.
func (s *ScoreService) Get(ctx context.Context, id string) (*models.Score, error) {
	score, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "score not found", "failed to load score")
	}
	return score, nil
}

// Create records a score for an actively enrolled student.
func (s *ScoreService) Create(ctx context.Context, req CreateScoreRequest, meta models.RequestMeta) (*models.Score, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid score payload")
	}
	score := &models.Score{
		StudentID:  req.StudentID,
		SubjectID:  req.SubjectID,
		ClassID:    req.ClassID,
		SemesterID: req.SemesterID,
		Category:   req.Category,
		Title:      strings.TrimSpace(req.Title),
		RawScore:   req.RawScore,
		MaxScore:   req.MaxScore,
		Weight:     req.Weight,
		RecordedBy: meta.ActorID,
	}
	if err := checkRecord(score); err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, score); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, score); err != nil {
		return nil, internalError(err, "failed to create score")
	}
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionScoreCreate, "scores", score.ID, nil, score))
	return score, nil
}

// Update corrects a recorded score.
func (s *ScoreService) Update(ctx context.Context, id string, req UpdateScoreRequest, meta models.RequestMeta) (*models.Score, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid score payload")
	}
	score, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "score not found", "failed to load score")
	}
	before := *score
	score.Category = req.Category
	score.Title = strings.TrimSpace(req.Title)
	score.RawScore = req.RawScore
	score.MaxScore = req.MaxScore
	score.Weight = req.Weight
	score.RecordedBy = meta.ActorID
	if err := checkRecord(score); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, score); err != nil {
		return nil, internalError(err, "failed to update score")
	}
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionScoreUpdate, "scores", id, before, score))
	return score, nil
}

// Delete removes a score.
func (s *ScoreService) Delete(ctx context.Context, id string, meta models.RequestMeta) error {
	score, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return lookupError(err, "score not found", "failed to load score")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return lookupError(err, "score not found", "failed to delete score")
	}
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionScoreDelete, "scores", id, score, nil))
	return nil
}

// checkRecord applies the grading preconditions to a score before it is
// persisted, so that stored scores always aggregate.
func checkRecord(score *models.Score) error {
	if !score.Category.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown score category")
	}
	if err := grading.Validate(score.Record()); err != nil {
		return gradingError(err)
	}
	return nil
}

func (s *ScoreService) checkReferences(ctx context.Context, score *models.Score) error {
	subject, err := s.subjects.FindByID(ctx, score.SubjectID)
	if err != nil {
		return referenceError(err, "subject not found", "failed to load subject")
	}
	semester, err := s.semesters.FindByID(ctx, score.SemesterID)
	if err != nil {
		return referenceError(err, "semester not found", "failed to load semester")
	}
	class, err := s.classes.FindByID(ctx, score.ClassID)
	if err != nil {
		return referenceError(err, "class not found", "failed to load class")
	}
	if semester.AcademicYearID != class.AcademicYearID {
		return appErrors.Clone(appErrors.ErrValidation, "semester does not belong to the class academic year")
	}
	if subject.GradeLevelID != nil && *subject.GradeLevelID != class.GradeLevelID {
		return appErrors.Clone(appErrors.ErrValidation, "subject is not taught at the class grade level")
	}
	enrolled, err := s.enrollments.ExistsActiveInClass(ctx, score.StudentID, score.ClassID)
	if err != nil {
		return internalError(err, "failed to check enrollment")
	}
	if !enrolled {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "student is not actively enrolled in the class")
	}
	return nil
}
