package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-admin-api/internal/models"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
	ExistsByNumber(ctx context.Context, number, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Deactivate(ctx context.Context, id string) error
}

// StudentRequest holds the create/update payload of a student.
type StudentRequest struct {
	StudentNumber string    `json:"student_number" validate:"required,max=30"`
	FullName      string    `json:"full_name" validate:"required,max=150"`
	Gender        string    `json:"gender" validate:"required,oneof=M F"`
	BirthDate     time.Time `json:"birth_date" validate:"required"`
	UserID        *string   `json:"user_id"`
}

// StudentService manages student records.
type StudentService struct {
	repo      studentRepository
	users     userLookup
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs a StudentService.
func NewStudentService(repo studentRepository, users userLookup, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = nopAudit{}
	}
	return &StudentService{repo: repo, users: users, audit: audit, validator: validate, logger: logger}
}

// List returns paginated students.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list students")
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a student by id.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "student not found", "failed to load student")
	}
	return student, nil
}

// GetByUser resolves the student profile linked to a login account.
func (s *StudentService) GetByUser(ctx context.Context, userID string) (*models.Student, error) {
	student, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, lookupError(err, "no student profile linked to this account", "failed to load student")
	}
	return student, nil
}

// Create registers a student.
func (s *StudentService) Create(ctx context.Context, req StudentRequest, meta models.RequestMeta) (*models.Student, error) {
	if err := s.validate(ctx, req, ""); err != nil {
		return nil, err
	}
	student := &models.Student{
		StudentNumber: strings.TrimSpace(req.StudentNumber),
		FullName:      strings.TrimSpace(req.FullName),
		Gender:        req.Gender,
		BirthDate:     req.BirthDate,
		UserID:        normalizeOptionalID(req.UserID),
		Active:        true,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, internalError(err, "failed to create student")
	}
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionCreate, "students", student.ID, nil, student))
	return student, nil
}

// Update modifies a student's profile.
func (s *StudentService) Update(ctx context.Context, id string, req StudentRequest, meta models.RequestMeta) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "student not found", "failed to load student")
	}
	if err := s.validate(ctx, req, id); err != nil {
		return nil, err
	}
	before := *student
	student.StudentNumber = strings.TrimSpace(req.StudentNumber)
	student.FullName = strings.TrimSpace(req.FullName)
	student.Gender = req.Gender
	student.BirthDate = req.BirthDate
	student.UserID = normalizeOptionalID(req.UserID)
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, internalError(err, "failed to update student")
	}
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionUpdate, "students", id, before, student))
	return student, nil
}

// Deactivate marks a student inactive. Scores and enrollments are kept.
func (s *StudentService) Deactivate(ctx context.Context, id string, meta models.RequestMeta) error {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return lookupError(err, "student not found", "failed to load student")
	}
	if !student.Active {
		return nil
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return internalError(err, "failed to deactivate student")
	}
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionDelete, "students", id, student, nil))
	return nil
}

func (s *StudentService) validate(ctx context.Context, req StudentRequest, excludeID string) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid student payload")
	}
	exists, err := s.repo.ExistsByNumber(ctx, strings.TrimSpace(req.StudentNumber), excludeID)
	if err != nil {
		return internalError(err, "failed to check student number")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "student number already exists")
	}
	if userID := normalizeOptionalID(req.UserID); userID != nil {
		user, err := s.users.FindByID(ctx, *userID)
		if err != nil {
			return referenceError(err, "linked user not found", "failed to load linked user")
		}
		if user.Role != models.RoleStudent {
			return appErrors.Clone(appErrors.ErrValidation, "linked user must have the STUDENT role")
		}
	}
	return nil
}

func normalizeOptionalID(id *string) *string {
	if id == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*id)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
