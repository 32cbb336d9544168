package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/internal/repository"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	Enroll(ctx context.Context, enrollment *models.Enrollment) error
	Transfer(ctx context.Context, id, targetClassID string) (*models.Enrollment, error)
	Withdraw(ctx context.Context, id string, at time.Time) error
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

// EnrollStudentRequest describes enrollment creation request.
type EnrollStudentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	ClassID   string `json:"class_id" validate:"required"`
}

// TransferEnrollmentRequest describes transfer payload.
type TransferEnrollmentRequest struct {
	TargetClassID string `json:"target_class_id" validate:"required"`
}

// EnrollmentService orchestrates enrollment workflows.
type EnrollmentService struct {
	repo      enrollmentRepository
	students  studentReader
	classes   classReader
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, students studentReader, classes classReader, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = nopAudit{}
	}
	return &EnrollmentService{
		repo:      repo,
		students:  students,
		classes:   classes,
		audit:     audit,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns enrollments with pagination.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	if filter.Status != "" && filter.Status != models.EnrollmentStatusActive && filter.Status != models.EnrollmentStatusWithdrawn {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid enrollment status")
	}
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list enrollments")
	}
	if enrollments == nil {
		enrollments = []models.EnrollmentDetail{}
	}
	return enrollments, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Enroll places an active student in a class. Uniqueness within the
// academic year and class capacity are enforced under the class row lock.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollStudentRequest, meta models.RequestMeta) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid enrollment payload")
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		return nil, lookupError(err, "student not found", "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student is inactive")
	}
	if _, err := s.classes.FindByID(ctx, req.ClassID); err != nil {
		return nil, lookupError(err, "class not found", "failed to load class")
	}

	enrollment := &models.Enrollment{StudentID: req.StudentID, ClassID: req.ClassID}
	if err := s.repo.Enroll(ctx, enrollment); err != nil {
		return nil, enrollmentError(err, "failed to enroll student")
	}
	s.logger.Info("student enrolled",
		zap.String("student_id", enrollment.StudentID),
		zap.String("class_id", enrollment.ClassID),
		zap.String("academic_year_id", enrollment.AcademicYearID),
	)
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionEnroll, "enrollments", enrollment.ID, nil, enrollment))
	return enrollment, nil
}

// Transfer moves an active enrollment to another class of the same year.
func (s *EnrollmentService) Transfer(ctx context.Context, id string, req TransferEnrollmentRequest, meta models.RequestMeta) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid transfer payload")
	}
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "enrollment not found", "failed to load enrollment")
	}
	if current.ClassID == req.TargetClassID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "target class must differ from current class")
	}
	if _, err := s.classes.FindByID(ctx, req.TargetClassID); err != nil {
		return nil, lookupError(err, "target class not found", "failed to load target class")
	}

	updated, err := s.repo.Transfer(ctx, id, req.TargetClassID)
	if err != nil {
		return nil, enrollmentError(err, "failed to transfer enrollment")
	}
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionTransfer, "enrollments", id, current, updated))
	return updated, nil
}

// Withdraw marks an active enrollment as withdrawn.
func (s *EnrollmentService) Withdraw(ctx context.Context, id string, meta models.RequestMeta) (*models.Enrollment, error) {
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "enrollment not found", "failed to load enrollment")
	}
	at := s.now()
	if err := s.repo.Withdraw(ctx, id, at); err != nil {
		return nil, enrollmentError(err, "failed to withdraw enrollment")
	}
	updated := *current
	updated.Status = models.EnrollmentStatusWithdrawn
	updated.WithdrawnAt = &at
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionWithdraw, "enrollments", id, current, updated))
	return &updated, nil
}

func enrollmentError(err error, failed string) error {
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return appErrors.Clone(appErrors.ErrConflict, "student already has an active enrollment in this academic year")
	case errors.Is(err, repository.ErrCapacity):
		return appErrors.Clone(appErrors.ErrCapacityExceeded, "")
	case errors.Is(err, repository.ErrStateConflict):
		return appErrors.Clone(appErrors.ErrConflict, "enrollment is not active or target class is in another academic year")
	}
	return lookupError(err, "class not found", failed)
}
