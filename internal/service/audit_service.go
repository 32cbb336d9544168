package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/school-admin-api/internal/models"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
	"github.com/noah-isme/school-admin-api/pkg/jobs"
)

const auditJobType = "audit.write"

type auditRepository interface {
	Create(ctx context.Context, log *models.AuditLog) error
	List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, int, error)
}

type auditQueue interface {
	Enqueue(job jobs.Job) error
}

// auditRecorder is the narrow view other services take of AuditService.
type auditRecorder interface {
	Record(ctx context.Context, entry models.AuditLog)
}

// AuditService writes audit entries through a background queue, falling back
// to a synchronous insert when the queue cannot take the entry.
type AuditService struct {
	repo   auditRepository
	queue  auditQueue
	logger *zap.Logger
}

// NewAuditService constructs the service. queue may be nil.
func NewAuditService(repo auditRepository, queue auditQueue, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, queue: queue, logger: logger}
}

// AttachQueue wires the worker queue after construction, since the queue's
// handler is the service itself.
func (s *AuditService) AttachQueue(queue auditQueue) {
	s.queue = queue
}

// Record stores entry. Failures are logged, never returned: auditing must not
// fail the write it describes.
func (s *AuditService) Record(ctx context.Context, entry models.AuditLog) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if s.queue != nil {
		err := s.queue.Enqueue(jobs.Job{Type: auditJobType, Payload: entry})
		if err == nil {
			return
		}
		if !errors.Is(err, jobs.ErrNotRunning) && !errors.Is(err, jobs.ErrQueueFull) {
			s.logger.Warn("audit enqueue failed", zap.Error(err))
		}
	}
	if err := s.repo.Create(context.WithoutCancel(ctx), &entry); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", entry.Action), zap.String("resource", entry.Resource), zap.Error(err))
	}
}

// HandleJob is the queue handler persisting one audit entry.
func (s *AuditService) HandleJob(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(models.AuditLog)
	if !ok {
		return fmt.Errorf("unexpected audit payload %T", job.Payload)
	}
	return s.repo.Create(ctx, &entry)
}

// List returns audit entries with pagination.
func (s *AuditService) List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, *models.Pagination, error) {
	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to list audit logs")
	}
	return logs, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// newAuditEntry builds an entry from request metadata and before/after
// snapshots. Snapshots that fail to marshal are dropped.
func newAuditEntry(meta models.RequestMeta, action, resource, resourceID string, oldValue, newValue interface{}) models.AuditLog {
	entry := models.AuditLog{
		Action:    action,
		Resource:  resource,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}
	if meta.ActorID != "" {
		actor := meta.ActorID
		entry.UserID = &actor
	}
	if resourceID != "" {
		id := resourceID
		entry.ResourceID = &id
	}
	if oldValue != nil {
		entry.OldValues, _ = json.Marshal(oldValue)
	}
	if newValue != nil {
		entry.NewValues, _ = json.Marshal(newValue)
	}
	return entry
}

// nopAudit discards entries; used when a service is built without auditing.
type nopAudit struct{}

func (nopAudit) Record(context.Context, models.AuditLog) {}
