package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/pkg/jobs"
)

type auditRepoMock struct {
	mu      sync.Mutex
	entries []models.AuditLog
	err     error
}

func (m *auditRepoMock) Create(_ context.Context, log *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, *log)
	return nil
}

func (m *auditRepoMock) List(context.Context, models.AuditLogFilter) ([]models.AuditLog, int, error) {
	return m.entries, len(m.entries), nil
}

func (m *auditRepoMock) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

type auditQueueStub struct {
	err  error
	jobs []jobs.Job
}

func (q *auditQueueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func TestAuditRecordUsesQueue(t *testing.T) {
	repo := &auditRepoMock{}
	queue := &auditQueueStub{}
	svc := NewAuditService(repo, queue, nil)

	svc.Record(context.Background(), models.AuditLog{Action: models.AuditActionLogin})
	require.Len(t, queue.jobs, 1)
	assert.Empty(t, repo.entries)

	require.NoError(t, svc.HandleJob(context.Background(), queue.jobs[0]))
	assert.Equal(t, []string{models.AuditActionLogin}, repo.actions())
}

func TestAuditRecordFallsBackWhenQueueFull(t *testing.T) {
	repo := &auditRepoMock{}
	svc := NewAuditService(repo, &auditQueueStub{err: jobs.ErrQueueFull}, nil)

	svc.Record(context.Background(), models.AuditLog{Action: models.AuditActionEnroll})
	assert.Equal(t, []string{models.AuditActionEnroll}, repo.actions())
}

func TestAuditRecordSwallowsRepositoryErrors(t *testing.T) {
	svc := NewAuditService(&auditRepoMock{err: errors.New("db down")}, nil, nil)
	assert.NotPanics(t, func() {
		svc.Record(context.Background(), models.AuditLog{Action: models.AuditActionLogout})
	})
}

func TestAuditHandleJobRejectsUnknownPayload(t *testing.T) {
	svc := NewAuditService(&auditRepoMock{}, nil, nil)
	assert.Error(t, svc.HandleJob(context.Background(), jobs.Job{Payload: "nope"}))
}

func TestAuditQueueDrainsOnStop(t *testing.T) {
	repo := &auditRepoMock{}
	svc := NewAuditService(repo, nil, nil)
	queue := jobs.NewQueue("audit", svc.HandleJob, jobs.QueueConfig{Workers: 1, BufferSize: 8})
	svc.AttachQueue(queue)
	queue.Start(context.Background())

	for i := 0; i < 5; i++ {
		svc.Record(context.Background(), models.AuditLog{Action: models.AuditActionScoreCreate})
	}
	require.NoError(t, queue.Stop(context.Background()))
	assert.Len(t, repo.actions(), 5)

	svc.Record(context.Background(), models.AuditLog{Action: models.AuditActionScoreDelete})
	assert.Len(t, repo.actions(), 6)
}

func TestNewAuditEntrySnapshots(t *testing.T) {
	entry := newAuditEntry(models.RequestMeta{ActorID: "u1", IP: "10.0.0.1"}, models.AuditActionUpdate, "classes", "c1",
		map[string]int{"capacity": 30}, map[string]int{"capacity": 32})
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "u1", *entry.UserID)
	assert.JSONEq(t, `{"capacity":30}`, string(entry.OldValues))
	assert.JSONEq(t, `{"capacity":32}`, string(entry.NewValues))
	assert.Equal(t, "10.0.0.1", entry.IPAddress)
}

// recordingAudit captures entries handed to Record by other services.
type recordingAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (r *recordingAudit) Record(_ context.Context, entry models.AuditLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recordingAudit) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}
