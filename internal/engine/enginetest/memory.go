// Package enginetest provides in-memory JobStore and ActivityLedger
// implementations for tests.
package enginetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jhbizops/builder.contractors-sub000/internal/models"
	"github.com/jhbizops/builder.contractors-sub000/internal/store"
)

// MemStore is an in-memory JobStore whose mutex plays the role of the
// database's row-level atomicity: every conditional mutation holds the
// lock for its full read-check-write, exactly like a single UPDATE.
type MemStore struct {
	mu   sync.Mutex
	jobs map[string]models.Job
}

func NewMemStore() *MemStore {
	return &MemStore{jobs: map[string]models.Job{}}
}

func (m *MemStore) CreateJob(_ context.Context, p store.CreateJobParams) (models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	job := models.Job{
		ID:             uuid.New().String(),
		Title:          p.Title,
		Description:    p.Description,
		PrivateDetails: p.PrivateDetails,
		Status:         models.StatusOpen,
		OwnerID:        p.OwnerID,
		Region:         p.Region,
		Country:        p.Country,
		Trade:          p.Trade,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.jobs[job.ID] = job
	return job, nil
}

func (m *MemStore) GetJob(_ context.Context, id string) (models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return models.Job{}, store.ErrNotFound
	}
	return job, nil
}

func (m *MemStore) ListJobs(_ context.Context, f models.JobFilter) ([]models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Job{}
	for _, job := range m.jobs {
		if f.OwnerID != "" && job.OwnerID != f.OwnerID {
			continue
		}
		if f.AssigneeID != "" && (job.AssigneeID == nil || *job.AssigneeID != f.AssigneeID) {
			continue
		}
		if len(f.Statuses) > 0 && !contains(f.Statuses, job.Status) {
			continue
		}
		if len(f.Regions) > 0 && !contains(f.Regions, job.Region) {
			continue
		}
		if len(f.Countries) > 0 && !contains(f.Countries, job.Country) {
			continue
		}
		if len(f.Trades) > 0 && !contains(f.Trades, job.Trade) {
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

func (m *MemStore) UpdateJobDetails(_ context.Context, id string, p models.JobPatch) (models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return models.Job{}, store.ErrNotFound
	}
	if p.Title != nil {
		job.Title = *p.Title
	}
	if p.Description != nil {
		job.Description = *p.Description
	}
	if p.PrivateDetails != nil {
		job.PrivateDetails = p.PrivateDetails
	}
	if p.Region != nil {
		job.Region = *p.Region
	}
	if p.Country != nil {
		job.Country = *p.Country
	}
	if p.Trade != nil {
		job.Trade = *p.Trade
	}
	job.UpdatedAt = time.Now().UTC()
	m.jobs[id] = job
	return job, nil
}

func (m *MemStore) SetJobStatus(_ context.Context, id string, status string) (models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return models.Job{}, store.ErrNotFound
	}
	if status == models.StatusCompleted && job.AssigneeID == nil {
		return models.Job{}, store.ErrUnassignedCompletion
	}
	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	m.jobs[id] = job
	return job, nil
}

func (m *MemStore) SetAssignee(_ context.Context, id string, assigneeID *string, allowReassign bool) (models.AssignmentOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return models.AssignmentOutcome{}, store.ErrNotFound
	}
	if job.AssigneeID != nil && !allowReassign {
		return models.AssignmentOutcome{Applied: false}, nil
	}
	if assigneeID == nil && job.Status == models.StatusCompleted {
		return models.AssignmentOutcome{Applied: false}, nil
	}
	job.AssigneeID = assigneeID
	job.UpdatedAt = time.Now().UTC()
	m.jobs[id] = job
	return models.AssignmentOutcome{Applied: true, Job: job}, nil
}

func (m *MemStore) ClaimJob(_ context.Context, id string, actorID string) (models.AssignmentOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return models.AssignmentOutcome{}, store.ErrNotFound
	}
	if job.AssigneeID != nil {
		return models.AssignmentOutcome{Applied: false}, nil
	}
	job.AssigneeID = &actorID
	if job.Status == models.StatusOpen {
		job.Status = models.StatusInProgress
	}
	job.UpdatedAt = time.Now().UTC()
	m.jobs[id] = job
	return models.AssignmentOutcome{Applied: true, Job: job}, nil
}

func contains(vals []string, v string) bool {
	for _, x := range vals {
		if x == v {
			return true
		}
	}
	return false
}

// MemLedger is an in-memory ActivityLedger. AppendErr, when set, makes
// every append fail so the best-effort audit path can be exercised.
type MemLedger struct {
	mu        sync.Mutex
	entries   []models.ActivityEntry
	AppendErr error
}

func NewMemLedger() *MemLedger {
	return &MemLedger{}
}

func (l *MemLedger) Append(_ context.Context, jobID *string, action, performedBy string, details map[string]any) (models.ActivityEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.AppendErr != nil {
		return models.ActivityEntry{}, l.AppendErr
	}
	entry := models.ActivityEntry{
		ID:          uuid.New().String(),
		JobID:       jobID,
		Action:      action,
		PerformedBy: performedBy,
		Details:     details,
		Timestamp:   time.Now().UTC(),
	}
	l.entries = append(l.entries, entry)
	return entry, nil
}

func (l *MemLedger) ListByJob(_ context.Context, jobID string) ([]models.ActivityEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []models.ActivityEntry{}
	for _, e := range l.entries {
		if e.JobID != nil && *e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *MemLedger) CountAction(jobID, action string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.JobID != nil && *e.JobID == jobID && e.Action == action {
			n++
		}
	}
	return n
}

// ErrLedgerDown simulates ledger unavailability in tests.
var ErrLedgerDown = errors.New("ledger unavailable")
