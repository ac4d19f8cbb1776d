// Package engine orchestrates job allocation: creation, listing, claim
// and assignment races, status transitions, and the activity trail. It
// owns all writes to jobs and activity rows; no other component mutates
// either. Every operation re-fetches the authoritative row before
// deciding, and concurrent writes are arbitrated solely by the store's
// atomic assignment primitive.
package engine

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/jhbizops/builder.contractors-sub000/internal/authz"
	"github.com/jhbizops/builder.contractors-sub000/internal/models"
	"github.com/jhbizops/builder.contractors-sub000/internal/store"
	"github.com/jhbizops/builder.contractors-sub000/internal/telemetry"
)

const maxInviteEmails = 10

const maxAttachments = 5

// JobStore is the durable job storage the engine mutates through.
// Implementations report a missing row as store.ErrNotFound and express
// assignment races through the discriminated AssignmentOutcome.
type JobStore interface {
	CreateJob(ctx context.Context, p store.CreateJobParams) (models.Job, error)
	GetJob(ctx context.Context, id string) (models.Job, error)
	ListJobs(ctx context.Context, f models.JobFilter) ([]models.Job, error)
	UpdateJobDetails(ctx context.Context, id string, p models.JobPatch) (models.Job, error)
	SetJobStatus(ctx context.Context, id string, status string) (models.Job, error)
	SetAssignee(ctx context.Context, id string, assigneeID *string, allowReassign bool) (models.AssignmentOutcome, error)
	ClaimJob(ctx context.Context, id string, actorID string) (models.AssignmentOutcome, error)
}

// ActivityLedger records the append-only audit trail.
type ActivityLedger interface {
	Append(ctx context.Context, jobID *string, action, performedBy string, details map[string]any) (models.ActivityEntry, error)
	ListByJob(ctx context.Context, jobID string) ([]models.ActivityEntry, error)
}

// Engine is the allocation engine.
type Engine struct {
	store  JobStore
	ledger ActivityLedger
}

// New wires the engine to its store and ledger.
func New(st JobStore, lg ActivityLedger) *Engine {
	return &Engine{store: st, ledger: lg}
}

// CreateRequest carries the fields a caller may set at creation. Status,
// owner and assignee are never caller-controlled.
type CreateRequest struct {
	Title          string
	Description    string
	PrivateDetails *string
	Region         string
	Country        string
	Trade          string
}

// Create publishes a new open, unassigned job owned by the actor.
func (e *Engine) Create(ctx context.Context, actor models.Actor, req CreateRequest) (models.Job, error) {
	if strings.TrimSpace(req.Title) == "" {
		return models.Job{}, validationf("title is required")
	}
	if strings.TrimSpace(req.Trade) == "" {
		return models.Job{}, validationf("trade is required")
	}
	if !authz.CanCreate(actor) {
		return models.Job{}, ErrForbidden
	}

	job, err := e.store.CreateJob(ctx, store.CreateJobParams{
		Title:          req.Title,
		Description:    req.Description,
		PrivateDetails: req.PrivateDetails,
		OwnerID:        actor.ID,
		Region:         req.Region,
		Country:        req.Country,
		Trade:          req.Trade,
	})
	if err != nil {
		return models.Job{}, err
	}

	telemetry.JobsCreated.Inc()
	e.recordActivity(ctx, job.ID, models.ActionJobCreated, actor.ID, map[string]any{"title": job.Title})
	return authz.Sanitize(job, actor), nil
}

// Get returns a single job, sanitized for the viewer.
func (e *Engine) Get(ctx context.Context, actor models.Actor, jobID string) (models.Job, error) {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return models.Job{}, err
	}
	return authz.Sanitize(job, actor), nil
}

// List returns jobs matching the filter, sanitized for the viewer.
func (e *Engine) List(ctx context.Context, actor models.Actor, f models.JobFilter) ([]models.Job, error) {
	jobs, err := e.store.ListJobs(ctx, f)
	if err != nil {
		return nil, err
	}
	return authz.SanitizeAll(jobs, actor), nil
}

// UpdateDetails applies a partial detail patch. Plain detail edits are
// not audit events, so no ledger entry is written.
func (e *Engine) UpdateDetails(ctx context.Context, actor models.Actor, jobID string, patch models.JobPatch) (models.Job, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return models.Job{}, validationf("title cannot be empty")
	}
	if patch.Trade != nil && strings.TrimSpace(*patch.Trade) == "" {
		return models.Job{}, validationf("trade cannot be empty")
	}

	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return models.Job{}, err
	}
	if !authz.CanEditDetails(job, actor) {
		return models.Job{}, ErrForbidden
	}
	if patch.Empty() {
		return authz.Sanitize(job, actor), nil
	}

	updated, err := e.store.UpdateJobDetails(ctx, jobID, patch)
	if err != nil {
		return models.Job{}, err
	}
	return authz.Sanitize(updated, actor), nil
}

// SetStatus transitions the lifecycle state and records the change.
// Re-applying the current status is allowed; the ledger entry then shows
// from == to.
func (e *Engine) SetStatus(ctx context.Context, actor models.Actor, jobID string, newStatus string) (models.Job, error) {
	if !models.ValidStatus(newStatus) {
		return models.Job{}, validationf("unknown status %q", newStatus)
	}

	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return models.Job{}, err
	}
	if !authz.CanChangeStatus(job, actor) {
		return models.Job{}, ErrForbidden
	}
	if newStatus == models.StatusCompleted && job.AssigneeID == nil {
		return models.Job{}, validationf("cannot complete an unassigned job")
	}
	if job.Status == models.StatusOpen && newStatus == models.StatusCompleted && !authz.IsAdmin(actor.Role) {
		return models.Job{}, validationf("open jobs must go through in_progress before completion")
	}

	updated, err := e.store.SetJobStatus(ctx, jobID, newStatus)
	if errors.Is(err, store.ErrUnassignedCompletion) {
		// The snapshot check above raced a concurrent unassignment.
		return models.Job{}, validationf("cannot complete an unassigned job")
	}
	if err != nil {
		return models.Job{}, err
	}

	e.recordActivity(ctx, jobID, models.ActionJobStatusChanged, actor.ID, map[string]any{
		"from": job.Status,
		"to":   newStatus,
	})
	return authz.Sanitize(updated, actor), nil
}

// Assign sets or changes the assignee as owner or admin. An empty
// assigneeID unassigns. Reassignment of an already-claimed job bypasses
// the "must be unclaimed" precondition; everything else races through it
// and loses with ErrConflict.
func (e *Engine) Assign(ctx context.Context, actor models.Actor, jobID string, assigneeID string) (models.Job, error) {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return models.Job{}, err
	}
	if !authz.CanAssign(job, actor) {
		return models.Job{}, ErrForbidden
	}

	var target *string
	if assigneeID != "" {
		target = &assigneeID
	}
	if target == nil && job.Status == models.StatusCompleted {
		return models.Job{}, validationf("cannot unassign a completed job")
	}
	isReassignment := job.AssigneeID != nil && (target == nil || *target != *job.AssigneeID)

	outcome, err := e.store.SetAssignee(ctx, jobID, target, isReassignment)
	if err != nil {
		return models.Job{}, err
	}
	if !outcome.Applied {
		telemetry.AssignmentConflicts.Inc()
		return models.Job{}, ErrConflict
	}

	action := models.ActionJobAssigned
	if target == nil {
		action = models.ActionJobUnassigned
	}
	e.recordActivity(ctx, jobID, action, actor.ID, map[string]any{
		"previous_assignee_id": ptrOrNil(job.AssigneeID),
		"assignee_id":          ptrOrNil(target),
	})
	return authz.Sanitize(outcome.Job, actor), nil
}

// Claim atomically takes an unclaimed job for the actor and advances
// open -> in_progress. Of N concurrent claims exactly one succeeds; the
// rest observe ErrConflict and leave no trace in the ledger.
func (e *Engine) Claim(ctx context.Context, actor models.Actor, jobID string) (models.Job, error) {
	// Snapshot read for not-found and response shaping only. The store's
	// conditional update is the mutation precondition, not this read.
	if _, err := e.store.GetJob(ctx, jobID); err != nil {
		return models.Job{}, err
	}
	if !authz.CanClaim(actor) {
		return models.Job{}, ErrForbidden
	}

	outcome, err := e.store.ClaimJob(ctx, jobID, actor.ID)
	if err != nil {
		return models.Job{}, err
	}
	if !outcome.Applied {
		telemetry.ClaimConflicts.Inc()
		return models.Job{}, ErrConflict
	}

	telemetry.ClaimsWon.Inc()
	e.recordActivity(ctx, jobID, models.ActionJobClaimed, actor.ID, map[string]any{
		"assignee_id": actor.ID,
	})
	return authz.Sanitize(outcome.Job, actor), nil
}

// Activity kinds accepted by PostActivity.
const (
	KindComment              = "comment"
	KindCollaborationRequest = "collaboration_request"
)

// PostActivityRequest carries a note posted against a job.
type PostActivityRequest struct {
	Note        string
	Kind        string
	Attachments []string
}

// PostActivity appends a comment or collaboration request. Comments are
// restricted to the owner, the current assignee, or an admin; a
// collaboration request is how any approved builder signals interest in
// someone else's job.
func (e *Engine) PostActivity(ctx context.Context, actor models.Actor, jobID string, req PostActivityRequest) (models.ActivityEntry, error) {
	if strings.TrimSpace(req.Note) == "" {
		return models.ActivityEntry{}, validationf("note is required")
	}
	if req.Kind != KindComment && req.Kind != KindCollaborationRequest {
		return models.ActivityEntry{}, validationf("unknown activity kind %q", req.Kind)
	}
	if len(req.Attachments) > maxAttachments {
		return models.ActivityEntry{}, validationf("at most %d attachments", maxAttachments)
	}

	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return models.ActivityEntry{}, err
	}
	if !authz.CanPostActivity(actor) {
		return models.ActivityEntry{}, ErrForbidden
	}
	if req.Kind == KindComment {
		isAssignee := job.AssigneeID != nil && actor.ID == *job.AssigneeID
		if actor.ID != job.OwnerID && !isAssignee && !authz.IsAdmin(actor.Role) {
			return models.ActivityEntry{}, ErrForbidden
		}
	}

	action := models.ActionJobComment
	if req.Kind == KindCollaborationRequest {
		action = models.ActionJobCollaborationRequest
	}
	attachments := req.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	entry, err := e.ledger.Append(ctx, &job.ID, action, actor.ID, map[string]any{
		"note":        req.Note,
		"kind":        req.Kind,
		"attachments": attachments,
	})
	if err != nil {
		return models.ActivityEntry{}, err
	}
	return entry, nil
}

// InviteReceipt is the audit-side record of an invite operation. Invites
// never mutate the job row.
type InviteReceipt struct {
	JobID   string   `json:"job_id"`
	Invited []string `json:"invited"`
	Message string   `json:"message,omitempty"`
}

// Invite records an intent to notify the given emails about the job.
// Emails are trimmed, lowercased, de-duplicated and capped.
func (e *Engine) Invite(ctx context.Context, actor models.Actor, jobID string, emails []string, message string) (InviteReceipt, error) {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return InviteReceipt{}, err
	}
	if !authz.CanInvite(job, actor) {
		return InviteReceipt{}, ErrForbidden
	}

	invited := normalizeEmails(emails)
	if len(invited) == 0 {
		return InviteReceipt{}, validationf("at least one email is required")
	}

	if _, err := e.ledger.Append(ctx, &job.ID, models.ActionJobInviteSent, actor.ID, map[string]any{
		"invited": invited,
		"message": message,
	}); err != nil {
		return InviteReceipt{}, err
	}
	return InviteReceipt{JobID: job.ID, Invited: invited, Message: message}, nil
}

// ListActivity returns the job's ledger entries in append order.
func (e *Engine) ListActivity(ctx context.Context, actor models.Actor, jobID string) ([]models.ActivityEntry, error) {
	if _, err := e.store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return e.ledger.ListByJob(ctx, jobID)
}

// recordActivity appends an audit entry after a committed mutation. A
// failed append never rolls back or fails the operation: the state
// change already happened, and a missing audit row is a monitoring
// concern rather than a user-visible error.
func (e *Engine) recordActivity(ctx context.Context, jobID, action, performedBy string, details map[string]any) {
	if _, err := e.ledger.Append(ctx, &jobID, action, performedBy, details); err != nil {
		telemetry.LedgerAppendFailures.Inc()
		log.Printf("activity append failed: job=%s action=%s err=%v", jobID, action, err)
	}
}

func normalizeEmails(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, raw := range emails {
		email := strings.ToLower(strings.TrimSpace(raw))
		if email == "" {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		out = append(out, email)
		if len(out) == maxInviteEmails {
			break
		}
	}
	return out
}

func ptrOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
