package models

import (
	"time"
)

// Activity actions recorded in the ledger.
const (
	ActionJobCreated              = "job_created"
	ActionJobClaimed              = "job_claimed"
	ActionJobAssigned             = "job_assigned"
	ActionJobUnassigned           = "job_unassigned"
	ActionJobStatusChanged        = "job_status_changed"
	ActionJobComment              = "job_comment"
	ActionJobCollaborationRequest = "job_collaboration_request"
	ActionJobInviteSent           = "job_invite_sent"
)

// ActivityEntry is one append-only ledger row. Entries are never updated
// or deleted once written; they are the record a dispute is resolved
// against. JobID is a pointer because the same ledger shape also serves
// lead activity, which has no job.
type ActivityEntry struct {
	ID          string         `json:"id"`
	JobID       *string        `json:"job_id"`
	Action      string         `json:"action"`
	PerformedBy string         `json:"performed_by"`
	Details     map[string]any `json:"details"`
	Timestamp   time.Time      `json:"timestamp"`
}
