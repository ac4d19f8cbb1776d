package models

import (
	"time"
)

// JobStatus enumerates lifecycle states persisted in Postgres.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusOnHold     = "on_hold"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// ValidStatus reports whether s is one of the five lifecycle states.
func ValidStatus(s string) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusOnHold, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Job is a unit of work published by an owner and optionally claimed by
// an assignee. PrivateDetails is only serialized for the owner, the
// current assignee, or an admin; every response path nulls it otherwise.
type Job struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	PrivateDetails *string   `json:"private_details"`
	Status         string    `json:"status"`
	OwnerID        string    `json:"owner_id"`
	AssigneeID     *string   `json:"assignee_id"`
	Region         string    `json:"region,omitempty"`
	Country        string    `json:"country,omitempty"`
	Trade          string    `json:"trade"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// JobFilter narrows a listing. All fields are optional and AND-combined;
// the multi-valued fields match when any of their values match.
type JobFilter struct {
	OwnerID    string
	AssigneeID string
	Statuses   []string
	Regions    []string
	Countries  []string
	Trades     []string
}

// JobPatch carries a partial detail update. Nil fields are left untouched.
type JobPatch struct {
	Title          *string
	Description    *string
	PrivateDetails *string
	Region         *string
	Country        *string
	Trade          *string
}

// Empty reports whether the patch would change nothing.
func (p JobPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.PrivateDetails == nil &&
		p.Region == nil && p.Country == nil && p.Trade == nil
}

// AssignmentOutcome is the discriminated result of the store's atomic
// assignment primitive. Applied=false means the row existed but its
// precondition (assignee must be null) no longer held, so another actor
// won the race.
type AssignmentOutcome struct {
	Applied bool
	Job     Job
}
