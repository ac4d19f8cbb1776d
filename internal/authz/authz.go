// Package authz is the pure authorization evaluator. Every function is
// side-effect-free and computable from its arguments alone, so the full
// role/ownership matrix can be tested without a database or router.
package authz

import (
	"github.com/jhbizops/builder.contractors-sub000/internal/models"
)

// IsAdmin reports whether role carries administrative privileges.
func IsAdmin(role string) bool {
	return role == models.RoleAdmin || role == models.RoleSuperAdmin
}

// IsBuilderRole reports whether role can hold job assignments.
func IsBuilderRole(role string) bool {
	return role == models.RoleBuilder || role == models.RoleDual
}

// IsApprovedBuilder reports whether the actor is an approved builder or dual.
func IsApprovedBuilder(a models.Actor) bool {
	return a.Approved && IsBuilderRole(a.Role)
}

// CanViewPrivateDetails gates the job's private_details field.
func CanViewPrivateDetails(job models.Job, a models.Actor) bool {
	if IsAdmin(a.Role) || a.ID == job.OwnerID {
		return true
	}
	return job.AssigneeID != nil && a.ID == *job.AssigneeID
}

// CanCreate gates job creation.
func CanCreate(a models.Actor) bool {
	return IsApprovedBuilder(a) || IsAdmin(a.Role)
}

// CanEditDetails gates partial detail updates.
func CanEditDetails(job models.Job, a models.Actor) bool {
	return a.ID == job.OwnerID || IsAdmin(a.Role)
}

// CanChangeStatus gates lifecycle transitions.
func CanChangeStatus(job models.Job, a models.Actor) bool {
	if a.ID == job.OwnerID || IsAdmin(a.Role) {
		return true
	}
	return job.AssigneeID != nil && a.ID == *job.AssigneeID
}

// CanAssign gates explicit assignment, including reassignment. Only the
// owner or an admin may hand a job to someone.
func CanAssign(job models.Job, a models.Actor) bool {
	if !IsApprovedBuilder(a) && !IsAdmin(a.Role) {
		return false
	}
	return a.ID == job.OwnerID || IsAdmin(a.Role)
}

// CanClaim gates the self-service claim path.
func CanClaim(a models.Actor) bool {
	return (IsApprovedBuilder(a) && IsBuilderRole(a.Role)) || IsAdmin(a.Role)
}

// CanPostActivity gates comments and collaboration requests at the role
// level; the engine further restricts plain comments to owner, assignee,
// or admin.
func CanPostActivity(a models.Actor) bool {
	return IsApprovedBuilder(a) || IsAdmin(a.Role)
}

// CanInvite gates the invite side channel.
func CanInvite(job models.Job, a models.Actor) bool {
	if IsAdmin(a.Role) {
		return true
	}
	return a.Approved && a.ID == job.OwnerID
}

// Sanitize returns the job as the actor is allowed to see it. There is no
// response path that bypasses this transform.
func Sanitize(job models.Job, a models.Actor) models.Job {
	if CanViewPrivateDetails(job, a) {
		return job
	}
	job.PrivateDetails = nil
	return job
}

// SanitizeAll sanitizes a listing in place-order for the given viewer.
func SanitizeAll(jobs []models.Job, a models.Actor) []models.Job {
	out := make([]models.Job, len(jobs))
	for i, j := range jobs {
		out[i] = Sanitize(j, a)
	}
	return out
}
