// Package ledger persists the append-only activity trail. Rows are
// written once and never updated or deleted; no code in this module
// issues an UPDATE or DELETE against activity_logs.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhbizops/builder.contractors-sub000/internal/models"
)

// Ledger appends and reads activity rows. It shares the job store's pool
// so both live in the same Postgres database.
type Ledger struct {
	pool *pgxpool.Pool
}

// New builds a ledger over an existing pool.
func New(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Append writes one activity row and returns it with id and timestamp
// filled in.
func (l *Ledger) Append(ctx context.Context, jobID *string, action, performedBy string, details map[string]any) (models.ActivityEntry, error) {
	if details == nil {
		details = map[string]any{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return models.ActivityEntry{}, fmt.Errorf("marshal activity details: %w", err)
	}

	entry := models.ActivityEntry{
		ID:          uuid.New().String(),
		JobID:       jobID,
		Action:      action,
		PerformedBy: performedBy,
		Details:     details,
		Timestamp:   time.Now().UTC(),
	}

	_, err = l.pool.Exec(ctx, `
		INSERT INTO activity_logs (id, job_id, action, performed_by, details, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.JobID, entry.Action, entry.PerformedBy, detailsJSON, entry.Timestamp)
	if err != nil {
		return models.ActivityEntry{}, fmt.Errorf("append activity: %w", err)
	}
	return entry, nil
}

// ListByJob returns a job's entries in append order. The insertion
// sequence, not the timestamp, carries the ordering: timestamps collide
// at clock resolution while seq is strictly increasing per insert.
func (l *Ledger) ListByJob(ctx context.Context, jobID string) ([]models.ActivityEntry, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, job_id, action, performed_by, details, ts
		FROM activity_logs
		WHERE job_id = $1
		ORDER BY seq ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	entries := []models.ActivityEntry{}
	for rows.Next() {
		var e models.ActivityEntry
		var detailsJSON []byte
		if err := rows.Scan(&e.ID, &e.JobID, &e.Action, &e.PerformedBy, &detailsJSON, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan activity row: %w", err)
		}
		if err := json.Unmarshal(detailsJSON, &e.Details); err != nil {
			return nil, fmt.Errorf("unmarshal activity details: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return entries, nil
}
