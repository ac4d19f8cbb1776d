package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhbizops/builder.contractors-sub000/internal/models"
)

// ErrNotFound is returned when a referenced job row does not exist.
var ErrNotFound = errors.New("job not found")

// ErrUnassignedCompletion is returned when a write would leave a
// completed job without an assignee. A completed row always carries the
// builder who did the work.
var ErrUnassignedCompletion = errors.New("completed job requires an assignee")

const jobColumns = `id, title, description, private_details, status, owner_id, assignee_id, region, country, trade, created_at, updated_at`

// Store wraps pgxpool for Postgres persistence. The jobs row is the only
// shared mutable state in the system and every concurrent write goes
// through a single conditional UPDATE here.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Pool exposes the underlying pool so the activity ledger can share it.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// CreateJobParams collects inputs required to insert a job.
type CreateJobParams struct {
	Title          string
	Description    string
	PrivateDetails *string
	OwnerID        string
	Region         string
	Country        string
	Trade          string
}

// CreateJob inserts a new open, unassigned job row.
func (s *Store) CreateJob(ctx context.Context, p CreateJobParams) (models.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, title, description, private_details, status, owner_id, assignee_id, region, country, trade, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULL, $7, $8, $9, $10, $10)
	`, id, p.Title, p.Description, p.PrivateDetails, models.StatusOpen, p.OwnerID, p.Region, p.Country, p.Trade, now)
	if err != nil {
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}

	return models.Job{
		ID:             id,
		Title:          p.Title,
		Description:    p.Description,
		PrivateDetails: p.PrivateDetails,
		Status:         models.StatusOpen,
		OwnerID:        p.OwnerID,
		AssigneeID:     nil,
		Region:         p.Region,
		Country:        p.Country,
		Trade:          p.Trade,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (models.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, ErrNotFound
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs matching the filter, newest first. Filter fields
// are AND-combined; each multi-valued field matches any of its values.
func (s *Store) ListJobs(ctx context.Context, f models.JobFilter) ([]models.Job, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.OwnerID != "" {
		add("owner_id = $%d", f.OwnerID)
	}
	if f.AssigneeID != "" {
		add("assignee_id = $%d", f.AssigneeID)
	}
	if len(f.Statuses) > 0 {
		add("status = ANY($%d)", f.Statuses)
	}
	if len(f.Regions) > 0 {
		add("region = ANY($%d)", f.Regions)
	}
	if len(f.Countries) > 0 {
		add("country = ANY($%d)", f.Countries)
	}
	if len(f.Trades) > 0 {
		add("trade = ANY($%d)", f.Trades)
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []models.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// UpdateJobDetails applies the non-nil patch fields and refreshes
// updated_at. Detail edits are not audit events. A nil patch field means
// "leave unchanged", so nullable columns (private_details) cannot be
// cleared back to NULL through a patch; callers that need to blank them
// must write an empty string.
func (s *Store) UpdateJobDetails(ctx context.Context, id string, p models.JobPatch) (models.Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE jobs
		SET title = COALESCE($2, title),
		    description = COALESCE($3, description),
		    private_details = COALESCE($4, private_details),
		    region = COALESCE($5, region),
		    country = COALESCE($6, country),
		    trade = COALESCE($7, trade),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+jobColumns+`
	`, id, p.Title, p.Description, p.PrivateDetails, p.Region, p.Country, p.Trade)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, ErrNotFound
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("update job details: %w", err)
	}
	return job, nil
}

// SetJobStatus sets the lifecycle status. The transition to completed
// is conditional on an assignee being present; the WHERE clause, not the
// caller's snapshot, enforces that under concurrent unassignment.
func (s *Store) SetJobStatus(ctx context.Context, id string, status string) (models.Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE jobs SET status = $2, updated_at = NOW()
		WHERE id = $1 AND NOT ($2 = $3 AND assignee_id IS NULL)
		RETURNING `+jobColumns+`
	`, id, status, models.StatusCompleted)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		exists, err := s.jobExists(ctx, id)
		if err != nil {
			return models.Job{}, err
		}
		if !exists {
			return models.Job{}, ErrNotFound
		}
		return models.Job{}, ErrUnassignedCompletion
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("set job status: %w", err)
	}
	return job, nil
}

// SetAssignee is the atomic assignment primitive. The precondition
// "assignee must currently be null" is enforced inside the UPDATE's WHERE
// clause, unless allowReassign bypasses it for an explicit owner/admin
// reassignment. Clearing the assignee of a completed row is refused in
// the same clause so the completed-implies-assigned invariant holds even
// against a concurrent completion. The row, not the caller's snapshot,
// arbitrates the race.
func (s *Store) SetAssignee(ctx context.Context, id string, assigneeID *string, allowReassign bool) (models.AssignmentOutcome, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE jobs SET assignee_id = $2, updated_at = NOW()
		WHERE id = $1 AND (assignee_id IS NULL OR $3)
		  AND NOT ($2::text IS NULL AND status = $4)
		RETURNING `+jobColumns+`
	`, id, assigneeID, allowReassign, models.StatusCompleted)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.preconditionFailed(ctx, id)
	}
	if err != nil {
		return models.AssignmentOutcome{}, fmt.Errorf("set assignee: %w", err)
	}
	return models.AssignmentOutcome{Applied: true, Job: job}, nil
}

// ClaimJob atomically takes an unclaimed job for actorID, advancing
// open -> in_progress in the same statement. Exactly one of N concurrent
// callers observes Applied=true.
func (s *Store) ClaimJob(ctx context.Context, id string, actorID string) (models.AssignmentOutcome, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE jobs
		SET assignee_id = $2,
		    status = CASE WHEN status = $3 THEN $4 ELSE status END,
		    updated_at = NOW()
		WHERE id = $1 AND assignee_id IS NULL
		RETURNING `+jobColumns+`
	`, id, actorID, models.StatusOpen, models.StatusInProgress)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.preconditionFailed(ctx, id)
	}
	if err != nil {
		return models.AssignmentOutcome{}, fmt.Errorf("claim job: %w", err)
	}
	return models.AssignmentOutcome{Applied: true, Job: job}, nil
}

// preconditionFailed distinguishes "row exists but the condition no
// longer holds" from "row missing" after a zero-row conditional update.
func (s *Store) preconditionFailed(ctx context.Context, id string) (models.AssignmentOutcome, error) {
	exists, err := s.jobExists(ctx, id)
	if err != nil {
		return models.AssignmentOutcome{}, err
	}
	if !exists {
		return models.AssignmentOutcome{}, ErrNotFound
	}
	return models.AssignmentOutcome{Applied: false}, nil
}

func (s *Store) jobExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check job existence: %w", err)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (models.Job, error) {
	var job models.Job
	var private pgtype.Text
	var assignee pgtype.Text

	if err := row.Scan(&job.ID, &job.Title, &job.Description, &private, &job.Status, &job.OwnerID, &assignee, &job.Region, &job.Country, &job.Trade, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return models.Job{}, err
	}
	job.PrivateDetails = textPtr(private)
	job.AssigneeID = textPtr(assignee)
	return job, nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}
