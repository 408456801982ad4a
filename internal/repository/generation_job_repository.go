package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/timetable-api/internal/models"
)

const generationJobColumns = `id, kind, period_id, request, status, progress, result, created_by, created_at, finished_at, error_message`

// GenerationJobRepository persists asynchronous generation jobs.
type GenerationJobRepository struct {
	db *sqlx.DB
}

// NewGenerationJobRepository constructs the repository.
func NewGenerationJobRepository(db *sqlx.DB) *GenerationJobRepository {
	return &GenerationJobRepository{db: db}
}

// Create inserts a job row with generated defaults.
func (r *GenerationJobRepository) Create(ctx context.Context, job *models.GenerationJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.GenerationJobQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if len(job.Result) == 0 {
		job.Result = types.JSONText("{}")
	}
	const query = `INSERT INTO generation_jobs (` + generationJobColumns + `)
VALUES (:id, :kind, :period_id, :request, :status, :progress, :result, :created_by, :created_at, :finished_at, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create generation job: %w", err)
	}
	return nil
}

// GetByID returns a job row by its identifier.
func (r *GenerationJobRepository) GetByID(ctx context.Context, id string) (*models.GenerationJob, error) {
	const query = `SELECT ` + generationJobColumns + ` FROM generation_jobs WHERE id = $1`
	var job models.GenerationJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, fmt.Errorf("get generation job: %w", err)
	}
	return &job, nil
}

// UpdateGenerationJobParams defines the mutable fields. OnlyIfStatus guards the update
// against concurrent transitions.
type UpdateGenerationJobParams struct {
	Status       *models.GenerationJobStatus
	Progress     *int
	Result       *types.JSONText
	ErrorMessage *string
	FinishedAt   *time.Time
	OnlyIfStatus *models.GenerationJobStatus
}

// Update persists the provided changes and reports whether a row was changed.
func (r *GenerationJobRepository) Update(ctx context.Context, id string, params UpdateGenerationJobParams) (bool, error) {
	set := make([]string, 0, 5)
	args := make([]interface{}, 0, 7)
	next := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if params.Status != nil {
		next("status", *params.Status)
	}
	if params.Progress != nil {
		next("progress", *params.Progress)
	}
	if params.Result != nil {
		next("result", *params.Result)
	}
	if params.ErrorMessage != nil {
		next("error_message", *params.ErrorMessage)
	}
	if params.FinishedAt != nil {
		next("finished_at", *params.FinishedAt)
	}
	if len(set) == 0 {
		return false, nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE generation_jobs SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	if params.OnlyIfStatus != nil {
		args = append(args, *params.OnlyIfStatus)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update generation job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update generation job rows: %w", err)
	}
	return affected > 0, nil
}

// ListQueued fetches queued jobs for cold start recovery.
func (r *GenerationJobRepository) ListQueued(ctx context.Context, limit int) ([]models.GenerationJob, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT ` + generationJobColumns + ` FROM generation_jobs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1`
	var jobs []models.GenerationJob
	if err := r.db.SelectContext(ctx, &jobs, query, limit); err != nil {
		return nil, fmt.Errorf("list queued generation jobs: %w", err)
	}
	return jobs, nil
}

// FailStale marks jobs left PROCESSING by a previous process as failed.
func (r *GenerationJobRepository) FailStale(ctx context.Context, message string) (int, error) {
	const query = `UPDATE generation_jobs SET status = 'FAILED', progress = 100, error_message = $1, finished_at = $2 WHERE status = 'PROCESSING'`
	res, err := r.db.ExecContext(ctx, query, message, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("fail stale generation jobs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("fail stale generation jobs rows: %w", err)
	}
	return int(affected), nil
}
