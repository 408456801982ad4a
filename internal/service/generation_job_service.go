package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/repository"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
	"github.com/noah-isme/timetable-api/pkg/jobs"
	"github.com/noah-isme/timetable-api/pkg/middleware/requestid"
)

type generationJobStore interface {
	Create(ctx context.Context, job *models.GenerationJob) error
	GetByID(ctx context.Context, id string) (*models.GenerationJob, error)
	Update(ctx context.Context, id string, params repository.UpdateGenerationJobParams) (bool, error)
	ListQueued(ctx context.Context, limit int) ([]models.GenerationJob, error)
	FailStale(ctx context.Context, message string) (int, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
	Cancel(id string) bool
}

type timetableGenerator interface {
	GenerateWithProgress(ctx context.Context, req dto.GenerationRequest, progress ProgressFunc) (*dto.GenerationResult, error)
	GenerateIntelligentWithProgress(ctx context.Context, req dto.IntelligentGenerationRequest, progress ProgressFunc) (*dto.GenerationResult, error)
}

// GenerationJobService manages asynchronous generation jobs.
type GenerationJobService struct {
	repo      generationJobStore
	queue     jobDispatcher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGenerationJobService constructs the job service.
func NewGenerationJobService(repo generationJobStore, queue jobDispatcher, validate *validator.Validate, logger *zap.Logger) *GenerationJobService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationJobService{repo: repo, queue: queue, validator: validate, logger: logger}
}

// SetQueue attaches the dispatcher once the worker queue exists.
func (s *GenerationJobService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// CreateJob validates the request, persists a job and enqueues it.
func (s *GenerationJobService) CreateJob(ctx context.Context, req dto.GenerationJobRequest, actorID string) (*dto.GenerationJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err, "invalid generation job payload")
	}
	if _, err := resolveGenerationOptions(req.Generation, DefaultGenerationSettings(), defaultMaxAttempts); err != nil {
		return nil, err
	}
	kind := models.GenerationJobStandard
	if req.Intelligent {
		if !req.Confirmed {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "intelligent generation may delete sessions and requires confirmation")
		}
		kind = models.GenerationJobIntelligent
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode generation job")
	}
	job := &models.GenerationJob{
		Kind:      kind,
		PeriodID:  req.Generation.PeriodID,
		Request:   types.JSONText(payload),
		Status:    models.GenerationJobQueued,
		CreatedBy: actorID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create generation job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Kind)}); err != nil {
		s.finish(ctx, job.ID, models.GenerationJobFailed, nil, "failed to enqueue job")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue generation job")
	}
	s.logger.Info("generation job queued",
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.String("period_id", job.PeriodID),
		zap.String("request_id", requestid.FromContext(ctx)),
	)
	return &dto.GenerationJobResponse{ID: job.ID, Kind: job.Kind, Status: job.Status, Progress: 0}, nil
}

// GetStatus returns job metadata and, once finished, the generation result.
func (s *GenerationJobService) GetStatus(ctx context.Context, id string) (*dto.GenerationJobResponse, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := &dto.GenerationJobResponse{
		ID:       job.ID,
		Kind:     job.Kind,
		Status:   job.Status,
		Progress: job.Progress,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	if job.Status == models.GenerationJobFinished && len(job.Result) > 0 {
		var result dto.GenerationResult
		if err := job.Result.Unmarshal(&result); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode generation result")
		}
		resp.Result = &result
	}
	return resp, nil
}

// Cancel stops a queued or running job. Terminal jobs cannot be cancelled.
func (s *GenerationJobService) Cancel(ctx context.Context, id string) (*dto.GenerationJobResponse, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("job is already %s", job.Status))
	}
	if job.Status == models.GenerationJobQueued {
		cancelled := models.GenerationJobCancelled
		queued := models.GenerationJobQueued
		now := time.Now().UTC()
		msg := "cancelled before start"
		changed, err := s.repo.Update(ctx, id, repository.UpdateGenerationJobParams{
			Status:       &cancelled,
			ErrorMessage: &msg,
			FinishedAt:   &now,
			OnlyIfStatus: &queued,
		})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel generation job")
		}
		if changed {
			return &dto.GenerationJobResponse{ID: id, Kind: job.Kind, Status: cancelled, Progress: job.Progress}, nil
		}
	}
	if !s.queue.Cancel(id) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "job is not running on this instance")
	}
	return &dto.GenerationJobResponse{ID: id, Kind: job.Kind, Status: models.GenerationJobProcessing, Progress: job.Progress}, nil
}

// RecoverPendingJobs fails jobs interrupted by a restart and requeues queued ones.
func (s *GenerationJobService) RecoverPendingJobs(ctx context.Context) {
	if n, err := s.repo.FailStale(ctx, "interrupted by restart"); err != nil {
		s.logger.Warn("failed to fail stale generation jobs", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("stale generation jobs failed", zap.Int("count", n))
	}
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Warn("failed to recover queued generation jobs", zap.Error(err))
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Kind)}); err != nil {
			s.logger.Warn("failed to requeue generation job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

func (s *GenerationJobService) load(ctx context.Context, id string) (*models.GenerationJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load generation job")
	}
	return job, nil
}

func (s *GenerationJobService) finish(ctx context.Context, id string, status models.GenerationJobStatus, result *types.JSONText, message string) {
	progress := 100
	now := time.Now().UTC()
	if _, err := s.repo.Update(ctx, id, repository.UpdateGenerationJobParams{
		Status:       &status,
		Progress:     &progress,
		Result:       result,
		ErrorMessage: &message,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Warn("failed to finish generation job", zap.String("job_id", id), zap.Error(err))
	}
}

// GenerationWorker bridges queue jobs to the timetable generator.
type GenerationWorker struct {
	repo      generationJobStore
	generator timetableGenerator
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewGenerationWorker constructs a worker.
func NewGenerationWorker(repo generationJobStore, generator timetableGenerator, metrics *MetricsService, logger *zap.Logger) *GenerationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationWorker{repo: repo, generator: generator, metrics: metrics, logger: logger}
}

// Handle processes a queue job.
func (w *GenerationWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	queued := models.GenerationJobQueued
	processing := models.GenerationJobProcessing
	progress := 0
	started, err := w.repo.Update(ctx, job.ID, repository.UpdateGenerationJobParams{
		Status:       &processing,
		Progress:     &progress,
		OnlyIfStatus: &queued,
	})
	if err != nil {
		return err
	}
	if !started {
		w.logger.Info("generation job skipped", zap.String("job_id", job.ID), zap.String("status", string(record.Status)))
		return nil
	}
	w.metrics.TrackJob(1)
	defer w.metrics.TrackJob(-1)

	report := func(percent int) {
		// Progress is advisory; the job context may already be cancelled.
		if _, err := w.repo.Update(context.WithoutCancel(ctx), job.ID, repository.UpdateGenerationJobParams{Progress: &percent}); err != nil {
			w.logger.Debug("progress update failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}

	result, runErr := w.run(ctx, record, report)
	persistCtx := context.WithoutCancel(ctx)
	if runErr == nil && result != nil && !result.Success && ctx.Err() != nil {
		runErr = jobs.ErrJobCancelled
	}
	if runErr != nil {
		status := models.GenerationJobFailed
		if errors.Is(runErr, jobs.ErrJobCancelled) || errors.Is(runErr, context.Canceled) {
			status = models.GenerationJobCancelled
			runErr = jobs.ErrJobCancelled
		}
		var encoded *types.JSONText
		if result != nil {
			if raw, err := json.Marshal(result); err == nil {
				text := types.JSONText(raw)
				encoded = &text
			}
		}
		w.complete(persistCtx, job.ID, status, encoded, runErr.Error())
		if status == models.GenerationJobCancelled {
			return runErr
		}
		// Generation errors are deterministic; retrying would repeat them.
		return nil
	}

	raw, err := json.Marshal(result)
	if err != nil {
		w.complete(persistCtx, job.ID, models.GenerationJobFailed, nil, err.Error())
		return nil
	}
	text := types.JSONText(raw)
	w.complete(persistCtx, job.ID, models.GenerationJobFinished, &text, "")
	return nil
}

func (w *GenerationWorker) run(ctx context.Context, record *models.GenerationJob, progress ProgressFunc) (*dto.GenerationResult, error) {
	var req dto.GenerationJobRequest
	if err := record.Request.Unmarshal(&req); err != nil {
		return nil, fmt.Errorf("decode job request: %w", err)
	}
	switch record.Kind {
	case models.GenerationJobIntelligent:
		return w.generator.GenerateIntelligentWithProgress(ctx, dto.IntelligentGenerationRequest{
			Generation: req.Generation,
			Strategy:   req.Strategy,
			Confirmed:  req.Confirmed,
		}, progress)
	default:
		return w.generator.GenerateWithProgress(ctx, req.Generation, progress)
	}
}

func (w *GenerationWorker) complete(ctx context.Context, id string, status models.GenerationJobStatus, result *types.JSONText, message string) {
	progress := 100
	now := time.Now().UTC()
	if _, err := w.repo.Update(ctx, id, repository.UpdateGenerationJobParams{
		Status:       &status,
		Progress:     &progress,
		Result:       result,
		ErrorMessage: &message,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Warn("failed to complete generation job", zap.String("job_id", id), zap.Error(err))
	}
}
