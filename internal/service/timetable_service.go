package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// ProgressFunc receives the completion percentage of a running generation.
type ProgressFunc func(percent int)

// TimetableServiceConfig tunes the generation engine.
type TimetableServiceConfig struct {
	Defaults       dto.GenerationDefaults
	MaxAttempts    int
	CapacityFactor float64
	CacheTTL       time.Duration
}

// TimetableService generates, analyses and reports on class timetables.
type TimetableService struct {
	catalog   timetableCatalog
	sessions  classSessionStore
	tx        txProvider
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       TimetableServiceConfig
	templates []dto.ConfigTemplate
}

// NewTimetableService wires the engine dependencies.
func NewTimetableService(
	catalog timetableCatalog,
	sessions classSessionStore,
	tx txProvider,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg TimetableServiceConfig,
) *TimetableService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Defaults.MaxHoursPerDay == 0 {
		cfg.Defaults = DefaultGenerationSettings()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.CapacityFactor <= 0 {
		cfg.CapacityFactor = defaultCapacityFactor
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	templates, err := loadConfigTemplates(generationTemplatesYAML)
	if err != nil {
		logger.Error("generation templates unavailable", zap.Error(err))
	}
	return &TimetableService{
		catalog:   catalog,
		sessions:  sessions,
		tx:        tx,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		templates: templates,
	}
}

// generationPlan is the validated input of a run with its catalog snapshot.
type generationPlan struct {
	request      dto.GenerationRequest
	opts         generationOptions
	snapshot     *catalogSnapshot
	requirements []dto.GroupRequirement
}

func (p *generationPlan) groupIDs() []string {
	ids := make([]string, 0, len(p.requirements))
	for _, g := range p.requirements {
		ids = append(ids, g.GroupID)
	}
	return ids
}

func (s *TimetableService) prepare(ctx context.Context, req dto.GenerationRequest) (*generationPlan, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err, "invalid generation payload")
	}
	opts, err := resolveGenerationOptions(req, s.cfg.Defaults, s.cfg.MaxAttempts)
	if err != nil {
		return nil, err
	}
	snap, err := s.loadSnapshot(ctx, groupFilterFor(req))
	if err != nil {
		return nil, err
	}
	if len(snap.groups) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no student groups match the requested scope")
	}
	return &generationPlan{
		request:      req,
		opts:         opts,
		snapshot:     snap,
		requirements: buildGroupRequirements(snap),
	}, nil
}

func (s *TimetableService) loadSnapshot(ctx context.Context, filter models.GroupFilter) (*catalogSnapshot, error) {
	start := time.Now()
	snap, err := loadCatalogSnapshot(ctx, s.catalog, filter)
	s.metrics.ObserveDBQuery("timetable_catalog_snapshot", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable catalog")
	}
	return snap, nil
}

// Generate allocates sessions for the requested scope, completing any existing schedule.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerationRequest) (*dto.GenerationResult, error) {
	return s.GenerateWithProgress(ctx, req, nil)
}

// GenerateWithProgress is Generate reporting progress after each course pass.
func (s *TimetableService) GenerateWithProgress(ctx context.Context, req dto.GenerationRequest, progress ProgressFunc) (*dto.GenerationResult, error) {
	plan, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, plan, "standard", false, progress)
}

// GenerateIntelligent analyses existing sessions, applies a cleanup strategy and generates.
func (s *TimetableService) GenerateIntelligent(ctx context.Context, req dto.IntelligentGenerationRequest) (*dto.GenerationResult, error) {
	return s.GenerateIntelligentWithProgress(ctx, req, nil)
}

// GenerateIntelligentWithProgress is GenerateIntelligent reporting progress.
func (s *TimetableService) GenerateIntelligentWithProgress(ctx context.Context, req dto.IntelligentGenerationRequest, progress ProgressFunc) (*dto.GenerationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err, "invalid intelligent generation payload")
	}
	if !req.Confirmed {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "intelligent generation may delete sessions and requires confirmation")
	}
	plan, err := s.prepare(ctx, req.Generation)
	if err != nil {
		return nil, err
	}

	strategy := req.Strategy
	if strategy == "" {
		existing, err := s.listSessions(ctx, plan.opts.PeriodID, plan.groupIDs())
		if err != nil {
			return nil, err
		}
		period, err := s.listSessions(ctx, plan.opts.PeriodID, nil)
		if err != nil {
			return nil, err
		}
		strategy = analyzeExistingSchedule(plan.snapshot, plan.requirements, existing, period).RecommendedStrategy
	}

	cleanup, err := s.applyCleanup(ctx, plan.opts.PeriodID, plan.groupIDs(), strategy)
	if err != nil {
		return nil, err
	}
	result, err := s.execute(ctx, plan, "intelligent", true, progress)
	if err != nil {
		return nil, err
	}
	result.Message = fmt.Sprintf("%s (%s)", result.Message, strategy.Description())
	result.Cleanup = cleanup
	return result, nil
}

// execute runs the allocation in one transaction. Sessions committed before a fatal engine
// error are kept; a failed transaction commit discards the whole run.
func (s *TimetableService) execute(ctx context.Context, plan *generationPlan, mode string, withExisting bool, progress ProgressFunc) (*dto.GenerationResult, error) {
	started := time.Now()
	runID := uuid.NewString()

	existing, err := s.listSessions(ctx, plan.opts.PeriodID, nil)
	if err != nil {
		return nil, err
	}
	state := newGenerationContext(plan.opts, plan.requirements)
	seedExistingSessions(state, plan.snapshot, existing)

	s.logger.Info("timetable generation started",
		zap.String("run_id", runID),
		zap.String("mode", mode),
		zap.String("period_id", plan.opts.PeriodID),
		zap.Int("groups", len(plan.requirements)),
		zap.Int("existing_sessions", len(existing)),
	)

	txCtx := context.WithoutCancel(ctx)
	tx, err := s.tx.BeginTxx(txCtx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin generation transaction")
	}

	run := newAllocationRun(runID, state, plan.snapshot, plan.opts, txSessionWriter{store: s.sessions, exec: tx}, s.logger)
	if progress != nil {
		run.progress = func(done, total int) {
			if total > 0 {
				progress(done * 100 / total)
			}
		}
	}
	fatal := run.Execute(ctx)
	if fatal != nil {
		s.logger.Warn("timetable generation aborted", zap.String("run_id", runID), zap.Error(fatal))
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		s.metrics.ObserveGeneration(mode, false, 0, 0, nil, time.Since(started))
		return nil, appErrors.Wrap(err, appErrors.ErrGenerationFailed.Code, appErrors.ErrGenerationFailed.Status, "failed to persist generated sessions")
	}
	s.invalidatePeriod(ctx, plan.opts.PeriodID)

	result := buildGenerationResult(state, runID, time.Since(started), fatal, withExisting)
	warningTypes := make([]string, 0, len(result.Warnings))
	for _, w := range result.Warnings {
		warningTypes = append(warningTypes, w.Type)
	}
	s.metrics.ObserveGeneration(mode, result.Success, len(state.NewSessions()), result.Summary.RemainingHours, warningTypes, time.Since(started))
	s.logger.Info("timetable generation finished",
		zap.String("run_id", runID),
		zap.Bool("success", result.Success),
		zap.Int("new_sessions", len(state.NewSessions())),
		zap.Int("remaining_hours", result.Summary.RemainingHours),
		zap.Int("warnings", len(result.Warnings)),
		zap.Int64("duration_ms", result.ExecutionTimeMs),
	)
	return &result, nil
}

// seedExistingSessions feeds stored sessions into the run: target groups keep theirs,
// other groups only block teachers and rooms.
func seedExistingSessions(state *generationContext, snap *catalogSnapshot, existing []models.ClassSession) {
	for _, session := range existing {
		if _, target := state.groupIndex[session.StudentGroupID]; target {
			if committed, ok := snap.toCommitted(session); ok {
				state.SeedExistingSession(committed)
			}
			continue
		}
		hours := snap.SessionHours(session.TeachingHourIDs)
		if len(hours) == 0 {
			continue
		}
		state.SeedExternalBooking(session.TeacherID, session.LearningSpaceID, session.DayOfWeek, hours[0].TimeSlotID)
	}
}

// Preview estimates demand and feasibility without committing anything.
func (s *TimetableService) Preview(ctx context.Context, req dto.PreviewRequest) (*dto.SchedulePreview, error) {
	return readThrough(ctx, s.cache, cacheKey(req.PeriodID, "preview", req), s.cfg.CacheTTL, func() (dto.SchedulePreview, error) {
		plan, err := s.prepare(ctx, req.GenerationRequest())
		if err != nil {
			return dto.SchedulePreview{}, err
		}
		constraints := buildConstraints(plan.snapshot, plan.requirements, len(plan.opts.WorkingDays()))
		return dto.SchedulePreview{
			GroupRequirements: plan.requirements,
			Constraints:       constraints,
			Feasibility:       assessFeasibility(constraints, plan.requirements, s.cfg.CapacityFactor),
		}, nil
	})
}

// Validate checks a request and reports feasibility and existing sessions without generating.
func (s *TimetableService) Validate(ctx context.Context, req dto.GenerationRequest) (*dto.ValidationResponse, error) {
	resp := &dto.ValidationResponse{IsValid: true, Errors: []string{}}
	if err := s.validator.Struct(req); err != nil {
		resp.IsValid = false
		resp.Errors = append(resp.Errors, describeViolations(err)...)
		return resp, nil
	}
	opts, err := resolveGenerationOptions(req, s.cfg.Defaults, s.cfg.MaxAttempts)
	if err != nil {
		resp.IsValid = false
		resp.Errors = append(resp.Errors, appErrors.FromError(err).Message)
		return resp, nil
	}
	snap, err := s.loadSnapshot(ctx, groupFilterFor(req))
	if err != nil {
		return nil, err
	}
	if len(snap.groups) == 0 {
		resp.IsValid = false
		resp.Errors = append(resp.Errors, "no student groups match the requested scope")
		return resp, nil
	}
	requirements := buildGroupRequirements(snap)
	constraints := buildConstraints(snap, requirements, len(opts.WorkingDays()))
	feasibility := assessFeasibility(constraints, requirements, s.cfg.CapacityFactor)
	resp.Feasibility = &feasibility

	groupIDs := make([]string, 0, len(requirements))
	for _, g := range requirements {
		groupIDs = append(groupIDs, g.GroupID)
	}
	existing, err := s.listSessions(ctx, req.PeriodID, groupIDs)
	if err != nil {
		return nil, err
	}
	period, err := s.listSessions(ctx, req.PeriodID, nil)
	if err != nil {
		return nil, err
	}
	analysis := analyzeExistingSchedule(snap, requirements, existing, period)
	resp.ExistingAnalysis = &analysis
	return resp, nil
}

// AnalyzeExisting classifies the stored sessions of the scope and recommends a strategy.
func (s *TimetableService) AnalyzeExisting(ctx context.Context, req dto.PreviewRequest) (*dto.ExistingScheduleAnalysis, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err, "invalid analysis payload")
	}
	return readThrough(ctx, s.cache, cacheKey(req.PeriodID, "analysis", req), s.cfg.CacheTTL, func() (dto.ExistingScheduleAnalysis, error) {
		snap, err := s.loadSnapshot(ctx, groupFilterFor(req.GenerationRequest()))
		if err != nil {
			return dto.ExistingScheduleAnalysis{}, err
		}
		requirements := buildGroupRequirements(snap)
		groupIDs := make([]string, 0, len(requirements))
		for _, g := range requirements {
			groupIDs = append(groupIDs, g.GroupID)
		}

		var existing, period []models.ClassSession
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			existing, err = s.listSessions(gctx, req.PeriodID, groupIDs)
			return err
		})
		g.Go(func() (err error) {
			period, err = s.listSessions(gctx, req.PeriodID, nil)
			return err
		})
		if err := g.Wait(); err != nil {
			return dto.ExistingScheduleAnalysis{}, err
		}
		return analyzeExistingSchedule(snap, requirements, existing, period), nil
	})
}

// Cleanup applies a cleanup strategy to the sessions of the given groups.
func (s *TimetableService) Cleanup(ctx context.Context, req dto.CleanupRequest) (*dto.CleanupResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err, "invalid cleanup payload")
	}
	if !req.Confirmed {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "cleanup deletes sessions and requires confirmation")
	}
	return s.applyCleanup(ctx, req.PeriodID, req.GroupIDs, req.Strategy)
}

func (s *TimetableService) applyCleanup(ctx context.Context, periodID string, groupIDs []string, strategy dto.CleanupStrategy) (*dto.CleanupResult, error) {
	sessions, err := s.listSessions(ctx, periodID, groupIDs)
	if err != nil {
		return nil, err
	}
	plan := planCleanup(strategy, sessions)
	if !plan.DeleteAll && len(plan.SessionIDs) == 0 {
		return &plan.Result, nil
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin cleanup transaction")
	}
	var deleted int
	if plan.DeleteAll {
		deleted, err = s.sessions.DeleteByGroups(ctx, tx, periodID, groupIDs)
	} else {
		deleted, err = s.sessions.DeleteByIDs(ctx, tx, plan.SessionIDs)
	}
	if err != nil {
		_ = tx.Rollback()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete sessions")
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit cleanup")
	}
	plan.Result.DeletedSessions = deleted
	plan.Result.Details["sessionsDeleted"] = deleted
	s.invalidatePeriod(ctx, periodID)
	s.logger.Info("timetable cleanup applied",
		zap.String("period_id", periodID),
		zap.String("strategy", string(strategy)),
		zap.Int("deleted", deleted),
	)
	return &plan.Result, nil
}

// ClearPeriod deletes every session of a period.
func (s *TimetableService) ClearPeriod(ctx context.Context, periodID string, confirmed bool) (*dto.CleanupResult, error) {
	if periodID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "periodId is required")
	}
	if !confirmed {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "clearing a period requires confirmation")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	deleted, err := s.sessions.DeleteByPeriod(ctx, tx, periodID)
	if err != nil {
		_ = tx.Rollback()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear period")
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit period clear")
	}
	s.invalidatePeriod(ctx, periodID)
	return &dto.CleanupResult{
		DeletedSessions: deleted,
		Strategy:        dto.CleanupResetAll,
		Warnings:        []string{"All sessions of the period were removed"},
		Details:         map[string]int{"sessionsDeleted": deleted},
	}, nil
}

// PeriodStatus summarises the stored schedule of a period.
func (s *TimetableService) PeriodStatus(ctx context.Context, periodID string) (*dto.PeriodStatus, error) {
	return readThrough(ctx, s.cache, cacheKey(periodID, "status", nil), s.cfg.CacheTTL, func() (dto.PeriodStatus, error) {
		snap, sessions, err := s.loadPeriod(ctx, periodID)
		if err != nil {
			return dto.PeriodStatus{}, err
		}
		return buildPeriodStatus(periodID, snap, sessions), nil
	})
}

// SystemCapacity describes teachers, rooms and time available to a period.
func (s *TimetableService) SystemCapacity(ctx context.Context, periodID string) (*dto.SystemCapacity, error) {
	if periodID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "periodId is required")
	}
	snap, err := s.loadSnapshot(ctx, models.GroupFilter{PeriodID: periodID})
	if err != nil {
		return nil, err
	}
	capacity := buildSystemCapacity(periodID, snap, buildGroupRequirements(snap))
	return &capacity, nil
}

// DetectConflicts lists overlapping stored sessions of a period.
func (s *TimetableService) DetectConflicts(ctx context.Context, periodID string) ([]dto.ScheduleConflict, error) {
	snap, sessions, err := s.loadPeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}
	return detectSessionConflicts(snap, sessions), nil
}

// UtilizationReport lists resource loads and optimisation hints of a period.
func (s *TimetableService) UtilizationReport(ctx context.Context, periodID string) (*dto.UtilizationReport, error) {
	return readThrough(ctx, s.cache, cacheKey(periodID, "utilization", nil), s.cfg.CacheTTL, func() (dto.UtilizationReport, error) {
		snap, sessions, err := s.loadPeriod(ctx, periodID)
		if err != nil {
			return dto.UtilizationReport{}, err
		}
		return buildUtilizationReport(periodID, snap, sessions), nil
	})
}

// PeriodSessions returns the named sessions of a period, optionally limited to groups.
func (s *TimetableService) PeriodSessions(ctx context.Context, periodID string, groupIDs []string) ([]dto.GeneratedSession, error) {
	if periodID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "periodId is required")
	}
	var (
		snap     *catalogSnapshot
		sessions []models.ClassSession
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap, err = s.loadSnapshot(gctx, models.GroupFilter{PeriodID: periodID, GroupIDs: groupIDs})
		return err
	})
	g.Go(func() (err error) {
		sessions, err = s.listSessions(gctx, periodID, groupIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	committed := committedFromPeriod(snap, sessions)
	out := make([]dto.GeneratedSession, 0, len(committed))
	for _, c := range committed {
		out = append(out, c.GeneratedSession)
	}
	return out, nil
}

// DefaultConfig returns the knobs applied to unset request fields.
func (s *TimetableService) DefaultConfig() dto.GenerationDefaults {
	return s.cfg.Defaults
}

// ConfigTemplates returns the named generation presets.
func (s *TimetableService) ConfigTemplates() []dto.ConfigTemplate {
	out := make([]dto.ConfigTemplate, len(s.templates))
	copy(out, s.templates)
	return out
}

func (s *TimetableService) loadPeriod(ctx context.Context, periodID string) (*catalogSnapshot, []models.ClassSession, error) {
	if periodID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "periodId is required")
	}
	var (
		snap     *catalogSnapshot
		sessions []models.ClassSession
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap, err = s.loadSnapshot(gctx, models.GroupFilter{PeriodID: periodID})
		return err
	})
	g.Go(func() (err error) {
		sessions, err = s.listSessions(gctx, periodID, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return snap, sessions, nil
}

func (s *TimetableService) listSessions(ctx context.Context, periodID string, groupIDs []string) ([]models.ClassSession, error) {
	start := time.Now()
	sessions, err := s.sessions.ListByPeriod(ctx, periodID, groupIDs)
	s.metrics.ObserveDBQuery("class_sessions_by_period", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class sessions")
	}
	return sessions, nil
}

func (s *TimetableService) invalidatePeriod(ctx context.Context, periodID string) {
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("timetable:%s:*", periodID)); err != nil {
		s.logger.Warn("timetable cache invalidation failed", zap.String("period_id", periodID), zap.Error(err))
	}
}

func cacheKey(periodID, kind string, payload interface{}) string {
	if payload == nil {
		return fmt.Sprintf("timetable:%s:%s", periodID, kind)
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("timetable:%s:%s:%s", periodID, kind, hex.EncodeToString(sum[:8]))
}
