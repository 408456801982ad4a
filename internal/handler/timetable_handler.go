package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-api/internal/dto"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
	"github.com/noah-isme/timetable-api/pkg/response"
)

type timetableService interface {
	Generate(ctx context.Context, req dto.GenerationRequest) (*dto.GenerationResult, error)
	GenerateIntelligent(ctx context.Context, req dto.IntelligentGenerationRequest) (*dto.GenerationResult, error)
	Preview(ctx context.Context, req dto.PreviewRequest) (*dto.SchedulePreview, error)
	Validate(ctx context.Context, req dto.GenerationRequest) (*dto.ValidationResponse, error)
	AnalyzeExisting(ctx context.Context, req dto.PreviewRequest) (*dto.ExistingScheduleAnalysis, error)
	Cleanup(ctx context.Context, req dto.CleanupRequest) (*dto.CleanupResult, error)
	ClearPeriod(ctx context.Context, periodID string, confirmed bool) (*dto.CleanupResult, error)
	PeriodStatus(ctx context.Context, periodID string) (*dto.PeriodStatus, error)
	SystemCapacity(ctx context.Context, periodID string) (*dto.SystemCapacity, error)
	DetectConflicts(ctx context.Context, periodID string) ([]dto.ScheduleConflict, error)
	UtilizationReport(ctx context.Context, periodID string) (*dto.UtilizationReport, error)
	DefaultConfig() dto.GenerationDefaults
	ConfigTemplates() []dto.ConfigTemplate
}

// TimetableHandler exposes the schedule generation endpoints.
type TimetableHandler struct {
	service timetableService
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(svc timetableService) *TimetableHandler {
	return &TimetableHandler{service: svc}
}

// Generate godoc
// @Summary Generate timetable sessions
// @Description Runs the greedy allocator for the requested scope and persists accepted sessions.
// @Tags Schedule Generation
// @Accept json
// @Produce json
// @Param payload body dto.GenerationRequest true "Generation request"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /schedule-generation/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerationRequest
	if !bindJSON(c, &req, "invalid generation payload") {
		return
	}
	h.generate(c, req)
}

// GenerateForGroup godoc
// @Summary Generate timetable for one student group
// @Tags Schedule Generation
// @Accept json
// @Produce json
// @Param groupId path string true "Student group ID"
// @Param payload body dto.GenerationRequest true "Generation knobs; scope fields are ignored"
// @Success 200 {object} response.Envelope
// @Router /schedule-generation/generate-group/{groupId} [post]
func (h *TimetableHandler) GenerateForGroup(c *gin.Context) {
	h.generateScoped(c, func(req *dto.GenerationRequest, id string) { req.GroupIDs = []string{id} }, "groupId")
}

// GenerateForCareer godoc
// @Summary Generate timetable for every group of a career
// @Tags Schedule Generation
// @Accept json
// @Produce json
// @Param careerId path string true "Career ID"
// @Param payload body dto.GenerationRequest true "Generation knobs; scope fields are ignored"
// @Success 200 {object} response.Envelope
// @Router /schedule-generation/generate-career/{careerId} [post]
func (h *TimetableHandler) GenerateForCareer(c *gin.Context) {
	h.generateScoped(c, func(req *dto.GenerationRequest, id string) { req.CareerID = id }, "careerId")
}

// GenerateForCycle godoc
// @Summary Generate timetable for every group of a cycle
// @Tags Schedule Generation
// @Accept json
// @Produce json
// @Param cycleId path string true "Cycle ID"
// @Param payload body dto.GenerationRequest true "Generation knobs; scope fields are ignored"
// @Success 200 {object} response.Envelope
// @Router /schedule-generation/generate-cycle/{cycleId} [post]
func (h *TimetableHandler) GenerateForCycle(c *gin.Context) {
	h.generateScoped(c, func(req *dto.GenerationRequest, id string) { req.CycleID = id }, "cycleId")
}

// GenerateForModality godoc
// @Summary Generate timetable for every group of a modality
// @Tags Schedule Generation
// @Accept json
// @Produce json
// @Param modalityId path string true "Modality ID"
// @Param payload body dto.GenerationRequest true "Generation knobs; scope fields are ignored"
// @Success 200 {object} response.Envelope
// @Router /schedule-generation/generate-modality/{modalityId} [post]
func (h *TimetableHandler) GenerateForModality(c *gin.Context) {
	h.generateScoped(c, func(req *dto.GenerationRequest, id string) { req.ModalityID = id }, "modalityId")
}

// GenerateIntelligent godoc
// @Summary Analyse, clean up and regenerate
// @Description Applies the chosen (or recommended) cleanup strategy before generating. Requires confirmed=true.
// @Tags Schedule Generation
// @Accept json
// @Produce json
// @Param payload body dto.IntelligentGenerationRequest true "Intelligent generation request"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /schedule-generation/generate-intelligent [post]
func (h *TimetableHandler) GenerateIntelligent(c *gin.Context) {
	var req dto.IntelligentGenerationRequest
	if !bindJSON(c, &req, "invalid intelligent generation payload") {
		return
	}
	result, err := h.service.GenerateIntelligent(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Preview godoc
// @Summary Preview requirements and feasibility
// @Description Never writes sessions.
// @Tags Schedule Generation
// @Accept json
// @Produce json
// @Param payload body dto.PreviewRequest true "Preview scope"
// @Success 200 {object} response.Envelope
// @Router /schedule-generation/preview [post]
func (h *TimetableHandler) Preview(c *gin.Context) {
	var req dto.PreviewRequest
	if !bindJSON(c, &req, "invalid preview payload") {
		return
	}
	preview, err := h.service.Preview(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, preview)
}

// Validate godoc
// @Summary Validate a generation request
// @Description Reports configuration errors and feasibility warnings without generating.
// @Tags Schedule Generation
// @Accept json
// @Produce json
// @Param payload body dto.GenerationRequest true "Generation request"
// @Success 200 {object} response.Envelope
// @Router /schedule-generation/validate [post]
func (h *TimetableHandler) Validate(c *gin.Context) {
	var req dto.GenerationRequest
	if !bindJSON(c, &req, "invalid generation payload") {
		return
	}
	result, err := h.service.Validate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// AnalyzeExisting godoc
// @Summary Analyse existing sessions of a scope
// @Tags Schedule Generation
// @Accept json
// @Produce json
// @Param payload body dto.PreviewRequest true "Analysis scope"
// @Success 200 {object} response.Envelope
// @Router /schedule-generation/analyze-existing [post]
func (h *TimetableHandler) AnalyzeExisting(c *gin.Context) {
	var req dto.PreviewRequest
	if !bindJSON(c, &req, "invalid analysis payload") {
		return
	}
	analysis, err := h.service.AnalyzeExisting(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, analysis)
}

// Cleanup godoc
// @Summary Apply a cleanup strategy to existing sessions
// @Tags Schedule Generation
// @Accept json
// @Produce json
// @Param payload body dto.CleanupRequest true "Cleanup request"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /schedule-generation/cleanup [post]
func (h *TimetableHandler) Cleanup(c *gin.Context) {
	var req dto.CleanupRequest
	if !bindJSON(c, &req, "invalid cleanup payload") {
		return
	}
	result, err := h.service.Cleanup(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// ClearPeriod godoc
// @Summary Delete every session of a period
// @Tags Schedule Generation
// @Produce json
// @Param periodId path string true "Academic period ID"
// @Param confirm query bool true "Must be true"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /schedule-generation/clear-period/{periodId} [delete]
func (h *TimetableHandler) ClearPeriod(c *gin.Context) {
	confirmed, _ := strconv.ParseBool(c.Query("confirm"))
	result, err := h.service.ClearPeriod(c.Request.Context(), c.Param("periodId"), confirmed)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// PeriodStatus godoc
// @Summary Summarise the stored schedule of a period
// @Tags Schedule Generation
// @Produce json
// @Param periodId path string true "Academic period ID"
// @Success 200 {object} response.Envelope
// @Router /schedule-generation/period-status/{periodId} [get]
func (h *TimetableHandler) PeriodStatus(c *gin.Context) {
	status, err := h.service.PeriodStatus(c.Request.Context(), c.Param("periodId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, status)
}

// SystemCapacity godoc
// @Summary Describe the resource pool of a period
// @Tags Schedule Generation
// @Produce json
// @Param periodId path string true "Academic period ID"
// @Success 200 {object} response.Envelope
// @Router /schedule-generation/system-capacity/{periodId} [get]
func (h *TimetableHandler) SystemCapacity(c *gin.Context) {
	capacity, err := h.service.SystemCapacity(c.Request.Context(), c.Param("periodId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, capacity)
}

// Conflicts godoc
// @Summary Detect overlapping sessions in a period
// @Tags Schedule Generation
// @Produce json
// @Param periodId path string true "Academic period ID"
// @Success 200 {object} response.Envelope
// @Router /schedule-generation/conflicts/{periodId} [get]
func (h *TimetableHandler) Conflicts(c *gin.Context) {
	conflicts, err := h.service.DetectConflicts(c.Request.Context(), c.Param("periodId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflicts, map[string]interface{}{"count": len(conflicts)})
}

// Utilization godoc
// @Summary Resource utilisation and optimisation hints
// @Tags Schedule Generation
// @Produce json
// @Param periodId path string true "Academic period ID"
// @Success 200 {object} response.Envelope
// @Router /schedule-generation/utilization/{periodId} [get]
func (h *TimetableHandler) Utilization(c *gin.Context) {
	report, err := h.service.UtilizationReport(c.Request.Context(), c.Param("periodId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}

// DefaultConfig godoc
// @Summary Defaults applied to unset generation knobs
// @Tags Schedule Generation
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /schedule-generation/default-config [get]
func (h *TimetableHandler) DefaultConfig(c *gin.Context) {
	response.OK(c, h.service.DefaultConfig())
}

// ConfigTemplates godoc
// @Summary Named generation presets
// @Tags Schedule Generation
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /schedule-generation/config-templates [get]
func (h *TimetableHandler) ConfigTemplates(c *gin.Context) {
	response.OK(c, h.service.ConfigTemplates())
}

func (h *TimetableHandler) generateScoped(c *gin.Context, apply func(*dto.GenerationRequest, string), param string) {
	id := c.Param(param)
	if id == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, param+" is required"))
		return
	}
	var req dto.GenerationRequest
	if !bindJSON(c, &req, "invalid generation payload") {
		return
	}
	req.GroupIDs, req.CareerID, req.CycleID, req.ModalityID = nil, "", "", ""
	apply(&req, id)
	h.generate(c, req)
}

func (h *TimetableHandler) generate(c *gin.Context, req dto.GenerationRequest) {
	result, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

func bindJSON(c *gin.Context, target interface{}, message string) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}
