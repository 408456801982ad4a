package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-api/internal/dto"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
	"github.com/noah-isme/timetable-api/pkg/response"
)

type generationJobService interface {
	CreateJob(ctx context.Context, req dto.GenerationJobRequest, actorID string) (*dto.GenerationJobResponse, error)
	GetStatus(ctx context.Context, id string) (*dto.GenerationJobResponse, error)
	Cancel(ctx context.Context, id string) (*dto.GenerationJobResponse, error)
}

// GenerationJobHandler exposes asynchronous generation endpoints.
type GenerationJobHandler struct {
	service generationJobService
}

// NewGenerationJobHandler constructs the handler.
func NewGenerationJobHandler(svc generationJobService) *GenerationJobHandler {
	return &GenerationJobHandler{service: svc}
}

// Create godoc
// @Summary Queue a generation run
// @Description Returns immediately with a job id; poll the status endpoint for progress and result.
// @Tags Schedule Generation
// @Accept json
// @Produce json
// @Param payload body dto.GenerationJobRequest true "Job request"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /schedule-generation/jobs [post]
func (h *GenerationJobHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.GenerationJobRequest
	if !bindJSON(c, &req, "invalid generation job payload") {
		return
	}
	job, err := h.service.CreateJob(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// Status godoc
// @Summary Generation job status
// @Tags Schedule Generation
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedule-generation/jobs/{id} [get]
func (h *GenerationJobHandler) Status(c *gin.Context) {
	job, err := h.service.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, job)
}

// Cancel godoc
// @Summary Cancel a queued or running generation job
// @Description Sessions committed before a running job observes cancellation are kept.
// @Tags Schedule Generation
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedule-generation/jobs/{id}/cancel [post]
func (h *GenerationJobHandler) Cancel(c *gin.Context) {
	job, err := h.service.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, job)
}
