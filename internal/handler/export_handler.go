package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/service"
	"github.com/noah-isme/timetable-api/pkg/response"
)

type timetableExporter interface {
	Export(ctx context.Context, format dto.ExportFormat, req dto.ExportRequest) (*dto.ExportResponse, error)
	ResolveDownload(token string) (*service.ExportDownload, error)
}

// ExportHandler serves timetable exports.
type ExportHandler struct {
	service timetableExporter
}

// NewExportHandler constructs the handler.
func NewExportHandler(svc timetableExporter) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Export godoc
// @Summary Export a period timetable
// @Description Renders the sessions as csv, pdf, xlsx or ics and returns a signed download URL.
// @Tags Exports
// @Accept json
// @Produce json
// @Param format path string true "csv, pdf, xlsx or ics"
// @Param payload body dto.ExportRequest true "Export scope"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /schedule-generation/export/{format} [post]
func (h *ExportHandler) Export(c *gin.Context) {
	var req dto.ExportRequest
	if !bindJSON(c, &req, "invalid export payload") {
		return
	}
	format := dto.ExportFormat(strings.ToLower(c.Param("format")))
	result, err := h.service.Export(c.Request.Context(), format, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download an export through its signed token
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /schedule-generation/export/download/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	download, err := h.service.ResolveDownload(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	c.Header("Content-Type", download.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	c.Header("Cache-Control", "private, max-age=60")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, download.File); err != nil {
		_ = c.Error(err)
	}
}
