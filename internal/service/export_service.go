package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/dto"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
	"github.com/noah-isme/timetable-api/pkg/export"
	"github.com/noah-isme/timetable-api/pkg/storage"
)

type periodSessionSource interface {
	PeriodSessions(ctx context.Context, periodID string, groupIDs []string) ([]dto.GeneratedSession, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type timetableRenderer interface {
	Render(data export.Timetable) ([]byte, error)
}

var exportContentTypes = map[dto.ExportFormat]string{
	dto.ExportFormatCSV:  "text/csv",
	dto.ExportFormatPDF:  "application/pdf",
	dto.ExportFormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	dto.ExportFormatICS:  "text/calendar",
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	Location        *time.Location
	CalendarWeeks   int
}

// ExportDownload aggregates resolved download data.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// ExportService renders period timetables and serves them through signed links.
type ExportService struct {
	sessions  periodSessionSource
	storage   fileStorage
	renderers map[dto.ExportFormat]timetableRenderer
	signer    *storage.DownloadSigner
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService with the default renderers.
func NewExportService(sessions periodSessionSource, files fileStorage, signer *storage.DownloadSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		sessions: sessions,
		storage:  files,
		renderers: map[dto.ExportFormat]timetableRenderer{
			dto.ExportFormatCSV:  export.NewCSVExporter(),
			dto.ExportFormatPDF:  export.NewPDFExporter(),
			dto.ExportFormatXLSX: export.NewXLSXExporter(),
			dto.ExportFormatICS:  export.NewICSExporter(cfg.Location, cfg.CalendarWeeks),
		},
		signer:    signer,
		validator: NewValidator(),
		logger:    logger,
		cfg:       cfg,
	}
}

// WithRenderer overrides the renderer of a format.
func (s *ExportService) WithRenderer(format dto.ExportFormat, renderer timetableRenderer) *ExportService {
	s.renderers[format] = renderer
	return s
}

// Export renders the requested sessions and returns a signed download link.
func (s *ExportService) Export(ctx context.Context, format dto.ExportFormat, req dto.ExportRequest) (*dto.ExportResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err, "invalid export payload")
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	sessions, err := s.sessions.PeriodSessions(ctx, req.PeriodID, req.GroupIDs)
	if err != nil {
		return nil, err
	}

	data := export.Timetable{
		Title:    fmt.Sprintf("Timetable %s", req.PeriodID),
		Sessions: make([]export.Session, 0, len(sessions)),
	}
	for _, gs := range sessions {
		data.Sessions = append(data.Sessions, exportSession(gs))
	}
	payload, err := renderer.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	exportID := uuid.NewString()
	relPath, err := s.storage.Save(s.buildFilename(req.PeriodID, exportID, format), payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Sign(exportID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Info("timetable exported",
		zap.String("period_id", req.PeriodID),
		zap.String("format", string(format)),
		zap.Int("sessions", len(sessions)),
	)
	return &dto.ExportResponse{
		Format:    format,
		URL:       fmt.Sprintf("%s/schedule-generation/export/download/%s", prefix, token),
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
		Sessions:  len(sessions),
	}, nil
}

// ResolveDownload validates a token and opens the stored export file.
func (s *ExportService) ResolveDownload(token string) (*ExportDownload, error) {
	claims, err := s.signer.Verify(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	relPath := claims.File
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
	}
	format := dto.ExportFormat(strings.TrimPrefix(filepath.Ext(relPath), "."))
	contentType, ok := exportContentTypes[format]
	if !ok {
		contentType = "application/octet-stream"
	}
	return &ExportDownload{
		File:        file,
		Filename:    filepath.Base(relPath),
		ContentType: contentType,
		ExpiresAt:   claims.ExpiresAt,
	}, nil
}

// Cleanup removes files older than ttl (defaults to the configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *ExportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := s.Cleanup(0)
				if err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
					continue
				}
				if len(deleted) > 0 {
					s.logger.Info("expired exports removed", zap.Int("count", len(deleted)))
				}
			}
		}
	}()
}

func (s *ExportService) buildFilename(periodID, exportID string, format dto.ExportFormat) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("timetable_%s_%s_%s.%s", sanitizeFilename(periodID), timestamp, exportID[:8], format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func exportSession(gs dto.GeneratedSession) export.Session {
	start, end := "", ""
	if n := len(gs.TeachingHours); n > 0 {
		start, _, _ = strings.Cut(gs.TeachingHours[0], "-")
		_, end, _ = strings.Cut(gs.TeachingHours[n-1], "-")
	}
	return export.Session{
		ID:          gs.ID,
		Group:       gs.GroupName,
		Course:      gs.CourseName,
		SessionType: string(gs.SessionType),
		Teacher:     gs.TeacherName,
		Space:       gs.LearningSpaceName,
		Day:         string(gs.DayOfWeek),
		DayIndex:    gs.DayOfWeek.Index(),
		Start:       start,
		End:         end,
		Hours:       len(gs.TeachingHourIDs),
	}
}
