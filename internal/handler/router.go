package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	internalmiddleware "github.com/noah-isme/timetable-api/internal/middleware"
	"github.com/noah-isme/timetable-api/internal/models"
)

// Routes bundles the handlers and guards mounted under the API prefix.
// Nil handlers leave their routes unmounted.
type Routes struct {
	Auth      *AuthHandler
	Timetable *TimetableHandler
	Jobs      *GenerationJobHandler
	Exports   *ExportHandler

	Tokens internalmiddleware.TokenValidator
	Audit  internalmiddleware.AuditRecorder
	Logger *zap.Logger
}

// Register mounts the API on the router group.
func (r Routes) Register(api *gin.RouterGroup) {
	secured := internalmiddleware.JWT(r.Tokens)
	writers := internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleScheduler)
	readers := internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleScheduler, models.RoleViewer)
	admins := internalmiddleware.RequireRoles(models.RoleAdmin)
	audit := func(action string) gin.HandlerFunc {
		return internalmiddleware.Audit(r.Audit, r.Logger, action)
	}

	if r.Auth != nil {
		auth := api.Group("/auth")
		auth.POST("/login", r.Auth.Login)
		auth.POST("/refresh", r.Auth.Refresh)
		auth.POST("/logout", secured, r.Auth.Logout)
		auth.GET("/me", secured, r.Auth.Me)
	}

	sg := api.Group("/schedule-generation")
	if r.Exports != nil {
		// Signed tokens authorise downloads; no bearer token is required.
		sg.GET("/export/download/:token", r.Exports.Download)
	}

	protected := sg.Group("", secured)
	if t := r.Timetable; t != nil {
		protected.POST("/generate", writers, audit(models.AuditActionTimetableGenerate), t.Generate)
		protected.POST("/generate-group/:groupId", writers, audit(models.AuditActionTimetableGenerate), t.GenerateForGroup)
		protected.POST("/generate-career/:careerId", writers, audit(models.AuditActionTimetableGenerate), t.GenerateForCareer)
		protected.POST("/generate-cycle/:cycleId", writers, audit(models.AuditActionTimetableGenerate), t.GenerateForCycle)
		protected.POST("/generate-modality/:modalityId", writers, audit(models.AuditActionTimetableGenerate), t.GenerateForModality)
		protected.POST("/generate-intelligent", writers, audit(models.AuditActionTimetableGenerate), t.GenerateIntelligent)
		protected.POST("/cleanup", writers, audit(models.AuditActionTimetableCleanup), t.Cleanup)
		protected.DELETE("/clear-period/:periodId", admins, audit(models.AuditActionTimetableClear), t.ClearPeriod)

		protected.POST("/preview", readers, t.Preview)
		protected.POST("/validate", readers, t.Validate)
		protected.POST("/analyze-existing", readers, t.AnalyzeExisting)
		protected.GET("/default-config", readers, t.DefaultConfig)
		protected.GET("/config-templates", readers, t.ConfigTemplates)
		protected.GET("/period-status/:periodId", readers, t.PeriodStatus)
		protected.GET("/system-capacity/:periodId", readers, t.SystemCapacity)
		protected.GET("/conflicts/:periodId", readers, t.Conflicts)
		protected.GET("/utilization/:periodId", readers, t.Utilization)
	}
	if j := r.Jobs; j != nil {
		protected.POST("/jobs", writers, audit(models.AuditActionGenerationJobStart), j.Create)
		protected.GET("/jobs/:id", readers, j.Status)
		protected.POST("/jobs/:id/cancel", writers, j.Cancel)
	}
	if r.Exports != nil {
		protected.POST("/export/:format", readers, r.Exports.Export)
	}
}
