package models

import "time"

// Audited actions.
const (
	AuditActionLogin              = "LOGIN"
	AuditActionLogout             = "LOGOUT"
	AuditActionTimetableGenerate  = "TIMETABLE_GENERATE"
	AuditActionTimetableCleanup   = "TIMETABLE_CLEANUP"
	AuditActionTimetableClear     = "TIMETABLE_CLEAR_PERIOD"
	AuditActionGenerationJobStart = "GENERATION_JOB_START"
)

// AuditLog is an audit trail record of an operator action.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"userId,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resourceId,omitempty"`
	OldValues  []byte    `db:"old_values" json:"oldValues,omitempty"`
	NewValues  []byte    `db:"new_values" json:"newValues,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ipAddress"`
	UserAgent  string    `db:"user_agent" json:"userAgent"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
