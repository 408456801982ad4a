package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// GenerationJobKind selects which pipeline an asynchronous job runs.
type GenerationJobKind string

const (
	GenerationJobStandard    GenerationJobKind = "STANDARD"
	GenerationJobIntelligent GenerationJobKind = "INTELLIGENT"
)

// GenerationJobStatus captures background job lifecycle states.
type GenerationJobStatus string

const (
	GenerationJobQueued     GenerationJobStatus = "QUEUED"
	GenerationJobProcessing GenerationJobStatus = "PROCESSING"
	GenerationJobFinished   GenerationJobStatus = "FINISHED"
	GenerationJobFailed     GenerationJobStatus = "FAILED"
	GenerationJobCancelled  GenerationJobStatus = "CANCELLED"
)

// Terminal reports whether the job will not change state anymore.
func (s GenerationJobStatus) Terminal() bool {
	return s == GenerationJobFinished || s == GenerationJobFailed || s == GenerationJobCancelled
}

// GenerationJob persisted asynchronous generation request.
type GenerationJob struct {
	ID           string              `db:"id" json:"id"`
	Kind         GenerationJobKind   `db:"kind" json:"kind"`
	PeriodID     string              `db:"period_id" json:"periodId"`
	Request      types.JSONText      `db:"request" json:"request"`
	Status       GenerationJobStatus `db:"status" json:"status"`
	Progress     int                 `db:"progress" json:"progress"`
	Result       types.JSONText      `db:"result" json:"result,omitempty"`
	CreatedBy    string              `db:"created_by" json:"createdBy"`
	CreatedAt    time.Time           `db:"created_at" json:"createdAt"`
	FinishedAt   *time.Time          `db:"finished_at" json:"finishedAt,omitempty"`
	ErrorMessage *string             `db:"error_message" json:"errorMessage,omitempty"`
}
