package dto

import (
	"github.com/noah-isme/timetable-api/internal/models"
)

// GenerationRequest configures one timetable generation run. Unset knobs take the configured defaults.
type GenerationRequest struct {
	PeriodID                  string           `json:"periodId" validate:"required"`
	ModalityID                string           `json:"modalityId,omitempty"`
	CareerID                  string           `json:"careerId,omitempty"`
	CycleID                   string           `json:"cycleId,omitempty"`
	GroupIDs                  []string         `json:"groupIds,omitempty" validate:"omitempty,dive,required"`
	ExcludedDays              []models.Weekday `json:"excludedDays,omitempty" validate:"omitempty,dive,oneof=MONDAY TUESDAY WEDNESDAY THURSDAY FRIDAY SATURDAY SUNDAY"`
	PreferredTimeSlotIDs      []string         `json:"preferredTimeSlotIds,omitempty"`
	MaxHoursPerDay            *int             `json:"maxHoursPerDay,omitempty" validate:"omitempty,min=1,max=16"`
	MinHoursPerDay            *int             `json:"minHoursPerDay,omitempty" validate:"omitempty,min=0,max=16"`
	MaxConsecutiveHours       *int             `json:"maxConsecutiveHours,omitempty" validate:"omitempty,min=1,max=12"`
	DistributeEvenly          *bool            `json:"distributeEvenly,omitempty"`
	RespectTeacherContinuity  *bool            `json:"respectTeacherContinuity,omitempty"`
	AvoidTimeGaps             *bool            `json:"avoidTimeGaps,omitempty"`
	PrioritizeLabsAfterTheory *bool            `json:"prioritizeLabsAfterTheory,omitempty"`
	PreferredSlotWeight       *float64         `json:"preferredSlotWeight,omitempty"`
}

// HasScope reports whether at least one scope filter is present.
func (r GenerationRequest) HasScope() bool {
	return r.ModalityID != "" || r.CareerID != "" || r.CycleID != "" || len(r.GroupIDs) > 0
}

// PreviewRequest mirrors the scope part of a generation request.
type PreviewRequest struct {
	PeriodID     string           `json:"periodId" validate:"required"`
	ModalityID   string           `json:"modalityId,omitempty"`
	CareerID     string           `json:"careerId,omitempty"`
	CycleID      string           `json:"cycleId,omitempty"`
	GroupIDs     []string         `json:"groupIds,omitempty" validate:"omitempty,dive,required"`
	ExcludedDays []models.Weekday `json:"excludedDays,omitempty" validate:"omitempty,dive,oneof=MONDAY TUESDAY WEDNESDAY THURSDAY FRIDAY SATURDAY SUNDAY"`
}

// GenerationRequest widens the preview scope into a generation request with defaults.
func (r PreviewRequest) GenerationRequest() GenerationRequest {
	return GenerationRequest{
		PeriodID:     r.PeriodID,
		ModalityID:   r.ModalityID,
		CareerID:     r.CareerID,
		CycleID:      r.CycleID,
		GroupIDs:     r.GroupIDs,
		ExcludedDays: r.ExcludedDays,
	}
}

// CleanupStrategy enumerates how existing sessions are treated before regeneration.
type CleanupStrategy string

const (
	CleanupResetAll         CleanupStrategy = "RESET_ALL"
	CleanupSelective        CleanupStrategy = "SELECTIVE_CLEANUP"
	CleanupCompleteExisting CleanupStrategy = "COMPLETE_EXISTING"
)

// Description is the human label appended to generation messages.
func (s CleanupStrategy) Description() string {
	switch s {
	case CleanupResetAll:
		return "existing sessions were reset before generation"
	case CleanupSelective:
		return "incomplete sessions were cleaned before generation"
	case CleanupCompleteExisting:
		return "existing sessions were kept and completed"
	default:
		return "no cleanup strategy applied"
	}
}

// CleanupRequest asks the planner to apply a strategy to existing sessions.
type CleanupRequest struct {
	PeriodID  string          `json:"periodId" validate:"required"`
	GroupIDs  []string        `json:"groupIds" validate:"required,min=1,dive,required"`
	Strategy  CleanupStrategy `json:"strategy" validate:"required,oneof=RESET_ALL SELECTIVE_CLEANUP COMPLETE_EXISTING"`
	Confirmed bool            `json:"confirmed"`
}

// IntelligentGenerationRequest couples a generation request with a cleanup decision.
// An empty strategy falls back to the analyzer's recommendation.
type IntelligentGenerationRequest struct {
	Generation GenerationRequest `json:"generation" validate:"required"`
	Strategy   CleanupStrategy   `json:"strategy,omitempty" validate:"omitempty,oneof=RESET_ALL SELECTIVE_CLEANUP COMPLETE_EXISTING"`
	Confirmed  bool              `json:"confirmed"`
}

// CleanupResult reports what a cleanup strategy removed.
type CleanupResult struct {
	DeletedSessions int             `json:"deletedSessions"`
	AffectedGroups  int             `json:"affectedGroups"`
	AffectedCourses int             `json:"affectedCourses"`
	Strategy        CleanupStrategy `json:"strategy"`
	Warnings        []string        `json:"warnings"`
	Details         map[string]int  `json:"details"`
}

// Severity grades conflicts and warnings.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Conflict and warning kinds.
const (
	ConflictTeacher = "TEACHER_CONFLICT"
	ConflictSpace   = "SPACE_CONFLICT"
	ConflictGroup   = "GROUP_CONFLICT"

	WarningNoAvailableSlot      = "NO_AVAILABLE_SLOT"
	WarningCommitRejected       = "COMMIT_REJECTED"
	WarningIncompleteAssignment = "INCOMPLETE_ASSIGNMENT"
	WarningUnevenDistribution   = "UNEVEN_DISTRIBUTION"
	WarningTimeGap              = "TIME_GAP"
	WarningPreferredUnavailable = "PREFERRED_SLOT_UNAVAILABLE"
)

// ScheduleConflict is a hard collision between two bookings.
type ScheduleConflict struct {
	Type              string         `json:"type"`
	Severity          Severity       `json:"severity"`
	Description       string         `json:"description"`
	AffectedCourse    string         `json:"affectedCourse,omitempty"`
	AffectedGroup     string         `json:"affectedGroup,omitempty"`
	AffectedTeacher   string         `json:"affectedTeacher,omitempty"`
	AffectedSpace     string         `json:"affectedSpace,omitempty"`
	DayOfWeek         models.Weekday `json:"dayOfWeek,omitempty"`
	TimeRange         string         `json:"timeRange,omitempty"`
	SuggestedSolution []string       `json:"suggestedSolutions,omitempty"`
}

// ScheduleWarning is a soft problem recorded during a run.
type ScheduleWarning struct {
	Type           string         `json:"type"`
	Message        string         `json:"message"`
	Severity       Severity       `json:"severity"`
	AffectedGroup  string         `json:"affectedGroup,omitempty"`
	AffectedCourse string         `json:"affectedCourse,omitempty"`
	SessionType    string         `json:"sessionType,omitempty"`
	RemainingHours int            `json:"remainingHours,omitempty"`
	Suggestion     string         `json:"suggestion,omitempty"`
	DayOfWeek      models.Weekday `json:"dayOfWeek,omitempty"`
}

// GeneratedSession is the externally visible form of a committed booking.
type GeneratedSession struct {
	ID                string             `json:"id"`
	CourseID          string             `json:"courseId"`
	CourseName        string             `json:"courseName"`
	GroupID           string             `json:"groupId"`
	GroupName         string             `json:"groupName"`
	TeacherID         string             `json:"teacherId"`
	TeacherName       string             `json:"teacherName"`
	LearningSpaceID   string             `json:"learningSpaceId"`
	LearningSpaceName string             `json:"learningSpaceName"`
	DayOfWeek         models.Weekday     `json:"dayOfWeek"`
	TimeSlotID        string             `json:"timeSlotId"`
	TimeSlotName      string             `json:"timeSlotName"`
	TeachingHourIDs   []string           `json:"teachingHourIds"`
	TeachingHours     []string           `json:"teachingHours"`
	SessionType       models.SessionType `json:"sessionType"`
	Notes             string             `json:"notes,omitempty"`
	IsNewlyGenerated  bool               `json:"isNewlyGenerated"`
}

// GenerationSummary aggregates counts of a run.
type GenerationSummary struct {
	TotalGroups        int     `json:"totalGroups"`
	TotalCourses       int     `json:"totalCourses"`
	TotalSessions      int     `json:"totalSessions"`
	TotalHoursAssigned int     `json:"totalHoursAssigned"`
	TotalHoursRequired int     `json:"totalHoursRequired"`
	RemainingHours     int     `json:"remainingHours"`
	ConflictsFound     int     `json:"conflictsFound"`
	WarningsGenerated  int     `json:"warningsGenerated"`
	SuccessRate        float64 `json:"successRate"`
	QualityScore       float64 `json:"qualityScore"`
}

// ScheduleStatistics describes resource and time distribution.
type ScheduleStatistics struct {
	SessionsPerDay        map[string]int     `json:"sessionsPerDay"`
	SessionsPerTimeSlot   map[string]int     `json:"sessionsPerTimeSlot"`
	TeacherUtilization    map[string]float64 `json:"teacherUtilization"`
	SpaceUtilization      map[string]float64 `json:"spaceUtilization"`
	HoursPerCourse        map[string]int     `json:"hoursPerCourse"`
	AverageSessionsPerDay float64            `json:"averageSessionsPerDay"`
	DistributionBalance   float64            `json:"distributionBalance"`
}

// GenerationResult is returned for every generation run, successful or not.
type GenerationResult struct {
	RunID           string             `json:"runId"`
	Success         bool               `json:"success"`
	Message         string             `json:"message"`
	Summary         GenerationSummary  `json:"summary"`
	Sessions        []GeneratedSession `json:"generatedSessions"`
	Conflicts       []ScheduleConflict `json:"conflicts"`
	Warnings        []ScheduleWarning  `json:"warnings"`
	Statistics      ScheduleStatistics `json:"statistics"`
	ExecutionTimeMs int64              `json:"executionTimeMs"`
	Cleanup         *CleanupResult     `json:"cleanup,omitempty"`
}

// CourseRequirement is the per-course demand of a group.
type CourseRequirement struct {
	CourseID             string               `json:"courseId"`
	CourseName           string               `json:"courseName"`
	KnowledgeAreaID      string               `json:"knowledgeAreaId"`
	PreferredSpecialtyID string               `json:"preferredSpecialtyId,omitempty"`
	WeeklyTheoryHours    int                  `json:"weeklyTheoryHours"`
	WeeklyPracticeHours  int                  `json:"weeklyPracticeHours"`
	SessionTypes         []models.SessionType `json:"sessionTypes"`
	IsMixed              bool                 `json:"isMixed"`
}

// TotalHours sums both quotas.
func (c CourseRequirement) TotalHours() int {
	return c.WeeklyTheoryHours + c.WeeklyPracticeHours
}

// HoursFor returns the quota of one session type.
func (c CourseRequirement) HoursFor(t models.SessionType) int {
	switch t {
	case models.SessionTypeTheory:
		return c.WeeklyTheoryHours
	case models.SessionTypePractice:
		return c.WeeklyPracticeHours
	default:
		return 0
	}
}

// GroupRequirement is the snapshot of one group's weekly demand.
type GroupRequirement struct {
	GroupID          string              `json:"groupId"`
	GroupName        string              `json:"groupName"`
	CycleID          string              `json:"cycleId"`
	CycleNumber      int                 `json:"cycleNumber"`
	PeriodID         string              `json:"periodId"`
	Courses          []CourseRequirement `json:"courses"`
	TotalWeeklyHours int                 `json:"totalWeeklyHours"`
}

// ScheduleConstraints summarises the resource pool of a scope.
type ScheduleConstraints struct {
	TotalGroups          int      `json:"totalGroups"`
	TotalCourses         int      `json:"totalCourses"`
	TotalRequiredHours   int      `json:"totalRequiredHours"`
	AvailableTeachers    int      `json:"availableTeachers"`
	AvailableSpaces      int      `json:"availableSpaces"`
	AvailableTimeSlots   int      `json:"availableTimeSlots"`
	PotentialConstraints []string `json:"potentialConstraints"`
}

// ScheduleFeasibility is the pre-run estimate.
type ScheduleFeasibility struct {
	IsFeasible       bool     `json:"isFeasible"`
	FeasibilityScore float64  `json:"feasibilityScore"`
	Challenges       []string `json:"challenges"`
	Recommendations  []string `json:"recommendations"`
}

// SchedulePreview combines requirements, constraints and feasibility.
type SchedulePreview struct {
	GroupRequirements []GroupRequirement  `json:"groupRequirements"`
	Constraints       ScheduleConstraints `json:"constraints"`
	Feasibility       ScheduleFeasibility `json:"feasibility"`
}

// ValidationResponse is returned by the validate endpoint.
type ValidationResponse struct {
	IsValid          bool                      `json:"isValid"`
	Errors           []string                  `json:"errors"`
	Feasibility      *ScheduleFeasibility      `json:"feasibility,omitempty"`
	ExistingAnalysis *ExistingScheduleAnalysis `json:"existingAnalysis,omitempty"`
}

// GroupAction is the analyzer's per-group recommendation.
type GroupAction string

const (
	GroupActionReset    GroupAction = "RESET"
	GroupActionComplete GroupAction = "COMPLETE"
	GroupActionNone     GroupAction = "NONE"
)

// GroupScheduleStatus describes the existing sessions of one group.
type GroupScheduleStatus struct {
	GroupID               string         `json:"groupId"`
	GroupName             string         `json:"groupName"`
	HasExistingSessions   bool           `json:"hasExistingSessions"`
	SessionCount          int            `json:"sessionCount"`
	TotalAssignedHours    int            `json:"totalAssignedHours"`
	TotalRequiredHours    int            `json:"totalRequiredHours"`
	AssignedCoursesCount  int            `json:"assignedCoursesCount"`
	AssignedTeachersCount int            `json:"assignedTeachersCount"`
	EstimatedCompleteness float64        `json:"estimatedCompleteness"`
	DistributionByDay     map[string]int `json:"distributionByDay"`
	RecommendedAction     GroupAction    `json:"recommendedAction"`
}

// WorkloadAnalysis summarises teacher and room loads in a period.
type WorkloadAnalysis struct {
	AverageTeacherLoad float64  `json:"averageTeacherLoad"`
	AverageSpaceLoad   float64  `json:"averageSpaceLoad"`
	SystemUtilization  float64  `json:"systemUtilization"`
	OverloadedTeachers []string `json:"overloadedTeachers"`
	OverloadedSpaces   []string `json:"overloadedSpaces"`
	Recommendations    []string `json:"recommendations"`
	UtilizationLevel   string   `json:"utilizationLevel"`
}

// ExistingScheduleAnalysis aggregates the analyzer output.
type ExistingScheduleAnalysis struct {
	GroupStatuses              []GroupScheduleStatus `json:"groupStatuses"`
	TotalGroups                int                   `json:"totalGroups"`
	GroupsWithExistingSessions int                   `json:"groupsWithExistingSessions"`
	GroupsWithoutSessions      int                   `json:"groupsWithoutSessions"`
	NeedsUserDecision          bool                  `json:"needsUserDecision"`
	RecommendedStrategy        CleanupStrategy       `json:"recommendedStrategy"`
	Recommendations            []string              `json:"recommendations"`
	WorkloadAnalysis           WorkloadAnalysis      `json:"workloadAnalysis"`
}

// GenerationDefaults exposes the default request knobs.
type GenerationDefaults struct {
	MaxHoursPerDay            int              `json:"maxHoursPerDay" yaml:"maxHoursPerDay"`
	MinHoursPerDay            int              `json:"minHoursPerDay" yaml:"minHoursPerDay"`
	MaxConsecutiveHours       int              `json:"maxConsecutiveHours" yaml:"maxConsecutiveHours"`
	DistributeEvenly          bool             `json:"distributeEvenly" yaml:"distributeEvenly"`
	RespectTeacherContinuity  bool             `json:"respectTeacherContinuity" yaml:"respectTeacherContinuity"`
	AvoidTimeGaps             bool             `json:"avoidTimeGaps" yaml:"avoidTimeGaps"`
	PrioritizeLabsAfterTheory bool             `json:"prioritizeLabsAfterTheory" yaml:"prioritizeLabsAfterTheory"`
	PreferredSlotWeight       float64          `json:"preferredSlotWeight" yaml:"preferredSlotWeight"`
	ExcludedDays              []models.Weekday `json:"excludedDays,omitempty" yaml:"excludedDays"`
}

// ConfigTemplate is a named preset of generation knobs.
type ConfigTemplate struct {
	Key         string             `json:"key" yaml:"key"`
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description" yaml:"description"`
	Settings    GenerationDefaults `json:"settings" yaml:"settings"`
}

// PeriodStatus summarises the current schedule of a period.
type PeriodStatus struct {
	PeriodID              string             `json:"periodId"`
	TotalSessions         int                `json:"totalSessions"`
	TotalAssignedHours    int                `json:"totalAssignedHours"`
	TotalGroups           int                `json:"totalGroups"`
	GroupsWithSessions    int                `json:"groupsWithSessions"`
	GroupsWithoutSessions int                `json:"groupsWithoutSessions"`
	ConflictCount         int                `json:"conflictCount"`
	Conflicts             []ScheduleConflict `json:"conflicts"`
	HasSchedule           bool               `json:"hasSchedule"`
}

// SystemCapacity describes the resource pool independent of demand.
type SystemCapacity struct {
	PeriodID             string         `json:"periodId"`
	TotalTeachers        int            `json:"totalTeachers"`
	TeachersAvailable    int            `json:"teachersWithAvailability"`
	TotalSpaces          int            `json:"totalSpaces"`
	SpacesByType         map[string]int `json:"spacesByType"`
	TotalTimeSlots       int            `json:"totalTimeSlots"`
	TeachingHoursPerDay  int            `json:"teachingHoursPerDay"`
	TeachingHoursPerWeek int            `json:"teachingHoursPerWeek"`
	TotalGroups          int            `json:"totalGroups"`
	TotalRequiredHours   int            `json:"totalRequiredHours"`
}

// ResourceLoad is one row of the utilization report.
type ResourceLoad struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Hours       int     `json:"hours"`
	Utilization float64 `json:"utilization"`
}

// UtilizationReport lists loads and optimisation hints for a period.
type UtilizationReport struct {
	PeriodID      string            `json:"periodId"`
	Teachers      []ResourceLoad    `json:"teachers"`
	Spaces        []ResourceLoad    `json:"spaces"`
	Workload      WorkloadAnalysis  `json:"workload"`
	TimeGaps      []ScheduleWarning `json:"timeGaps"`
	Suggestions   []string          `json:"suggestions"`
	TotalSessions int               `json:"totalSessions"`
}

// GenerationJobRequest enqueues an asynchronous run.
type GenerationJobRequest struct {
	Generation  GenerationRequest `json:"generation" validate:"required"`
	Intelligent bool              `json:"intelligent"`
	Strategy    CleanupStrategy   `json:"strategy,omitempty" validate:"omitempty,oneof=RESET_ALL SELECTIVE_CLEANUP COMPLETE_EXISTING"`
	Confirmed   bool              `json:"confirmed"`
}

// GenerationJobResponse is returned after enqueue and on status lookup.
type GenerationJobResponse struct {
	ID       string                     `json:"id"`
	Kind     models.GenerationJobKind   `json:"kind"`
	Status   models.GenerationJobStatus `json:"status"`
	Progress int                        `json:"progress"`
	Result   *GenerationResult          `json:"result,omitempty"`
	Error    *string                    `json:"error,omitempty"`
}

// ExportFormat enumerates timetable export encodings.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatPDF  ExportFormat = "pdf"
	ExportFormatXLSX ExportFormat = "xlsx"
	ExportFormatICS  ExportFormat = "ics"
)

// ExportRequest selects the sessions to export.
type ExportRequest struct {
	PeriodID string   `json:"periodId" validate:"required"`
	GroupIDs []string `json:"groupIds,omitempty" validate:"omitempty,dive,required"`
}

// ExportResponse points at a signed download.
type ExportResponse struct {
	Format    ExportFormat `json:"format"`
	URL       string       `json:"url"`
	ExpiresAt string       `json:"expiresAt"`
	Sessions  int          `json:"sessions"`
}
