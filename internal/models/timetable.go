package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// Weekday is the upper-case English day name stored by the catalog.
type Weekday string

const (
	Monday    Weekday = "MONDAY"
	Tuesday   Weekday = "TUESDAY"
	Wednesday Weekday = "WEDNESDAY"
	Thursday  Weekday = "THURSDAY"
	Friday    Weekday = "FRIDAY"
	Saturday  Weekday = "SATURDAY"
	Sunday    Weekday = "SUNDAY"
)

// WorkingDays lists the weekdays the generator schedules on, in week order.
var WorkingDays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// AllWeekdays lists every weekday in week order.
var AllWeekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

var weekdayIndex = map[Weekday]int{
	Monday:    1,
	Tuesday:   2,
	Wednesday: 3,
	Thursday:  4,
	Friday:    5,
	Saturday:  6,
	Sunday:    7,
}

// Index returns the ISO day number (Monday=1) or 0 for unknown values.
func (d Weekday) Index() int {
	return weekdayIndex[d]
}

// Valid reports whether the weekday is a known value.
func (d Weekday) Valid() bool {
	return d.Index() > 0
}

// ParseWeekday normalises free-form input into a Weekday.
func ParseWeekday(raw string) Weekday {
	day := Weekday(strings.ToUpper(strings.TrimSpace(raw)))
	if !day.Valid() {
		return ""
	}
	return day
}

// SessionType determines which learning spaces a session may use.
type SessionType string

const (
	SessionTypeTheory   SessionType = "THEORY"
	SessionTypePractice SessionType = "PRACTICE"
)

// Valid reports whether the session type is supported by the generator.
func (t SessionType) Valid() bool {
	return t == SessionTypeTheory || t == SessionTypePractice
}

// AcademicPeriod is the scheduling horizon sessions belong to.
type AcademicPeriod struct {
	ID        string     `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	StartDate *time.Time `db:"start_date" json:"startDate,omitempty"`
	EndDate   *time.Time `db:"end_date" json:"endDate,omitempty"`
}

// StudentGroup is a section of students of one cycle in one period.
type StudentGroup struct {
	ID          string `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	PeriodID    string `db:"period_id" json:"periodId"`
	CycleID     string `db:"cycle_id" json:"cycleId"`
	CycleNumber int    `db:"cycle_number" json:"cycleNumber"`
	CareerID    string `db:"career_id" json:"careerId"`
	ModalityID  string `db:"modality_id" json:"modalityId"`
}

// GroupFilter narrows the groups loaded for a generation scope.
type GroupFilter struct {
	PeriodID   string
	GroupIDs   []string
	CycleID    string
	CareerID   string
	ModalityID string
}

// Course carries the weekly quotas of one curriculum course.
type Course struct {
	ID                   string  `db:"id" json:"id"`
	Name                 string  `db:"name" json:"name"`
	CycleID              string  `db:"cycle_id" json:"cycleId"`
	KnowledgeAreaID      string  `db:"knowledge_area_id" json:"knowledgeAreaId"`
	PreferredSpecialtyID *string `db:"preferred_specialty_id" json:"preferredSpecialtyId,omitempty"`
	WeeklyTheoryHours    int     `db:"weekly_theory_hours" json:"weeklyTheoryHours"`
	WeeklyPracticeHours  int     `db:"weekly_practice_hours" json:"weeklyPracticeHours"`
}

// TotalHours is the sum of theory and practice quotas.
func (c Course) TotalHours() int {
	return c.WeeklyTheoryHours + c.WeeklyPracticeHours
}

// Teacher is a member of the teaching staff with their knowledge areas.
type Teacher struct {
	ID               string         `db:"id" json:"id"`
	FullName         string         `db:"full_name" json:"fullName"`
	Email            string         `db:"email" json:"email"`
	KnowledgeAreaIDs pq.StringArray `db:"knowledge_area_ids" json:"knowledgeAreaIds"`
}

// HasKnowledgeArea reports whether the teacher may teach courses of the area.
func (t Teacher) HasKnowledgeArea(areaID string) bool {
	for _, id := range t.KnowledgeAreaIDs {
		if id == areaID {
			return true
		}
	}
	return false
}

// TeacherAvailability is a weekly window a teacher declared.
type TeacherAvailability struct {
	ID          string  `db:"id" json:"id"`
	TeacherID   string  `db:"teacher_id" json:"teacherId"`
	DayOfWeek   Weekday `db:"day_of_week" json:"dayOfWeek"`
	StartTime   string  `db:"start_time" json:"startTime"`
	EndTime     string  `db:"end_time" json:"endTime"`
	IsAvailable bool    `db:"is_available" json:"isAvailable"`
}

// LearningSpace is a room or lab.
type LearningSpace struct {
	ID          string      `db:"id" json:"id"`
	Name        string      `db:"name" json:"name"`
	Capacity    int         `db:"capacity" json:"capacity"`
	SessionType SessionType `db:"session_type" json:"sessionType"`
	SpecialtyID *string     `db:"specialty_id" json:"specialtyId,omitempty"`
}

// TimeSlot is a named contiguous span such as "M1".
type TimeSlot struct {
	ID            string         `db:"id" json:"id"`
	Name          string         `db:"name" json:"name"`
	StartTime     string         `db:"start_time" json:"startTime"`
	EndTime       string         `db:"end_time" json:"endTime"`
	TeachingHours []TeachingHour `db:"-" json:"teachingHours"`
}

// TeachingHour is the atomic schedulable unit inside a time slot.
type TeachingHour struct {
	ID              string `db:"id" json:"id"`
	TimeSlotID      string `db:"time_slot_id" json:"timeSlotId"`
	OrderInTimeSlot int    `db:"order_in_time_slot" json:"orderInTimeSlot"`
	StartTime       string `db:"start_time" json:"startTime"`
	EndTime         string `db:"end_time" json:"endTime"`
	DurationMinutes int    `db:"duration_minutes" json:"durationMinutes"`
}

// ClassSession is a persisted weekly booking.
type ClassSession struct {
	ID              string         `db:"id" json:"id"`
	PeriodID        string         `db:"period_id" json:"periodId"`
	StudentGroupID  string         `db:"student_group_id" json:"studentGroupId"`
	CourseID        string         `db:"course_id" json:"courseId"`
	TeacherID       string         `db:"teacher_id" json:"teacherId"`
	LearningSpaceID string         `db:"learning_space_id" json:"learningSpaceId"`
	SessionType     SessionType    `db:"session_type" json:"sessionType"`
	DayOfWeek       Weekday        `db:"day_of_week" json:"dayOfWeek"`
	TeachingHourIDs pq.StringArray `db:"teaching_hour_ids" json:"teachingHourIds"`
	Notes           *string        `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"createdAt"`
}

// SessionConflictDimension names the resource that collided on commit.
type SessionConflictDimension string

const (
	ConflictDimensionTeacher SessionConflictDimension = "TEACHER"
	ConflictDimensionSpace   SessionConflictDimension = "SPACE"
	ConflictDimensionGroup   SessionConflictDimension = "GROUP"
)

// SessionConflict describes an existing session colliding with a proposed one.
type SessionConflict struct {
	SessionID string                   `db:"id" json:"sessionId"`
	Dimension SessionConflictDimension `db:"dimension" json:"dimension"`
}

// SessionConflictError is returned when the catalog rejects a commit.
type SessionConflictError struct {
	Conflicts []SessionConflict
}

// Error implements error.
func (e *SessionConflictError) Error() string {
	if e == nil || len(e.Conflicts) == 0 {
		return "session conflict"
	}
	dims := make([]string, 0, len(e.Conflicts))
	seen := make(map[SessionConflictDimension]bool, len(e.Conflicts))
	for _, c := range e.Conflicts {
		if seen[c.Dimension] {
			continue
		}
		seen[c.Dimension] = true
		dims = append(dims, string(c.Dimension))
	}
	return "session conflict on " + strings.Join(dims, ", ")
}

// HasDimension reports whether any collision is on the given dimension.
func (e *SessionConflictError) HasDimension(dim SessionConflictDimension) bool {
	if e == nil {
		return false
	}
	for _, c := range e.Conflicts {
		if c.Dimension == dim {
			return true
		}
	}
	return false
}
