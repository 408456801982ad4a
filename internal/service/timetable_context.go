package service

import (
	"math"
	"sort"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
)

type groupDayKey struct {
	GroupID string
	Day     models.Weekday
}

type resourceSlotKey struct {
	ResourceID string
	Day        models.Weekday
	TimeSlotID string
}

type groupCourseKey struct {
	GroupID  string
	CourseID string
}

type quotaKey struct {
	GroupID     string
	CourseID    string
	SessionType models.SessionType
}

// committedSession is a session the run booked or inherited, with its clock bounds.
type committedSession struct {
	dto.GeneratedSession
	Start int
	End   int
}

func (s committedSession) Hours() int {
	return len(s.TeachingHourIDs)
}

// generationContext is the run-scoped state of one generation request.
type generationContext struct {
	opts generationOptions

	groups     []dto.GroupRequirement
	groupIndex map[string]dto.GroupRequirement

	sessions        []committedSession
	dailyHours      map[groupDayKey]int
	occupied        map[resourceSlotKey]map[string]bool
	teacherBookings map[resourceSlotKey]bool
	roomBookings    map[resourceSlotKey]bool
	continuity      map[groupCourseKey]string
	assigned        map[quotaKey]int

	conflicts []dto.ScheduleConflict
	warnings  []dto.ScheduleWarning

	preservedSessions   int
	preservedContinuity int
}

func newGenerationContext(opts generationOptions, groups []dto.GroupRequirement) *generationContext {
	index := make(map[string]dto.GroupRequirement, len(groups))
	for _, g := range groups {
		index[g.GroupID] = g
	}
	return &generationContext{
		opts:            opts,
		groups:          groups,
		groupIndex:      index,
		dailyHours:      make(map[groupDayKey]int),
		occupied:        make(map[resourceSlotKey]map[string]bool),
		teacherBookings: make(map[resourceSlotKey]bool),
		roomBookings:    make(map[resourceSlotKey]bool),
		continuity:      make(map[groupCourseKey]string),
		assigned:        make(map[quotaKey]int),
	}
}

// RecordCommittedSession registers a booking in every index of the context.
func (c *generationContext) RecordCommittedSession(session committedSession) {
	c.sessions = append(c.sessions, session)
	c.dailyHours[groupDayKey{GroupID: session.GroupID, Day: session.DayOfWeek}] += session.Hours()

	groupKey := resourceSlotKey{ResourceID: session.GroupID, Day: session.DayOfWeek, TimeSlotID: session.TimeSlotID}
	hours := c.occupied[groupKey]
	if hours == nil {
		hours = make(map[string]bool, len(session.TeachingHourIDs))
		c.occupied[groupKey] = hours
	}
	for _, id := range session.TeachingHourIDs {
		hours[id] = true
	}

	c.teacherBookings[resourceSlotKey{ResourceID: session.TeacherID, Day: session.DayOfWeek, TimeSlotID: session.TimeSlotID}] = true
	c.roomBookings[resourceSlotKey{ResourceID: session.LearningSpaceID, Day: session.DayOfWeek, TimeSlotID: session.TimeSlotID}] = true
	c.assigned[quotaKey{GroupID: session.GroupID, CourseID: session.CourseID, SessionType: session.SessionType}] += session.Hours()
}

// SeedExistingSession absorbs a session that is kept from a previous schedule.
func (c *generationContext) SeedExistingSession(session committedSession) {
	session.IsNewlyGenerated = false
	c.RecordCommittedSession(session)
	c.preservedSessions++
	key := groupCourseKey{GroupID: session.GroupID, CourseID: session.CourseID}
	if _, ok := c.continuity[key]; !ok {
		c.continuity[key] = session.TeacherID
		c.preservedContinuity++
	}
}

// SeedExternalBooking blocks a teacher and room for sessions of groups outside the run.
func (c *generationContext) SeedExternalBooking(teacherID, roomID string, day models.Weekday, timeSlotID string) {
	c.teacherBookings[resourceSlotKey{ResourceID: teacherID, Day: day, TimeSlotID: timeSlotID}] = true
	c.roomBookings[resourceSlotKey{ResourceID: roomID, Day: day, TimeSlotID: timeSlotID}] = true
}

// IsSlotFree reports whether none of the hours is taken by the group.
func (c *generationContext) IsSlotFree(groupID string, day models.Weekday, timeSlotID string, hourIDs []string) bool {
	taken := c.occupied[resourceSlotKey{ResourceID: groupID, Day: day, TimeSlotID: timeSlotID}]
	for _, id := range hourIDs {
		if taken[id] {
			return false
		}
	}
	return true
}

func (c *generationContext) IsHourOccupied(groupID string, key daySlotKey, hourID string) bool {
	return c.occupied[resourceSlotKey{ResourceID: groupID, Day: key.Day, TimeSlotID: key.TimeSlotID}][hourID]
}

func (c *generationContext) IsTeacherFree(teacherID string, day models.Weekday, timeSlotID string) bool {
	return !c.teacherBookings[resourceSlotKey{ResourceID: teacherID, Day: day, TimeSlotID: timeSlotID}]
}

func (c *generationContext) IsRoomFree(roomID string, day models.Weekday, timeSlotID string) bool {
	return !c.roomBookings[resourceSlotKey{ResourceID: roomID, Day: day, TimeSlotID: timeSlotID}]
}

func (c *generationContext) DailyHours(groupID string, day models.Weekday) int {
	return c.dailyHours[groupDayKey{GroupID: groupID, Day: day}]
}

// AverageDailyHours is the group's weekly requirement spread over the working days.
func (c *generationContext) AverageDailyHours(groupID string) float64 {
	days := len(c.opts.WorkingDays())
	if days == 0 {
		return 0
	}
	return float64(c.groupIndex[groupID].TotalWeeklyHours) / float64(days)
}

// HasAdjacentSession reports whether the group has a session on the day touching [start, end).
func (c *generationContext) HasAdjacentSession(groupID string, day models.Weekday, start, end int) bool {
	for _, s := range c.sessions {
		if s.GroupID != groupID || s.DayOfWeek != day {
			continue
		}
		if s.End == start || s.Start == end {
			return true
		}
	}
	return false
}

func (c *generationContext) AssignedHours(groupID, courseID string, sessionType models.SessionType) int {
	return c.assigned[quotaKey{GroupID: groupID, CourseID: courseID, SessionType: sessionType}]
}

// RemainingHours sums the unmet part of every (course, session type) quota of the group.
// Surplus hours on one quota never cover another.
func (c *generationContext) RemainingHours(groupID string) int {
	group, ok := c.groupIndex[groupID]
	if !ok {
		return 0
	}
	remaining := 0
	for _, course := range group.Courses {
		for _, t := range []models.SessionType{models.SessionTypeTheory, models.SessionTypePractice} {
			if missing := course.HoursFor(t) - c.AssignedHours(groupID, course.CourseID, t); missing > 0 {
				remaining += missing
			}
		}
	}
	return remaining
}

// TotalRemainingHours is RemainingHours summed over the target groups.
func (c *generationContext) TotalRemainingHours() int {
	total := 0
	for _, g := range c.groups {
		total += c.RemainingHours(g.GroupID)
	}
	return total
}

// Progress is the share of the group's required hours that is covered, in [0, 1].
func (c *generationContext) Progress(groupID string) float64 {
	required := c.groupIndex[groupID].TotalWeeklyHours
	if required <= 0 {
		return 0
	}
	covered := required - c.RemainingHours(groupID)
	return clamp(float64(covered)/float64(required), 0, 1)
}

// HasImbalance flags groups whose daily load deviates more than 25% from the mean.
func (c *generationContext) HasImbalance(groupID string) bool {
	if !c.opts.DistributeEvenly {
		return false
	}
	days := c.opts.WorkingDays()
	if len(days) == 0 {
		return false
	}
	values := make([]float64, len(days))
	for i, day := range days {
		values[i] = float64(c.DailyHours(groupID, day))
	}
	mean, stddev := meanAndStdDev(values)
	return stddev > mean*0.25
}

func (c *generationContext) ContinuityTeacher(groupID, courseID string) string {
	return c.continuity[groupCourseKey{GroupID: groupID, CourseID: courseID}]
}

// SetContinuityTeacher keeps the first teacher recorded for the pair.
func (c *generationContext) SetContinuityTeacher(groupID, courseID, teacherID string) {
	key := groupCourseKey{GroupID: groupID, CourseID: courseID}
	if _, ok := c.continuity[key]; ok {
		return
	}
	c.continuity[key] = teacherID
}

func (c *generationContext) AddConflict(conflict dto.ScheduleConflict) {
	c.conflicts = append(c.conflicts, conflict)
}

func (c *generationContext) AddWarning(warning dto.ScheduleWarning) {
	c.warnings = append(c.warnings, warning)
}

func (c *generationContext) Conflicts() []dto.ScheduleConflict {
	return c.conflicts
}

func (c *generationContext) Warnings() []dto.ScheduleWarning {
	return c.warnings
}

// Sessions returns every booking ordered by group name, group id, day, then start time.
// Sessions of one group are always contiguous even when names repeat.
func (c *generationContext) Sessions() []committedSession {
	sorted := make([]committedSession, len(c.sessions))
	copy(sorted, c.sessions)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].GroupName != sorted[j].GroupName {
			return sorted[i].GroupName < sorted[j].GroupName
		}
		if sorted[i].GroupID != sorted[j].GroupID {
			return sorted[i].GroupID < sorted[j].GroupID
		}
		if sorted[i].DayOfWeek != sorted[j].DayOfWeek {
			return sorted[i].DayOfWeek.Index() < sorted[j].DayOfWeek.Index()
		}
		return sorted[i].Start < sorted[j].Start
	})
	return sorted
}

func (c *generationContext) NewSessions() []committedSession {
	var out []committedSession
	for _, s := range c.Sessions() {
		if s.IsNewlyGenerated {
			out = append(out, s)
		}
	}
	return out
}

// QualityScore penalises conflicts and warnings and rewards balance and completion.
func (c *generationContext) QualityScore() float64 {
	score := 100.0
	score -= float64(len(c.conflicts)) * 15
	score -= float64(len(c.warnings)) * 5
	if len(c.groups) > 0 {
		balanced := 0
		progress := 0.0
		for _, g := range c.groups {
			if !c.HasImbalance(g.GroupID) {
				balanced++
			}
			progress += c.Progress(g.GroupID)
		}
		score += float64(balanced) / float64(len(c.groups)) * 10
		score += progress / float64(len(c.groups)) * 20
	}
	return clamp(score, 0, 100)
}

// QualityScoreWithExisting adds the continuity and reuse bonus of kept sessions.
func (c *generationContext) QualityScoreWithExisting() float64 {
	base := c.QualityScore()
	continuityBonus := math.Min(20, float64(c.preservedContinuity)*2)
	reuseBonus := math.Min(15, float64(c.preservedSessions))
	return math.Min(100, base+continuityBonus+reuseBonus)
}

func (c *generationContext) HasPreserved() bool {
	return c.preservedSessions > 0
}

func meanAndStdDev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
