package service

import (
	"fmt"
	"math"
	"sort"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
)

// detectSessionConflicts finds persisted sessions sharing a teaching hour on the same day
// with the same teacher, room or group.
func detectSessionConflicts(snap *catalogSnapshot, sessions []models.ClassSession) []dto.ScheduleConflict {
	ordered := make([]models.ClassSession, len(sessions))
	copy(ordered, sessions)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	byDay := make(map[models.Weekday][]models.ClassSession)
	for _, s := range ordered {
		byDay[s.DayOfWeek] = append(byDay[s.DayOfWeek], s)
	}

	conflicts := []dto.ScheduleConflict{}
	for _, day := range models.AllWeekdays {
		daySessions := byDay[day]
		for i := 0; i < len(daySessions); i++ {
			for j := i + 1; j < len(daySessions); j++ {
				a, b := daySessions[i], daySessions[j]
				shared := sharedHours(a.TeachingHourIDs, b.TeachingHourIDs)
				if len(shared) == 0 {
					continue
				}
				timeRange := hoursRange(snap, shared)
				if a.TeacherID == b.TeacherID {
					conflicts = append(conflicts, dto.ScheduleConflict{
						Type:              dto.ConflictTeacher,
						Severity:          dto.SeverityHigh,
						Description:       fmt.Sprintf("%s teaches two sessions at the same time", teacherName(snap, a.TeacherID)),
						AffectedCourse:    courseName(snap, a.CourseID),
						AffectedGroup:     groupName(snap, a.StudentGroupID),
						AffectedTeacher:   teacherName(snap, a.TeacherID),
						DayOfWeek:         day,
						TimeRange:         timeRange,
						SuggestedSolution: []string{"Move one of the sessions", "Assign another teacher of the same knowledge area"},
					})
				}
				if a.LearningSpaceID == b.LearningSpaceID {
					conflicts = append(conflicts, dto.ScheduleConflict{
						Type:              dto.ConflictSpace,
						Severity:          dto.SeverityMedium,
						Description:       fmt.Sprintf("%s hosts two sessions at the same time", spaceName(snap, a.LearningSpaceID)),
						AffectedCourse:    courseName(snap, a.CourseID),
						AffectedGroup:     groupName(snap, a.StudentGroupID),
						AffectedSpace:     spaceName(snap, a.LearningSpaceID),
						DayOfWeek:         day,
						TimeRange:         timeRange,
						SuggestedSolution: []string{"Move one of the sessions to another learning space"},
					})
				}
				if a.StudentGroupID == b.StudentGroupID {
					conflicts = append(conflicts, dto.ScheduleConflict{
						Type:              dto.ConflictGroup,
						Severity:          dto.SeverityHigh,
						Description:       fmt.Sprintf("Group %s attends two sessions at the same time", groupName(snap, a.StudentGroupID)),
						AffectedCourse:    courseName(snap, b.CourseID),
						AffectedGroup:     groupName(snap, a.StudentGroupID),
						DayOfWeek:         day,
						TimeRange:         timeRange,
						SuggestedSolution: []string{"Delete the duplicated session or regenerate the group"},
					})
				}
			}
		}
	}
	return conflicts
}

func sharedHours(a, b []string) []string {
	set := make(map[string]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	var shared []string
	for _, id := range b {
		if set[id] {
			shared = append(shared, id)
		}
	}
	return shared
}

func hoursRange(snap *catalogSnapshot, ids []string) string {
	hours := snap.SessionHours(ids)
	if len(hours) == 0 {
		return ""
	}
	start, end := runBounds(hours)
	return formatRange(start, end)
}

func courseName(snap *catalogSnapshot, id string) string {
	if c, ok := snap.courseByID[id]; ok && c.Name != "" {
		return c.Name
	}
	return id
}

func groupName(snap *catalogSnapshot, id string) string {
	if g, ok := snap.groupByID[id]; ok && g.Name != "" {
		return g.Name
	}
	return id
}

// committedFromPeriod resolves persisted sessions into ordered run sessions.
func committedFromPeriod(snap *catalogSnapshot, sessions []models.ClassSession) []committedSession {
	out := make([]committedSession, 0, len(sessions))
	for _, s := range sessions {
		if c, ok := snap.toCommitted(s); ok {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].GroupName != out[j].GroupName {
			return out[i].GroupName < out[j].GroupName
		}
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek.Index() < out[j].DayOfWeek.Index()
		}
		return out[i].Start < out[j].Start
	})
	return out
}

// buildUtilizationReport lists resource loads, idle gaps and optimisation hints for a period.
func buildUtilizationReport(periodID string, snap *catalogSnapshot, sessions []models.ClassSession) dto.UtilizationReport {
	teacherHours, spaceHours := resourceHours(sessions)
	report := dto.UtilizationReport{
		PeriodID:      periodID,
		Teachers:      make([]dto.ResourceLoad, 0, len(snap.teachers)),
		Spaces:        make([]dto.ResourceLoad, 0, len(snap.spaces)),
		Workload:      analyzeWorkload(snap, sessions),
		TimeGaps:      findTimeGaps(committedFromPeriod(snap, sessions)),
		Suggestions:   []string{},
		TotalSessions: len(sessions),
	}
	if report.TimeGaps == nil {
		report.TimeGaps = []dto.ScheduleWarning{}
	}
	idleTeachers := 0
	for _, t := range snap.teachers {
		hours := teacherHours[t.ID]
		if hours == 0 {
			idleTeachers++
		}
		report.Teachers = append(report.Teachers, dto.ResourceLoad{
			ID:          t.ID,
			Name:        t.FullName,
			Hours:       hours,
			Utilization: math.Min(1, float64(hours)/weeklyHoursReference),
		})
	}
	idleSpaces := 0
	for _, sp := range snap.spaces {
		hours := spaceHours[sp.ID]
		if hours == 0 {
			idleSpaces++
		}
		report.Spaces = append(report.Spaces, dto.ResourceLoad{
			ID:          sp.ID,
			Name:        sp.Name,
			Hours:       hours,
			Utilization: math.Min(1, float64(hours)/weeklyHoursReference),
		})
	}
	sort.SliceStable(report.Teachers, func(i, j int) bool { return report.Teachers[i].Hours > report.Teachers[j].Hours })
	sort.SliceStable(report.Spaces, func(i, j int) bool { return report.Spaces[i].Hours > report.Spaces[j].Hours })

	if idleTeachers > 0 {
		report.Suggestions = append(report.Suggestions, fmt.Sprintf("%d teachers have no sessions this period", idleTeachers))
	}
	if idleSpaces > 0 {
		report.Suggestions = append(report.Suggestions, fmt.Sprintf("%d learning spaces are unused this period", idleSpaces))
	}
	if len(report.TimeGaps) > 0 {
		report.Suggestions = append(report.Suggestions,
			fmt.Sprintf("%d idle gaps longer than %d minutes; regenerate with avoidTimeGaps enabled", len(report.TimeGaps), timeGapThreshold))
	}
	report.Suggestions = append(report.Suggestions, report.Workload.Recommendations...)
	return report
}

// buildSystemCapacity summarises the resource pool of a period.
func buildSystemCapacity(periodID string, snap *catalogSnapshot, groups []dto.GroupRequirement) dto.SystemCapacity {
	capacity := dto.SystemCapacity{
		PeriodID:             periodID,
		TotalTeachers:        len(snap.teachers),
		TotalSpaces:          len(snap.spaces),
		SpacesByType:         make(map[string]int),
		TotalTimeSlots:       len(snap.timeSlots),
		TeachingHoursPerDay:  snap.TeachingHoursPerDay(),
		TeachingHoursPerWeek: snap.TeachingHoursPerDay() * len(models.WorkingDays),
		TotalGroups:          len(groups),
	}
	for _, t := range snap.teachers {
		for _, w := range snap.availability[t.ID] {
			if w.Available {
				capacity.TeachersAvailable++
				break
			}
		}
	}
	for _, sp := range snap.spaces {
		capacity.SpacesByType[string(sp.SessionType)]++
	}
	for _, g := range groups {
		capacity.TotalRequiredHours += g.TotalWeeklyHours
	}
	return capacity
}

// buildPeriodStatus summarises the stored schedule of a period.
func buildPeriodStatus(periodID string, snap *catalogSnapshot, sessions []models.ClassSession) dto.PeriodStatus {
	status := dto.PeriodStatus{
		PeriodID:      periodID,
		TotalSessions: len(sessions),
		TotalGroups:   len(snap.groups),
		Conflicts:     detectSessionConflicts(snap, sessions),
	}
	withSessions := make(map[string]bool)
	for _, s := range sessions {
		status.TotalAssignedHours += len(s.TeachingHourIDs)
		withSessions[s.StudentGroupID] = true
	}
	for _, g := range snap.groups {
		if withSessions[g.ID] {
			status.GroupsWithSessions++
		}
	}
	status.GroupsWithoutSessions = status.TotalGroups - status.GroupsWithSessions
	status.ConflictCount = len(status.Conflicts)
	status.HasSchedule = len(sessions) > 0
	return status
}
