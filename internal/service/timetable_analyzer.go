package service

import (
	"fmt"
	"sort"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
)

const (
	resetCompletenessBelow    = 0.3
	completeCompletenessBelow = 0.8
	overloadedTeacherHours    = 20
	overloadedSpaceHours      = 30
	utilizationReference      = 50.0
	selectiveMinimumHours     = 3
)

// analyzeExistingSchedule classifies the current sessions of each target group.
func analyzeExistingSchedule(snap *catalogSnapshot, groups []dto.GroupRequirement, existing, period []models.ClassSession) dto.ExistingScheduleAnalysis {
	byGroup := make(map[string][]models.ClassSession)
	for _, s := range existing {
		byGroup[s.StudentGroupID] = append(byGroup[s.StudentGroupID], s)
	}

	analysis := dto.ExistingScheduleAnalysis{
		GroupStatuses:   make([]dto.GroupScheduleStatus, 0, len(groups)),
		TotalGroups:     len(groups),
		Recommendations: []string{},
	}
	actions := make(map[dto.GroupAction]int)
	for _, g := range groups {
		status := groupStatus(g, byGroup[g.GroupID])
		analysis.GroupStatuses = append(analysis.GroupStatuses, status)
		if status.HasExistingSessions {
			analysis.GroupsWithExistingSessions++
			actions[status.RecommendedAction]++
		} else {
			analysis.GroupsWithoutSessions++
		}
	}
	sort.SliceStable(analysis.GroupStatuses, func(i, j int) bool {
		if analysis.GroupStatuses[i].GroupName != analysis.GroupStatuses[j].GroupName {
			return analysis.GroupStatuses[i].GroupName < analysis.GroupStatuses[j].GroupName
		}
		return analysis.GroupStatuses[i].GroupID < analysis.GroupStatuses[j].GroupID
	})

	analysis.NeedsUserDecision = analysis.GroupsWithExistingSessions > 0
	analysis.RecommendedStrategy = recommendStrategy(analysis.GroupsWithExistingSessions, actions)
	analysis.WorkloadAnalysis = analyzeWorkload(snap, period)

	if analysis.GroupsWithExistingSessions == 0 {
		analysis.Recommendations = append(analysis.Recommendations, "No existing sessions found; generate from scratch")
	} else {
		if n := actions[dto.GroupActionReset]; n > 0 {
			analysis.Recommendations = append(analysis.Recommendations,
				fmt.Sprintf("%d groups have less than 30%% of their hours scheduled; resetting them is recommended", n))
		}
		if n := actions[dto.GroupActionComplete]; n > 0 {
			analysis.Recommendations = append(analysis.Recommendations,
				fmt.Sprintf("%d groups are partially scheduled and can be completed", n))
		}
		if n := actions[dto.GroupActionNone]; n > 0 {
			analysis.Recommendations = append(analysis.Recommendations,
				fmt.Sprintf("%d groups are mostly scheduled; keep their sessions", n))
		}
		analysis.Recommendations = append(analysis.Recommendations,
			"Recommended strategy: "+string(analysis.RecommendedStrategy))
	}
	return analysis
}

func groupStatus(g dto.GroupRequirement, sessions []models.ClassSession) dto.GroupScheduleStatus {
	status := dto.GroupScheduleStatus{
		GroupID:             g.GroupID,
		GroupName:           g.GroupName,
		HasExistingSessions: len(sessions) > 0,
		SessionCount:        len(sessions),
		TotalRequiredHours:  g.TotalWeeklyHours,
		DistributionByDay:   make(map[string]int),
		RecommendedAction:   dto.GroupActionNone,
	}
	courses := make(map[string]bool)
	teachers := make(map[string]bool)
	for _, s := range sessions {
		hours := len(s.TeachingHourIDs)
		status.TotalAssignedHours += hours
		status.DistributionByDay[string(s.DayOfWeek)] += hours
		courses[s.CourseID] = true
		teachers[s.TeacherID] = true
	}
	status.AssignedCoursesCount = len(courses)
	status.AssignedTeachersCount = len(teachers)
	if g.TotalWeeklyHours > 0 {
		status.EstimatedCompleteness = float64(status.TotalAssignedHours) / float64(g.TotalWeeklyHours)
	}
	if !status.HasExistingSessions {
		return status
	}
	switch {
	case status.EstimatedCompleteness < resetCompletenessBelow:
		status.RecommendedAction = dto.GroupActionReset
	case status.EstimatedCompleteness < completeCompletenessBelow:
		status.RecommendedAction = dto.GroupActionComplete
	}
	return status
}

// recommendStrategy favours keeping sessions when most scheduled groups are done.
func recommendStrategy(withSessions int, actions map[dto.GroupAction]int) dto.CleanupStrategy {
	if withSessions == 0 {
		return dto.CleanupResetAll
	}
	if actions[dto.GroupActionNone]*2 > withSessions {
		return dto.CleanupCompleteExisting
	}
	if actions[dto.GroupActionComplete]*3 >= withSessions {
		return dto.CleanupSelective
	}
	return dto.CleanupResetAll
}

// analyzeWorkload measures teacher and room hours booked in a period.
func analyzeWorkload(snap *catalogSnapshot, sessions []models.ClassSession) dto.WorkloadAnalysis {
	teacherHours, spaceHours := resourceHours(sessions)
	result := dto.WorkloadAnalysis{
		OverloadedTeachers: []string{},
		OverloadedSpaces:   []string{},
		Recommendations:    []string{},
	}
	result.AverageTeacherLoad = averageHours(teacherHours)
	result.AverageSpaceLoad = averageHours(spaceHours)
	for _, id := range sortedKeys(teacherHours) {
		if teacherHours[id] > overloadedTeacherHours {
			result.OverloadedTeachers = append(result.OverloadedTeachers, teacherName(snap, id))
		}
	}
	for _, id := range sortedKeys(spaceHours) {
		if spaceHours[id] > overloadedSpaceHours {
			result.OverloadedSpaces = append(result.OverloadedSpaces, spaceName(snap, id))
		}
	}
	result.SystemUtilization = (result.AverageTeacherLoad + result.AverageSpaceLoad) / utilizationReference
	result.UtilizationLevel = utilizationLevel(result.SystemUtilization)

	if len(result.OverloadedTeachers) > 0 {
		result.Recommendations = append(result.Recommendations,
			fmt.Sprintf("%d teachers exceed %d weekly hours; spread their courses", len(result.OverloadedTeachers), overloadedTeacherHours))
	}
	if len(result.OverloadedSpaces) > 0 {
		result.Recommendations = append(result.Recommendations,
			fmt.Sprintf("%d learning spaces exceed %d weekly hours; add rooms of the same type", len(result.OverloadedSpaces), overloadedSpaceHours))
	}
	switch result.UtilizationLevel {
	case "CRITICAL", "HIGH":
		result.Recommendations = append(result.Recommendations, "System utilization is high; new sessions may not fit")
	case "LOW":
		result.Recommendations = append(result.Recommendations, "Resources are underused; consider compacting the schedule")
	}
	return result
}

func resourceHours(sessions []models.ClassSession) (map[string]int, map[string]int) {
	teacherHours := make(map[string]int)
	spaceHours := make(map[string]int)
	for _, s := range sessions {
		teacherHours[s.TeacherID] += len(s.TeachingHourIDs)
		spaceHours[s.LearningSpaceID] += len(s.TeachingHourIDs)
	}
	return teacherHours, spaceHours
}

func averageHours(hours map[string]int) float64 {
	if len(hours) == 0 {
		return 0
	}
	total := 0
	for _, h := range hours {
		total += h
	}
	return float64(total) / float64(len(hours))
}

func utilizationLevel(u float64) string {
	switch {
	case u < 0.3:
		return "LOW"
	case u < 0.6:
		return "MEDIUM"
	case u < 0.8:
		return "HIGH"
	default:
		return "CRITICAL"
	}
}

func teacherName(snap *catalogSnapshot, id string) string {
	if t, ok := snap.teacherByID[id]; ok && t.FullName != "" {
		return t.FullName
	}
	return id
}

func spaceName(snap *catalogSnapshot, id string) string {
	if s, ok := snap.spaceByID[id]; ok && s.Name != "" {
		return s.Name
	}
	return id
}

// cleanupPlan lists what a strategy would delete.
type cleanupPlan struct {
	Strategy   dto.CleanupStrategy
	SessionIDs []string
	DeleteAll  bool
	Result     dto.CleanupResult
}

// planCleanup decides which sessions a strategy removes without touching storage.
func planCleanup(strategy dto.CleanupStrategy, sessions []models.ClassSession) cleanupPlan {
	plan := cleanupPlan{
		Strategy: strategy,
		Result: dto.CleanupResult{
			Strategy: strategy,
			Warnings: []string{},
			Details:  make(map[string]int),
		},
	}
	var doomed []models.ClassSession
	switch strategy {
	case dto.CleanupResetAll:
		plan.DeleteAll = true
		doomed = sessions
		plan.Result.Warnings = append(plan.Result.Warnings, "All existing sessions of the selected groups were removed")
	case dto.CleanupSelective:
		hours := make(map[groupCourseKey]int)
		for _, s := range sessions {
			hours[groupCourseKey{GroupID: s.StudentGroupID, CourseID: s.CourseID}] += len(s.TeachingHourIDs)
		}
		for _, s := range sessions {
			if hours[groupCourseKey{GroupID: s.StudentGroupID, CourseID: s.CourseID}] < selectiveMinimumHours {
				doomed = append(doomed, s)
			}
		}
		plan.Result.Warnings = append(plan.Result.Warnings, "Only incomplete or problematic sessions were removed")
	case dto.CleanupCompleteExisting:
		plan.Result.Warnings = append(plan.Result.Warnings, "Existing sessions were kept and will seed the generation")
	}

	groups := make(map[string]bool)
	courses := make(map[string]bool)
	for _, s := range doomed {
		plan.SessionIDs = append(plan.SessionIDs, s.ID)
		groups[s.StudentGroupID] = true
		courses[s.CourseID] = true
	}
	plan.Result.DeletedSessions = len(doomed)
	plan.Result.AffectedGroups = len(groups)
	plan.Result.AffectedCourses = len(courses)
	plan.Result.Details["sessionsBefore"] = len(sessions)
	plan.Result.Details["sessionsDeleted"] = len(doomed)
	plan.Result.Details["sessionsKept"] = len(sessions) - len(doomed)
	return plan
}
