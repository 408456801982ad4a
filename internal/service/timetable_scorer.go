package service

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
)

const (
	weeklyHoursReference   = 30.0
	maxCoursesPerTeacher   = 4.0
	maxComfortableGroups   = 15
	maxMixedCourseShare    = 0.6
	feasibilityThreshold   = 0.5
	maxFeasibleChallenges  = 3
	highCapacityRatio      = 0.9
	moderateCapacityRatio  = 0.7
	moderateCapacityImpact = 0.15
)

// buildConstraints summarises the resource pool of a scope.
func buildConstraints(snap *catalogSnapshot, groups []dto.GroupRequirement, workingDays int) dto.ScheduleConstraints {
	constraints := dto.ScheduleConstraints{
		TotalGroups:          len(groups),
		TotalCourses:         countDistinctCourses(groups),
		AvailableTeachers:    len(snap.teachers),
		AvailableSpaces:      len(snap.spaces),
		AvailableTimeSlots:   len(snap.timeSlots) * workingDays,
		PotentialConstraints: []string{},
	}
	for _, g := range groups {
		constraints.TotalRequiredHours += g.TotalWeeklyHours
	}
	if constraints.AvailableTeachers == 0 {
		constraints.PotentialConstraints = append(constraints.PotentialConstraints, "No teachers are registered")
	}
	if len(snap.availability) < len(snap.teachers) {
		constraints.PotentialConstraints = append(constraints.PotentialConstraints,
			fmt.Sprintf("%d teachers have no availability windows", len(snap.teachers)-len(snap.availability)))
	}
	if len(snap.SpacesFor(models.SessionTypeTheory)) == 0 {
		constraints.PotentialConstraints = append(constraints.PotentialConstraints, "No theory learning spaces are registered")
	}
	if len(snap.SpacesFor(models.SessionTypePractice)) == 0 && requiresPractice(groups) {
		constraints.PotentialConstraints = append(constraints.PotentialConstraints, "Practice hours are required but no practice learning spaces exist")
	}
	if constraints.AvailableTimeSlots == 0 {
		constraints.PotentialConstraints = append(constraints.PotentialConstraints, "No time slots are available on the working days")
	}
	return constraints
}

// assessFeasibility estimates whether the scope fits the available capacity.
func assessFeasibility(constraints dto.ScheduleConstraints, groups []dto.GroupRequirement, capacityFactor float64) dto.ScheduleFeasibility {
	if capacityFactor <= 0 {
		capacityFactor = defaultCapacityFactor
	}
	result := dto.ScheduleFeasibility{Challenges: []string{}, Recommendations: []string{}}
	score := 1.0

	capacity := float64(constraints.AvailableTimeSlots) * capacityFactor
	ratio := math.Inf(1)
	if capacity > 0 {
		ratio = float64(constraints.TotalRequiredHours) / capacity
	} else if constraints.TotalRequiredHours == 0 {
		ratio = 0
	}
	switch {
	case ratio > highCapacityRatio:
		score -= math.Min(0.4, 0.3+(ratio-highCapacityRatio))
		result.Challenges = append(result.Challenges,
			fmt.Sprintf("Required hours use %.0f%% of the available time slot capacity", math.Min(ratio, 9.99)*100))
		result.Recommendations = append(result.Recommendations, "Add time slots or enable more working days")
	case ratio > moderateCapacityRatio:
		score -= moderateCapacityImpact
		result.Challenges = append(result.Challenges,
			fmt.Sprintf("Time slot capacity is moderately loaded (%.0f%%)", ratio*100))
		result.Recommendations = append(result.Recommendations, "Keep teacher availability wide to leave room for the allocator")
	}

	if constraints.TotalCourses > 0 {
		perTeacher := math.Inf(1)
		if constraints.AvailableTeachers > 0 {
			perTeacher = float64(constraints.TotalCourses) / float64(constraints.AvailableTeachers)
		}
		if perTeacher > maxCoursesPerTeacher {
			score -= math.Min(0.3, 0.1*(perTeacher-maxCoursesPerTeacher)+0.1)
			result.Challenges = append(result.Challenges, "Few teachers available for the number of courses")
			result.Recommendations = append(result.Recommendations, "Register more teachers for the busiest knowledge areas")
		}
	}

	if constraints.TotalGroups > maxComfortableGroups {
		score -= 0.1
		result.Challenges = append(result.Challenges, fmt.Sprintf("%d groups compete for the same resources", constraints.TotalGroups))
		result.Recommendations = append(result.Recommendations, "Generate by cycle or career to reduce contention")
	}

	if constraints.TotalCourses > 0 {
		share := float64(countMixedCourses(groups)) / float64(constraints.TotalCourses)
		if share > maxMixedCourseShare {
			score -= 0.1
			result.Challenges = append(result.Challenges, "Most courses need both theory and practice spaces")
			result.Recommendations = append(result.Recommendations, "Enable prioritizeLabsAfterTheory to keep practice rooms free")
		}
	}

	result.FeasibilityScore = math.Max(0, score)
	result.IsFeasible = result.FeasibilityScore >= feasibilityThreshold &&
		len(result.Challenges) < maxFeasibleChallenges &&
		ratio <= 1.0
	return result
}

// buildStatistics describes how a set of sessions spreads over days and resources.
func buildStatistics(sessions []committedSession, workingDays int) dto.ScheduleStatistics {
	stats := dto.ScheduleStatistics{
		SessionsPerDay:      make(map[string]int),
		SessionsPerTimeSlot: make(map[string]int),
		TeacherUtilization:  make(map[string]float64),
		SpaceUtilization:    make(map[string]float64),
		HoursPerCourse:      make(map[string]int),
	}
	teacherHours := make(map[string]int)
	spaceHours := make(map[string]int)
	for _, s := range sessions {
		stats.SessionsPerDay[string(s.DayOfWeek)]++
		stats.SessionsPerTimeSlot[s.TimeSlotName]++
		stats.HoursPerCourse[s.CourseName] += s.Hours()
		teacherHours[s.TeacherName] += s.Hours()
		spaceHours[s.LearningSpaceName] += s.Hours()
	}
	for name, hours := range teacherHours {
		stats.TeacherUtilization[name] = math.Min(1, float64(hours)/weeklyHoursReference)
	}
	for name, hours := range spaceHours {
		stats.SpaceUtilization[name] = math.Min(1, float64(hours)/weeklyHoursReference)
	}
	if workingDays > 0 {
		stats.AverageSessionsPerDay = float64(len(sessions)) / float64(workingDays)
	}
	if len(stats.SessionsPerDay) > 0 {
		values := make([]float64, 0, len(stats.SessionsPerDay))
		for _, n := range stats.SessionsPerDay {
			values = append(values, float64(n))
		}
		mean, stddev := meanAndStdDev(values)
		stats.DistributionBalance = math.Max(0, 1-(stddev*stddev)/(mean+1))
	}
	return stats
}

// buildGenerationResult turns the final run state into the externally visible result.
func buildGenerationResult(state *generationContext, runID string, elapsed time.Duration, fatal error, withExisting bool) dto.GenerationResult {
	sessions := state.Sessions()
	result := dto.GenerationResult{
		RunID:           runID,
		Success:         fatal == nil,
		Sessions:        make([]dto.GeneratedSession, 0, len(sessions)),
		Conflicts:       state.Conflicts(),
		Warnings:        state.Warnings(),
		Statistics:      buildStatistics(sessions, len(state.opts.WorkingDays())),
		ExecutionTimeMs: elapsed.Milliseconds(),
	}
	if result.Conflicts == nil {
		result.Conflicts = []dto.ScheduleConflict{}
	}
	if result.Warnings == nil {
		result.Warnings = []dto.ScheduleWarning{}
	}
	for _, s := range sessions {
		result.Sessions = append(result.Sessions, s.GeneratedSession)
		result.Summary.TotalHoursAssigned += s.Hours()
	}
	for _, g := range state.groups {
		result.Summary.TotalHoursRequired += g.TotalWeeklyHours
	}
	result.Summary.TotalGroups = len(state.groups)
	result.Summary.TotalCourses = countDistinctCourses(state.groups)
	result.Summary.TotalSessions = len(sessions)
	result.Summary.RemainingHours = state.TotalRemainingHours()
	result.Summary.ConflictsFound = len(result.Conflicts)
	result.Summary.WarningsGenerated = len(result.Warnings)
	result.Summary.SuccessRate = 1
	if required := result.Summary.TotalHoursRequired; required > 0 {
		covered := required - result.Summary.RemainingHours
		result.Summary.SuccessRate = clamp(float64(covered)/float64(required), 0, 1)
	}
	if withExisting && state.HasPreserved() {
		result.Summary.QualityScore = state.QualityScoreWithExisting()
	} else {
		result.Summary.QualityScore = state.QualityScore()
	}

	switch {
	case fatal != nil:
		result.Message = fmt.Sprintf("Generation aborted after %d sessions: %v", len(sessions), fatal)
	case result.Summary.RemainingHours > 0:
		result.Message = fmt.Sprintf("Generated %d sessions for %d groups; %d hours could not be assigned",
			len(state.NewSessions()), len(state.groups), result.Summary.RemainingHours)
	default:
		result.Message = fmt.Sprintf("Generated %d sessions for %d groups", len(state.NewSessions()), len(state.groups))
	}
	return result
}

func countDistinctCourses(groups []dto.GroupRequirement) int {
	seen := make(map[string]bool)
	for _, g := range groups {
		for _, c := range g.Courses {
			seen[c.CourseID] = true
		}
	}
	return len(seen)
}

func countMixedCourses(groups []dto.GroupRequirement) int {
	seen := make(map[string]bool)
	for _, g := range groups {
		for _, c := range g.Courses {
			if c.IsMixed {
				seen[c.CourseID] = true
			}
		}
	}
	return len(seen)
}

func requiresPractice(groups []dto.GroupRequirement) bool {
	for _, g := range groups {
		for _, c := range g.Courses {
			if c.WeeklyPracticeHours > 0 {
				return true
			}
		}
	}
	return false
}

// sortedKeys returns map keys in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
