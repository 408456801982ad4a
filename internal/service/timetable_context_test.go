package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
)

func mathRequirement(groupID, name string, hours int) dto.GroupRequirement {
	return dto.GroupRequirement{
		GroupID:   groupID,
		GroupName: name,
		PeriodID:  "period-1",
		Courses: []dto.CourseRequirement{{
			CourseID:          "course-math",
			CourseName:        "Mathematics",
			WeeklyTheoryHours: hours,
			SessionTypes:      []models.SessionType{models.SessionTypeTheory},
		}},
		TotalWeeklyHours: hours,
	}
}

func TestGenerationContextSurplusDoesNotCoverOtherGroups(t *testing.T) {
	opts := mustOptions(t, dto.GenerationRequest{PeriodID: "period-1", GroupIDs: []string{"group-a", "group-b"}})
	state := newGenerationContext(opts, []dto.GroupRequirement{
		mathRequirement("group-a", "A-1", 2),
		mathRequirement("group-b", "B-1", 2),
	})
	state.SeedExistingSession(committedAt("group-a", "teacher-1", "room-1", models.Monday, "m1", 480, 720, "m1-h1", "m1-h2", "m1-h3", "m1-h4"))
	for _, kind := range []string{dto.WarningIncompleteAssignment, dto.ConflictTeacher, dto.WarningUnevenDistribution, dto.WarningTimeGap} {
		state.AddWarning(dto.ScheduleWarning{Type: kind, AffectedGroup: "B-1"})
	}

	assert.Equal(t, 0, state.RemainingHours("group-a"))
	assert.Equal(t, 2, state.RemainingHours("group-b"))
	assert.Equal(t, 2, state.TotalRemainingHours())
	assert.Equal(t, 1.0, state.Progress("group-a"))
	assert.Equal(t, 0.0, state.Progress("group-b"))
	// 100 - 4 warnings*5 + half the groups balanced*10 + mean progress 0.5*20
	assert.InDelta(t, 95.0, state.QualityScore(), 0.0001)

	result := buildGenerationResult(state, "run-1", 0, nil, false)
	assert.Equal(t, 4, result.Summary.TotalHoursAssigned)
	assert.Equal(t, 4, result.Summary.TotalHoursRequired)
	assert.Equal(t, 2, result.Summary.RemainingHours)
	assert.Equal(t, 0.5, result.Summary.SuccessRate)
	assert.Contains(t, result.Message, "2 hours could not be assigned")
}

func TestGenerationContextRemainingHoursPerSessionType(t *testing.T) {
	requirement := mathRequirement("group-a", "A-1", 2)
	requirement.Courses[0].WeeklyPracticeHours = 2
	requirement.Courses[0].SessionTypes = append(requirement.Courses[0].SessionTypes, models.SessionTypePractice)
	requirement.TotalWeeklyHours = 4
	opts := mustOptions(t, dto.GenerationRequest{PeriodID: "period-1", GroupIDs: []string{"group-a"}})
	state := newGenerationContext(opts, []dto.GroupRequirement{requirement})

	state.RecordCommittedSession(committedAt("group-a", "teacher-1", "room-1", models.Monday, "m1", 480, 720, "m1-h1", "m1-h2", "m1-h3", "m1-h4"))

	assert.Equal(t, 2, state.RemainingHours("group-a"), "extra theory hours leave the practice quota open")
	assert.Equal(t, 0.5, state.Progress("group-a"))
}

func TestFindTimeGapsKeepsGroupsWithSharedNamesApart(t *testing.T) {
	opts := mustOptions(t, dto.GenerationRequest{PeriodID: "period-1", GroupIDs: []string{"group-1", "group-2"}})
	state := newGenerationContext(opts, []dto.GroupRequirement{
		mathRequirement("group-1", "A-1", 2),
		mathRequirement("group-2", "A-1", 1),
	})
	sessions := []committedSession{
		committedAt("group-1", "teacher-1", "room-1", models.Monday, "m1", 480, 540, "m1-h1"),
		committedAt("group-2", "teacher-2", "room-2", models.Monday, "m1", 540, 600, "m1-h2"),
		committedAt("group-1", "teacher-1", "room-1", models.Monday, "m2", 660, 720, "m2-h1"),
	}
	for _, s := range sessions {
		s.GroupName = "A-1"
		state.RecordCommittedSession(s)
	}

	ordered := state.Sessions()
	assert.Equal(t, []string{"group-1", "group-1", "group-2"}, []string{ordered[0].GroupID, ordered[1].GroupID, ordered[2].GroupID})

	gaps := findTimeGaps(ordered)
	if assert.Len(t, gaps, 1) {
		assert.Equal(t, dto.WarningTimeGap, gaps[0].Type)
		assert.Contains(t, gaps[0].Message, "120 minute gap")
	}
}
