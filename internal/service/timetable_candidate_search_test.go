package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
)

func searchFixture(t *testing.T, catalog *stubTimetableCatalog, req dto.GenerationRequest) (*generationContext, *catalogSnapshot, generationOptions) {
	t.Helper()
	snap := mustSnapshot(t, catalog)
	opts := mustOptions(t, req)
	return newGenerationContext(opts, buildGroupRequirements(snap)), snap, opts
}

func committedAt(groupID, teacherID, roomID string, day models.Weekday, slotID string, start, end int, hourIDs ...string) committedSession {
	return committedSession{
		GeneratedSession: dto.GeneratedSession{
			ID:               groupID + "-" + string(day) + "-" + slotID,
			CourseID:         "course-math",
			GroupID:          groupID,
			GroupName:        groupID,
			TeacherID:        teacherID,
			LearningSpaceID:  roomID,
			DayOfWeek:        day,
			TimeSlotID:       slotID,
			TeachingHourIDs:  hourIDs,
			SessionType:      models.SessionTypeTheory,
			IsNewlyGenerated: true,
		},
		Start: start,
		End:   end,
	}
}

func TestGenerationContextTracksBookings(t *testing.T) {
	state, _, _ := searchFixture(t, scenarioCatalog(), dto.GenerationRequest{PeriodID: "period-1", GroupIDs: []string{"group-1"}})

	state.RecordCommittedSession(committedAt("group-1", "teacher-1", "room-1", models.Monday, "m1", 480, 540, "m1-h1"))

	assert.False(t, state.IsSlotFree("group-1", models.Monday, "m1", []string{"m1-h1"}))
	assert.True(t, state.IsSlotFree("group-1", models.Monday, "m1", []string{"m1-h2"}))
	assert.True(t, state.IsHourOccupied("group-1", daySlotKey{Day: models.Monday, TimeSlotID: "m1"}, "m1-h1"))
	assert.False(t, state.IsTeacherFree("teacher-1", models.Monday, "m1"))
	assert.True(t, state.IsTeacherFree("teacher-1", models.Tuesday, "m1"))
	assert.False(t, state.IsRoomFree("room-1", models.Monday, "m1"))
	assert.Equal(t, 1, state.DailyHours("group-1", models.Monday))
	assert.Equal(t, 1, state.AssignedHours("group-1", "course-math", models.SessionTypeTheory))
	assert.InDelta(t, 0.25, state.Progress("group-1"), 0.0001)
	assert.True(t, state.HasAdjacentSession("group-1", models.Monday, 540, 600))
	assert.False(t, state.HasAdjacentSession("group-1", models.Monday, 600, 660))

	state.SeedExternalBooking("teacher-2", "room-2", models.Friday, "m1")
	assert.False(t, state.IsTeacherFree("teacher-2", models.Friday, "m1"))
	assert.False(t, state.IsRoomFree("room-2", models.Friday, "m1"))
	assert.Len(t, state.Sessions(), 1)
}

func TestGenerationContextContinuityKeepsFirstTeacher(t *testing.T) {
	state, _, _ := searchFixture(t, scenarioCatalog(), dto.GenerationRequest{PeriodID: "period-1", GroupIDs: []string{"group-1"}})

	state.SetContinuityTeacher("group-1", "course-math", "teacher-1")
	state.SetContinuityTeacher("group-1", "course-math", "teacher-2")
	assert.Equal(t, "teacher-1", state.ContinuityTeacher("group-1", "course-math"))

	seeded := committedAt("group-1", "teacher-9", "room-1", models.Monday, "m1", 480, 600, "m1-h1", "m1-h2")
	state.SeedExistingSession(seeded)
	assert.Equal(t, "teacher-1", state.ContinuityTeacher("group-1", "course-math"))
	assert.True(t, state.HasPreserved())
	assert.Empty(t, state.NewSessions())
}

func TestGenerationContextQualityScore(t *testing.T) {
	state, _, _ := searchFixture(t, scenarioCatalog(), dto.GenerationRequest{PeriodID: "period-1", GroupIDs: []string{"group-1"}})
	empty := state.QualityScore()
	assert.Equal(t, 100.0, empty, "balanced bonus without warnings saturates")

	for i := 0; i < 30; i++ {
		state.AddWarning(dto.ScheduleWarning{Type: dto.WarningNoAvailableSlot})
	}
	assert.Equal(t, 0.0, state.QualityScore())

	state.SeedExistingSession(committedAt("group-1", "teacher-1", "room-1", models.Monday, "m1", 480, 600, "m1-h1", "m1-h2"))
	assert.Equal(t, 3.0, state.QualityScoreWithExisting())
}

func TestGenerationContextImbalance(t *testing.T) {
	state, _, _ := searchFixture(t, scenarioCatalog(), dto.GenerationRequest{PeriodID: "period-1", GroupIDs: []string{"group-1"}})
	assert.False(t, state.HasImbalance("group-1"))

	state.RecordCommittedSession(committedAt("group-1", "teacher-1", "room-1", models.Monday, "m1", 480, 600, "m1-h1", "m1-h2"))
	assert.True(t, state.HasImbalance("group-1"))

	noSpread := mustOptions(t, dto.GenerationRequest{PeriodID: "period-1", GroupIDs: []string{"group-1"}, DistributeEvenly: boolPtr(false)})
	state.opts = noSpread
	assert.False(t, state.HasImbalance("group-1"))
}

func mathSearch(state *generationContext, hours int) searchRequest {
	group := state.groups[0]
	return searchRequest{Group: group, Course: group.Courses[0], SessionType: models.SessionTypeTheory, Hours: hours}
}

func TestCandidateSearchPrefersEarliestBestSlot(t *testing.T) {
	state, snap, opts := searchFixture(t, scenarioCatalog(), dto.GenerationRequest{PeriodID: "period-1", GroupIDs: []string{"group-1"}})
	pool := newSlotPool(snap, opts, nil)

	found, diagnosis := newCandidateSearch(state, snap, opts).Find(mathSearch(state, 2), pool)
	require.NotNil(t, found)
	assert.Equal(t, models.Monday, found.Slot.Day)
	assert.Equal(t, []string{"m1-h1", "m1-h2"}, found.HourIDs())
	assert.Equal(t, "teacher-1", found.Teacher.ID)
	assert.Equal(t, "room-1", found.Space.ID)
	assert.Equal(t, 6, diagnosis.SlotsExamined)
	assert.Equal(t, 4, diagnosis.NoEligibleTeacher)
}

func TestCandidateSearchRewardsContinuityTeacher(t *testing.T) {
	catalog := scenarioCatalog()
	catalog.teachers = append([]models.Teacher{newTeacher("teacher-0", "Grace Hopper", "area-sci")}, catalog.teachers...)
	catalog.availability = append(catalog.availability, availableOn("teacher-0", "08:00", "10:00", models.Monday, models.Tuesday)...)
	state, snap, opts := searchFixture(t, catalog, dto.GenerationRequest{PeriodID: "period-1", GroupIDs: []string{"group-1"}})
	state.SetContinuityTeacher("group-1", "course-math", "teacher-1")

	found, _ := newCandidateSearch(state, snap, opts).Find(mathSearch(state, 2), newSlotPool(snap, opts, nil))
	require.NotNil(t, found)
	assert.Equal(t, "teacher-1", found.Teacher.ID)
}

func TestCandidateSearchPrefersSpecialtyRoom(t *testing.T) {
	specialty := strPtr("specialty-math")
	catalog := scenarioCatalog()
	catalog.courses[0].PreferredSpecialtyID = specialty
	catalog.spaces = append(catalog.spaces, models.LearningSpace{
		ID: "room-math", Name: "Math room", Capacity: 50, SessionType: models.SessionTypeTheory, SpecialtyID: specialty,
	})
	state, snap, opts := searchFixture(t, catalog, dto.GenerationRequest{PeriodID: "period-1", GroupIDs: []string{"group-1"}})

	found, _ := newCandidateSearch(state, snap, opts).Find(mathSearch(state, 2), newSlotPool(snap, opts, nil))
	require.NotNil(t, found)
	assert.Equal(t, "room-math", found.Space.ID)
}

func TestCandidateSearchPrefersPreferredSlot(t *testing.T) {
	catalog := scenarioCatalog()
	catalog.slots = append(catalog.slots, hourlySlot("a1", "A1", 14, 2))
	catalog.availability = availableOn("teacher-1", "08:00", "18:00", models.Monday)
	state, snap, opts := searchFixture(t, catalog, dto.GenerationRequest{
		PeriodID:             "period-1",
		GroupIDs:             []string{"group-1"},
		PreferredTimeSlotIDs: []string{"a1"},
	})

	found, _ := newCandidateSearch(state, snap, opts).Find(mathSearch(state, 2), newSlotPool(snap, opts, nil))
	require.NotNil(t, found)
	assert.Equal(t, "a1", found.Slot.TimeSlotID)
}

func TestCandidateSearchDiagnosis(t *testing.T) {
	state, snap, opts := searchFixture(t, scenarioCatalog(), dto.GenerationRequest{PeriodID: "period-1", GroupIDs: []string{"group-1"}})
	state.SeedExternalBooking("teacher-1", "room-x", models.Monday, "m1")
	state.SeedExternalBooking("teacher-x", "room-1", models.Tuesday, "m1")

	found, diagnosis := newCandidateSearch(state, snap, opts).Find(mathSearch(state, 2), newSlotPool(snap, opts, nil))
	assert.Nil(t, found)
	assert.Equal(t, 1, diagnosis.TeachersBusy)
	assert.Equal(t, 1, diagnosis.RoomsBusy)
	assert.Equal(t, dto.ConflictTeacher, diagnosis.WarningType())
	assert.Contains(t, diagnosis.String(), "teachersBusy=1")

	assert.Equal(t, dto.ConflictSpace, searchDiagnosis{RoomsBusy: 2}.WarningType())
	assert.Equal(t, dto.WarningNoAvailableSlot, searchDiagnosis{NoEligibleTeacher: 3}.WarningType())
	assert.Contains(t, searchDiagnosis{NoRoom: 1}.Suggestion(), "learning spaces")
	assert.Contains(t, searchDiagnosis{NoConsecutiveRun: 1}.Suggestion(), "maxConsecutiveHours")
}

func TestFindTimeGaps(t *testing.T) {
	sessions := []committedSession{
		committedAt("group-1", "teacher-1", "room-1", models.Monday, "m1", 480, 540, "m1-h1"),
		committedAt("group-1", "teacher-1", "room-1", models.Monday, "m2", 570, 630, "m2-h1"),
		committedAt("group-1", "teacher-1", "room-1", models.Monday, "a1", 840, 900, "a1-h1"),
		committedAt("group-1", "teacher-1", "room-1", models.Tuesday, "m1", 480, 540, "m1-h1"),
	}
	gaps := findTimeGaps(sessions)
	require.Len(t, gaps, 1)
	assert.Equal(t, dto.WarningTimeGap, gaps[0].Type)
	assert.Contains(t, gaps[0].Message, "210 minute gap")
}

func TestDescribeDimensions(t *testing.T) {
	assert.Equal(t, "conflicting session", describeDimensions(nil))
	assert.Equal(t, "teacher already booked, space already booked", describeDimensions([]models.SessionConflict{
		{Dimension: models.ConflictDimensionTeacher},
		{Dimension: models.ConflictDimensionTeacher},
		{Dimension: models.ConflictDimensionSpace},
	}))
}
