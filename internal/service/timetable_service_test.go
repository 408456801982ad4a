package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

func warningsOfType(warnings []dto.ScheduleWarning, kind string) []dto.ScheduleWarning {
	var out []dto.ScheduleWarning
	for _, w := range warnings {
		if w.Type == kind {
			out = append(out, w)
		}
	}
	return out
}

func TestTimetableServiceGenerateSpreadsHoursAcrossAvailableDays(t *testing.T) {
	store := &memorySessionStore{}
	svc, mock := newTimetableServiceFixture(t, scenarioCatalog(), store, nil)
	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := svc.Generate(context.Background(), dto.GenerationRequest{
		PeriodID:            "period-1",
		GroupIDs:            []string{"group-1"},
		MaxConsecutiveHours: intPtr(2),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.True(t, result.Success)
	assert.NotEmpty(t, result.RunID)
	require.Len(t, result.Sessions, 2)
	assert.Equal(t, models.Monday, result.Sessions[0].DayOfWeek)
	assert.Equal(t, models.Tuesday, result.Sessions[1].DayOfWeek)
	for _, s := range result.Sessions {
		assert.Equal(t, []string{"m1-h1", "m1-h2"}, s.TeachingHourIDs)
		assert.Equal(t, []string{"08:00-09:00", "09:00-10:00"}, s.TeachingHours)
		assert.Equal(t, "teacher-1", s.TeacherID)
		assert.Equal(t, "room-1", s.LearningSpaceID)
		assert.Equal(t, models.SessionTypeTheory, s.SessionType)
		assert.Equal(t, "auto-generated", s.Notes)
		assert.True(t, s.IsNewlyGenerated)
	}
	assert.Empty(t, result.Conflicts)
	assert.Equal(t, 4, result.Summary.TotalHoursAssigned)
	assert.Equal(t, 4, result.Summary.TotalHoursRequired)
	assert.Equal(t, 0, result.Summary.RemainingHours)
	assert.Equal(t, 1.0, result.Summary.SuccessRate)
	assert.Len(t, store.all(), 2)
}

func TestTimetableServiceGenerateReportsTeacherConflict(t *testing.T) {
	catalog := &stubTimetableCatalog{
		groups: []models.StudentGroup{
			newGroup("group-1", "A-1", "cycle-1"),
			newGroup("group-2", "B-1", "cycle-1"),
		},
		courses:      []models.Course{{ID: "course-math", Name: "Mathematics", CycleID: "cycle-1", KnowledgeAreaID: "area-sci", WeeklyTheoryHours: 2}},
		teachers:     []models.Teacher{newTeacher("teacher-1", "Ada Lovelace", "area-sci")},
		availability: availableOn("teacher-1", "08:00", "10:00", models.Monday),
		spaces:       []models.LearningSpace{theoryRoom("room-1", 30), theoryRoom("room-2", 30)},
		slots:        []models.TimeSlot{hourlySlot("m1", "M1", 8, 2)},
	}
	svc, mock := newTimetableServiceFixture(t, catalog, &memorySessionStore{}, nil)
	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := svc.Generate(context.Background(), dto.GenerationRequest{
		PeriodID: "period-1",
		GroupIDs: []string{"group-1", "group-2"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, result.Sessions, 1)
	assert.Equal(t, "group-1", result.Sessions[0].GroupID)
	assert.Equal(t, 2, result.Summary.RemainingHours)
	assert.Equal(t, 0.5, result.Summary.SuccessRate)

	teacherConflicts := warningsOfType(result.Warnings, dto.ConflictTeacher)
	require.Len(t, teacherConflicts, 1)
	assert.Equal(t, "B-1", teacherConflicts[0].AffectedGroup)
	assert.Equal(t, 2, teacherConflicts[0].RemainingHours)
	assert.Equal(t, dto.SeverityHigh, teacherConflicts[0].Severity)

	incomplete := warningsOfType(result.Warnings, dto.WarningIncompleteAssignment)
	require.Len(t, incomplete, 1)
	assert.Equal(t, "B-1", incomplete[0].AffectedGroup)
}

func TestTimetableServiceGenerateKeepsHardInvariants(t *testing.T) {
	labSpecialty := strPtr("specialty-physics")
	days := []models.Weekday{models.Monday, models.Tuesday, models.Wednesday, models.Thursday, models.Friday}
	var availability []models.TeacherAvailability
	for _, id := range []string{"teacher-1", "teacher-2", "teacher-3"} {
		availability = append(availability, availableOn(id, "08:00", "13:00", days...)...)
	}
	catalog := &stubTimetableCatalog{
		groups: []models.StudentGroup{
			newGroup("group-1", "A-1", "cycle-1"),
			newGroup("group-2", "A-2", "cycle-1"),
			newGroup("group-3", "A-3", "cycle-1"),
		},
		courses: []models.Course{
			{ID: "course-math", Name: "Mathematics", CycleID: "cycle-1", KnowledgeAreaID: "area-sci", WeeklyTheoryHours: 4},
			{ID: "course-phys", Name: "Physics", CycleID: "cycle-1", KnowledgeAreaID: "area-sci", PreferredSpecialtyID: labSpecialty, WeeklyTheoryHours: 2, WeeklyPracticeHours: 2},
			{ID: "course-lit", Name: "Literature", CycleID: "cycle-1", KnowledgeAreaID: "area-hum", WeeklyTheoryHours: 3},
		},
		teachers: []models.Teacher{
			newTeacher("teacher-1", "Ada Lovelace", "area-sci"),
			newTeacher("teacher-2", "Alan Turing", "area-sci"),
			newTeacher("teacher-3", "Mary Shelley", "area-hum"),
		},
		availability: availability,
		spaces:       []models.LearningSpace{theoryRoom("room-1", 30), theoryRoom("room-2", 35), labRoom("lab-1", labSpecialty)},
		slots:        []models.TimeSlot{hourlySlot("m1", "M1", 8, 2), hourlySlot("m2", "M2", 10, 3)},
	}
	store := &memorySessionStore{}
	svc, mock := newTimetableServiceFixture(t, catalog, store, nil)
	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := svc.Generate(context.Background(), dto.GenerationRequest{
		PeriodID: "period-1",
		CycleID:  "cycle-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Sessions)

	hours := make(map[string]models.TeachingHour)
	for _, slot := range catalog.slots {
		for _, h := range slot.TeachingHours {
			hours[h.ID] = h
		}
	}
	type booking struct {
		resource string
		day      models.Weekday
		hour     string
	}
	teacherSeen := make(map[booking]bool)
	spaceSeen := make(map[booking]bool)
	groupSeen := make(map[booking]bool)
	assigned := make(map[string]int)
	for _, s := range result.Sessions {
		for i, id := range s.TeachingHourIDs {
			for _, seen := range []struct {
				index map[booking]bool
				key   booking
			}{
				{teacherSeen, booking{s.TeacherID, s.DayOfWeek, id}},
				{spaceSeen, booking{s.LearningSpaceID, s.DayOfWeek, id}},
				{groupSeen, booking{s.GroupID, s.DayOfWeek, id}},
			} {
				require.False(t, seen.index[seen.key], "double booking %+v", seen.key)
				seen.index[seen.key] = true
			}
			if i > 0 {
				prev, cur := hours[s.TeachingHourIDs[i-1]], hours[id]
				assert.Equal(t, prev.TimeSlotID, cur.TimeSlotID)
				assert.Equal(t, prev.OrderInTimeSlot+1, cur.OrderInTimeSlot)
				assert.Equal(t, prev.EndTime, cur.StartTime)
			}
		}
		assert.LessOrEqual(t, len(s.TeachingHourIDs), 4)
		assigned[fmt.Sprintf("%s/%s/%s", s.GroupID, s.CourseID, s.SessionType)] += len(s.TeachingHourIDs)
		if s.SessionType == models.SessionTypePractice {
			assert.Equal(t, "lab-1", s.LearningSpaceID)
		}
	}
	quotas := map[string]int{
		"course-math/THEORY":   4,
		"course-phys/THEORY":   2,
		"course-phys/PRACTICE": 2,
		"course-lit/THEORY":    3,
	}
	for key, hoursAssigned := range assigned {
		parts := strings.SplitN(key, "/", 3)
		require.Len(t, parts, 3)
		assert.LessOrEqual(t, hoursAssigned, quotas[parts[1]+"/"+parts[2]], "quota exceeded for %s", parts[0])
	}
	assert.Len(t, store.all(), len(result.Sessions))
	assert.LessOrEqual(t, result.Summary.SuccessRate, 1.0)
}

func TestTimetableServiceGenerateKeepsTeacherContinuity(t *testing.T) {
	catalog := scenarioCatalog()
	catalog.slots = []models.TimeSlot{hourlySlot("m1", "M1", 8, 1), hourlySlot("m2", "M2", 9, 1)}
	catalog.teachers = append(catalog.teachers, newTeacher("teacher-2", "Alan Turing", "area-sci"))
	catalog.availability = append(catalog.availability, availableOn("teacher-2", "08:00", "10:00", models.Monday, models.Tuesday)...)
	svc, mock := newTimetableServiceFixture(t, catalog, &memorySessionStore{}, nil)
	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := svc.Generate(context.Background(), dto.GenerationRequest{
		PeriodID:            "period-1",
		GroupIDs:            []string{"group-1"},
		MaxConsecutiveHours: intPtr(1),
	})
	require.NoError(t, err)
	require.Len(t, result.Sessions, 4)
	for _, s := range result.Sessions {
		assert.Equal(t, result.Sessions[0].TeacherID, s.TeacherID)
		assert.Len(t, s.TeachingHourIDs, 1)
	}
}

func TestTimetableServiceGenerateEvictsRejectedSlot(t *testing.T) {
	store := &memorySessionStore{rejectNext: 1}
	svc, mock := newTimetableServiceFixture(t, scenarioCatalog(), store, nil)
	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := svc.Generate(context.Background(), dto.GenerationRequest{
		PeriodID:            "period-1",
		GroupIDs:            []string{"group-1"},
		MaxConsecutiveHours: intPtr(2),
	})
	require.NoError(t, err)
	assert.True(t, result.Success)

	rejected := warningsOfType(result.Warnings, dto.WarningCommitRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, models.Monday, rejected[0].DayOfWeek)
	assert.Equal(t, dto.SeverityLow, rejected[0].Severity)

	require.Len(t, result.Sessions, 1)
	assert.Equal(t, models.Tuesday, result.Sessions[0].DayOfWeek)
	assert.Equal(t, 2, result.Summary.RemainingHours)
	assert.Len(t, warningsOfType(result.Warnings, dto.WarningIncompleteAssignment), 1)

	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, dto.ConflictTeacher, result.Conflicts[0].Type)
	assert.Equal(t, "Ada Lovelace", result.Conflicts[0].AffectedTeacher)
	assert.Equal(t, models.Monday, result.Conflicts[0].DayOfWeek)
	assert.Equal(t, "08:00-10:00", result.Conflicts[0].TimeRange)
	assert.Equal(t, 1, result.Summary.ConflictsFound)
}

func TestTimetableServiceGenerateKeepsSessionsWhenCancelledMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var writeErrs []error
	store := &memorySessionStore{onCommit: func(writeCtx context.Context) {
		cancel()
		writeErrs = append(writeErrs, writeCtx.Err())
	}}
	svc, mock := newTimetableServiceFixture(t, scenarioCatalog(), store, nil)
	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := svc.Generate(ctx, dto.GenerationRequest{
		PeriodID:            "period-1",
		GroupIDs:            []string{"group-1"},
		MaxConsecutiveHours: intPtr(2),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, []error{nil}, writeErrs, "the write in flight is not cancelled")
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "interrupted")
	require.Len(t, result.Sessions, 1)
	assert.Len(t, store.all(), 1)
}

func TestTimetableServiceGenerateSummaryCountsEachGroupQuota(t *testing.T) {
	catalog := &stubTimetableCatalog{
		groups: []models.StudentGroup{
			newGroup("group-1", "A-1", "cycle-1"),
			newGroup("group-2", "B-1", "cycle-1"),
		},
		courses:      []models.Course{{ID: "course-math", Name: "Mathematics", CycleID: "cycle-1", KnowledgeAreaID: "area-sci", WeeklyTheoryHours: 2}},
		teachers:     []models.Teacher{newTeacher("teacher-1", "Ada Lovelace", "area-sci")},
		availability: availableOn("teacher-1", "08:00", "12:00", models.Monday),
		spaces:       []models.LearningSpace{theoryRoom("room-1", 30), theoryRoom("room-2", 30)},
		slots:        []models.TimeSlot{hourlySlot("m1", "M1", 8, 4)},
	}
	store := &memorySessionStore{sessions: []models.ClassSession{{
		ID:              "existing-1",
		PeriodID:        "period-1",
		StudentGroupID:  "group-1",
		CourseID:        "course-math",
		TeacherID:       "teacher-1",
		LearningSpaceID: "room-1",
		SessionType:     models.SessionTypeTheory,
		DayOfWeek:       models.Monday,
		TeachingHourIDs: []string{"m1-h1", "m1-h2", "m1-h3", "m1-h4"},
	}}}
	svc, mock := newTimetableServiceFixture(t, catalog, store, nil)
	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := svc.Generate(context.Background(), dto.GenerationRequest{
		PeriodID: "period-1",
		GroupIDs: []string{"group-1", "group-2"},
	})
	require.NoError(t, err)

	assert.Equal(t, 4, result.Summary.TotalHoursAssigned)
	assert.Equal(t, 4, result.Summary.TotalHoursRequired)
	assert.Equal(t, 2, result.Summary.RemainingHours)
	assert.Equal(t, 0.5, result.Summary.SuccessRate)
	assert.Contains(t, result.Message, "2 hours could not be assigned")
	incomplete := warningsOfType(result.Warnings, dto.WarningIncompleteAssignment)
	require.Len(t, incomplete, 1)
	assert.Equal(t, "B-1", incomplete[0].AffectedGroup)
}

func TestTimetableServiceGenerateWarnsWhenPreferredSlotsAreMissed(t *testing.T) {
	catalog := scenarioCatalog()
	catalog.slots = append(catalog.slots, hourlySlot("a1", "A1", 14, 2))
	svc, mock := newTimetableServiceFixture(t, catalog, &memorySessionStore{}, nil)
	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := svc.Generate(context.Background(), dto.GenerationRequest{
		PeriodID:             "period-1",
		GroupIDs:             []string{"group-1"},
		MaxConsecutiveHours:  intPtr(2),
		PreferredTimeSlotIDs: []string{"a1"},
	})
	require.NoError(t, err)

	require.Len(t, result.Sessions, 2)
	missed := warningsOfType(result.Warnings, dto.WarningPreferredUnavailable)
	require.Len(t, missed, 1, "one warning per course pass")
	assert.Equal(t, "Mathematics", missed[0].AffectedCourse)
	assert.Equal(t, dto.SeverityLow, missed[0].Severity)
}

func TestTimetableServiceGenerateStopsOnStoreFailure(t *testing.T) {
	store := &memorySessionStore{commitErr: errors.New("connection reset"), failAfter: 1}
	svc, mock := newTimetableServiceFixture(t, scenarioCatalog(), store, nil)
	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := svc.Generate(context.Background(), dto.GenerationRequest{
		PeriodID:            "period-1",
		GroupIDs:            []string{"group-1"},
		MaxConsecutiveHours: intPtr(2),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "connection reset")
	require.Len(t, result.Sessions, 1)
	assert.Len(t, store.all(), 1)
}

func TestTimetableServiceGenerateFailsWhenTransactionCommitFails(t *testing.T) {
	svc, mock := newTimetableServiceFixture(t, scenarioCatalog(), &memorySessionStore{}, nil)
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	_, err := svc.Generate(context.Background(), dto.GenerationRequest{PeriodID: "period-1", GroupIDs: []string{"group-1"}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrGenerationFailed.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceGenerateRejectsBadScope(t *testing.T) {
	svc, mock := newTimetableServiceFixture(t, scenarioCatalog(), &memorySessionStore{}, nil)

	_, err := svc.Generate(context.Background(), dto.GenerationRequest{PeriodID: "period-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Generate(context.Background(), dto.GenerationRequest{PeriodID: "period-1", GroupIDs: []string{"missing"}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Generate(context.Background(), dto.GenerationRequest{GroupIDs: []string{"group-1"}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableServiceGenerateCompletesExistingSchedule(t *testing.T) {
	notes := "manual"
	store := &memorySessionStore{sessions: []models.ClassSession{{
		ID:              "existing-1",
		PeriodID:        "period-1",
		StudentGroupID:  "group-1",
		CourseID:        "course-math",
		TeacherID:       "teacher-1",
		LearningSpaceID: "room-1",
		SessionType:     models.SessionTypeTheory,
		DayOfWeek:       models.Monday,
		TeachingHourIDs: []string{"m1-h1", "m1-h2"},
		Notes:           &notes,
	}}}
	svc, mock := newTimetableServiceFixture(t, scenarioCatalog(), store, nil)
	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := svc.Generate(context.Background(), dto.GenerationRequest{
		PeriodID:            "period-1",
		GroupIDs:            []string{"group-1"},
		MaxConsecutiveHours: intPtr(2),
	})
	require.NoError(t, err)
	require.Len(t, result.Sessions, 2)
	assert.Equal(t, "existing-1", result.Sessions[0].ID)
	assert.False(t, result.Sessions[0].IsNewlyGenerated)
	assert.Equal(t, models.Tuesday, result.Sessions[1].DayOfWeek)
	assert.True(t, result.Sessions[1].IsNewlyGenerated)
	assert.Equal(t, 0, result.Summary.RemainingHours)
	assert.Len(t, store.all(), 2)
}

func TestTimetableServiceGenerateBlocksResourcesOfOtherGroups(t *testing.T) {
	catalog := scenarioCatalog()
	catalog.groups = append(catalog.groups, newGroup("group-9", "Z-9", "cycle-9"))
	store := &memorySessionStore{sessions: []models.ClassSession{{
		ID:              "other-1",
		PeriodID:        "period-1",
		StudentGroupID:  "group-9",
		CourseID:        "course-other",
		TeacherID:       "teacher-1",
		LearningSpaceID: "room-1",
		SessionType:     models.SessionTypeTheory,
		DayOfWeek:       models.Monday,
		TeachingHourIDs: []string{"m1-h1", "m1-h2"},
	}}}
	svc, mock := newTimetableServiceFixture(t, catalog, store, nil)
	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := svc.Generate(context.Background(), dto.GenerationRequest{
		PeriodID:            "period-1",
		GroupIDs:            []string{"group-1"},
		MaxConsecutiveHours: intPtr(2),
	})
	require.NoError(t, err)
	require.Len(t, result.Sessions, 1)
	assert.Equal(t, models.Tuesday, result.Sessions[0].DayOfWeek)
	assert.Equal(t, 2, result.Summary.RemainingHours)
}

func TestTimetableServiceGenerateReportsProgress(t *testing.T) {
	svc, mock := newTimetableServiceFixture(t, scenarioCatalog(), &memorySessionStore{}, nil)
	mock.ExpectBegin()
	mock.ExpectCommit()

	var reported []int
	_, err := svc.GenerateWithProgress(context.Background(), dto.GenerationRequest{
		PeriodID: "period-1",
		GroupIDs: []string{"group-1"},
	}, func(percent int) { reported = append(reported, percent) })
	require.NoError(t, err)
	require.NotEmpty(t, reported)
	assert.Equal(t, 100, reported[len(reported)-1])
}

func TestTimetableServiceGenerateIntelligentRequiresConfirmation(t *testing.T) {
	svc, mock := newTimetableServiceFixture(t, scenarioCatalog(), &memorySessionStore{}, nil)

	_, err := svc.GenerateIntelligent(context.Background(), dto.IntelligentGenerationRequest{
		Generation: dto.GenerationRequest{PeriodID: "period-1", GroupIDs: []string{"group-1"}},
		Strategy:   dto.CleanupResetAll,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableServiceGenerateIntelligentResetsBeforeGenerating(t *testing.T) {
	store := &memorySessionStore{sessions: []models.ClassSession{{
		ID:              "stale-1",
		PeriodID:        "period-1",
		StudentGroupID:  "group-1",
		CourseID:        "course-math",
		TeacherID:       "teacher-1",
		LearningSpaceID: "room-1",
		SessionType:     models.SessionTypeTheory,
		DayOfWeek:       models.Monday,
		TeachingHourIDs: []string{"m1-h1"},
	}}}
	svc, mock := newTimetableServiceFixture(t, scenarioCatalog(), store, nil)
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := svc.GenerateIntelligent(context.Background(), dto.IntelligentGenerationRequest{
		Generation: dto.GenerationRequest{PeriodID: "period-1", GroupIDs: []string{"group-1"}, MaxConsecutiveHours: intPtr(2)},
		Strategy:   dto.CleanupResetAll,
		Confirmed:  true,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.NotNil(t, result.Cleanup)
	assert.Equal(t, 1, result.Cleanup.DeletedSessions)
	assert.Equal(t, dto.CleanupResetAll, result.Cleanup.Strategy)
	require.Len(t, result.Sessions, 2)
	for _, s := range result.Sessions {
		assert.NotEqual(t, "stale-1", s.ID)
		assert.True(t, s.IsNewlyGenerated)
	}
	assert.Contains(t, result.Message, "reset")
}

func TestTimetableServiceGenerateIntelligentUsesRecommendedStrategy(t *testing.T) {
	store := &memorySessionStore{sessions: []models.ClassSession{{
		ID:              "kept-1",
		PeriodID:        "period-1",
		StudentGroupID:  "group-1",
		CourseID:        "course-math",
		TeacherID:       "teacher-1",
		LearningSpaceID: "room-1",
		SessionType:     models.SessionTypeTheory,
		DayOfWeek:       models.Monday,
		TeachingHourIDs: []string{"m1-h1", "m1-h2"},
	}}}
	catalog := scenarioCatalog()
	catalog.courses[0].WeeklyTheoryHours = 2
	svc, mock := newTimetableServiceFixture(t, catalog, store, nil)
	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := svc.GenerateIntelligent(context.Background(), dto.IntelligentGenerationRequest{
		Generation: dto.GenerationRequest{PeriodID: "period-1", GroupIDs: []string{"group-1"}},
		Confirmed:  true,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.NotNil(t, result.Cleanup)
	assert.Equal(t, dto.CleanupCompleteExisting, result.Cleanup.Strategy)
	assert.Equal(t, 0, result.Cleanup.DeletedSessions)
	require.Len(t, result.Sessions, 1)
	assert.Equal(t, "kept-1", result.Sessions[0].ID)
	assert.GreaterOrEqual(t, result.Summary.QualityScore, 0.0)
	assert.LessOrEqual(t, result.Summary.QualityScore, 100.0)
}

func TestTimetableServiceCleanupSelective(t *testing.T) {
	store := &memorySessionStore{sessions: []models.ClassSession{
		{ID: "s1", PeriodID: "period-1", StudentGroupID: "group-1", CourseID: "course-math", DayOfWeek: models.Monday, TeachingHourIDs: []string{"m1-h1", "m1-h2"}},
		{ID: "s2", PeriodID: "period-1", StudentGroupID: "group-1", CourseID: "course-lit", DayOfWeek: models.Tuesday, TeachingHourIDs: []string{"m1-h1", "m1-h2"}},
		{ID: "s3", PeriodID: "period-1", StudentGroupID: "group-1", CourseID: "course-lit", DayOfWeek: models.Wednesday, TeachingHourIDs: []string{"m1-h1", "m1-h2"}},
	}}
	svc, mock := newTimetableServiceFixture(t, scenarioCatalog(), store, nil)

	_, err := svc.Cleanup(context.Background(), dto.CleanupRequest{
		PeriodID: "period-1",
		GroupIDs: []string{"group-1"},
		Strategy: dto.CleanupSelective,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	mock.ExpectBegin()
	mock.ExpectCommit()
	result, err := svc.Cleanup(context.Background(), dto.CleanupRequest{
		PeriodID:  "period-1",
		GroupIDs:  []string{"group-1"},
		Strategy:  dto.CleanupSelective,
		Confirmed: true,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 1, result.DeletedSessions)
	assert.Equal(t, 1, result.AffectedCourses)
	assert.Equal(t, 2, result.Details["sessionsKept"])
	remaining := store.all()
	require.Len(t, remaining, 2)
	for _, s := range remaining {
		assert.Equal(t, "course-lit", s.CourseID)
	}
}

func TestTimetableServiceCleanupCompleteExistingSkipsTransaction(t *testing.T) {
	store := &memorySessionStore{sessions: []models.ClassSession{
		{ID: "s1", PeriodID: "period-1", StudentGroupID: "group-1", CourseID: "course-math", DayOfWeek: models.Monday, TeachingHourIDs: []string{"m1-h1"}},
	}}
	svc, mock := newTimetableServiceFixture(t, scenarioCatalog(), store, nil)

	result, err := svc.Cleanup(context.Background(), dto.CleanupRequest{
		PeriodID:  "period-1",
		GroupIDs:  []string{"group-1"},
		Strategy:  dto.CleanupCompleteExisting,
		Confirmed: true,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 0, result.DeletedSessions)
	assert.Len(t, store.all(), 1)
}

func TestTimetableServiceClearPeriod(t *testing.T) {
	store := &memorySessionStore{sessions: []models.ClassSession{
		{ID: "s1", PeriodID: "period-1", StudentGroupID: "group-1"},
		{ID: "s2", PeriodID: "period-1", StudentGroupID: "group-2"},
		{ID: "s3", PeriodID: "period-2", StudentGroupID: "group-1"},
	}}
	svc, mock := newTimetableServiceFixture(t, scenarioCatalog(), store, nil)

	_, err := svc.ClearPeriod(context.Background(), "period-1", false)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	mock.ExpectBegin()
	mock.ExpectCommit()
	result, err := svc.ClearPeriod(context.Background(), "period-1", true)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 2, result.DeletedSessions)
	require.Len(t, store.all(), 1)
	assert.Equal(t, "period-2", store.all()[0].PeriodID)
}

func TestTimetableServicePreviewUsesCache(t *testing.T) {
	catalog := scenarioCatalog()
	repo := newMemoryCacheRepository()
	cache := NewCacheService(repo, nil, 0, nil, true)
	svc, mock := newTimetableServiceFixture(t, catalog, &memorySessionStore{}, cache)

	req := dto.PreviewRequest{PeriodID: "period-1", GroupIDs: []string{"group-1"}}
	first, err := svc.Preview(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Preview(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, catalog.calls())
	assert.Equal(t, first.Constraints, second.Constraints)
	assert.Equal(t, 4, first.Constraints.TotalRequiredHours)
	assert.Equal(t, 6, first.Constraints.AvailableTimeSlots)
	assert.True(t, first.Feasibility.IsFeasible)
	require.Len(t, first.GroupRequirements, 1)
	assert.Equal(t, 4, first.GroupRequirements[0].TotalWeeklyHours)

	mock.ExpectBegin()
	mock.ExpectCommit()
	_, err = svc.Generate(context.Background(), dto.GenerationRequest{PeriodID: "period-1", GroupIDs: []string{"group-1"}})
	require.NoError(t, err)
	assert.Contains(t, repo.patterns, "timetable:period-1:*")
	assert.Equal(t, 0, repo.size())
}

func TestTimetableServiceValidate(t *testing.T) {
	svc, _ := newTimetableServiceFixture(t, scenarioCatalog(), &memorySessionStore{}, nil)

	resp, err := svc.Validate(context.Background(), dto.GenerationRequest{GroupIDs: []string{"group-1"}})
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	require.NotEmpty(t, resp.Errors)
	assert.Contains(t, resp.Errors[0], "PeriodID")

	resp, err = svc.Validate(context.Background(), dto.GenerationRequest{
		PeriodID:            "period-1",
		GroupIDs:            []string{"group-1"},
		MaxHoursPerDay:      intPtr(2),
		MaxConsecutiveHours: intPtr(3),
	})
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Contains(t, resp.Errors[0], "maxConsecutiveHours")

	resp, err = svc.Validate(context.Background(), dto.GenerationRequest{PeriodID: "period-1", GroupIDs: []string{"group-1"}})
	require.NoError(t, err)
	assert.True(t, resp.IsValid)
	require.NotNil(t, resp.Feasibility)
	require.NotNil(t, resp.ExistingAnalysis)
	assert.Equal(t, dto.CleanupResetAll, resp.ExistingAnalysis.RecommendedStrategy)
}

func TestTimetableServicePeriodReports(t *testing.T) {
	catalog := scenarioCatalog()
	catalog.groups = append(catalog.groups, newGroup("group-2", "B-1", "cycle-1"))
	store := &memorySessionStore{sessions: []models.ClassSession{
		{ID: "s1", PeriodID: "period-1", StudentGroupID: "group-1", CourseID: "course-math", TeacherID: "teacher-1", LearningSpaceID: "room-1", SessionType: models.SessionTypeTheory, DayOfWeek: models.Monday, TeachingHourIDs: []string{"m1-h1", "m1-h2"}},
		{ID: "s2", PeriodID: "period-1", StudentGroupID: "group-2", CourseID: "course-math", TeacherID: "teacher-1", LearningSpaceID: "room-2", SessionType: models.SessionTypeTheory, DayOfWeek: models.Monday, TeachingHourIDs: []string{"m1-h2"}},
	}}
	svc, _ := newTimetableServiceFixture(t, catalog, store, nil)
	ctx := context.Background()

	conflicts, err := svc.DetectConflicts(ctx, "period-1")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, dto.ConflictTeacher, conflicts[0].Type)
	assert.Equal(t, "09:00-10:00", conflicts[0].TimeRange)
	assert.Equal(t, "Ada Lovelace", conflicts[0].AffectedTeacher)

	status, err := svc.PeriodStatus(ctx, "period-1")
	require.NoError(t, err)
	assert.True(t, status.HasSchedule)
	assert.Equal(t, 2, status.TotalSessions)
	assert.Equal(t, 3, status.TotalAssignedHours)
	assert.Equal(t, 2, status.GroupsWithSessions)
	assert.Equal(t, 1, status.ConflictCount)

	report, err := svc.UtilizationReport(ctx, "period-1")
	require.NoError(t, err)
	require.Len(t, report.Teachers, 1)
	assert.Equal(t, 3, report.Teachers[0].Hours)
	assert.Equal(t, 2, report.TotalSessions)

	capacity, err := svc.SystemCapacity(ctx, "period-1")
	require.NoError(t, err)
	assert.Equal(t, 2, capacity.TotalGroups)
	assert.Equal(t, 2, capacity.TeachingHoursPerDay)
	assert.Equal(t, 12, capacity.TeachingHoursPerWeek)
	assert.Equal(t, 1, capacity.TeachersAvailable)
	assert.Equal(t, 8, capacity.TotalRequiredHours)

	sessions, err := svc.PeriodSessions(ctx, "period-1", []string{"group-1"})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Mathematics", sessions[0].CourseName)
	assert.Equal(t, "A-1", sessions[0].GroupName)

	_, err = svc.PeriodStatus(ctx, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceConfigSurfaces(t *testing.T) {
	svc, _ := newTimetableServiceFixture(t, scenarioCatalog(), &memorySessionStore{}, nil)

	defaults := svc.DefaultConfig()
	assert.Equal(t, 8, defaults.MaxHoursPerDay)
	assert.Equal(t, 4, defaults.MaxConsecutiveHours)

	templates := svc.ConfigTemplates()
	require.Len(t, templates, 4)
	templates[0].Key = "mutated"
	assert.Equal(t, "balanced", svc.ConfigTemplates()[0].Key)
}
