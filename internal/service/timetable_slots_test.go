package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
)

func TestParseClock(t *testing.T) {
	cases := map[string]int{
		"08:00":    480,
		"13:45":    825,
		"07:30:00": 450,
		" 09:05 ":  545,
	}
	for raw, want := range cases {
		got, err := parseClock(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	for _, raw := range []string{"", "8", "24:00", "10:60", "aa:bb", "1:2:3:4"} {
		_, err := parseClock(raw)
		assert.Error(t, err, raw)
	}
	assert.Equal(t, "08:05", formatClock(485))
	assert.Equal(t, "08:00-09:30", formatRange(480, 570))
}

func TestScheduleSlotConsecutiveRun(t *testing.T) {
	slot := &scheduleSlot{
		Day:        models.Monday,
		TimeSlotID: "m1",
		Hours: []slotHour{
			{ID: "h3", TimeSlotID: "m1", Order: 3, Start: 600, End: 660},
			{ID: "h1", TimeSlotID: "m1", Order: 1, Start: 480, End: 540},
			{ID: "h2", TimeSlotID: "m1", Order: 2, Start: 540, End: 600},
		},
	}
	run := slot.ConsecutiveRun(2)
	require.Len(t, run, 2)
	assert.Equal(t, []string{"h1", "h2"}, runIDs(run))
	assert.Nil(t, slot.ConsecutiveRun(4))
	assert.Nil(t, slot.ConsecutiveRun(0))

	assert.False(t, slot.Consume([]string{"h2"}))
	assert.Nil(t, slot.ConsecutiveRun(2), "h1 and h3 are not adjacent")
	assert.Len(t, slot.ConsecutiveRun(1), 1)
	assert.True(t, slot.Consume([]string{"h1", "h3"}))
}

func TestIsConsecutiveRun(t *testing.T) {
	assert.False(t, isConsecutiveRun(nil))
	assert.True(t, isConsecutiveRun([]slotHour{{TimeSlotID: "m1", Order: 1, Start: 480, End: 540}}))
	assert.True(t, isConsecutiveRun([]slotHour{
		{TimeSlotID: "m1", Order: 1, Start: 480, End: 540},
		{TimeSlotID: "m1", Order: 2, Start: 540, End: 600},
	}))
	assert.False(t, isConsecutiveRun([]slotHour{
		{TimeSlotID: "m1", Order: 1, Start: 480, End: 540},
		{TimeSlotID: "m2", Order: 2, Start: 540, End: 600},
	}), "different time slots")
	assert.False(t, isConsecutiveRun([]slotHour{
		{TimeSlotID: "m1", Order: 1, Start: 480, End: 540},
		{TimeSlotID: "m1", Order: 3, Start: 540, End: 600},
	}), "order gap")
	assert.False(t, isConsecutiveRun([]slotHour{
		{TimeSlotID: "m1", Order: 1, Start: 480, End: 540},
		{TimeSlotID: "m1", Order: 2, Start: 550, End: 610},
	}), "clock gap")
}

func TestNewSlotPoolSkipsExcludedDaysAndOccupiedHours(t *testing.T) {
	catalog := scenarioCatalog()
	catalog.slots = append(catalog.slots, hourlySlot("a1", "A1", 14, 2))
	snap := mustSnapshot(t, catalog)
	opts := mustOptions(t, dto.GenerationRequest{
		PeriodID:     "period-1",
		GroupIDs:     []string{"group-1"},
		ExcludedDays: []models.Weekday{models.Saturday, models.Friday},
	})

	occupied := func(key daySlotKey, hourID string) bool {
		return key.Day == models.Monday && hourID == "m1-h1"
	}
	pool := newSlotPool(snap, opts, occupied)
	assert.Equal(t, 8, pool.Len())
	for _, slot := range pool.Slots() {
		assert.NotEqual(t, models.Saturday, slot.Day)
		assert.NotEqual(t, models.Friday, slot.Day)
	}
	first := pool.Slots()[0]
	assert.Equal(t, daySlotKey{Day: models.Monday, TimeSlotID: "m1"}, first.Key())
	assert.Equal(t, []string{"m1-h2"}, runIDs(first.Hours))

	pool.Evict(first.Key())
	assert.Equal(t, 7, pool.Len())
	pool.Consume(daySlotKey{Day: models.Monday, TimeSlotID: "a1"}, []string{"a1-h1"})
	assert.Equal(t, 7, pool.Len())
	pool.Consume(daySlotKey{Day: models.Monday, TimeSlotID: "a1"}, []string{"a1-h2"})
	assert.Equal(t, 6, pool.Len())
}

func TestCatalogSnapshotAvailability(t *testing.T) {
	catalog := scenarioCatalog()
	catalog.availability = append(catalog.availability, models.TeacherAvailability{
		ID: "blocked", TeacherID: "teacher-1", DayOfWeek: models.Wednesday, StartTime: "08:00", EndTime: "12:00", IsAvailable: false,
	})
	snap := mustSnapshot(t, catalog)

	assert.True(t, snap.TeacherAvailableFor("teacher-1", models.Monday, 480, 600))
	assert.False(t, snap.TeacherAvailableFor("teacher-1", models.Monday, 480, 660), "window must cover the run")
	assert.False(t, snap.TeacherAvailableFor("teacher-1", models.Wednesday, 480, 540), "unavailable window")
	assert.False(t, snap.TeacherAvailableFor("teacher-2", models.Monday, 480, 540), "no windows")
	assert.Len(t, snap.TeachersFor("area-sci"), 1)
	assert.Empty(t, snap.TeachersFor("area-hum"))
	assert.Len(t, snap.SpacesFor(models.SessionTypeTheory), 1)
	assert.Equal(t, 2, snap.TeachingHoursPerDay())

	catalog.slots = []models.TimeSlot{{ID: "bad", Name: "Bad", StartTime: "8am", EndTime: "10:00"}}
	_, err := buildCatalogSnapshot(catalog.groups, nil, nil, nil, nil, catalog.slots)
	assert.Error(t, err)
}

func TestPrioritizeCourses(t *testing.T) {
	courses := prioritizeCourses([]dto.CourseRequirement{
		{CourseID: "c", CourseName: "Chemistry", WeeklyTheoryHours: 2},
		{CourseID: "a", CourseName: "Art", WeeklyTheoryHours: 2},
		{CourseID: "m", CourseName: "Mixed", WeeklyTheoryHours: 1, WeeklyPracticeHours: 1, IsMixed: true},
		{CourseID: "s", CourseName: "Specialty", WeeklyTheoryHours: 2, PreferredSpecialtyID: "lab"},
		{CourseID: "b", CourseName: "Big", WeeklyTheoryHours: 5},
	})
	ids := make([]string, len(courses))
	for i, c := range courses {
		ids[i] = c.CourseID
	}
	assert.Equal(t, []string{"b", "m", "s", "a", "c"}, ids)
}

func TestBuildGroupRequirementsSkipsEmptyCourses(t *testing.T) {
	catalog := scenarioCatalog()
	catalog.courses = append(catalog.courses,
		models.Course{ID: "course-empty", Name: "Empty", CycleID: "cycle-1", KnowledgeAreaID: "area-sci"},
		models.Course{ID: "course-lab", Name: "Lab", CycleID: "cycle-1", KnowledgeAreaID: "area-sci", WeeklyTheoryHours: 1, WeeklyPracticeHours: 2},
	)
	reqs := buildGroupRequirements(mustSnapshot(t, catalog))
	require.Len(t, reqs, 1)
	assert.Equal(t, 7, reqs[0].TotalWeeklyHours)
	require.Len(t, reqs[0].Courses, 2)
	lab := reqs[0].Courses[1]
	assert.True(t, lab.IsMixed)
	assert.Equal(t, []models.SessionType{models.SessionTypeTheory, models.SessionTypePractice}, lab.SessionTypes)
}
