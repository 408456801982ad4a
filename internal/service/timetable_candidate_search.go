package service

import (
	"fmt"
	"math"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
)

const (
	candidateBaseScore      = 100.0
	specialtyRoomBonus      = 15.0
	continuityTeacherBonus  = 25.0
	adjacentSessionBonus    = 10.0
	distributionBonusCap    = 15.0
	overDailyLimitPenalty   = 5.0
	comfortableCapacityMin  = 25
	comfortableCapacityMax  = 40
	comfortableCapacityBump = 5.0
)

// searchRequest asks for one contiguous run of a course for a group.
type searchRequest struct {
	Group       dto.GroupRequirement
	Course      dto.CourseRequirement
	SessionType models.SessionType
	Hours       int
}

// candidate is a concrete booking proposal.
type candidate struct {
	Slot    *scheduleSlot
	Run     []slotHour
	Teacher models.Teacher
	Space   models.LearningSpace
	Score   float64
}

func (c *candidate) Key() daySlotKey {
	return c.Slot.Key()
}

func (c *candidate) Bounds() (int, int) {
	return runBounds(c.Run)
}

func (c *candidate) HourIDs() []string {
	return runIDs(c.Run)
}

// searchDiagnosis counts why slots were rejected when nothing fits.
type searchDiagnosis struct {
	SlotsExamined     int
	NoConsecutiveRun  int
	GroupBusy         int
	NoEligibleTeacher int
	TeachersBusy      int
	NoRoom            int
	RoomsBusy         int
}

// WarningType maps the rejection profile to a warning kind. Booked resources win over
// structural shortages because they point at a collision with another booking.
func (d searchDiagnosis) WarningType() string {
	switch {
	case d.TeachersBusy > 0 && d.TeachersBusy >= d.RoomsBusy:
		return dto.ConflictTeacher
	case d.RoomsBusy > 0:
		return dto.ConflictSpace
	default:
		return dto.WarningNoAvailableSlot
	}
}

// Suggestion gives the operator a next step matching the dominant reason.
func (d searchDiagnosis) Suggestion() string {
	switch d.WarningType() {
	case dto.ConflictTeacher:
		return "Assign another teacher with the course's knowledge area or widen teacher availability"
	case dto.ConflictSpace:
		return "Add learning spaces of the required type or free up the preferred specialty rooms"
	}
	switch {
	case d.NoEligibleTeacher > 0 && d.NoEligibleTeacher >= d.NoRoom:
		return "Register teacher availability windows covering the open time slots"
	case d.NoRoom > 0:
		return "Register learning spaces for this session type"
	case d.NoConsecutiveRun > 0:
		return "Lower maxConsecutiveHours or add teaching hours to the time slots"
	default:
		return "Reduce excluded days or add time slots"
	}
}

func (d searchDiagnosis) String() string {
	return fmt.Sprintf("examined=%d noRun=%d groupBusy=%d noTeacher=%d teachersBusy=%d noRoom=%d roomsBusy=%d",
		d.SlotsExamined, d.NoConsecutiveRun, d.GroupBusy, d.NoEligibleTeacher, d.TeachersBusy, d.NoRoom, d.RoomsBusy)
}

// candidateSearch enumerates and scores (slot, teacher, room) options against the run state.
type candidateSearch struct {
	state   *generationContext
	catalog *catalogSnapshot
	opts    generationOptions
}

func newCandidateSearch(state *generationContext, catalog *catalogSnapshot, opts generationOptions) *candidateSearch {
	return &candidateSearch{state: state, catalog: catalog, opts: opts}
}

// Find returns the best candidate over the pool, or nil with the rejection profile.
func (s *candidateSearch) Find(req searchRequest, pool *slotPool) (*candidate, searchDiagnosis) {
	var (
		best      *candidate
		diagnosis searchDiagnosis
	)
	rooms, specialtyOnly := s.roomsFor(req.Course, req.SessionType)
	teachers := s.teachersFor(req.Group.GroupID, req.Course)

	for _, slot := range pool.Slots() {
		if s.opts.ExcludedDays[slot.Day] {
			continue
		}
		diagnosis.SlotsExamined++

		run := slot.ConsecutiveRun(req.Hours)
		if run == nil {
			diagnosis.NoConsecutiveRun++
			continue
		}
		ids := runIDs(run)
		if !s.state.IsSlotFree(req.Group.GroupID, slot.Day, slot.TimeSlotID, ids) {
			diagnosis.GroupBusy++
			continue
		}
		start, end := runBounds(run)

		freeTeachers, eligible := s.freeTeachers(teachers, slot, start, end)
		if eligible == 0 {
			diagnosis.NoEligibleTeacher++
			continue
		}
		if len(freeTeachers) == 0 {
			diagnosis.TeachersBusy++
			continue
		}
		if len(rooms) == 0 {
			diagnosis.NoRoom++
			continue
		}
		freeRooms := s.freeRooms(rooms, slot)
		if len(freeRooms) == 0 {
			diagnosis.RoomsBusy++
			continue
		}

		for _, teacher := range freeTeachers {
			for _, room := range freeRooms {
				c := &candidate{Slot: slot, Run: run, Teacher: teacher, Space: room}
				c.Score = s.score(req, c, start, end, specialtyOnly)
				if best == nil || c.Score > best.Score {
					best = c
				}
			}
		}
	}
	return best, diagnosis
}

// teachersFor lists teachers of the course's knowledge area, continuity teacher first.
func (s *candidateSearch) teachersFor(groupID string, course dto.CourseRequirement) []models.Teacher {
	teachers := s.catalog.TeachersFor(course.KnowledgeAreaID)
	continuity := s.continuityTeacher(groupID, course.CourseID)
	if continuity == "" {
		return teachers
	}
	ordered := make([]models.Teacher, 0, len(teachers))
	for _, t := range teachers {
		if t.ID == continuity {
			ordered = append(ordered, t)
		}
	}
	for _, t := range teachers {
		if t.ID != continuity {
			ordered = append(ordered, t)
		}
	}
	return ordered
}

// freeTeachers filters by declared availability and then by bookings. The second value
// counts teachers whose availability covered the run.
func (s *candidateSearch) freeTeachers(teachers []models.Teacher, slot *scheduleSlot, start, end int) ([]models.Teacher, int) {
	var (
		free     []models.Teacher
		eligible int
	)
	for _, t := range teachers {
		if !s.catalog.TeacherAvailableFor(t.ID, slot.Day, start, end) {
			continue
		}
		eligible++
		if s.state.IsTeacherFree(t.ID, slot.Day, slot.TimeSlotID) {
			free = append(free, t)
		}
	}
	return free, eligible
}

// roomsFor narrows rooms to the preferred specialty when any room of the type offers it.
func (s *candidateSearch) roomsFor(course dto.CourseRequirement, sessionType models.SessionType) ([]models.LearningSpace, bool) {
	rooms := s.catalog.SpacesFor(sessionType)
	if course.PreferredSpecialtyID == "" {
		return rooms, false
	}
	var matching []models.LearningSpace
	for _, r := range rooms {
		if r.SpecialtyID != nil && *r.SpecialtyID == course.PreferredSpecialtyID {
			matching = append(matching, r)
		}
	}
	if len(matching) == 0 {
		return rooms, false
	}
	return matching, true
}

func (s *candidateSearch) freeRooms(rooms []models.LearningSpace, slot *scheduleSlot) []models.LearningSpace {
	var free []models.LearningSpace
	for _, r := range rooms {
		if s.state.IsRoomFree(r.ID, slot.Day, slot.TimeSlotID) {
			free = append(free, r)
		}
	}
	return free
}

func (s *candidateSearch) continuityTeacher(groupID, courseID string) string {
	if !s.opts.RespectTeacherContinuity {
		return ""
	}
	return s.state.ContinuityTeacher(groupID, courseID)
}

func (s *candidateSearch) score(req searchRequest, c *candidate, start, end int, specialtyRoom bool) float64 {
	score := candidateBaseScore
	hours := len(c.Run)

	if c.Slot.Preferred {
		score += s.opts.PreferredSlotBonus()
	}
	if specialtyRoom {
		score += specialtyRoomBonus
	}
	if continuity := s.continuityTeacher(req.Group.GroupID, req.Course.CourseID); continuity != "" && continuity == c.Teacher.ID {
		score += continuityTeacherBonus
	}
	if s.opts.AvoidTimeGaps && s.state.HasAdjacentSession(req.Group.GroupID, c.Slot.Day, start, end) {
		score += adjacentSessionBonus
	}

	daily := s.state.DailyHours(req.Group.GroupID, c.Slot.Day) + hours
	if s.opts.DistributeEvenly {
		deviation := math.Abs(float64(daily) - s.state.AverageDailyHours(req.Group.GroupID))
		score += math.Max(0, distributionBonusCap-2*deviation)
	}
	if over := daily - s.opts.MaxHoursPerDay; over > 0 {
		score -= overDailyLimitPenalty * float64(over)
	}
	if c.Space.Capacity >= comfortableCapacityMin && c.Space.Capacity <= comfortableCapacityMax {
		score += comfortableCapacityBump
	}
	return math.Max(0, score)
}
