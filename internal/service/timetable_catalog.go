package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
)

// timetableCatalog is the read-only view of the academic catalog.
type timetableCatalog interface {
	ListGroups(ctx context.Context, filter models.GroupFilter) ([]models.StudentGroup, error)
	ListCoursesByCycles(ctx context.Context, cycleIDs []string) ([]models.Course, error)
	ListTeachers(ctx context.Context) ([]models.Teacher, error)
	ListTeacherAvailabilities(ctx context.Context) ([]models.TeacherAvailability, error)
	ListLearningSpaces(ctx context.Context) ([]models.LearningSpace, error)
	ListTimeSlots(ctx context.Context) ([]models.TimeSlot, error)
}

// classSessionStore persists sessions and performs the authoritative conflict check.
type classSessionStore interface {
	ListByPeriod(ctx context.Context, periodID string, groupIDs []string) ([]models.ClassSession, error)
	FindConflicts(ctx context.Context, exec sqlx.ExtContext, session *models.ClassSession) ([]models.SessionConflict, error)
	CommitSession(ctx context.Context, exec sqlx.ExtContext, session *models.ClassSession) error
	DeleteByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) (int, error)
	DeleteByGroups(ctx context.Context, exec sqlx.ExtContext, periodID string, groupIDs []string) (int, error)
	DeleteByPeriod(ctx context.Context, exec sqlx.ExtContext, periodID string) (int, error)
}

// sessionWriter binds the session store to the transaction of one run.
type sessionWriter interface {
	FindConflicts(ctx context.Context, session *models.ClassSession) ([]models.SessionConflict, error)
	Commit(ctx context.Context, session *models.ClassSession) error
}

type txSessionWriter struct {
	store classSessionStore
	exec  sqlx.ExtContext
}

func (w txSessionWriter) FindConflicts(ctx context.Context, session *models.ClassSession) ([]models.SessionConflict, error) {
	return w.store.FindConflicts(ctx, w.exec, session)
}

func (w txSessionWriter) Commit(ctx context.Context, session *models.ClassSession) error {
	return w.store.CommitSession(ctx, w.exec, session)
}

// --- Catalog snapshot ---

type catalogTimeSlot struct {
	ID    string
	Name  string
	Start int
	End   int
	Hours []slotHour
}

type availabilityWindow struct {
	Day       models.Weekday
	Start     int
	End       int
	Available bool
}

// catalogSnapshot is the immutable catalog view a run works against.
type catalogSnapshot struct {
	groups         []models.StudentGroup
	groupByID      map[string]models.StudentGroup
	courseByID     map[string]models.Course
	coursesByCycle map[string][]models.Course
	teachers       []models.Teacher
	teacherByID    map[string]models.Teacher
	availability   map[string][]availabilityWindow
	spaces         []models.LearningSpace
	spaceByID      map[string]models.LearningSpace
	timeSlots      []catalogTimeSlot
	timeSlotByID   map[string]catalogTimeSlot
	hourByID       map[string]slotHour
}

func loadCatalogSnapshot(ctx context.Context, catalog timetableCatalog, filter models.GroupFilter) (*catalogSnapshot, error) {
	groups, err := catalog.ListGroups(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("load groups: %w", err)
	}
	cycleIDs := make([]string, 0, len(groups))
	seenCycle := make(map[string]bool, len(groups))
	for _, group := range groups {
		if !seenCycle[group.CycleID] {
			seenCycle[group.CycleID] = true
			cycleIDs = append(cycleIDs, group.CycleID)
		}
	}
	var (
		courses  []models.Course
		teachers []models.Teacher
		windows  []models.TeacherAvailability
		spaces   []models.LearningSpace
		slots    []models.TimeSlot
	)
	g, gctx := errgroup.WithContext(ctx)
	if len(cycleIDs) > 0 {
		g.Go(func() (err error) {
			if courses, err = catalog.ListCoursesByCycles(gctx, cycleIDs); err != nil {
				return fmt.Errorf("load courses: %w", err)
			}
			return nil
		})
	}
	g.Go(func() (err error) {
		if teachers, err = catalog.ListTeachers(gctx); err != nil {
			return fmt.Errorf("load teachers: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if windows, err = catalog.ListTeacherAvailabilities(gctx); err != nil {
			return fmt.Errorf("load teacher availability: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if spaces, err = catalog.ListLearningSpaces(gctx); err != nil {
			return fmt.Errorf("load learning spaces: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if slots, err = catalog.ListTimeSlots(gctx); err != nil {
			return fmt.Errorf("load time slots: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return buildCatalogSnapshot(groups, courses, teachers, windows, spaces, slots)
}

func buildCatalogSnapshot(
	groups []models.StudentGroup,
	courses []models.Course,
	teachers []models.Teacher,
	windows []models.TeacherAvailability,
	spaces []models.LearningSpace,
	slots []models.TimeSlot,
) (*catalogSnapshot, error) {
	snap := &catalogSnapshot{
		groups:         groups,
		groupByID:      make(map[string]models.StudentGroup, len(groups)),
		courseByID:     make(map[string]models.Course, len(courses)),
		coursesByCycle: make(map[string][]models.Course),
		teachers:       teachers,
		teacherByID:    make(map[string]models.Teacher, len(teachers)),
		availability:   make(map[string][]availabilityWindow),
		spaces:         spaces,
		spaceByID:      make(map[string]models.LearningSpace, len(spaces)),
		timeSlotByID:   make(map[string]catalogTimeSlot, len(slots)),
		hourByID:       make(map[string]slotHour),
	}
	for _, g := range groups {
		snap.groupByID[g.ID] = g
	}
	for _, c := range courses {
		snap.courseByID[c.ID] = c
		snap.coursesByCycle[c.CycleID] = append(snap.coursesByCycle[c.CycleID], c)
	}
	for _, t := range teachers {
		snap.teacherByID[t.ID] = t
	}
	for _, w := range windows {
		start, err := parseClock(w.StartTime)
		if err != nil {
			return nil, fmt.Errorf("availability %s: %w", w.ID, err)
		}
		end, err := parseClock(w.EndTime)
		if err != nil {
			return nil, fmt.Errorf("availability %s: %w", w.ID, err)
		}
		snap.availability[w.TeacherID] = append(snap.availability[w.TeacherID], availabilityWindow{
			Day:       w.DayOfWeek,
			Start:     start,
			End:       end,
			Available: w.IsAvailable,
		})
	}
	for _, s := range spaces {
		snap.spaceByID[s.ID] = s
	}
	for _, ts := range slots {
		converted, err := convertTimeSlot(ts)
		if err != nil {
			return nil, err
		}
		snap.timeSlots = append(snap.timeSlots, converted)
		snap.timeSlotByID[converted.ID] = converted
		for _, h := range converted.Hours {
			snap.hourByID[h.ID] = h
		}
	}
	sort.SliceStable(snap.timeSlots, func(i, j int) bool {
		return snap.timeSlots[i].Start < snap.timeSlots[j].Start
	})
	return snap, nil
}

func convertTimeSlot(ts models.TimeSlot) (catalogTimeSlot, error) {
	start, err := parseClock(ts.StartTime)
	if err != nil {
		return catalogTimeSlot{}, fmt.Errorf("time slot %s: %w", ts.Name, err)
	}
	end, err := parseClock(ts.EndTime)
	if err != nil {
		return catalogTimeSlot{}, fmt.Errorf("time slot %s: %w", ts.Name, err)
	}
	out := catalogTimeSlot{ID: ts.ID, Name: ts.Name, Start: start, End: end}
	for _, h := range ts.TeachingHours {
		hs, err := parseClock(h.StartTime)
		if err != nil {
			return catalogTimeSlot{}, fmt.Errorf("teaching hour %s: %w", h.ID, err)
		}
		he, err := parseClock(h.EndTime)
		if err != nil {
			return catalogTimeSlot{}, fmt.Errorf("teaching hour %s: %w", h.ID, err)
		}
		out.Hours = append(out.Hours, slotHour{
			ID:         h.ID,
			TimeSlotID: ts.ID,
			Order:      h.OrderInTimeSlot,
			Start:      hs,
			End:        he,
		})
	}
	out.Hours = sortedHours(out.Hours)
	return out, nil
}

// TeacherAvailableFor reports whether one declared window covers [start, end) on the day.
// Teachers without declared windows are treated as unavailable.
func (s *catalogSnapshot) TeacherAvailableFor(teacherID string, day models.Weekday, start, end int) bool {
	for _, w := range s.availability[teacherID] {
		if w.Day != day || !w.Available {
			continue
		}
		if w.Start <= start && w.End >= end {
			return true
		}
	}
	return false
}

func (s *catalogSnapshot) TeachersFor(areaID string) []models.Teacher {
	var out []models.Teacher
	for _, t := range s.teachers {
		if t.HasKnowledgeArea(areaID) {
			out = append(out, t)
		}
	}
	return out
}

func (s *catalogSnapshot) SpacesFor(sessionType models.SessionType) []models.LearningSpace {
	var out []models.LearningSpace
	for _, sp := range s.spaces {
		if sp.SessionType == sessionType {
			out = append(out, sp)
		}
	}
	return out
}

// SessionHours resolves a persisted session's teaching hours in slot order.
func (s *catalogSnapshot) SessionHours(ids []string) []slotHour {
	hours := make([]slotHour, 0, len(ids))
	for _, id := range ids {
		if h, ok := s.hourByID[id]; ok {
			hours = append(hours, h)
		}
	}
	return sortedHours(hours)
}

// toCommitted projects a persisted session onto the run's session form.
func (s *catalogSnapshot) toCommitted(session models.ClassSession) (committedSession, bool) {
	hours := s.SessionHours(session.TeachingHourIDs)
	if len(hours) == 0 {
		return committedSession{}, false
	}
	start, end := runBounds(hours)
	slot := s.timeSlotByID[hours[0].TimeSlotID]
	notes := ""
	if session.Notes != nil {
		notes = *session.Notes
	}
	return committedSession{
		GeneratedSession: dto.GeneratedSession{
			ID:                session.ID,
			CourseID:          session.CourseID,
			CourseName:        s.courseByID[session.CourseID].Name,
			GroupID:           session.StudentGroupID,
			GroupName:         s.groupByID[session.StudentGroupID].Name,
			TeacherID:         session.TeacherID,
			TeacherName:       s.teacherByID[session.TeacherID].FullName,
			LearningSpaceID:   session.LearningSpaceID,
			LearningSpaceName: s.spaceByID[session.LearningSpaceID].Name,
			DayOfWeek:         session.DayOfWeek,
			TimeSlotID:        slot.ID,
			TimeSlotName:      slot.Name,
			TeachingHourIDs:   runIDs(hours),
			TeachingHours:     runRanges(hours),
			SessionType:       session.SessionType,
			Notes:             notes,
		},
		Start: start,
		End:   end,
	}, true
}

func (s *catalogSnapshot) TeachingHoursPerDay() int {
	total := 0
	for _, ts := range s.timeSlots {
		total += len(ts.Hours)
	}
	return total
}

// --- Requirements ---

// buildGroupRequirements snapshots the demand of each group from its cycle's courses.
func buildGroupRequirements(snap *catalogSnapshot) []dto.GroupRequirement {
	out := make([]dto.GroupRequirement, 0, len(snap.groups))
	for _, g := range snap.groups {
		req := dto.GroupRequirement{
			GroupID:     g.ID,
			GroupName:   g.Name,
			CycleID:     g.CycleID,
			CycleNumber: g.CycleNumber,
			PeriodID:    g.PeriodID,
		}
		for _, c := range snap.coursesByCycle[g.CycleID] {
			cr := courseRequirementFrom(c)
			if cr.TotalHours() == 0 {
				continue
			}
			req.Courses = append(req.Courses, cr)
			req.TotalWeeklyHours += cr.TotalHours()
		}
		req.Courses = prioritizeCourses(req.Courses)
		out = append(out, req)
	}
	return out
}

func courseRequirementFrom(c models.Course) dto.CourseRequirement {
	cr := dto.CourseRequirement{
		CourseID:            c.ID,
		CourseName:          c.Name,
		KnowledgeAreaID:     c.KnowledgeAreaID,
		WeeklyTheoryHours:   c.WeeklyTheoryHours,
		WeeklyPracticeHours: c.WeeklyPracticeHours,
		IsMixed:             c.WeeklyTheoryHours > 0 && c.WeeklyPracticeHours > 0,
	}
	if c.PreferredSpecialtyID != nil {
		cr.PreferredSpecialtyID = *c.PreferredSpecialtyID
	}
	if c.WeeklyTheoryHours > 0 {
		cr.SessionTypes = append(cr.SessionTypes, models.SessionTypeTheory)
	}
	if c.WeeklyPracticeHours > 0 {
		cr.SessionTypes = append(cr.SessionTypes, models.SessionTypePractice)
	}
	return cr
}

// prioritizeCourses orders hardest-first: total hours, mixed, specialty, then name.
func prioritizeCourses(courses []dto.CourseRequirement) []dto.CourseRequirement {
	sorted := make([]dto.CourseRequirement, len(courses))
	copy(sorted, courses)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.TotalHours() != b.TotalHours() {
			return a.TotalHours() > b.TotalHours()
		}
		if a.IsMixed != b.IsMixed {
			return a.IsMixed
		}
		aSpec, bSpec := a.PreferredSpecialtyID != "", b.PreferredSpecialtyID != ""
		if aSpec != bSpec {
			return aSpec
		}
		return a.CourseName < b.CourseName
	})
	return sorted
}
