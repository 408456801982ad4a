package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

type stubTimetableCatalog struct {
	mu           sync.Mutex
	groups       []models.StudentGroup
	courses      []models.Course
	teachers     []models.Teacher
	availability []models.TeacherAvailability
	spaces       []models.LearningSpace
	slots        []models.TimeSlot
	groupCalls   int
	err          error
}

func (s *stubTimetableCatalog) ListGroups(ctx context.Context, filter models.GroupFilter) ([]models.StudentGroup, error) {
	s.mu.Lock()
	s.groupCalls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	wanted := make(map[string]bool, len(filter.GroupIDs))
	for _, id := range filter.GroupIDs {
		wanted[id] = true
	}
	var out []models.StudentGroup
	for _, g := range s.groups {
		if filter.PeriodID != "" && g.PeriodID != filter.PeriodID {
			continue
		}
		if len(wanted) > 0 && !wanted[g.ID] {
			continue
		}
		if filter.CycleID != "" && g.CycleID != filter.CycleID {
			continue
		}
		if filter.CareerID != "" && g.CareerID != filter.CareerID {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (s *stubTimetableCatalog) ListCoursesByCycles(ctx context.Context, cycleIDs []string) ([]models.Course, error) {
	wanted := make(map[string]bool, len(cycleIDs))
	for _, id := range cycleIDs {
		wanted[id] = true
	}
	var out []models.Course
	for _, c := range s.courses {
		if wanted[c.CycleID] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubTimetableCatalog) ListTeachers(ctx context.Context) ([]models.Teacher, error) {
	return s.teachers, nil
}

func (s *stubTimetableCatalog) ListTeacherAvailabilities(ctx context.Context) ([]models.TeacherAvailability, error) {
	return s.availability, nil
}

func (s *stubTimetableCatalog) ListLearningSpaces(ctx context.Context) ([]models.LearningSpace, error) {
	return s.spaces, nil
}

func (s *stubTimetableCatalog) ListTimeSlots(ctx context.Context) ([]models.TimeSlot, error) {
	return s.slots, nil
}

func (s *stubTimetableCatalog) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groupCalls
}

// memorySessionStore mirrors the conflict rules of the SQL store in memory.
type memorySessionStore struct {
	mu         sync.Mutex
	sessions   []models.ClassSession
	rejectNext int
	commitErr  error
	failAfter  int
	commits    int
	onCommit   func(ctx context.Context)
}

func (m *memorySessionStore) ListByPeriod(ctx context.Context, periodID string, groupIDs []string) ([]models.ClassSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[string]bool, len(groupIDs))
	for _, id := range groupIDs {
		wanted[id] = true
	}
	var out []models.ClassSession
	for _, s := range m.sessions {
		if s.PeriodID != periodID {
			continue
		}
		if len(wanted) > 0 && !wanted[s.StudentGroupID] {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *memorySessionStore) FindConflicts(ctx context.Context, exec sqlx.ExtContext, session *models.ClassSession) ([]models.SessionConflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conflictsLocked(session), nil
}

func (m *memorySessionStore) conflictsLocked(session *models.ClassSession) []models.SessionConflict {
	var out []models.SessionConflict
	for _, s := range m.sessions {
		if s.ID == session.ID || s.PeriodID != session.PeriodID || s.DayOfWeek != session.DayOfWeek {
			continue
		}
		if len(sharedHours(s.TeachingHourIDs, session.TeachingHourIDs)) == 0 {
			continue
		}
		switch {
		case s.TeacherID == session.TeacherID:
			out = append(out, models.SessionConflict{SessionID: s.ID, Dimension: models.ConflictDimensionTeacher})
		case s.LearningSpaceID == session.LearningSpaceID:
			out = append(out, models.SessionConflict{SessionID: s.ID, Dimension: models.ConflictDimensionSpace})
		case s.StudentGroupID == session.StudentGroupID:
			out = append(out, models.SessionConflict{SessionID: s.ID, Dimension: models.ConflictDimensionGroup})
		}
	}
	return out
}

func (m *memorySessionStore) CommitSession(ctx context.Context, exec sqlx.ExtContext, session *models.ClassSession) error {
	if m.onCommit != nil {
		m.onCommit(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil && m.commits >= m.failAfter {
		return m.commitErr
	}
	if m.rejectNext > 0 {
		m.rejectNext--
		return &models.SessionConflictError{Conflicts: []models.SessionConflict{{SessionID: "concurrent", Dimension: models.ConflictDimensionTeacher}}}
	}
	if conflicts := m.conflictsLocked(session); len(conflicts) > 0 {
		return &models.SessionConflictError{Conflicts: conflicts}
	}
	m.commits++
	m.sessions = append(m.sessions, *session)
	return nil
}

func (m *memorySessionStore) DeleteByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) (int, error) {
	doomed := make(map[string]bool, len(ids))
	for _, id := range ids {
		doomed[id] = true
	}
	return m.remove(func(s models.ClassSession) bool { return doomed[s.ID] }), nil
}

func (m *memorySessionStore) DeleteByGroups(ctx context.Context, exec sqlx.ExtContext, periodID string, groupIDs []string) (int, error) {
	doomed := make(map[string]bool, len(groupIDs))
	for _, id := range groupIDs {
		doomed[id] = true
	}
	return m.remove(func(s models.ClassSession) bool { return s.PeriodID == periodID && doomed[s.StudentGroupID] }), nil
}

func (m *memorySessionStore) DeleteByPeriod(ctx context.Context, exec sqlx.ExtContext, periodID string) (int, error) {
	return m.remove(func(s models.ClassSession) bool { return s.PeriodID == periodID }), nil
}

func (m *memorySessionStore) remove(match func(models.ClassSession) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.sessions[:0]
	removed := 0
	for _, s := range m.sessions {
		if match(s) {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	m.sessions = kept
	return removed
}

func (m *memorySessionStore) all() []models.ClassSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ClassSession, len(m.sessions))
	copy(out, m.sessions)
	return out
}

// memoryCacheRepository stores JSON payloads and records invalidated patterns.
type memoryCacheRepository struct {
	mu       sync.Mutex
	entries  map[string][]byte
	patterns []string
}

func newMemoryCacheRepository() *memoryCacheRepository {
	return &memoryCacheRepository{entries: make(map[string][]byte)}
}

func (r *memoryCacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (r *memoryCacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = raw
	return nil
}

func (r *memoryCacheRepository) DeleteByPattern(ctx context.Context, pattern string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range r.entries {
		if strings.HasPrefix(key, prefix) {
			delete(r.entries, key)
		}
	}
	return nil
}

func (r *memoryCacheRepository) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// --- catalog builders ---

// hourlySlot builds a time slot of back-to-back 60 minute teaching hours.
func hourlySlot(id, name string, startHour, hours int) models.TimeSlot {
	slot := models.TimeSlot{
		ID:        id,
		Name:      name,
		StartTime: formatClock(startHour * 60),
		EndTime:   formatClock((startHour + hours) * 60),
	}
	for i := 0; i < hours; i++ {
		slot.TeachingHours = append(slot.TeachingHours, models.TeachingHour{
			ID:              fmt.Sprintf("%s-h%d", id, i+1),
			TimeSlotID:      id,
			OrderInTimeSlot: i + 1,
			StartTime:       formatClock((startHour + i) * 60),
			EndTime:         formatClock((startHour + i + 1) * 60),
			DurationMinutes: 60,
		})
	}
	return slot
}

func availableOn(teacherID, start, end string, days ...models.Weekday) []models.TeacherAvailability {
	out := make([]models.TeacherAvailability, 0, len(days))
	for _, d := range days {
		out = append(out, models.TeacherAvailability{
			ID:          fmt.Sprintf("%s-%s", teacherID, strings.ToLower(string(d))),
			TeacherID:   teacherID,
			DayOfWeek:   d,
			StartTime:   start,
			EndTime:     end,
			IsAvailable: true,
		})
	}
	return out
}

func theoryRoom(id string, capacity int) models.LearningSpace {
	return models.LearningSpace{ID: id, Name: "Room " + id, Capacity: capacity, SessionType: models.SessionTypeTheory}
}

func labRoom(id string, specialtyID *string) models.LearningSpace {
	return models.LearningSpace{ID: id, Name: "Lab " + id, Capacity: 30, SessionType: models.SessionTypePractice, SpecialtyID: specialtyID}
}

func newGroup(id, name, cycleID string) models.StudentGroup {
	return models.StudentGroup{ID: id, Name: name, PeriodID: "period-1", CycleID: cycleID, CycleNumber: 1, CareerID: "career-1", ModalityID: "modality-1"}
}

func newTeacher(id, name string, areas ...string) models.Teacher {
	return models.Teacher{ID: id, FullName: name, KnowledgeAreaIDs: areas}
}

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

func strPtr(v string) *string { return &v }

// scenarioCatalog is one group needing four theory hours with the only teacher free on
// Monday and Tuesday mornings.
func scenarioCatalog() *stubTimetableCatalog {
	return &stubTimetableCatalog{
		groups:       []models.StudentGroup{newGroup("group-1", "A-1", "cycle-1")},
		courses:      []models.Course{{ID: "course-math", Name: "Mathematics", CycleID: "cycle-1", KnowledgeAreaID: "area-sci", WeeklyTheoryHours: 4}},
		teachers:     []models.Teacher{newTeacher("teacher-1", "Ada Lovelace", "area-sci")},
		availability: availableOn("teacher-1", "08:00", "10:00", models.Monday, models.Tuesday),
		spaces:       []models.LearningSpace{theoryRoom("room-1", 30)},
		slots:        []models.TimeSlot{hourlySlot("m1", "M1", 8, 2)},
	}
}

// txDB returns a sqlmock-backed transaction provider.
func txDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func newTimetableServiceFixture(t *testing.T, catalog *stubTimetableCatalog, store *memorySessionStore, cache *CacheService) (*TimetableService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := txDB(t)
	svc := NewTimetableService(catalog, store, db, cache, nil, validator.New(), zap.NewNop(), TimetableServiceConfig{})
	return svc, mock
}

func mustSnapshot(t *testing.T, catalog *stubTimetableCatalog) *catalogSnapshot {
	t.Helper()
	snap, err := buildCatalogSnapshot(catalog.groups, catalog.courses, catalog.teachers, catalog.availability, catalog.spaces, catalog.slots)
	require.NoError(t, err)
	return snap
}

func mustOptions(t *testing.T, req dto.GenerationRequest) generationOptions {
	t.Helper()
	opts, err := resolveGenerationOptions(req, DefaultGenerationSettings(), 0)
	require.NoError(t, err)
	return opts
}
