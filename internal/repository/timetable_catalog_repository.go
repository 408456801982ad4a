package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/timetable-api/internal/models"
)

// TimetableCatalogRepository reads the academic catalog the generator works against.
type TimetableCatalogRepository struct {
	db *sqlx.DB
}

// NewTimetableCatalogRepository constructs the repository.
func NewTimetableCatalogRepository(db *sqlx.DB) *TimetableCatalogRepository {
	return &TimetableCatalogRepository{db: db}
}

// ListGroups returns student groups in scope. Explicit group IDs win over the
// cycle, career and modality filters.
func (r *TimetableCatalogRepository) ListGroups(ctx context.Context, filter models.GroupFilter) ([]models.StudentGroup, error) {
	query := `SELECT g.id, g.name, g.period_id, g.cycle_id, c.number AS cycle_number, c.career_id, g.modality_id
FROM student_groups g
JOIN cycles c ON c.id = g.cycle_id
WHERE g.period_id = $1`
	args := []interface{}{filter.PeriodID}
	if len(filter.GroupIDs) > 0 {
		args = append(args, pq.Array(filter.GroupIDs))
		query += fmt.Sprintf(" AND g.id = ANY($%d)", len(args))
	} else {
		var conditions []string
		if filter.CycleID != "" {
			args = append(args, filter.CycleID)
			conditions = append(conditions, fmt.Sprintf("g.cycle_id = $%d", len(args)))
		}
		if filter.CareerID != "" {
			args = append(args, filter.CareerID)
			conditions = append(conditions, fmt.Sprintf("c.career_id = $%d", len(args)))
		}
		if filter.ModalityID != "" {
			args = append(args, filter.ModalityID)
			conditions = append(conditions, fmt.Sprintf("g.modality_id = $%d", len(args)))
		}
		if len(conditions) > 0 {
			query += " AND " + strings.Join(conditions, " AND ")
		}
	}
	query += " ORDER BY g.name ASC, g.id ASC"

	var groups []models.StudentGroup
	if err := r.db.SelectContext(ctx, &groups, query, args...); err != nil {
		return nil, fmt.Errorf("list student groups: %w", err)
	}
	return groups, nil
}

// ListCoursesByCycles returns the curriculum courses of the given cycles.
func (r *TimetableCatalogRepository) ListCoursesByCycles(ctx context.Context, cycleIDs []string) ([]models.Course, error) {
	if len(cycleIDs) == 0 {
		return []models.Course{}, nil
	}
	const query = `SELECT id, name, cycle_id, knowledge_area_id, preferred_specialty_id, weekly_theory_hours, weekly_practice_hours
FROM courses WHERE cycle_id = ANY($1) ORDER BY cycle_id ASC, name ASC`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, pq.Array(cycleIDs)); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// ListTeachers returns active teachers with their knowledge areas.
func (r *TimetableCatalogRepository) ListTeachers(ctx context.Context) ([]models.Teacher, error) {
	const query = `SELECT t.id, t.full_name, t.email,
	COALESCE(array_agg(tk.knowledge_area_id) FILTER (WHERE tk.knowledge_area_id IS NOT NULL), '{}') AS knowledge_area_ids
FROM teachers t
LEFT JOIN teacher_knowledge_areas tk ON tk.teacher_id = t.id
WHERE t.active = TRUE
GROUP BY t.id, t.full_name, t.email
ORDER BY t.full_name ASC, t.id ASC`
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query); err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	return teachers, nil
}

// ListTeacherAvailabilities returns every declared availability window.
func (r *TimetableCatalogRepository) ListTeacherAvailabilities(ctx context.Context) ([]models.TeacherAvailability, error) {
	const query = `SELECT id, teacher_id, day_of_week, to_char(start_time, 'HH24:MI') AS start_time, to_char(end_time, 'HH24:MI') AS end_time, is_available
FROM teacher_availabilities ORDER BY teacher_id ASC, day_of_week ASC, start_time ASC`
	var windows []models.TeacherAvailability
	if err := r.db.SelectContext(ctx, &windows, query); err != nil {
		return nil, fmt.Errorf("list teacher availabilities: %w", err)
	}
	return windows, nil
}

// ListLearningSpaces returns rooms and labs.
func (r *TimetableCatalogRepository) ListLearningSpaces(ctx context.Context) ([]models.LearningSpace, error) {
	const query = `SELECT id, name, capacity, session_type, specialty_id FROM learning_spaces ORDER BY name ASC, id ASC`
	var spaces []models.LearningSpace
	if err := r.db.SelectContext(ctx, &spaces, query); err != nil {
		return nil, fmt.Errorf("list learning spaces: %w", err)
	}
	return spaces, nil
}

// ListTimeSlots returns time slots with their teaching hours attached in order.
func (r *TimetableCatalogRepository) ListTimeSlots(ctx context.Context) ([]models.TimeSlot, error) {
	const slotQuery = `SELECT id, name, to_char(start_time, 'HH24:MI') AS start_time, to_char(end_time, 'HH24:MI') AS end_time
FROM time_slots ORDER BY start_time ASC`
	var slots []models.TimeSlot
	if err := r.db.SelectContext(ctx, &slots, slotQuery); err != nil {
		return nil, fmt.Errorf("list time slots: %w", err)
	}
	if len(slots) == 0 {
		return slots, nil
	}

	const hourQuery = `SELECT id, time_slot_id, order_in_time_slot, to_char(start_time, 'HH24:MI') AS start_time, to_char(end_time, 'HH24:MI') AS end_time, duration_minutes
FROM teaching_hours ORDER BY time_slot_id ASC, order_in_time_slot ASC`
	var hours []models.TeachingHour
	if err := r.db.SelectContext(ctx, &hours, hourQuery); err != nil {
		return nil, fmt.Errorf("list teaching hours: %w", err)
	}
	bySlot := make(map[string][]models.TeachingHour, len(slots))
	for _, h := range hours {
		bySlot[h.TimeSlotID] = append(bySlot[h.TimeSlotID], h)
	}
	for i := range slots {
		slots[i].TeachingHours = bySlot[slots[i].ID]
	}
	return slots, nil
}
