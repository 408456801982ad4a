package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/timetable-api/internal/models"
)

const classSessionColumns = `id, period_id, student_group_id, course_id, teacher_id, learning_space_id, session_type, day_of_week, teaching_hour_ids, notes, created_at`

const commitSavepoint = "class_session_commit"

// ClassSessionRepository persists weekly class sessions.
type ClassSessionRepository struct {
	db *sqlx.DB
}

// NewClassSessionRepository constructs the repository.
func NewClassSessionRepository(db *sqlx.DB) *ClassSessionRepository {
	return &ClassSessionRepository{db: db}
}

// ListByPeriod returns the sessions of a period, optionally restricted to groups.
func (r *ClassSessionRepository) ListByPeriod(ctx context.Context, periodID string, groupIDs []string) ([]models.ClassSession, error) {
	query := `SELECT ` + classSessionColumns + ` FROM class_sessions WHERE period_id = $1`
	args := []interface{}{periodID}
	if len(groupIDs) > 0 {
		query += " AND student_group_id = ANY($2)"
		args = append(args, pq.Array(groupIDs))
	}
	query += " ORDER BY student_group_id ASC, day_of_week ASC, created_at ASC, id ASC"
	var sessions []models.ClassSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list class sessions: %w", err)
	}
	return sessions, nil
}

// FindConflicts returns persisted sessions sharing a teaching hour of the same day
// with the proposed session's teacher, space or group.
func (r *ClassSessionRepository) FindConflicts(ctx context.Context, exec sqlx.ExtContext, session *models.ClassSession) ([]models.SessionConflict, error) {
	if exec == nil {
		exec = r.db
	}
	const query = `SELECT id, CASE
		WHEN teacher_id = $4 THEN 'TEACHER'
		WHEN learning_space_id = $5 THEN 'SPACE'
		ELSE 'GROUP'
	END AS dimension
FROM class_sessions
WHERE period_id = $1 AND day_of_week = $2 AND teaching_hour_ids && $3 AND id <> $7
	AND (teacher_id = $4 OR learning_space_id = $5 OR student_group_id = $6)
ORDER BY id ASC`
	var conflicts []models.SessionConflict
	if err := sqlx.SelectContext(ctx, exec, &conflicts, query,
		session.PeriodID,
		session.DayOfWeek,
		session.TeachingHourIDs,
		session.TeacherID,
		session.LearningSpaceID,
		session.StudentGroupID,
		session.ID,
	); err != nil {
		return nil, fmt.Errorf("find session conflicts: %w", err)
	}
	return conflicts, nil
}

// CommitSession inserts a session inside a savepoint after re-checking conflicts.
// A collision rolls back to the savepoint and returns *models.SessionConflictError,
// leaving the enclosing transaction usable.
func (r *ClassSessionRepository) CommitSession(ctx context.Context, exec sqlx.ExtContext, session *models.ClassSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	if _, err := exec.ExecContext(ctx, "SAVEPOINT "+commitSavepoint); err != nil {
		return fmt.Errorf("open session savepoint: %w", err)
	}
	// The rollback must reach the server even when ctx ended mid-statement.
	rollback := func() {
		_, _ = exec.ExecContext(context.WithoutCancel(ctx), "ROLLBACK TO SAVEPOINT "+commitSavepoint)
	}

	conflicts, err := r.FindConflicts(ctx, exec, session)
	if err != nil {
		rollback()
		return err
	}
	if len(conflicts) > 0 {
		rollback()
		return &models.SessionConflictError{Conflicts: conflicts}
	}

	const insert = `INSERT INTO class_sessions (` + classSessionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := exec.ExecContext(ctx, insert,
		session.ID,
		session.PeriodID,
		session.StudentGroupID,
		session.CourseID,
		session.TeacherID,
		session.LearningSpaceID,
		session.SessionType,
		session.DayOfWeek,
		session.TeachingHourIDs,
		session.Notes,
		session.CreatedAt,
	); err != nil {
		rollback()
		return fmt.Errorf("insert class session: %w", err)
	}
	if _, err := exec.ExecContext(ctx, "RELEASE SAVEPOINT "+commitSavepoint); err != nil {
		return fmt.Errorf("release session savepoint: %w", err)
	}
	return nil
}

// DeleteByIDs removes the given sessions and returns the number deleted.
func (r *ClassSessionRepository) DeleteByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return r.delete(ctx, exec, "DELETE FROM class_sessions WHERE id = ANY($1)", pq.Array(ids))
}

// DeleteByGroups removes every session of the groups within a period.
func (r *ClassSessionRepository) DeleteByGroups(ctx context.Context, exec sqlx.ExtContext, periodID string, groupIDs []string) (int, error) {
	if len(groupIDs) == 0 {
		return 0, nil
	}
	return r.delete(ctx, exec, "DELETE FROM class_sessions WHERE period_id = $1 AND student_group_id = ANY($2)", periodID, pq.Array(groupIDs))
}

// DeleteByPeriod removes every session of a period.
func (r *ClassSessionRepository) DeleteByPeriod(ctx context.Context, exec sqlx.ExtContext, periodID string) (int, error) {
	return r.delete(ctx, exec, "DELETE FROM class_sessions WHERE period_id = $1", periodID)
}

func (r *ClassSessionRepository) delete(ctx context.Context, exec sqlx.ExtContext, query string, args ...interface{}) (int, error) {
	if exec == nil {
		exec = r.db
	}
	res, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete class sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete class sessions rows: %w", err)
	}
	return int(affected), nil
}
