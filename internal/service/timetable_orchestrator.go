package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
)

const (
	autoGeneratedNote = "auto-generated"
	timeGapThreshold  = 45
)

// allocationRun drives one greedy allocation pass over the target groups.
type allocationRun struct {
	runID    string
	state    *generationContext
	catalog  *catalogSnapshot
	opts     generationOptions
	writer   sessionWriter
	search   *candidateSearch
	logger   *zap.Logger
	pools    map[string]*slotPool
	progress func(done, total int)
}

func newAllocationRun(runID string, state *generationContext, catalog *catalogSnapshot, opts generationOptions, writer sessionWriter, logger *zap.Logger) *allocationRun {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &allocationRun{
		runID:   runID,
		state:   state,
		catalog: catalog,
		opts:    opts,
		writer:  writer,
		search:  newCandidateSearch(state, catalog, opts),
		logger:  logger,
		pools:   make(map[string]*slotPool),
	}
}

// coursePass is one (course, session type) unit of work for a group.
type coursePass struct {
	Course      dto.CourseRequirement
	SessionType models.SessionType
}

// Execute allocates every group's requirement. The returned error is fatal and aborts the
// run; sessions committed before it stay committed.
func (r *allocationRun) Execute(ctx context.Context) error {
	total := 0
	for _, g := range r.state.groups {
		total += len(r.passesFor(g))
	}
	done := 0
	for _, group := range r.state.groups {
		for _, pass := range r.passesFor(group) {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("generation interrupted: %w", err)
			}
			if err := r.allocate(ctx, group, pass); err != nil {
				return err
			}
			done++
			if r.progress != nil {
				r.progress(done, total)
			}
		}
	}
	r.reviewDistribution()
	return nil
}

// passesFor orders a group's work. Courses keep their priority order; each course runs its
// theory pass before its practice pass unless labs are deferred after all theory.
func (r *allocationRun) passesFor(group dto.GroupRequirement) []coursePass {
	var passes []coursePass
	if r.opts.PrioritizeLabsAfterTheory {
		for _, course := range group.Courses {
			for _, t := range course.SessionTypes {
				if t != models.SessionTypePractice {
					passes = append(passes, coursePass{Course: course, SessionType: t})
				}
			}
		}
		for _, course := range group.Courses {
			for _, t := range course.SessionTypes {
				if t == models.SessionTypePractice {
					passes = append(passes, coursePass{Course: course, SessionType: t})
				}
			}
		}
		return passes
	}
	for _, course := range group.Courses {
		for _, t := range course.SessionTypes {
			passes = append(passes, coursePass{Course: course, SessionType: t})
		}
	}
	return passes
}

func (r *allocationRun) poolFor(groupID string) *slotPool {
	if pool, ok := r.pools[groupID]; ok {
		return pool
	}
	pool := newSlotPool(r.catalog, r.opts, func(key daySlotKey, hourID string) bool {
		return r.state.IsHourOccupied(groupID, key, hourID)
	})
	r.pools[groupID] = pool
	return pool
}

func (r *allocationRun) allocate(ctx context.Context, group dto.GroupRequirement, pass coursePass) error {
	if !pass.SessionType.Valid() {
		return fmt.Errorf("course %s: unknown session type %q", pass.Course.CourseName, pass.SessionType)
	}
	required := pass.Course.HoursFor(pass.SessionType)
	remaining := required - r.state.AssignedHours(group.GroupID, pass.Course.CourseID, pass.SessionType)
	pool := r.poolFor(group.GroupID)
	missedPreferred := false

	for attempts := 0; remaining > 0 && attempts < r.opts.MaxAttempts; attempts++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("generation interrupted: %w", err)
		}
		hours := remaining
		if hours > r.opts.MaxConsecutiveHours {
			hours = r.opts.MaxConsecutiveHours
		}
		req := searchRequest{Group: group, Course: pass.Course, SessionType: pass.SessionType, Hours: hours}
		found, diagnosis := r.search.Find(req, pool)
		if found == nil && hours > 1 {
			req.Hours = 1
			found, diagnosis = r.search.Find(req, pool)
		}
		if found == nil {
			r.logger.Debug("no candidate",
				zap.String("run_id", r.runID),
				zap.String("group", group.GroupName),
				zap.String("course", pass.Course.CourseName),
				zap.String("diagnosis", diagnosis.String()),
			)
			r.state.AddWarning(searchFailureWarning(group, pass, remaining, diagnosis))
			break
		}

		accepted, err := r.commit(ctx, group, pass, found)
		if err != nil {
			return err
		}
		if !accepted {
			pool.Evict(found.Key())
			continue
		}
		pool.Consume(found.Key(), found.HourIDs())
		remaining -= len(found.Run)
		if len(r.opts.PreferredTimeSlots) > 0 && !found.Slot.Preferred && !missedPreferred {
			missedPreferred = true
			r.state.AddWarning(dto.ScheduleWarning{
				Type:           dto.WarningPreferredUnavailable,
				Severity:       dto.SeverityLow,
				Message:        fmt.Sprintf("%s for group %s was placed outside the preferred time slots on %s %s", pass.Course.CourseName, group.GroupName, found.Slot.Day, found.Slot.TimeSlotName),
				AffectedGroup:  group.GroupName,
				AffectedCourse: pass.Course.CourseName,
				SessionType:    string(pass.SessionType),
				DayOfWeek:      found.Slot.Day,
				Suggestion:     "Widen teacher availability in the preferred time slots or lower preferredSlotWeight",
			})
		}
	}

	if remaining > 0 {
		r.state.AddWarning(dto.ScheduleWarning{
			Type:           dto.WarningIncompleteAssignment,
			Severity:       dto.SeverityMedium,
			Message:        fmt.Sprintf("%s (%s) for group %s is missing %d of %d hours", pass.Course.CourseName, pass.SessionType, group.GroupName, remaining, required),
			AffectedGroup:  group.GroupName,
			AffectedCourse: pass.Course.CourseName,
			SessionType:    string(pass.SessionType),
			RemainingHours: remaining,
			Suggestion:     "Review teacher availability and learning spaces, then generate again",
		})
	}
	return nil
}

// commit pre-validates the candidate and writes it through the conflict-checked store.
// A false result means the booking was rejected and the slot should be evicted.
// Statements run detached from cancellation; allocate checks ctx between candidates.
func (r *allocationRun) commit(ctx context.Context, group dto.GroupRequirement, pass coursePass, c *candidate) (bool, error) {
	dbCtx := context.WithoutCancel(ctx)
	if !isConsecutiveRun(c.Run) {
		r.reject(group, pass, c, "teaching hours are not consecutive")
		return false, nil
	}
	notes := autoGeneratedNote
	session := &models.ClassSession{
		ID:              uuid.NewString(),
		PeriodID:        r.opts.PeriodID,
		StudentGroupID:  group.GroupID,
		CourseID:        pass.Course.CourseID,
		TeacherID:       c.Teacher.ID,
		LearningSpaceID: c.Space.ID,
		SessionType:     pass.SessionType,
		DayOfWeek:       c.Slot.Day,
		TeachingHourIDs: c.HourIDs(),
		Notes:           &notes,
	}

	conflicts, err := r.writer.FindConflicts(dbCtx, session)
	if err != nil {
		return false, fmt.Errorf("check conflicts for %s: %w", pass.Course.CourseName, err)
	}
	if len(conflicts) > 0 {
		r.recordConflicts(group, pass, c, conflicts)
		r.reject(group, pass, c, describeDimensions(conflicts))
		return false, nil
	}
	if err := r.writer.Commit(dbCtx, session); err != nil {
		var conflictErr *models.SessionConflictError
		if errors.As(err, &conflictErr) {
			r.recordConflicts(group, pass, c, conflictErr.Conflicts)
			r.reject(group, pass, c, describeDimensions(conflictErr.Conflicts))
			return false, nil
		}
		return false, fmt.Errorf("commit session for %s: %w", pass.Course.CourseName, err)
	}

	start, end := c.Bounds()
	r.state.RecordCommittedSession(committedSession{
		GeneratedSession: dto.GeneratedSession{
			ID:                session.ID,
			CourseID:          pass.Course.CourseID,
			CourseName:        pass.Course.CourseName,
			GroupID:           group.GroupID,
			GroupName:         group.GroupName,
			TeacherID:         c.Teacher.ID,
			TeacherName:       c.Teacher.FullName,
			LearningSpaceID:   c.Space.ID,
			LearningSpaceName: c.Space.Name,
			DayOfWeek:         c.Slot.Day,
			TimeSlotID:        c.Slot.TimeSlotID,
			TimeSlotName:      c.Slot.TimeSlotName,
			TeachingHourIDs:   c.HourIDs(),
			TeachingHours:     runRanges(c.Run),
			SessionType:       pass.SessionType,
			Notes:             notes,
			IsNewlyGenerated:  true,
		},
		Start: start,
		End:   end,
	})
	r.state.SetContinuityTeacher(group.GroupID, pass.Course.CourseID, c.Teacher.ID)
	return true, nil
}

// recordConflicts keeps one conflict per colliding dimension the catalog reported.
func (r *allocationRun) recordConflicts(group dto.GroupRequirement, pass coursePass, c *candidate, conflicts []models.SessionConflict) {
	start, end := c.Bounds()
	seen := make(map[models.SessionConflictDimension]bool, len(conflicts))
	for _, conflict := range conflicts {
		if seen[conflict.Dimension] {
			continue
		}
		seen[conflict.Dimension] = true
		entry := dto.ScheduleConflict{
			Severity:       dto.SeverityHigh,
			AffectedCourse: pass.Course.CourseName,
			AffectedGroup:  group.GroupName,
			DayOfWeek:      c.Slot.Day,
			TimeRange:      formatRange(start, end),
		}
		switch conflict.Dimension {
		case models.ConflictDimensionTeacher:
			entry.Type = dto.ConflictTeacher
			entry.AffectedTeacher = c.Teacher.FullName
			entry.Description = fmt.Sprintf("Teacher %s is already booked on %s %s", c.Teacher.FullName, c.Slot.Day, entry.TimeRange)
			entry.SuggestedSolution = []string{"Assign another teacher of the knowledge area", "Extend the teacher's availability"}
		case models.ConflictDimensionSpace:
			entry.Type = dto.ConflictSpace
			entry.AffectedSpace = c.Space.Name
			entry.Description = fmt.Sprintf("Learning space %s is already booked on %s %s", c.Space.Name, c.Slot.Day, entry.TimeRange)
			entry.SuggestedSolution = []string{"Register another learning space of the same type"}
		default:
			entry.Type = dto.ConflictGroup
			entry.Description = fmt.Sprintf("Group %s already has a session on %s %s", group.GroupName, c.Slot.Day, entry.TimeRange)
			entry.SuggestedSolution = []string{"Review sessions created outside the generator for this group"}
		}
		r.state.AddConflict(entry)
	}
}

func (r *allocationRun) reject(group dto.GroupRequirement, pass coursePass, c *candidate, reason string) {
	start, end := c.Bounds()
	r.logger.Debug("candidate rejected",
		zap.String("run_id", r.runID),
		zap.String("group", group.GroupName),
		zap.String("course", pass.Course.CourseName),
		zap.String("day", string(c.Slot.Day)),
		zap.String("time_slot", c.Slot.TimeSlotName),
		zap.String("reason", reason),
	)
	r.state.AddWarning(dto.ScheduleWarning{
		Type:           dto.WarningCommitRejected,
		Severity:       dto.SeverityLow,
		Message:        fmt.Sprintf("%s for group %s on %s %s was rejected: %s", pass.Course.CourseName, group.GroupName, c.Slot.Day, formatRange(start, end), reason),
		AffectedGroup:  group.GroupName,
		AffectedCourse: pass.Course.CourseName,
		SessionType:    string(pass.SessionType),
		DayOfWeek:      c.Slot.Day,
		Suggestion:     "The slot was removed from the pool; another slot was tried",
	})
}

// reviewDistribution records uneven daily loads and long idle gaps after allocation.
func (r *allocationRun) reviewDistribution() {
	for _, group := range r.state.groups {
		if r.state.HasImbalance(group.GroupID) {
			r.state.AddWarning(dto.ScheduleWarning{
				Type:          dto.WarningUnevenDistribution,
				Severity:      dto.SeverityLow,
				Message:       fmt.Sprintf("Daily hours of group %s are unevenly distributed", group.GroupName),
				AffectedGroup: group.GroupName,
				Suggestion:    "Lower maxHoursPerDay or exclude fewer days",
			})
		}
	}
	for _, w := range findTimeGaps(r.state.Sessions()) {
		r.state.AddWarning(w)
	}
}

// findTimeGaps reports idle gaps above the threshold between sessions of a group on a day.
// Sessions must be ordered by group, day and start.
func findTimeGaps(sessions []committedSession) []dto.ScheduleWarning {
	var warnings []dto.ScheduleWarning
	for i := 1; i < len(sessions); i++ {
		prev, cur := sessions[i-1], sessions[i]
		if prev.GroupID != cur.GroupID || prev.DayOfWeek != cur.DayOfWeek {
			continue
		}
		gap := cur.Start - prev.End
		if gap <= timeGapThreshold {
			continue
		}
		warnings = append(warnings, dto.ScheduleWarning{
			Type:          dto.WarningTimeGap,
			Severity:      dto.SeverityLow,
			Message:       fmt.Sprintf("Group %s has a %d minute gap on %s between %s and %s", cur.GroupName, gap, cur.DayOfWeek, formatClock(prev.End), formatClock(cur.Start)),
			AffectedGroup: cur.GroupName,
			DayOfWeek:     cur.DayOfWeek,
			Suggestion:    "Enable avoidTimeGaps or move one of the sessions",
		})
	}
	return warnings
}

func searchFailureWarning(group dto.GroupRequirement, pass coursePass, remaining int, diagnosis searchDiagnosis) dto.ScheduleWarning {
	kind := diagnosis.WarningType()
	var message string
	switch kind {
	case dto.ConflictTeacher:
		message = fmt.Sprintf("All eligible teachers for %s are already booked when group %s is free", pass.Course.CourseName, group.GroupName)
	case dto.ConflictSpace:
		message = fmt.Sprintf("All %s learning spaces for %s are already booked when group %s is free", strings.ToLower(string(pass.SessionType)), pass.Course.CourseName, group.GroupName)
	default:
		message = fmt.Sprintf("No available slot for %s (%s) of group %s", pass.Course.CourseName, pass.SessionType, group.GroupName)
	}
	return dto.ScheduleWarning{
		Type:           kind,
		Severity:       dto.SeverityHigh,
		Message:        message,
		AffectedGroup:  group.GroupName,
		AffectedCourse: pass.Course.CourseName,
		SessionType:    string(pass.SessionType),
		RemainingHours: remaining,
		Suggestion:     diagnosis.Suggestion(),
	}
}

func describeDimensions(conflicts []models.SessionConflict) string {
	seen := make(map[models.SessionConflictDimension]bool, len(conflicts))
	var parts []string
	for _, c := range conflicts {
		if seen[c.Dimension] {
			continue
		}
		seen[c.Dimension] = true
		parts = append(parts, strings.ToLower(string(c.Dimension))+" already booked")
	}
	if len(parts) == 0 {
		return "conflicting session"
	}
	return strings.Join(parts, ", ")
}
