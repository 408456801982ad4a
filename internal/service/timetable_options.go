package service

import (
	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

const (
	defaultMaxAttempts       = 50
	defaultCapacityFactor    = 2.0
	referencePreferredWeight = 0.7
)

// DefaultGenerationSettings are the knobs applied when a request leaves them unset.
func DefaultGenerationSettings() dto.GenerationDefaults {
	return dto.GenerationDefaults{
		MaxHoursPerDay:            8,
		MinHoursPerDay:            2,
		MaxConsecutiveHours:       4,
		DistributeEvenly:          true,
		RespectTeacherContinuity:  true,
		AvoidTimeGaps:             true,
		PrioritizeLabsAfterTheory: false,
		PreferredSlotWeight:       referencePreferredWeight,
	}
}

// generationOptions is the validated, defaulted form of a generation request.
type generationOptions struct {
	PeriodID                  string
	ExcludedDays              map[models.Weekday]bool
	PreferredTimeSlots        map[string]bool
	MaxHoursPerDay            int
	MinHoursPerDay            int
	MaxConsecutiveHours       int
	DistributeEvenly          bool
	RespectTeacherContinuity  bool
	AvoidTimeGaps             bool
	PrioritizeLabsAfterTheory bool
	PreferredSlotWeight       float64
	MaxAttempts               int
}

// WorkingDays are Monday to Saturday minus the excluded days.
func (o generationOptions) WorkingDays() []models.Weekday {
	days := make([]models.Weekday, 0, len(models.WorkingDays))
	for _, d := range models.WorkingDays {
		if !o.ExcludedDays[d] {
			days = append(days, d)
		}
	}
	return days
}

// PreferredSlotBonus scales the +20 preferred-slot bonus by the requested weight,
// reaching the full bonus at the default weight.
func (o generationOptions) PreferredSlotBonus() float64 {
	if o.PreferredSlotWeight >= referencePreferredWeight {
		return 20
	}
	if o.PreferredSlotWeight <= 0 {
		return 0
	}
	return 20 * o.PreferredSlotWeight / referencePreferredWeight
}

func resolveGenerationOptions(req dto.GenerationRequest, defaults dto.GenerationDefaults, maxAttempts int) (generationOptions, error) {
	if !req.HasScope() {
		return generationOptions{}, appErrors.Clone(appErrors.ErrValidation, "at least one scope filter is required: modalityId, careerId, cycleId or groupIds")
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	opts := generationOptions{
		PeriodID:                  req.PeriodID,
		ExcludedDays:              make(map[models.Weekday]bool),
		PreferredTimeSlots:        make(map[string]bool, len(req.PreferredTimeSlotIDs)),
		MaxHoursPerDay:            intOr(req.MaxHoursPerDay, defaults.MaxHoursPerDay),
		MinHoursPerDay:            intOr(req.MinHoursPerDay, defaults.MinHoursPerDay),
		MaxConsecutiveHours:       intOr(req.MaxConsecutiveHours, defaults.MaxConsecutiveHours),
		DistributeEvenly:          boolOr(req.DistributeEvenly, defaults.DistributeEvenly),
		RespectTeacherContinuity:  boolOr(req.RespectTeacherContinuity, defaults.RespectTeacherContinuity),
		AvoidTimeGaps:             boolOr(req.AvoidTimeGaps, defaults.AvoidTimeGaps),
		PrioritizeLabsAfterTheory: boolOr(req.PrioritizeLabsAfterTheory, defaults.PrioritizeLabsAfterTheory),
		PreferredSlotWeight:       floatOr(req.PreferredSlotWeight, defaults.PreferredSlotWeight),
		MaxAttempts:               maxAttempts,
	}
	excluded := req.ExcludedDays
	if excluded == nil {
		excluded = defaults.ExcludedDays
	}
	for _, d := range excluded {
		day := models.ParseWeekday(string(d))
		if day == "" {
			return generationOptions{}, appErrors.Clone(appErrors.ErrValidation, "unknown excluded day "+string(d))
		}
		opts.ExcludedDays[day] = true
	}
	for _, id := range req.PreferredTimeSlotIDs {
		opts.PreferredTimeSlots[id] = true
	}
	if opts.MaxHoursPerDay < opts.MinHoursPerDay {
		return generationOptions{}, appErrors.Clone(appErrors.ErrValidation, "maxHoursPerDay must be greater than or equal to minHoursPerDay")
	}
	if opts.MaxConsecutiveHours > opts.MaxHoursPerDay {
		return generationOptions{}, appErrors.Clone(appErrors.ErrValidation, "maxConsecutiveHours cannot exceed maxHoursPerDay")
	}
	if opts.MaxConsecutiveHours < 1 {
		return generationOptions{}, appErrors.Clone(appErrors.ErrValidation, "maxConsecutiveHours must be at least 1")
	}
	if len(opts.WorkingDays()) == 0 {
		return generationOptions{}, appErrors.Clone(appErrors.ErrValidation, "all working days are excluded")
	}
	if opts.PreferredSlotWeight < 0 || opts.PreferredSlotWeight > 1 {
		return generationOptions{}, appErrors.Clone(appErrors.ErrValidation, "preferredSlotWeight must be between 0 and 1")
	}
	return opts, nil
}

func groupFilterFor(req dto.GenerationRequest) models.GroupFilter {
	return models.GroupFilter{
		PeriodID:   req.PeriodID,
		GroupIDs:   req.GroupIDs,
		CycleID:    req.CycleID,
		CareerID:   req.CareerID,
		ModalityID: req.ModalityID,
	}
}

func intOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

func floatOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
