package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/noah-isme/timetable-api/internal/models"
)

// --- Clock helpers ---

// parseClock converts "HH:MM" or "HH:MM:SS" into minutes after midnight.
func parseClock(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock value %q", raw)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("invalid clock hour %q", raw)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid clock minute %q", raw)
	}
	return hours*60 + minutes, nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func formatRange(start, end int) string {
	return formatClock(start) + "-" + formatClock(end)
}

// --- Slot model ---

type slotHour struct {
	ID         string
	TimeSlotID string
	Order      int
	Start      int
	End        int
}

func (h slotHour) Range() string {
	return formatRange(h.Start, h.End)
}

type daySlotKey struct {
	Day        models.Weekday
	TimeSlotID string
}

// scheduleSlot is a (weekday, time slot) pair whose hours are consumed during a run.
type scheduleSlot struct {
	Day          models.Weekday
	TimeSlotID   string
	TimeSlotName string
	Start        int
	End          int
	Hours        []slotHour
	Preferred    bool
}

func (s *scheduleSlot) Key() daySlotKey {
	return daySlotKey{Day: s.Day, TimeSlotID: s.TimeSlotID}
}

func (s *scheduleSlot) DurationMinutes() int {
	return s.End - s.Start
}

// ConsecutiveRun returns the first window of n back-to-back hours, or nil.
func (s *scheduleSlot) ConsecutiveRun(n int) []slotHour {
	if n <= 0 || len(s.Hours) < n {
		return nil
	}
	hours := sortedHours(s.Hours)
	for i := 0; i+n <= len(hours); i++ {
		window := hours[i : i+n]
		if isConsecutiveRun(window) {
			run := make([]slotHour, n)
			copy(run, window)
			return run
		}
	}
	return nil
}

// Consume removes the given hours and reports whether the slot is now empty.
func (s *scheduleSlot) Consume(ids []string) bool {
	used := make(map[string]bool, len(ids))
	for _, id := range ids {
		used[id] = true
	}
	kept := s.Hours[:0]
	for _, h := range s.Hours {
		if !used[h.ID] {
			kept = append(kept, h)
		}
	}
	s.Hours = kept
	return len(s.Hours) == 0
}

func sortedHours(hours []slotHour) []slotHour {
	sorted := make([]slotHour, len(hours))
	copy(sorted, hours)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})
	return sorted
}

// isConsecutiveRun checks same slot, +1 order index and zero gap between adjacent hours.
func isConsecutiveRun(hours []slotHour) bool {
	if len(hours) == 0 {
		return false
	}
	for i := 1; i < len(hours); i++ {
		prev, cur := hours[i-1], hours[i]
		if prev.TimeSlotID != cur.TimeSlotID {
			return false
		}
		if cur.Order != prev.Order+1 {
			return false
		}
		if prev.End != cur.Start {
			return false
		}
	}
	return true
}

func runIDs(hours []slotHour) []string {
	ids := make([]string, len(hours))
	for i, h := range hours {
		ids[i] = h.ID
	}
	return ids
}

func runRanges(hours []slotHour) []string {
	ranges := make([]string, len(hours))
	for i, h := range hours {
		ranges[i] = h.Range()
	}
	return ranges
}

func runBounds(hours []slotHour) (int, int) {
	if len(hours) == 0 {
		return 0, 0
	}
	return hours[0].Start, hours[len(hours)-1].End
}

// --- Slot pool ---

// slotPool is the remaining time of one group during a run.
type slotPool struct {
	slots []*scheduleSlot
}

func (p *slotPool) Slots() []*scheduleSlot {
	return p.slots
}

func (p *slotPool) Len() int {
	return len(p.slots)
}

func (p *slotPool) find(key daySlotKey) (int, *scheduleSlot) {
	for i, slot := range p.slots {
		if slot.Key() == key {
			return i, slot
		}
	}
	return -1, nil
}

// Evict drops a (day, slot) pair from the pool.
func (p *slotPool) Evict(key daySlotKey) {
	idx, _ := p.find(key)
	if idx < 0 {
		return
	}
	p.slots = append(p.slots[:idx], p.slots[idx+1:]...)
}

// Consume removes used hours and drops the slot when it has none left.
func (p *slotPool) Consume(key daySlotKey, hourIDs []string) {
	idx, slot := p.find(key)
	if slot == nil {
		return
	}
	if slot.Consume(hourIDs) {
		p.slots = append(p.slots[:idx], p.slots[idx+1:]...)
	}
}

// newSlotPool expands the time-slot catalog over the working days, skipping excluded days
// and hours the group already occupies.
func newSlotPool(catalog *catalogSnapshot, opts generationOptions, occupied func(daySlotKey, string) bool) *slotPool {
	pool := &slotPool{}
	for _, day := range opts.WorkingDays() {
		for _, ts := range catalog.timeSlots {
			slot := &scheduleSlot{
				Day:          day,
				TimeSlotID:   ts.ID,
				TimeSlotName: ts.Name,
				Start:        ts.Start,
				End:          ts.End,
				Preferred:    opts.PreferredTimeSlots[ts.ID],
			}
			key := slot.Key()
			for _, h := range ts.Hours {
				if occupied != nil && occupied(key, h.ID) {
					continue
				}
				slot.Hours = append(slot.Hours, h)
			}
			if len(slot.Hours) == 0 {
				continue
			}
			pool.slots = append(pool.slots, slot)
		}
	}
	return pool
}
