package export

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
)

const defaultCalendarWeeks = 16

// ICSExporter renders sessions as weekly recurring calendar events.
type ICSExporter struct {
	location *time.Location
	weeks    int
	now      func() time.Time
}

// NewICSExporter constructs an exporter. Events recur for weeks occurrences starting
// from the Monday of the current week in loc.
func NewICSExporter(loc *time.Location, weeks int) *ICSExporter {
	if loc == nil {
		loc = time.UTC
	}
	if weeks <= 0 {
		weeks = defaultCalendarWeeks
	}
	return &ICSExporter{location: loc, weeks: weeks, now: time.Now}
}

// Render serialises the calendar.
func (e *ICSExporter) Render(data Timetable) ([]byte, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//timetable-api//EN")
	if data.Title != "" {
		cal.SetXWRCalName(data.Title)
	}

	stamp := e.now().UTC()
	monday := weekStart(e.now().In(e.location))
	for _, s := range data.Sorted() {
		if s.DayIndex < 1 || s.DayIndex > 7 {
			return nil, fmt.Errorf("session %s has invalid day %q", s.ID, s.Day)
		}
		start, err := clockOn(monday, s.DayIndex, s.Start)
		if err != nil {
			return nil, fmt.Errorf("session %s start: %w", s.ID, err)
		}
		end, err := clockOn(monday, s.DayIndex, s.End)
		if err != nil {
			return nil, fmt.Errorf("session %s end: %w", s.ID, err)
		}
		event := cal.AddEvent(s.ID + "@timetable-api")
		event.SetDtStampTime(stamp)
		event.SetStartAt(start)
		event.SetEndAt(end)
		event.SetSummary(fmt.Sprintf("%s (%s) - %s", s.Course, s.SessionType, s.Group))
		event.SetLocation(s.Space)
		event.SetDescription("Teacher: " + s.Teacher)
		event.AddRrule(fmt.Sprintf("FREQ=WEEKLY;COUNT=%d", e.weeks))
	}
	return []byte(cal.Serialize()), nil
}

func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	day := t.AddDate(0, 0, -offset)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, t.Location())
}

func clockOn(monday time.Time, dayIndex int, clock string) (time.Time, error) {
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, err
	}
	day := monday.AddDate(0, 0, dayIndex-1)
	return time.Date(day.Year(), day.Month(), day.Day(), parsed.Hour(), parsed.Minute(), 0, 0, monday.Location()), nil
}
