package export

import (
	"sort"
	"strings"
)

// Session is one flattened timetable row shared by every renderer.
type Session struct {
	ID          string `csv:"-"`
	Group       string `csv:"Group"`
	Course      string `csv:"Course"`
	SessionType string `csv:"Type"`
	Teacher     string `csv:"Teacher"`
	Space       string `csv:"Learning Space"`
	Day         string `csv:"Day"`
	DayIndex    int    `csv:"-"`
	Start       string `csv:"Start"`
	End         string `csv:"End"`
	Hours       int    `csv:"Hours"`
}

// Timetable is a titled set of sessions.
type Timetable struct {
	Title    string
	Sessions []Session
}

// Sorted returns sessions ordered by group, day and start time.
func (t Timetable) Sorted() []Session {
	out := make([]Session, len(t.Sessions))
	copy(out, t.Sessions)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		if out[i].DayIndex != out[j].DayIndex {
			return out[i].DayIndex < out[j].DayIndex
		}
		return out[i].Start < out[j].Start
	})
	return out
}

// Groups returns the distinct group names in order.
func (t Timetable) Groups() []string {
	seen := make(map[string]bool)
	var groups []string
	for _, s := range t.Sorted() {
		if !seen[s.Group] {
			seen[s.Group] = true
			groups = append(groups, s.Group)
		}
	}
	return groups
}

func titleCase(day string) string {
	if day == "" {
		return day
	}
	lower := strings.ToLower(day)
	return strings.ToUpper(lower[:1]) + lower[1:]
}
