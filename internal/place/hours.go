package place

import "strings"

const (
	everyDay     = "매일"
	regularClose = "정기휴무"
	DefaultHours = "default"
)

var (
	weekdayNames = map[string]bool{"월": true, "화": true, "수": true, "목": true, "금": true}
	weekendNames = map[string]bool{"토": true, "일": true}
)

// DayHours is one row of a location's opening table. Hours is "HH:MM - HH:MM"
// and empty when the day carries only a description.
type DayHours struct {
	Day         string
	Hours       string
	Description string
}

type BusinessHours struct {
	Name     string   `json:"name"`
	Weekdays *string  `json:"weekdays"`
	Weekends *string  `json:"weekends"`
	Offdays  []string `json:"offdays"`
}

// Summarize collapses a per-day table into the most frequent weekday and
// weekend ranges plus the regular closing days. Ties go to the range seen
// first.
func Summarize(name string, days []DayHours) BusinessHours {
	if name == "" {
		name = DefaultHours
	}

	var weekdays, weekends []string
	offdays := []string{}
	for _, d := range days {
		if d.Hours == "" {
			if strings.Contains(d.Description, regularClose) {
				offdays = append(offdays, d.Day)
			}
			continue
		}
		switch {
		case d.Day == everyDay:
			weekdays = append(weekdays, d.Hours)
			weekends = append(weekends, d.Hours)
		case weekdayNames[d.Day]:
			weekdays = append(weekdays, d.Hours)
		case weekendNames[d.Day]:
			weekends = append(weekends, d.Hours)
		}
	}

	return BusinessHours{
		Name:     name,
		Weekdays: majority(weekdays),
		Weekends: majority(weekends),
		Offdays:  offdays,
	}
}

func majority(values []string) *string {
	if len(values) == 0 {
		return nil
	}
	counts := make(map[string]int, len(values))
	best, bestCount := "", 0
	for _, v := range values {
		counts[v]++
	}
	for _, v := range values {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return &best
}

// FormatRange renders start and end as an opening range, or "" when either
// side is missing.
func FormatRange(start, end string) string {
	if start == "" || end == "" {
		return ""
	}
	return start + " - " + end
}
