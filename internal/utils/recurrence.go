package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var weekdayNames = map[string]time.Weekday{
	"sun":       time.Sunday,
	"sunday":    time.Sunday,
	"mon":       time.Monday,
	"monday":    time.Monday,
	"tue":       time.Tuesday,
	"tuesday":   time.Tuesday,
	"wed":       time.Wednesday,
	"wednesday": time.Wednesday,
	"thu":       time.Thursday,
	"thursday":  time.Thursday,
	"fri":       time.Friday,
	"friday":    time.Friday,
	"sat":       time.Saturday,
	"saturday":  time.Saturday,
}

// ParseWeekdays parses a comma-separated list of weekdays
func ParseWeekdays(s string) ([]time.Weekday, error) {
	var weekdays []time.Weekday
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "" {
			continue
		}
		if wd, ok := weekdayNames[part]; ok {
			weekdays = append(weekdays, wd)
			continue
		}
		// Try parsing as number (0=Sunday, 6=Saturday)
		num, err := strconv.Atoi(part)
		if err != nil || num < 0 || num > 6 {
			return nil, fmt.Errorf("invalid weekday: %s", part)
		}
		weekdays = append(weekdays, time.Weekday(num))
	}
	return weekdays, nil
}

// ExpandWeekdays lists every date on one of weekdays in the given number of
// weeks starting at from (inclusive).
func ExpandWeekdays(from time.Time, weekdays []time.Weekday, weeks int) []time.Time {
	if weeks < 1 || len(weekdays) == 0 {
		return nil
	}
	want := make(map[time.Weekday]bool, len(weekdays))
	for _, wd := range weekdays {
		want[wd] = true
	}

	start := Normalize(from)
	var dates []time.Time
	for i := 0; i < weeks*7; i++ {
		d := start.AddDate(0, 0, i)
		if want[d.Weekday()] {
			dates = append(dates, d)
		}
	}
	return dates
}
