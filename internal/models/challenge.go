package models

import (
	"sort"
	"time"

	"github.com/google/uuid"

	errs "github.com/julianstephens/streak/internal/errors"
	"github.com/julianstephens/streak/internal/utils"
)

// Day is one scheduled calendar date of a challenge.
type Day struct {
	Date       time.Time  `json:"date"` // civil date, midnight UTC
	Executed   bool       `json:"executed"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
}

// Challenge is a stretch of scheduled days for a single habit.
// Days are unique and ascending; EndDate is always the last day.
type Challenge struct {
	ID        string    `json:"id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Days      []Day     `json:"days"`
	CreatedAt time.Time `json:"created_at"`
}

// NewChallenge builds a challenge from an unordered set of dates. Times of
// day are ignored and duplicate dates collapse into one. startDate defaults
// to the earliest day.
func NewChallenge(days []time.Time, startDate *time.Time, now time.Time) (*Challenge, error) {
	const op = "challenge.create"

	dates := normalizeDates(days)
	if len(dates) == 0 {
		return nil, errs.InvalidInput(op, "at least one day is required")
	}

	start := dates[0]
	if startDate != nil {
		start = utils.Normalize(*startDate)
		if start.After(dates[0]) {
			return nil, errs.InvalidInput(op, "start date %s is after the first scheduled day %s",
				utils.FormatDate(start), utils.FormatDate(dates[0]))
		}
	}

	c := &Challenge{
		ID:        uuid.New().String(),
		StartDate: start,
		EndDate:   dates[len(dates)-1],
		Days:      make([]Day, len(dates)),
		CreatedAt: now,
	}
	for i, d := range dates {
		c.Days[i] = Day{Date: d}
	}
	return c, nil
}

func normalizeDates(days []time.Time) []time.Time {
	seen := make(map[time.Time]bool, len(days))
	dates := make([]time.Time, 0, len(days))
	for _, d := range days {
		n := utils.Normalize(d)
		if seen[n] {
			continue
		}
		seen[n] = true
		dates = append(dates, n)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

func (c *Challenge) index(date time.Time) (int, bool) {
	d := utils.Normalize(date)
	i := sort.Search(len(c.Days), func(i int) bool { return !c.Days[i].Date.Before(d) })
	return i, i < len(c.Days) && c.Days[i].Date.Equal(d)
}

// Contains reports whether date is one of the scheduled days.
func (c *Challenge) Contains(date time.Time) bool {
	_, ok := c.index(date)
	return ok
}

// MarkExecuted records that the habit was done on date. Marking an already
// executed day keeps the original timestamp.
func (c *Challenge) MarkExecuted(date, now time.Time) error {
	i, ok := c.index(date)
	if !ok {
		return errs.NotFound("challenge.mark", "%s is not scheduled in challenge %s", utils.FormatDate(date), c.ID)
	}
	if c.Days[i].Executed {
		return nil
	}
	at := now
	c.Days[i].Executed = true
	c.Days[i].ExecutedAt = &at
	return nil
}

// UnmarkExecuted clears the execution state of date.
func (c *Challenge) UnmarkExecuted(date time.Time) error {
	i, ok := c.index(date)
	if !ok {
		return errs.NotFound("challenge.unmark", "%s is not scheduled in challenge %s", utils.FormatDate(date), c.ID)
	}
	c.Days[i].Executed = false
	c.Days[i].ExecutedAt = nil
	return nil
}

// CurrentDay returns a copy of today's scheduled day, or nil.
func (c *Challenge) CurrentDay(today time.Time) *Day {
	i, ok := c.index(today)
	if !ok {
		return nil
	}
	d := c.Days[i]
	return &d
}

// PastDays returns every scheduled day strictly before today, ascending.
func (c *Challenge) PastDays(today time.Time) []Day {
	i, _ := c.index(today)
	past := make([]Day, i)
	copy(past, c.Days[:i])
	return past
}

// IsCurrent reports whether ref lies within [StartDate, EndDate].
func (c *Challenge) IsCurrent(ref time.Time) bool {
	r := utils.Normalize(ref)
	return !r.Before(c.StartDate) && !r.After(c.EndDate)
}

func (c *Challenge) HasEnded(today time.Time) bool {
	return c.EndDate.Before(utils.Normalize(today))
}

func (c *Challenge) IsUpcoming(today time.Time) bool {
	return c.StartDate.After(utils.Normalize(today))
}

// Overlaps reports whether the two date ranges share at least one day.
func (c *Challenge) Overlaps(other *Challenge) bool {
	return !c.EndDate.Before(other.StartDate) && !other.EndDate.Before(c.StartDate)
}

func (c *Challenge) ExecutedCount() int {
	n := 0
	for _, d := range c.Days {
		if d.Executed {
			n++
		}
	}
	return n
}

func (c *Challenge) HasExecutedDays() bool {
	return c.ExecutedCount() > 0
}

// Validate checks the ordering invariants of a challenge loaded from storage.
func (c *Challenge) Validate() error {
	const op = "challenge.validate"
	if len(c.Days) == 0 {
		return errs.InvalidInput(op, "challenge %s has no days", c.ID)
	}
	for i := 1; i < len(c.Days); i++ {
		if !c.Days[i-1].Date.Before(c.Days[i].Date) {
			return errs.InvalidInput(op, "challenge %s days are not strictly ascending", c.ID)
		}
	}
	if c.StartDate.After(c.Days[0].Date) {
		return errs.InvalidInput(op, "challenge %s starts after its first day", c.ID)
	}
	if !c.EndDate.Equal(c.Days[len(c.Days)-1].Date) {
		return errs.InvalidInput(op, "challenge %s end date does not match its last day", c.ID)
	}
	return nil
}
