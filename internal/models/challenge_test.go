package models

import (
	"testing"
	"time"

	errs "github.com/julianstephens/streak/internal/errors"
	"github.com/julianstephens/streak/internal/utils"
)

// 2026-10-19 is a Monday.
var (
	monday    = date(2026, 10, 19)
	tuesday   = date(2026, 10, 20)
	wednesday = date(2026, 10, 21)
	thursday  = date(2026, 10, 22)
	friday    = date(2026, 10, 23)
	saturday  = date(2026, 10, 24)
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func at(d time.Time, hour int) time.Time {
	return d.Add(time.Duration(hour) * time.Hour)
}

func TestNewChallengeNormalizesDays(t *testing.T) {
	days := []time.Time{
		at(friday, 18),
		monday,
		at(wednesday, 7),
		at(monday, 22), // duplicate calendar day
	}

	c, err := NewChallenge(days, nil, at(monday, 9))
	if err != nil {
		t.Fatalf("NewChallenge failed: %v", err)
	}

	want := []time.Time{monday, wednesday, friday}
	if len(c.Days) != len(want) {
		t.Fatalf("expected %d days, got %d", len(want), len(c.Days))
	}
	for i, d := range c.Days {
		if !d.Date.Equal(want[i]) {
			t.Errorf("day %d: expected %s, got %s", i, utils.FormatDate(want[i]), utils.FormatDate(d.Date))
		}
	}
	if !c.StartDate.Equal(monday) {
		t.Errorf("expected start date %s, got %s", utils.FormatDate(monday), utils.FormatDate(c.StartDate))
	}
	if !c.EndDate.Equal(friday) {
		t.Errorf("expected end date %s, got %s", utils.FormatDate(friday), utils.FormatDate(c.EndDate))
	}
	if c.ID == "" {
		t.Error("expected challenge id to be assigned")
	}
}

func TestNewChallengeValidation(t *testing.T) {
	if _, err := NewChallenge(nil, nil, monday); !errs.Is(err, errs.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty days, got %v", err)
	}

	late := wednesday
	if _, err := NewChallenge([]time.Time{monday}, &late, monday); !errs.Is(err, errs.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for start after first day, got %v", err)
	}

	early := date(2026, 10, 12)
	c, err := NewChallenge([]time.Time{monday}, &early, monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.StartDate.Equal(early) {
		t.Errorf("expected explicit start date to be kept, got %s", utils.FormatDate(c.StartDate))
	}
	if !c.IsCurrent(date(2026, 10, 15)) {
		t.Error("expected challenge to be current between explicit start and first day")
	}
}

func TestSingleDayChallenge(t *testing.T) {
	c, err := NewChallenge([]time.Time{wednesday}, nil, monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.StartDate.Equal(c.EndDate) {
		t.Error("expected start and end to match for a one-day challenge")
	}
	if !c.IsCurrent(wednesday) || c.IsCurrent(tuesday) || c.IsCurrent(thursday) {
		t.Error("one-day challenge should only be current on its day")
	}
}

func TestPastDays(t *testing.T) {
	c, err := NewChallenge([]time.Time{friday, monday, wednesday}, nil, monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name  string
		today time.Time
		want  []time.Time
	}{
		{"before start", date(2026, 10, 18), nil},
		{"on first day", monday, nil},
		{"between days", tuesday, []time.Time{monday}},
		{"on a scheduled day", wednesday, []time.Time{monday}},
		{"on last day", friday, []time.Time{monday, wednesday}},
		{"after end", saturday, []time.Time{monday, wednesday, friday}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.PastDays(tt.today)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d past days, got %d", len(tt.want), len(got))
			}
			for i := range got {
				if !got[i].Date.Equal(tt.want[i]) {
					t.Errorf("past day %d: expected %s, got %s", i, utils.FormatDate(tt.want[i]), utils.FormatDate(got[i].Date))
				}
			}
		})
	}
}

func TestPastDaysReturnsCopy(t *testing.T) {
	c, _ := NewChallenge([]time.Time{monday, wednesday}, nil, monday)

	past := c.PastDays(thursday)
	past[0].Executed = true

	if c.Days[0].Executed {
		t.Error("mutating PastDays result should not touch the challenge")
	}
}

func TestMarkExecutedIsIdempotent(t *testing.T) {
	c, _ := NewChallenge([]time.Time{monday, wednesday}, nil, monday)

	first := at(monday, 8)
	if err := c.MarkExecuted(at(monday, 20), first); err != nil {
		t.Fatalf("MarkExecuted failed: %v", err)
	}
	if err := c.MarkExecuted(monday, at(monday, 21)); err != nil {
		t.Fatalf("second MarkExecuted failed: %v", err)
	}

	d := c.CurrentDay(monday)
	if d == nil || !d.Executed {
		t.Fatal("expected monday to be executed")
	}
	if d.ExecutedAt == nil || !d.ExecutedAt.Equal(first) {
		t.Errorf("expected executedAt fixed at first call %v, got %v", first, d.ExecutedAt)
	}
}

func TestMarkExecutedUnknownDate(t *testing.T) {
	c, _ := NewChallenge([]time.Time{monday, wednesday}, nil, monday)

	for _, d := range []time.Time{tuesday, friday, date(2025, 10, 19)} {
		if err := c.MarkExecuted(d, monday); !errs.Is(err, errs.ErrNotFound) {
			t.Errorf("expected ErrNotFound for %s, got %v", utils.FormatDate(d), err)
		}
	}
	if err := c.UnmarkExecuted(tuesday); !errs.Is(err, errs.ErrNotFound) {
		t.Errorf("expected ErrNotFound on unmark, got %v", err)
	}
}

func TestUnmarkExecuted(t *testing.T) {
	c, _ := NewChallenge([]time.Time{monday}, nil, monday)
	_ = c.MarkExecuted(monday, monday)

	if err := c.UnmarkExecuted(monday); err != nil {
		t.Fatalf("UnmarkExecuted failed: %v", err)
	}
	if c.HasExecutedDays() {
		t.Error("expected no executed days after unmark")
	}
	if c.Days[0].ExecutedAt != nil {
		t.Error("expected executedAt to be cleared")
	}
}

func TestCurrentDay(t *testing.T) {
	c, _ := NewChallenge([]time.Time{monday, wednesday}, nil, monday)

	if d := c.CurrentDay(tuesday); d != nil {
		t.Errorf("expected no current day on an unscheduled date, got %v", d)
	}
	if d := c.CurrentDay(at(wednesday, 15)); d == nil || !d.Date.Equal(wednesday) {
		t.Errorf("expected wednesday as current day, got %v", d)
	}
}

func TestOverlaps(t *testing.T) {
	a, _ := NewChallenge([]time.Time{monday, wednesday}, nil, monday)
	b, _ := NewChallenge([]time.Time{wednesday, friday}, nil, monday)
	c, _ := NewChallenge([]time.Time{thursday, saturday}, nil, monday)

	if !a.Overlaps(b) || !b.Overlaps(a) {
		t.Error("expected ranges sharing wednesday to overlap")
	}
	if a.Overlaps(c) {
		t.Error("expected disjoint ranges not to overlap")
	}
	if !b.Overlaps(c) {
		t.Error("expected partially shared ranges to overlap")
	}
}

func TestChallengeValidate(t *testing.T) {
	c, _ := NewChallenge([]time.Time{monday, wednesday}, nil, monday)
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid challenge, got %v", err)
	}

	c.Days[0], c.Days[1] = c.Days[1], c.Days[0]
	if err := c.Validate(); !errs.Is(err, errs.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unsorted days, got %v", err)
	}
}
