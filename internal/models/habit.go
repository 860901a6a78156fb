package models

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	errs "github.com/julianstephens/streak/internal/errors"
	"github.com/julianstephens/streak/internal/utils"
)

// Status is the segment a habit is listed under.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// State is the lifecycle position of a habit.
type State string

const (
	StatePending   State = "pending"
	StateActive    State = "active"
	StateCompleted State = "completed"
)

// Progress is the display-ready count for the current challenge.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Habit owns its challenges. Challenges are kept newest StartDate first.
type Habit struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Color      Color        `json:"color"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
	Challenges []*Challenge `json:"challenges"`
	Reminders  []time.Time  `json:"reminders,omitempty"`
	Version    int          `json:"version"`
}

// HabitEdit describes a partial update. A nil field is left alone; a
// non-nil empty Days slice is rejected.
type HabitEdit struct {
	Name *string
	Days []time.Time
}

// NewHabit creates a habit whose first challenge covers days.
func NewHabit(name string, color Color, days []time.Time, now time.Time) (*Habit, error) {
	const op = "habit.create"

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errs.InvalidInput(op, "name cannot be empty")
	}
	if !color.Valid() {
		return nil, errs.InvalidInput(op, "unknown color %q", color)
	}

	first, err := NewChallenge(days, nil, now)
	if err != nil {
		return nil, err
	}

	return &Habit{
		ID:         uuid.New().String(),
		Name:       name,
		Color:      color,
		CreatedAt:  now,
		UpdatedAt:  now,
		Challenges: []*Challenge{first},
		Version:    1,
	}, nil
}

// Edit applies e. Nothing changes unless every part of the edit is valid.
//
// New days regenerate the current challenge. Without a current challenge
// the next upcoming one is regenerated, and failing that a new challenge is
// created. Execution state carries over for dates kept in the new set.
func (h *Habit) Edit(e HabitEdit, now, today time.Time) error {
	const op = "habit.edit"

	var name string
	if e.Name != nil {
		name = strings.TrimSpace(*e.Name)
		if name == "" {
			return errs.InvalidInput(op, "name cannot be empty")
		}
	}

	var (
		target *Challenge
		next   *Challenge
	)
	if e.Days != nil {
		if len(e.Days) == 0 {
			return errs.InvalidInput(op, "day set cannot be empty")
		}

		target = h.CurrentChallenge(today)
		if target == nil {
			target = h.nextUpcoming(today)
		}

		var err error
		next, err = NewChallenge(e.Days, nil, now)
		if err != nil {
			return err
		}

		if target != nil {
			next.ID = target.ID
			next.CreatedAt = target.CreatedAt
			if err := carryExecution(target, next); err != nil {
				return err
			}
		}
		if err := h.checkOverlap(op, next, target); err != nil {
			return err
		}
	}

	if e.Name != nil {
		h.Name = name
	}
	if next != nil {
		if target != nil {
			h.replaceChallenge(target.ID, next)
		} else {
			h.Challenges = append(h.Challenges, next)
		}
		h.sortChallenges()
	}
	h.UpdatedAt = now
	return nil
}

func carryExecution(from, to *Challenge) error {
	for _, d := range from.Days {
		if !d.Executed {
			continue
		}
		i, ok := to.index(d.Date)
		if !ok {
			return errs.Conflict("habit.edit", "cannot drop executed day %s from challenge %s",
				utils.FormatDate(d.Date), from.ID)
		}
		to.Days[i].Executed = true
		to.Days[i].ExecutedAt = d.ExecutedAt
	}
	return nil
}

// ScheduleChallenge appends a new challenge. This is how a completed habit
// becomes active again.
func (h *Habit) ScheduleChallenge(days []time.Time, now time.Time) (*Challenge, error) {
	c, err := NewChallenge(days, nil, now)
	if err != nil {
		return nil, err
	}
	if err := h.checkOverlap("habit.schedule", c, nil); err != nil {
		return nil, err
	}
	h.Challenges = append(h.Challenges, c)
	h.sortChallenges()
	h.UpdatedAt = now
	return c, nil
}

func (h *Habit) checkOverlap(op string, c, skip *Challenge) error {
	for _, other := range h.Challenges {
		if skip != nil && other.ID == skip.ID {
			continue
		}
		if c.Overlaps(other) {
			return errs.InvalidInput(op, "range %s..%s overlaps challenge %s (%s..%s)",
				utils.FormatDate(c.StartDate), utils.FormatDate(c.EndDate), other.ID,
				utils.FormatDate(other.StartDate), utils.FormatDate(other.EndDate))
		}
	}
	return nil
}

func (h *Habit) replaceChallenge(id string, c *Challenge) {
	for i, existing := range h.Challenges {
		if existing.ID == id {
			h.Challenges[i] = c
			return
		}
	}
}

func (h *Habit) sortChallenges() {
	sort.SliceStable(h.Challenges, func(i, j int) bool {
		return h.Challenges[i].StartDate.After(h.Challenges[j].StartDate)
	})
}

// nextUpcoming returns the challenge that starts soonest after today.
func (h *Habit) nextUpcoming(today time.Time) *Challenge {
	var next *Challenge
	for _, c := range h.Challenges {
		if c.IsUpcoming(today) && (next == nil || c.StartDate.Before(next.StartDate)) {
			next = c
		}
	}
	return next
}

// Challenge looks up a challenge by id.
func (h *Habit) Challenge(id string) *Challenge {
	for _, c := range h.Challenges {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// CurrentChallenge returns the challenge whose range contains today.
func (h *Habit) CurrentChallenge(today time.Time) *Challenge {
	for _, c := range h.Challenges {
		if c.IsCurrent(today) {
			return c
		}
	}
	return nil
}

// Progress counts the current challenge's past days, plus today once it is
// executed. Total falls back to 1 when nothing is current.
func (h *Habit) Progress(today time.Time) Progress {
	c := h.CurrentChallenge(today)
	if c == nil {
		return Progress{Completed: 0, Total: 1}
	}
	completed := len(c.PastDays(today))
	if d := c.CurrentDay(today); d != nil && d.Executed {
		completed++
	}
	return Progress{Completed: completed, Total: len(c.Days)}
}

// Status is completed once every challenge has ended. A habit without
// challenges is still in progress.
func (h *Habit) Status(today time.Time) Status {
	if len(h.Challenges) == 0 {
		return StatusInProgress
	}
	for _, c := range h.Challenges {
		if !c.HasEnded(today) {
			return StatusInProgress
		}
	}
	return StatusCompleted
}

func (h *Habit) State(today time.Time) State {
	if h.CurrentChallenge(today) != nil {
		return StateActive
	}
	if h.Status(today) == StatusCompleted {
		return StateCompleted
	}
	return StatePending
}

// MarkExecuted marks date in whichever challenge schedules it.
func (h *Habit) MarkExecuted(date, now time.Time) error {
	c := h.challengeFor(date)
	if c == nil {
		return errs.NotFound("habit.mark", "%s is not scheduled for habit %q", utils.FormatDate(date), h.Name)
	}
	if err := c.MarkExecuted(date, now); err != nil {
		return err
	}
	h.UpdatedAt = now
	return nil
}

func (h *Habit) UnmarkExecuted(date, now time.Time) error {
	c := h.challengeFor(date)
	if c == nil {
		return errs.NotFound("habit.unmark", "%s is not scheduled for habit %q", utils.FormatDate(date), h.Name)
	}
	if err := c.UnmarkExecuted(date); err != nil {
		return err
	}
	h.UpdatedAt = now
	return nil
}

func (h *Habit) challengeFor(date time.Time) *Challenge {
	for _, c := range h.Challenges {
		if c.Contains(date) {
			return c
		}
	}
	return nil
}

// DeleteChallenge removes a challenge that has no executed days.
func (h *Habit) DeleteChallenge(id string, now time.Time) error {
	const op = "habit.delete_challenge"
	for i, c := range h.Challenges {
		if c.ID != id {
			continue
		}
		if c.HasExecutedDays() {
			return errs.Conflict(op, "challenge %s has %d executed day(s)", id, c.ExecutedCount())
		}
		h.Challenges = append(h.Challenges[:i], h.Challenges[i+1:]...)
		h.UpdatedAt = now
		return nil
	}
	return errs.NotFound(op, "challenge %s not found in habit %q", id, h.Name)
}

// SetReminders replaces the reminder fire-times, sorted and deduplicated to
// the minute.
func (h *Habit) SetReminders(times []time.Time) {
	seen := make(map[int64]bool, len(times))
	reminders := make([]time.Time, 0, len(times))
	for _, t := range times {
		t = t.Truncate(time.Minute)
		if seen[t.Unix()] {
			continue
		}
		seen[t.Unix()] = true
		reminders = append(reminders, t)
	}
	sort.Slice(reminders, func(i, j int) bool { return reminders[i].Before(reminders[j]) })
	h.Reminders = reminders
}

// Validate checks the invariants of a habit loaded from storage.
func (h *Habit) Validate() error {
	const op = "habit.validate"
	if strings.TrimSpace(h.Name) == "" {
		return errs.InvalidInput(op, "habit %s has an empty name", h.ID)
	}
	if !h.Color.Valid() {
		return errs.InvalidInput(op, "habit %s has unknown color %q", h.ID, h.Color)
	}
	for i, c := range h.Challenges {
		if err := c.Validate(); err != nil {
			return err
		}
		if i > 0 && h.Challenges[i-1].StartDate.Before(c.StartDate) {
			return errs.InvalidInput(op, "habit %s challenges are not newest first", h.ID)
		}
		for _, other := range h.Challenges[i+1:] {
			if c.Overlaps(other) {
				return errs.InvalidInput(op, "habit %s has overlapping challenges %s and %s", h.ID, c.ID, other.ID)
			}
		}
	}
	return nil
}

// Clone returns a deep copy, so a failed save never leaves a cached habit
// half-mutated.
func (h *Habit) Clone() *Habit {
	cp := *h
	cp.Challenges = make([]*Challenge, len(h.Challenges))
	for i, c := range h.Challenges {
		cc := *c
		cc.Days = make([]Day, len(c.Days))
		copy(cc.Days, c.Days)
		cp.Challenges[i] = &cc
	}
	cp.Reminders = append([]time.Time(nil), h.Reminders...)
	return &cp
}
