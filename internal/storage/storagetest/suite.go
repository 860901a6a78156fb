// Package storagetest holds the behaviour every storage.Provider must share.
// Backend packages run it against a freshly initialized store.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	errs "github.com/julianstephens/streak/internal/errors"
	"github.com/julianstephens/streak/internal/models"
	"github.com/julianstephens/streak/internal/storage"
)

// Factory returns an initialized, empty store. The suite closes it.
type Factory func(t *testing.T) storage.Provider

var (
	monday    = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	wednesday = monday.AddDate(0, 0, 2)
	friday    = monday.AddDate(0, 0, 4)
)

func at(d time.Time, hour int) time.Time {
	return d.Add(time.Duration(hour) * time.Hour)
}

// Run executes the provider suite. Each subtest gets its own store.
func Run(t *testing.T, factory Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Provider)
	}{
		{"Settings", testSettings},
		{"CreateAndGet", testCreateAndGet},
		{"DuplicateName", testDuplicateName},
		{"ListNewestFirst", testListNewestFirst},
		{"UpdateVersioning", testUpdateVersioning},
		{"Delete", testDelete},
		{"ChangeLog", testChangeLog},
		{"ChangeLogUnderConcurrentWriters", testChangeLogUnderConcurrentWriters},
		{"Reminders", testReminders},
		{"CancelledContext", testCancelledContext},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := factory(t)
			defer s.Close()
			tt.fn(t, s)
		})
	}
}

func newHabit(t *testing.T, name string, created time.Time) *models.Habit {
	t.Helper()
	h, err := models.NewHabit(name, models.ColorTeal, []time.Time{monday, wednesday, friday}, created)
	if err != nil {
		t.Fatalf("NewHabit failed: %v", err)
	}
	return h
}

func testSettings(t *testing.T, s storage.Provider) {
	ctx := context.Background()

	settings, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if settings != models.DefaultSettings() {
		t.Errorf("expected default settings, got %+v", settings)
	}

	settings.Timezone = "America/New_York"
	settings.NotificationsEnabled = false
	settings.ReminderGraceMin = 3
	if err := s.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}

	got, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if got != settings {
		t.Errorf("expected %+v, got %+v", settings, got)
	}

	settings.Timezone = "Mars/Olympus_Mons"
	if err := s.SaveSettings(ctx, settings); err == nil {
		t.Error("expected invalid timezone to be rejected")
	}
}

func testCreateAndGet(t *testing.T, s storage.Provider) {
	ctx := context.Background()

	h := newHabit(t, "Read", at(monday, 7))
	if err := h.MarkExecuted(monday, at(monday, 21)); err != nil {
		t.Fatalf("MarkExecuted failed: %v", err)
	}
	if err := s.CreateHabit(ctx, h); err != nil {
		t.Fatalf("CreateHabit failed: %v", err)
	}

	got, err := s.GetHabit(ctx, h.ID)
	if err != nil {
		t.Fatalf("GetHabit failed: %v", err)
	}
	if got.Name != "Read" || got.Color != models.ColorTeal || got.Version != 1 {
		t.Errorf("unexpected habit: %+v", got)
	}
	if !got.CreatedAt.Equal(h.CreatedAt) {
		t.Errorf("expected created_at %v, got %v", h.CreatedAt, got.CreatedAt)
	}
	if len(got.Challenges) != 1 {
		t.Fatalf("expected 1 challenge, got %d", len(got.Challenges))
	}

	c := got.Challenges[0]
	if c.ID != h.Challenges[0].ID {
		t.Errorf("challenge id changed: %s != %s", c.ID, h.Challenges[0].ID)
	}
	if !c.StartDate.Equal(monday) || !c.EndDate.Equal(friday) {
		t.Errorf("unexpected range %v..%v", c.StartDate, c.EndDate)
	}
	if len(c.Days) != 3 {
		t.Fatalf("expected 3 days, got %d", len(c.Days))
	}
	if !c.Days[0].Executed || c.Days[0].ExecutedAt == nil || !c.Days[0].ExecutedAt.Equal(at(monday, 21)) {
		t.Errorf("expected monday executed at 21:00, got %+v", c.Days[0])
	}
	if c.Days[1].Executed || c.Days[1].ExecutedAt != nil {
		t.Errorf("expected wednesday pending, got %+v", c.Days[1])
	}

	byName, err := s.GetHabitByName(ctx, "Read")
	if err != nil {
		t.Fatalf("GetHabitByName failed: %v", err)
	}
	if byName.ID != h.ID {
		t.Errorf("expected %s, got %s", h.ID, byName.ID)
	}

	if _, err := s.GetHabit(ctx, "missing"); !errs.Is(err, errs.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetHabitByName(ctx, "Missing"); !errs.Is(err, errs.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testDuplicateName(t *testing.T, s storage.Provider) {
	ctx := context.Background()

	if err := s.CreateHabit(ctx, newHabit(t, "Read", monday)); err != nil {
		t.Fatalf("CreateHabit failed: %v", err)
	}
	err := s.CreateHabit(ctx, newHabit(t, "Read", monday))
	if !errs.Is(err, errs.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	habits, err := s.ListHabits(ctx)
	if err != nil {
		t.Fatalf("ListHabits failed: %v", err)
	}
	if len(habits) != 1 {
		t.Errorf("failed create must not leave rows behind, got %d habits", len(habits))
	}
}

func testListNewestFirst(t *testing.T, s storage.Provider) {
	ctx := context.Background()

	names := []string{"Read", "Run", "Write"}
	for i, name := range names {
		if err := s.CreateHabit(ctx, newHabit(t, name, at(monday, i))); err != nil {
			t.Fatalf("CreateHabit(%s) failed: %v", name, err)
		}
	}

	habits, err := s.ListHabits(ctx)
	if err != nil {
		t.Fatalf("ListHabits failed: %v", err)
	}
	if len(habits) != 3 {
		t.Fatalf("expected 3 habits, got %d", len(habits))
	}
	for i, want := range []string{"Write", "Run", "Read"} {
		if habits[i].Name != want {
			t.Errorf("position %d: expected %s, got %s", i, want, habits[i].Name)
		}
		if len(habits[i].Challenges) != 1 || len(habits[i].Challenges[0].Days) != 3 {
			t.Errorf("%s: children not loaded", habits[i].Name)
		}
	}
}

func testUpdateVersioning(t *testing.T, s storage.Provider) {
	ctx := context.Background()

	h := newHabit(t, "Read", monday)
	if err := s.CreateHabit(ctx, h); err != nil {
		t.Fatalf("CreateHabit failed: %v", err)
	}

	next := []time.Time{monday.AddDate(0, 0, 7), monday.AddDate(0, 0, 8)}
	if _, err := h.ScheduleChallenge(next, at(monday, 9)); err != nil {
		t.Fatalf("ScheduleChallenge failed: %v", err)
	}
	if err := s.UpdateHabit(ctx, h, 1); err != nil {
		t.Fatalf("UpdateHabit failed: %v", err)
	}
	if h.Version != 2 {
		t.Errorf("expected version 2, got %d", h.Version)
	}

	got, err := s.GetHabit(ctx, h.ID)
	if err != nil {
		t.Fatalf("GetHabit failed: %v", err)
	}
	if got.Version != 2 || len(got.Challenges) != 2 {
		t.Fatalf("expected version 2 with 2 challenges, got v%d with %d", got.Version, len(got.Challenges))
	}
	if !got.Challenges[0].StartDate.After(got.Challenges[1].StartDate) {
		t.Error("expected challenges newest first")
	}

	stale := got.Clone()
	stale.Name = "Reading"
	if err := s.UpdateHabit(ctx, stale, 1); !errs.Is(err, errs.ErrConflict) {
		t.Errorf("expected ErrConflict for stale version, got %v", err)
	}

	ghost := newHabit(t, "Ghost", monday)
	if err := s.UpdateHabit(ctx, ghost, 1); !errs.Is(err, errs.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := s.CreateHabit(ctx, newHabit(t, "Run", monday)); err != nil {
		t.Fatalf("CreateHabit failed: %v", err)
	}
	got.Name = "Run"
	if err := s.UpdateHabit(ctx, got, 2); !errs.Is(err, errs.ErrConflict) {
		t.Errorf("expected ErrConflict for duplicate name, got %v", err)
	}
}

func testDelete(t *testing.T, s storage.Provider) {
	ctx := context.Background()

	h := newHabit(t, "Read", monday)
	if err := s.CreateHabit(ctx, h); err != nil {
		t.Fatalf("CreateHabit failed: %v", err)
	}
	if err := s.ReplaceReminders(ctx, h.ID, []time.Time{at(monday, 8)}); err != nil {
		t.Fatalf("ReplaceReminders failed: %v", err)
	}

	if err := s.DeleteHabit(ctx, h.ID, at(monday, 10)); err != nil {
		t.Fatalf("DeleteHabit failed: %v", err)
	}
	if _, err := s.GetHabit(ctx, h.ID); !errs.Is(err, errs.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteHabit(ctx, h.ID, at(monday, 11)); !errs.Is(err, errs.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}

	due, err := s.DueReminders(ctx, monday, friday)
	if err != nil {
		t.Fatalf("DueReminders failed: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("expected reminders removed with habit, got %d", len(due))
	}

	// The name is free again.
	if err := s.CreateHabit(ctx, newHabit(t, "Read", monday)); err != nil {
		t.Errorf("expected name reuse after delete, got %v", err)
	}
}

func testChangeLog(t *testing.T, s storage.Provider) {
	ctx := context.Background()

	start, err := s.LatestChangeSeq(ctx)
	if err != nil {
		t.Fatalf("LatestChangeSeq failed: %v", err)
	}

	a := newHabit(t, "Read", monday)
	b := newHabit(t, "Run", monday)
	if err := s.CreateHabit(ctx, a); err != nil {
		t.Fatalf("CreateHabit failed: %v", err)
	}
	if err := s.CreateHabit(ctx, b); err != nil {
		t.Fatalf("CreateHabit failed: %v", err)
	}
	if err := a.MarkExecuted(monday, at(monday, 20)); err != nil {
		t.Fatalf("MarkExecuted failed: %v", err)
	}
	if err := s.UpdateHabit(ctx, a, a.Version); err != nil {
		t.Fatalf("UpdateHabit failed: %v", err)
	}
	if err := s.DeleteHabit(ctx, b.ID, at(monday, 21)); err != nil {
		t.Fatalf("DeleteHabit failed: %v", err)
	}

	changes, err := s.ChangesSince(ctx, start)
	if err != nil {
		t.Fatalf("ChangesSince failed: %v", err)
	}
	want := []struct {
		id string
		op storage.ChangeOp
		at time.Time
	}{
		{a.ID, storage.OpInsert, monday},
		{b.ID, storage.OpInsert, monday},
		{a.ID, storage.OpUpdate, at(monday, 20)},
		{b.ID, storage.OpDelete, at(monday, 21)},
	}
	if len(changes) != len(want) {
		t.Fatalf("expected %d changes, got %d", len(want), len(changes))
	}
	for i, w := range want {
		if changes[i].HabitID != w.id || changes[i].Op != w.op {
			t.Errorf("change %d: expected %s %s, got %s %s", i, w.op, w.id, changes[i].Op, changes[i].HabitID)
		}
		if !changes[i].At.Equal(w.at) {
			t.Errorf("change %d: expected timestamp %s, got %s", i, w.at, changes[i].At)
		}
		if i > 0 && changes[i].Seq <= changes[i-1].Seq {
			t.Errorf("change %d: seq %d not after %d", i, changes[i].Seq, changes[i-1].Seq)
		}
	}

	latest, err := s.LatestChangeSeq(ctx)
	if err != nil {
		t.Fatalf("LatestChangeSeq failed: %v", err)
	}
	if latest != changes[len(changes)-1].Seq {
		t.Errorf("expected latest seq %d, got %d", changes[len(changes)-1].Seq, latest)
	}

	rest, err := s.ChangesSince(ctx, changes[1].Seq)
	if err != nil {
		t.Fatalf("ChangesSince failed: %v", err)
	}
	if len(rest) != 2 {
		t.Errorf("expected 2 changes after seq %d, got %d", changes[1].Seq, len(rest))
	}
}

func testReminders(t *testing.T, s storage.Provider) {
	ctx := context.Background()

	h := newHabit(t, "Read", monday)
	if err := s.CreateHabit(ctx, h); err != nil {
		t.Fatalf("CreateHabit failed: %v", err)
	}

	first, second := at(monday, 8), at(wednesday, 8)
	if err := s.ReplaceReminders(ctx, h.ID, []time.Time{first, second}); err != nil {
		t.Fatalf("ReplaceReminders failed: %v", err)
	}

	due, err := s.DueReminders(ctx, monday, at(monday, 12))
	if err != nil {
		t.Fatalf("DueReminders failed: %v", err)
	}
	if len(due) != 1 || !due[0].FireAt.Equal(first) || due[0].HabitName != "Read" {
		t.Fatalf("expected monday reminder for Read, got %+v", due)
	}

	if err := s.MarkReminderSent(ctx, h.ID, first, at(monday, 9)); err != nil {
		t.Fatalf("MarkReminderSent failed: %v", err)
	}
	if err := s.MarkReminderSent(ctx, h.ID, at(friday, 8), at(friday, 9)); !errs.Is(err, errs.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown reminder, got %v", err)
	}

	// Keeping the sent reminder in the new set must not resend it.
	third := at(friday, 8)
	if err := s.ReplaceReminders(ctx, h.ID, []time.Time{first, third}); err != nil {
		t.Fatalf("ReplaceReminders failed: %v", err)
	}
	due, err = s.DueReminders(ctx, monday, at(friday, 23))
	if err != nil {
		t.Fatalf("DueReminders failed: %v", err)
	}
	if len(due) != 1 || !due[0].FireAt.Equal(third) {
		t.Fatalf("expected only friday reminder due, got %+v", due)
	}

	got, err := s.GetHabit(ctx, h.ID)
	if err != nil {
		t.Fatalf("GetHabit failed: %v", err)
	}
	if len(got.Reminders) != 2 || !got.Reminders[0].Equal(first) || !got.Reminders[1].Equal(third) {
		t.Errorf("expected reminders [%v %v], got %v", first, third, got.Reminders)
	}

	if err := s.ReplaceReminders(ctx, "missing", []time.Time{first}); !errs.Is(err, errs.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown habit, got %v", err)
	}
}

func testCancelledContext(t *testing.T, s storage.Provider) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.CreateHabit(ctx, newHabit(t, "Read", monday)); err == nil {
		t.Error("expected CreateHabit to fail with a cancelled context")
	}
	if _, err := s.ListHabits(ctx); err == nil {
		t.Error("expected ListHabits to fail with a cancelled context")
	}

	habits, err := s.ListHabits(context.Background())
	if err != nil {
		t.Fatalf("ListHabits failed: %v", err)
	}
	if len(habits) != 0 {
		t.Errorf("cancelled create must not persist, got %d habits", len(habits))
	}
}

// testChangeLogUnderConcurrentWriters polls the log the way the catalog
// does, always resuming after the highest seq seen, while several writers
// commit. Every change must still be seen exactly once.
func testChangeLogUnderConcurrentWriters(t *testing.T, s storage.Provider) {
	ctx := context.Background()
	const writers, perWriter = 4, 5

	start, err := s.LatestChangeSeq(ctx)
	if err != nil {
		t.Fatalf("LatestChangeSeq failed: %v", err)
	}

	batches := make([][]*models.Habit, writers)
	for w := range batches {
		for i := 0; i < perWriter; i++ {
			batches[w] = append(batches[w], newHabit(t, fmt.Sprintf("Habit %d-%d", w, i), monday))
		}
	}

	var wg sync.WaitGroup
	errCh := make(chan error, writers*perWriter)
	for _, batch := range batches {
		wg.Add(1)
		go func(batch []*models.Habit) {
			defer wg.Done()
			for _, h := range batch {
				if err := s.CreateHabit(ctx, h); err != nil {
					errCh <- err
				}
			}
		}(batch)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	seen := make(map[string]int)
	last := start
	poll := func() {
		changes, err := s.ChangesSince(ctx, last)
		if err != nil {
			t.Fatalf("ChangesSince failed: %v", err)
		}
		for _, c := range changes {
			if c.Seq <= last {
				t.Fatalf("seq %d returned after %d", c.Seq, last)
			}
			seen[c.HabitID]++
			last = c.Seq
		}
	}

	for polling := true; polling; {
		select {
		case <-done:
			polling = false
		default:
			poll()
		}
	}
	poll()

	close(errCh)
	for err := range errCh {
		t.Fatalf("CreateHabit failed: %v", err)
	}
	if len(seen) != writers*perWriter {
		t.Errorf("expected %d habits in the change log, saw %d", writers*perWriter, len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("habit %s seen %d times", id, n)
		}
	}
}
