package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	errs "github.com/julianstephens/streak/internal/errors"
	"github.com/julianstephens/streak/internal/models"
	"github.com/julianstephens/streak/internal/storage/sqlite"
	"github.com/julianstephens/streak/internal/utils"
)

var (
	monday    = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	tuesday   = monday.AddDate(0, 0, 1)
	wednesday = monday.AddDate(0, 0, 2)
	friday    = monday.AddDate(0, 0, 4)
	saturday  = monday.AddDate(0, 0, 5)
)

func at(d time.Time, hour int) time.Time {
	return d.Add(time.Duration(hour) * time.Hour)
}

func setupTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	return openStore(t, filepath.Join(t.TempDir(), "test.db"), true)
}

func openStore(t *testing.T, path string, init bool) *sqlite.Store {
	t.Helper()
	store := sqlite.NewStore(path)
	var err error
	if init {
		err = store.Init(context.Background())
	} else {
		err = store.Load(context.Background())
	}
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func setupCatalog(t *testing.T, store *sqlite.Store, clock utils.Clock, opts ...Option) *Catalog {
	t.Helper()
	opts = append([]Option{WithClock(clock), WithLocation(time.UTC)}, opts...)
	c, err := New(context.Background(), store, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func create(t *testing.T, c *Catalog, name string, days ...time.Time) *models.Habit {
	t.Helper()
	res, err := c.Create(context.Background(), CreateInput{Name: name, Color: models.ColorBlue, Days: days})
	if err != nil {
		t.Fatalf("Create(%s) failed: %v", name, err)
	}
	return res.Habit
}

// collect returns a listener that forwards changesets to a channel.
func collect() (Listener, <-chan Changeset) {
	ch := make(chan Changeset, 64)
	return func(cs Changeset) { ch <- cs }, ch
}

func next(t *testing.T, ch <-chan Changeset) Changeset {
	t.Helper()
	select {
	case cs := <-ch:
		return cs
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for changeset")
		return Changeset{}
	}
}

func names(habits []*models.Habit) []string {
	out := make([]string, len(habits))
	for i, h := range habits {
		out[i] = h.Name
	}
	return out
}

func TestReadScenario(t *testing.T) {
	ctx := context.Background()
	clock := utils.NewFixedClock(at(monday, 9))
	c := setupCatalog(t, setupTestStore(t), clock)

	h := create(t, c, "Read", monday, wednesday, friday)
	if got := h.Status(c.Today()); got != models.StatusInProgress {
		t.Errorf("expected in progress, got %s", got)
	}
	if got := h.Progress(c.Today()); got != (models.Progress{Completed: 0, Total: 3}) {
		t.Errorf("expected 0/3, got %+v", got)
	}

	h, err := c.MarkExecuted(ctx, h.ID, monday)
	if err != nil {
		t.Fatalf("MarkExecuted failed: %v", err)
	}
	if got := h.Progress(c.Today()); got != (models.Progress{Completed: 1, Total: 3}) {
		t.Errorf("monday executed while still today: expected 1/3, got %+v", got)
	}

	clock.Set(at(tuesday, 9))
	if got := h.Progress(c.Today()); got != (models.Progress{Completed: 1, Total: 3}) {
		t.Errorf("on tuesday: expected 1/3, got %+v", got)
	}

	clock.Set(at(saturday, 9))
	completed, err := c.ListCompleted(ctx)
	if err != nil {
		t.Fatalf("ListCompleted failed: %v", err)
	}
	if len(completed) != 1 || completed[0].ID != h.ID {
		t.Fatalf("expected Read completed, got %v", names(completed))
	}
	if n := len(completed[0].Challenges[0].PastDays(c.Today())); n != 3 {
		t.Errorf("expected 3 past days, got %d", n)
	}
}

func TestSegmentsPartition(t *testing.T) {
	ctx := context.Background()
	clock := utils.NewFixedClock(at(monday, 9))
	c := setupCatalog(t, setupTestStore(t), clock)

	// Created an hour apart so CreatedAt ordering is unambiguous.
	schedules := map[string][]time.Time{
		"Read":    {monday, wednesday, friday},
		"Run":     {monday, tuesday},
		"Write":   {saturday},
		"Stretch": {monday},
	}
	for _, name := range []string{"Read", "Run", "Write", "Stretch"} {
		create(t, c, name, schedules[name]...)
		clock.Advance(time.Hour)
	}

	tests := []struct {
		name       string
		now        time.Time
		inProgress []string
		completed  []string
	}{
		{"monday", at(monday, 20), []string{"Stretch", "Write", "Run", "Read"}, nil},
		{"wednesday", at(wednesday, 9), []string{"Write", "Read"}, []string{"Stretch", "Run"}},
		{"saturday", at(saturday, 9), []string{"Write"}, []string{"Stretch", "Run", "Read"}},
		{"next week", at(saturday.AddDate(0, 0, 2), 9), nil, []string{"Stretch", "Write", "Run", "Read"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock.Set(tt.now)
			seg, err := c.Segments(ctx)
			if err != nil {
				t.Fatalf("Segments failed: %v", err)
			}
			if got := names(seg.InProgress); !equal(got, tt.inProgress) {
				t.Errorf("in progress: expected %v, got %v", tt.inProgress, got)
			}
			if got := names(seg.Completed); !equal(got, tt.completed) {
				t.Errorf("completed: expected %v, got %v", tt.completed, got)
			}
			if len(seg.InProgress)+len(seg.Completed) != 4 {
				t.Errorf("segments must cover all 4 habits")
			}

			inProgress, err := c.ListInProgress(ctx)
			if err != nil {
				t.Fatalf("ListInProgress failed: %v", err)
			}
			if !equal(names(inProgress), tt.inProgress) {
				t.Errorf("ListInProgress disagrees with Segments: %v", names(inProgress))
			}
		})
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestListHonorsCancellation(t *testing.T) {
	c := setupCatalog(t, setupTestStore(t), utils.NewFixedClock(at(monday, 9)))
	create(t, c, "Read", monday)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.ListInProgress(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if _, err := c.ListCompleted(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestMutationErrors(t *testing.T) {
	ctx := context.Background()
	clock := utils.NewFixedClock(at(monday, 9))
	c := setupCatalog(t, setupTestStore(t), clock)
	h := create(t, c, "Read", monday, wednesday, friday)

	if _, err := c.Create(ctx, CreateInput{Name: "Read", Color: models.ColorRed, Days: []time.Time{monday}}); !errs.Is(err, errs.ErrConflict) {
		t.Errorf("duplicate name: expected ErrConflict, got %v", err)
	}
	if _, err := c.Create(ctx, CreateInput{Name: " ", Color: models.ColorRed, Days: []time.Time{monday}}); !errs.Is(err, errs.ErrInvalidInput) {
		t.Errorf("blank name: expected ErrInvalidInput, got %v", err)
	}
	if _, err := c.MarkExecuted(ctx, h.ID, tuesday); !errs.Is(err, errs.ErrNotFound) {
		t.Errorf("unscheduled day: expected ErrNotFound, got %v", err)
	}
	if _, err := c.MarkExecuted(ctx, "missing", monday); !errs.Is(err, errs.ErrNotFound) {
		t.Errorf("missing habit: expected ErrNotFound, got %v", err)
	}
	if _, err := c.ScheduleChallenge(ctx, h.ID, []time.Time{tuesday, saturday}); !errs.Is(err, errs.ErrInvalidInput) {
		t.Errorf("overlap: expected ErrInvalidInput, got %v", err)
	}
	if _, err := c.Edit(ctx, h.ID, EditInput{Days: []time.Time{}}); !errs.Is(err, errs.ErrInvalidInput) {
		t.Errorf("empty days: expected ErrInvalidInput, got %v", err)
	}

	if _, err := c.MarkExecuted(ctx, h.ID, monday); err != nil {
		t.Fatalf("MarkExecuted failed: %v", err)
	}
	if _, err := c.DeleteChallenge(ctx, h.ID, h.Challenges[0].ID); !errs.Is(err, errs.ErrConflict) {
		t.Errorf("executed challenge: expected ErrConflict, got %v", err)
	}

	got, err := c.Get(ctx, h.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("failed mutations must not bump the version, got %d", got.Version)
	}
}

func TestEditAndDeleteChallenge(t *testing.T) {
	ctx := context.Background()
	clock := utils.NewFixedClock(at(monday, 9))
	c := setupCatalog(t, setupTestStore(t), clock)
	h := create(t, c, "Read", monday, wednesday)

	rename := "Reading"
	res, err := c.Edit(ctx, h.ID, EditInput{Name: &rename, Days: []time.Time{monday, tuesday, friday}})
	if err != nil {
		t.Fatalf("Edit failed: %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}

	got, err := c.GetByName(ctx, "Reading")
	if err != nil {
		t.Fatalf("GetByName failed: %v", err)
	}
	if len(got.Challenges) != 1 || !got.Challenges[0].EndDate.Equal(friday) {
		t.Fatalf("expected the current challenge regenerated through friday, got %+v", got.Challenges)
	}

	next := []time.Time{monday.AddDate(0, 0, 7)}
	got, err = c.ScheduleChallenge(ctx, h.ID, next)
	if err != nil {
		t.Fatalf("ScheduleChallenge failed: %v", err)
	}
	upcoming := got.Challenges[0]
	got, err = c.DeleteChallenge(ctx, h.ID, upcoming.ID)
	if err != nil {
		t.Fatalf("DeleteChallenge failed: %v", err)
	}
	if got.Challenge(upcoming.ID) != nil {
		t.Error("deleted challenge still present")
	}

	if err := c.DeleteHabit(ctx, h.ID); err != nil {
		t.Fatalf("DeleteHabit failed: %v", err)
	}
	if _, err := c.Get(ctx, h.ID); !errs.Is(err, errs.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := c.DeleteHabit(ctx, h.ID); !errs.Is(err, errs.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

type failingScheduler struct {
	calls int
}

func (s *failingScheduler) Schedule(ctx context.Context, habitID, name string, fireAt []time.Time) error {
	s.calls++
	return errors.New("scheduler offline")
}

func (s *failingScheduler) Cancel(ctx context.Context, habitID string) error {
	return errors.New("scheduler offline")
}

func TestSchedulerFailureIsAWarning(t *testing.T) {
	ctx := context.Background()
	sched := &failingScheduler{}
	c := setupCatalog(t, setupTestStore(t), utils.NewFixedClock(at(monday, 9)), WithScheduler(sched))

	res, err := c.Create(ctx, CreateInput{
		Name:      "Read",
		Color:     models.ColorBlue,
		Days:      []time.Time{monday, wednesday},
		Reminders: []time.Time{at(wednesday, 8)},
	})
	if err != nil {
		t.Fatalf("Create must succeed despite scheduler failure: %v", err)
	}
	if len(res.Warnings) != 1 || sched.calls != 1 {
		t.Fatalf("expected one warning from one call, got %v (%d calls)", res.Warnings, sched.calls)
	}
	if _, err := c.Get(ctx, res.Habit.ID); err != nil {
		t.Errorf("habit must be saved: %v", err)
	}
	if len(res.Habit.Reminders) != 0 {
		t.Errorf("expected no reminders in the result when none were scheduled, got %v", res.Habit.Reminders)
	}

	// No reminders in the edit means no scheduling.
	res, err = c.Edit(ctx, res.Habit.ID, EditInput{Days: []time.Time{monday}})
	if err != nil {
		t.Fatalf("Edit failed: %v", err)
	}
	if len(res.Warnings) != 0 || sched.calls != 1 {
		t.Errorf("expected no scheduling, got %v (%d calls)", res.Warnings, sched.calls)
	}

	if err := c.DeleteHabit(ctx, res.Habit.ID); err != nil {
		t.Errorf("cancel failure must not fail delete: %v", err)
	}
}

func TestPastReminderWarning(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	c := setupCatalog(t, store, utils.NewFixedClock(at(monday, 9)))

	res, err := c.Create(ctx, CreateInput{
		Name:      "Read",
		Color:     models.ColorBlue,
		Days:      []time.Time{monday, wednesday},
		Reminders: []time.Time{at(monday, 8), at(wednesday, 8)},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(res.Warnings) != 1 || !errs.Is(res.Warnings[0], errs.ErrInvalidInput) {
		t.Fatalf("expected one InvalidInput warning, got %v", res.Warnings)
	}

	got, err := c.Get(ctx, res.Habit.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Reminders) != 1 || !got.Reminders[0].Equal(at(wednesday, 8)) {
		t.Errorf("expected only the future reminder stored, got %v", got.Reminders)
	}
	if len(res.Habit.Reminders) != 1 || !res.Habit.Reminders[0].Equal(at(wednesday, 8)) {
		t.Errorf("expected the result to match the store, got %v", res.Habit.Reminders)
	}

	// Editing reminders reports the same way.
	res, err = c.Edit(ctx, res.Habit.ID, EditInput{Reminders: []time.Time{at(monday, 7), at(wednesday, 9)}})
	if err != nil {
		t.Fatalf("Edit failed: %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", res.Warnings)
	}
	if len(res.Habit.Reminders) != 1 || !res.Habit.Reminders[0].Equal(at(wednesday, 9)) {
		t.Errorf("expected only the future edited reminder in the result, got %v", res.Habit.Reminders)
	}
}

func TestConcurrentMarksSameCatalog(t *testing.T) {
	ctx := context.Background()
	days := make([]time.Time, 10)
	for i := range days {
		days[i] = monday.AddDate(0, 0, i)
	}
	c := setupCatalog(t, setupTestStore(t), utils.NewFixedClock(at(monday, 9)))
	h := create(t, c, "Read", days...)

	var wg sync.WaitGroup
	errCh := make(chan error, len(days))
	for _, d := range days {
		wg.Add(1)
		go func(d time.Time) {
			defer wg.Done()
			if _, err := c.MarkExecuted(ctx, h.ID, d); err != nil {
				errCh <- err
			}
		}(d)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("MarkExecuted failed: %v", err)
	}

	got, err := c.Get(ctx, h.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if n := got.Challenges[0].ExecutedCount(); n != len(days) {
		t.Errorf("expected %d executed days, got %d", len(days), n)
	}
	if got.Version != 1+len(days) {
		t.Errorf("expected version %d, got %d", 1+len(days), got.Version)
	}
}

func TestConcurrentWritersNeverLoseUpdates(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")
	clock := utils.NewFixedClock(at(monday, 9))

	a := setupCatalog(t, openStore(t, path, true), clock)
	b := setupCatalog(t, openStore(t, path, false), clock)

	days := make([]time.Time, 8)
	for i := range days {
		days[i] = monday.AddDate(0, 0, i)
	}
	h := create(t, a, "Read", days...)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i, d := range days {
		cat := a
		if i%2 == 1 {
			cat = b
		}
		wg.Add(1)
		go func(cat *Catalog, d time.Time) {
			defer wg.Done()
			_, err := cat.MarkExecuted(ctx, h.ID, d)
			switch {
			case err == nil:
				mu.Lock()
				succeeded++
				mu.Unlock()
			case errs.Is(err, errs.ErrConflict):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(cat, d)
	}
	wg.Wait()

	got, err := a.Get(ctx, h.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if n := got.Challenges[0].ExecutedCount(); n != succeeded {
		t.Errorf("executed days (%d) must equal successful marks (%d)", n, succeeded)
	}
	if got.Version != 1+succeeded {
		t.Errorf("expected version %d, got %d", 1+succeeded, got.Version)
	}
}
