// Package catalog is the Habit Catalog. It lists habits by segment, runs
// every habit mutation against the store and tells subscribers what
// changed.
package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/julianstephens/streak/internal/constants"
	"github.com/julianstephens/streak/internal/logger"
	"github.com/julianstephens/streak/internal/models"
	"github.com/julianstephens/streak/internal/notifier"
	"github.com/julianstephens/streak/internal/storage"
	"github.com/julianstephens/streak/internal/utils"
)

// scanCheckEvery is how many habits a list scan handles between
// cancellation checks.
const scanCheckEvery = 64

type Catalog struct {
	store     storage.Provider
	clock     utils.Clock
	loc       *time.Location
	scheduler notifier.Scheduler
	bufSize   int

	locksMu sync.Mutex
	locks   map[string]*habitLock

	// publishMu serializes reading the change log and fanning it out.
	publishMu sync.Mutex
	lastSeq   int64
	segments  map[string]models.Status

	subsMu sync.Mutex
	subs   map[uint64]*listener
	nextID uint64
	closed bool
	wg     sync.WaitGroup
}

type Option func(*Catalog)

// WithClock sets the source of "now". Defaults to the system clock.
func WithClock(clock utils.Clock) Option {
	return func(c *Catalog) { c.clock = clock }
}

// WithLocation sets the timezone that decides which calendar day is today.
func WithLocation(loc *time.Location) Option {
	return func(c *Catalog) { c.loc = loc }
}

// WithScheduler replaces the default store-backed reminder scheduler.
func WithScheduler(s notifier.Scheduler) Option {
	return func(c *Catalog) { c.scheduler = s }
}

// WithBufferSize sets how many changesets each listener may have queued
// before new ones are dropped for it.
func WithBufferSize(n int) Option {
	return func(c *Catalog) { c.bufSize = n }
}

// New builds a catalog over a loaded store. Changes already in the store's
// log are treated as seen.
func New(ctx context.Context, store storage.Provider, opts ...Option) (*Catalog, error) {
	c := &Catalog{
		store:    store,
		clock:    utils.SystemClock{},
		loc:      time.Local,
		bufSize:  constants.DefaultListenerBuffer,
		locks:    make(map[string]*habitLock),
		segments: make(map[string]models.Status),
		subs:     make(map[uint64]*listener),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.scheduler == nil {
		c.scheduler = notifier.NewStoreScheduler(store, c.clock)
	}
	if c.bufSize < 1 {
		c.bufSize = 1
	}

	seq, err := store.LatestChangeSeq(ctx)
	if err != nil {
		return nil, err
	}
	habits, err := store.ListHabits(ctx)
	if err != nil {
		return nil, err
	}

	today := c.Today()
	c.lastSeq = seq
	for _, h := range habits {
		c.segments[h.ID] = h.Status(today)
	}
	return c, nil
}

// Today is the current calendar day in the catalog's timezone.
func (c *Catalog) Today() time.Time {
	return utils.Today(c.clock, c.loc)
}

// Location is the timezone used to decide today.
func (c *Catalog) Location() *time.Location {
	return c.loc
}

// Result is the outcome of a mutation that may also schedule reminders.
// Warnings never undo the mutation.
type Result struct {
	Habit    *models.Habit
	Warnings []error
}

// Segments partitions every habit by status. Both lists are newest first.
type Segments struct {
	InProgress []*models.Habit
	Completed  []*models.Habit
}

// Segments reads the store once and splits habits by their status today.
func (c *Catalog) Segments(ctx context.Context) (Segments, error) {
	habits, err := c.store.ListHabits(ctx)
	if err != nil {
		return Segments{}, err
	}

	today := c.Today()
	var seg Segments
	for i, h := range habits {
		if i%scanCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return Segments{}, err
			}
		}
		switch h.Status(today) {
		case models.StatusCompleted:
			seg.Completed = append(seg.Completed, h)
		default:
			seg.InProgress = append(seg.InProgress, h)
		}
	}
	return seg, nil
}

// ListInProgress returns habits with a current or upcoming challenge,
// newest first.
func (c *Catalog) ListInProgress(ctx context.Context) ([]*models.Habit, error) {
	seg, err := c.Segments(ctx)
	return seg.InProgress, err
}

// ListCompleted returns habits whose challenges have all ended, newest
// first.
func (c *Catalog) ListCompleted(ctx context.Context) ([]*models.Habit, error) {
	seg, err := c.Segments(ctx)
	return seg.Completed, err
}

func (c *Catalog) Get(ctx context.Context, id string) (*models.Habit, error) {
	return c.store.GetHabit(ctx, id)
}

func (c *Catalog) GetByName(ctx context.Context, name string) (*models.Habit, error) {
	return c.store.GetHabitByName(ctx, name)
}

// CreateInput describes a new habit. Reminders may be empty.
type CreateInput struct {
	Name      string
	Color     models.Color
	Days      []time.Time
	Reminders []time.Time
}

func (c *Catalog) Create(ctx context.Context, in CreateInput) (*Result, error) {
	h, err := models.NewHabit(in.Name, in.Color, in.Days, c.clock.Now())
	if err != nil {
		return nil, err
	}
	h.SetReminders(in.Reminders)

	if err := c.store.CreateHabit(ctx, h); err != nil {
		return nil, err
	}

	res := &Result{Habit: h}
	if len(h.Reminders) > 0 {
		c.schedule(ctx, h, res)
	}
	c.publish(ctx)
	return res, nil
}

// EditInput is a partial update. Nil Name and Days are left alone. A nil
// Reminders slice keeps the current reminders; an empty one clears them.
type EditInput struct {
	Name      *string
	Days      []time.Time
	Reminders []time.Time
}

func (c *Catalog) Edit(ctx context.Context, id string, in EditInput) (*Result, error) {
	h, err := c.mutate(ctx, id, func(h *models.Habit, now, today time.Time) error {
		if err := h.Edit(models.HabitEdit{Name: in.Name, Days: in.Days}, now, today); err != nil {
			return err
		}
		if in.Reminders != nil {
			h.SetReminders(in.Reminders)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Habit: h}
	if in.Reminders != nil {
		c.schedule(ctx, h, res)
	}
	c.publish(ctx)
	return res, nil
}

func (c *Catalog) MarkExecuted(ctx context.Context, id string, date time.Time) (*models.Habit, error) {
	return c.mutateAndPublish(ctx, id, func(h *models.Habit, now, _ time.Time) error {
		return h.MarkExecuted(date, now)
	})
}

func (c *Catalog) UnmarkExecuted(ctx context.Context, id string, date time.Time) (*models.Habit, error) {
	return c.mutateAndPublish(ctx, id, func(h *models.Habit, now, _ time.Time) error {
		return h.UnmarkExecuted(date, now)
	})
}

// ScheduleChallenge adds a new challenge to an existing habit.
func (c *Catalog) ScheduleChallenge(ctx context.Context, id string, days []time.Time) (*models.Habit, error) {
	return c.mutateAndPublish(ctx, id, func(h *models.Habit, now, _ time.Time) error {
		_, err := h.ScheduleChallenge(days, now)
		return err
	})
}

func (c *Catalog) DeleteChallenge(ctx context.Context, id, challengeID string) (*models.Habit, error) {
	return c.mutateAndPublish(ctx, id, func(h *models.Habit, now, _ time.Time) error {
		return h.DeleteChallenge(challengeID, now)
	})
}

// DeleteHabit removes a habit with its whole history and reminders.
func (c *Catalog) DeleteHabit(ctx context.Context, id string) error {
	unlock := c.lock(id)
	err := c.store.DeleteHabit(ctx, id, c.clock.Now())
	unlock()
	if err != nil {
		return err
	}

	if err := c.scheduler.Cancel(ctx, id); err != nil {
		logger.Warn("Failed to cancel reminders", "habit", id, "error", err)
	}
	c.publish(ctx)
	return nil
}

func (c *Catalog) mutateAndPublish(ctx context.Context, id string, fn func(h *models.Habit, now, today time.Time) error) (*models.Habit, error) {
	h, err := c.mutate(ctx, id, fn)
	if err != nil {
		return nil, err
	}
	c.publish(ctx)
	return h, nil
}

// mutate runs fn on a fresh copy of the habit under its lock and saves the
// result only if nobody else saved in between.
func (c *Catalog) mutate(ctx context.Context, id string, fn func(h *models.Habit, now, today time.Time) error) (*models.Habit, error) {
	unlock := c.lock(id)
	defer unlock()

	h, err := c.store.GetHabit(ctx, id)
	if err != nil {
		return nil, err
	}
	expected := h.Version

	now := c.clock.Now()
	if err := fn(h, now, utils.DateOf(now, c.loc)); err != nil {
		return nil, err
	}
	h.UpdatedAt = now

	if err := c.store.UpdateHabit(ctx, h, expected); err != nil {
		return nil, err
	}
	return h, nil
}

// schedule hands the reminders to the scheduler. When some or all of them
// were not scheduled, the result takes the stored reminders back so it
// matches what a later Get returns.
func (c *Catalog) schedule(ctx context.Context, h *models.Habit, res *Result) {
	err := c.scheduler.Schedule(ctx, h.ID, h.Name, h.Reminders)
	if err == nil {
		return
	}
	logger.Warn("Failed to schedule reminders", "habit", h.Name, "error", err)
	res.Warnings = append(res.Warnings, err)

	stored, getErr := c.store.GetHabit(ctx, h.ID)
	if getErr != nil {
		logger.Warn("Failed to reload reminders", "habit", h.Name, "error", getErr)
		return
	}
	h.Reminders = stored.Reminders
}

// publish fans out everything committed so far. The mutation already
// succeeded, so failures here are only logged.
func (c *Catalog) publish(ctx context.Context) {
	if err := c.Sync(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("Failed to publish catalog changes", "error", err)
	}
}

type habitLock struct {
	mu   sync.Mutex
	refs int
}

// lock serializes mutations of one habit inside this process. The version
// check in the store covers other processes.
func (c *Catalog) lock(id string) func() {
	c.locksMu.Lock()
	l, ok := c.locks[id]
	if !ok {
		l = &habitLock{}
		c.locks[id] = l
	}
	l.refs++
	c.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, id)
		}
		c.locksMu.Unlock()
	}
}
