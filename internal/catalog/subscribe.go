package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	errs "github.com/julianstephens/streak/internal/errors"
	"github.com/julianstephens/streak/internal/logger"
	"github.com/julianstephens/streak/internal/models"
	"github.com/julianstephens/streak/internal/storage"
)

// Change is one habit's membership after a mutation. Segment is empty for
// removed habits; Previous is empty for inserted ones.
type Change struct {
	HabitID  string
	Segment  models.Status
	Previous models.Status
	// Habit is the stored habit when the changeset was built. Nil for
	// removals.
	Habit *models.Habit
}

// Moved reports whether the habit switched segments.
func (ch Change) Moved() bool {
	return ch.Previous != "" && ch.Segment != "" && ch.Previous != ch.Segment
}

// Changeset describes what a committed mutation did to the catalog. Seq is
// the store's change-log position and never decreases between deliveries.
// Changesets read from the log arrive in strictly increasing Seq.
type Changeset struct {
	Seq      int64
	Inserted []Change
	Updated  []Change
	Removed  []Change
	// Rollover marks segment moves caused by the date changing. They have
	// no log entry and repeat the Seq of the last one.
	Rollover bool
	// Resync reports that this listener missed changesets because its
	// queue was full, starting at Seq. The listener should reload from the
	// catalog; changesets after the marker apply on top of that reload.
	Resync bool
}

// Empty reports a changeset with nothing to apply. A resync marker is never
// empty.
func (cs Changeset) Empty() bool {
	return !cs.Resync && len(cs.Inserted) == 0 && len(cs.Updated) == 0 && len(cs.Removed) == 0
}

// Listener receives changesets on its own goroutine, one at a time.
type Listener func(Changeset)

type listener struct {
	id uint64
	fn Listener
	// queue holds up to limit changesets plus one resync marker.
	queue chan Changeset
	limit int
	// resyncQueued is set while a resync marker waits in queue.
	resyncQueued atomic.Bool
}

func (l *listener) run(wg *sync.WaitGroup) {
	defer wg.Done()
	for cs := range l.queue {
		if cs.Resync {
			// Cleared before delivery: anything dropped from here on
			// happened before the listener reloads.
			l.resyncQueued.Store(false)
		}
		l.deliver(cs)
	}
}

// offer queues cs without blocking. Only broadcast sends, under subsMu, and
// the reserved slot guarantees room for the marker.
func (l *listener) offer(cs Changeset) {
	if len(l.queue) < l.limit {
		l.queue <- cs
		return
	}
	logger.Warn("Dropping changeset for slow catalog listener", "subscription", l.id, "seq", cs.Seq)
	if !l.resyncQueued.Swap(true) {
		l.queue <- Changeset{Seq: cs.Seq, Resync: true}
	}
}

func (l *listener) deliver(cs Changeset) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Catalog listener panicked", "subscription", l.id, "seq", cs.Seq, "panic", r)
		}
	}()
	l.fn(cs)
}

// Subscription ends delivery to one listener.
type Subscription struct {
	c    *Catalog
	id   uint64
	once sync.Once
}

// Unsubscribe stops delivery. Changesets already queued are still
// delivered. Calling it more than once is a no-op.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.c.subsMu.Lock()
		defer s.c.subsMu.Unlock()
		if l, ok := s.c.subs[s.id]; ok {
			delete(s.c.subs, s.id)
			close(l.queue)
		}
	})
}

// Subscribe registers fn for every changeset published from now on. After
// Close it returns an inert subscription.
func (c *Catalog) Subscribe(fn Listener) *Subscription {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	c.nextID++
	sub := &Subscription{c: c, id: c.nextID}
	if c.closed || fn == nil {
		return sub
	}

	l := &listener{
		id:    sub.id,
		fn:    fn,
		queue: make(chan Changeset, c.bufSize+1),
		limit: c.bufSize,
	}
	c.subs[l.id] = l
	c.wg.Add(1)
	go l.run(&c.wg)
	return sub
}

// Close unsubscribes every listener and waits for queued changesets to be
// delivered.
func (c *Catalog) Close() {
	c.subsMu.Lock()
	if !c.closed {
		c.closed = true
		for id, l := range c.subs {
			delete(c.subs, id)
			close(l.queue)
		}
	}
	c.subsMu.Unlock()
	c.wg.Wait()
}

// broadcast queues cs for every listener without blocking. A listener with
// a full queue misses cs and gets a resync marker instead.
func (c *Catalog) broadcast(cs Changeset) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	for _, l := range c.subs {
		l.offer(cs)
	}
}

// Sync publishes every change-log entry committed since the last sync,
// including writes made through other store handles or processes.
func (c *Catalog) Sync(ctx context.Context) error {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	records, err := c.store.ChangesSince(ctx, c.lastSeq)
	if err != nil {
		return err
	}

	today := c.Today()
	for _, rec := range records {
		cs, err := c.changesetFor(ctx, rec, today)
		if err != nil {
			return err
		}
		c.lastSeq = rec.Seq
		if !cs.Empty() {
			c.broadcast(cs)
		}
	}
	return nil
}

func (c *Catalog) changesetFor(ctx context.Context, rec storage.ChangeRecord, today time.Time) (Changeset, error) {
	cs := Changeset{Seq: rec.Seq}
	prev := c.segments[rec.HabitID]

	if rec.Op == storage.OpDelete {
		delete(c.segments, rec.HabitID)
		cs.Removed = []Change{{HabitID: rec.HabitID, Previous: prev}}
		return cs, nil
	}

	h, err := c.store.GetHabit(ctx, rec.HabitID)
	if errs.Is(err, errs.ErrNotFound) {
		// Deleted by a later entry, which reports the removal.
		return cs, nil
	}
	if err != nil {
		return cs, err
	}

	seg := h.Status(today)
	c.segments[h.ID] = seg
	change := Change{HabitID: h.ID, Segment: seg, Previous: prev, Habit: h}
	if rec.Op == storage.OpInsert {
		change.Previous = ""
		cs.Inserted = []Change{change}
	} else {
		cs.Updated = []Change{change}
	}
	return cs, nil
}

// Refresh publishes segment moves caused only by the date changing, such
// as a challenge ending at midnight.
func (c *Catalog) Refresh(ctx context.Context) error {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	habits, err := c.store.ListHabits(ctx)
	if err != nil {
		return err
	}

	today := c.Today()
	cs := Changeset{Seq: c.lastSeq, Rollover: true}
	for _, h := range habits {
		prev, known := c.segments[h.ID]
		seg := h.Status(today)
		if known && prev != seg {
			cs.Updated = append(cs.Updated, Change{HabitID: h.ID, Segment: seg, Previous: prev, Habit: h})
		}
		// Unknown habits come from log entries not synced yet; Sync
		// reports them as inserts.
		if known {
			c.segments[h.ID] = seg
		}
	}

	if !cs.Empty() {
		c.broadcast(cs)
	}
	return nil
}

// Watch syncs and refreshes every interval until ctx is done. Errors are
// logged and retried on the next tick.
func (c *Catalog) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errs.InvalidInput("catalog.watch", "interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Sync(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("Catalog sync failed", "error", err)
			}
			if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("Catalog refresh failed", "error", err)
			}
		}
	}
}
