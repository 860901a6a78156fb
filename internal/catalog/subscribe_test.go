package catalog

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/julianstephens/streak/internal/logger"
	"github.com/julianstephens/streak/internal/models"
	"github.com/julianstephens/streak/internal/utils"
)

func TestChangesetsArriveInCommitOrder(t *testing.T) {
	ctx := context.Background()
	c := setupCatalog(t, setupTestStore(t), utils.NewFixedClock(at(monday, 9)))

	fn, ch := collect()
	sub := c.Subscribe(fn)
	defer sub.Unsubscribe()

	h := create(t, c, "Read", monday, wednesday, friday)
	if _, err := c.MarkExecuted(ctx, h.ID, monday); err != nil {
		t.Fatalf("MarkExecuted failed: %v", err)
	}
	if err := c.DeleteHabit(ctx, h.ID); err != nil {
		t.Fatalf("DeleteHabit failed: %v", err)
	}

	inserted := next(t, ch)
	if len(inserted.Inserted) != 1 || inserted.Inserted[0].HabitID != h.ID {
		t.Fatalf("expected insert first, got %+v", inserted)
	}
	if ins := inserted.Inserted[0]; ins.Segment != models.StatusInProgress || ins.Previous != "" || ins.Habit == nil {
		t.Errorf("unexpected insert change: %+v", ins)
	}

	updated := next(t, ch)
	if len(updated.Updated) != 1 || updated.Updated[0].HabitID != h.ID {
		t.Fatalf("expected update second, got %+v", updated)
	}
	if up := updated.Updated[0]; up.Previous != models.StatusInProgress || up.Segment != models.StatusInProgress || up.Moved() {
		t.Errorf("unexpected update change: %+v", up)
	}

	removed := next(t, ch)
	if len(removed.Removed) != 1 || removed.Removed[0].HabitID != h.ID {
		t.Fatalf("expected removal last, got %+v", removed)
	}
	if rm := removed.Removed[0]; rm.Previous != models.StatusInProgress || rm.Habit != nil {
		t.Errorf("unexpected removal change: %+v", rm)
	}

	if !(inserted.Seq < updated.Seq && updated.Seq < removed.Seq) {
		t.Errorf("seq not increasing: %d, %d, %d", inserted.Seq, updated.Seq, removed.Seq)
	}
}

func TestFailedMutationPublishesNothing(t *testing.T) {
	ctx := context.Background()
	c := setupCatalog(t, setupTestStore(t), utils.NewFixedClock(at(monday, 9)))
	h := create(t, c, "Read", monday)

	fn, ch := collect()
	defer c.Subscribe(fn).Unsubscribe()

	if _, err := c.MarkExecuted(ctx, h.ID, friday); err == nil {
		t.Fatal("expected MarkExecuted on an unscheduled day to fail")
	}
	if _, err := c.MarkExecuted(ctx, h.ID, monday); err != nil {
		t.Fatalf("MarkExecuted failed: %v", err)
	}

	cs := next(t, ch)
	if len(cs.Updated) != 1 {
		t.Fatalf("expected the successful mark only, got %+v", cs)
	}
	select {
	case extra := <-ch:
		t.Errorf("unexpected extra changeset: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPanickingListenerIsIsolated(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer func() { logger.Logger = nil }()

	c, err := New(context.Background(), setupTestStore(t), WithClock(utils.NewFixedClock(at(monday, 9))), WithLocation(time.UTC))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var panics atomic.Int32
	c.Subscribe(func(Changeset) {
		panics.Add(1)
		panic("listener bug")
	})
	fn, ch := collect()
	c.Subscribe(fn)

	create(t, c, "Read", monday)
	create(t, c, "Run", monday)

	next(t, ch)
	next(t, ch)

	c.Close()
	if panics.Load() != 2 {
		t.Errorf("expected the panicking listener to keep receiving, got %d calls", panics.Load())
	}
	if !strings.Contains(buf.String(), "listener panicked") {
		t.Errorf("expected panic to be logged, got %q", buf.String())
	}
}

func TestSlowListenerDoesNotBlockMutations(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer func() { logger.Logger = nil }()

	ctx := context.Background()
	c, err := New(ctx, setupTestStore(t),
		WithClock(utils.NewFixedClock(at(monday, 9))), WithLocation(time.UTC), WithBufferSize(1))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	release := make(chan struct{})
	var (
		mu        sync.Mutex
		delivered []Changeset
	)
	c.Subscribe(func(cs Changeset) {
		<-release
		mu.Lock()
		delivered = append(delivered, cs)
		mu.Unlock()
	})
	fn, ch := collect()
	c.Subscribe(fn)

	// Would hang here if broadcasting waited on the slow listener.
	h := create(t, c, "Read", monday, wednesday)
	if _, err := c.MarkExecuted(ctx, h.ID, monday); err != nil {
		t.Fatalf("MarkExecuted failed: %v", err)
	}
	if _, err := c.ScheduleChallenge(ctx, h.ID, []time.Time{friday}); err != nil {
		t.Fatalf("ScheduleChallenge failed: %v", err)
	}
	if err := c.DeleteHabit(ctx, h.ID); err != nil {
		t.Fatalf("DeleteHabit failed: %v", err)
	}

	var committed []int64
	for i := 0; i < 4; i++ {
		committed = append(committed, next(t, ch).Seq)
	}

	close(release)
	c.Close()

	if !strings.Contains(buf.String(), "Dropping changeset") {
		t.Errorf("expected dropped changeset to be logged, got %q", buf.String())
	}

	// Seq never goes backwards, and every missed commit is followed by a
	// resync marker.
	resyncs := 0
	for i, cs := range delivered {
		if cs.Resync {
			resyncs++
		}
		if i > 0 && cs.Seq < delivered[i-1].Seq {
			t.Errorf("seq went backwards: %d after %d", cs.Seq, delivered[i-1].Seq)
		}
	}
	if resyncs == 0 {
		t.Fatalf("expected a resync marker after drops, got %+v", delivered)
	}
	for _, seq := range committed {
		if !coveredBy(delivered, seq) {
			t.Errorf("seq %d neither delivered nor followed by a resync marker: %+v", seq, delivered)
		}
	}
}

// coveredBy reports whether seq was delivered, or whether a resync marker
// arrived after every regular changeset older than seq.
func coveredBy(delivered []Changeset, seq int64) bool {
	for i, cs := range delivered {
		if cs.Resync {
			continue
		}
		if cs.Seq == seq {
			return true
		}
		if cs.Seq > seq {
			for _, before := range delivered[:i] {
				if before.Resync && before.Seq <= seq {
					return true
				}
			}
			return false
		}
	}
	for _, cs := range delivered {
		if cs.Resync && cs.Seq <= seq {
			return true
		}
	}
	return false
}

func TestResyncMarkerIsQueuedOnce(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer func() { logger.Logger = nil }()

	l := &listener{id: 1, queue: make(chan Changeset, 3), limit: 2}
	for seq := int64(1); seq <= 5; seq++ {
		l.offer(Changeset{Seq: seq})
	}
	close(l.queue)

	var got []Changeset
	for cs := range l.queue {
		got = append(got, cs)
	}
	if len(got) != 3 || got[0].Seq != 1 || got[1].Seq != 2 {
		t.Fatalf("expected seqs 1, 2 then a marker, got %+v", got)
	}
	if !got[2].Resync || got[2].Seq != 3 || got[2].Empty() {
		t.Errorf("expected a resync marker at the first missed seq, got %+v", got[2])
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	c := setupCatalog(t, setupTestStore(t), utils.NewFixedClock(at(monday, 9)))

	fn, ch := collect()
	sub := c.Subscribe(fn)
	create(t, c, "Read", monday)
	next(t, ch)

	sub.Unsubscribe()
	sub.Unsubscribe()

	create(t, c, "Run", monday)
	select {
	case cs := <-ch:
		t.Errorf("received changeset after unsubscribe: %+v", cs)
	case <-time.After(50 * time.Millisecond):
	}

	c.Close()
	sub.Unsubscribe()

	after := c.Subscribe(fn)
	after.Unsubscribe()
}

func TestRefreshReportsRolloverMoves(t *testing.T) {
	ctx := context.Background()
	clock := utils.NewFixedClock(at(monday, 9))
	c := setupCatalog(t, setupTestStore(t), clock)

	read := create(t, c, "Read", monday, wednesday)
	run := create(t, c, "Run", monday, friday)

	fn, ch := collect()
	defer c.Subscribe(fn).Unsubscribe()

	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	select {
	case cs := <-ch:
		t.Fatalf("nothing moved, got %+v", cs)
	case <-time.After(50 * time.Millisecond):
	}

	clock.Set(at(monday.AddDate(0, 0, 3), 0))
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	seq, err := c.store.LatestChangeSeq(ctx)
	if err != nil {
		t.Fatalf("LatestChangeSeq failed: %v", err)
	}
	cs := next(t, ch)
	if len(cs.Updated) != 1 {
		t.Fatalf("expected one move, got %+v", cs)
	}
	if !cs.Rollover || cs.Seq != seq {
		t.Errorf("expected a rollover changeset at seq %d, got %+v", seq, cs)
	}
	move := cs.Updated[0]
	if move.HabitID != read.ID || !move.Moved() || move.Segment != models.StatusCompleted {
		t.Errorf("expected Read to move to completed, got %+v", move)
	}

	// Reported once.
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	select {
	case cs := <-ch:
		t.Errorf("move reported twice: %+v", cs)
	case <-time.After(50 * time.Millisecond):
	}

	completed, err := c.ListCompleted(ctx)
	if err != nil {
		t.Fatalf("ListCompleted failed: %v", err)
	}
	if len(completed) != 1 || completed[0].ID != read.ID {
		t.Errorf("expected only Read completed, got %v", names(completed))
	}
	inProgress, err := c.ListInProgress(ctx)
	if err != nil {
		t.Fatalf("ListInProgress failed: %v", err)
	}
	if len(inProgress) != 1 || inProgress[0].ID != run.ID {
		t.Errorf("expected only Run in progress, got %v", names(inProgress))
	}
}

func TestSyncPublishesExternalWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")
	clock := utils.NewFixedClock(at(monday, 9))

	viewer := setupCatalog(t, openStore(t, path, true), clock)
	writer := setupCatalog(t, openStore(t, path, false), clock)

	fn, ch := collect()
	defer viewer.Subscribe(fn).Unsubscribe()

	h := create(t, writer, "Read", monday, wednesday)
	if _, err := writer.MarkExecuted(ctx, h.ID, monday); err != nil {
		t.Fatalf("MarkExecuted failed: %v", err)
	}

	if err := viewer.Sync(ctx); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if cs := next(t, ch); len(cs.Inserted) != 1 || cs.Inserted[0].HabitID != h.ID {
		t.Fatalf("expected external insert, got %+v", cs)
	}
	cs := next(t, ch)
	if len(cs.Updated) != 1 || cs.Updated[0].Habit == nil || cs.Updated[0].Habit.Challenges[0].ExecutedCount() != 1 {
		t.Fatalf("expected external mark, got %+v", cs)
	}

	if err := viewer.Sync(ctx); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	select {
	case cs := <-ch:
		t.Errorf("changes delivered twice: %+v", cs)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatchDeliversExternalWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	clock := utils.NewFixedClock(at(monday, 9))

	viewer := setupCatalog(t, openStore(t, path, true), clock)
	writer := setupCatalog(t, openStore(t, path, false), clock)

	fn, ch := collect()
	defer viewer.Subscribe(fn).Unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	watchErr := make(chan error, 1)
	go func() { watchErr <- viewer.Watch(ctx, 10*time.Millisecond) }()

	h := create(t, writer, "Read", monday)
	if cs := next(t, ch); len(cs.Inserted) != 1 || cs.Inserted[0].HabitID != h.ID {
		t.Errorf("expected insert via watch, got %+v", cs)
	}

	cancel()
	select {
	case err := <-watchErr:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop after cancel")
	}

	if err := viewer.Watch(context.Background(), 0); err == nil {
		t.Error("expected non-positive interval to be rejected")
	}
}
