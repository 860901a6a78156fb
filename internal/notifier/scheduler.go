package notifier

import (
	"context"
	"strings"
	"time"

	errs "github.com/julianstephens/streak/internal/errors"
	"github.com/julianstephens/streak/internal/models"
	"github.com/julianstephens/streak/internal/utils"
)

// Scheduler arranges reminders for the fire-times chosen by the user. It
// never decides the times itself.
type Scheduler interface {
	// Schedule makes fireAt the complete reminder set for a habit.
	Schedule(ctx context.Context, habitID, name string, fireAt []time.Time) error
	Cancel(ctx context.Context, habitID string) error
}

// ReminderStore is the part of storage.Provider reminders need.
type ReminderStore interface {
	ReplaceReminders(ctx context.Context, habitID string, fireAt []time.Time) error
	DueReminders(ctx context.Context, from, to time.Time) ([]models.Reminder, error)
	MarkReminderSent(ctx context.Context, habitID string, fireAt, sentAt time.Time) error
}

// StoreScheduler persists reminders so `streak notify` can dispatch them
// later.
type StoreScheduler struct {
	store ReminderStore
	clock utils.Clock
}

var _ Scheduler = (*StoreScheduler)(nil)

func NewStoreScheduler(store ReminderStore, clock utils.Clock) *StoreScheduler {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &StoreScheduler{store: store, clock: clock}
}

// Schedule stores every future fire-time. Times already in the past are
// skipped and reported as InvalidInput after the rest are saved.
func (s *StoreScheduler) Schedule(ctx context.Context, habitID, name string, fireAt []time.Time) error {
	now := s.clock.Now()

	var future []time.Time
	var past []string
	for _, t := range fireAt {
		if t.Before(now) {
			past = append(past, t.Format(time.RFC3339))
			continue
		}
		future = append(future, t)
	}

	if err := s.store.ReplaceReminders(ctx, habitID, future); err != nil {
		return err
	}

	if len(past) > 0 {
		return errs.InvalidInput("notifier.schedule", "reminders for %q in the past were not scheduled: %s",
			name, strings.Join(past, ", "))
	}
	return nil
}

func (s *StoreScheduler) Cancel(ctx context.Context, habitID string) error {
	err := s.store.ReplaceReminders(ctx, habitID, nil)
	if errs.Is(err, errs.ErrNotFound) {
		return nil
	}
	return err
}
