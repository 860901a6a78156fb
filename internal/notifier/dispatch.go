package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/julianstephens/streak/internal/constants"
	errs "github.com/julianstephens/streak/internal/errors"
	"github.com/julianstephens/streak/internal/logger"
	"github.com/julianstephens/streak/internal/models"
)

// Message is the notification text for a reminder, with the fire-time
// shown in loc.
func Message(r models.Reminder, loc *time.Location) string {
	return fmt.Sprintf("Time for %s (%s)", r.HabitName, r.FireAt.In(loc).Format(constants.TimeFormat))
}

// Dispatch sends every unsent reminder due in [now-grace, now] and marks
// it sent. A failed send leaves the reminder unsent for the next run. All
// failures are returned together.
func Dispatch(ctx context.Context, store ReminderStore, sender Sender, now time.Time, grace time.Duration) (int, error) {
	due, err := store.DueReminders(ctx, now.Add(-grace), now)
	if err != nil {
		return 0, err
	}

	var (
		sent     int
		failures []error
	)
	for _, r := range due {
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)
			break
		}

		msg := Message(r, now.Location())
		if err := sender.Notify(ctx, msg); err != nil {
			logger.Warn("Failed to send reminder", "habit", r.HabitID, "fire_at", r.FireAt, "error", err)
			failures = append(failures, fmt.Errorf("reminder for %s: %w", r.HabitName, err))
			continue
		}
		if err := store.MarkReminderSent(ctx, r.HabitID, r.FireAt, now); err != nil {
			failures = append(failures, fmt.Errorf("reminder for %s: %w", r.HabitName, err))
			continue
		}
		sent++
	}

	logger.Info("Dispatched reminders", "due", len(due), "sent", sent, "failed", len(failures))
	return sent, errs.Join(failures...)
}
