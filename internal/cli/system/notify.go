package system

import (
	"fmt"
	"time"

	"github.com/julianstephens/streak/internal/cli"
	"github.com/julianstephens/streak/internal/notifier"
)

// NotifyCmd sends due reminders to the tray app. It is meant to run from
// cron once a minute.
type NotifyCmd struct {
	DryRun bool `help:"Print due reminders instead of sending them."`
}

// sender is replaced in tests.
var sender notifier.Sender = notifier.New()

func (c *NotifyCmd) Run(ctx *cli.Context) error {
	settings, err := ctx.Store.GetSettings(ctx.Context())
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	if !settings.NotificationsEnabled {
		if c.DryRun {
			ctx.Println("Notifications are disabled in settings.")
		}
		return nil
	}

	loc, err := ctx.Location()
	if err != nil {
		return err
	}
	now := time.Now().In(loc)
	if ctx.Clock != nil {
		now = ctx.Clock.Now().In(loc)
	}
	grace := time.Duration(settings.ReminderGraceMin) * time.Minute

	if c.DryRun {
		due, err := ctx.Store.DueReminders(ctx.Context(), now.Add(-grace), now)
		if err != nil {
			return err
		}
		if len(due) == 0 {
			ctx.Println("No reminders due.")
		}
		for _, r := range due {
			ctx.Println("[DryRun] " + notifier.Message(r, loc))
		}
		return nil
	}

	_, err = notifier.Dispatch(ctx.Context(), ctx.Store, sender, now, grace)
	return err
}
