package system

import (
	"errors"
	"fmt"
	"time"

	"github.com/julianstephens/streak/internal/backup"
	"github.com/julianstephens/streak/internal/cli"
	"github.com/julianstephens/streak/internal/storage/sqlite"
)

type DoctorCmd struct{}

type check struct {
	name string
	run  func(ctx *cli.Context) error
	// warnOnly checks never fail the command.
	warnOnly bool
	// needsDB checks are skipped when the database cannot be loaded.
	needsDB bool
}

var checks = []check{
	{name: "Database reachable", run: checkDBReachable},
	{name: "Settings valid", run: checkSettings, needsDB: true},
	{name: "Habit integrity", run: checkHabitsIntegrity, needsDB: true},
	{name: "Clock/timezone", run: checkClockTimezone},
	{name: "Backups present", run: checkBackupsPresent, warnOnly: true},
}

func (cmd *DoctorCmd) Run(ctx *cli.Context) error {
	ctx.Println("Running diagnostics...")
	ctx.Println()

	failed := 0
	dbReachable := true
	for _, c := range checks {
		if c.needsDB && !dbReachable {
			ctx.Printf("- %s: SKIPPED (database not reachable)\n", c.name)
			continue
		}

		err := c.run(ctx)
		switch {
		case err == nil:
			ctx.Printf("✓ %s: OK\n", c.name)
		case c.warnOnly:
			ctx.Printf("! %s: WARNING\n   %v\n", c.name, err)
		default:
			ctx.Printf("✗ %s: FAIL\n   Error: %v\n", c.name, err)
			failed++
			if c.name == "Database reachable" {
				dbReachable = false
			}
		}
	}

	ctx.Println()
	if failed > 0 {
		return fmt.Errorf("%d diagnostic check(s) failed", failed)
	}
	ctx.Println("All checks passed.")
	return nil
}

func checkDBReachable(ctx *cli.Context) error {
	if err := ctx.Store.Load(ctx.Context()); err != nil {
		return fmt.Errorf("failed to load database: %w", err)
	}
	if _, err := ctx.Store.LatestChangeSeq(ctx.Context()); err != nil {
		return fmt.Errorf("failed to query database: %w", err)
	}
	return nil
}

func checkSettings(ctx *cli.Context) error {
	settings, err := ctx.Store.GetSettings(ctx.Context())
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	return settings.Validate()
}

// checkHabitsIntegrity re-validates every stored habit, which catches
// overlapping challenges or broken day lists written by hand or by an older
// version.
func checkHabitsIntegrity(ctx *cli.Context) error {
	habits, err := ctx.Store.ListHabits(ctx.Context())
	if err != nil {
		return fmt.Errorf("failed to list habits: %w", err)
	}

	var problems []error
	names := make(map[string]string, len(habits))
	for _, h := range habits {
		if err := h.Validate(); err != nil {
			problems = append(problems, err)
		}
		if other, ok := names[h.Name]; ok {
			problems = append(problems, fmt.Errorf("habits %s and %s share the name %q", other, h.ID, h.Name))
		}
		names[h.Name] = h.ID
	}
	return errors.Join(problems...)
}

func checkClockTimezone(ctx *cli.Context) error {
	now := time.Now()
	if now.Year() < 2020 || now.Year() > 2100 {
		return fmt.Errorf("system time appears incorrect: %s", now.Format(time.RFC3339))
	}
	if ctx.Timezone == "" {
		return nil
	}
	_, err := ctx.Location()
	return err
}

func checkBackupsPresent(ctx *cli.Context) error {
	if _, ok := ctx.Store.(*sqlite.Store); !ok {
		return nil
	}
	backups, err := backup.NewManager(ctx.Store.GetConfigPath()).ListBackups()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}
	if len(backups) == 0 {
		return fmt.Errorf("no backups found; consider creating one with 'streak backup create'")
	}
	return nil
}
