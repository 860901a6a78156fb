package system

import (
	"encoding/json"
	"fmt"

	"github.com/julianstephens/streak/internal/cli"
)

type DebugCmd struct {
	DBPath       DebugDBPathCmd       `cmd:"" help:"Show database path."`
	DumpHabit    DebugDumpHabitCmd    `cmd:"" help:"Dump a habit as JSON."`
	DumpChanges  DebugDumpChangesCmd  `cmd:"" help:"Dump the change log as JSON."`
	DumpSettings DebugDumpSettingsCmd `cmd:"" help:"Dump settings as JSON."`
}

func printJSON(ctx *cli.Context, v interface{}) error {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	ctx.Println(string(jsonBytes))
	return nil
}

type DebugDBPathCmd struct{}

func (cmd *DebugDBPathCmd) Run(ctx *cli.Context) error {
	return printJSON(ctx, map[string]string{"path": ctx.Store.GetConfigPath()})
}

type DebugDumpHabitCmd struct {
	Name string `arg:"" help:"Habit name."`
}

func (cmd *DebugDumpHabitCmd) Run(ctx *cli.Context) error {
	h, err := ctx.Store.GetHabitByName(ctx.Context(), cmd.Name)
	if err != nil {
		return err
	}
	return printJSON(ctx, h)
}

type DebugDumpChangesCmd struct {
	Since int64 `help:"Only show entries after this sequence number."`
}

func (cmd *DebugDumpChangesCmd) Run(ctx *cli.Context) error {
	records, err := ctx.Store.ChangesSince(ctx.Context(), cmd.Since)
	if err != nil {
		return err
	}
	return printJSON(ctx, records)
}

type DebugDumpSettingsCmd struct{}

func (cmd *DebugDumpSettingsCmd) Run(ctx *cli.Context) error {
	settings, err := ctx.Store.GetSettings(ctx.Context())
	if err != nil {
		return err
	}
	return printJSON(ctx, settings)
}
