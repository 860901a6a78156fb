package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/streak/internal/cli"
	"github.com/julianstephens/streak/internal/cli/backups"
	"github.com/julianstephens/streak/internal/cli/habits"
	"github.com/julianstephens/streak/internal/cli/settings"
	"github.com/julianstephens/streak/internal/cli/system"
	"github.com/julianstephens/streak/internal/constants"
	errs "github.com/julianstephens/streak/internal/errors"
	"github.com/julianstephens/streak/internal/keyring"
	"github.com/julianstephens/streak/internal/logger"
)

var CLI struct {
	Version  kong.VersionFlag
	Config   string `help:"SQLite file path or PostgreSQL connection string. PostgreSQL passwords belong in the OS keyring, STREAK_DB_CONNECTION or .pgpass." env:"STREAK_CONFIG" default:"${default_config}"`
	Debug    bool   `help:"Log debug output to stderr." env:"STREAK_DEBUG"`
	Timezone string `help:"IANA timezone that decides today (overrides the stored setting)." env:"STREAK_TIMEZONE"`

	Init      system.InitCmd       `cmd:"" help:"Initialize streak storage."`
	Migrate   system.MigrateCmd    `cmd:"" help:"Run database migrations."`
	Doctor    system.DoctorCmd     `cmd:"" help:"Run health checks and diagnostics."`
	Inspect   system.DebugCmd      `cmd:"" hidden:"" help:"Dump raw store state for troubleshooting."`
	Habit     habits.HabitCmd      `cmd:"" help:"Manage habits and mark executed days."`
	Challenge habits.ChallengeCmd  `cmd:"" help:"Manage a habit's challenges."`
	Settings  settings.SettingsCmd `cmd:"" help:"Manage application settings."`
	Backup    backups.BackupCmd    `cmd:"" help:"Manage database backups."`
	Keyring   system.KeyringCmd    `cmd:"" help:"Manage the PostgreSQL connection string in the OS keyring."`
	Notify    system.NotifyCmd     `cmd:"" hidden:"" help:"Send due reminders (used from cron)."`
}

// skipsLoad lists commands that run before, or without, a ready store.
var skipsLoad = []string{"init", "migrate", "keyring", "doctor"}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Habit challenges with scheduled days and streak tracking"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version":        constants.Version,
			"default_config": constants.DefaultConfigPath,
		},
	)

	config, source := keyring.Resolve(CLI.Config, constants.DefaultConfigPath)
	configDir := filepath.Dir(kong.ExpandPath(constants.DefaultConfigPath))
	if !cli.IsPostgres(config) {
		configDir = filepath.Dir(kong.ExpandPath(config))
	}
	if err := logger.Init(logger.Config{Debug: CLI.Debug, ConfigDir: configDir}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger: %v\n", err)
	}
	logger.Debug("Resolved storage", "source", source, "postgres", cli.IsPostgres(config))

	store, err := cli.OpenStore(config, source != keyring.SourceFlag)
	if err != nil {
		errs.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Context{
		Ctx:      ctx,
		Store:    store,
		Timezone: CLI.Timezone,
	}

	if needsStore(kctx.Command()) {
		if err := store.Load(ctx); err != nil {
			errs.Fatal(err)
		}
	}

	err = kctx.Run(app)
	if closeErr := app.Close(); closeErr != nil {
		logger.Warn("Failed to close store", "error", closeErr)
	}
	if err != nil {
		stop()
		errs.Fatal(err)
	}
}

func needsStore(command string) bool {
	for _, name := range skipsLoad {
		if command == name || strings.HasPrefix(command, name+" ") {
			return false
		}
	}
	return true
}
