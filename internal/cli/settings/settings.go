package settings

import (
	"fmt"
	"strconv"

	"github.com/julianstephens/streak/internal/cli"
	"github.com/julianstephens/streak/internal/constants"
	errs "github.com/julianstephens/streak/internal/errors"
	"github.com/julianstephens/streak/internal/models"
)

type SettingsCmd struct {
	Show SettingsShowCmd `cmd:"" default:"1" help:"Show current settings."`
	Set  SettingsSetCmd  `cmd:"" help:"Change one setting."`
}

type SettingsShowCmd struct{}

func (c *SettingsShowCmd) Run(ctx *cli.Context) error {
	settings, err := ctx.Store.GetSettings(ctx.Context())
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	ctx.Println("Current Settings:")
	ctx.Printf("  %-22s %s\n", constants.SettingTimezone+":", settings.Timezone)
	if ctx.Timezone != "" {
		ctx.Printf("  %-22s %s\n", "", cli.Muted("(overridden by --timezone "+ctx.Timezone+")"))
	}
	ctx.Printf("  %-22s %v\n", constants.SettingNotificationsEnabled+":", settings.NotificationsEnabled)
	ctx.Printf("  %-22s %d min\n", constants.SettingReminderGraceMin+":", settings.ReminderGraceMin)
	return nil
}

type SettingsSetCmd struct {
	Key   string `arg:"" enum:"timezone,notifications_enabled,reminder_grace_min" help:"Setting name (timezone, notifications_enabled, reminder_grace_min)."`
	Value string `arg:"" help:"New value."`
}

func (c *SettingsSetCmd) Run(ctx *cli.Context) error {
	settings, err := ctx.Store.GetSettings(ctx.Context())
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	if err := apply(&settings, c.Key, c.Value); err != nil {
		return err
	}
	if err := ctx.Store.SaveSettings(ctx.Context(), settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	ctx.Printf("Set %s = %s\n", c.Key, c.Value)
	return nil
}

func apply(s *models.Settings, key, value string) error {
	const op = "settings.set"
	switch key {
	case constants.SettingTimezone:
		s.Timezone = value
	case constants.SettingNotificationsEnabled:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errs.InvalidInput(op, "%s must be true or false, got %q", key, value)
		}
		s.NotificationsEnabled = b
	case constants.SettingReminderGraceMin:
		n, err := strconv.Atoi(value)
		if err != nil {
			return errs.InvalidInput(op, "%s must be a whole number of minutes, got %q", key, value)
		}
		s.ReminderGraceMin = n
	default:
		return errs.InvalidInput(op, "unknown setting %q", key)
	}
	if err := s.Validate(); err != nil {
		return errs.Wrap(errs.ErrInvalidInput, op, err)
	}
	return nil
}
