package sqlrepo

import (
	"context"
	"fmt"
	"strconv"

	"github.com/julianstephens/streak/internal/constants"
	"github.com/julianstephens/streak/internal/models"
)

func (r *Repo) GetSettings(ctx context.Context) (models.Settings, error) {
	db, err := r.conn()
	if err != nil {
		return models.Settings{}, err
	}

	rows, err := db.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return models.Settings{}, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	settings := models.DefaultSettings()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return models.Settings{}, err
		}

		switch key {
		case constants.SettingTimezone:
			settings.Timezone = value
		case constants.SettingNotificationsEnabled:
			settings.NotificationsEnabled, err = strconv.ParseBool(value)
		case constants.SettingReminderGraceMin:
			settings.ReminderGraceMin, err = strconv.Atoi(value)
		}
		if err != nil {
			return models.Settings{}, fmt.Errorf("invalid value for setting %s: %w", key, err)
		}
	}
	return settings, rows.Err()
}

func (r *Repo) SaveSettings(ctx context.Context, settings models.Settings) error {
	db, err := r.conn()
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	values := map[string]string{
		constants.SettingTimezone:             settings.Timezone,
		constants.SettingNotificationsEnabled: strconv.FormatBool(settings.NotificationsEnabled),
		constants.SettingReminderGraceMin:     strconv.Itoa(settings.ReminderGraceMin),
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for key, value := range values {
		_, err := tx.ExecContext(ctx, r.q(`
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`), key, value)
		if err != nil {
			return fmt.Errorf("failed to save setting %s: %w", key, err)
		}
	}
	return tx.Commit()
}
