package models

import (
	"fmt"
	"time"

	"github.com/julianstephens/streak/internal/constants"
	"github.com/julianstephens/streak/internal/utils"
)

type Settings struct {
	Timezone             string `json:"timezone"`
	NotificationsEnabled bool   `json:"notifications_enabled"`
	ReminderGraceMin     int    `json:"reminder_grace_min"`
}

func DefaultSettings() Settings {
	return Settings{
		Timezone:             constants.DefaultTimezone,
		NotificationsEnabled: constants.DefaultNotificationsEnabled,
		ReminderGraceMin:     constants.DefaultReminderGraceMin,
	}
}

func (s Settings) Validate() error {
	if !utils.ValidateTimezone(s.Timezone) {
		return fmt.Errorf("invalid timezone %q", s.Timezone)
	}
	if s.ReminderGraceMin < 0 {
		return fmt.Errorf("reminder grace period cannot be negative")
	}
	return nil
}

// Location resolves the configured timezone, falling back to local time.
func (s Settings) Location() *time.Location {
	loc, err := utils.LoadLocation(s.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Reminder is a persisted notification fire-time for a habit.
type Reminder struct {
	HabitID   string     `json:"habit_id"`
	HabitName string     `json:"habit_name"`
	FireAt    time.Time  `json:"fire_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}
