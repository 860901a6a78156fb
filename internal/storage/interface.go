package storage

import (
	"context"
	"time"

	"github.com/julianstephens/streak/internal/models"
)

// Provider is the Habit Store. Every mutation commits the habit, its
// challenges, their days and one change-log row atomically.
type Provider interface {
	// Lifecycle
	Init(ctx context.Context) error
	Load(ctx context.Context) error
	Close() error

	// Settings
	GetSettings(ctx context.Context) (models.Settings, error)
	SaveSettings(ctx context.Context, settings models.Settings) error

	// Habits
	CreateHabit(ctx context.Context, habit *models.Habit) error
	GetHabit(ctx context.Context, id string) (*models.Habit, error)
	GetHabitByName(ctx context.Context, name string) (*models.Habit, error)
	// ListHabits returns every habit, newest first.
	ListHabits(ctx context.Context) ([]*models.Habit, error)
	// UpdateHabit saves habit if the stored version still equals
	// expectedVersion, and bumps habit.Version on success. A mismatch is
	// ErrConflict.
	UpdateHabit(ctx context.Context, habit *models.Habit, expectedVersion int) error
	// DeleteHabit removes the habit with its challenges and reminders. at
	// stamps the change-log entry.
	DeleteHabit(ctx context.Context, id string, at time.Time) error

	// Change log
	ChangesSince(ctx context.Context, seq int64) ([]ChangeRecord, error)
	LatestChangeSeq(ctx context.Context) (int64, error)

	// Reminders
	ReplaceReminders(ctx context.Context, habitID string, fireAt []time.Time) error
	DueReminders(ctx context.Context, from, to time.Time) ([]models.Reminder, error)
	MarkReminderSent(ctx context.Context, habitID string, fireAt, sentAt time.Time) error

	// Utils
	GetConfigPath() string
}

// ChangeOp is the kind of mutation recorded in the change log.
type ChangeOp string

const (
	OpInsert ChangeOp = "insert"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// ChangeRecord is one committed mutation. Seq increases in commit order.
type ChangeRecord struct {
	Seq     int64     `json:"seq"`
	HabitID string    `json:"habit_id"`
	Op      ChangeOp  `json:"op"`
	At      time.Time `json:"at"`
}
