package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	errs "github.com/julianstephens/streak/internal/errors"
	"github.com/julianstephens/streak/internal/models"
)

// ReplaceReminders makes fireAt the complete reminder set for a habit.
// Reminders kept from the previous set retain their sent state.
func (r *Repo) ReplaceReminders(ctx context.Context, habitID string, fireAt []time.Time) error {
	const op = "store.replace_reminders"

	db, err := r.conn()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, r.q("SELECT 1 FROM habits WHERE id = ?"), habitID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return errs.NotFound(op, "habit %s not found", habitID)
	}
	if err != nil {
		return err
	}

	keep := make(map[string]bool, len(fireAt))
	for _, t := range fireAt {
		keep[formatTime(t.Truncate(time.Minute))] = true
	}

	rows, err := tx.QueryContext(ctx, r.q("SELECT fire_at FROM reminders WHERE habit_id = ?"), habitID)
	if err != nil {
		return fmt.Errorf("failed to query reminders: %w", err)
	}
	var stale []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			rows.Close()
			return err
		}
		if !keep[s] {
			stale = append(stale, s)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, s := range stale {
		if _, err := tx.ExecContext(ctx, r.q("DELETE FROM reminders WHERE habit_id = ? AND fire_at = ?"), habitID, s); err != nil {
			return fmt.Errorf("failed to delete reminder: %w", err)
		}
	}
	for s := range keep {
		_, err := tx.ExecContext(ctx, r.q(`
			INSERT INTO reminders (habit_id, fire_at) VALUES (?, ?)
			ON CONFLICT (habit_id, fire_at) DO NOTHING`), habitID, s)
		if err != nil {
			return fmt.Errorf("failed to insert reminder: %w", err)
		}
	}

	return tx.Commit()
}

// DueReminders lists unsent reminders with from <= fire_at <= to.
func (r *Repo) DueReminders(ctx context.Context, from, to time.Time) ([]models.Reminder, error) {
	db, err := r.conn()
	if err != nil {
		return nil, err
	}

	var reminders []models.Reminder
	err = r.each(ctx, db, `
		SELECT r.habit_id, h.name, r.fire_at
		FROM reminders r
		JOIN habits h ON h.id = r.habit_id
		WHERE r.sent_at IS NULL AND r.fire_at >= ? AND r.fire_at <= ?
		ORDER BY r.fire_at, h.name`, []interface{}{formatTime(from), formatTime(to)}, func(rows *sql.Rows) error {
		var (
			rem    models.Reminder
			fireAt string
		)
		if err := rows.Scan(&rem.HabitID, &rem.HabitName, &fireAt); err != nil {
			return err
		}
		t, err := parseTime(fireAt)
		if err != nil {
			return err
		}
		rem.FireAt = t
		reminders = append(reminders, rem)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query due reminders: %w", err)
	}
	return reminders, nil
}

func (r *Repo) MarkReminderSent(ctx context.Context, habitID string, fireAt, sentAt time.Time) error {
	db, err := r.conn()
	if err != nil {
		return err
	}

	result, err := db.ExecContext(ctx, r.q(`
		UPDATE reminders SET sent_at = ? WHERE habit_id = ? AND fire_at = ?`),
		formatTime(sentAt), habitID, formatTime(fireAt.Truncate(time.Minute)))
	if err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errs.NotFound("store.mark_reminder_sent", "no reminder for habit %s at %s", habitID, formatTime(fireAt))
	}
	return nil
}
