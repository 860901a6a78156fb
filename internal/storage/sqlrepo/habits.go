package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	errs "github.com/julianstephens/streak/internal/errors"
	"github.com/julianstephens/streak/internal/models"
	"github.com/julianstephens/streak/internal/storage"
	"github.com/julianstephens/streak/internal/utils"
)

const habitColumns = "id, name, color, created_at, updated_at, version"

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHabit(row rowScanner) (*models.Habit, error) {
	var (
		h                    models.Habit
		color                string
		createdAt, updatedAt string
	)
	if err := row.Scan(&h.ID, &h.Name, &color, &createdAt, &updatedAt, &h.Version); err != nil {
		return nil, err
	}
	h.Color = models.Color(color)

	var err error
	if h.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("habit %s created_at: %w", h.ID, err)
	}
	if h.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("habit %s updated_at: %w", h.ID, err)
	}
	return &h, nil
}

func (r *Repo) CreateHabit(ctx context.Context, habit *models.Habit) error {
	const op = "store.create_habit"

	db, err := r.conn()
	if err != nil {
		return err
	}
	if err := habit.Validate(); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, r.q(`
		INSERT INTO habits (id, name, color, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?)`),
		habit.ID, habit.Name, string(habit.Color), formatTime(habit.CreatedAt), formatTime(habit.UpdatedAt), habit.Version)
	if err != nil {
		if r.dialect.IsUniqueViolation(err) {
			return errs.Conflict(op, "habit %q already exists", habit.Name)
		}
		return fmt.Errorf("failed to insert habit: %w", err)
	}

	if err := r.insertChallenges(ctx, tx, habit); err != nil {
		return err
	}
	if err := r.logChange(ctx, tx, habit.ID, storage.OpInsert, habit.UpdatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repo) GetHabit(ctx context.Context, id string) (*models.Habit, error) {
	return r.getHabitWhere(ctx, "id = ?", id)
}

func (r *Repo) GetHabitByName(ctx context.Context, name string) (*models.Habit, error) {
	return r.getHabitWhere(ctx, "name = ?", name)
}

func (r *Repo) getHabitWhere(ctx context.Context, where string, arg string) (*models.Habit, error) {
	db, err := r.conn()
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, r.q("SELECT "+habitColumns+" FROM habits WHERE "+where), arg)
	h, err := scanHabit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("store.get_habit", "habit %q not found", arg)
		}
		return nil, err
	}

	if err := r.loadChildren(ctx, db, []*models.Habit{h}); err != nil {
		return nil, err
	}
	return h, nil
}

func (r *Repo) ListHabits(ctx context.Context) ([]*models.Habit, error) {
	db, err := r.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SELECT "+habitColumns+" FROM habits ORDER BY created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query habits: %w", err)
	}

	var habits []*models.Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		habits = append(habits, h)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := r.loadChildren(ctx, db, habits); err != nil {
		return nil, err
	}
	return habits, nil
}

// loadChildren fills challenges, days and reminders for habits. Each query
// is fully drained before the next one starts.
func (r *Repo) loadChildren(ctx context.Context, db *sql.DB, habits []*models.Habit) error {
	if len(habits) == 0 {
		return nil
	}

	byID := make(map[string]*models.Habit, len(habits))
	for _, h := range habits {
		h.Challenges = nil
		h.Reminders = nil
		byID[h.ID] = h
	}

	where, args := "", []interface{}{}
	if len(habits) == 1 {
		where, args = " WHERE c.habit_id = ?", []interface{}{habits[0].ID}
	}

	challenges := make(map[string]*models.Challenge)
	err := r.each(ctx, db, `
		SELECT c.id, c.habit_id, c.start_date, c.end_date, c.created_at
		FROM challenges c`+where+`
		ORDER BY c.start_date DESC`, args, func(rows *sql.Rows) error {
		var (
			c                 models.Challenge
			habitID           string
			start, end, added string
		)
		if err := rows.Scan(&c.ID, &habitID, &start, &end, &added); err != nil {
			return err
		}
		var err error
		if c.StartDate, err = utils.ParseDate(start); err != nil {
			return err
		}
		if c.EndDate, err = utils.ParseDate(end); err != nil {
			return err
		}
		if c.CreatedAt, err = parseTime(added); err != nil {
			return err
		}
		if h, ok := byID[habitID]; ok {
			h.Challenges = append(h.Challenges, &c)
			challenges[c.ID] = &c
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to load challenges: %w", err)
	}

	err = r.each(ctx, db, `
		SELECT d.challenge_id, d.day, d.executed, d.executed_at
		FROM challenge_days d
		JOIN challenges c ON c.id = d.challenge_id`+where+`
		ORDER BY d.challenge_id, d.day`, args, func(rows *sql.Rows) error {
		var (
			challengeID, day string
			d                models.Day
			executedAt       sql.NullString
		)
		if err := rows.Scan(&challengeID, &day, &d.Executed, &executedAt); err != nil {
			return err
		}
		var err error
		if d.Date, err = utils.ParseDate(day); err != nil {
			return err
		}
		if d.ExecutedAt, err = parseNullTime(executedAt); err != nil {
			return err
		}
		if c, ok := challenges[challengeID]; ok {
			c.Days = append(c.Days, d)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to load challenge days: %w", err)
	}

	reminderWhere := ""
	if len(habits) == 1 {
		reminderWhere = " WHERE habit_id = ?"
	}
	err = r.each(ctx, db, `
		SELECT habit_id, fire_at FROM reminders`+reminderWhere+`
		ORDER BY fire_at`, args, func(rows *sql.Rows) error {
		var habitID, fireAt string
		if err := rows.Scan(&habitID, &fireAt); err != nil {
			return err
		}
		t, err := parseTime(fireAt)
		if err != nil {
			return err
		}
		if h, ok := byID[habitID]; ok {
			h.Reminders = append(h.Reminders, t)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to load reminders: %w", err)
	}

	return nil
}

func (r *Repo) each(ctx context.Context, db *sql.DB, query string, args []interface{}, fn func(*sql.Rows) error) error {
	rows, err := db.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *Repo) UpdateHabit(ctx context.Context, habit *models.Habit, expectedVersion int) error {
	const op = "store.update_habit"

	db, err := r.conn()
	if err != nil {
		return err
	}
	if err := habit.Validate(); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, r.q(`
		UPDATE habits SET name = ?, color = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`),
		habit.Name, string(habit.Color), formatTime(habit.UpdatedAt), habit.ID, expectedVersion)
	if err != nil {
		if r.dialect.IsUniqueViolation(err) {
			return errs.Conflict(op, "habit %q already exists", habit.Name)
		}
		return fmt.Errorf("failed to update habit: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var stored int
		err := tx.QueryRowContext(ctx, r.q("SELECT version FROM habits WHERE id = ?"), habit.ID).Scan(&stored)
		if errors.Is(err, sql.ErrNoRows) {
			return errs.NotFound(op, "habit %s not found", habit.ID)
		}
		if err != nil {
			return err
		}
		return errs.Conflict(op, "habit %s was modified concurrently (expected version %d, found %d)",
			habit.ID, expectedVersion, stored)
	}

	if err := r.deleteChallenges(ctx, tx, habit.ID); err != nil {
		return err
	}
	if err := r.insertChallenges(ctx, tx, habit); err != nil {
		return err
	}
	if err := r.logChange(ctx, tx, habit.ID, storage.OpUpdate, habit.UpdatedAt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	habit.Version = expectedVersion + 1
	return nil
}

func (r *Repo) DeleteHabit(ctx context.Context, id string, at time.Time) error {
	db, err := r.conn()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.deleteChallenges(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, r.q("DELETE FROM reminders WHERE habit_id = ?"), id); err != nil {
		return fmt.Errorf("failed to delete reminders: %w", err)
	}

	result, err := tx.ExecContext(ctx, r.q("DELETE FROM habits WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete habit: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errs.NotFound("store.delete_habit", "habit %s not found", id)
	}

	if err := r.logChange(ctx, tx, id, storage.OpDelete, at); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repo) deleteChallenges(ctx context.Context, tx execer, habitID string) error {
	_, err := tx.ExecContext(ctx, r.q(`
		DELETE FROM challenge_days
		WHERE challenge_id IN (SELECT id FROM challenges WHERE habit_id = ?)`), habitID)
	if err != nil {
		return fmt.Errorf("failed to delete challenge days: %w", err)
	}
	if _, err := tx.ExecContext(ctx, r.q("DELETE FROM challenges WHERE habit_id = ?"), habitID); err != nil {
		return fmt.Errorf("failed to delete challenges: %w", err)
	}
	return nil
}

func (r *Repo) insertChallenges(ctx context.Context, tx execer, habit *models.Habit) error {
	for _, c := range habit.Challenges {
		_, err := tx.ExecContext(ctx, r.q(`
			INSERT INTO challenges (id, habit_id, start_date, end_date, created_at)
			VALUES (?, ?, ?, ?, ?)`),
			c.ID, habit.ID, utils.FormatDate(c.StartDate), utils.FormatDate(c.EndDate), formatTime(c.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert challenge %s: %w", c.ID, err)
		}

		for _, d := range c.Days {
			_, err := tx.ExecContext(ctx, r.q(`
				INSERT INTO challenge_days (challenge_id, day, executed, executed_at)
				VALUES (?, ?, ?, ?)`),
				c.ID, utils.FormatDate(d.Date), d.Executed, nullTime(d.ExecutedAt))
			if err != nil {
				return fmt.Errorf("failed to insert day %s of challenge %s: %w", utils.FormatDate(d.Date), c.ID, err)
			}
		}
	}
	return nil
}

// logChange appends the mutation to the change log. Readers advance past
// every seq they see, so a row must never become visible after a higher
// seq; the dialect lock holds other writers back until this one commits.
func (r *Repo) logChange(ctx context.Context, tx execer, habitID string, op storage.ChangeOp, at time.Time) error {
	if lock := r.dialect.ChangeLogLock(); lock != "" {
		if _, err := tx.ExecContext(ctx, lock); err != nil {
			return fmt.Errorf("failed to lock change log: %w", err)
		}
	}
	_, err := tx.ExecContext(ctx, r.q(`
		INSERT INTO habit_changes (habit_id, op, changed_at) VALUES (?, ?, ?)`),
		habitID, string(op), formatTime(at))
	if err != nil {
		return fmt.Errorf("failed to record change: %w", err)
	}
	return nil
}
