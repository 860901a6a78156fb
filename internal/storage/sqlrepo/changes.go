package sqlrepo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/julianstephens/streak/internal/storage"
)

// ChangesSince returns change-log entries with seq greater than seq, oldest
// first.
func (r *Repo) ChangesSince(ctx context.Context, seq int64) ([]storage.ChangeRecord, error) {
	db, err := r.conn()
	if err != nil {
		return nil, err
	}

	var changes []storage.ChangeRecord
	err = r.each(ctx, db, `
		SELECT seq, habit_id, op, changed_at FROM habit_changes
		WHERE seq > ? ORDER BY seq`, []interface{}{seq}, func(rows *sql.Rows) error {
		var (
			c  storage.ChangeRecord
			op string
			at string
		)
		if err := rows.Scan(&c.Seq, &c.HabitID, &op, &at); err != nil {
			return err
		}
		c.Op = storage.ChangeOp(op)
		t, err := parseTime(at)
		if err != nil {
			return err
		}
		c.At = t
		changes = append(changes, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read change log: %w", err)
	}
	return changes, nil
}

func (r *Repo) LatestChangeSeq(ctx context.Context) (int64, error) {
	db, err := r.conn()
	if err != nil {
		return 0, err
	}

	var seq int64
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) FROM habit_changes").Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to read latest change: %w", err)
	}
	return seq, nil
}
