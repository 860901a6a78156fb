// Package sqlrepo implements storage.Provider's data operations over
// database/sql. The sqlite and postgres stores embed a Repo and add their
// own connection handling and migrations.
package sqlrepo

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect captures the differences between SQL backends that matter to the
// repository.
type Dialect interface {
	Name() string
	// Rebind rewrites "?" placeholders into the backend's style.
	Rebind(query string) string
	IsUniqueViolation(err error) bool
	// ChangeLogLock runs inside a mutation right before its change-log row
	// is written. It must make change-log rows commit in seq order. Empty
	// when the backend already allows a single writer at a time.
	ChangeLogLock() string
}

// TimestampLayout is fixed-width so stored UTC timestamps sort as strings.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

var ErrNotLoaded = errors.New("storage not loaded, run 'streak init' first")

type Repo struct {
	db      *sql.DB
	dialect Dialect
}

func New(db *sql.DB, dialect Dialect) *Repo {
	return &Repo{db: db, dialect: dialect}
}

// DB returns the underlying connection, or nil before the store is loaded.
func (r *Repo) DB() *sql.DB {
	if r == nil {
		return nil
	}
	return r.db
}

func (r *Repo) conn() (*sql.DB, error) {
	if r == nil || r.db == nil {
		return nil, ErrNotLoaded
	}
	return r.db, nil
}

func (r *Repo) q(query string) string {
	return r.dialect.Rebind(query)
}

// RebindDollar turns "?" placeholders into $1, $2, ...
func RebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
