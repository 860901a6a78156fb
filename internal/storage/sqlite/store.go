package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/julianstephens/streak/internal/logger"
	"github.com/julianstephens/streak/internal/migration"
	"github.com/julianstephens/streak/internal/models"
	"github.com/julianstephens/streak/internal/storage"
	"github.com/julianstephens/streak/internal/storage/sqlrepo"
	"github.com/julianstephens/streak/migrations"
)

var _ storage.Provider = (*Store)(nil)

type dialect struct{}

func (dialect) Name() string { return "sqlite" }

func (dialect) Rebind(query string) string { return query }

// ChangeLogLock is empty: a SQLite write transaction already excludes every
// other writer until it commits.
func (dialect) ChangeLogLock() string { return "" }

func (dialect) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type Store struct {
	*sqlrepo.Repo
	path string
}

func NewStore(path string) *Store {
	return &Store{
		path: path,
	}
}

// dsn enables WAL and a busy timeout so several handles on the same file
// can write without failing immediately.
func (s *Store) dsn() string {
	return "file:" + s.path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

func (s *Store) open() error {
	db, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection keeps transactions from
	// tripping over each other inside this process.
	db.SetMaxOpenConns(1)
	s.Repo = sqlrepo.New(db, dialect{})
	return nil
}

func (s *Store) Init(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if s.DB() == nil {
		if err := s.open(); err != nil {
			return err
		}
	}

	if err := s.runMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Persist defaults so every key exists in the settings table.
	settings, err := s.GetSettings(ctx)
	if err != nil {
		settings = models.DefaultSettings()
	}
	if err := s.SaveSettings(ctx, settings); err != nil {
		return fmt.Errorf("failed to save default settings: %w", err)
	}

	return nil
}

func (s *Store) Load(ctx context.Context) error {
	if s.DB() != nil {
		return nil
	}

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return fmt.Errorf("storage not initialized, run 'streak init' first")
	}

	if err := s.open(); err != nil {
		return err
	}

	return s.validateSchemaVersion(ctx)
}

func (s *Store) Close() error {
	if db := s.DB(); db != nil {
		err := db.Close()
		s.Repo = nil
		return err
	}
	return nil
}

func (s *Store) migrationRunner() (*migration.Runner, error) {
	subFS, err := fs.Sub(migrations.FS, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to access sqlite migrations: %w", err)
	}
	return migration.NewRunner(s.DB(), subFS, nil), nil
}

func (s *Store) runMigrations(ctx context.Context) error {
	runner, err := s.migrationRunner()
	if err != nil {
		return err
	}
	_, err = runner.ApplyMigrations(ctx, func(msg string) {
		logger.Info(msg)
	})
	return err
}

// Migrate applies pending migrations to an existing database.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	if s.DB() == nil {
		if err := s.open(); err != nil {
			return 0, err
		}
	}
	runner, err := s.migrationRunner()
	if err != nil {
		return 0, err
	}
	return runner.ApplyMigrations(ctx, func(msg string) {
		logger.Info(msg)
	})
}

func (s *Store) validateSchemaVersion(ctx context.Context) error {
	runner, err := s.migrationRunner()
	if err != nil {
		return err
	}
	return runner.ValidateVersion(ctx)
}

func (s *Store) GetConfigPath() string {
	return s.path
}
