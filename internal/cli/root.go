// Package cli holds the state shared by every streak command. The command
// structs live in subpackages grouped by topic.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/streak/internal/backup"
	"github.com/julianstephens/streak/internal/catalog"
	errs "github.com/julianstephens/streak/internal/errors"
	"github.com/julianstephens/streak/internal/logger"
	"github.com/julianstephens/streak/internal/storage"
	"github.com/julianstephens/streak/internal/storage/postgres"
	"github.com/julianstephens/streak/internal/storage/sqlite"
	"github.com/julianstephens/streak/internal/utils"
)

type Context struct {
	Ctx   context.Context
	Store storage.Provider
	Clock utils.Clock
	// Timezone overrides the stored timezone setting when set.
	Timezone string
	Out      io.Writer

	catalog *catalog.Catalog
}

// Writer returns where command output goes, stdout by default.
func (c *Context) Writer() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

func (c *Context) Context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

func (c *Context) Printf(format string, args ...interface{}) {
	fmt.Fprintf(c.Writer(), format, args...)
}

func (c *Context) Println(args ...interface{}) {
	fmt.Fprintln(c.Writer(), args...)
}

// Location is the timezone that decides "today": --timezone if given,
// otherwise the stored setting.
func (c *Context) Location() (*time.Location, error) {
	if c.Timezone != "" {
		loc, err := utils.LoadLocation(c.Timezone)
		if err != nil {
			return nil, errs.InvalidInput("config.timezone", "unknown timezone %q", c.Timezone)
		}
		return loc, nil
	}
	settings, err := c.Store.GetSettings(c.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return settings.Location(), nil
}

// Catalog builds the habit catalog on first use.
func (c *Context) Catalog() (*catalog.Catalog, error) {
	if c.catalog != nil {
		return c.catalog, nil
	}
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	opts := []catalog.Option{catalog.WithLocation(loc)}
	if c.Clock != nil {
		opts = append(opts, catalog.WithClock(c.Clock))
	}
	cat, err := catalog.New(c.Context(), c.Store, opts...)
	if err != nil {
		return nil, err
	}
	c.catalog = cat
	return cat, nil
}

// Close stops the catalog, if one was built, and closes the store.
func (c *Context) Close() error {
	if c.catalog != nil {
		c.catalog.Close()
		c.catalog = nil
	}
	if c.Store == nil {
		return nil
	}
	return c.Store.Close()
}

// PerformAutomaticBackup snapshots a SQLite store before a destructive
// command. Failures are logged and never interrupt the command.
func (c *Context) PerformAutomaticBackup() {
	if _, ok := c.Store.(*sqlite.Store); !ok {
		return
	}
	mgr := backup.NewManager(c.Store.GetConfigPath())
	if _, err := mgr.CreateBackup(c.Context()); err != nil {
		logger.Warn("Automatic backup failed", "error", err)
	}
}

// IsPostgres reports whether config names a PostgreSQL database rather than
// a SQLite file.
func IsPostgres(config string) bool {
	return strings.HasPrefix(config, "postgres://") ||
		strings.HasPrefix(config, "postgresql://") ||
		strings.Contains(config, "host=") ||
		strings.Contains(config, "dbname=")
}

// OpenStore picks the store implementation for config. PostgreSQL strings
// carrying a password are refused unless they came from the environment or
// the keyring.
func OpenStore(config string, trusted bool) (storage.Provider, error) {
	if !IsPostgres(config) {
		return sqlite.NewStore(kong.ExpandPath(config)), nil
	}

	if _, err := postgres.ValidateConnString(config); err != nil {
		if !errors.Is(err, postgres.ErrEmbeddedCredentials) {
			return nil, errs.Wrap(errs.ErrInvalidInput, "config", err)
		}
		if !trusted {
			return nil, errs.InvalidInput("config",
				"PostgreSQL connection strings with embedded credentials are not allowed on the command line; "+
					"use 'streak keyring set', STREAK_DB_CONNECTION or a .pgpass file")
		}
	}
	return postgres.New(config), nil
}
