// Package keyring keeps the PostgreSQL connection string in the OS keyring
// so the password never has to appear on the command line.
package keyring

import (
	"errors"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"

	"github.com/julianstephens/streak/internal/constants"
	"github.com/julianstephens/streak/internal/logger"
)

var (
	// ErrNotFound is returned when no credentials are found in the keyring
	ErrNotFound = errors.New("credentials not found in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring is not available
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

var getenv = os.Getenv

// GetConnectionString returns the stored connection string, or ErrNotFound.
func GetConnectionString() (string, error) {
	connStr, err := keyring.Get(constants.AppName, constants.DefaultKeyringUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return connStr, nil
}

func SetConnectionString(connStr string) error {
	if connStr == "" {
		return errors.New("connection string cannot be empty")
	}
	if err := keyring.Set(constants.AppName, constants.DefaultKeyringUser, connStr); err != nil {
		return fmt.Errorf("failed to store credentials in keyring: %w", err)
	}
	return nil
}

func DeleteConnectionString() error {
	err := keyring.Delete(constants.AppName, constants.DefaultKeyringUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete credentials from keyring: %w", err)
	}
	return nil
}

// IsAvailable is a best-effort probe: a read that fails with anything other
// than "not found" means there is no usable keyring.
func IsAvailable() bool {
	_, err := keyring.Get(constants.AppName, "test-availability")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}

// Source says where a resolved connection string came from.
type Source string

const (
	SourceFlag    Source = "flag"
	SourceEnv     Source = "env"
	SourceKeyring Source = "keyring"
)

// Resolve picks the store location. STREAK_DB_CONNECTION wins, then an
// explicitly configured value, then the keyring. The default SQLite path
// is used when none of those is set.
func Resolve(configured, defaultPath string) (string, Source) {
	if env := getenv(constants.EnvConnection); env != "" {
		return env, SourceEnv
	}
	if configured != defaultPath {
		return configured, SourceFlag
	}

	connStr, err := GetConnectionString()
	switch {
	case err == nil:
		return connStr, SourceKeyring
	case !errors.Is(err, ErrNotFound):
		logger.Debug("Keyring lookup skipped", "error", err)
	}
	return configured, SourceFlag
}
