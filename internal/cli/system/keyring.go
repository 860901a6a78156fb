package system

import (
	"errors"
	"fmt"
	"strings"

	"github.com/julianstephens/streak/internal/cli"
	errs "github.com/julianstephens/streak/internal/errors"
	"github.com/julianstephens/streak/internal/keyring"
	"github.com/julianstephens/streak/internal/storage/postgres"
)

type KeyringCmd struct {
	Set    KeyringSetCmd    `cmd:"" help:"Store a PostgreSQL connection string in the OS keyring."`
	Get    KeyringGetCmd    `cmd:"" help:"Show the stored connection string with the password masked."`
	Delete KeyringDeleteCmd `cmd:"" help:"Remove the stored connection string."`
	Status KeyringStatusCmd `cmd:"" help:"Check whether the OS keyring is usable."`
}

type KeyringSetCmd struct {
	ConnectionString string `arg:"" help:"PostgreSQL connection string to store in keyring."`
}

func (cmd *KeyringSetCmd) Run(ctx *cli.Context) error {
	if !cli.IsPostgres(cmd.ConnectionString) {
		return errs.InvalidInput("keyring.set", "connection string must be a PostgreSQL URL or DSN")
	}

	if _, err := postgres.ValidateConnString(cmd.ConnectionString); err != nil {
		if !errors.Is(err, postgres.ErrEmbeddedCredentials) {
			return errs.Wrap(errs.ErrInvalidInput, "keyring.set", err)
		}
		// The keyring is encrypted, so a password is acceptable here.
		ctx.Println(cli.Warning("Connection string contains a password; it will be stored in the encrypted OS keyring."))
	}

	if err := keyring.SetConnectionString(cmd.ConnectionString); err != nil {
		return err
	}
	ctx.Println("Connection string stored in OS keyring.")
	ctx.Println("streak will use it whenever --config is not given.")
	return nil
}

type KeyringGetCmd struct{}

func (cmd *KeyringGetCmd) Run(ctx *cli.Context) error {
	connStr, err := keyring.GetConnectionString()
	if errors.Is(err, keyring.ErrNotFound) {
		return errs.NotFound("keyring.get", "no connection string in keyring; use 'streak keyring set' to store one")
	}
	if err != nil {
		return err
	}
	ctx.Println(maskPassword(connStr))
	return nil
}

type KeyringDeleteCmd struct{}

func (cmd *KeyringDeleteCmd) Run(ctx *cli.Context) error {
	err := keyring.DeleteConnectionString()
	if errors.Is(err, keyring.ErrNotFound) {
		return errs.NotFound("keyring.delete", "no connection string in keyring")
	}
	if err != nil {
		return err
	}
	ctx.Println("Connection string deleted from OS keyring.")
	return nil
}

type KeyringStatusCmd struct{}

func (cmd *KeyringStatusCmd) Run(ctx *cli.Context) error {
	if !keyring.IsAvailable() {
		ctx.Println("OS keyring is not available on this system.")
		return keyring.ErrKeyringUnavailable
	}
	ctx.Println("OS keyring is available.")

	_, err := keyring.GetConnectionString()
	switch {
	case err == nil:
		ctx.Println("A connection string is stored.")
	case errors.Is(err, keyring.ErrNotFound):
		ctx.Println("No connection string stored.")
	default:
		return fmt.Errorf("failed to read keyring: %w", err)
	}
	return nil
}

// maskPassword hides the password of a URL or DSN connection string.
func maskPassword(connStr string) string {
	if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
		idx := strings.Index(connStr, "://")
		rest := connStr[idx+3:]
		if at := strings.LastIndex(rest, "@"); at != -1 {
			userInfo := rest[:at]
			if colon := strings.Index(userInfo, ":"); colon != -1 {
				return connStr[:idx+3] + userInfo[:colon] + ":****" + rest[at:]
			}
		}
		return connStr
	}

	fields := strings.Fields(connStr)
	for i, f := range fields {
		if strings.HasPrefix(strings.ToLower(f), "password=") {
			fields[i] = "password=****"
		}
	}
	return strings.Join(fields, " ")
}
