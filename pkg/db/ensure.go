package db

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
)

const ensureLogPrefix = "db:ensure"

// DefaultDatabase is the database the development host keeps widget data in.
const DefaultDatabase = "widget_host"

// maintenanceDatabase is the database connected to while creating another.
const maintenanceDatabase = "postgres"

var dbNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DatabaseName returns the database named by the path of databaseURL.
func DatabaseName(databaseURL string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("%s - invalid database URL: %w", ensureLogPrefix, err)
	}
	name := strings.TrimSpace(strings.TrimPrefix(u.Path, "/"))
	if err := validateName(name); err != nil {
		return "", err
	}
	return name, nil
}

// WithDatabase returns databaseURL pointed at name, keeping host, credentials
// and query parameters such as sslmode.
func WithDatabase(databaseURL, name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("%s - invalid database URL: %w", ensureLogPrefix, err)
	}
	u.Path = "/" + name
	u.RawPath = ""
	return u.String(), nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%s - database name empty in URL", ensureLogPrefix)
	}
	if !dbNamePattern.MatchString(name) {
		return fmt.Errorf("%s - database name %q must be an unquoted identifier", ensureLogPrefix, name)
	}
	return nil
}

// EnsureDatabase creates the database named in databaseURL when it is missing
// and pings it. It reports whether the database was created.
func EnsureDatabase(ctx context.Context, databaseURL string) (created bool, err error) {
	name, err := DatabaseName(databaseURL)
	if err != nil {
		return false, err
	}
	maintenanceURL, err := WithDatabase(databaseURL, maintenanceDatabase)
	if err != nil {
		return false, err
	}

	admin, err := pgx.Connect(ctx, maintenanceURL)
	if err != nil {
		return false, fmt.Errorf("%s - failed to connect to %s: %w", ensureLogPrefix, maintenanceDatabase, err)
	}
	var exists bool
	err = admin.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists)
	if err == nil && !exists {
		slog.Info(fmt.Sprintf("%s - Creating database %q", ensureLogPrefix, name))
		// CREATE DATABASE takes no parameters; name is a validated identifier.
		_, err = admin.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize())
		created = err == nil
	}
	admin.Close(ctx)
	if err != nil {
		return false, fmt.Errorf("%s - ensure %q: %w", ensureLogPrefix, name, err)
	}

	target, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return created, fmt.Errorf("%s - failed to connect to %q: %w", ensureLogPrefix, name, err)
	}
	defer target.Close(ctx)
	if err := target.Ping(ctx); err != nil {
		return created, fmt.Errorf("%s - ping %q: %w", ensureLogPrefix, name, err)
	}
	slog.Info(fmt.Sprintf("%s - Database %q ready (created=%t)", ensureLogPrefix, name, created))
	return created, nil
}
