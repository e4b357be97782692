// Package migrate applies the embedded users and sessions schema with golang-migrate.
package migrate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"lms-sessions/internal/db"
)

// Directions accepted by Run.
const (
	Up   = "up"
	Down = "down"
)

// ErrNoChange is golang-migrate's "already at target version". Run and Steps treat it as success.
var ErrNoChange = migrate.ErrNoChange

// ErrEmptyDSN is returned when no database URL is configured.
var ErrEmptyDSN = errors.New("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")

// Run migrates all the way up or down.
func Run(dsn, direction string) error {
	if direction != Up && direction != Down {
		return fmt.Errorf("direction must be %s or %s, got %q", Up, Down, direction)
	}
	return withMigrate(dsn, func(m *migrate.Migrate) error {
		if direction == Up {
			return m.Up()
		}
		return m.Down()
	})
}

// Steps applies n migrations forward (n > 0) or backward (n < 0).
func Steps(dsn string, n int) error {
	if n == 0 {
		return errors.New("steps must be non-zero")
	}
	return withMigrate(dsn, func(m *migrate.Migrate) error { return m.Steps(n) })
}

// Version reports the applied schema version. ok is false on an empty database; dirty is true
// when a previous migration failed halfway.
func Version(dsn string) (version uint, dirty, ok bool, err error) {
	err = withMigrate(dsn, func(m *migrate.Migrate) error {
		v, d, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			return nil
		}
		if verr != nil {
			return verr
		}
		version, dirty, ok = v, d, true
		return nil
	})
	return version, dirty, ok, err
}

func withMigrate(dsn string, fn func(*migrate.Migrate) error) error {
	if strings.TrimSpace(dsn) == "" {
		return ErrEmptyDSN
	}
	src, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
