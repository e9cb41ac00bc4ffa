// Package migrate applies database migrations from embedded SQL files using
// golang-migrate.
package migrate

import (
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-session-service/internal/db"
)

// Up applies any pending migrations against the database at dsn. It is a
// no-op when the schema is already at the latest version.
func Up(dsn string) error {
	if dsn == "" {
		return errors.New("[migrate.Up] empty database url")
	}

	sourceDriver, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "[migrate.Up] iofs.New")
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return errors.Wrap(err, "[migrate.Up] migrate.NewWithSourceInstance")
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "[migrate.Up] m.Up")
	}
	return nil
}
