package database

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog/log"

	"github.com/auswanderer-plattform/backend/migrations"
)

// RunMigrations applies every pending migration found in fsys under path
func RunMigrations(databaseURL string, fsys fs.FS, path string) error {
	d, err := iofs.New(fsys, path)
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logVersion(m)
	return nil
}

// NewMigrator opens a migrator on dir, or on the migrations embedded in the
// binary when dir is empty. Callers must Close it.
func NewMigrator(databaseURL, dir string) (*migrate.Migrate, error) {
	if dir == "" {
		d, err := iofs.New(migrations.FS, ".")
		if err != nil {
			return nil, fmt.Errorf("failed to create migration source: %w", err)
		}
		return migrate.NewWithSourceInstance("iofs", d, databaseURL)
	}

	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve migrations directory: %w", err)
	}
	return migrate.New("file://"+absPath, databaseURL)
}

// Version returns the applied version; 0 when nothing is applied yet
func Version(m *migrate.Migrate) (uint, bool, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

func logVersion(m *migrate.Migrate) {
	version, dirty, err := Version(m)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("Failed to read migration version")
	case version == 0:
		log.Info().Msg("No migrations applied yet")
	default:
		log.Info().
			Uint("version", version).
			Bool("dirty", dirty).
			Msg("Database migration completed")
	}
}
