package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/matheus3301/driftpro/internal/store/migrations"
)

// ErrDirtySchema means an earlier migration stopped halfway. The database
// needs manual repair before driftd can use it.
var ErrDirtySchema = errors.New("schema is dirty")

// SchemaState is the schema version before and after Migrate.
type SchemaState struct {
	From uint
	To   uint
}

// Applied reports whether Migrate moved the schema forward.
func (s SchemaState) Applied() bool {
	return s.To != s.From
}

// Migrate brings the schema up to the newest embedded migration. A dirty
// schema is refused rather than retried.
func (db *DB) Migrate() (SchemaState, error) {
	m, err := db.migrator()
	if err != nil {
		return SchemaState{}, err
	}

	from, err := schemaVersion(m)
	if err != nil {
		return SchemaState{}, err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return SchemaState{From: from}, fmt.Errorf("migrate from version %d: %w", from, err)
	}
	to, err := schemaVersion(m)
	if err != nil {
		return SchemaState{From: from}, err
	}
	return SchemaState{From: from, To: to}, nil
}

// SchemaVersion returns the applied schema version, zero on a fresh file.
func (db *DB) SchemaVersion() (uint, error) {
	m, err := db.migrator()
	if err != nil {
		return 0, err
	}
	return schemaVersion(m)
}

func (db *DB) migrator() (*migrate.Migrate, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}
	return m, nil
}

func schemaVersion(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("schema version: %w", err)
	case dirty:
		return v, fmt.Errorf("version %d: %w", v, ErrDirtySchema)
	}
	return v, nil
}
