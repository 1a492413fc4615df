package sqlstore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

const (
	driverName = "sqlite"
	dbFile     = "wallet.sqlite"
)

//go:embed migration/*
var migrations embed.FS

// OpenDb opens (or creates) the sqlite database under datadir and applies
// pending migrations.
func OpenDb(datadir string) (*sql.DB, error) {
	dbPath := filepath.Join(datadir, dbFile)
	db, err := sql.Open(driverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %s", err)
	}
	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := migrateDb(db); err != nil {
		// nolint
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrateDb(db *sql.DB) error {
	source, err := iofs.New(migrations, "migration")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %s", err)
	}
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("failed to init migration driver: %s", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, driverName, driver)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %s", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %s", err)
	}
	return nil
}
