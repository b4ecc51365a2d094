// Package upgrade checks the Postgres schema version against the one this
// binary was built for and runs Go data hooks after SQL migrations.
package upgrade

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	ErrSchemaOutdated = errors.New("database schema is outdated")
	ErrSchemaDirty    = errors.New("database schema is dirty (failed migration)")
	ErrSchemaAhead    = errors.New("database schema is newer than this binary")
)

// SchemaStatus is the result of comparing schema_migrations with RequiredSchemaVersion.
type SchemaStatus struct {
	CurrentVersion  uint
	RequiredVersion uint
	Dirty           bool
}

// Compatible reports whether the schema matches exactly.
func (s SchemaStatus) Compatible() bool {
	return !s.Dirty && s.CurrentVersion == s.RequiredVersion
}

// Err maps the status to one of the schema sentinel errors, or nil.
func (s SchemaStatus) Err() error {
	switch {
	case s.Dirty:
		return fmt.Errorf("%w: version %d (run: mercadoclaw migrate force %d)", ErrSchemaDirty, s.CurrentVersion, s.CurrentVersion-1)
	case s.CurrentVersion < s.RequiredVersion:
		return fmt.Errorf("%w: v%d, required v%d (run: mercadoclaw migrate up)", ErrSchemaOutdated, s.CurrentVersion, s.RequiredVersion)
	case s.CurrentVersion > s.RequiredVersion:
		return fmt.Errorf("%w: v%d, binary requires v%d", ErrSchemaAhead, s.CurrentVersion, s.RequiredVersion)
	}
	return nil
}

// CheckSchema reads the golang-migrate version table. A fresh database
// (missing or empty table) reports version 0.
func CheckSchema(ctx context.Context, db *sql.DB) SchemaStatus {
	s := SchemaStatus{RequiredVersion: RequiredSchemaVersion}
	var version int64
	if err := db.QueryRowContext(ctx, "SELECT version, dirty FROM schema_migrations LIMIT 1").Scan(&version, &s.Dirty); err != nil {
		return s
	}
	if version > 0 {
		s.CurrentVersion = uint(version)
	}
	return s
}
