// Package upgrade checks that the database schema matches this binary and
// runs the data fixes that follow schema migrations.
package upgrade

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// RequiredSchemaVersion is the migrations/ version this binary is built for.
const RequiredSchemaVersion uint = 1

var (
	ErrSchemaOutdated = errors.New("database schema is outdated")
	ErrSchemaDirty    = errors.New("database schema is dirty (failed migration)")
	ErrSchemaAhead    = errors.New("database schema is newer than this binary")
)

// SchemaStatus is the outcome of comparing schema_migrations with
// RequiredSchemaVersion.
type SchemaStatus struct {
	CurrentVersion  uint
	RequiredVersion uint
	Dirty           bool
}

func (s *SchemaStatus) Compatible() bool {
	return !s.Dirty && s.CurrentVersion == s.RequiredVersion
}

func (s *SchemaStatus) NeedsMigration() bool {
	return !s.Dirty && s.CurrentVersion < s.RequiredVersion
}

// Err maps the status to one of the ErrSchema errors, or nil.
func (s *SchemaStatus) Err() error {
	switch {
	case s.Dirty:
		return ErrSchemaDirty
	case s.CurrentVersion < s.RequiredVersion:
		return ErrSchemaOutdated
	case s.CurrentVersion > s.RequiredVersion:
		return ErrSchemaAhead
	}
	return nil
}

// CheckSchema reads the golang-migrate bookkeeping table. A fresh database
// without the table reports version 0.
func CheckSchema(ctx context.Context, db *sql.DB) (*SchemaStatus, error) {
	s := &SchemaStatus{RequiredVersion: RequiredSchemaVersion}

	var exists bool
	if err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'schema_migrations')`,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("look up schema_migrations: %w", err)
	}
	if !exists {
		return s, nil
	}

	err := db.QueryRowContext(ctx, `SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&s.CurrentVersion, &s.Dirty)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read schema version: %w", err)
	}
	return s, nil
}

// Describe explains the status to an operator, with the command that fixes it.
func Describe(s *SchemaStatus) string {
	switch {
	case s.Dirty:
		prev := uint(0)
		if s.CurrentVersion > 0 {
			prev = s.CurrentVersion - 1
		}
		return fmt.Sprintf("schema v%d is dirty after a failed migration.\n"+
			"  fix:  botfleet migrate force %d\n"+
			"  then: botfleet migrate up\n", s.CurrentVersion, prev)
	case s.CurrentVersion > s.RequiredVersion:
		return fmt.Sprintf("schema v%d is newer than this binary (needs v%d); upgrade botfleet.\n",
			s.CurrentVersion, s.RequiredVersion)
	case s.CurrentVersion < s.RequiredVersion:
		return fmt.Sprintf("schema v%d is behind (needs v%d).\n  run: botfleet migrate up\n",
			s.CurrentVersion, s.RequiredVersion)
	}
	return fmt.Sprintf("schema v%d is up to date.\n", s.CurrentVersion)
}
