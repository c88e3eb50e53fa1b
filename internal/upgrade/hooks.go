package upgrade

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Hook is a data fix that runs once after the SQL migration of Version.
type Hook struct {
	Version uint
	Name    string
	Run     func(ctx context.Context, db *sql.DB) error
}

// hooks run in order; names are recorded in data_migrations.
var hooks = []Hook{
	{
		Version: 1,
		Name:    "001_normalize_user_emails",
		Run: func(ctx context.Context, db *sql.DB) error {
			// Accounts imported from the single-bot release may carry mixed-case
			// e-mails; login lowercases its input.
			_, err := db.ExecContext(ctx,
				`UPDATE users SET email = LOWER(TRIM(email)) WHERE email <> LOWER(TRIM(email))`)
			return err
		},
	},
}

// PendingHooks lists the hooks not yet recorded as applied.
func PendingHooks(ctx context.Context, db *sql.DB) ([]string, error) {
	applied, err := appliedHooks(ctx, db)
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, h := range hooks {
		if !applied[h.Name] {
			pending = append(pending, h.Name)
		}
	}
	return pending, nil
}

// RunPendingHooks applies every pending hook whose schema version is in
// place and returns how many ran.
func RunPendingHooks(ctx context.Context, db *sql.DB, schemaVersion uint) (int, error) {
	applied, err := appliedHooks(ctx, db)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, h := range hooks {
		if applied[h.Name] || h.Version > schemaVersion {
			continue
		}
		start := time.Now()
		if err := h.Run(ctx, db); err != nil {
			return n, fmt.Errorf("data hook %s: %w", h.Name, err)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO data_migrations (name, version) VALUES ($1, $2)`, h.Name, h.Version); err != nil {
			return n, fmt.Errorf("record data hook %s: %w", h.Name, err)
		}
		slog.Info("data hook applied", "name", h.Name, "took", time.Since(start))
		n++
	}
	return n, nil
}

func appliedHooks(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS data_migrations (
		name       VARCHAR(255) PRIMARY KEY,
		version    INT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return nil, fmt.Errorf("create data_migrations: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT name FROM data_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list data_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}
