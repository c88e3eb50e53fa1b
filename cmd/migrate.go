package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/botfleet/internal/upgrade"
)

var migrationsDir string

func resolveMigrationsDir() string {
	if migrationsDir != "" {
		return migrationsDir
	}
	if v := os.Getenv("BOTFLEET_MIGRATIONS_DIR"); v != "" {
		return v
	}
	if _, err := os.Stat("migrations"); err == nil {
		return "migrations"
	}
	exe, err := os.Executable()
	if err != nil {
		return "migrations"
	}
	return filepath.Join(filepath.Dir(exe), "migrations")
}

// migrateURL rewrites a postgres:// DSN for the pgx/v5 migrate driver.
func migrateURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

// withMigrator opens a migrator on the configured database, runs fn and
// closes it. ErrNoChange from fn is not an error.
func withMigrator(fn func(m *migrate.Migrate, dsn string) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dsn, err := resolveDSN(cfg)
	if err != nil {
		return err
	}
	m, err := migrate.New("file://"+resolveMigrationsDir(), migrateURL(dsn))
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := fn(m, dsn); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func logVersion(m *migrate.Migrate, msg string) {
	v, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		slog.Warn("read schema version", "error", err)
		return
	}
	slog.Info(msg, "version", v, "dirty", dirty)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration management",
	}
	cmd.PersistentFlags().StringVar(&migrationsDir, "migrations-dir", "", "path to migrations directory (default: ./migrations or $BOTFLEET_MIGRATIONS_DIR)")

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (default: 1 step)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *migrate.Migrate, _ string) error {
				if steps <= 0 {
					steps = 1
				}
				if err := m.Steps(-steps); err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				logVersion(m, "rollback complete")
				return nil
			})
		},
	}
	down.Flags().IntVarP(&steps, "steps", "n", 1, "number of steps to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations, then pending data hooks",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(migrateUp)
			},
		},
		down,
		&cobra.Command{
			Use:   "version",
			Short: "Show current migration version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(func(m *migrate.Migrate, _ string) error {
					v, dirty, err := m.Version()
					if errors.Is(err, migrate.ErrNilVersion) {
						fmt.Println("version: none (fresh database)")
						return nil
					}
					if err != nil {
						return fmt.Errorf("get version: %w", err)
					}
					fmt.Printf("version: %d, dirty: %v, required: %d\n", v, dirty, upgrade.RequiredSchemaVersion)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Force set migration version (no migration applied)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version: %w", err)
				}
				return withMigrator(func(m *migrate.Migrate, _ string) error {
					if err := m.Force(version); err != nil {
						return fmt.Errorf("force version: %w", err)
					}
					slog.Info("forced version", "version", version)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "goto <version>",
			Short: "Migrate to a specific version",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid version: %w", err)
				}
				return withMigrator(func(m *migrate.Migrate, _ string) error {
					if err := m.Migrate(uint(version)); err != nil {
						return fmt.Errorf("migrate goto: %w", err)
					}
					logVersion(m, "migrated")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "drop",
			Short: "Drop all tables (DANGEROUS)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(func(m *migrate.Migrate, _ string) error {
					if err := m.Drop(); err != nil {
						return fmt.Errorf("drop: %w", err)
					}
					slog.Info("all tables dropped")
					return nil
				})
			},
		},
	)
	return cmd
}

func migrateUp(m *migrate.Migrate, dsn string) error {
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	v, _, _ := m.Version()
	logVersion(m, "migration complete")

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("connect for data hooks: %w", err)
	}
	defer db.Close()

	n, err := upgrade.RunPendingHooks(context.Background(), db, v)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("data hooks applied", "count", n)
	}
	return nil
}
