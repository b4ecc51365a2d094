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
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/mercadoclaw/internal/upgrade"
)

var migrationsDir string

// resolveMigrationsDir picks the flag, then MERCADO_MIGRATIONS_DIR, then
// ./migrations, then migrations/ next to the binary.
func resolveMigrationsDir() string {
	if migrationsDir != "" {
		return migrationsDir
	}
	if v := os.Getenv("MERCADO_MIGRATIONS_DIR"); v != "" {
		return v
	}
	if st, err := os.Stat("migrations"); err == nil && st.IsDir() {
		return "migrations"
	}
	exe, err := os.Executable()
	if err != nil {
		return "migrations"
	}
	return filepath.Join(filepath.Dir(exe), "migrations")
}

func resolveDSN() (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.Database.PostgresDSN == "" {
		return "", errors.New("MERCADO_POSTGRES_DSN environment variable is not set")
	}
	return cfg.Database.PostgresDSN, nil
}

// withCatalogDB opens the migrator and a plain connection on the catalog
// database for the duration of fn.
func withCatalogDB(fn func(m *migrate.Migrate, db *sql.DB) error) error {
	dsn, err := resolveDSN()
	if err != nil {
		return err
	}
	m, err := migrate.New("file://"+resolveMigrationsDir(), dsn)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()
	return fn(m, db)
}

// applyHooks runs the data hooks due at version and prints one line each.
// A failing hook does not fail the command: its SQL step is committed and
// the next `migrate up` retries it.
func applyHooks(ctx context.Context, db *sql.DB, version uint) {
	results, err := upgrade.RunPendingHooks(ctx, db, version)
	for _, r := range results {
		fmt.Printf("  hook %-32s v%d  %d rows  %s\n", r.Name, r.Version, r.Rows, r.Duration.Round(time.Millisecond))
	}
	if err != nil {
		slog.Warn("upgrade.data_hooks.failed", "error", err)
		fmt.Printf("  hook failed: %v\n", err)
	}
}

// printCatalogStatus summarizes the schema against this binary and what the
// catalog tables hold. Tables not created yet are skipped.
func printCatalogStatus(ctx context.Context, db *sql.DB) {
	s := upgrade.CheckSchema(ctx, db)
	state := "up to date"
	if err := s.Err(); err != nil {
		state = err.Error()
	}
	fmt.Printf("%-20s v%d, dirty: %v (%s)\n", "schema:", s.CurrentVersion, s.Dirty, state)

	var n int64
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM products").Scan(&n); err == nil {
		fmt.Printf("%-20s %d\n", "products:", n)
	}
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM products WHERE nome_normalizado IS NULL").Scan(&n); err == nil && n > 0 {
		fmt.Printf("%-20s %d without normalized name\n", "", n)
	}
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM product_embeddings WHERE embedding IS NULL").Scan(&n); err == nil {
		fmt.Printf("%-20s %d (run: mercadoclaw catalog embed)\n", "embeddings pending:", n)
	}
	if pending, err := upgrade.PendingHooks(ctx, db); err == nil {
		fmt.Printf("%-20s %d\n", "data hooks pending:", len(pending))
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the catalog database schema",
	}
	cmd.PersistentFlags().StringVar(&migrationsDir, "migrations-dir", "", "path to migrations directory (default: ./migrations)")

	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateDownCmd())
	cmd.AddCommand(migrateStatusCmd())
	cmd.AddCommand(migrateForceCmd())
	cmd.AddCommand(migrateGotoCmd())
	cmd.AddCommand(migrateDropCmd())
	return cmd
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations and data hooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalogDB(func(m *migrate.Migrate, db *sql.DB) error {
				if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("migrate up: %w", err)
				}
				v, dirty, _ := m.Version()
				slog.Info("migrate.up.done", "version", v, "dirty", dirty, "required", upgrade.RequiredSchemaVersion)

				applyHooks(cmd.Context(), db, v)
				printCatalogStatus(cmd.Context(), db)
				return nil
			})
		},
	}
}

func migrateDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (default: 1 step)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				steps = 1
			}
			return withCatalogDB(func(m *migrate.Migrate, db *sql.DB) error {
				if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("migrate down: %w", err)
				}
				v, dirty, _ := m.Version()
				slog.Info("migrate.down.done", "version", v, "dirty", dirty)
				if v < upgrade.RequiredSchemaVersion {
					fmt.Printf("schema is now v%d; this binary requires v%d and `serve` will warn until `migrate up`\n", v, upgrade.RequiredSchemaVersion)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of steps to roll back")
	return cmd
}

func migrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Aliases: []string{"version"},
		Short:   "Show schema version, catalog size and pending work",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalogDB(func(_ *migrate.Migrate, db *sql.DB) error {
				if err := db.PingContext(cmd.Context()); err != nil {
					return fmt.Errorf("ping postgres: %w", err)
				}
				printCatalogStatus(cmd.Context(), db)
				return nil
			})
		},
	}
}

func migrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Mark a version as applied without running it (clears dirty state)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version: %w", err)
			}
			return withCatalogDB(func(m *migrate.Migrate, _ *sql.DB) error {
				if err := m.Force(version); err != nil {
					return fmt.Errorf("force version: %w", err)
				}
				slog.Info("migrate.force.done", "version", version)
				return nil
			})
		},
	}
}

func migrateGotoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "goto <version>",
		Short: "Migrate up or down to a specific version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid version: %w", err)
			}
			return withCatalogDB(func(m *migrate.Migrate, db *sql.DB) error {
				if err := m.Migrate(uint(version)); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("migrate goto: %w", err)
				}
				slog.Info("migrate.goto.done", "version", version)
				applyHooks(cmd.Context(), db, uint(version))
				return nil
			})
		},
	}
}

func migrateDropCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop every catalog table, including products and analytics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to drop the catalog without --yes")
			}
			return withCatalogDB(func(m *migrate.Migrate, _ *sql.DB) error {
				if err := m.Drop(); err != nil {
					return fmt.Errorf("drop: %w", err)
				}
				slog.Warn("migrate.drop.done")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm dropping all tables")
	return cmd
}
