// Package migrate owns the schema: goose SQL files for Postgres and gorm
// AutoMigrate for sqlite.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/relivv-escrow/pkg/config"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
)

// DefaultDir is where cmd/migrate creates and validates files.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Embedded returns the SQL files compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Dialect maps the configured driver to a goose dialect.
func Dialect(cfg config.DBConfig) goose.Dialect {
	if cfg.IsSQLite() {
		return goose.DialectSQLite3
	}
	return goose.DialectPostgres
}

// Runner applies migrations from one source against one database.
type Runner struct {
	provider *goose.Provider
	logg     *logger.Logger
}

func NewRunner(db *sql.DB, dialect goose.Dialect, migrations fs.FS, logg *logger.Logger) (*Runner, error) {
	if db == nil {
		return nil, errors.New("migrate: nil database handle")
	}
	if migrations == nil {
		migrations = Embedded()
	}
	if logg == nil {
		logg = logger.Nop()
	}
	provider, err := goose.NewProvider(dialect, db, migrations)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Runner{provider: provider, logg: logg}, nil
}

// Up applies every pending migration.
func (r *Runner) Up(ctx context.Context) error {
	results, err := r.provider.Up(ctx)
	r.report(ctx, results...)
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Down rolls back the most recent migration.
func (r *Runner) Down(ctx context.Context) error {
	result, err := r.provider.Down(ctx)
	if result != nil {
		r.report(ctx, result)
	}
	if err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// To moves the schema up or down to version, given as YYYYMMDDHHMMSS.
func (r *Runner) To(ctx context.Context, version string) error {
	target, err := strconv.ParseInt(version, 10, 64)
	if err != nil || target < 0 {
		return fmt.Errorf("migrate: bad version %q, want YYYYMMDDHHMMSS", version)
	}
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("migrate: read db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case target > current:
		results, err = r.provider.UpTo(ctx, target)
	case target < current:
		results, err = r.provider.DownTo(ctx, target)
	}
	r.report(ctx, results...)
	if err != nil {
		return fmt.Errorf("migrate to %d: %w", target, err)
	}
	return nil
}

// Status logs one line per known migration.
func (r *Runner) Status(ctx context.Context) error {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return fmt.Errorf("migrate status: %w", err)
	}
	for _, st := range statuses {
		fields := map[string]any{
			"version": st.Source.Version,
			"file":    st.Source.Path,
			"state":   string(st.State),
		}
		if !st.AppliedAt.IsZero() {
			fields["applied_at"] = st.AppliedAt
		}
		r.logg.Info(r.logg.WithFields(ctx, fields), "migration status")
	}
	return nil
}

func (r *Runner) report(ctx context.Context, results ...*goose.MigrationResult) {
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		c := r.logg.WithFields(ctx, map[string]any{
			"version":     res.Source.Version,
			"file":        res.Source.Path,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
		})
		if res.Error != nil {
			r.logg.Error(c, "migration failed", res.Error)
			continue
		}
		r.logg.Info(c, "migration applied")
	}
}
