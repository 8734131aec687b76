package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/relivv-escrow/pkg/config"
	"github.com/angelmondragon/relivv-escrow/pkg/migrate"
)

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestMigrationsDeclareEscrowConstraints(t *testing.T) {
	cases := map[string][]string{
		"*_create_transactions_table.sql": {
			"CREATE TABLE IF NOT EXISTS transactions",
			"version integer NOT NULL DEFAULT 1",
			"CHECK (total_amount = amount + commission)",
			"idx_transactions_release_due",
			"DROP TABLE IF EXISTS transactions",
		},
		"*_create_payment_sessions_table.sql": {
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_payment_sessions_session_id",
		},
		"*_create_invoices_table.sql": {
			"CREATE TABLE IF NOT EXISTS invoice_sequences",
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_invoices_invoice_number",
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_invoices_transaction_id",
		},
		"*_create_ledger_events_table.sql": {
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_ledger_events_transaction_type",
		},
		"*_create_outbox_tables.sql": {
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_outbox_events_event_aggregate",
			"CREATE TABLE IF NOT EXISTS outbox_dlq",
		},
	}

	for pattern, checks := range cases {
		matches, err := filepath.Glob(filepath.Join("migrations", pattern))
		if err != nil {
			t.Fatalf("glob %s: %v", pattern, err)
		}
		if len(matches) != 1 {
			t.Fatalf("expected one migration for %s, got %d", pattern, len(matches))
		}
		data, err := os.ReadFile(matches[0])
		if err != nil {
			t.Fatalf("read %s: %v", matches[0], err)
		}
		for _, sub := range checks {
			if !strings.Contains(string(data), sub) {
				t.Errorf("%s missing %q", matches[0], sub)
			}
		}
	}
}

func TestCreateSQLMigrationWritesGooseTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Dispute Notes!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_dispute_notes.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
}

func TestDialectFollowsDriver(t *testing.T) {
	if got := migrate.Dialect(config.DBConfig{Driver: "sqlite"}); got != goose.DialectSQLite3 {
		t.Fatalf("expected sqlite3, got %s", got)
	}
	if got := migrate.Dialect(config.DBConfig{Driver: "postgres"}); got != goose.DialectPostgres {
		t.Fatalf("expected postgres, got %s", got)
	}
}

func TestEmbeddedMatchesDirectory(t *testing.T) {
	embedded, err := fs.Glob(migrate.Embedded(), "*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob dir: %v", err)
	}
	if len(embedded) == 0 || len(embedded) != len(onDisk) {
		t.Fatalf("embedded %d files, directory has %d", len(embedded), len(onDisk))
	}
}

func TestNewRunnerRejectsNilDB(t *testing.T) {
	if _, err := migrate.NewRunner(nil, goose.DialectPostgres, nil, nil); err == nil {
		t.Fatal("expected error for nil db")
	}
}

func TestValidateDirRejectsBrokenFiles(t *testing.T) {
	cases := map[string]map[string]string{
		"bad name": {"add_things.sql": "-- +goose Up\n-- +goose Down\n"},
		"duplicate version": {
			"20260301090000_a.sql": "-- +goose Up\n-- +goose Down\n",
			"20260301090000_b.sql": "-- +goose Up\n-- +goose Down\n",
		},
		"missing down": {"20260301090000_a.sql": "-- +goose Up\n"},
	}
	for name, files := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			for file, body := range files {
				if err := os.WriteFile(filepath.Join(dir, file), []byte(body), 0o644); err != nil {
					t.Fatalf("write %s: %v", file, err)
				}
			}
			if err := migrate.ValidateDir(dir); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
