package db

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/pkg/config"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:db_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := FromConn(db)

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestNewOpensSQLiteDriver(t *testing.T) {
	client, err := New(context.Background(), config.DBConfig{
		Driver: config.DBDriverSQLite,
		DSN:    "file:dbnew_" + uuid.NewString() + "?mode=memory&cache=shared",
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestNewRequiresDSN(t *testing.T) {
	if _, err := New(context.Background(), config.DBConfig{}, nil); err == nil {
		t.Fatal("expected missing dsn error")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_invoices_transaction_id"}
	if !IsUniqueViolation(pgErr, "ux_invoices_transaction_id") {
		t.Fatal("expected pg unique violation to match constraint")
	}
	if IsUniqueViolation(pgErr, "other_constraint") {
		t.Fatal("expected constraint mismatch to be rejected")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatal("foreign key violation is not a unique violation")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: cart_items.buyer_id"), "") {
		t.Fatal("expected sqlite unique message to match")
	}
	if IsUniqueViolation(nil, "") {
		t.Fatal("nil is never a violation")
	}
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	client := FromConn(db)

	func() {
		defer func() { _ = recover() }()
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			tx.Create(&testModel{Name: "doomed"})
			panic("boom")
		})
	}()

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected panic to roll back, got %d rows", count)
	}
}

func TestQueryLoggerReportsFailuresAndSlowQueries(t *testing.T) {
	buf := &bytes.Buffer{}
	q := queryLogger{logg: logger.New(logger.Options{Output: buf})}
	stmt := func() (string, int64) { return "SELECT 1", 1 }

	q.Trace(context.Background(), time.Now(), stmt, nil)
	q.Trace(context.Background(), time.Now(), stmt, gorm.ErrRecordNotFound)
	if buf.Len() != 0 {
		t.Fatalf("fast and not-found queries should be silent, got %s", buf.String())
	}

	q.Trace(context.Background(), time.Now().Add(-time.Second), stmt, nil)
	if !strings.Contains(buf.String(), "db.query_slow") {
		t.Fatalf("expected slow query warning, got %s", buf.String())
	}
	buf.Reset()
	q.Trace(context.Background(), time.Now(), stmt, errors.New("UNIQUE constraint failed"))
	if !strings.Contains(buf.String(), "db.query_failed") || !strings.Contains(buf.String(), "SELECT 1") {
		t.Fatalf("expected failed query warning, got %s", buf.String())
	}
}
