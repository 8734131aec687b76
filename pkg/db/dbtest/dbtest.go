// Package dbtest opens throwaway sqlite databases with the full schema for tests.
package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/relivv-escrow/pkg/db"
	"github.com/angelmondragon/relivv-escrow/pkg/migrate"
)

// Open returns a fresh in-memory database. A single connection keeps
// concurrent tests deterministic, since sqlite serialises writers anyway.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:test_" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrate.AutoMigrateModels(conn); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}

// OpenClient wraps Open in the shared db.Client.
func OpenClient(t testing.TB) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.FromConn(conn), conn
}
