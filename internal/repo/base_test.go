package repo

import (
	"context"
	"testing"

	"github.com/angelmondragon/relivv-escrow/pkg/db/dbtest"
	"gorm.io/gorm"
)

func TestNewBaseStoresConnection(t *testing.T) {
	db := dbtest.Open(t)
	base := NewBase(db)

	if base.db != db {
		t.Fatalf("expected base db to match provided connection")
	}
	if base.InTx() {
		t.Fatalf("pool connection must not report a transaction")
	}
}

func TestBaseDB_BindsContext(t *testing.T) {
	db := dbtest.Open(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), struct{}{}, "value")
	withCtx := base.DB(ctx)
	if withCtx.Statement == nil || withCtx.Statement.Context != ctx {
		t.Fatalf("expected context to flow through")
	}

	if base.DB(nil) != db {
		t.Fatalf("expected nil context to return raw connection")
	}
}

func TestBaseBindUsesTransaction(t *testing.T) {
	db := dbtest.Open(t)
	base := NewBase(db)

	if got := base.Bind(nil); got.db != db {
		t.Fatalf("nil tx must keep the pool")
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		bound := base.Bind(tx)
		if bound.db != tx {
			t.Fatalf("expected tx to be bound")
		}
		if !bound.InTx() {
			t.Fatalf("expected bound base to report a transaction")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestLockedAddsRowLock(t *testing.T) {
	db := dbtest.Open(t)
	locked := NewBase(db).Locked(context.Background())

	if _, ok := locked.Statement.Clauses["FOR"]; !ok {
		t.Fatalf("expected a FOR clause on the statement")
	}
}
