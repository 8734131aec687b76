package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Base is embedded by every repository. db is either the pool or a
// transaction the caller opened; repositories never commit on their own.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base { return Base{db: db} }

// DB scopes the handle to ctx. A nil ctx returns the handle untouched.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Locked is DB plus SELECT ... FOR UPDATE. The sqlite dialect drops the
// locking clause.
func (b Base) Locked(ctx context.Context) *gorm.DB {
	return b.DB(ctx).Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

// Bind rebinds to tx; nil leaves b as is.
func (b Base) Bind(tx *gorm.DB) Base {
	if tx != nil {
		b.db = tx
	}
	return b
}

func (b Base) InTx() bool {
	if b.db == nil || b.db.Statement == nil {
		return false
	}
	_, committer := b.db.Statement.ConnPool.(gorm.TxCommitter)
	return committer
}
