package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Base is embedded by engine repositories that share one connection and
// rebind it to a caller's transaction.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection bound to ctx.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// WithTx returns a copy bound to tx. A nil tx keeps the current handle.
func (b Base) WithTx(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// Locked is DB with SELECT ... FOR UPDATE on dialects that support row
// locks. SQLite serializes writers already and rejects the clause.
func (b Base) Locked(ctx context.Context) *gorm.DB {
	conn := b.DB(ctx)
	if !supportsRowLocks(conn) {
		return conn
	}
	return conn.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

func supportsRowLocks(conn *gorm.DB) bool {
	if conn == nil || conn.Dialector == nil {
		return false
	}
	return conn.Dialector.Name() == "postgres"
}

// UpdateVersioned writes every column of row except id and created_at when
// the stored version still equals *version, then bumps *version. A stale
// version leaves *version untouched and returns gorm.ErrRecordNotFound.
func (b Base) UpdateVersioned(ctx context.Context, row any, id uuid.UUID, version *int) error {
	expected := *version
	*version = expected + 1
	res := b.DB(ctx).
		Model(row).
		Where("id = ? AND version = ?", id, expected).
		Select("*").
		Omit("id", "created_at", clause.Associations).
		Updates(row)
	switch {
	case res.Error != nil:
		*version = expected
		return res.Error
	case res.RowsAffected == 0:
		*version = expected
		return gorm.ErrRecordNotFound
	}
	return nil
}
