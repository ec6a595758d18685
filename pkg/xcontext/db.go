package xcontext

import (
	"context"

	"gorm.io/gorm"
)

type dbTransaction struct {
	tx     *gorm.DB
	parent *dbTransaction
	done   bool
}

func WithDB(ctx context.Context, db *gorm.DB) context.Context {
	return context.WithValue(ctx, dbKey{}, db)
}

// DB returns the running transaction if there is one, otherwise the root
// database handle.
func DB(ctx context.Context) *gorm.DB {
	if t, ok := ctx.Value(dbTxKey{}).(*dbTransaction); ok && t != nil && !t.done {
		return t.tx.WithContext(ctx)
	}

	return ctx.Value(dbKey{}).(*gorm.DB).WithContext(ctx)
}

// WithDBTransaction begins a transaction. If ctx already carries one, the
// returned context joins it and the outermost owner decides commit or
// rollback.
func WithDBTransaction(ctx context.Context) context.Context {
	if t, ok := ctx.Value(dbTxKey{}).(*dbTransaction); ok && t != nil && !t.done {
		return context.WithValue(ctx, dbTxKey{}, &dbTransaction{tx: t.tx, parent: t})
	}

	tx := ctx.Value(dbKey{}).(*gorm.DB).Begin()
	return context.WithValue(ctx, dbTxKey{}, &dbTransaction{tx: tx})
}

func WithCommitDBTransaction(ctx context.Context) context.Context {
	t, ok := ctx.Value(dbTxKey{}).(*dbTransaction)
	if !ok || t == nil || t.done {
		return ctx
	}

	t.done = true
	if t.parent != nil {
		return context.WithValue(ctx, dbTxKey{}, t.parent)
	}

	if err := t.tx.Commit().Error; err != nil {
		Logger(ctx).Errorf("Cannot commit transaction: %v", err)
	}

	return context.WithValue(ctx, dbTxKey{}, (*dbTransaction)(nil))
}

func WithRollbackDBTransaction(ctx context.Context) context.Context {
	t, ok := ctx.Value(dbTxKey{}).(*dbTransaction)
	if !ok || t == nil || t.done {
		return ctx
	}

	t.done = true
	if t.parent != nil {
		return context.WithValue(ctx, dbTxKey{}, t.parent)
	}

	t.tx.Rollback()
	return context.WithValue(ctx, dbTxKey{}, (*dbTransaction)(nil))
}
