package repository

import (
	"context"
	"errors"
	"hash/fnv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

type txKey struct{}

// Transactor runs a function inside a database transaction. Repositories called
// with the context passed to fn join that transaction.
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type gormTransactor struct {
	db *gorm.DB
}

// NewTransactor constructs a Transactor backed by GORM.
func NewTransactor(db *gorm.DB) Transactor {
	return &gormTransactor{db: db}
}

func (t *gormTransactor) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// conn returns the transaction bound to ctx, or db scoped to ctx.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// forUpdate adds a row lock on dialects that support it.
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

// advisoryXactLock takes a transaction-scoped Postgres advisory lock. Other
// dialects rely on the caller's in-process lock and the unique index.
func advisoryXactLock(db *gorm.DB, parts ...string) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	h := fnv.New64a()
	for _, part := range parts {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}
	return db.Exec("SELECT pg_advisory_xact_lock(?)", int64(h.Sum64())).Error
}

// translate maps driver errors onto the workflow taxonomy.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errors.Join(workflow.ErrConcurrencyConflict, err)
	default:
		return err
	}
}
