package repository

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/jackc/pgx/v5"

	"github.com/hray3182/nudge/internal/database"
)

// Postgres is the Store backed by a pgx pool.
type Postgres struct {
	db     *database.DB
	closed atomic.Bool
}

var _ Store = (*Postgres)(nil)

func NewPostgres(db *database.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Close() error {
	if p.closed.CompareAndSwap(false, true) {
		p.db.Close()
	}
	return nil
}

func (p *Postgres) check(op string) error {
	if p == nil || p.db == nil || p.closed.Load() {
		return &StorageError{Op: op, Err: errors.New("store is closed")}
	}
	return nil
}

// inTx runs fn in a transaction and commits when it returns nil.
func (p *Postgres) inTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	if err := p.check(op); err != nil {
		return err
	}
	tx, err := p.db.Pool.Begin(ctx)
	if err != nil {
		return Unavailable(op, err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return Unavailable(op, err)
	}
	return Unavailable(op, tx.Commit(ctx))
}
