package db

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// WithTx starts a transaction, runs fn, and commits if fn returns nil.
// If fn returns an error or panics, the transaction is rolled back.
//
//	err := db.WithTx(ctx, sqlDB, nil, func(tx *sql.Tx) error {
//	    // use tx.ExecContext / tx.QueryContext ...
//	    return nil
//	})
func WithTx(ctx context.Context, d *sql.DB, opts *sql.TxOptions, fn func(*sql.Tx) error) (err error) {
	if d == nil {
		return errors.New("db: nil database")
	}
	tx, err := d.BeginTx(ctx, opts)
	if err != nil {
		return errors.Wrap(err, "db: begin tx")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if e := tx.Commit(); e != nil {
			err = errors.Wrap(e, "db: commit")
		}
	}()
	err = fn(tx)
	return
}
