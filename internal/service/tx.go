package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AdamBeresnev/tourney/internal/store"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

const maxTxAttempts = 5

// inTx runs fn inside a transaction that is committed only if fn succeeds.
func inTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// inTxWithRetry reruns the whole read-check-write sequence when a revision check fails
// or sqlite reports the database as busy.
func inTxWithRetry(ctx context.Context, db *sqlx.DB, op string, fn func(tx *sqlx.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = inTx(ctx, db, fn)
		if err == nil || !retryable(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		slog.Debug("retrying transaction", "op", op, "attempt", attempt, "error", err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
}

func retryable(err error) bool {
	if errors.Is(err, store.ErrStaleRevision) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
