package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxTxAttempts = 3

// Postgres SQLSTATEs that are safe to retry from the top of the transaction.
var retryableCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
}

// IsRetryable reports whether err is a transient conflict raised by the database.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return retryableCodes[pgErr.Code]
	}
	return false
}

// Transaction runs fn in a transaction and re-runs it on serialization or
// deadlock failures. fn must not have side effects outside tx.
func Transaction(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = db.WithContext(ctx).Transaction(fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
		zap.L().Warn("[DB] transaction conflict, retrying", zap.Int("attempt", attempt), zap.Error(err))
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}
