package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(&pgconn.PgError{Code: "40001"}))
	require.True(t, IsRetryable(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40P01"})))
	require.False(t, IsRetryable(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsRetryable(errors.New("boom")))
}

func TestTransactionRetriesConflicts(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:tx_retry?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	attempts := 0
	err = Transaction(context.Background(), conn, func(tx *gorm.DB) error {
		attempts++
		if attempts < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)

	attempts = 0
	err = Transaction(context.Background(), conn, func(tx *gorm.DB) error {
		attempts++
		return &pgconn.PgError{Code: "40P01"}
	})
	require.Error(t, err)
	require.Equal(t, maxTxAttempts, attempts)

	attempts = 0
	err = Transaction(context.Background(), conn, func(tx *gorm.DB) error {
		attempts++
		return errors.New("not retryable")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}
