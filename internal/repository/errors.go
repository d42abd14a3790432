package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/AFixt/meetabl-api/internal/domain"
)

// Postgres error codes that indicate a retryable condition rather than a
// logic error.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeTooManyConnections   = "53300"
)

// classify wraps lock, timeout and connection failures as TransientStoreError
// so the reservation caller can apply its bounded retry policy. Other errors
// pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.TransientStoreError{Op: op, Err: err}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable, codeTooManyConnections:
			return &domain.TransientStoreError{Op: op, Err: err}
		}
	}
	return err
}
