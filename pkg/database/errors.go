package database

import (
	"database/sql/driver"
	goerrors "errors"
	"strings"

	"github.com/lib/pq"

	"github.com/kirana/kirana-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not recognized.
func MapPQError(err error) *errors.AppError {
	if err == nil {
		return nil
	}

	if goerrors.Is(err, driver.ErrBadConn) {
		return errors.StoreUnavailable(err)
	}

	var pqErr *pq.Error
	if !goerrors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	// Serialization failure (40001) and deadlock (40P01): the transaction
	// lost a concurrency race and can be retried with the original delta.
	case "40001", "40P01":
		return errors.StoreConflict(err)

	// Lock not available (55P03)
	case "55P03":
		return errors.StoreConflict(err)

	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict("a record with these values already exists")

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})
	}

	// Connection exceptions (class 08) mean the store itself is unreachable.
	if strings.HasPrefix(string(pqErr.Code), "08") {
		return errors.StoreUnavailable(err)
	}

	return nil
}

// IsConflict reports whether err is a retryable concurrency conflict.
func IsConflict(err error) bool {
	if goerrors.Is(err, errors.ErrStoreConflict) {
		return true
	}
	if mapped := MapPQError(err); mapped != nil {
		return goerrors.Is(mapped, errors.ErrStoreConflict)
	}
	return false
}

// mapCheckConstraint maps CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity_non_negative"):
		return errors.Validation(map[string]string{
			"quantity": "must not be negative",
		})

	case strings.Contains(constraint, "remaining_non_negative"):
		return errors.Validation(map[string]string{
			"remaining": "must not be negative",
		})

	case strings.Contains(constraint, "unit_price_non_negative"):
		return errors.Validation(map[string]string{
			"unit_price": "must not be negative",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}
