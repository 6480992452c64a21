package database

import (
	"database/sql"
	stderrors "errors"
	"strings"

	"github.com/lib/pq"
	"github.com/medlan/medlan-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	// serialization_failure, deadlock_detected, lock_not_available
	case "40001", "40P01", "55P03":
		return errors.ConcurrencyConflict("stock record is locked by another operation")

	case "23514":
		return mapCheckConstraint(pqErr)

	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	case "23503":
		return errors.BadRequest("referenced record does not exist")

	case "22P02":
		return errors.BadRequest("malformed identifier")

	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// Translate maps driver errors onto the application taxonomy. sql.ErrNoRows
// becomes NotFound for the given resource; anything unrecognised is returned unchanged.
func Translate(err error, resource string) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NotFound(resource)
	}
	if appErr := MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}

func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity") || strings.Contains(constraint, "nonnegative"):
		return errors.BusinessRuleViolation("stock quantities must not become negative")
	case strings.Contains(constraint, "branches_differ"):
		return errors.Validation(map[string]string{
			"to_branch_id": "must differ from from_branch_id",
		})
	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "document_number"):
		return "a document with this number already exists"
	default:
		return "a record with these values already exists"
	}
}
