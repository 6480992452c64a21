package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// Standard error types
var (
	ErrNotFound               = errors.New("resource not found")
	ErrBadRequest             = errors.New("bad request")
	ErrConflict               = errors.New("resource conflict")
	ErrInternal               = errors.New("internal server error")
	ErrValidation             = errors.New("validation error")
	ErrBusinessRule           = errors.New("business rule violation")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrConcurrencyConflict    = errors.New("concurrency conflict")
	ErrIntegrityDrift         = errors.New("integrity drift")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// BusinessRuleViolation reports a request that is well-formed but not allowed
// by the current state of the books.
func BusinessRuleViolation(message string) *AppError {
	return &AppError{
		Err:        ErrBusinessRule,
		Code:       "BUSINESS_RULE_VIOLATION",
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// InvalidStateTransition reports an action that the entity's transition table
// does not allow from its current status. It also matches ErrBusinessRule.
func InvalidStateTransition(entity, from, action string) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %w", ErrInvalidStateTransition, ErrBusinessRule),
		Code:       "INVALID_STATE_TRANSITION",
		Message:    fmt.Sprintf("cannot %s %s in status %s", action, entity, from),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"entity": entity,
			"status": from,
			"action": action,
		},
	}
}

// InsufficientStock reports that eligible stock cannot cover a request.
func InsufficientStock(productID, branchID string, requested, available int) *AppError {
	return &AppError{
		Err:        ErrInsufficientStock,
		Code:       "INSUFFICIENT_STOCK",
		Message:    fmt.Sprintf("insufficient stock: requested %d, available %d", requested, available),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"product_id": productID,
			"branch_id":  branchID,
			"requested":  strconv.Itoa(requested),
			"available":  strconv.Itoa(available),
		},
	}
}

// ConcurrencyConflict reports lock contention or a lost update. Safe to retry.
func ConcurrencyConflict(message string) *AppError {
	return &AppError{
		Err:        ErrConcurrencyConflict,
		Code:       "CONCURRENCY_CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// IntegrityDrift reports that a stock aggregate no longer matches its lots.
func IntegrityDrift(productID, branchID string, details map[string]string) *AppError {
	d := map[string]string{
		"product_id": productID,
		"branch_id":  branchID,
	}
	for k, v := range details {
		d[k] = v
	}
	return &AppError{
		Err:        ErrIntegrityDrift,
		Code:       "INTEGRITY_DRIFT",
		Message:    "stock aggregate does not match lot ledger",
		StatusCode: http.StatusInternalServerError,
		Details:    d,
	}
}

// IsRetryable reports whether the operation that produced err may be re-run as is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
