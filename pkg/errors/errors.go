package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types
var (
	ErrNotFound           = errors.New("resource not found")
	ErrBadRequest         = errors.New("bad request")
	ErrConflict           = errors.New("resource conflict")
	ErrInternal           = errors.New("internal server error")
	ErrValidation         = errors.New("validation error")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrUnknownProduct     = errors.New("unknown product")
	ErrMissingProductInfo = errors.New("missing product info")
	ErrStoreConflict      = errors.New("store conflict")
	ErrStoreUnavailable   = errors.New("store unavailable")
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

// Ledger error constructors

// InvalidQuantity signals a zero or negative count where a positive one is required.
func InvalidQuantity(message string) *AppError {
	return &AppError{
		Err:        ErrInvalidQuantity,
		Code:       "INVALID_QUANTITY",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// InsufficientStock signals a sale that would drive the aggregate quantity negative.
func InsufficientStock(barcode string, have, want int) *AppError {
	return &AppError{
		Err:        ErrInsufficientStock,
		Code:       "INSUFFICIENT_STOCK",
		Message:    fmt.Sprintf("product %s has %d in stock, cannot deduct %d", barcode, have, want),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"barcode":   barcode,
			"available": fmt.Sprintf("%d", have),
			"requested": fmt.Sprintf("%d", want),
		},
	}
}

// UnknownProduct signals a sale or correction against an unregistered barcode.
func UnknownProduct(barcode string) *AppError {
	return &AppError{
		Err:        ErrUnknownProduct,
		Code:       "UNKNOWN_PRODUCT",
		Message:    fmt.Sprintf("no product registered for barcode %s", barcode),
		StatusCode: http.StatusNotFound,
	}
}

// MissingProductInfo signals an intake of a brand-new barcode with no resolvable name.
func MissingProductInfo(barcode string) *AppError {
	return &AppError{
		Err:        ErrMissingProductInfo,
		Code:       "MISSING_PRODUCT_INFO",
		Message:    fmt.Sprintf("no name could be resolved for new barcode %s", barcode),
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// StoreConflict signals a lost concurrency race against the store.
// The ledger retries these internally before surfacing them.
func StoreConflict(err error) *AppError {
	return &AppError{
		Err:        ErrStoreConflict,
		Code:       "STORE_CONFLICT",
		Message:    fmt.Sprintf("transaction lost a concurrency race: %v", err),
		StatusCode: http.StatusConflict,
	}
}

// StoreUnavailable signals a transport or backend failure.
func StoreUnavailable(err error) *AppError {
	return &AppError{
		Err:        ErrStoreUnavailable,
		Code:       "STORE_UNAVAILABLE",
		Message:    fmt.Sprintf("store unavailable: %v", err),
		StatusCode: http.StatusServiceUnavailable,
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
