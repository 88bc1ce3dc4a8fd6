// Package apperror normalizes every failure the API can produce into a coded
// error with a user-facing message and a severity, and renders it as JSON.
package apperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
)

// Severity ranks how loudly an error should be surfaced.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Code identifies a class of failure.
type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeGateFailed         Code = "GATE_FAILED"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeDatabase           Code = "DATABASE_ERROR"
	CodeInternal           Code = "INTERNAL_ERROR"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
)

type codeInfo struct {
	status   int
	severity Severity
	message  string
}

var codeTable = map[Code]codeInfo{
	CodeValidation:         {http.StatusBadRequest, SeverityLow, "Please check the submitted information and try again."},
	CodeUnauthorized:       {http.StatusUnauthorized, SeverityMedium, "Your session has expired. Please sign in again."},
	CodeForbidden:          {http.StatusForbidden, SeverityMedium, "You do not have permission to perform this action."},
	CodeNotFound:           {http.StatusNotFound, SeverityLow, "The requested record could not be found."},
	CodeConflict:           {http.StatusConflict, SeverityMedium, "This record conflicts with an existing one."},
	CodeGateFailed:         {http.StatusUnprocessableEntity, SeverityMedium, "Required checks have not been completed."},
	CodeRateLimited:        {http.StatusTooManyRequests, SeverityLow, "Too many requests. Please slow down."},
	CodeDatabase:           {http.StatusInternalServerError, SeverityHigh, "A database error occurred. Please try again later."},
	CodeInternal:           {http.StatusInternalServerError, SeverityCritical, "An unexpected error occurred."},
	CodeServiceUnavailable: {http.StatusServiceUnavailable, SeverityHigh, "The service is temporarily unavailable."},
}

// AppError is the normalized error returned by services and rendered by the
// HTTP error handler.
type AppError struct {
	Code     Code     `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Status   int      `json:"-"`
	Err      error    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// New builds an AppError for code. An empty message uses the code's default.
// Unknown codes are treated as internal errors.
func New(code Code, message string) *AppError {
	info, ok := codeTable[code]
	if !ok {
		code = CodeInternal
		info = codeTable[CodeInternal]
	}
	if message == "" {
		message = info.message
	}
	return &AppError{Code: code, Message: message, Severity: info.severity, Status: info.status}
}

// Wrap is New with an underlying cause attached.
func Wrap(code Code, message string, err error) *AppError {
	e := New(code, message)
	e.Err = err
	return e
}

func Validation(format string, args ...interface{}) *AppError {
	return New(CodeValidation, fmt.Sprintf(format, args...))
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, resource+" not found")
}

func Conflict(format string, args ...interface{}) *AppError {
	return New(CodeConflict, fmt.Sprintf(format, args...))
}

func Forbidden(message string) *AppError {
	return New(CodeForbidden, message)
}

func GateFailed(format string, args ...interface{}) *AppError {
	return New(CodeGateFailed, fmt.Sprintf(format, args...))
}

// DefaultMessage returns the user-facing message registered for code.
func DefaultMessage(code Code) string {
	if info, ok := codeTable[code]; ok {
		return info.message
	}
	return codeTable[CodeInternal].message
}

// PostgreSQL SQLSTATE codes mapped to client errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgNotNullViolation    = "23502"
)

// Normalize converts any error into an AppError.
func Normalize(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return fromHTTPError(httpErr)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return Wrap(CodeNotFound, "", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return Wrap(CodeConflict, "a record with the same "+constraintSubject(pgErr)+" already exists", err)
		case pgForeignKeyViolation:
			return Wrap(CodeValidation, "referenced record does not exist", err)
		case pgCheckViolation, pgNotNullViolation:
			return Wrap(CodeValidation, "", err)
		}
		return Wrap(CodeDatabase, "", err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(CodeServiceUnavailable, "the request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(CodeServiceUnavailable, "the request was cancelled", err)
	}

	return Wrap(CodeInternal, "", err)
}

func constraintSubject(pgErr *pgconn.PgError) string {
	if pgErr.ConstraintName != "" {
		return pgErr.ConstraintName
	}
	return "key"
}

func fromHTTPError(he *echo.HTTPError) *AppError {
	var code Code
	switch he.Code {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		code = CodeValidation
	case http.StatusUnauthorized:
		code = CodeUnauthorized
	case http.StatusForbidden:
		code = CodeForbidden
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		code = CodeNotFound
	case http.StatusConflict:
		code = CodeConflict
	case http.StatusUnprocessableEntity:
		code = CodeGateFailed
	case http.StatusTooManyRequests:
		code = CodeRateLimited
	case http.StatusServiceUnavailable:
		code = CodeServiceUnavailable
	default:
		code = CodeInternal
	}
	e := New(code, fmt.Sprintf("%v", he.Message))
	e.Status = he.Code
	e.Err = he.Internal
	return e
}

// IsCode reports whether err normalizes to code.
func IsCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return Normalize(err).Code == code
}
