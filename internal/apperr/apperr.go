// Package apperr defines the error taxonomy surfaced by the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error category.
type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeConflict     Code = "CONFLICT"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeNotFound     Code = "NOT_FOUND"
	CodeInternal     Code = "INTERNAL_ERROR"
)

// FieldError describes one rejected input field.
type FieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// AppError carries everything needed to render an error response. Detail is
// what the client sees; Cause stays server side.
type AppError struct {
	Code       Code
	HTTPStatus int
	Detail     any
	Headers    map[string]string
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v (cause: %v)", e.Code, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Detail)
}

func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Validation is a 422 listing every rejected field.
func Validation(fields ...FieldError) *AppError {
	return &AppError{Code: CodeValidation, HTTPStatus: http.StatusUnprocessableEntity, Detail: fields}
}

// Conflict is reported as 400 to keep the public API's status codes.
func Conflict(msg string) *AppError {
	return &AppError{Code: CodeConflict, HTTPStatus: http.StatusBadRequest, Detail: msg}
}

// BadCredentials is the login failure: 400, no challenge header.
func BadCredentials(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, HTTPStatus: http.StatusBadRequest, Detail: msg}
}

// Unauthorized is the bearer-guard failure: 401 with a Bearer challenge.
func Unauthorized(msg string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		HTTPStatus: http.StatusUnauthorized,
		Detail:     msg,
		Headers:    map[string]string{"WWW-Authenticate": "Bearer"},
	}
}

// NotFound is a plain 404.
func NotFound(msg string) *AppError {
	return &AppError{Code: CodeNotFound, HTTPStatus: http.StatusNotFound, Detail: msg}
}

// Internal hides cause from the client behind a fixed message.
func Internal(cause error) *AppError {
	return &AppError{Code: CodeInternal, HTTPStatus: http.StatusInternalServerError, Detail: "Internal server error", Cause: cause}
}

// From returns err as an AppError, wrapping anything unknown as Internal.
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
