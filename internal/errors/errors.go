// Package errors provides structured error types for greenroom.
package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for greenroom.
const (
	// Lookup errors
	CodeProjectNotFound Code = "PROJECT_NOT_FOUND"
	CodeTaskNotFound    Code = "TASK_NOT_FOUND"
	CodeAttemptNotFound Code = "ATTEMPT_NOT_FOUND"
	CodeRepoNotFound    Code = "REPO_NOT_FOUND"
	CodeProcessNotFound Code = "PROCESS_NOT_FOUND"

	// Validation errors
	CodeValidation    Code = "VALIDATION_FAILED"
	CodeEmptyRepoList Code = "EMPTY_REPO_LIST"

	// Config errors
	CodeConfigInvalid Code = "CONFIG_INVALID"
	CodeConfigMissing Code = "CONFIG_MISSING"

	// Infrastructure errors
	CodeGitFailed   Code = "GIT_FAILED"
	CodeStoreFailed Code = "STORE_FAILED"
)

// Category groups error codes for HTTP status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryBadRequest
	CategoryConflict
	CategoryInternal
)

// codeCategories maps error codes to their categories.
var codeCategories = map[Code]Category{
	CodeProjectNotFound: CategoryNotFound,
	CodeTaskNotFound:    CategoryNotFound,
	CodeAttemptNotFound: CategoryNotFound,
	CodeRepoNotFound:    CategoryNotFound,
	CodeProcessNotFound: CategoryNotFound,
	CodeValidation:      CategoryBadRequest,
	CodeEmptyRepoList:   CategoryBadRequest,
	CodeConfigInvalid:   CategoryBadRequest,
	CodeConfigMissing:   CategoryBadRequest,
	CodeGitFailed:       CategoryInternal,
	CodeStoreFailed:     CategoryInternal,
}

// HTTPStatus returns the HTTP status code for a category.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryNotFound:
		return 404
	case CategoryBadRequest:
		return 400
	case CategoryConflict:
		return 409
	default:
		return 500
	}
}

// AppError is the structured error type for greenroom.
//
// Business-state outcomes (merge conflicts, push rejections, an already
// running process) are NOT AppErrors: they travel as typed payloads in the
// API envelope. AppError covers validation, lookup, and infrastructure
// failures that map to HTTP error statuses.
type AppError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Category returns the error category for HTTP status mapping.
func (e *AppError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *AppError) HTTPStatus() int {
	return e.Category().HTTPStatus()
}

// MarshalJSON implements json.Marshaler.
func (e *AppError) MarshalJSON() ([]byte, error) {
	type alias AppError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *AppError) WithCause(err error) *AppError {
	return &AppError{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Cause: err,
	}
}

// --- Error constructors ---

// ErrProjectNotFound returns an error when a project doesn't exist.
func ErrProjectNotFound(id string) *AppError {
	return &AppError{
		Code: CodeProjectNotFound,
		What: fmt.Sprintf("project %s not found", id),
	}
}

// ErrTaskNotFound returns an error when a task doesn't exist.
func ErrTaskNotFound(id string) *AppError {
	return &AppError{
		Code: CodeTaskNotFound,
		What: fmt.Sprintf("task %s not found", id),
	}
}

// ErrAttemptNotFound returns an error when an attempt doesn't exist.
func ErrAttemptNotFound(id string) *AppError {
	return &AppError{
		Code: CodeAttemptNotFound,
		What: fmt.Sprintf("attempt %s not found", id),
	}
}

// ErrRepoNotFound returns an error when a repo doesn't exist or is not
// linked to the attempt under operation.
func ErrRepoNotFound(id string) *AppError {
	return &AppError{
		Code: CodeRepoNotFound,
		What: fmt.Sprintf("repo %s not found", id),
	}
}

// ErrProcessNotFound returns an error when an execution process doesn't exist.
func ErrProcessNotFound(id string) *AppError {
	return &AppError{
		Code: CodeProcessNotFound,
		What: fmt.Sprintf("execution process %s not found", id),
	}
}

// ErrValidation returns a generic validation error.
func ErrValidation(reason string) *AppError {
	return &AppError{
		Code: CodeValidation,
		What: "validation failed",
		Why:  reason,
	}
}

// ErrEmptyRepoList rejects attempt creation with no repos.
func ErrEmptyRepoList() *AppError {
	return &AppError{
		Code: CodeEmptyRepoList,
		What: "attempt must include at least one repo",
		Why:  "an attempt's worktree set is built from its linked repos",
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(field, reason string) *AppError {
	return &AppError{
		Code: CodeConfigInvalid,
		What: fmt.Sprintf("invalid configuration: %s", field),
		Why:  reason,
	}
}

// ErrConfigMissing returns an error for missing configuration.
func ErrConfigMissing(field string) *AppError {
	return &AppError{
		Code: CodeConfigMissing,
		What: fmt.Sprintf("missing required configuration: %s", field),
	}
}

// AsAppError attempts to convert an error to an AppError.
// Returns nil if the error is not an AppError.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if As(err, &appErr) {
		return appErr
	}
	return nil
}

// As is a convenience wrapper for errors.As semantics on AppError.
func As(err error, target any) bool {
	return asError(err, target)
}

func asError(err error, target any) bool {
	if err == nil {
		return false
	}
	if appErr, ok := err.(*AppError); ok {
		if t, ok := target.(**AppError); ok {
			*t = appErr
			return true
		}
	}
	if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
		return asError(unwrapper.Unwrap(), target)
	}
	return false
}

// Wrap wraps a generic error into an AppError with unknown code.
func Wrap(err error, what string) *AppError {
	return &AppError{
		Code:  Code("UNKNOWN"),
		What:  what,
		Cause: err,
	}
}
