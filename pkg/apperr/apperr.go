// Package apperr defines the structured failures lifecycle operations
// return to their callers. Handlers translate these into HTTP responses;
// nothing in the core panics on a validation failure.
package apperr

import "fmt"

// Code identifies a failure class. Stable strings, safe for clients to
// switch on.
type Code string

const (
	CodeForbiddenRole     Code = "FORBIDDEN_ROLE"
	CodeForbidden         Code = "FORBIDDEN"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeInvalidStatus     Code = "INVALID_STATUS"
	CodeInvalidReference  Code = "INVALID_REFERENCE"
	CodeDuplicateProposal Code = "DUPLICATE_PROPOSAL"
	CodeAlreadyReviewed   Code = "ALREADY_REVIEWED"
	CodeAlreadyAccepted   Code = "ALREADY_ACCEPTED"
	CodeMissingField      Code = "MISSING_FIELD"
	CodeNotFound          Code = "NOT_FOUND"
	CodeStorage           Code = "STORAGE_ERROR"
)

// Error is a structured operation failure. Field is set only for
// MISSING_FIELD errors and names the absent input.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for STORAGE_ERROR values.
func (e *Error) Unwrap() error { return e.cause }

/* ============================ Constructors ============================== */

func ForbiddenRole(msg string) *Error {
	return &Error{Code: CodeForbiddenRole, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg}
}

func InvalidTransition(msg string) *Error {
	return &Error{Code: CodeInvalidTransition, Message: msg}
}

func InvalidStatus(msg string) *Error {
	return &Error{Code: CodeInvalidStatus, Message: msg}
}

func InvalidReference(msg string) *Error {
	return &Error{Code: CodeInvalidReference, Message: msg}
}

func DuplicateProposal() *Error {
	return &Error{Code: CodeDuplicateProposal, Message: "you have already submitted a proposal for this case"}
}

func AlreadyReviewed() *Error {
	return &Error{Code: CodeAlreadyReviewed, Message: "this proposal has already been reviewed"}
}

func AlreadyAccepted() *Error {
	return &Error{Code: CodeAlreadyAccepted, Message: "this case has already been accepted by another lawyer"}
}

func MissingField(field string) *Error {
	return &Error{Code: CodeMissingField, Message: "required field is missing", Field: field}
}

func NotFound(what string) *Error {
	return &Error{Code: CodeNotFound, Message: what + " not found"}
}

// Storage wraps an unexpected persistence failure. The caller must treat
// the enclosing operation as not applied.
func Storage(err error) *Error {
	return &Error{Code: CodeStorage, Message: "storage failure", cause: err}
}

// HTTPStatus maps a failure class to its response status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeForbiddenRole, CodeForbidden:
		return 403
	case CodeNotFound:
		return 404
	case CodeInvalidTransition, CodeDuplicateProposal, CodeAlreadyReviewed, CodeAlreadyAccepted:
		return 409
	case CodeInvalidStatus, CodeInvalidReference, CodeMissingField:
		return 422
	default:
		return 500
	}
}
