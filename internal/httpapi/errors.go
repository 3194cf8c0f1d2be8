package httpapi

import (
	"errors"
	"fmt"

	"github.com/joelkehle/bizfinder/internal/export"
	"github.com/joelkehle/bizfinder/internal/lookup"
	"github.com/joelkehle/bizfinder/internal/session"
)

const (
	CodeValidation   = "validation"
	CodeUnauthorized = "unauthorized"
	CodeNotFound     = "not_found"
	CodeRejected     = "rejected"
	CodeBusy         = "busy"
	CodeUpstream     = "upstream"
	CodeUnavailable  = "unavailable"
	CodeInternal     = "internal"
)

type Error struct {
	Code      string
	Message   string
	Transient bool
	Status    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func statusForCode(code string) int {
	switch code {
	case CodeValidation:
		return 400
	case CodeUnauthorized:
		return 401
	case CodeNotFound:
		return 404
	case CodeRejected, CodeBusy:
		return 409
	case CodeUpstream:
		return 502
	case CodeUnavailable:
		return 503
	default:
		return 500
	}
}

func newError(code, message string, transient bool) *Error {
	return &Error{Code: code, Message: message, Transient: transient, Status: statusForCode(code)}
}

func newValidationJSONError(err error) *Error {
	return newError(CodeValidation, "invalid json: "+err.Error(), false)
}

// toAPIError maps controller and lookup outcomes onto the wire envelope.
func toAPIError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	var failure *session.Failure
	switch {
	case errors.Is(err, session.ErrMissingInput), errors.Is(err, session.ErrInvalidViewMode):
		return newError(CodeValidation, err.Error(), false)
	case errors.Is(err, session.ErrHistoryNotFound), errors.Is(err, export.ErrNoRecords):
		return newError(CodeNotFound, err.Error(), false)
	case errors.Is(err, session.ErrConfirmationRequired), errors.Is(err, session.ErrNotActive):
		return newError(CodeRejected, err.Error(), false)
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrSuperseded):
		return newError(CodeBusy, err.Error(), true)
	case errors.As(err, &failure):
		if lookup.IsAuthFailure(failure.Err) {
			return newError(CodeUnauthorized, failure.Message, false)
		}
		var le *lookup.Error
		transient := errors.As(failure.Err, &le) && le.Transient()
		return newError(CodeUpstream, failure.Message, transient)
	default:
		return newError(CodeInternal, err.Error(), true)
	}
}
