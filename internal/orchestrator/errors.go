// Package orchestrator implements the Request Orchestrator (§4.9): the
// public entrypoint validating ownership, resolving the calendar gateway,
// and dispatching schedule / reschedule / complete, plus the separate
// undo-plan entrypoint (§4.8).
package orchestrator

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable error code surfaced to API callers (§7).
type Code string

const (
	CodeUnauthorized        Code = "unauthorized"
	CodeForbidden           Code = "forbidden"
	CodeNotLinked           Code = "not_linked"
	CodeCaptureNotFound     Code = "capture_not_found"
	CodePlanNotFound        Code = "plan_not_found"
	CodeAlreadyUndone       Code = "already_undone"
	CodeNoSlot              Code = "no_slot"
	CodeSlotExceedsDeadline Code = "slot_exceeds_deadline"
	CodeProviderError       Code = "provider_error"
	CodeInternal            Code = "internal"
)

// EngineError is the single structured error type the orchestrator returns,
// grounded on the teacher's layered fmt.Errorf("...: %w", err) style plus
// its sentinel-error-per-domain-file convention (ErrBlockNotFound and
// friends), collapsed into one type so the HTTP layer has exactly one
// place to map a code to a status.
type EngineError struct {
	Code       Code
	Message    string
	HTTPStatus int
	// Details carries a code-specific payload (e.g. NoSlotDetail) for the
	// HTTP layer to merge into the response body; nil for codes that need
	// nothing beyond Code/Message.
	Details any
	cause   error
}

func (e *EngineError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error { return e.cause }

// NewEngineError builds an EngineError, deriving HTTPStatus from Code.
func NewEngineError(code Code, message string, cause error) *EngineError {
	return &EngineError{Code: code, Message: message, HTTPStatus: statusForCode(code), cause: cause}
}

func statusForCode(code Code) int {
	switch code {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotLinked:
		return http.StatusBadRequest
	case CodeCaptureNotFound, CodePlanNotFound:
		return http.StatusNotFound
	case CodeAlreadyUndone:
		return http.StatusConflict
	case CodeNoSlot, CodeSlotExceedsDeadline:
		return http.StatusConflict
	case CodeProviderError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AsEngineError unwraps err looking for an *EngineError, wrapping it as
// internal if none is found.
func AsEngineError(err error) *EngineError {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee
	}
	return NewEngineError(CodeInternal, "internal error", err)
}
