// Package ierr defines the error taxonomy shared across the device engine.
//
// Every fallible operation in pkg/catalog, pkg/orchestrator, and
// pkg/controlplane returns one of these sentinel kinds wrapped with
// context via fmt.Errorf("%w: ..."), so callers can branch with
// errors.Is while still getting a human-readable message.
package ierr

import "errors"

// Error kinds. See spec §7 for the full taxonomy and propagation rules.
var (
	// ErrValidation means the input violated a schema or invariant. Never retried.
	ErrValidation = errors.New("validation error")

	// ErrNotFound means a referenced id is not present in the catalog.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists means a unique-key collision occurred.
	ErrAlreadyExists = errors.New("already exists")

	// ErrConflict means a state-machine transition was rejected because of
	// a concurrent or out-of-order request (e.g. stop while STOPPING).
	ErrConflict = errors.New("conflict")

	// ErrBusy means a dependency still references the target (e.g. deleting
	// a model with live devices, or deleting a group with running members
	// the caller did not ask to tear down).
	ErrBusy = errors.New("busy")

	// ErrUnavailable means an external system (broker, sink) was not
	// reachable. Adapters retry internally; it is never surfaced on the
	// control plane once a device has reached RUNNING.
	ErrUnavailable = errors.New("unavailable")

	// ErrTimeout means a connect or publish exceeded its deadline. Treated
	// as ErrUnavailable by callers.
	ErrTimeout = errors.New("timeout")
)

// ValidationError carries field-level context for a validation failure,
// the shape pkg/controlplane needs to build a useful 400 response.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Validationf builds a *ValidationError for the given field.
func Validationf(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Code maps an error to the REST error code string used in {error, code}
// response bodies (see spec §6).
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "internal_error"
	}
}

// HTTPStatus maps an error to the status code spec §6 prescribes.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return 400
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrConflict), errors.Is(err, ErrBusy):
		return 409
	default:
		return 500
	}
}
