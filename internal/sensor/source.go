// Package sensor models the positioning collaborator: push sources of raw
// fixes and the authorization boundary. The tracking controller consumes
// these channels and stays decoupled from any platform event loop.
package sensor

import (
	"fmt"

	"github.com/benmeehan/tracklog-agent/internal/models"
)

// ErrorKind classifies sensor errors for the tracking controller.
type ErrorKind int

const (
	// ErrorTransient covers momentary unavailability ("position unknown");
	// tracking continues.
	ErrorTransient ErrorKind = iota
	// ErrorPermissionRevoked is fatal to the current tracking session.
	ErrorPermissionRevoked
	// ErrorOther is logged and otherwise ignored, best-effort.
	ErrorOther
)

// String returns the kind name for logging.
func (k ErrorKind) String() string {
	switch k {
	case ErrorTransient:
		return "transient"
	case ErrorPermissionRevoked:
		return "permission_revoked"
	case ErrorOther:
		return "other"
	default:
		return "unknown"
	}
}

// Error is a classified sensor failure.
type Error struct {
	Kind  ErrorKind
	Cause error
}

// Error implements the error interface.
func (e Error) Error() string {
	return fmt.Sprintf("sensor error (%s): %v", e.Kind, e.Cause)
}

// Unwrap exposes the underlying cause.
func (e Error) Unwrap() error {
	return e.Cause
}

// Source is a push stream of position fixes. Start and Stop control the
// underlying subscription; both are idempotent on the Stop side so a
// controller can always tear down safely.
type Source interface {
	Start() error
	Stop() error
	Fixes() <-chan models.Fix
	Errors() <-chan Error
}
