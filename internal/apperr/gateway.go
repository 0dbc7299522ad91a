package apperr

import (
	"errors"

	"chatcall/backend/internal/gateway"
)

// FromGateway translates a gateway failure into the taxonomy. what names
// the referenced entity for NotFound messages.
func FromGateway(op, what string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gateway.ErrNotFound):
		return Wrap(NotFound, op, err, what+" not found")
	case errors.Is(err, gateway.ErrInvalid):
		return Wrap(Validation, op, err, "request rejected by storage")
	default:
		// Unavailable, unauthorized, conflicts we did not expect and
		// anything transport specific.
		return Wrap(BackendUnavailable, op, err, "storage backend unavailable")
	}
}
