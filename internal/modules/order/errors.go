package order

import (
	"github.com/pkg/errors"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrInvalidState = errors.New("invalid state transition")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("order state conflict")
	ErrActiveOrder  = errors.New("client has active order")

	ErrOrderNotFound = errors.Wrap(ErrNotFound, "order")
	ErrOfferNotFound = errors.Wrap(ErrNotFound, "offer")

	// ErrAlreadyAccepted is returned to accept attempts that lost the race.
	// It also matches ErrInvalidState.
	ErrAlreadyAccepted = errors.Wrap(ErrInvalidState, "order already accepted")

	// ErrStalePosition rejects a tracking update computed for a delivery
	// phase the order has since left. It also matches ErrConflict.
	ErrStalePosition = errors.Wrap(ErrConflict, "position computed for another phase")

	errNoop = errors.New("no change")
)

func invalid(format string, args ...any) error {
	return errors.Wrapf(ErrValidation, format, args...)
}

func stateErr(op string, from Status) error {
	return errors.Wrapf(ErrInvalidState, "%s from %s", op, from)
}
