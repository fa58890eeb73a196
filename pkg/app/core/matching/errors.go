package matching

import (
	"errors"

	"github.com/uhyunpark/hyperspot/pkg/app/core/settlement"
)

// ErrValidation is wrapped by every rejection of a malformed order. None of
// them leaves a reservation behind.
var ErrValidation = errors.New("invalid order")

var (
	ErrUnknownPair      = errors.New("unknown pair")
	ErrUnknownKind      = errors.New("unknown order kind")
	ErrInvalidPrice     = errors.New("price must be positive")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrInvalidBudget    = errors.New("spend budget must be positive")
	ErrInvalidOrderID   = errors.New("order id required")
	ErrNotionalTooSmall = errors.New("order notional rounds to zero")
	ErrDuplicateOrder   = errors.New("duplicate order id")
	ErrPairHalted       = errors.New("pair halted")
)

var (
	ErrInsufficientBalance = settlement.ErrInsufficientBalance
	ErrSettlement          = settlement.ErrSettlement
	ErrArithmeticOverflow  = errors.New("arithmetic overflow")
)

// Cancellation errors. Neither mutates any state.
var (
	ErrNotFound = errors.New("order not found")
	ErrNotOwner = errors.New("not the order owner")
)

// rejectReason maps an error to a metrics label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownPair):
		return "unknown_pair"
	case errors.Is(err, ErrPairHalted):
		return "pair_halted"
	case errors.Is(err, ErrDuplicateOrder):
		return "duplicate"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrSettlement):
		return "settlement"
	case errors.Is(err, ErrArithmeticOverflow):
		return "overflow"
	default:
		return "other"
	}
}
