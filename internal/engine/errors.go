package engine

import (
	"errors"

	"MarketSettle/internal/ledger"
	"MarketSettle/internal/store"
)

// Validation errors: the request itself is malformed or below limits.
var (
	ErrTitleLength           = errors.New("title length out of range")
	ErrDescriptionLength     = errors.New("description length out of range")
	ErrInsufficientLiquidity = errors.New("initial liquidity below minimum")
	ErrDeadlineInPast        = errors.New("resolution deadline is in the past")
	ErrBelowMinimumBet       = errors.New("bet amount below minimum")
	ErrInvalidOutcome        = errors.New("outcome is not a terminal resolution")
)

// Conflict errors: the request is well formed but the market or position
// state forbids it.
var (
	ErrMarketNotOpen        = errors.New("market is not open")
	ErrDeadlinePassed       = errors.New("resolution deadline has passed")
	ErrAlreadyBet           = errors.New("user already bet on this market")
	ErrAlreadyResolved      = errors.New("market already resolved")
	ErrUnauthorizedResolver = errors.New("identity not authorized to resolve")
	ErrMarketNotResolved    = errors.New("market not resolved yet")
	ErrAlreadyClaimed       = errors.New("winnings already claimed")
	ErrNoWinnings           = errors.New("no winnings to claim")
)

// Arithmetic errors: a derived value cannot be represented.
var ErrAmountOverflow = errors.New("amount overflows 64-bit range")

// Class buckets engine errors for transport mapping and metrics labels.
type Class int

const (
	ClassInternal Class = iota
	ClassValidation
	ClassConflict
	ClassArithmetic
	ClassNotFound
	ClassFunds
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassConflict:
		return "conflict"
	case ClassArithmetic:
		return "arithmetic"
	case ClassNotFound:
		return "not_found"
	case ClassFunds:
		return "insufficient_funds"
	default:
		return "internal"
	}
}

var errorClasses = map[error]Class{
	ErrTitleLength:           ClassValidation,
	ErrDescriptionLength:     ClassValidation,
	ErrInsufficientLiquidity: ClassValidation,
	ErrDeadlineInPast:        ClassValidation,
	ErrBelowMinimumBet:       ClassValidation,
	ErrInvalidOutcome:        ClassValidation,
	ErrMarketNotOpen:         ClassConflict,
	ErrDeadlinePassed:        ClassConflict,
	ErrAlreadyBet:            ClassConflict,
	ErrAlreadyResolved:       ClassConflict,
	ErrUnauthorizedResolver:  ClassConflict,
	ErrMarketNotResolved:     ClassConflict,
	ErrAlreadyClaimed:        ClassConflict,
	ErrNoWinnings:            ClassConflict,
	ErrAmountOverflow:        ClassArithmetic,

	store.ErrNotFound:           ClassNotFound,
	ledger.ErrInsufficientFunds: ClassFunds,
}

// Classify maps an engine error to its class. Store and ledger sentinels are
// recognized through the wrapping chain; anything else is internal.
func Classify(err error) Class {
	for sentinel, class := range errorClasses {
		if errors.Is(err, sentinel) {
			return class
		}
	}
	return ClassInternal
}
