package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrInsufficientFunds is returned by Transfer when the source account
// cannot cover the amount.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Gateway moves funds between accounts. The settlement engine never inspects
// balances directly; it relies on this call's success or failure. A failed
// transfer must leave both accounts unchanged.
type Gateway interface {
	Transfer(ctx context.Context, from, to AccountKey, amount uint64, ref string) error
}

// Journal records one executed transfer: amount always positive, funds move
// from From to To.
type Journal struct {
	From      AccountKey
	To        AccountKey
	Amount    uint64
	Reference string // idempotency reference of the operation that caused it
	Timestamp time.Time
}
