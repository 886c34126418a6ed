package market

import (
	"time"

	"github.com/google/uuid"
)

// Position is one user's single stake record against one market.
// At most one of YesShares/NoShares is nonzero: the design permits exactly
// one bet per user per market, so the share field is assigned once and the
// position is mutated at most once more, by a successful claim.
type Position struct {
	User        uuid.UUID
	MarketID    uuid.UUID
	YesShares   uint64
	NoShares    uint64
	TotalCost   uint64
	LastTradeAt time.Time
	Claimed     bool
}

// HasBet reports whether the position already carries a stake on either side.
func (p *Position) HasBet() bool {
	return p.YesShares != 0 || p.NoShares != 0
}

// Shares returns the share count held on the given side.
func (p *Position) Shares(s Side) uint64 {
	if s == SideYes {
		return p.YesShares
	}
	return p.NoShares
}

// SetShares assigns the stake for the chosen side. Assignment, not
// accumulation: repeat bets are rejected before this is reached.
func (p *Position) SetShares(s Side, amount uint64) {
	if s == SideYes {
		p.YesShares = amount
	} else {
		p.NoShares = amount
	}
}

// WinningShares returns the share count on the winning side for a resolved
// outcome, or 0 when the outcome is Invalid or Unresolved.
func (p *Position) WinningShares(o Outcome) uint64 {
	switch o {
	case OutcomeYes:
		return p.YesShares
	case OutcomeNo:
		return p.NoShares
	default:
		return 0
	}
}
