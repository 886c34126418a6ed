package event

import "github.com/google/uuid"

// MarketCreated is emitted once per successful market creation.
type MarketCreated struct {
	MarketID uuid.UUID `json:"market"`
	Creator  uuid.UUID `json:"creator"`
	Title    string    `json:"title"`
}

func (e *MarketCreated) EventType() Type   { return TypeMarketCreated }
func (e *MarketCreated) Market() uuid.UUID { return e.MarketID }

// BetPlaced is emitted once per accepted stake. Side uses the fixed wire
// codes Yes=0, No=1.
type BetPlaced struct {
	MarketID uuid.UUID `json:"market"`
	User     uuid.UUID `json:"user"`
	Amount   uint64    `json:"amount"`
	Side     uint8     `json:"outcome"`
}

func (e *BetPlaced) EventType() Type   { return TypeBetPlaced }
func (e *BetPlaced) Market() uuid.UUID { return e.MarketID }

// MarketResolved is emitted once when a market reaches its terminal outcome.
// Outcome uses the fixed wire codes Yes=0, No=1, Invalid=2.
type MarketResolved struct {
	MarketID uuid.UUID `json:"market"`
	Resolver uuid.UUID `json:"resolver"`
	Outcome  uint8     `json:"outcome"`
}

func (e *MarketResolved) EventType() Type   { return TypeMarketResolved }
func (e *MarketResolved) Market() uuid.UUID { return e.MarketID }

// WinningsClaimed is emitted once per successful payout.
type WinningsClaimed struct {
	MarketID uuid.UUID `json:"market"`
	User     uuid.UUID `json:"user"`
	Payout   uint64    `json:"payout"`
}

func (e *WinningsClaimed) EventType() Type   { return TypeWinningsClaimed }
func (e *WinningsClaimed) Market() uuid.UUID { return e.MarketID }
