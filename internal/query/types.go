package query

import (
	"time"

	"github.com/google/uuid"
)

// MarketSummary is the list-view projection of a market.
type MarketSummary struct {
	ID                 uuid.UUID `json:"id"`
	Title              string    `json:"title"`
	Category           uint8     `json:"category"`
	EventType          uint8     `json:"event_type"`
	Subject            string    `json:"subject"`
	Status             string    `json:"status"`
	Outcome            string    `json:"outcome"`
	YesPool            uint64    `json:"yes_pool"`
	NoPool             uint64    `json:"no_pool"`
	TotalVolume        uint64    `json:"total_volume"`
	ResolutionDeadline time.Time `json:"resolution_deadline"`
	CreatedAt          time.Time `json:"created_at"`
}

// MarketDetail adds the long-form fields to the summary.
type MarketDetail struct {
	MarketSummary
	Description string    `json:"description"`
	Creator     uuid.UUID `json:"creator"`
	Resolver    uuid.UUID `json:"resolver"`
}

// MarketPage is one page of market summaries.
type MarketPage struct {
	Markets  []MarketSummary `json:"markets"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// PortfolioEntry is one of a user's positions joined with its market.
type PortfolioEntry struct {
	MarketID     uuid.UUID `json:"market_id"`
	Title        string    `json:"title"`
	MarketStatus string    `json:"market_status"`
	Outcome      string    `json:"outcome"`
	Side         string    `json:"side"`
	Shares       uint64    `json:"shares"`
	TotalCost    uint64    `json:"total_cost"`
	Claimed      bool      `json:"claimed"`
	// Claimable is the payout a claim would disburse right now. Zero while
	// the market is open, for losing positions, and after a claim.
	Claimable   uint64    `json:"claimable"`
	LastTradeAt time.Time `json:"last_trade_at"`
}

// Portfolio is a user's full position listing.
type Portfolio struct {
	User      uuid.UUID        `json:"user"`
	Positions []PortfolioEntry `json:"positions"`
}

// PositionView is one stake on a market, as seen from the market side.
type PositionView struct {
	User      uuid.UUID `json:"user"`
	Side      string    `json:"side"`
	Shares    uint64    `json:"shares"`
	TotalCost uint64    `json:"total_cost"`
	Claimed   bool      `json:"claimed"`
	PlacedAt  time.Time `json:"placed_at"`
}
