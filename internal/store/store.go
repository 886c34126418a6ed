package store

import (
	"context"
	"errors"
	"time"

	"MarketSettle/internal/market"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a market or position does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned by CreateMarket on a duplicate id.
	ErrAlreadyExists = errors.New("record already exists")
)

// MarketFilter narrows ListMarkets results.
type MarketFilter struct {
	Status   string // "Open" / "Resolved" / "" for all
	Category *uint8
	Subject  string
}

// MarketRegistry is the durable store of Market records, keyed by market id.
// Records are created once and updated in place; there is no delete.
// Implementations return copies: a caller's mutations become visible only
// through UpdateMarket or CommitBet.
type MarketRegistry interface {
	CreateMarket(ctx context.Context, m *market.Market) error
	GetMarket(ctx context.Context, id uuid.UUID) (*market.Market, error)
	UpdateMarket(ctx context.Context, m *market.Market) error
	ListMarkets(ctx context.Context, filter MarketFilter, page, pageSize int) ([]*market.Market, int64, error)
}

// PositionStore is the durable store of UserPosition records, keyed by
// (user identity, market id). No delete exists.
type PositionStore interface {
	GetPosition(ctx context.Context, user, marketID uuid.UUID) (*market.Position, error)
	PutPosition(ctx context.Context, p *market.Position) error
	ListUserPositions(ctx context.Context, user uuid.UUID) ([]*market.Position, error)
	ListMarketPositions(ctx context.Context, marketID uuid.UUID) ([]*market.Position, error)
}

// Store bundles the two keyed collections behind one substrate. CommitBet
// writes a bet's market and position mutations as one unit: a reader never
// observes the pool increment without the position, or vice versa.
type Store interface {
	MarketRegistry
	PositionStore
	CommitBet(ctx context.Context, m *market.Market, p *market.Position) error
}

// EventRecord is one committed settlement event bound for the event log.
type EventRecord struct {
	Sequence  int64
	EventType string
	MarketID  uuid.UUID
	Payload   []byte // JSON-encoded envelope payload
	Timestamp time.Time
}

// EventLog appends committed settlement events in commit order.
type EventLog interface {
	AppendEvent(ctx context.Context, rec EventRecord) error
}

// TransferRecord is one executed ledger transfer bound for the escrow journal.
type TransferRecord struct {
	FromAccount string
	ToAccount   string
	Amount      uint64
	Reference   string
	Timestamp   time.Time
}

// TransferLog appends executed ledger transfers.
type TransferLog interface {
	AppendTransfer(ctx context.Context, rec TransferRecord) error
}
