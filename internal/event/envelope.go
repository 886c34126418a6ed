package event

import (
	"time"

	"github.com/google/uuid"
)

// Type discriminator for settlement notifications
type Type int32

const (
	TypeUnknown Type = iota
	TypeMarketCreated
	TypeBetPlaced
	TypeMarketResolved
	TypeWinningsClaimed
)

func (t Type) String() string {
	switch t {
	case TypeMarketCreated:
		return "MarketCreated"
	case TypeBetPlaced:
		return "BetPlaced"
	case TypeMarketResolved:
		return "MarketResolved"
	case TypeWinningsClaimed:
		return "WinningsClaimed"
	default:
		return "Unknown"
	}
}

// Event is the interface all notification payloads implement.
type Event interface {
	EventType() Type
	Market() uuid.UUID
}

// Envelope wraps every emitted event. The engine assigns a monotonic
// sequence at commit time; envelopes leave the engine in commit order,
// exactly one per successful operation.
type Envelope struct {
	Sequence  int64     `json:"sequence"`
	Type      Type      `json:"-"`
	TypeName  string    `json:"event_type"`
	MarketID  uuid.UUID `json:"market_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Event     `json:"payload"`
}

// Emitter receives envelopes after the operation that produced them has
// committed.
type Emitter interface {
	Emit(Envelope)
}
