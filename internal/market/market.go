package market

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Side is the outcome a bettor backs. Wire codes are fixed: Yes=0, No=1.
type Side uint8

const (
	SideYes Side = 0
	SideNo  Side = 1
)

func (s Side) String() string {
	switch s {
	case SideYes:
		return "Yes"
	case SideNo:
		return "No"
	default:
		return "Unknown"
	}
}

// ParseSide converts a wire code into a Side.
func ParseSide(code uint8) (Side, error) {
	switch Side(code) {
	case SideYes, SideNo:
		return Side(code), nil
	default:
		return 0, fmt.Errorf("invalid side code: %d", code)
	}
}

// Outcome is the single tagged lifecycle variant for a market. A market is
// open iff the outcome is Unresolved, so "open with an outcome already set"
// is unrepresentable. Wire codes for resolved outcomes: Yes=0, No=1, Invalid=2.
type Outcome uint8

const (
	OutcomeUnresolved Outcome = iota
	OutcomeYes
	OutcomeNo
	OutcomeInvalid
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnresolved:
		return "Unresolved"
	case OutcomeYes:
		return "Yes"
	case OutcomeNo:
		return "No"
	case OutcomeInvalid:
		return "Invalid"
	default:
		return "Unknown"
	}
}

// Code returns the outcome wire code. Only valid for resolved outcomes.
func (o Outcome) Code() uint8 {
	switch o {
	case OutcomeYes:
		return 0
	case OutcomeNo:
		return 1
	case OutcomeInvalid:
		return 2
	default:
		return 255
	}
}

// Terminal reports whether o is a valid resolution target.
func (o Outcome) Terminal() bool {
	return o == OutcomeYes || o == OutcomeNo || o == OutcomeInvalid
}

// Title and description length bounds, in bytes.
const (
	TitleMinLen       = 10
	TitleMaxLen       = 200
	DescriptionMinLen = 50
	DescriptionMaxLen = 1000
)

// DefaultCategory is assigned to every market at creation.
const DefaultCategory uint8 = 5

// Market is a single binary-outcome (or invalidatable) event with two pooled
// stakes and one terminal resolution. All amounts are in minor units.
// Pool-sum invariant: YesPool + NoPool == TotalVolume after every committed
// operation (odd initial liquidity assigns the extra unit to the yes pool).
type Market struct {
	ID                 uuid.UUID
	Title              string
	Description        string
	Category           uint8
	EventType          uint8
	Subject            string
	ResolutionDeadline time.Time
	Creator            uuid.UUID
	Resolver           uuid.UUID
	YesPool            uint64
	NoPool             uint64
	TotalVolume        uint64
	Outcome            Outcome
	CreatedAt          time.Time
}

// Open reports whether the market still accepts bets and resolution.
func (m *Market) Open() bool {
	return m.Outcome == OutcomeUnresolved
}

// Status returns the derived lifecycle status string.
func (m *Market) Status() string {
	if m.Open() {
		return "Open"
	}
	return "Resolved"
}

// Pool returns the stake pool backing the given side.
func (m *Market) Pool(s Side) uint64 {
	if s == SideYes {
		return m.YesPool
	}
	return m.NoPool
}

// SetPool assigns the stake pool backing the given side.
func (m *Market) SetPool(s Side, amount uint64) {
	if s == SideYes {
		m.YesPool = amount
	} else {
		m.NoPool = amount
	}
}

// SplitLiquidity divides initial liquidity between the two pools.
// The remainder of an odd amount goes to the yes pool, keeping
// yesPool + noPool == liquidity exact.
func SplitLiquidity(liquidity uint64) (yesPool, noPool uint64) {
	noPool = liquidity / 2
	yesPool = liquidity - noPool
	return yesPool, noPool
}

// ValidateTitle checks the title length bounds.
func ValidateTitle(title string) error {
	if len(title) < TitleMinLen || len(title) > TitleMaxLen {
		return fmt.Errorf("title length %d outside [%d, %d]", len(title), TitleMinLen, TitleMaxLen)
	}
	return nil
}

// ValidateDescription checks the description length bounds.
func ValidateDescription(desc string) error {
	if len(desc) < DescriptionMinLen || len(desc) > DescriptionMaxLen {
		return fmt.Errorf("description length %d outside [%d, %d]", len(desc), DescriptionMinLen, DescriptionMaxLen)
	}
	return nil
}
