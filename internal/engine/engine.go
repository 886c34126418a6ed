package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"MarketSettle/internal/event"
	"MarketSettle/internal/ledger"
	"MarketSettle/internal/market"
	u64math "MarketSettle/internal/math"
	"MarketSettle/internal/observability"
	"MarketSettle/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config carries the settlement limits and the admin identity.
type Config struct {
	// MinBet is the smallest accepted bet amount, in lamports.
	MinBet uint64
	// MinInitialLiquidity is the smallest accepted market seed, in lamports.
	MinInitialLiquidity uint64
	// Admin may resolve any market regardless of its designated resolver.
	Admin uuid.UUID
}

// Defaults applied when a Config field is zero.
const (
	DefaultMinBet              = 1_000_000
	DefaultMinInitialLiquidity = 50_000_000
)

// Engine executes the four settlement operations. Each operation follows the
// same shape: validate against a loaded copy of the records, compute every
// derived value, run the ledger transfer, write the records, then emit the
// event. A record write that fails after the transfer succeeded is
// compensated with the reverse transfer before the operation returns, so a
// failed operation leaves neither a record nor a ledger mutation behind. A
// per-market lock holds from load to emit, so concurrent operations on one
// market serialize and the ledger never sees a transfer for a state that was
// not committed.
type Engine struct {
	store   store.Store
	funds   ledger.Gateway
	emitter event.Emitter
	cfg     Config
	metrics *observability.Metrics
	log     zerolog.Logger

	now   func() time.Time
	locks *marketLocks

	// sequence is assigned under emitMu so envelope order matches commit order.
	sequence atomic.Int64
	emitMu   sync.Mutex
}

func New(st store.Store, funds ledger.Gateway, emitter event.Emitter, cfg Config, metrics *observability.Metrics, log zerolog.Logger) *Engine {
	if cfg.MinBet == 0 {
		cfg.MinBet = DefaultMinBet
	}
	if cfg.MinInitialLiquidity == 0 {
		cfg.MinInitialLiquidity = DefaultMinInitialLiquidity
	}
	return &Engine{
		store:   st,
		funds:   funds,
		emitter: emitter,
		cfg:     cfg,
		metrics: metrics,
		log:     log.With().Str("component", "engine").Logger(),
		now:     time.Now,
		locks:   newMarketLocks(),
	}
}

// SetClock replaces the wall clock. Tests use this to cross deadlines.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// SetStartSequence positions the event sequence after a restart, so emitted
// envelopes continue from the persisted event log.
func (e *Engine) SetStartSequence(seq int64) { e.sequence.Store(seq) }

// CreateMarketParams are the caller-supplied fields of a new market.
type CreateMarketParams struct {
	Title            string
	Description      string
	Category         uint8
	EventType        uint8
	Subject          string
	Deadline         time.Time
	Creator          uuid.UUID
	Resolver         uuid.UUID
	InitialLiquidity uint64
}

// CreateMarket validates the parameters, escrows the creator's initial
// liquidity, and registers the market with the seed split across both pools.
func (e *Engine) CreateMarket(ctx context.Context, p CreateMarketParams) (*market.Market, error) {
	start := time.Now()

	m, err := e.createMarket(ctx, p)
	e.observe("create_market", start, err)
	return m, err
}

func (e *Engine) createMarket(ctx context.Context, p CreateMarketParams) (*market.Market, error) {
	if err := market.ValidateTitle(p.Title); err != nil {
		return nil, fmt.Errorf("%w: %d chars", ErrTitleLength, len(p.Title))
	}
	if err := market.ValidateDescription(p.Description); err != nil {
		return nil, fmt.Errorf("%w: %d chars", ErrDescriptionLength, len(p.Description))
	}
	if p.InitialLiquidity < e.cfg.MinInitialLiquidity {
		return nil, fmt.Errorf("%w: %d < %d", ErrInsufficientLiquidity, p.InitialLiquidity, e.cfg.MinInitialLiquidity)
	}
	now := e.now()
	if !p.Deadline.After(now) {
		return nil, ErrDeadlineInPast
	}

	category := p.Category
	if category == 0 {
		category = market.DefaultCategory
	}
	resolver := p.Resolver
	if resolver == uuid.Nil {
		resolver = p.Creator
	}

	id := uuid.New()
	yesPool, noPool := market.SplitLiquidity(p.InitialLiquidity)
	m := &market.Market{
		ID:                 id,
		Title:              p.Title,
		Description:        p.Description,
		Category:           category,
		EventType:          p.EventType,
		Subject:            p.Subject,
		ResolutionDeadline: p.Deadline,
		Creator:            p.Creator,
		Resolver:           resolver,
		YesPool:            yesPool,
		NoPool:             noPool,
		TotalVolume:        p.InitialLiquidity,
		Outcome:            market.OutcomeUnresolved,
		CreatedAt:          now,
	}

	if err := e.funds.Transfer(ctx, ledger.UserAccount(p.Creator), ledger.EscrowAccount(id), p.InitialLiquidity, "create:"+id.String()); err != nil {
		return nil, fmt.Errorf("escrow initial liquidity: %w", err)
	}
	if err := e.store.CreateMarket(ctx, m); err != nil {
		e.refund(ctx, ledger.EscrowAccount(id), ledger.UserAccount(p.Creator), p.InitialLiquidity, "create:"+id.String())
		return nil, fmt.Errorf("register market: %w", err)
	}

	e.emit(m.ID, now, &event.MarketCreated{
		MarketID: m.ID,
		Creator:  p.Creator,
		Title:    p.Title,
	})
	if e.metrics != nil {
		e.metrics.MarketsOpen.Inc()
		e.metrics.EscrowBalance.Add(float64(p.InitialLiquidity))
	}

	e.log.Info().
		Str("market_id", id.String()).
		Str("creator", p.Creator.String()).
		Uint64("liquidity", p.InitialLiquidity).
		Msg("market created")
	return m, nil
}

// BetParams identify one bet: a user, a market, a side, and an amount.
type BetParams struct {
	User     uuid.UUID
	MarketID uuid.UUID
	Side     market.Side
	Amount   uint64
}

// PlaceBet escrows the stake and assigns the user's position on the market.
// A user bets at most once per market; the amount buys an equal number of
// shares on the chosen side.
func (e *Engine) PlaceBet(ctx context.Context, p BetParams) (*market.Position, error) {
	start := time.Now()

	pos, err := e.placeBet(ctx, p)
	e.observe("place_bet", start, err)
	return pos, err
}

func (e *Engine) placeBet(ctx context.Context, p BetParams) (*market.Position, error) {
	release := e.locks.acquire(p.MarketID)
	defer release()

	m, err := e.store.GetMarket(ctx, p.MarketID)
	if err != nil {
		return nil, fmt.Errorf("load market: %w", err)
	}

	now := e.now()
	if !m.Open() {
		return nil, ErrMarketNotOpen
	}
	if !now.Before(m.ResolutionDeadline) {
		return nil, ErrDeadlinePassed
	}
	if p.Amount < e.cfg.MinBet {
		return nil, fmt.Errorf("%w: %d < %d", ErrBelowMinimumBet, p.Amount, e.cfg.MinBet)
	}

	pos, err := e.store.GetPosition(ctx, p.User, p.MarketID)
	switch {
	case err == nil:
		if pos.HasBet() {
			return nil, ErrAlreadyBet
		}
	case errors.Is(err, store.ErrNotFound):
		pos = &market.Position{User: p.User, MarketID: p.MarketID}
	default:
		return nil, fmt.Errorf("load position: %w", err)
	}

	// All derived values are computed before the transfer so a rejected bet
	// leaves no trace in the ledger.
	newPool, err := u64math.CheckedAdd(m.Pool(p.Side), p.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %s pool", ErrAmountOverflow, p.Side)
	}
	newVolume, err := u64math.CheckedAdd(m.TotalVolume, p.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: total volume", ErrAmountOverflow)
	}

	if err := e.funds.Transfer(ctx, ledger.UserAccount(p.User), ledger.EscrowAccount(p.MarketID), p.Amount, "bet:"+p.MarketID.String()); err != nil {
		return nil, fmt.Errorf("escrow stake: %w", err)
	}

	m.SetPool(p.Side, newPool)
	m.TotalVolume = newVolume
	pos.SetShares(p.Side, p.Amount)
	pos.TotalCost = p.Amount
	pos.LastTradeAt = now
	pos.Claimed = false

	if err := e.store.CommitBet(ctx, m, pos); err != nil {
		e.refund(ctx, ledger.EscrowAccount(p.MarketID), ledger.UserAccount(p.User), p.Amount, "bet:"+p.MarketID.String())
		return nil, fmt.Errorf("commit bet: %w", err)
	}

	e.emit(m.ID, now, &event.BetPlaced{
		MarketID: m.ID,
		User:     p.User,
		Amount:   p.Amount,
		Side:     uint8(p.Side),
	})
	if e.metrics != nil {
		e.metrics.EscrowBalance.Add(float64(p.Amount))
	}

	e.log.Info().
		Str("market_id", m.ID.String()).
		Str("user", p.User.String()).
		Str("side", p.Side.String()).
		Uint64("amount", p.Amount).
		Msg("bet placed")
	return pos, nil
}

// ResolveParams identify a resolution request.
type ResolveParams struct {
	MarketID uuid.UUID
	Resolver uuid.UUID
	Outcome  market.Outcome
}

// Resolve records the market's terminal outcome. Only the designated
// resolver or the admin may resolve, and only once.
func (e *Engine) Resolve(ctx context.Context, p ResolveParams) (*market.Market, error) {
	start := time.Now()

	m, err := e.resolve(ctx, p)
	e.observe("resolve", start, err)
	return m, err
}

func (e *Engine) resolve(ctx context.Context, p ResolveParams) (*market.Market, error) {
	if !p.Outcome.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOutcome, p.Outcome)
	}

	release := e.locks.acquire(p.MarketID)
	defer release()

	m, err := e.store.GetMarket(ctx, p.MarketID)
	if err != nil {
		return nil, fmt.Errorf("load market: %w", err)
	}
	if p.Resolver != m.Resolver && p.Resolver != e.cfg.Admin {
		return nil, ErrUnauthorizedResolver
	}
	if !m.Open() {
		return nil, ErrAlreadyResolved
	}

	m.Outcome = p.Outcome
	if err := e.store.UpdateMarket(ctx, m); err != nil {
		return nil, fmt.Errorf("record resolution: %w", err)
	}

	e.emit(m.ID, e.now(), &event.MarketResolved{
		MarketID: m.ID,
		Resolver: p.Resolver,
		Outcome:  m.Outcome.Code(),
	})
	if e.metrics != nil {
		e.metrics.MarketsOpen.Dec()
	}

	e.log.Info().
		Str("market_id", m.ID.String()).
		Str("outcome", m.Outcome.String()).
		Msg("market resolved")
	return m, nil
}

// ClaimParams identify a claim request.
type ClaimParams struct {
	User     uuid.UUID
	MarketID uuid.UUID
}

// Claim pays out a winning position: the stake back plus the position's
// proportional share of the losing pool, floored. An Invalid outcome refunds
// the stake. A losing position has nothing to claim and stays unclaimed, so
// the call is repeatable and keeps failing the same way.
func (e *Engine) Claim(ctx context.Context, p ClaimParams) (uint64, error) {
	start := time.Now()

	payout, err := e.claim(ctx, p)
	e.observe("claim", start, err)
	return payout, err
}

func (e *Engine) claim(ctx context.Context, p ClaimParams) (uint64, error) {
	release := e.locks.acquire(p.MarketID)
	defer release()

	m, err := e.store.GetMarket(ctx, p.MarketID)
	if err != nil {
		return 0, fmt.Errorf("load market: %w", err)
	}
	if m.Open() {
		return 0, ErrMarketNotResolved
	}

	pos, err := e.store.GetPosition(ctx, p.User, p.MarketID)
	if err != nil {
		return 0, fmt.Errorf("load position: %w", err)
	}
	if pos.Claimed {
		return 0, ErrAlreadyClaimed
	}

	payout, err := e.computePayout(m, pos)
	if err != nil {
		return 0, err
	}
	if payout == 0 {
		// Losing positions are left untouched: claimed stays false and the
		// claim can be retried with the same result.
		return 0, ErrNoWinnings
	}

	if err := e.funds.Transfer(ctx, ledger.EscrowAccount(m.ID), ledger.UserAccount(p.User), payout, "claim:"+m.ID.String()); err != nil {
		return 0, fmt.Errorf("disburse payout: %w", err)
	}

	now := e.now()
	pos.Claimed = true
	if err := e.store.PutPosition(ctx, pos); err != nil {
		pos.Claimed = false
		e.refund(ctx, ledger.UserAccount(p.User), ledger.EscrowAccount(m.ID), payout, "claim:"+m.ID.String())
		return 0, fmt.Errorf("record claim: %w", err)
	}

	e.emit(m.ID, now, &event.WinningsClaimed{
		MarketID: m.ID,
		User:     p.User,
		Payout:   payout,
	})
	if e.metrics != nil {
		e.metrics.PayoutTotal.Add(float64(payout))
		e.metrics.EscrowBalance.Sub(float64(payout))
	}

	e.log.Info().
		Str("market_id", m.ID.String()).
		Str("user", p.User.String()).
		Uint64("payout", payout).
		Msg("winnings claimed")
	return payout, nil
}

// refund reverses a transfer after a record write failed, restoring the
// ledger to its pre-operation state. The source account still holds the full
// amount of the forward transfer, so the reversal can only fail on a
// malfunctioning gateway; that case is logged and left for reconciliation
// against the journal.
func (e *Engine) refund(ctx context.Context, from, to ledger.AccountKey, amount uint64, ref string) {
	if err := e.funds.Transfer(ctx, from, to, amount, "revert:"+ref); err != nil {
		e.log.Error().
			Err(err).
			Str("ref", ref).
			Uint64("amount", amount).
			Msg("compensating transfer failed")
	}
}

func (e *Engine) computePayout(m *market.Market, pos *market.Position) (uint64, error) {
	if m.Outcome == market.OutcomeInvalid {
		return pos.TotalCost, nil
	}

	winningShares := pos.WinningShares(m.Outcome)
	if winningShares == 0 {
		return 0, nil
	}

	losingPool := m.Pool(losingSide(m.Outcome))
	payout, err := u64math.Payout(pos.TotalCost, winningShares, losingPool, m.TotalVolume)
	if err != nil {
		return 0, fmt.Errorf("%w: payout", ErrAmountOverflow)
	}
	return payout, nil
}

func losingSide(o market.Outcome) market.Side {
	if o == market.OutcomeYes {
		return market.SideNo
	}
	return market.SideYes
}

// emit assigns the next sequence and hands the envelope to the emitter.
// emitMu keeps sequence order identical to emission order across markets.
func (e *Engine) emit(marketID uuid.UUID, ts time.Time, payload event.Event) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	seq := e.sequence.Add(1)
	e.emitter.Emit(event.Envelope{
		Sequence:  seq,
		Type:      payload.EventType(),
		TypeName:  payload.EventType().String(),
		MarketID:  marketID,
		Timestamp: ts,
		Payload:   payload,
	})
	if e.metrics != nil {
		e.metrics.EventsEmitted.WithLabelValues(payload.EventType().String()).Inc()
	}
}

func (e *Engine) observe(op string, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	if err != nil {
		e.metrics.OpsRejected.WithLabelValues(op, Classify(err).String()).Inc()
		return
	}
	e.metrics.OpsApplied.WithLabelValues(op).Inc()
	e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
