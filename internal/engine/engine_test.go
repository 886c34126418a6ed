package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"MarketSettle/internal/engine"
	"MarketSettle/internal/event"
	"MarketSettle/internal/ledger"
	"MarketSettle/internal/market"
	"MarketSettle/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fixture struct {
	engine   *engine.Engine
	store    *store.Memory
	funds    *ledger.EscrowTracker
	recorder *event.Recorder
	admin    uuid.UUID
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:    store.NewMemory(),
		funds:    ledger.NewEscrowTracker(),
		recorder: event.NewRecorder(),
		admin:    uuid.New(),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.engine = engine.New(f.store, f.funds, f.recorder, engine.Config{
		Admin: f.admin,
	}, nil, zerolog.Nop())
	f.engine.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) fund(t *testing.T, user uuid.UUID, amount uint64) {
	t.Helper()
	if err := f.funds.Deposit(context.Background(), user, amount); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func (f *fixture) createMarket(t *testing.T, creator uuid.UUID, liquidity uint64) *market.Market {
	t.Helper()
	m, err := f.engine.CreateMarket(context.Background(), engine.CreateMarketParams{
		Title:            "Will the launch happen this quarter",
		Description:      strings.Repeat("Settlement criteria described in enough detail. ", 2),
		Subject:          "launch",
		Deadline:         f.now.Add(24 * time.Hour),
		Creator:          creator,
		InitialLiquidity: liquidity,
	})
	if err != nil {
		t.Fatalf("create market: %v", err)
	}
	return m
}

// ============================================================================
// Test: CreateMarket
// ============================================================================

func TestCreateMarket_SplitsLiquidityAndEscrows(t *testing.T) {
	f := newFixture(t)
	creator := uuid.New()
	f.fund(t, creator, 100_000_000)

	m := f.createMarket(t, creator, 100_000_000)

	if m.YesPool != 50_000_000 || m.NoPool != 50_000_000 {
		t.Errorf("pools: got %d/%d", m.YesPool, m.NoPool)
	}
	if m.TotalVolume != 100_000_000 {
		t.Errorf("volume: got %d", m.TotalVolume)
	}
	if !m.Open() {
		t.Error("new market should be open")
	}
	if m.Category != market.DefaultCategory {
		t.Errorf("category: got %d, want default %d", m.Category, market.DefaultCategory)
	}
	if m.Resolver != creator {
		t.Error("resolver should default to the creator")
	}
	if got := f.funds.EscrowBalance(m.ID); got != 100_000_000 {
		t.Errorf("escrow: got %d", got)
	}
	if got := f.funds.Balance(ledger.UserAccount(creator)); got != 0 {
		t.Errorf("creator balance: got %d", got)
	}

	env := f.recorder.Last()
	if env.Type != event.TypeMarketCreated || env.Sequence != 1 {
		t.Errorf("envelope: %+v", env)
	}
}

func TestCreateMarket_OddLiquidityKeepsPoolSum(t *testing.T) {
	f := newFixture(t)
	creator := uuid.New()
	f.fund(t, creator, 50_000_001)

	m := f.createMarket(t, creator, 50_000_001)

	if m.YesPool != 25_000_001 || m.NoPool != 25_000_000 {
		t.Errorf("pools: got %d/%d", m.YesPool, m.NoPool)
	}
	if m.YesPool+m.NoPool != m.TotalVolume {
		t.Errorf("pool sum %d != volume %d", m.YesPool+m.NoPool, m.TotalVolume)
	}
}

func TestCreateMarket_Validation(t *testing.T) {
	f := newFixture(t)
	creator := uuid.New()
	f.fund(t, creator, 1_000_000_000)

	base := engine.CreateMarketParams{
		Title:            "Will the launch happen this quarter",
		Description:      strings.Repeat("d", 80),
		Deadline:         f.now.Add(time.Hour),
		Creator:          creator,
		InitialLiquidity: 50_000_000,
	}

	cases := []struct {
		name   string
		mutate func(*engine.CreateMarketParams)
		want   error
	}{
		{"short title", func(p *engine.CreateMarketParams) { p.Title = "too short" }, engine.ErrTitleLength},
		{"long title", func(p *engine.CreateMarketParams) { p.Title = strings.Repeat("t", 201) }, engine.ErrTitleLength},
		{"short description", func(p *engine.CreateMarketParams) { p.Description = strings.Repeat("d", 49) }, engine.ErrDescriptionLength},
		{"below minimum liquidity", func(p *engine.CreateMarketParams) { p.InitialLiquidity = 49_999_999 }, engine.ErrInsufficientLiquidity},
		{"deadline in past", func(p *engine.CreateMarketParams) { p.Deadline = f.now.Add(-time.Minute) }, engine.ErrDeadlineInPast},
		{"deadline exactly now", func(p *engine.CreateMarketParams) { p.Deadline = f.now }, engine.ErrDeadlineInPast},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := base
			tc.mutate(&p)
			_, err := f.engine.CreateMarket(context.Background(), p)
			if !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
			if engine.Classify(err) != engine.ClassValidation {
				t.Errorf("class: got %v, want validation", engine.Classify(err))
			}
		})
	}

	if len(f.recorder.Envelopes()) != 0 {
		t.Error("rejected operations must not emit events")
	}
}

func TestCreateMarket_InsufficientFundsLeavesNothing(t *testing.T) {
	f := newFixture(t)
	creator := uuid.New() // never funded

	_, err := f.engine.CreateMarket(context.Background(), engine.CreateMarketParams{
		Title:            "Will the launch happen this quarter",
		Description:      strings.Repeat("d", 80),
		Deadline:         f.now.Add(time.Hour),
		Creator:          creator,
		InitialLiquidity: 50_000_000,
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}

	markets, _, _ := f.store.ListMarkets(context.Background(), store.MarketFilter{}, 1, 10)
	if len(markets) != 0 {
		t.Error("no market may be registered when escrow fails")
	}
	if len(f.recorder.Envelopes()) != 0 {
		t.Error("no event may be emitted when escrow fails")
	}
}

// ============================================================================
// Test: PlaceBet
// ============================================================================

func TestPlaceBet_AssignsPositionAndGrowsPool(t *testing.T) {
	f := newFixture(t)
	creator, bettor := uuid.New(), uuid.New()
	f.fund(t, creator, 100_000_000)
	f.fund(t, bettor, 20_000_000)
	m := f.createMarket(t, creator, 100_000_000)

	pos, err := f.engine.PlaceBet(context.Background(), engine.BetParams{
		User: bettor, MarketID: m.ID, Side: market.SideYes, Amount: 20_000_000,
	})
	if err != nil {
		t.Fatalf("place bet: %v", err)
	}

	if pos.YesShares != 20_000_000 || pos.NoShares != 0 {
		t.Errorf("shares: got %d/%d", pos.YesShares, pos.NoShares)
	}
	if pos.TotalCost != 20_000_000 {
		t.Errorf("total cost: got %d", pos.TotalCost)
	}
	if pos.Claimed {
		t.Error("fresh position must be unclaimed")
	}

	stored, err := f.store.GetMarket(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("reload market: %v", err)
	}
	if stored.YesPool != 70_000_000 || stored.NoPool != 50_000_000 {
		t.Errorf("pools: got %d/%d", stored.YesPool, stored.NoPool)
	}
	if stored.TotalVolume != 120_000_000 {
		t.Errorf("volume: got %d", stored.TotalVolume)
	}
	if stored.YesPool+stored.NoPool != stored.TotalVolume {
		t.Error("pool sum invariant broken")
	}
	if got := f.funds.EscrowBalance(m.ID); got != 120_000_000 {
		t.Errorf("escrow: got %d", got)
	}

	env := f.recorder.Last()
	if env.Type != event.TypeBetPlaced {
		t.Errorf("envelope type: %v", env.Type)
	}
}

func TestPlaceBet_Rejections(t *testing.T) {
	f := newFixture(t)
	creator, bettor := uuid.New(), uuid.New()
	f.fund(t, creator, 100_000_000)
	f.fund(t, bettor, 100_000_000)
	m := f.createMarket(t, creator, 100_000_000)

	ctx := context.Background()

	if _, err := f.engine.PlaceBet(ctx, engine.BetParams{
		User: bettor, MarketID: m.ID, Side: market.SideNo, Amount: 999_999,
	}); !errors.Is(err, engine.ErrBelowMinimumBet) {
		t.Errorf("below minimum: got %v", err)
	}

	if _, err := f.engine.PlaceBet(ctx, engine.BetParams{
		User: bettor, MarketID: uuid.New(), Side: market.SideNo, Amount: 1_000_000,
	}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown market: got %v", err)
	}

	// First bet succeeds, second is rejected: assignment, not accumulation.
	if _, err := f.engine.PlaceBet(ctx, engine.BetParams{
		User: bettor, MarketID: m.ID, Side: market.SideNo, Amount: 1_000_000,
	}); err != nil {
		t.Fatalf("first bet: %v", err)
	}
	if _, err := f.engine.PlaceBet(ctx, engine.BetParams{
		User: bettor, MarketID: m.ID, Side: market.SideNo, Amount: 1_000_000,
	}); !errors.Is(err, engine.ErrAlreadyBet) {
		t.Errorf("repeat bet: got %v", err)
	}

	// Deadline reached: exact boundary is closed.
	f.advance(24 * time.Hour)
	other := uuid.New()
	f.fund(t, other, 5_000_000)
	if _, err := f.engine.PlaceBet(ctx, engine.BetParams{
		User: other, MarketID: m.ID, Side: market.SideYes, Amount: 1_000_000,
	}); !errors.Is(err, engine.ErrDeadlinePassed) {
		t.Errorf("past deadline: got %v", err)
	}
}

func TestPlaceBet_ClosedMarket(t *testing.T) {
	f := newFixture(t)
	creator, bettor := uuid.New(), uuid.New()
	f.fund(t, creator, 100_000_000)
	f.fund(t, bettor, 5_000_000)
	m := f.createMarket(t, creator, 100_000_000)

	ctx := context.Background()
	if _, err := f.engine.Resolve(ctx, engine.ResolveParams{
		MarketID: m.ID, Resolver: f.admin, Outcome: market.OutcomeYes,
	}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if _, err := f.engine.PlaceBet(ctx, engine.BetParams{
		User: bettor, MarketID: m.ID, Side: market.SideYes, Amount: 1_000_000,
	}); !errors.Is(err, engine.ErrMarketNotOpen) {
		t.Errorf("resolved market: got %v", err)
	}
}

func TestPlaceBet_FailedTransferAbortsEverything(t *testing.T) {
	f := newFixture(t)
	creator, bettor := uuid.New(), uuid.New()
	f.fund(t, creator, 100_000_000)
	m := f.createMarket(t, creator, 100_000_000)
	emitted := len(f.recorder.Envelopes())

	// Bettor has no funds, so the escrow transfer fails after validation.
	_, err := f.engine.PlaceBet(context.Background(), engine.BetParams{
		User: bettor, MarketID: m.ID, Side: market.SideYes, Amount: 2_000_000,
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}

	stored, _ := f.store.GetMarket(context.Background(), m.ID)
	if stored.YesPool != 50_000_000 || stored.TotalVolume != 100_000_000 {
		t.Error("failed bet must not mutate the market")
	}
	if _, err := f.store.GetPosition(context.Background(), bettor, m.ID); !errors.Is(err, store.ErrNotFound) {
		t.Error("failed bet must not create a position")
	}
	if len(f.recorder.Envelopes()) != emitted {
		t.Error("failed bet must not emit an event")
	}
}

// ============================================================================
// Test: Resolve
// ============================================================================

func TestResolve_Authorization(t *testing.T) {
	f := newFixture(t)
	creator := uuid.New()
	f.fund(t, creator, 200_000_000)

	ctx := context.Background()
	resolver := uuid.New()
	m, err := f.engine.CreateMarket(ctx, engine.CreateMarketParams{
		Title:            "Will the launch happen this quarter",
		Description:      strings.Repeat("d", 80),
		Deadline:         f.now.Add(time.Hour),
		Creator:          creator,
		Resolver:         resolver,
		InitialLiquidity: 50_000_000,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.engine.Resolve(ctx, engine.ResolveParams{
		MarketID: m.ID, Resolver: uuid.New(), Outcome: market.OutcomeYes,
	}); !errors.Is(err, engine.ErrUnauthorizedResolver) {
		t.Errorf("stranger: got %v", err)
	}

	// Designated resolver works.
	if _, err := f.engine.Resolve(ctx, engine.ResolveParams{
		MarketID: m.ID, Resolver: resolver, Outcome: market.OutcomeYes,
	}); err != nil {
		t.Fatalf("resolver: %v", err)
	}

	// Admin works on another market.
	m2 := f.createMarket(t, creator, 50_000_000)
	if _, err := f.engine.Resolve(ctx, engine.ResolveParams{
		MarketID: m2.ID, Resolver: f.admin, Outcome: market.OutcomeNo,
	}); err != nil {
		t.Fatalf("admin: %v", err)
	}
}

func TestResolve_OnceAndTerminalOnly(t *testing.T) {
	f := newFixture(t)
	creator := uuid.New()
	f.fund(t, creator, 100_000_000)
	m := f.createMarket(t, creator, 100_000_000)

	ctx := context.Background()
	if _, err := f.engine.Resolve(ctx, engine.ResolveParams{
		MarketID: m.ID, Resolver: f.admin, Outcome: market.OutcomeUnresolved,
	}); err == nil {
		t.Error("unresolved is not a terminal outcome")
	}

	if _, err := f.engine.Resolve(ctx, engine.ResolveParams{
		MarketID: m.ID, Resolver: f.admin, Outcome: market.OutcomeInvalid,
	}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if _, err := f.engine.Resolve(ctx, engine.ResolveParams{
		MarketID: m.ID, Resolver: f.admin, Outcome: market.OutcomeYes,
	}); !errors.Is(err, engine.ErrAlreadyResolved) {
		t.Errorf("second resolve: got %v", err)
	}

	// Authorization is checked first, so a stranger hitting a resolved
	// market still sees the authorization error.
	if _, err := f.engine.Resolve(ctx, engine.ResolveParams{
		MarketID: m.ID, Resolver: uuid.New(), Outcome: market.OutcomeYes,
	}); !errors.Is(err, engine.ErrUnauthorizedResolver) {
		t.Errorf("stranger on resolved market: got %v", err)
	}

	env := f.recorder.Last()
	if env.Type != event.TypeMarketResolved {
		t.Errorf("envelope type: %v", env.Type)
	}
}

// ============================================================================
// Test: Claim
// ============================================================================

// settleScenario builds the canonical two-bettor market: 100M seed, 20M on
// yes from A, 30M on no from B.
func settleScenario(t *testing.T, f *fixture) (m *market.Market, a, b uuid.UUID) {
	t.Helper()
	creator := uuid.New()
	a, b = uuid.New(), uuid.New()
	f.fund(t, creator, 100_000_000)
	f.fund(t, a, 20_000_000)
	f.fund(t, b, 30_000_000)

	m = f.createMarket(t, creator, 100_000_000)
	ctx := context.Background()
	if _, err := f.engine.PlaceBet(ctx, engine.BetParams{User: a, MarketID: m.ID, Side: market.SideYes, Amount: 20_000_000}); err != nil {
		t.Fatalf("bet A: %v", err)
	}
	if _, err := f.engine.PlaceBet(ctx, engine.BetParams{User: b, MarketID: m.ID, Side: market.SideNo, Amount: 30_000_000}); err != nil {
		t.Fatalf("bet B: %v", err)
	}
	return m, a, b
}

func TestClaim_ProportionalPayout(t *testing.T) {
	f := newFixture(t)
	m, a, b := settleScenario(t, f)
	ctx := context.Background()

	if _, err := f.engine.Claim(ctx, engine.ClaimParams{User: a, MarketID: m.ID}); !errors.Is(err, engine.ErrMarketNotResolved) {
		t.Errorf("claim before resolve: got %v", err)
	}

	if _, err := f.engine.Resolve(ctx, engine.ResolveParams{MarketID: m.ID, Resolver: f.admin, Outcome: market.OutcomeYes}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// A: 20M stake back + floor(20M * 80M / 150M) = 30_666_666.
	payout, err := f.engine.Claim(ctx, engine.ClaimParams{User: a, MarketID: m.ID})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if payout != 30_666_666 {
		t.Errorf("payout: got %d, want 30666666", payout)
	}
	if got := f.funds.Balance(ledger.UserAccount(a)); got != 30_666_666 {
		t.Errorf("winner balance: got %d", got)
	}
	if got := f.funds.EscrowBalance(m.ID); got != 150_000_000-30_666_666 {
		t.Errorf("escrow after payout: got %d", got)
	}

	pos, _ := f.store.GetPosition(ctx, a, m.ID)
	if !pos.Claimed {
		t.Error("winner position must be marked claimed")
	}

	// Second claim by the winner is a conflict.
	if _, err := f.engine.Claim(ctx, engine.ClaimParams{User: a, MarketID: m.ID}); !errors.Is(err, engine.ErrAlreadyClaimed) {
		t.Errorf("double claim: got %v", err)
	}

	// Loser gets nothing, stays unclaimed, and the call repeats identically.
	for i := 0; i < 2; i++ {
		if _, err := f.engine.Claim(ctx, engine.ClaimParams{User: b, MarketID: m.ID}); !errors.Is(err, engine.ErrNoWinnings) {
			t.Errorf("loser claim %d: got %v", i, err)
		}
	}
	posB, _ := f.store.GetPosition(ctx, b, m.ID)
	if posB.Claimed {
		t.Error("loser position must stay unclaimed")
	}

	env := f.recorder.Last()
	if env.Type != event.TypeWinningsClaimed {
		t.Errorf("envelope type: %v", env.Type)
	}
}

func TestClaim_InvalidOutcomeRefundsStake(t *testing.T) {
	f := newFixture(t)
	m, a, b := settleScenario(t, f)
	ctx := context.Background()

	if _, err := f.engine.Resolve(ctx, engine.ResolveParams{MarketID: m.ID, Resolver: f.admin, Outcome: market.OutcomeInvalid}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	payoutA, err := f.engine.Claim(ctx, engine.ClaimParams{User: a, MarketID: m.ID})
	if err != nil || payoutA != 20_000_000 {
		t.Errorf("A refund: got %d, %v", payoutA, err)
	}
	payoutB, err := f.engine.Claim(ctx, engine.ClaimParams{User: b, MarketID: m.ID})
	if err != nil || payoutB != 30_000_000 {
		t.Errorf("B refund: got %d, %v", payoutB, err)
	}
}

func TestClaim_UnknownPosition(t *testing.T) {
	f := newFixture(t)
	m, _, _ := settleScenario(t, f)
	ctx := context.Background()

	if _, err := f.engine.Resolve(ctx, engine.ResolveParams{MarketID: m.ID, Resolver: f.admin, Outcome: market.OutcomeYes}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := f.engine.Claim(ctx, engine.ClaimParams{User: uuid.New(), MarketID: m.ID}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("stranger claim: got %v", err)
	}
}

// ============================================================================
// Test: store-write failure compensation
// ============================================================================

var errStoreDown = errors.New("store unavailable")

// flakyStore fails selected writes so the compensating transfers can be
// observed.
type flakyStore struct {
	*store.Memory
	failCreateMarket bool
	failCommitBet    bool
	failPutPosition  bool
}

func (s *flakyStore) CreateMarket(ctx context.Context, m *market.Market) error {
	if s.failCreateMarket {
		return errStoreDown
	}
	return s.Memory.CreateMarket(ctx, m)
}

func (s *flakyStore) CommitBet(ctx context.Context, m *market.Market, p *market.Position) error {
	if s.failCommitBet {
		return errStoreDown
	}
	return s.Memory.CommitBet(ctx, m, p)
}

func (s *flakyStore) PutPosition(ctx context.Context, p *market.Position) error {
	if s.failPutPosition {
		return errStoreDown
	}
	return s.Memory.PutPosition(ctx, p)
}

func newFlakyFixture(t *testing.T) (*fixture, *flakyStore) {
	t.Helper()

	f := &fixture{
		store:    store.NewMemory(),
		funds:    ledger.NewEscrowTracker(),
		recorder: event.NewRecorder(),
		admin:    uuid.New(),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	fs := &flakyStore{Memory: f.store}
	f.engine = engine.New(fs, f.funds, f.recorder, engine.Config{
		Admin: f.admin,
	}, nil, zerolog.Nop())
	f.engine.SetClock(func() time.Time { return f.now })
	return f, fs
}

func TestCreateMarket_StoreFailureReversesEscrow(t *testing.T) {
	f, fs := newFlakyFixture(t)
	creator := uuid.New()
	f.fund(t, creator, 100_000_000)
	fs.failCreateMarket = true

	_, err := f.engine.CreateMarket(context.Background(), engine.CreateMarketParams{
		Title:            "Will the launch happen this quarter",
		Description:      strings.Repeat("d", 80),
		Deadline:         f.now.Add(time.Hour),
		Creator:          creator,
		InitialLiquidity: 100_000_000,
	})
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("create: got %v", err)
	}
	if got := f.funds.Balance(ledger.UserAccount(creator)); got != 100_000_000 {
		t.Errorf("creator balance after failed create: got %d", got)
	}
	if got := len(f.recorder.Envelopes()); got != 0 {
		t.Errorf("events after failed create: got %d", got)
	}
}

func TestPlaceBet_StoreFailureReversesStake(t *testing.T) {
	f, fs := newFlakyFixture(t)
	creator, bettor := uuid.New(), uuid.New()
	f.fund(t, creator, 100_000_000)
	f.fund(t, bettor, 20_000_000)
	m := f.createMarket(t, creator, 100_000_000)

	fs.failCommitBet = true
	ctx := context.Background()
	_, err := f.engine.PlaceBet(ctx, engine.BetParams{
		User: bettor, MarketID: m.ID, Side: market.SideYes, Amount: 20_000_000,
	})
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("bet: got %v", err)
	}

	if got := f.funds.Balance(ledger.UserAccount(bettor)); got != 20_000_000 {
		t.Errorf("bettor balance after failed bet: got %d", got)
	}
	if got := f.funds.EscrowBalance(m.ID); got != 100_000_000 {
		t.Errorf("escrow after failed bet: got %d", got)
	}
	if _, err := f.store.GetPosition(ctx, bettor, m.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("position after failed bet: got %v", err)
	}
	if env := f.recorder.Last(); env.Type != event.TypeMarketCreated {
		t.Errorf("last event after failed bet: %v", env.Type)
	}

	// The same bet succeeds once the store recovers, so nothing was
	// half-committed.
	fs.failCommitBet = false
	if _, err := f.engine.PlaceBet(ctx, engine.BetParams{
		User: bettor, MarketID: m.ID, Side: market.SideYes, Amount: 20_000_000,
	}); err != nil {
		t.Fatalf("retry bet: %v", err)
	}
}

func TestClaim_StoreFailureReturnsPayoutToEscrow(t *testing.T) {
	f, fs := newFlakyFixture(t)
	m, a, _ := settleScenario(t, f)
	ctx := context.Background()

	if _, err := f.engine.Resolve(ctx, engine.ResolveParams{MarketID: m.ID, Resolver: f.admin, Outcome: market.OutcomeYes}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	fs.failPutPosition = true
	if _, err := f.engine.Claim(ctx, engine.ClaimParams{User: a, MarketID: m.ID}); !errors.Is(err, errStoreDown) {
		t.Fatalf("claim: got %v", err)
	}

	if got := f.funds.Balance(ledger.UserAccount(a)); got != 0 {
		t.Errorf("winner balance after failed claim: got %d", got)
	}
	if got := f.funds.EscrowBalance(m.ID); got != 150_000_000 {
		t.Errorf("escrow after failed claim: got %d", got)
	}
	pos, err := f.store.GetPosition(ctx, a, m.ID)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos.Claimed {
		t.Error("failed claim must leave the position unclaimed")
	}

	// A retry pays out exactly once.
	fs.failPutPosition = false
	payout, err := f.engine.Claim(ctx, engine.ClaimParams{User: a, MarketID: m.ID})
	if err != nil || payout != 30_666_666 {
		t.Fatalf("retry claim: got %d, %v", payout, err)
	}
	if got := f.funds.Balance(ledger.UserAccount(a)); got != 30_666_666 {
		t.Errorf("winner balance after retry: got %d", got)
	}
	if _, err := f.engine.Claim(ctx, engine.ClaimParams{User: a, MarketID: m.ID}); !errors.Is(err, engine.ErrAlreadyClaimed) {
		t.Errorf("third claim: got %v", err)
	}
}

// ============================================================================
// Test: Event sequencing
// ============================================================================

func TestEvents_SequenceMatchesCommitOrder(t *testing.T) {
	f := newFixture(t)
	m, a, _ := settleScenario(t, f)
	ctx := context.Background()

	if _, err := f.engine.Resolve(ctx, engine.ResolveParams{MarketID: m.ID, Resolver: f.admin, Outcome: market.OutcomeYes}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := f.engine.Claim(ctx, engine.ClaimParams{User: a, MarketID: m.ID}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	envs := f.recorder.Envelopes()
	wantTypes := []event.Type{
		event.TypeMarketCreated,
		event.TypeBetPlaced,
		event.TypeBetPlaced,
		event.TypeMarketResolved,
		event.TypeWinningsClaimed,
	}
	if len(envs) != len(wantTypes) {
		t.Fatalf("got %d envelopes, want %d", len(envs), len(wantTypes))
	}
	for i, env := range envs {
		if env.Type != wantTypes[i] {
			t.Errorf("envelope %d: got %v, want %v", i, env.Type, wantTypes[i])
		}
		if env.Sequence != int64(i+1) {
			t.Errorf("envelope %d: sequence %d", i, env.Sequence)
		}
		if env.MarketID != m.ID {
			t.Errorf("envelope %d: market %s", i, env.MarketID)
		}
	}
}

func TestEvents_StartSequenceResumes(t *testing.T) {
	f := newFixture(t)
	f.engine.SetStartSequence(41)
	creator := uuid.New()
	f.fund(t, creator, 100_000_000)
	f.createMarket(t, creator, 100_000_000)

	if env := f.recorder.Last(); env.Sequence != 42 {
		t.Errorf("sequence: got %d, want 42", env.Sequence)
	}
}

// ============================================================================
// Test: Error classification
// ============================================================================

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want engine.Class
	}{
		{engine.ErrBelowMinimumBet, engine.ClassValidation},
		{engine.ErrAlreadyBet, engine.ClassConflict},
		{engine.ErrNoWinnings, engine.ClassConflict},
		{engine.ErrAmountOverflow, engine.ClassArithmetic},
		{store.ErrNotFound, engine.ClassNotFound},
		{ledger.ErrInsufficientFunds, engine.ClassFunds},
		{errors.New("disk on fire"), engine.ClassInternal},
	}
	for _, tc := range cases {
		if got := engine.Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v): got %v, want %v", tc.err, got, tc.want)
		}
	}
	// Wrapped sentinels classify the same.
	wrapped := fmtWrap(engine.ErrAlreadyClaimed)
	if engine.Classify(wrapped) != engine.ClassConflict {
		t.Error("wrapped sentinel should classify as conflict")
	}
}

func fmtWrap(err error) error {
	return &wrapErr{err}
}

type wrapErr struct{ inner error }

func (w *wrapErr) Error() string { return "op failed: " + w.inner.Error() }
func (w *wrapErr) Unwrap() error { return w.inner }
