package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"MarketSettle/internal/market"
	"MarketSettle/internal/store"
	"MarketSettle/internal/testutil"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// setupPostgres opens the test database, applies migrations, and returns the
// store. Skips when the test database is unreachable.
func setupPostgres(t *testing.T) *store.Postgres {
	t.Helper()
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	migrator := store.NewMigrator(db, "../../migrations", zerolog.Nop())
	if err := migrator.Up(context.Background()); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return store.NewPostgres(db)
}

func pgMarket() *market.Market {
	return &market.Market{
		ID:                 uuid.New(),
		Title:              "a market title long enough",
		Description:        "a description easily long enough to pass the lower length bound",
		Category:           market.DefaultCategory,
		Subject:            "launch",
		ResolutionDeadline: time.Now().Add(24 * time.Hour).UTC().Truncate(time.Microsecond),
		Creator:            uuid.New(),
		Resolver:           uuid.New(),
		YesPool:            50_000_000,
		NoPool:             50_000_000,
		TotalVolume:        100_000_000,
		CreatedAt:          time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestPostgres_MarketRoundTrip(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	m := pgMarket()
	if err := s.CreateMarket(ctx, m); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateMarket(ctx, m); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("duplicate create: got %v", err)
	}

	got, err := s.GetMarket(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != m.Title || got.YesPool != m.YesPool || !got.Open() {
		t.Errorf("round trip mismatch: %+v", got)
	}

	got.Outcome = market.OutcomeYes
	if err := s.UpdateMarket(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	again, err := s.GetMarket(ctx, m.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Outcome != market.OutcomeYes || again.Open() {
		t.Errorf("resolved market: %+v", again)
	}

	if _, err := s.GetMarket(ctx, uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown market: got %v", err)
	}
	missing := pgMarket()
	if err := s.UpdateMarket(ctx, missing); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("update unknown market: got %v", err)
	}
}

func TestPostgres_CommitBet(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	m := pgMarket()
	if err := s.CreateMarket(ctx, m); err != nil {
		t.Fatalf("create: %v", err)
	}

	user := uuid.New()
	m.YesPool = 70_000_000
	m.TotalVolume = 120_000_000
	pos := &market.Position{
		User:        user,
		MarketID:    m.ID,
		YesShares:   20_000_000,
		TotalCost:   20_000_000,
		LastTradeAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := s.CommitBet(ctx, m, pos); err != nil {
		t.Fatalf("commit bet: %v", err)
	}

	gotMarket, err := s.GetMarket(ctx, m.ID)
	if err != nil {
		t.Fatalf("reload market: %v", err)
	}
	if gotMarket.YesPool != 70_000_000 || gotMarket.TotalVolume != 120_000_000 {
		t.Errorf("market after bet: %+v", gotMarket)
	}

	gotPos, err := s.GetPosition(ctx, user, m.ID)
	if err != nil {
		t.Fatalf("reload position: %v", err)
	}
	if gotPos.YesShares != 20_000_000 || gotPos.TotalCost != 20_000_000 || gotPos.Claimed {
		t.Errorf("position after bet: %+v", gotPos)
	}

	positions, err := s.ListUserPositions(ctx, user)
	if err != nil {
		t.Fatalf("list positions: %v", err)
	}
	if len(positions) != 1 {
		t.Errorf("got %d positions", len(positions))
	}
}

func TestPostgres_CommitBetUnknownMarketRollsBack(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	m := pgMarket()
	user := uuid.New()
	pos := &market.Position{
		User: user, MarketID: m.ID,
		YesShares: 1_000_000, TotalCost: 1_000_000,
		LastTradeAt: time.Now().UTC(),
	}
	if err := s.CommitBet(ctx, m, pos); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("commit against missing market: got %v", err)
	}
	if _, err := s.GetPosition(ctx, user, m.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("position must not survive the rollback: got %v", err)
	}
}

func TestPostgres_EventLog(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	seq, err := s.LastEventSequence(ctx)
	if err != nil {
		t.Fatalf("last sequence: %v", err)
	}
	if seq != 0 {
		t.Fatalf("empty log sequence: got %d", seq)
	}

	rec := store.EventRecord{
		Sequence:  1,
		EventType: "market_created",
		MarketID:  uuid.New(),
		Payload:   []byte(`{"initial_liquidity":100000000}`),
		Timestamp: time.Now().UTC(),
	}
	if err := s.AppendEvent(ctx, rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	// Replaying the same sequence is a no-op, not an error.
	if err := s.AppendEvent(ctx, rec); err != nil {
		t.Fatalf("replay append: %v", err)
	}

	seq, err = s.LastEventSequence(ctx)
	if err != nil {
		t.Fatalf("last sequence: %v", err)
	}
	if seq != 1 {
		t.Errorf("sequence after append: got %d", seq)
	}
}

func TestPostgres_TransferJournal(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	err := s.AppendTransfer(ctx, store.TransferRecord{
		FromAccount: "user:" + uuid.New().String(),
		ToAccount:   "escrow:" + uuid.New().String(),
		Amount:      20_000_000,
		Reference:   "bet",
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("append transfer: %v", err)
	}
}
