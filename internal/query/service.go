package query

import (
	"context"
	"fmt"

	"MarketSettle/internal/market"
	u64math "MarketSettle/internal/math"
	"MarketSettle/internal/store"

	"github.com/google/uuid"
)

// Service answers read-side requests from the durable records. It never
// mutates state; claim previews recompute the payout the engine would pay.
type Service struct {
	markets   store.MarketRegistry
	positions store.PositionStore
}

func NewService(markets store.MarketRegistry, positions store.PositionStore) *Service {
	return &Service{markets: markets, positions: positions}
}

// ListMarkets returns one page of markets matching the filter, newest first.
func (s *Service) ListMarkets(ctx context.Context, filter store.MarketFilter, page, pageSize int) (*MarketPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}

	markets, total, err := s.markets.ListMarkets(ctx, filter, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}

	out := &MarketPage{
		Markets:  make([]MarketSummary, 0, len(markets)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	for _, m := range markets {
		out.Markets = append(out.Markets, summarize(m))
	}
	return out, nil
}

// GetMarket returns the full view of one market.
func (s *Service) GetMarket(ctx context.Context, id uuid.UUID) (*MarketDetail, error) {
	m, err := s.markets.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}
	return &MarketDetail{
		MarketSummary: summarize(m),
		Description:   m.Description,
		Creator:       m.Creator,
		Resolver:      m.Resolver,
	}, nil
}

// Portfolio joins a user's positions with their markets and previews the
// claimable payout for each.
func (s *Service) Portfolio(ctx context.Context, user uuid.UUID) (*Portfolio, error) {
	positions, err := s.positions.ListUserPositions(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}

	out := &Portfolio{User: user, Positions: make([]PortfolioEntry, 0, len(positions))}
	for _, pos := range positions {
		m, err := s.markets.GetMarket(ctx, pos.MarketID)
		if err != nil {
			return nil, fmt.Errorf("load market %s: %w", pos.MarketID, err)
		}

		side := market.SideYes
		if pos.NoShares > 0 {
			side = market.SideNo
		}

		out.Positions = append(out.Positions, PortfolioEntry{
			MarketID:     m.ID,
			Title:        m.Title,
			MarketStatus: m.Status(),
			Outcome:      m.Outcome.String(),
			Side:         side.String(),
			Shares:       pos.Shares(side),
			TotalCost:    pos.TotalCost,
			Claimed:      pos.Claimed,
			Claimable:    claimable(m, pos),
			LastTradeAt:  pos.LastTradeAt,
		})
	}
	return out, nil
}

// MarketPositions lists every stake on one market, ordered by user id.
func (s *Service) MarketPositions(ctx context.Context, marketID uuid.UUID) ([]PositionView, error) {
	if _, err := s.markets.GetMarket(ctx, marketID); err != nil {
		return nil, err
	}
	positions, err := s.positions.ListMarketPositions(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("list market positions: %w", err)
	}

	out := make([]PositionView, 0, len(positions))
	for _, pos := range positions {
		side := market.SideYes
		if pos.NoShares > 0 {
			side = market.SideNo
		}
		out = append(out, PositionView{
			User:      pos.User,
			Side:      side.String(),
			Shares:    pos.Shares(side),
			TotalCost: pos.TotalCost,
			Claimed:   pos.Claimed,
			PlacedAt:  pos.LastTradeAt,
		})
	}
	return out, nil
}

// claimable mirrors the engine's payout computation for display.
func claimable(m *market.Market, pos *market.Position) uint64 {
	if m.Open() || pos.Claimed {
		return 0
	}
	if m.Outcome == market.OutcomeInvalid {
		return pos.TotalCost
	}
	winningShares := pos.WinningShares(m.Outcome)
	if winningShares == 0 {
		return 0
	}
	losing := market.SideYes
	if m.Outcome == market.OutcomeYes {
		losing = market.SideNo
	}
	payout, err := u64math.Payout(pos.TotalCost, winningShares, m.Pool(losing), m.TotalVolume)
	if err != nil {
		return 0
	}
	return payout
}

func summarize(m *market.Market) MarketSummary {
	return MarketSummary{
		ID:                 m.ID,
		Title:              m.Title,
		Category:           m.Category,
		EventType:          m.EventType,
		Subject:            m.Subject,
		Status:             m.Status(),
		Outcome:            m.Outcome.String(),
		YesPool:            m.YesPool,
		NoPool:             m.NoPool,
		TotalVolume:        m.TotalVolume,
		ResolutionDeadline: m.ResolutionDeadline,
		CreatedAt:          m.CreatedAt,
	}
}
