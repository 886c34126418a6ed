package store

import (
	"context"
	"sort"
	"sync"

	"MarketSettle/internal/market"

	"github.com/google/uuid"
)

type positionKey struct {
	User   uuid.UUID
	Market uuid.UUID
}

// Memory is an in-process Store used by tests and single-node deployments
// without Postgres. All methods copy on the way in and out so callers never
// share record memory with the store.
type Memory struct {
	mu        sync.RWMutex
	markets   map[uuid.UUID]market.Market
	positions map[positionKey]market.Position
	events    []EventRecord
	transfers []TransferRecord
}

func NewMemory() *Memory {
	return &Memory{
		markets:   make(map[uuid.UUID]market.Market),
		positions: make(map[positionKey]market.Position),
	}
}

func (s *Memory) CreateMarket(_ context.Context, m *market.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; ok {
		return ErrAlreadyExists
	}
	s.markets[m.ID] = *m
	return nil
}

func (s *Memory) GetMarket(_ context.Context, id uuid.UUID) (*market.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *Memory) UpdateMarket(_ context.Context, m *market.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; !ok {
		return ErrNotFound
	}
	s.markets[m.ID] = *m
	return nil
}

func (s *Memory) ListMarkets(_ context.Context, filter MarketFilter, page, pageSize int) ([]*market.Market, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]market.Market, 0, len(s.markets))
	for _, m := range s.markets {
		if !matchesFilter(&m, filter) {
			continue
		}
		matched = append(matched, m)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start, end := pageBounds(len(matched), page, pageSize)
	out := make([]*market.Market, 0, end-start)
	for i := start; i < end; i++ {
		m := matched[i]
		out = append(out, &m)
	}
	return out, total, nil
}

func matchesFilter(m *market.Market, filter MarketFilter) bool {
	switch filter.Status {
	case "Open":
		if !m.Open() {
			return false
		}
	case "Resolved":
		if m.Open() {
			return false
		}
	}
	if filter.Category != nil && m.Category != *filter.Category {
		return false
	}
	if filter.Subject != "" && m.Subject != filter.Subject {
		return false
	}
	return true
}

func pageBounds(n, page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	start := (page - 1) * pageSize
	if start > n {
		start = n
	}
	end := start + pageSize
	if end > n {
		end = n
	}
	return start, end
}

func (s *Memory) GetPosition(_ context.Context, user, marketID uuid.UUID) (*market.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[positionKey{User: user, Market: marketID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *Memory) PutPosition(_ context.Context, p *market.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[positionKey{User: p.User, Market: p.MarketID}] = *p
	return nil
}

func (s *Memory) ListUserPositions(_ context.Context, user uuid.UUID) ([]*market.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*market.Position
	for k, p := range s.positions {
		if k.User != user {
			continue
		}
		cp := p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastTradeAt.Before(out[j].LastTradeAt)
	})
	return out, nil
}

func (s *Memory) ListMarketPositions(_ context.Context, marketID uuid.UUID) ([]*market.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*market.Position
	for k, p := range s.positions {
		if k.Market != marketID {
			continue
		}
		cp := p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].User.String() < out[j].User.String()
	})
	return out, nil
}

// CommitBet writes the updated market and position under one lock
// acquisition, so concurrent readers see both or neither.
func (s *Memory) CommitBet(_ context.Context, m *market.Market, p *market.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; !ok {
		return ErrNotFound
	}
	s.markets[m.ID] = *m
	s.positions[positionKey{User: p.User, Market: p.MarketID}] = *p
	return nil
}

func (s *Memory) AppendEvent(_ context.Context, rec EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, rec)
	return nil
}

func (s *Memory) AppendTransfer(_ context.Context, rec TransferRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers = append(s.transfers, rec)
	return nil
}

// Events returns the appended event log, oldest first.
func (s *Memory) Events() []EventRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]EventRecord, len(s.events))
	copy(out, s.events)
	return out
}
