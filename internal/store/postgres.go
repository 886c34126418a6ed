package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"MarketSettle/internal/market"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Postgres implements Store plus the append-only event and transfer logs on
// a PostgreSQL database. Monetary amounts are stored as BIGINT; lamport
// quantities in this system stay far below 2^63.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const insertMarketSQL = `
INSERT INTO markets (
	id, title, description, category, event_type, subject,
	resolution_deadline, creator, resolver,
	yes_pool, no_pool, total_volume, outcome, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

func (s *Postgres) CreateMarket(ctx context.Context, m *market.Market) error {
	_, err := s.db.ExecContext(ctx, insertMarketSQL,
		m.ID, m.Title, m.Description, int16(m.Category), int16(m.EventType), m.Subject,
		m.ResolutionDeadline, m.Creator, m.Resolver,
		int64(m.YesPool), int64(m.NoPool), int64(m.TotalVolume), int16(m.Outcome), m.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert market: %w", err)
	}
	return nil
}

const selectMarketSQL = `
SELECT id, title, description, category, event_type, subject,
	resolution_deadline, creator, resolver,
	yes_pool, no_pool, total_volume, outcome, created_at
FROM markets WHERE id = $1`

func (s *Postgres) GetMarket(ctx context.Context, id uuid.UUID) (*market.Market, error) {
	return scanMarket(s.db.QueryRowContext(ctx, selectMarketSQL, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMarket(row rowScanner) (*market.Market, error) {
	var (
		m                            market.Market
		category, eventType, outcome int16
		yesPool, noPool, volume      int64
	)
	err := row.Scan(
		&m.ID, &m.Title, &m.Description, &category, &eventType, &m.Subject,
		&m.ResolutionDeadline, &m.Creator, &m.Resolver,
		&yesPool, &noPool, &volume, &outcome, &m.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan market: %w", err)
	}
	m.Category = uint8(category)
	m.EventType = uint8(eventType)
	m.Outcome = market.Outcome(outcome)
	m.YesPool = uint64(yesPool)
	m.NoPool = uint64(noPool)
	m.TotalVolume = uint64(volume)
	return &m, nil
}

const updateMarketSQL = `
UPDATE markets SET
	yes_pool = $2, no_pool = $3, total_volume = $4, outcome = $5
WHERE id = $1`

func (s *Postgres) UpdateMarket(ctx context.Context, m *market.Market) error {
	return execMarketUpdate(ctx, s.db, m)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execMarketUpdate(ctx context.Context, ex execer, m *market.Market) error {
	res, err := ex.ExecContext(ctx, updateMarketSQL,
		m.ID, int64(m.YesPool), int64(m.NoPool), int64(m.TotalVolume), int16(m.Outcome))
	if err != nil {
		return fmt.Errorf("update market: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update market: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) ListMarkets(ctx context.Context, filter MarketFilter, page, pageSize int) ([]*market.Market, int64, error) {
	where, args := buildMarketWhere(filter)

	var total int64
	countQuery := "SELECT COUNT(*) FROM markets" + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count markets: %w", err)
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	query := `
SELECT id, title, description, category, event_type, subject,
	resolution_deadline, creator, resolver,
	yes_pool, no_pool, total_volume, outcome, created_at
FROM markets` + where + fmt.Sprintf(`
ORDER BY created_at DESC, id
LIMIT %d OFFSET %d`, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list markets: %w", err)
	}
	defer rows.Close()

	var out []*market.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

func buildMarketWhere(filter MarketFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	switch filter.Status {
	case "Open":
		clauses = append(clauses, fmt.Sprintf("outcome = %d", int16(market.OutcomeUnresolved)))
	case "Resolved":
		clauses = append(clauses, fmt.Sprintf("outcome <> %d", int16(market.OutcomeUnresolved)))
	}
	if filter.Category != nil {
		args = append(args, int16(*filter.Category))
		clauses = append(clauses, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Subject != "" {
		args = append(args, filter.Subject)
		clauses = append(clauses, fmt.Sprintf("subject = $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

const selectPositionSQL = `
SELECT user_id, market_id, yes_shares, no_shares, total_cost, last_trade_at, claimed
FROM positions WHERE user_id = $1 AND market_id = $2`

func (s *Postgres) GetPosition(ctx context.Context, user, marketID uuid.UUID) (*market.Position, error) {
	return scanPosition(s.db.QueryRowContext(ctx, selectPositionSQL, user, marketID))
}

func scanPosition(row rowScanner) (*market.Position, error) {
	var (
		p             market.Position
		yes, no, cost int64
	)
	err := row.Scan(&p.User, &p.MarketID, &yes, &no, &cost, &p.LastTradeAt, &p.Claimed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan position: %w", err)
	}
	p.YesShares = uint64(yes)
	p.NoShares = uint64(no)
	p.TotalCost = uint64(cost)
	return &p, nil
}

const upsertPositionSQL = `
INSERT INTO positions (user_id, market_id, yes_shares, no_shares, total_cost, last_trade_at, claimed)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (user_id, market_id) DO UPDATE SET
	yes_shares = EXCLUDED.yes_shares,
	no_shares = EXCLUDED.no_shares,
	total_cost = EXCLUDED.total_cost,
	last_trade_at = EXCLUDED.last_trade_at,
	claimed = EXCLUDED.claimed`

func (s *Postgres) PutPosition(ctx context.Context, p *market.Position) error {
	return execPositionPut(ctx, s.db, p)
}

func execPositionPut(ctx context.Context, ex execer, p *market.Position) error {
	_, err := ex.ExecContext(ctx, upsertPositionSQL,
		p.User, p.MarketID, int64(p.YesShares), int64(p.NoShares), int64(p.TotalCost),
		p.LastTradeAt, p.Claimed)
	if err != nil {
		return fmt.Errorf("put position: %w", err)
	}
	return nil
}

func (s *Postgres) ListUserPositions(ctx context.Context, user uuid.UUID) ([]*market.Position, error) {
	const q = `
SELECT user_id, market_id, yes_shares, no_shares, total_cost, last_trade_at, claimed
FROM positions WHERE user_id = $1 ORDER BY last_trade_at`
	return s.queryPositions(ctx, q, user)
}

func (s *Postgres) ListMarketPositions(ctx context.Context, marketID uuid.UUID) ([]*market.Position, error) {
	const q = `
SELECT user_id, market_id, yes_shares, no_shares, total_cost, last_trade_at, claimed
FROM positions WHERE market_id = $1 ORDER BY user_id`
	return s.queryPositions(ctx, q, marketID)
}

func (s *Postgres) queryPositions(ctx context.Context, query string, arg any) ([]*market.Position, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var out []*market.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CommitBet applies the pool increment and the position upsert in one
// transaction.
func (s *Postgres) CommitBet(ctx context.Context, m *market.Market, p *market.Position) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bet commit: %w", err)
	}
	defer tx.Rollback()

	if err := execMarketUpdate(ctx, tx, m); err != nil {
		return err
	}
	if err := execPositionPut(ctx, tx, p); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bet: %w", err)
	}
	return nil
}

const insertEventSQL = `
INSERT INTO settlement_events (sequence, event_type, market_id, payload, created_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (sequence) DO NOTHING`

func (s *Postgres) AppendEvent(ctx context.Context, rec EventRecord) error {
	_, err := s.db.ExecContext(ctx, insertEventSQL,
		rec.Sequence, rec.EventType, rec.MarketID, rec.Payload, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// LastEventSequence returns the highest sequence in the event log, or 0 when
// the log is empty. The engine resumes its sequence from here on startup.
func (s *Postgres) LastEventSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM settlement_events`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("read last event sequence: %w", err)
	}
	return seq, nil
}

const insertTransferSQL = `
INSERT INTO escrow_journal (from_account, to_account, amount, reference, created_at)
VALUES ($1,$2,$3,$4,$5)`

func (s *Postgres) AppendTransfer(ctx context.Context, rec TransferRecord) error {
	_, err := s.db.ExecContext(ctx, insertTransferSQL,
		rec.FromAccount, rec.ToAccount, int64(rec.Amount), rec.Reference, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("append transfer: %w", err)
	}
	return nil
}
