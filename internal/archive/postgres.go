package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Mishragini/OpiniXchange/internal/model"
)

// Schema is applied by Migrate. Cash and order prices are BIGINT minor
// units; last prices are NUMERIC whole units.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id         TEXT PRIMARY KEY,
	username   TEXT NOT NULL,
	email      TEXT NOT NULL,
	role       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS account_balances (
	account_id    TEXT PRIMARY KEY,
	inr_available BIGINT NOT NULL,
	inr_locked    BIGINT NOT NULL,
	stocks        JSONB NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS categories (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	icon        TEXT NOT NULL,
	description TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS markets (
	id              TEXT PRIMARY KEY,
	symbol          TEXT NOT NULL,
	description     TEXT NOT NULL,
	end_time        TIMESTAMPTZ NOT NULL,
	source_of_truth TEXT NOT NULL,
	category_id     TEXT NOT NULL,
	status          TEXT NOT NULL,
	last_yes_price  NUMERIC NOT NULL,
	last_no_price   NUMERIC NOT NULL,
	total_volume    BIGINT NOT NULL,
	created_by      TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS orders (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	market_symbol TEXT NOT NULL,
	side          TEXT NOT NULL,
	quantity      BIGINT NOT NULL,
	remaining_qty BIGINT NOT NULL,
	price         BIGINT NOT NULL,
	status        TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS orders_market_symbol_idx ON orders (market_symbol);
`

// PostgresSink implements Sink on PostgreSQL.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink creates a sink writing through pool.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// Migrate creates the mirror tables if they do not exist.
func (s *PostgresSink) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresSink) SaveAccount(ctx context.Context, a *model.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, username, email, role)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET username = EXCLUDED.username, email = EXCLUDED.email, role = EXCLUDED.role`,
		a.ID, a.Username, a.Email, string(a.Role),
	)
	if err != nil {
		return fmt.Errorf("save account %s: %w", a.ID, err)
	}
	return s.SaveBalance(ctx, a)
}

func (s *PostgresSink) SaveBalance(ctx context.Context, a *model.Account) error {
	stocks, err := json.Marshal(a.Balance.Stocks)
	if err != nil {
		return fmt.Errorf("encode stocks of %s: %w", a.ID, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO account_balances (account_id, inr_available, inr_locked, stocks, updated_at)
		 VALUES ($1, $2, $3, $4::JSONB, $5)
		 ON CONFLICT (account_id) DO UPDATE
		 SET inr_available = EXCLUDED.inr_available, inr_locked = EXCLUDED.inr_locked,
		     stocks = EXCLUDED.stocks, updated_at = EXCLUDED.updated_at`,
		a.ID, a.Balance.INR.Available, a.Balance.INR.Locked, string(stocks), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save balance %s: %w", a.ID, err)
	}
	return nil
}

func (s *PostgresSink) SaveCategory(ctx context.Context, c *model.Category) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO categories (id, title, icon, description)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		c.ID, c.Title, c.Icon, c.Description,
	)
	if err != nil {
		return fmt.Errorf("save category %s: %w", c.ID, err)
	}
	return nil
}

func (s *PostgresSink) SaveMarket(ctx context.Context, m *model.Market) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (id, symbol, description, end_time, source_of_truth, category_id,
		                      status, last_yes_price, last_no_price, total_volume, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::NUMERIC, $9::NUMERIC, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE
		 SET status = EXCLUDED.status, last_yes_price = EXCLUDED.last_yes_price,
		     last_no_price = EXCLUDED.last_no_price, total_volume = EXCLUDED.total_volume`,
		m.ID, m.Symbol, m.Description, m.EndTime, m.SourceOfTruth, m.CategoryID,
		string(m.Status), m.LastYesPrice.String(), m.LastNoPrice.String(), m.TotalVolume,
		m.CreatedBy, m.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("save market %s: %w", m.Symbol, err)
	}
	return nil
}

func (s *PostgresSink) SaveOrder(ctx context.Context, o *model.Order) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO orders (id, user_id, market_symbol, side, quantity, remaining_qty, price, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE
		 SET remaining_qty = EXCLUDED.remaining_qty, status = EXCLUDED.status`,
		o.ID, o.UserID, o.MarketSymbol, string(o.Side), o.Quantity, o.RemainingQty, o.Price,
		string(o.Status), o.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("save order %s: %w", o.ID, err)
	}
	return nil
}

func (s *PostgresSink) CancelOrder(ctx context.Context, orderID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1`,
		orderID, string(model.OrderCancelled),
	)
	if err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return nil
}
