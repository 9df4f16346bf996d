package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/crypto-bet-platform/internal/bet-engine/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL,
	balance       NUMERIC(24,8) NOT NULL CHECK (balance >= 0),
	last_activity TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bets (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id),
	asset      TEXT NOT NULL,
	direction  TEXT NOT NULL,
	amount     NUMERIC(24,8) NOT NULL CHECK (amount > 0),
	odds       DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	status     TEXT NOT NULL,
	settled_at TIMESTAMPTZ,
	CHECK ((status IN ('SETTLED_WIN','SETTLED_LOSS')) = (settled_at IS NOT NULL))
);
CREATE INDEX IF NOT EXISTS bets_user_idx ON bets (user_id, created_at, id);
CREATE INDEX IF NOT EXISTS bets_asset_status_idx ON bets (asset, status);

CREATE TABLE IF NOT EXISTS crypto_prices (
	seq   BIGSERIAL PRIMARY KEY,
	asset TEXT NOT NULL,
	price NUMERIC(24,8) NOT NULL CHECK (price > 0),
	ts    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS crypto_prices_asset_idx ON crypto_prices (asset, seq DESC);

CREATE TABLE IF NOT EXISTS events (
	seq        BIGSERIAL PRIMARY KEY,
	id         TEXT NOT NULL UNIQUE,
	event_type TEXT NOT NULL,
	ts         TIMESTAMPTZ NOT NULL,
	payload    JSONB NOT NULL,
	processed  BOOLEAN NOT NULL DEFAULT false
);
CREATE INDEX IF NOT EXISTS events_pending_idx ON events (seq) WHERE NOT processed;
`

const betColumns = `id, user_id, asset, direction, amount, odds, created_at, status, settled_at`

// Postgres implementa Store sobre lib/pq.
// primary recebe escritas e leituras de estado; replica atende o caminho de leitura.
type Postgres struct {
	primary *sql.DB
	replica *sql.DB
}

// NewPostgres aceita replica nil, caso em que o primário atende tudo
func NewPostgres(primary, replica *sql.DB) *Postgres {
	if replica == nil {
		replica = primary
	}
	return &Postgres{primary: primary, replica: replica}
}

// Migrate cria as tabelas se ainda não existirem
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.primary.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (p *Postgres) WriteUser(ctx context.Context, u model.User) error {
	_, err := p.primary.ExecContext(ctx, `
		INSERT INTO users (id, username, balance, last_activity)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE
		SET username = EXCLUDED.username, balance = EXCLUDED.balance, last_activity = EXCLUDED.last_activity`,
		u.ID, u.Username, u.Balance, u.LastActivity,
	)
	if err != nil {
		return fmt.Errorf("write user: %w", err)
	}
	return nil
}

func (p *Postgres) WriteBet(ctx context.Context, b model.Bet) error {
	_, err := p.primary.ExecContext(ctx, `
		INSERT INTO bets (`+betColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, settled_at = EXCLUDED.settled_at, odds = EXCLUDED.odds, amount = EXCLUDED.amount`,
		b.ID, b.UserID, string(b.Asset), string(b.Direction), b.Amount, b.Odds, b.CreatedAt, string(b.Status), b.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("write bet: %w", err)
	}
	return nil
}

func (p *Postgres) WritePrice(ctx context.Context, cp model.CryptoPrice) error {
	_, err := p.primary.ExecContext(ctx,
		`INSERT INTO crypto_prices (asset, price, ts) VALUES ($1,$2,$3)`,
		string(cp.Asset), cp.Price, cp.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("write price: %w", err)
	}
	return nil
}

func (p *Postgres) WriteEvent(ctx context.Context, e model.Event) error {
	_, err := p.primary.ExecContext(ctx, `
		INSERT INTO events (id, event_type, ts, payload, processed)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.Type, e.Timestamp, string(e.Payload), e.Processed,
	)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

func (p *Postgres) ReadUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := p.replica.QueryRowContext(ctx,
		`SELECT id, username, balance, last_activity FROM users WHERE id=$1`, id,
	).Scan(&u.ID, &u.Username, &u.Balance, &u.LastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read user: %w", err)
	}
	return &u, nil
}

func (p *Postgres) ReadBet(ctx context.Context, id string) (*model.Bet, error) {
	return p.queryBet(ctx, p.replica, id)
}

func (p *Postgres) LoadBet(ctx context.Context, id string) (*model.Bet, error) {
	return p.queryBet(ctx, p.primary, id)
}

func (p *Postgres) queryBet(ctx context.Context, db *sql.DB, id string) (*model.Bet, error) {
	b, err := scanBet(db.QueryRowContext(ctx, `SELECT `+betColumns+` FROM bets WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read bet: %w", err)
	}
	return b, nil
}

func (p *Postgres) ReadBetsByUser(ctx context.Context, userID string) ([]model.Bet, error) {
	return p.queryBets(ctx,
		`SELECT `+betColumns+` FROM bets WHERE user_id=$1 ORDER BY created_at, id`, userID)
}

func (p *Postgres) ReadBetsByAsset(ctx context.Context, asset model.Asset, status model.BetStatus) ([]model.Bet, error) {
	return p.queryBets(ctx,
		`SELECT `+betColumns+` FROM bets WHERE asset=$1 AND status=$2 ORDER BY created_at, id`,
		string(asset), string(status))
}

func (p *Postgres) queryBets(ctx context.Context, query string, args ...any) ([]model.Bet, error) {
	rows, err := p.replica.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bets: %w", err)
	}
	defer rows.Close()

	out := make([]model.Bet, 0)
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bet: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (p *Postgres) ReadLatestPrice(ctx context.Context, asset model.Asset) (*model.CryptoPrice, error) {
	cp := model.CryptoPrice{Asset: asset}
	err := p.primary.QueryRowContext(ctx,
		`SELECT price, ts FROM crypto_prices WHERE asset=$1 ORDER BY seq DESC LIMIT 1`, string(asset),
	).Scan(&cp.Price, &cp.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read latest price: %w", err)
	}
	return &cp, nil
}

func (p *Postgres) ReadPendingEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := p.primary.QueryContext(ctx,
		`SELECT id, event_type, ts, payload, processed FROM events WHERE NOT processed ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("read pending events: %w", err)
	}
	defer rows.Close()

	out := make([]model.Event, 0)
	for rows.Next() {
		var e model.Event
		var payload []byte
		if err := rows.Scan(&e.ID, &e.Type, &e.Timestamp, &payload, &e.Processed); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Payload = payload
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateBetStatus(ctx context.Context, id string, status model.BetStatus) error {
	_, err := p.primary.ExecContext(ctx,
		`UPDATE bets SET status=$2, settled_at=$3 WHERE id=$1`,
		id, string(status), settledAt(status),
	)
	if err != nil {
		return fmt.Errorf("update bet status: %w", err)
	}
	return nil
}

func (p *Postgres) MarkEventProcessed(ctx context.Context, id string) error {
	if _, err := p.primary.ExecContext(ctx, `UPDATE events SET processed=true WHERE id=$1`, id); err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}

func (p *Postgres) TransitionBet(ctx context.Context, id string, from, to model.BetStatus) (bool, error) {
	res, err := p.primary.ExecContext(ctx,
		`UPDATE bets SET status=$3, settled_at=$4 WHERE id=$1 AND status=$2`,
		id, string(from), string(to), settledAt(to),
	)
	if err != nil {
		return false, fmt.Errorf("transition bet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition bet: %w", err)
	}
	return n == 1, nil
}

// AdjustBalance aplica o delta numa única instrução condicional.
// Sem linha afetada, distingue usuário inexistente de saldo insuficiente.
func (p *Postgres) AdjustBalance(ctx context.Context, userID string, delta decimal.Decimal) (*model.User, error) {
	var u model.User
	err := p.primary.QueryRowContext(ctx, `
		UPDATE users SET balance = balance + $2, last_activity = now()
		WHERE id=$1 AND balance + $2 >= 0
		RETURNING id, username, balance, last_activity`,
		userID, delta,
	).Scan(&u.ID, &u.Username, &u.Balance, &u.LastActivity)
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("adjust balance: %w", err)
	}

	var exists bool
	if err := p.primary.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id=$1)`, userID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("adjust balance: %w", err)
	}
	if !exists {
		return nil, ErrUserNotFound
	}
	return nil, ErrInsufficientBalance
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary: %w", err)
	}
	if p.replica != p.primary {
		if err := p.replica.PingContext(ctx); err != nil {
			return fmt.Errorf("replica: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Close() error {
	err := p.primary.Close()
	if p.replica != p.primary {
		err = errors.Join(err, p.replica.Close())
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBet(row rowScanner) (*model.Bet, error) {
	var (
		b                        model.Bet
		asset, direction, status string
		settled                  sql.NullTime
	)
	if err := row.Scan(&b.ID, &b.UserID, &asset, &direction, &b.Amount, &b.Odds, &b.CreatedAt, &status, &settled); err != nil {
		return nil, err
	}
	b.Asset = model.Asset(asset)
	b.Direction = model.Direction(direction)
	b.Status = model.BetStatus(status)
	if settled.Valid {
		t := settled.Time
		b.SettledAt = &t
	}
	return &b, nil
}

func settledAt(status model.BetStatus) *time.Time {
	if !status.IsSettled() {
		return nil
	}
	t := time.Now().UTC()
	return &t
}
