package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// User é o registro de saldo do apostador. Balance só muda pelo ledger.
type User struct {
	ID           string          `json:"user_id"`
	Username     string          `json:"username"`
	Balance      decimal.Decimal `json:"balance"`
	LastActivity time.Time       `json:"last_activity"`
}

func (u User) Clone() User { return u }

// Bet é o registro persistido de uma aposta.
// SettledAt é preenchido se e somente se Status for SETTLED_WIN ou SETTLED_LOSS.
type Bet struct {
	ID        string          `json:"bet_id"`
	UserID    string          `json:"user_id"`
	Asset     Asset           `json:"asset"`
	Direction Direction       `json:"direction"`
	Amount    decimal.Decimal `json:"amount"`
	Odds      float64         `json:"odds"`
	CreatedAt time.Time       `json:"created_at"`
	Status    BetStatus       `json:"status"`
	SettledAt *time.Time      `json:"settled_at"`
}

// Clone devolve uma cópia sem compartilhar o ponteiro de SettledAt.
func (b Bet) Clone() Bet {
	if b.SettledAt != nil {
		t := *b.SettledAt
		b.SettledAt = &t
	}
	return b
}

// SetStatus aplica o novo status mantendo a invariante de settled_at.
func (b *Bet) SetStatus(status BetStatus, now time.Time) {
	b.Status = status
	if status.IsSettled() {
		t := now
		b.SettledAt = &t
		return
	}
	b.SettledAt = nil
}

// Payout é o valor creditado numa vitória: amount × odds.
func (b Bet) Payout() decimal.Decimal {
	return b.Amount.Mul(decimal.NewFromFloat(b.Odds))
}

// CryptoPrice é um ponto da série de preços de um ativo.
type CryptoPrice struct {
	Asset     Asset           `json:"asset"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// Event é a entrada do log append-only do barramento.
// Processed passa de false para true uma única vez.
type Event struct {
	ID        string          `json:"event_id"`
	Type      string          `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Processed bool            `json:"processed"`
}

func (e Event) Clone() Event {
	if e.Payload != nil {
		e.Payload = append(json.RawMessage(nil), e.Payload...)
	}
	return e
}
