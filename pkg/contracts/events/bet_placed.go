package events

import (
	"github.com/shopspring/decimal"

	"github.com/radieske/crypto-bet-platform/pkg/contracts/topics"
)

// Evento publicado no tópico "bet_placed" logo após a aposta ser persistida como PENDING.
type BetPlaced struct {
	BetID     string          `json:"bet_id"`
	UserID    string          `json:"user_id"`
	Asset     string          `json:"asset"`
	Direction string          `json:"direction"`
	Amount    decimal.Decimal `json:"amount"`
	Odds      float64         `json:"odds"`
}

func (BetPlaced) EventType() string { return topics.BetPlaced }

// PartitionKey mantém eventos da mesma aposta na mesma partição.
func (e BetPlaced) PartitionKey() string { return e.BetID }
