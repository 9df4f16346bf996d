package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/crypto-bet-platform/pkg/contracts/topics"
)

// Evento publicado no tópico "price_updated" pelo price feed.
type PriceUpdated struct {
	Asset     string          `json:"asset"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

func (PriceUpdated) EventType() string { return topics.PriceUpdated }

func (e PriceUpdated) PartitionKey() string { return e.Asset }

// Tick externo recebido no tópico "price_ticks".
type PriceTick struct {
	Asset     string          `json:"asset"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}
