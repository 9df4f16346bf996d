package dto

import "github.com/shopspring/decimal"

// PlaceBetRequest é o corpo de POST /v1/bets.
// Amount aceita número ou string JSON ("100.50").
type PlaceBetRequest struct {
	UserID    string          `json:"user_id" validate:"required,max=64"`
	Asset     string          `json:"asset" validate:"required"`     // BTC | ETH
	Direction string          `json:"direction" validate:"required"` // UP | DOWN
	Amount    decimal.Decimal `json:"amount"`
}
