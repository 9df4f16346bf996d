package dto

import "github.com/shopspring/decimal"

type PlaceBetResponse struct {
	BetID   string `json:"bet_id"`
	Status  string `json:"status"` // PENDING
	Message string `json:"message,omitempty"`
}

type OddsResponse struct {
	Asset        string           `json:"asset"`
	Direction    string           `json:"direction"`
	Odds         float64          `json:"odds"`
	CurrentPrice *decimal.Decimal `json:"current_price"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
