package topics

const (
	// Bets
	BetPlaced  = "bet_placed"
	BetSettled = "bet_settled"

	// Preços
	PriceUpdated = "price_updated"
	PriceTicks   = "price_ticks" // ticks externos consumidos pelo price feed

	// DLQs
	BetEventsDLQ = "bet_events_dlq"
)

// All lista os tipos de evento produzidos pelo core, na ordem do ciclo de vida.
func All() []string {
	return []string{BetPlaced, PriceUpdated, BetSettled}
}
