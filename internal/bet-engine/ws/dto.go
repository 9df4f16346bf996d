package ws

import (
	"encoding/json"
	"time"
)

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// Topic: tipo de evento (bet_placed, price_updated, bet_settled)
type ClientMsg struct {
	Type  string `json:"type"`  // subscribe | unsubscribe | ping
	Topic string `json:"topic"` // requerido em subscribe/unsubscribe
}

// Update é o evento enviado aos clientes inscritos no tópico
type Update struct {
	Topic     string          `json:"topic"`
	EventID   string          `json:"event_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}
