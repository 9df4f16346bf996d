package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/radieske/crypto-bet-platform/pkg/contracts/topics"
)

var ErrUnknownEventType = errors.New("unknown event type")

// Payload é a união fechada dos eventos do core: BetPlaced, PriceUpdated e BetSettled.
type Payload interface {
	EventType() string
	PartitionKey() string
}

// Encode serializa o payload para o log de eventos.
func Encode(p Payload) (json.RawMessage, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", p.EventType(), err)
	}
	return b, nil
}

// Decode reconstrói a variante tipada a partir do tag de tipo e do payload persistido.
func Decode(eventType string, raw []byte) (Payload, error) {
	switch eventType {
	case topics.BetPlaced:
		var e BetPlaced
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		return e, nil
	case topics.PriceUpdated:
		var e PriceUpdated
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		return e, nil
	case topics.BetSettled:
		var e BetSettled
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
}
