package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	sharedkafka "github.com/radieske/crypto-bet-platform/internal/shared/kafka"
	"github.com/radieske/crypto-bet-platform/pkg/contracts/events"
)

// MessageWriter é o subconjunto de *kafka.Writer usado pelo simulador
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// TickWriter publica os preços do Walker como ticks externos (price_ticks),
// no formato consumido pelo KafkaSource.
type TickWriter struct {
	Writer MessageWriter
	Topic  string
}

func (t *TickWriter) Publish(ctx context.Context, p events.Payload) (string, error) {
	pu, ok := p.(events.PriceUpdated)
	if !ok {
		return "", fmt.Errorf("tick writer: unexpected event %s", p.EventType())
	}
	b, err := json.Marshal(events.PriceTick{Asset: pu.Asset, Price: pu.Price, Timestamp: pu.Timestamp})
	if err != nil {
		return "", err
	}
	if err := t.Writer.WriteMessages(ctx, sharedkafka.JSONMessage(t.Topic, pu.Asset, b)); err != nil {
		return "", fmt.Errorf("write tick %s: %w", pu.Asset, err)
	}
	return pu.Asset, nil
}
