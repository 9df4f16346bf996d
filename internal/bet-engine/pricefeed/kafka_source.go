package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/crypto-bet-platform/internal/bet-engine/model"
	"github.com/radieske/crypto-bet-platform/pkg/contracts/events"
)

var ErrInvalidTick = errors.New("invalid price tick")

// MessageReader é o subconjunto de *kafka.Reader usado pelo consumer
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// KafkaSource consome ticks externos (tópico price_ticks), grava o preço e
// publica price_updated. Callbacks de métricas por etapa.
type KafkaSource struct {
	Log    *zap.Logger
	Reader MessageReader
	Store  PriceStore
	Bus    Publisher

	OnConsumed func()       // métricas (counter++)
	OnError    func(string) // métricas por fase
}

// Run inicia o loop de consumo até o contexto ser cancelado
func (k *KafkaSource) Run(ctx context.Context) error {
	for {
		m, err := k.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			k.Log.Warn("kafka read failed", zap.Error(err))
			k.fail("read")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}

		if k.OnConsumed != nil {
			k.OnConsumed()
		}

		p, err := decodeTick(m.Value)
		if err != nil {
			k.Log.Warn("invalid price tick", zap.ByteString("key", m.Key), zap.Error(err))
			k.fail("decode")
			continue
		}

		if err := k.Store.WritePrice(ctx, p); err != nil {
			k.Log.Warn("price write failed", zap.String("asset", string(p.Asset)), zap.Error(err))
			k.fail("db_write")
			continue
		}

		if _, err := k.Bus.Publish(ctx, events.PriceUpdated{
			Asset:     string(p.Asset),
			Price:     p.Price,
			Timestamp: p.Timestamp,
		}); err != nil {
			k.Log.Warn("price publish failed", zap.String("asset", string(p.Asset)), zap.Error(err))
			k.fail("publish")
		}
	}
}

func (k *KafkaSource) fail(stage string) {
	if k.OnError != nil {
		k.OnError(stage)
	}
}

func decodeTick(raw []byte) (model.CryptoPrice, error) {
	var t events.PriceTick
	if err := json.Unmarshal(raw, &t); err != nil {
		return model.CryptoPrice{}, fmt.Errorf("%w: %w", ErrInvalidTick, err)
	}
	asset, err := model.ParseAsset(t.Asset)
	if err != nil {
		return model.CryptoPrice{}, fmt.Errorf("%w: %w", ErrInvalidTick, err)
	}
	if !t.Price.IsPositive() {
		return model.CryptoPrice{}, fmt.Errorf("%w: price must be positive", ErrInvalidTick)
	}
	ts := t.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return model.CryptoPrice{Asset: asset, Price: t.Price, Timestamp: ts}, nil
}
