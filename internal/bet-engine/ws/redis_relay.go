package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/crypto-bet-platform/internal/bet-engine/bus"
	"github.com/radieske/crypto-bet-platform/pkg/contracts/topics"
)

// ChannelBroadcast é o canal Redis Pub/Sub usado para o fan-out entre instâncias
const ChannelBroadcast = "bet_engine_ws_broadcast"

// RedisRelay publica os eventos do barramento num canal Redis e repassa o que
// chega do canal para o Hub local, de modo que todas as instâncias atendam
// seus dashboards.
type RedisRelay struct {
	Client  *redis.Client
	Channel string
	Log     *zap.Logger
}

func NewRedisRelay(c *redis.Client, log *zap.Logger) *RedisRelay {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisRelay{Client: c, Channel: ChannelBroadcast, Log: log}
}

// Subscribe registra Publish para todos os tópicos do barramento
func (r *RedisRelay) Subscribe(b Subscriber) {
	for _, t := range topics.All() {
		b.Subscribe(t, r.Publish)
	}
}

// Publish é o handler do barramento: serializa e envia ao canal
func (r *RedisRelay) Publish(ctx context.Context, msg bus.Message) error {
	u, err := NewUpdate(msg)
	if err != nil {
		return err
	}
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if err := r.Client.Publish(ctx, r.Channel, b).Err(); err != nil {
		return fmt.Errorf("ws relay publish: %w", err)
	}
	return nil
}

// Start escuta o canal e repassa as atualizações ao hub até ctx acabar.
// Retorna depois que a inscrição foi confirmada.
func (r *RedisRelay) Start(ctx context.Context, hub *Hub) error {
	sub := r.Client.Subscribe(ctx, r.Channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("ws relay subscribe: %w", err)
	}
	ch := sub.Channel()

	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close() // encerra a inscrição ao finalizar o contexto
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var u Update
				if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
					r.Log.Warn("ws relay unmarshal error", zap.Error(err))
					continue
				}
				hub.Broadcast(u)
			}
		}
	}()
	return nil
}
