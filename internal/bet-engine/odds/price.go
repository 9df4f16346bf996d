package odds

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/crypto-bet-platform/internal/bet-engine/bus"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/cache"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/model"
	"github.com/radieske/crypto-bet-platform/pkg/contracts/events"
)

const DefaultPriceTTL = 5 * time.Second

// PriceReader é a leitura de preço usada pelo serviço
type PriceReader interface {
	ReadLatestPrice(ctx context.Context, asset model.Asset) (*model.CryptoPrice, error)
}

// Service atende consultas de odds e do último preço (cache-aside com TTL curto)
type Service struct {
	log    *zap.Logger
	store  PriceReader
	cache  cache.Cache
	policy Policy
	ttl    time.Duration
}

func NewService(store PriceReader, c cache.Cache, policy Policy, ttl time.Duration, log *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultPriceTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{log: log, store: store, cache: c, policy: policy, ttl: ttl}
}

// GetOdds devolve a odd corrente para ativo e direção
func (s *Service) GetOdds(ctx context.Context, asset model.Asset, direction model.Direction) float64 {
	return s.policy.Odds(asset, direction)
}

// GetLatestPrice devolve o último preço do ativo ou nil quando não há série
func (s *Service) GetLatestPrice(ctx context.Context, asset model.Asset) (*model.CryptoPrice, error) {
	key := cache.PriceKey(string(asset))

	var cached model.CryptoPrice
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.log.Warn("price cache get failed", zap.String("asset", string(asset)), zap.Error(err))
	}
	if hit && err == nil {
		return &cached, nil
	}

	p, err := s.store.ReadLatestPrice(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("read latest price: %w", err)
	}
	if p == nil {
		return nil, nil
	}

	if err := s.cache.Set(ctx, key, p, s.ttl); err != nil {
		s.log.Warn("price cache set failed", zap.String("asset", string(asset)), zap.Error(err))
	}
	return p, nil
}

// InvalidatePrice é o handler de price_updated: remove o preço do cache
func (s *Service) InvalidatePrice(ctx context.Context, msg bus.Message) error {
	ev, ok := msg.Payload.(events.PriceUpdated)
	if !ok {
		return nil
	}
	if err := s.cache.Delete(ctx, cache.PriceKey(ev.Asset)); err != nil {
		return fmt.Errorf("invalidate price %s: %w", ev.Asset, err)
	}
	return nil
}
