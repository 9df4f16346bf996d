package betting

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/crypto-bet-platform/internal/bet-engine/cache"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/model"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/store"
)

// UserService lê usuários com cache-aside e é o único ponto que altera saldo.
// Depois de cada ajuste a entrada do cache é removida; a próxima leitura vem
// da réplica e pode ficar defasada pelo lag até o TTL expirar.
type UserService struct {
	log   *zap.Logger
	store store.Store
	cache cache.Cache
	ttl   time.Duration
}

func NewUserService(s store.Store, c cache.Cache, ttl time.Duration, log *zap.Logger) *UserService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserService{log: log, store: s, cache: c, ttl: ttl}
}

// GetUser devolve nil quando o usuário não existe
func (s *UserService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	key := cache.UserKey(userID)

	var cached model.User
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.log.Warn("user cache get failed", zap.String("user_id", userID), zap.Error(err))
	}
	if hit && err == nil {
		return &cached, nil
	}

	u, err := s.store.ReadUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read user: %w", err)
	}
	if u == nil {
		return nil, nil
	}

	if err := s.cache.Set(ctx, key, u, s.ttl); err != nil {
		s.log.Warn("user cache set failed", zap.String("user_id", userID), zap.Error(err))
	}
	return u, nil
}

// UpdateBalance aplica delta de forma atômica no primário e invalida o cache
func (s *UserService) UpdateBalance(ctx context.Context, userID string, delta decimal.Decimal) (*model.User, error) {
	u, err := s.store.AdjustBalance(ctx, userID, delta)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Delete(ctx, cache.UserKey(userID)); err != nil {
		s.log.Warn("user cache delete failed", zap.String("user_id", userID), zap.Error(err))
	}
	return u, nil
}

// Reserve debita o valor da aposta
func (s *UserService) Reserve(ctx context.Context, userID string, amount decimal.Decimal) (*model.User, error) {
	return s.UpdateBalance(ctx, userID, amount.Neg())
}

// Credit devolve reservas ou paga prêmios
func (s *UserService) Credit(ctx context.Context, userID string, amount decimal.Decimal) (*model.User, error) {
	return s.UpdateBalance(ctx, userID, amount)
}
