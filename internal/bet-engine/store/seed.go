package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/crypto-bet-platform/internal/bet-engine/model"
)

// Saldo inicial e preços de abertura dos dados de demonstração
var (
	DemoBalance = decimal.NewFromInt(1000)

	DemoPrices = map[model.Asset]decimal.Decimal{
		model.BTC: decimal.NewFromInt(45000),
		model.ETH: decimal.NewFromInt(3200),
	}
)

// SeedDemo cria user1..user4 e o preço inicial de cada ativo.
// Registros já existentes são preservados.
func SeedDemo(ctx context.Context, s Store) error {
	now := time.Now().UTC()

	for i := 1; i <= 4; i++ {
		id := fmt.Sprintf("user%d", i)
		existing, err := s.ReadUser(ctx, id)
		if err != nil {
			return fmt.Errorf("seed %s: %w", id, err)
		}
		if existing != nil {
			continue
		}
		u := model.User{ID: id, Username: id, Balance: DemoBalance, LastActivity: now}
		if err := s.WriteUser(ctx, u); err != nil {
			return fmt.Errorf("seed %s: %w", id, err)
		}
	}

	for _, asset := range model.Assets() {
		latest, err := s.ReadLatestPrice(ctx, asset)
		if err != nil {
			return fmt.Errorf("seed price %s: %w", asset, err)
		}
		if latest != nil {
			continue
		}
		if err := s.WritePrice(ctx, model.CryptoPrice{Asset: asset, Price: DemoPrices[asset], Timestamp: now}); err != nil {
			return fmt.Errorf("seed price %s: %w", asset, err)
		}
	}
	return nil
}
