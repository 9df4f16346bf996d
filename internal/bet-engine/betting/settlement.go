package betting

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/crypto-bet-platform/internal/bet-engine/bus"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/model"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/store"
	"github.com/radieske/crypto-bet-platform/pkg/contracts/events"
	"github.com/radieske/crypto-bet-platform/pkg/contracts/topics"
)

// OutcomePolicy decide o resultado de uma aposta aceita no preço informado
type OutcomePolicy interface {
	Decide(bet model.Bet, price decimal.Decimal) events.Outcome
}

// OutcomeFunc adapta uma função para OutcomePolicy
type OutcomeFunc func(bet model.Bet, price decimal.Decimal) events.Outcome

func (f OutcomeFunc) Decide(bet model.Bet, price decimal.Decimal) events.Outcome {
	return f(bet, price)
}

// CoinFlip é a política provisória: 50% de vitória, ignorando o preço
type CoinFlip struct {
	Rand func() float64
}

func (c CoinFlip) Decide(model.Bet, decimal.Decimal) events.Outcome {
	r := c.Rand
	if r == nil {
		r = rand.Float64
	}
	if r() > 0.5 {
		return events.OutcomeWin
	}
	return events.OutcomeLoss
}

// Settlement aceita apostas e dispara liquidações a cada atualização de preço
type Settlement struct {
	log    *zap.Logger
	store  store.Store
	bus    Publisher
	policy OutcomePolicy

	OnAccepted func() // métricas
}

func NewSettlement(s store.Store, pub Publisher, policy OutcomePolicy, log *zap.Logger) *Settlement {
	if policy == nil {
		policy = CoinFlip{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Settlement{log: log, store: s, bus: pub, policy: policy}
}

// Subscribe registra aceite (bet_placed) e gatilho (price_updated)
func (s *Settlement) Subscribe(b Subscriber) {
	b.Subscribe(topics.BetPlaced, s.HandleBetPlaced)
	b.Subscribe(topics.PriceUpdated, s.HandlePriceUpdated)
}

// HandleBetPlaced move PENDING para ACCEPTED; qualquer outro estado é no-op.
// A decisão usa o primário, nunca a réplica.
func (s *Settlement) HandleBetPlaced(ctx context.Context, msg bus.Message) error {
	ev, ok := msg.Payload.(events.BetPlaced)
	if !ok || ev.BetID == "" {
		return nil
	}

	moved, err := s.store.TransitionBet(ctx, ev.BetID, model.StatusPending, model.StatusAccepted)
	if err != nil {
		return fmt.Errorf("accept bet: %w", err)
	}
	if !moved {
		return nil
	}

	if s.OnAccepted != nil {
		s.OnAccepted()
	}
	s.log.Debug("bet accepted", zap.String("bet_id", ev.BetID))
	return nil
}

// HandlePriceUpdated publica bet_settled para cada aposta ACCEPTED do ativo
func (s *Settlement) HandlePriceUpdated(ctx context.Context, msg bus.Message) error {
	ev, ok := msg.Payload.(events.PriceUpdated)
	if !ok || !ev.Price.IsPositive() {
		return nil
	}
	asset, err := model.ParseAsset(ev.Asset)
	if err != nil {
		return nil
	}

	bets, err := s.store.ReadBetsByAsset(ctx, asset, model.StatusAccepted)
	if err != nil {
		return fmt.Errorf("read accepted bets: %w", err)
	}

	var failed []error
	for _, bet := range bets {
		outcome := s.policy.Decide(bet, ev.Price)
		if _, err := s.bus.Publish(ctx, events.BetSettled{
			BetID:           bet.ID,
			Outcome:         outcome,
			SettlementPrice: ev.Price,
		}); err != nil {
			failed = append(failed, fmt.Errorf("bet %s: %w", bet.ID, err))
		}
	}
	if len(bets) > 0 {
		s.log.Debug("settlement triggered",
			zap.String("asset", string(asset)),
			zap.String("price", ev.Price.String()),
			zap.Int("bets", len(bets)),
		)
	}
	if err := errors.Join(failed...); err != nil {
		return fmt.Errorf("publish bet_settled: %w", err)
	}
	return nil
}
