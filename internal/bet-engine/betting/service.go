package betting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/crypto-bet-platform/internal/bet-engine/bus"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/model"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/store"
	"github.com/radieske/crypto-bet-platform/pkg/contracts/events"
	"github.com/radieske/crypto-bet-platform/pkg/contracts/topics"
)

// Publisher publica eventos no barramento
type Publisher interface {
	Publish(ctx context.Context, p events.Payload) (string, error)
}

// Subscriber registra handlers no barramento
type Subscriber interface {
	Subscribe(eventType string, h bus.Handler)
}

// OddsProvider fornece a odd no momento da aposta
type OddsProvider interface {
	GetOdds(ctx context.Context, asset model.Asset, direction model.Direction) float64
}

// Service é o motor de apostas: colocação, consultas e liquidação
type Service struct {
	log   *zap.Logger
	store store.Store
	users *UserService
	odds  OddsProvider
	bus   Publisher
	now   func() time.Time

	OnPlaced   func()              // métricas
	OnRejected func(reason string) // métricas por motivo
	OnSettled  func(outcome string)
}

func NewService(s store.Store, users *UserService, odds OddsProvider, pub Publisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{log: log, store: s, users: users, odds: odds, bus: pub, now: time.Now}
}

// Subscribe registra o handler de liquidação
func (s *Service) Subscribe(b Subscriber) {
	b.Subscribe(topics.BetSettled, s.HandleBetSettled)
}

// PlaceBet valida, reserva o valor, grava a aposta PENDING e publica bet_placed.
// Retorna o id sem esperar o aceite assíncrono.
func (s *Service) PlaceBet(ctx context.Context, userID string, asset model.Asset, direction model.Direction, amount decimal.Decimal) (string, error) {
	if !asset.Valid() {
		return "", s.reject(reasonInvalidAsset, fmt.Errorf("%w: %q", model.ErrInvalidAsset, asset))
	}
	if !direction.Valid() {
		return "", s.reject(reasonInvalidDirection, fmt.Errorf("%w: %q", model.ErrInvalidDirection, direction))
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", s.reject(reasonUserNotFound, ErrUserNotFound)
	}
	if !amount.IsPositive() {
		return "", s.reject(reasonInvalidAmount, ErrInvalidAmount)
	}
	if amount.GreaterThan(user.Balance) {
		return "", s.reject(reasonInsufficientBalance, ErrInsufficientBalance)
	}

	bet := model.Bet{
		ID:        uuid.NewString(),
		UserID:    userID,
		Asset:     asset,
		Direction: direction,
		Amount:    amount,
		Odds:      s.odds.GetOdds(ctx, asset, direction),
		CreatedAt: s.now().UTC(),
		Status:    model.StatusPending,
	}

	// o saldo em cache pode estar defasado; o débito no primário é quem decide
	if _, err := s.users.Reserve(ctx, userID, amount); err != nil {
		return "", s.reject(reasonReservationFailed, fmt.Errorf("%w: %w", ErrReservationFailed, err))
	}

	if err := s.store.WriteBet(ctx, bet); err != nil {
		s.refund(ctx, bet, "persist")
		return "", fmt.Errorf("persist bet: %w", err)
	}

	_, err = s.bus.Publish(ctx, events.BetPlaced{
		BetID:     bet.ID,
		UserID:    bet.UserID,
		Asset:     string(bet.Asset),
		Direction: string(bet.Direction),
		Amount:    bet.Amount,
		Odds:      bet.Odds,
	})
	if err != nil {
		if _, terr := s.store.TransitionBet(ctx, bet.ID, model.StatusPending, model.StatusFailed); terr != nil {
			s.log.Error("mark bet failed", zap.String("bet_id", bet.ID), zap.Error(terr))
		}
		s.refund(ctx, bet, "publish")
		return "", fmt.Errorf("publish bet_placed: %w", err)
	}

	if s.OnPlaced != nil {
		s.OnPlaced()
	}
	s.log.Info("bet placed",
		zap.String("bet_id", bet.ID),
		zap.String("user_id", userID),
		zap.String("asset", string(asset)),
		zap.String("direction", string(direction)),
		zap.String("amount", amount.String()),
		zap.Float64("odds", bet.Odds),
	)
	return bet.ID, nil
}

// GetBet lê pela réplica; pode não enxergar uma aposta recém-criada
func (s *Service) GetBet(ctx context.Context, betID string) (*model.Bet, error) {
	return s.store.ReadBet(ctx, betID)
}

func (s *Service) GetUserBets(ctx context.Context, userID string) ([]model.Bet, error) {
	return s.store.ReadBetsByUser(ctx, userID)
}

// HandleBetSettled aplica o resultado. O compare-and-set garante que o prêmio
// é creditado uma única vez mesmo com replay.
func (s *Service) HandleBetSettled(ctx context.Context, msg bus.Message) error {
	ev, ok := msg.Payload.(events.BetSettled)
	if !ok || ev.BetID == "" || !ev.Outcome.Valid() {
		return nil
	}

	bet, err := s.store.LoadBet(ctx, ev.BetID)
	if err != nil {
		return fmt.Errorf("load bet: %w", err)
	}
	if bet == nil {
		return nil
	}

	to := model.StatusSettledLoss
	if ev.Outcome == events.OutcomeWin {
		to = model.StatusSettledWin
	}

	moved, err := s.store.TransitionBet(ctx, bet.ID, model.StatusAccepted, to)
	if err != nil {
		return fmt.Errorf("settle bet: %w", err)
	}
	if !moved {
		s.log.Debug("bet not in settleable state", zap.String("bet_id", bet.ID), zap.String("status", string(bet.Status)))
		return nil
	}

	if ev.Outcome == events.OutcomeWin {
		payout := bet.Payout()
		if _, err := s.users.Credit(ctx, bet.UserID, payout); err != nil {
			s.log.Error("credit winnings failed",
				zap.String("bet_id", bet.ID),
				zap.String("user_id", bet.UserID),
				zap.String("payout", payout.String()),
				zap.Error(err),
			)
			return fmt.Errorf("credit winnings: %w", err)
		}
	}

	if s.OnSettled != nil {
		s.OnSettled(string(ev.Outcome))
	}
	s.log.Info("bet settled",
		zap.String("bet_id", bet.ID),
		zap.String("outcome", string(ev.Outcome)),
		zap.String("settlement_price", ev.SettlementPrice.String()),
	)
	return nil
}

func (s *Service) reject(reason string, err error) error {
	if s.OnRejected != nil {
		s.OnRejected(reason)
	}
	s.log.Debug("bet rejected", zap.String("reason", reason), zap.Error(err))
	return err
}

func (s *Service) refund(ctx context.Context, bet model.Bet, stage string) {
	if _, err := s.users.Credit(ctx, bet.UserID, bet.Amount); err != nil {
		s.log.Error("refund failed",
			zap.String("bet_id", bet.ID),
			zap.String("stage", stage),
			zap.String("amount", bet.Amount.String()),
			zap.Error(err),
		)
	}
}
