package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/radieske/crypto-bet-platform/internal/bet-engine/model"
)

var (
	ErrClosed              = errors.New("store closed")
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Store é a fachada primário + réplica + log de eventos.
//
// Escritas vão para o primário de forma síncrona. Leituras de usuário e aposta
// passam pela réplica, que pode estar atrasada (replica lag). Preços e o log de
// eventos são lidos do primário. Registro inexistente devolve nil sem erro.
type Store interface {
	WriteUser(ctx context.Context, u model.User) error
	WriteBet(ctx context.Context, b model.Bet) error
	WritePrice(ctx context.Context, p model.CryptoPrice) error
	WriteEvent(ctx context.Context, e model.Event) error

	ReadUser(ctx context.Context, id string) (*model.User, error)
	ReadBet(ctx context.Context, id string) (*model.Bet, error)
	ReadBetsByUser(ctx context.Context, userID string) ([]model.Bet, error)
	ReadBetsByAsset(ctx context.Context, asset model.Asset, status model.BetStatus) ([]model.Bet, error)
	ReadLatestPrice(ctx context.Context, asset model.Asset) (*model.CryptoPrice, error)
	ReadPendingEvents(ctx context.Context) ([]model.Event, error)

	// UpdateBetStatus grava direto no primário; id desconhecido é no-op.
	UpdateBetStatus(ctx context.Context, id string, status model.BetStatus) error
	MarkEventProcessed(ctx context.Context, id string) error

	// LoadBet lê do primário. Usado por quem decide transições de estado.
	LoadBet(ctx context.Context, id string) (*model.Bet, error)
	// TransitionBet é um compare-and-set de status no primário.
	// Devolve false quando a aposta não existe ou não está em from.
	TransitionBet(ctx context.Context, id string, from, to model.BetStatus) (bool, error)
	// AdjustBalance soma delta ao saldo de forma atômica.
	// Falha com ErrInsufficientBalance se o saldo ficaria negativo.
	AdjustBalance(ctx context.Context, userID string, delta decimal.Decimal) (*model.User, error)

	Ping(ctx context.Context) error
	Close() error
}
