package betting

import (
	"errors"

	"github.com/radieske/crypto-bet-platform/internal/bet-engine/store"
)

var (
	ErrUserNotFound        = store.ErrUserNotFound
	ErrInsufficientBalance = store.ErrInsufficientBalance
	ErrInvalidAmount       = errors.New("invalid bet amount")
	ErrReservationFailed   = errors.New("failed to reserve funds")
)

// motivos de rejeição usados nas métricas
const (
	reasonInvalidAsset        = "invalid_asset"
	reasonInvalidDirection    = "invalid_direction"
	reasonUserNotFound        = "user_not_found"
	reasonInvalidAmount       = "invalid_amount"
	reasonInsufficientBalance = "insufficient_balance"
	reasonReservationFailed   = "reservation_failed"
)
