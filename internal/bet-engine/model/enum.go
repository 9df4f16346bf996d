package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidAsset     = errors.New("invalid asset")
	ErrInvalidDirection = errors.New("invalid direction")
)

// Asset é o conjunto fechado de criptoativos aceitos em apostas.
type Asset string

const (
	BTC Asset = "BTC"
	ETH Asset = "ETH"
)

// Assets retorna os ativos suportados na ordem usada pelo price feed.
func Assets() []Asset { return []Asset{BTC, ETH} }

func (a Asset) Valid() bool { return a == BTC || a == ETH }

// ParseAsset normaliza e valida o símbolo recebido.
func ParseAsset(s string) (Asset, error) {
	a := Asset(strings.ToUpper(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAsset, s)
	}
	return a, nil
}

// Direction é a aposta de alta (UP) ou baixa (DOWN).
type Direction string

const (
	Up   Direction = "UP"
	Down Direction = "DOWN"
)

func (d Direction) Valid() bool { return d == Up || d == Down }

func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToUpper(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
	return d, nil
}

// BetStatus é o estado da aposta no ciclo de vida.
type BetStatus string

const (
	StatusPending     BetStatus = "PENDING"
	StatusAccepted    BetStatus = "ACCEPTED"
	StatusSettledWin  BetStatus = "SETTLED_WIN"
	StatusSettledLoss BetStatus = "SETTLED_LOSS"
	StatusRejected    BetStatus = "REJECTED"
	StatusFailed      BetStatus = "FAILED"
)

// IsSettled indica os estados que exigem settled_at preenchido.
func (s BetStatus) IsSettled() bool {
	return s == StatusSettledWin || s == StatusSettledLoss
}

func (s BetStatus) IsTerminal() bool {
	switch s {
	case StatusSettledWin, StatusSettledLoss, StatusRejected, StatusFailed:
		return true
	}
	return false
}
