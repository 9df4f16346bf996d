package events

import (
	"github.com/shopspring/decimal"

	"github.com/radieske/crypto-bet-platform/pkg/contracts/topics"
)

// Resultado de uma liquidação.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
)

// Valid indica se o resultado pertence ao conjunto fechado win | loss.
func (o Outcome) Valid() bool { return o == OutcomeWin || o == OutcomeLoss }

// Evento emitido pelo gatilho de liquidação para cada aposta ACCEPTED do ativo atualizado.
type BetSettled struct {
	BetID           string          `json:"bet_id"`
	Outcome         Outcome         `json:"outcome"`
	SettlementPrice decimal.Decimal `json:"settlement_price"`
}

func (BetSettled) EventType() string { return topics.BetSettled }

func (e BetSettled) PartitionKey() string { return e.BetID }
