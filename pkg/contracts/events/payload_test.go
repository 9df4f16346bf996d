package events

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/crypto-bet-platform/pkg/contracts/topics"
)

func TestDecodeRestoresTypedVariant(t *testing.T) {
	in := BetSettled{BetID: "b-1", Outcome: OutcomeWin, SettlementPrice: decimal.RequireFromString("45123.5")}

	raw, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(topics.BetSettled, raw)
	require.NoError(t, err)

	got, ok := out.(BetSettled)
	require.True(t, ok, "expected BetSettled, got %T", out)
	assert.Equal(t, "b-1", got.PartitionKey())
	assert.Equal(t, OutcomeWin, got.Outcome)
	assert.True(t, in.SettlementPrice.Equal(got.SettlementPrice))
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode("bet_cancelled", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownEventType)

	_, err = Decode(topics.BetPlaced, []byte(`{not json`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownEventType)
}

func TestOutcomeValid(t *testing.T) {
	assert.True(t, OutcomeWin.Valid())
	assert.True(t, OutcomeLoss.Valid())
	assert.False(t, Outcome("draw").Valid())
}
