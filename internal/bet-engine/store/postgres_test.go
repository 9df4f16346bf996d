package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/crypto-bet-platform/internal/bet-engine/model"
	"github.com/radieske/crypto-bet-platform/internal/shared/db"
)

// integração: exige TEST_POSTGRES_DSN apontando para um banco descartável
func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	conn, err := db.ConnectPostgres(dsn)
	require.NoError(t, err)

	p := NewPostgres(conn, nil)
	t.Cleanup(func() { _ = p.Close() })
	require.NoError(t, p.Migrate(context.Background()))
	return p
}

func TestPostgresBetLifecycle(t *testing.T) {
	ctx := context.Background()
	p := newTestPostgres(t)

	userID := "it-" + uuid.NewString()
	require.NoError(t, p.WriteUser(ctx, model.User{
		ID: userID, Username: userID, Balance: decimal.NewFromInt(100), LastActivity: time.Now(),
	}))

	u, err := p.AdjustBalance(ctx, userID, decimal.NewFromInt(-30))
	require.NoError(t, err)
	assert.True(t, u.Balance.Equal(decimal.NewFromInt(70)))

	_, err = p.AdjustBalance(ctx, userID, decimal.NewFromInt(-71))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	_, err = p.AdjustBalance(ctx, "missing-"+uuid.NewString(), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrUserNotFound)

	betID := uuid.NewString()
	bet := testBet(betID, userID, time.Now().UTC())
	require.NoError(t, p.WriteBet(ctx, bet))

	ok, err := p.TransitionBet(ctx, betID, model.StatusPending, model.StatusAccepted)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.TransitionBet(ctx, betID, model.StatusPending, model.StatusAccepted)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.TransitionBet(ctx, betID, model.StatusAccepted, model.StatusSettledWin)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := p.ReadBet(ctx, betID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.StatusSettledWin, got.Status)
	assert.NotNil(t, got.SettledAt)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(10)))

	bets, err := p.ReadBetsByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, bets, 1)

	missing, err := p.ReadUser(ctx, "missing-"+uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPostgresEventLog(t *testing.T) {
	ctx := context.Background()
	p := newTestPostgres(t)

	id := uuid.NewString()
	require.NoError(t, p.WriteEvent(ctx, model.Event{
		ID: id, Type: "bet_placed", Timestamp: time.Now(), Payload: []byte(`{"bet_id":"x"}`),
	}))

	pending, err := p.ReadPendingEvents(ctx)
	require.NoError(t, err)
	assert.True(t, containsEvent(pending, id))

	require.NoError(t, p.MarkEventProcessed(ctx, id))
	pending, err = p.ReadPendingEvents(ctx)
	require.NoError(t, err)
	assert.False(t, containsEvent(pending, id))

	// reescrever o mesmo id não reabre o evento
	require.NoError(t, p.WriteEvent(ctx, model.Event{
		ID: id, Type: "bet_placed", Timestamp: time.Now(), Payload: []byte(`{"bet_id":"y"}`),
	}))
	pending, err = p.ReadPendingEvents(ctx)
	require.NoError(t, err)
	assert.False(t, containsEvent(pending, id), "processed flag must not revert")
}

func containsEvent(events []model.Event, id string) bool {
	for _, e := range events {
		if e.ID == id {
			return true
		}
	}
	return false
}
