package odds

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/radieske/crypto-bet-platform/internal/bet-engine/bus"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/cache"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/model"
	"github.com/radieske/crypto-bet-platform/pkg/contracts/events"
)

type priceReaderMock struct {
	mock.Mock
}

func (m *priceReaderMock) ReadLatestPrice(ctx context.Context, asset model.Asset) (*model.CryptoPrice, error) {
	args := m.Called(ctx, asset)
	p, _ := args.Get(0).(*model.CryptoPrice)
	return p, args.Error(1)
}

func TestPolicyOddsBounds(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		r      float64
		want   float64
	}{
		{name: "lowest draw", policy: DefaultPolicy(), r: 0, want: 1.755},
		{name: "middle draw", policy: DefaultPolicy(), r: 0.5, want: 1.95},
		{name: "clamped high", policy: Policy{Base: 5, Volatility: 0.1, Min: MinOdds, Max: MaxOdds}, r: 0.5, want: 3.0},
		{name: "clamped low", policy: Policy{Base: 0.5, Volatility: 0.1, Min: MinOdds, Max: MaxOdds}, r: 0.5, want: 1.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.r
			tt.policy.Rand = func() float64 { return r }
			assert.InDelta(t, tt.want, tt.policy.Odds(model.BTC, model.Up), 1e-9)
		})
	}
}

func TestPolicyOddsAlwaysInRange(t *testing.T) {
	p := DefaultPolicy()
	for i := 0; i < 1000; i++ {
		o := p.Odds(model.ETH, model.Down)
		require.GreaterOrEqual(t, o, MinOdds)
		require.LessOrEqual(t, o, MaxOdds)
	}
}

func TestGetLatestPriceCacheAside(t *testing.T) {
	ctx := context.Background()
	reader := &priceReaderMock{}
	price := &model.CryptoPrice{Asset: model.BTC, Price: decimal.NewFromInt(45000), Timestamp: time.Now().UTC()}
	reader.On("ReadLatestPrice", ctx, model.BTC).Return(price, nil).Once()

	svc := NewService(reader, cache.NewMemory(time.Minute), DefaultPolicy(), 0, zaptest.NewLogger(t))

	first, err := svc.GetLatestPrice(ctx, model.BTC)
	require.NoError(t, err)
	second, err := svc.GetLatestPrice(ctx, model.BTC)
	require.NoError(t, err)

	assert.True(t, first.Price.Equal(second.Price))
	reader.AssertExpectations(t)
}

func TestGetLatestPriceAbsent(t *testing.T) {
	ctx := context.Background()
	reader := &priceReaderMock{}
	reader.On("ReadLatestPrice", ctx, model.ETH).Return(nil, nil)

	svc := NewService(reader, cache.NewMemory(time.Minute), DefaultPolicy(), 0, nil)

	p, err := svc.GetLatestPrice(ctx, model.ETH)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestGetLatestPriceStoreError(t *testing.T) {
	ctx := context.Background()
	reader := &priceReaderMock{}
	reader.On("ReadLatestPrice", ctx, model.ETH).Return(nil, errors.New("db down"))

	svc := NewService(reader, cache.NewMemory(time.Minute), DefaultPolicy(), 0, nil)

	_, err := svc.GetLatestPrice(ctx, model.ETH)
	assert.ErrorContains(t, err, "db down")
}

func TestInvalidatePrice(t *testing.T) {
	ctx := context.Background()
	reader := &priceReaderMock{}
	reader.On("ReadLatestPrice", ctx, model.BTC).
		Return(&model.CryptoPrice{Asset: model.BTC, Price: decimal.NewFromInt(1)}, nil).Once()
	reader.On("ReadLatestPrice", ctx, model.BTC).
		Return(&model.CryptoPrice{Asset: model.BTC, Price: decimal.NewFromInt(2)}, nil).Once()

	svc := NewService(reader, cache.NewMemory(time.Minute), DefaultPolicy(), 0, nil)

	p, err := svc.GetLatestPrice(ctx, model.BTC)
	require.NoError(t, err)
	assert.Equal(t, "1", p.Price.String())

	err = svc.InvalidatePrice(ctx, bus.Message{Payload: events.PriceUpdated{Asset: "BTC", Price: decimal.NewFromInt(2)}})
	require.NoError(t, err)

	p, err = svc.GetLatestPrice(ctx, model.BTC)
	require.NoError(t, err)
	assert.Equal(t, "2", p.Price.String())
	reader.AssertExpectations(t)
}
