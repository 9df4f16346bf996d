package pricefeed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/radieske/crypto-bet-platform/internal/bet-engine/model"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/store"
	"github.com/radieske/crypto-bet-platform/pkg/contracts/events"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []events.PriceUpdated
}

func (c *capturePublisher) Publish(_ context.Context, p events.Payload) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, p.(events.PriceUpdated))
	return "id", nil
}

func (c *capturePublisher) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func newTestStore(t *testing.T) *store.Memory {
	t.Helper()
	s := store.NewMemory(0, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWalkerTick(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	pub := &capturePublisher{}

	w := NewWalker(st, pub, time.Hour, zaptest.NewLogger(t))
	w.rand = func() float64 { return 1 } // +1%

	require.NoError(t, w.Tick(ctx))

	btc, err := st.ReadLatestPrice(ctx, model.BTC)
	require.NoError(t, err)
	assert.Equal(t, "45450", btc.Price.String())

	eth, err := st.ReadLatestPrice(ctx, model.ETH)
	require.NoError(t, err)
	assert.Equal(t, "3232", eth.Price.String())

	require.Equal(t, 2, pub.len())
	assert.Equal(t, "BTC", pub.events[0].Asset)
	assert.Equal(t, "ETH", pub.events[1].Asset)
}

func TestWalkerStaysWithinOnePercent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	w := NewWalker(st, &capturePublisher{}, time.Hour, nil)

	prev := store.DemoPrices[model.BTC]
	for i := 0; i < 200; i++ {
		require.NoError(t, w.Tick(ctx))
		p, err := st.ReadLatestPrice(ctx, model.BTC)
		require.NoError(t, err)

		ratio, _ := p.Price.Div(prev).Float64()
		require.InDelta(t, 1.0, ratio, MaxMove+1e-6)
		require.True(t, p.Price.IsPositive())
		prev = p.Price
	}
}

func TestWalkerStartResumesFromStoreAndStops(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.WritePrice(ctx, model.CryptoPrice{Asset: model.BTC, Price: decimal.NewFromInt(100), Timestamp: time.Now()}))
	pub := &capturePublisher{}

	w := NewWalker(st, pub, 5*time.Millisecond, zaptest.NewLogger(t))
	w.rand = func() float64 { return 0.5 } // sem variação

	require.NoError(t, w.Start(ctx))
	require.Eventually(t, func() bool { return pub.len() >= 4 }, time.Second, time.Millisecond)
	w.Stop()

	stopped := pub.len()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, pub.len(), "no ticks after Stop")

	p, err := st.ReadLatestPrice(ctx, model.BTC)
	require.NoError(t, err)
	assert.True(t, p.Price.Equal(decimal.NewFromInt(100)))

	w.Stop()
}

type fakeReader struct {
	msgs chan kafka.Message
	errs chan error
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case err := <-f.errs:
		return kafka.Message{}, err
	case m := <-f.msgs:
		return m, nil
	}
}

func TestKafkaSource(t *testing.T) {
	st := newTestStore(t)
	pub := &capturePublisher{}
	reader := &fakeReader{msgs: make(chan kafka.Message, 8), errs: make(chan error, 1)}

	var (
		mu       sync.Mutex
		consumed int
		stages   []string
	)
	src := &KafkaSource{
		Log:        zaptest.NewLogger(t),
		Reader:     reader,
		Store:      st,
		Bus:        pub,
		OnConsumed: func() { mu.Lock(); consumed++; mu.Unlock() },
		OnError:    func(s string) { mu.Lock(); stages = append(stages, s); mu.Unlock() },
	}

	reader.msgs <- kafka.Message{Value: []byte(`{"asset":"eth","price":"3300.5","timestamp":"2024-01-01T00:00:00Z"}`)}
	reader.msgs <- kafka.Message{Value: []byte(`{"asset":"DOGE","price":"1"}`)}
	reader.msgs <- kafka.Message{Value: []byte(`{"asset":"BTC","price":"-1"}`)}
	reader.msgs <- kafka.Message{Value: []byte(`not json`)}
	reader.errs <- errors.New("broker gone")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return consumed == 4 && len(stages) == 4
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	require.Equal(t, 1, pub.len())
	assert.Equal(t, "ETH", pub.events[0].Asset)

	p, err := st.ReadLatestPrice(context.Background(), model.ETH)
	require.NoError(t, err)
	assert.Equal(t, "3300.5", p.Price.String())

	mu.Lock()
	assert.ElementsMatch(t, []string{"decode", "decode", "decode", "read"}, stages)
	mu.Unlock()
}

type captureWriter struct {
	msgs []kafka.Message
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func TestTickWriterFeedsKafkaSource(t *testing.T) {
	cw := &captureWriter{}
	w := NewWalker(newTestStore(t), &TickWriter{Writer: cw, Topic: "price_ticks"}, time.Hour, zaptest.NewLogger(t))

	require.NoError(t, w.Tick(context.Background()))
	require.Len(t, cw.msgs, len(model.Assets()))

	for i, asset := range model.Assets() {
		m := cw.msgs[i]
		assert.Equal(t, "price_ticks", m.Topic)
		assert.Equal(t, string(asset), string(m.Key))

		p, err := decodeTick(m.Value)
		require.NoError(t, err)
		assert.Equal(t, asset, p.Asset)
		assert.True(t, p.Price.IsPositive())
	}
}

func TestTickWriterRejectsOtherEvents(t *testing.T) {
	tw := &TickWriter{Writer: &captureWriter{}, Topic: "price_ticks"}
	_, err := tw.Publish(context.Background(), events.BetSettled{BetID: "b-1", Outcome: events.OutcomeWin})
	assert.Error(t, err)
}
