package pricefeed

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/crypto-bet-platform/internal/bet-engine/model"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/store"
	"github.com/radieske/crypto-bet-platform/pkg/contracts/events"
)

const (
	DefaultInterval = 5 * time.Second
	MaxMove         = 0.01 // variação máxima por tick (1%)
)

// PriceStore é a parte do store usada pelo feed
type PriceStore interface {
	WritePrice(ctx context.Context, p model.CryptoPrice) error
	ReadLatestPrice(ctx context.Context, asset model.Asset) (*model.CryptoPrice, error)
}

// Publisher publica price_updated no barramento
type Publisher interface {
	Publish(ctx context.Context, p events.Payload) (string, error)
}

// Walker simula o mercado: a cada intervalo cada ativo anda até ±1%,
// o preço é gravado e price_updated é publicado.
type Walker struct {
	log      *zap.Logger
	store    PriceStore
	bus      Publisher
	interval time.Duration
	rand     func() float64

	mu      sync.Mutex
	current map[model.Asset]decimal.Decimal
	cancel  context.CancelFunc
	done    chan struct{}

	OnTick func(asset string) // métricas
}

func NewWalker(s PriceStore, pub Publisher, interval time.Duration, log *zap.Logger) *Walker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Walker{
		log:      log,
		store:    s,
		bus:      pub,
		interval: interval,
		rand:     rand.Float64,
		current:  make(map[model.Asset]decimal.Decimal),
	}
}

// Start retoma do último preço gravado (ou do preço de abertura) e agenda os ticks
func (w *Walker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return nil
	}

	for _, asset := range model.Assets() {
		latest, err := w.store.ReadLatestPrice(ctx, asset)
		if err != nil {
			return fmt.Errorf("load price %s: %w", asset, err)
		}
		if latest != nil {
			w.current[asset] = latest.Price
		} else {
			w.current[asset] = store.DemoPrices[asset]
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(runCtx, w.done)

	w.log.Info("price walker started", zap.Duration("interval", w.interval))
	return nil
}

// Stop interrompe os próximos ticks; eventos já publicados seguem no barramento
func (w *Walker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	w.log.Info("price walker stopped")
}

func (w *Walker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil && ctx.Err() == nil {
				w.log.Warn("price tick failed", zap.Error(err))
			}
		}
	}
}

// Tick move todos os ativos uma vez
func (w *Walker) Tick(ctx context.Context) error {
	for _, asset := range model.Assets() {
		p := w.next(asset)

		if err := w.store.WritePrice(ctx, p); err != nil {
			return fmt.Errorf("write price %s: %w", asset, err)
		}
		if _, err := w.bus.Publish(ctx, events.PriceUpdated{
			Asset:     string(p.Asset),
			Price:     p.Price,
			Timestamp: p.Timestamp,
		}); err != nil {
			return fmt.Errorf("publish price %s: %w", asset, err)
		}
		if w.OnTick != nil {
			w.OnTick(string(asset))
		}
	}
	return nil
}

func (w *Walker) next(asset model.Asset) model.CryptoPrice {
	w.mu.Lock()
	defer w.mu.Unlock()

	price, ok := w.current[asset]
	if !ok {
		price = store.DemoPrices[asset]
	}
	change := (w.rand()*2 - 1) * MaxMove
	price = price.Mul(decimal.NewFromFloat(1 + change)).Round(8)
	w.current[asset] = price

	return model.CryptoPrice{Asset: asset, Price: price, Timestamp: time.Now().UTC()}
}
