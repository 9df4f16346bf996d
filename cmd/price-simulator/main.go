package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/crypto-bet-platform/internal/bet-engine/pricefeed"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/store"
	"github.com/radieske/crypto-bet-platform/internal/shared/config"
	sharedkafka "github.com/radieske/crypto-bet-platform/internal/shared/kafka"
	"github.com/radieske/crypto-bet-platform/internal/shared/logger"
	"github.com/radieske/crypto-bet-platform/internal/shared/metrics"
)

// Simulador de mercado: publica ticks BTC/ETH no tópico price_ticks,
// consumidos pelo bet-engine quando PRICE_SOURCE=kafka.
var ticksSent = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "price_simulator_ticks_sent_total",
	Help: "Total de ticks publicados por ativo",
}, []string{"asset"})

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New("price-simulator", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prometheus.MustRegister(ticksSent)

	if cfg.Env == "local" || cfg.Env == "dev" {
		if err := sharedkafka.EnsureTopics(ctx, cfg.Brokers(), []string{cfg.TopicPriceTicks}, log); err != nil {
			log.Warn("kafka ensure topics failed", zap.Error(err))
		}
	}

	writer := sharedkafka.NewWriter(cfg.Brokers(), "") // tópico vai em cada mensagem
	defer writer.Close()

	// Store em memória de uso local: guarda a série gerada, o walker só lê o último preço na subida
	prices := store.NewMemory(0, logger.Component(log, "store"))
	defer prices.Close()

	walker := pricefeed.NewWalker(prices, &pricefeed.TickWriter{Writer: writer, Topic: cfg.TopicPriceTicks}, cfg.PriceInterval, log)
	walker.OnTick = func(asset string) { ticksSent.WithLabelValues(asset).Inc() }
	if err := walker.Start(ctx); err != nil {
		log.Fatal("price walker start", zap.Error(err))
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort)
	log.Info("price simulator running",
		zap.String("topic", cfg.TopicPriceTicks),
		zap.Duration("interval", cfg.PriceInterval),
		zap.String("metrics_port", cfg.MetricsPort),
	)

	<-ctx.Done()
	walker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}
