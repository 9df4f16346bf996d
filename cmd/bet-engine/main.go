package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/crypto-bet-platform/internal/bet-engine/betting"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/bus"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/cache"
	httpapi "github.com/radieske/crypto-bet-platform/internal/bet-engine/http"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/odds"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/pricefeed"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/producer"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/store"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/ws"
	sharedcache "github.com/radieske/crypto-bet-platform/internal/shared/cache"
	"github.com/radieske/crypto-bet-platform/internal/shared/config"
	"github.com/radieske/crypto-bet-platform/internal/shared/db"
	sharedkafka "github.com/radieske/crypto-bet-platform/internal/shared/kafka"
	"github.com/radieske/crypto-bet-platform/internal/shared/logger"
	"github.com/radieske/crypto-bet-platform/internal/shared/metrics"
	"github.com/radieske/crypto-bet-platform/pkg/contracts/topics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store: memória (réplica com lag simulado) ou Postgres primário/réplica
	var st store.Store
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		primary, replica, err := db.ConnectPrimaryReplica(cfg.PostgresDSN, cfg.PostgresReplicaDSN)
		if err != nil {
			log.Fatal("postgres connect", zap.Error(err))
		}
		pg := store.NewPostgres(primary, replica)
		if err := pg.Migrate(ctx); err != nil {
			log.Fatal("postgres migrate", zap.Error(err))
		}
		st = pg
	default:
		st = store.NewMemory(cfg.ReplicaLag, logger.Component(log, "store"))
	}
	checks := []metrics.HealthFunc{st.Ping}

	// Cache: memória ou Redis (Redis também habilita o relay do websocket)
	var (
		c           cache.Cache
		redisClient *redis.Client
	)
	switch cfg.CacheDriver {
	case config.DriverRedis:
		redisClient, err = sharedcache.ConnectRedis(cfg.RedisAddr)
		if err != nil {
			log.Fatal("redis connect", zap.Error(err))
		}
		rc := cache.NewRedis(redisClient, cfg.RedisKeyPrefix, cfg.CacheTTL)
		checks = append(checks, rc.Ping)
		c = rc
	default:
		c = cache.NewMemory(cfg.CacheTTL)
	}

	if cfg.SeedDemo {
		if err := store.SeedDemo(ctx, st); err != nil {
			log.Fatal("seed demo data", zap.Error(err))
		}
	}

	// Métricas Prometheus do pipeline
	published := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bet_engine_events_published_total", Help: "eventos publicados no barramento"}, []string{"type"})
	dispatched := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bet_engine_events_dispatched_total", Help: "eventos despachados"}, []string{"type"})
	handlerErrors := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bet_engine_handler_errors_total", Help: "falhas de handler por tipo"}, []string{"type"})
	betsPlaced := prometheus.NewCounter(prometheus.CounterOpts{Name: "bet_engine_bets_placed_total", Help: "apostas registradas"})
	betsRejected := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bet_engine_bets_rejected_total", Help: "apostas rejeitadas por motivo"}, []string{"reason"})
	betsAccepted := prometheus.NewCounter(prometheus.CounterOpts{Name: "bet_engine_bets_accepted_total", Help: "apostas aceitas"})
	betsSettled := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bet_engine_bets_settled_total", Help: "apostas liquidadas por resultado"}, []string{"outcome"})
	priceTicks := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bet_engine_price_ticks_total", Help: "ticks de preço por ativo"}, []string{"asset"})
	wsConns := prometheus.NewGauge(prometheus.GaugeOpts{Name: "bet_engine_ws_connections", Help: "conexões websocket ativas"})
	wsSent := prometheus.NewCounter(prometheus.CounterOpts{Name: "bet_engine_ws_messages_sent_total", Help: "mensagens enviadas ao dashboard"})
	kafkaForwarded := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bet_engine_kafka_forwarded_total", Help: "eventos espelhados no Kafka"}, []string{"topic"})
	kafkaErrors := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bet_engine_kafka_errors_total", Help: "erros de Kafka por estágio"}, []string{"stage"})
	prometheus.MustRegister(published, dispatched, handlerErrors, betsPlaced, betsRejected, betsAccepted,
		betsSettled, priceTicks, wsConns, wsSent, kafkaForwarded, kafkaErrors)

	// Barramento de eventos
	eventBus := bus.New(st, logger.Component(log, "bus"))
	eventBus.OnPublished = func(t string) { published.WithLabelValues(t).Inc() }
	eventBus.OnDispatched = func(t string) { dispatched.WithLabelValues(t).Inc() }
	eventBus.OnHandlerError = func(t string) { handlerErrors.WithLabelValues(t).Inc() }

	// Serviços de domínio
	users := betting.NewUserService(st, c, cfg.CacheTTL, logger.Component(log, "users"))
	oddsSvc := odds.NewService(st, c, odds.DefaultPolicy(), cfg.PriceCacheTTL, logger.Component(log, "odds"))
	bets := betting.NewService(st, users, oddsSvc, eventBus, logger.Component(log, "bets"))
	bets.OnPlaced = betsPlaced.Inc
	bets.OnRejected = func(reason string) { betsRejected.WithLabelValues(reason).Inc() }
	bets.OnSettled = func(outcome string) { betsSettled.WithLabelValues(outcome).Inc() }
	settlement := betting.NewSettlement(st, eventBus, betting.CoinFlip{}, logger.Component(log, "settlement"))
	settlement.OnAccepted = betsAccepted.Inc

	hub := ws.NewHub(func(r *http.Request) bool { return true }, logger.Component(log, "ws"))
	hub.OnConnect = wsConns.Inc
	hub.OnDisconnect = wsConns.Dec
	hub.OnSent = wsSent.Inc

	// Ordem de registro = ordem de execução por tipo de evento
	eventBus.Subscribe(topics.PriceUpdated, oddsSvc.InvalidatePrice)
	settlement.Subscribe(eventBus)
	bets.Subscribe(eventBus)
	if redisClient != nil {
		relay := ws.NewRedisRelay(redisClient, logger.Component(log, "ws-relay"))
		if err := relay.Start(ctx, hub); err != nil {
			log.Fatal("ws relay start", zap.Error(err))
		}
		relay.Subscribe(eventBus)
	} else {
		hub.Subscribe(eventBus)
	}

	var forwarder *producer.KafkaPublisher
	if cfg.KafkaForward {
		if cfg.Env == "local" || cfg.Env == "dev" {
			all := []string{cfg.TopicBetPlaced, cfg.TopicPriceUpdated, cfg.TopicBetSettled, cfg.TopicPriceTicks, cfg.TopicEventsDLQ}
			if err := sharedkafka.EnsureTopics(ctx, cfg.Brokers(), all, log); err != nil {
				log.Warn("kafka ensure topics failed", zap.Error(err))
			}
		}
		forwarder = producer.NewKafkaPublisher(sharedkafka.NewWriter(cfg.Brokers(), ""), cfg.Topics(), cfg.TopicEventsDLQ, logger.Component(log, "kafka"))
		forwarder.OnForwarded = func(topic string) { kafkaForwarded.WithLabelValues(topic).Inc() }
		forwarder.OnError = func(stage string) { kafkaErrors.WithLabelValues(stage).Inc() }
		forwarder.Subscribe(eventBus)
		eventBus.Sink = forwarder
	}

	// Reentrega o que ficou pendente antes de aceitar novos eventos
	if _, err := eventBus.ReplayEvents(ctx); err != nil {
		log.Fatal("replay pending events", zap.Error(err))
	}

	busDone := make(chan error, 1)
	go func() { busDone <- eventBus.Run(context.Background()) }()

	// Fonte de preços
	var walker *pricefeed.Walker
	switch cfg.PriceSource {
	case config.PriceSourceKafka:
		reader := sharedkafka.NewReader(cfg.Brokers(), cfg.TopicPriceTicks, cfg.ServiceName)
		defer reader.Close()
		src := &pricefeed.KafkaSource{
			Log:        logger.Component(log, "pricefeed"),
			Reader:     reader,
			Store:      st,
			Bus:        eventBus,
			OnConsumed: func() { priceTicks.WithLabelValues("kafka").Inc() },
			OnError:    func(stage string) { kafkaErrors.WithLabelValues("ticks_" + stage).Inc() },
		}
		go func() {
			if err := src.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("price source stopped", zap.Error(err))
			}
		}()
	default:
		walker = pricefeed.NewWalker(st, eventBus, cfg.PriceInterval, logger.Component(log, "pricefeed"))
		walker.OnTick = func(asset string) { priceTicks.WithLabelValues(asset).Inc() }
		if err := walker.Start(ctx); err != nil {
			log.Fatal("price walker start", zap.Error(err))
		}
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, checks...)

	api := httpapi.NewServer(logger.Component(log, "http"), bets, users, oddsSvc, http.HandlerFunc(hub.HandleWS))
	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("bet-engine up",
			zap.String("http_port", cfg.HTTPPort),
			zap.String("metrics_port", cfg.MetricsPort),
			zap.String("store", cfg.StoreDriver),
			zap.String("cache", cfg.CacheDriver),
			zap.String("price_source", cfg.PriceSource),
		)
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = apiSrv.Shutdown(shutdownCtx)
	if walker != nil {
		walker.Stop()
	}

	// Drena o barramento antes de fechar o store
	eventBus.Close()
	if err := <-busDone; err != nil {
		log.Error("event bus stopped", zap.Error(err))
	}
	if forwarder != nil {
		if err := forwarder.Close(); err != nil {
			log.Warn("kafka writer close", zap.Error(err))
		}
	}
	_ = metricsSrv.Shutdown(shutdownCtx)
	if err := st.Close(); err != nil {
		log.Warn("store close", zap.Error(err))
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}
