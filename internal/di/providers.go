package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"DigitFlow/internal/controller"
	"DigitFlow/internal/domain/repository"
	"DigitFlow/internal/handler/api"
	mid "DigitFlow/internal/middleware"
	"DigitFlow/internal/predict"
	internalrepo "DigitFlow/internal/repository"
	"DigitFlow/internal/risk"
	icache "DigitFlow/internal/service/cache"
	"DigitFlow/internal/service/deriv"
	"DigitFlow/internal/service/ratelimit"
	"DigitFlow/internal/stats"
	"DigitFlow/internal/usecase"
	pkgch "DigitFlow/pkg/clickhouse"
	"DigitFlow/pkg/config"
	pkgkafka "DigitFlow/pkg/kafka"
	"DigitFlow/pkg/logger"
	"DigitFlow/pkg/metrics"
	"DigitFlow/pkg/queue"
	"DigitFlow/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	format := "json"
	if cfg.Environment == "development" {
		format = "console"
	}
	return logger.New(&logger.Config{Level: "info", Format: format, Output: "stdout"})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the
// database exists.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database,
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideStorage creates the ClickHouse history store and its tables.
func ProvideStorage(chClient *pkgch.Client, cfg *config.Config) (repository.Storage, error) {
	db := cfg.ClickHouse.Database
	store := internalrepo.NewClickHouseHistory(chClient, db+".ticks", db+".trades")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("history schema: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates a Kafka producer. Nil when the deployment
// journals straight to ClickHouse and no brokers are configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Backend.Type != "kafka" && len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideJournal creates the Kafka journal over the shared producer.
func ProvideJournal(producer *pkgkafka.Producer, cfg *config.Config) *internalrepo.KafkaJournal {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaJournal(producer, cfg.Kafka.TicksTopic, cfg.Kafka.TradesTopic)
}

// ProvideKafkaConsumer creates the journal-draining consumer. Only the
// kafka backend needs one.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if cfg.Backend.Type != "kafka" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideTickJournalHandler registers the handler for the ticks topic.
func ProvideTickJournalHandler(store repository.Storage, metrics repository.Metrics, cfg *config.Config) *usecase.TickJournalHandler {
	return usecase.NewTickJournalHandler(cfg.Kafka.TicksTopic, store, metrics)
}

// ProvideTradeJournalHandler registers the handler for the trades topic.
func ProvideTradeJournalHandler(store repository.Storage, metrics repository.Metrics, cfg *config.Config) *usecase.TradeJournalHandler {
	return usecase.NewTradeJournalHandler(cfg.Kafka.TradesTopic, store, metrics)
}

// ProvideRedisClient creates the Redis client for snapshots and the
// reconciliation queue. Nil when Redis is disabled.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideReconQueue creates the Redis-backed reconciliation queue. It serves
// both sides: the controller enqueues ambiguous trades, the registered job
// drains them.
func ProvideReconQueue(log *logger.Logger, client *redis.Client, cfg *config.Config) *queue.RedisQueue {
	if client == nil {
		return nil
	}
	prefix := cfg.Redis.ReconQueue
	if prefix == "" {
		prefix = "digitflow:recon"
	}
	return queue.NewRedisQueue(
		log,
		&queue.QueueConfig{Workers: 1, RetryLimit: 5, RetryDelay: 30 * time.Second},
		client,
		queue.ModeProducerConsumer,
		queue.WithKeyPrefix(prefix),
	)
}

// ProvideSnapshotStore mirrors controller status into Redis when enabled.
func ProvideSnapshotStore(client *redis.Client, cfg *config.Config) repository.SnapshotStore {
	if client == nil {
		return nil
	}
	return internalrepo.NewRedisSnapshot(client, cfg.Deriv.Symbol)
}

// ProvideDerivClient creates the Deriv WebSocket client. It is both the
// market stream and the broker.
func ProvideDerivClient(cfg *config.Config, log *logger.Logger) *deriv.Client {
	return deriv.New(deriv.Config{
		AppID:          cfg.Deriv.AppID,
		APIToken:       cfg.Deriv.APIToken,
		WebSocketURL:   cfg.Deriv.WebSocketURL,
		Symbol:         cfg.Deriv.Symbol,
		PricePrecision: cfg.Deriv.PricePrecision,
		ReconnectDelay: cfg.Deriv.ReconnectDelay,
		PingInterval:   cfg.Deriv.PingInterval,
		CallTimeout:    cfg.Deriv.CallTimeout,
	}, log)
}

// ProvideMarketStream exposes the Deriv client as the market stream.
func ProvideMarketStream(client *deriv.Client) repository.MarketStream { return client }

// ProvideBroker exposes the Deriv client as the broker.
func ProvideBroker(client *deriv.Client) repository.Broker { return client }

// ProvideStatsEngine creates the rolling digit statistics engine.
func ProvideStatsEngine(cfg *config.Config) *stats.Engine {
	return stats.NewEngine(cfg.Trading.HistoryCapacity, cfg.Trading.Windows)
}

// ProvideEnsemble creates the prediction ensemble.
func ProvideEnsemble(engine *stats.Engine, cfg *config.Config) *predict.Ensemble {
	pc := predict.DefaultConfig()
	if cfg.Trading.MinTicks > 0 {
		pc.MinTicks = cfg.Trading.MinTicks
	}
	if cfg.Trading.VolWindow > 0 {
		pc.VolWindow = cfg.Trading.VolWindow
	}
	if cfg.Trading.MaxVolatility > 0 {
		pc.MaxVolatility = cfg.Trading.MaxVolatility
	}
	if cfg.Trading.LearningRate > 0 {
		pc.LearningRate = cfg.Trading.LearningRate
	}
	return predict.NewEnsemble(engine, pc)
}

// ProvideRiskManager creates the risk manager with its rate limiter.
func ProvideRiskManager(cfg *config.Config) *risk.Manager {
	rc := risk.DefaultConfig()
	if cfg.Trading.PayoutRatio > 0 {
		rc.PayoutRatio = cfg.Trading.PayoutRatio
	}
	if cfg.Trading.MaxKellyFraction > 0 {
		rc.MaxKellyFraction = cfg.Trading.MaxKellyFraction
	}
	if cfg.Trading.MaxConfidence > 0 {
		rc.MaxConfidence = cfg.Trading.MaxConfidence
	}
	if cfg.Trading.MinStake > 0 {
		rc.MinStake = decimal.NewFromFloat(cfg.Trading.MinStake)
	}
	if cfg.Trading.StakeIncrement > 0 {
		rc.StakeIncrement = decimal.NewFromFloat(cfg.Trading.StakeIncrement)
	}
	if cfg.Trading.MaxTradesPerHour > 0 {
		rc.MaxTradesPerHour = cfg.Trading.MaxTradesPerHour
	}
	if cfg.Trading.BreakerLosses > 0 {
		rc.BreakerThreshold = cfg.Trading.BreakerLosses
	}
	if cfg.Trading.BreakerCooldown > 0 {
		rc.BreakerCooldown = cfg.Trading.BreakerCooldown
	}
	return risk.NewManager(rc, ratelimit.New())
}

// ProvideTickProcessor creates the journaling processor.
func ProvideTickProcessor(
	journal *internalrepo.KafkaJournal,
	store repository.Storage,
	metrics repository.Metrics,
	cfg *config.Config,
) *usecase.TickProcessor {
	var j repository.Journal
	if journal != nil {
		j = journal
	}
	return usecase.NewTickProcessor(j, store, metrics, cfg.Backend.Type)
}

// ProvideController assembles the trading state machine.
func ProvideController(
	engine *stats.Engine,
	ensemble *predict.Ensemble,
	riskMgr *risk.Manager,
	broker repository.Broker,
	proc *usecase.TickProcessor,
	metrics repository.Metrics,
	log *logger.Logger,
	snaps repository.SnapshotStore,
	rq *queue.RedisQueue,
	cfg *config.Config,
) *controller.Controller {
	var opts []controller.Option
	if cfg.Trading.ResultTimeout > 0 {
		opts = append(opts, controller.WithResultTimeout(cfg.Trading.ResultTimeout))
	}
	if snaps != nil {
		opts = append(opts, controller.WithSnapshotStore(snaps))
	}
	if rq != nil {
		opts = append(opts, controller.WithReconciler(internalrepo.NewQueueReconciler(rq)))
	}
	return controller.New(engine, ensemble, riskMgr, broker, proc, metrics, log, opts...)
}

// ProvideTickCollector creates the stream collector with the validation
// pipeline between the socket and the journal.
func ProvideTickCollector(
	stream repository.MarketStream,
	proc *usecase.TickProcessor,
	ctrl *controller.Controller,
	metrics repository.Metrics,
) *usecase.TickCollector {
	pipe := mid.NewTickPipeline(proc, metrics,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
	return usecase.NewTickCollector(stream, proc, ctrl, metrics, pipe)
}

// ProvideTradingHandler creates the HTTP control plane handler.
func ProvideTradingHandler(log *logger.Logger, ctrl *controller.Controller, store repository.Storage) *api.TradingHandler {
	return api.NewTradingHandler(log, ctrl, store, icache.NewTTLCache())
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	collector *usecase.TickCollector,
	ctrl *controller.Controller,
	broker repository.Broker,
	consumer *pkgkafka.Consumer,
	tickHandler *usecase.TickJournalHandler,
	tradeHandler *usecase.TradeJournalHandler,
	httpHandler *api.TradingHandler,
	chClient *pkgch.Client,
	journal *internalrepo.KafkaJournal,
	rq *queue.RedisQueue,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}

	// Aggregated error logs ride the shared producer when a topic is set.
	if journal != nil && cfg.Kafka.LogsTopic != "" {
		log.AddCollector(&logger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.LogsTopic,
			Publisher:      journal,
		})
	}

	if rq != nil {
		rq.RegisterJob(usecase.NewReconcileJob(broker, collector.Processor(), log))
	}

	return server.New(cfg, log, collector, ctrl, broker, consumer, tickHandler, tradeHandler, httpHandler, chClient, rq)
}
