package di

import (
	"context"
	"fmt"
	"time"

	"github.com/danghungithp/chungquyen-VN/internal/domain/repository"
	domsvc "github.com/danghungithp/chungquyen-VN/internal/domain/service"
	"github.com/danghungithp/chungquyen-VN/internal/handler/api"
	mid "github.com/danghungithp/chungquyen-VN/internal/middleware"
	internalrepo "github.com/danghungithp/chungquyen-VN/internal/repository"
	"github.com/danghungithp/chungquyen-VN/internal/service/cache"
	"github.com/danghungithp/chungquyen-VN/internal/service/marketdata"
	"github.com/danghungithp/chungquyen-VN/internal/service/ratelimit"
	"github.com/danghungithp/chungquyen-VN/internal/service/stream"
	"github.com/danghungithp/chungquyen-VN/internal/services/analytics"
	"github.com/danghungithp/chungquyen-VN/internal/services/sizing"
	"github.com/danghungithp/chungquyen-VN/internal/usecase"
	pkgch "github.com/danghungithp/chungquyen-VN/pkg/clickhouse"
	"github.com/danghungithp/chungquyen-VN/pkg/config"
	pkgkafka "github.com/danghungithp/chungquyen-VN/pkg/kafka"
	"github.com/danghungithp/chungquyen-VN/pkg/logger"
	"github.com/danghungithp/chungquyen-VN/pkg/metrics"
	"github.com/danghungithp/chungquyen-VN/pkg/server"
)

// Pipeline is what the one-shot batch command needs.
type Pipeline struct {
	Runner    *usecase.BatchRunner
	Collector *usecase.SnapshotCollector // nil without storage
	FX        *usecase.FXValuer
	Log       *logger.Logger
}

// ProvideLogger builds the application logger from the logging section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config) repository.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Noop{}
	}
	return metrics.New()
}

// ProvideMarketData creates the gateway client, behind a Redis or in-process
// cache when caching is enabled.
func ProvideMarketData(cfg *config.Config, log *logger.Logger) (repository.MarketData, func(), error) {
	md := cfg.MarketData
	client := marketdata.New(md.BaseURL, md.APIKey, md.Timeout, ratelimit.New(md.RateLimit, md.Burst), log)
	if !md.CacheEnabled {
		return client, func() {}, nil
	}

	codec, err := cache.NewCodec()
	if err != nil {
		return nil, nil, fmt.Errorf("cache codec: %w", err)
	}
	if !cfg.Redis.Enabled {
		mem := cache.NewTTLCache(max(md.CacheTTL, time.Minute))
		cleanup := func() { _ = mem.Close() }
		return internalrepo.NewCachedMarketData(client, mem, codec, md.CacheTTL, log), cleanup, nil
	}

	rc := cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		_ = rc.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	cleanup := func() {
		if err := rc.Close(); err != nil {
			log.Warn("redis close error", logger.Error(err))
		}
	}
	return internalrepo.NewCachedMarketData(client, rc, codec, md.CacheTTL, log), cleanup, nil
}

// ProvideSnapshotStore opens the configured storage backend and creates its
// schema. The "none" backend yields a nil store.
func ProvideSnapshotStore(cfg *config.Config, log *logger.Logger) (repository.SnapshotStore, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.Storage.Backend {
	case "none":
		return nil, func() {}, nil
	case "clickhouse":
		ch := cfg.ClickHouse
		client, err := pkgch.NewClient(ctx,
			pkgch.WithHost(ch.Host),
			pkgch.WithPort(ch.Port),
			pkgch.WithDatabase(ch.Database),
			pkgch.WithCredentials(ch.User, ch.Password),
			pkgch.WithMaxConnections(ch.MaxOpenConns),
			pkgch.WithHTTP(ch.UseHTTP),
			pkgch.WithAsyncInsert(ch.AsyncInsert),
			pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse client: %w", err)
		}
		store := internalrepo.NewClickHouseStore(client, log)
		if err := store.Init(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		cleanup := func() {
			if err := client.Close(); err != nil {
				log.Warn("clickhouse close error", logger.Error(err))
			}
		}
		return store, cleanup, nil
	default:
		store, err := internalrepo.OpenSQLiteStore(cfg.SQLite.Path, log)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Init(ctx); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("sqlite schema: %w", err)
		}
		cleanup := func() {
			if err := store.Close(); err != nil {
				log.Warn("sqlite close error", logger.Error(err))
			}
		}
		return store, cleanup, nil
	}
}

// ProvideResultPublisher creates the Kafka publisher, or a no-op one when Kafka is disabled.
func ProvideResultPublisher(cfg *config.Config, log *logger.Logger) (repository.ResultPublisher, func(), error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NopPublisher{}, func() {}, nil
	}
	k := cfg.Kafka
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(k.Brokers),
		pkgkafka.WithCompression(k.Compression),
		pkgkafka.WithRequiredAcks(k.RequiredAcks),
		pkgkafka.WithBatching(k.Producer.BatchSize, k.Producer.Linger),
		pkgkafka.WithWriteTimeout(k.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(k.Producer.MaxAttempts),
		pkgkafka.WithAsync(k.Producer.Async),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	pub := internalrepo.NewKafkaPublisher(producer, k.ResultsTopic, k.TradesTopic)
	cleanup := func() {
		if err := pub.Close(); err != nil {
			log.Warn("kafka producer close error", logger.Error(err))
		}
	}
	return pub, cleanup, nil
}

// ProvideVolatilityEstimator builds the configured estimator.
func ProvideVolatilityEstimator(cfg *config.Config, log *logger.Logger) domsvc.VolatilityEstimator {
	return analytics.NewVolatilityEstimator(cfg, log)
}

// ProvideEvaluator builds the per-instrument evaluator with the configured sizing policy.
func ProvideEvaluator(cfg *config.Config) (*usecase.Evaluator, error) {
	policy, err := sizing.NewPolicy(cfg)
	if err != nil {
		return nil, err
	}
	return usecase.NewEvaluator(policy, cfg.Pricing.Paths, cfg.Pricing.Seed), nil
}

func ProvideBatchRunner(
	cfg *config.Config,
	market repository.MarketData,
	estimator domsvc.VolatilityEstimator,
	evaluator *usecase.Evaluator,
	store repository.SnapshotStore,
	publisher repository.ResultPublisher,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.BatchRunner {
	return usecase.NewBatchRunner(usecase.BatchSettingsFromConfig(cfg), market, estimator, evaluator, store, publisher, m, log)
}

// ProvideSnapshotCollector returns nil when storage is disabled.
func ProvideSnapshotCollector(cfg *config.Config, market repository.MarketData, estimator domsvc.VolatilityEstimator, store repository.SnapshotStore, log *logger.Logger) *usecase.SnapshotCollector {
	if store == nil {
		return nil
	}
	return usecase.NewSnapshotCollector(usecase.BatchSettingsFromConfig(cfg), market, estimator, store, log)
}

func ProvideFXValuer(market repository.MarketData) *usecase.FXValuer {
	return usecase.NewFXValuer(market)
}

// ProvideTradeCollector builds the websocket trade stream and its pipeline.
// Returns nil when the stream is disabled.
func ProvideTradeCollector(
	cfg *config.Config,
	store repository.SnapshotStore,
	publisher repository.ResultPublisher,
	m repository.Metrics,
	log *logger.Logger,
) (*usecase.TradeCollector, error) {
	sc := cfg.Stream
	if !sc.Enabled {
		return nil, nil
	}
	if sc.Sink == usecase.SinkStorage && store == nil {
		return nil, fmt.Errorf("stream.sink=storage requires a storage backend")
	}
	if sc.Sink == usecase.SinkKafka && !cfg.Kafka.Enabled {
		return nil, fmt.Errorf("stream.sink=kafka requires kafka.enabled")
	}
	proc := usecase.NewTradeProcessor(publisher, store, m, sc.Sink)
	pipe := mid.NewTradePipeline(proc, m,
		mid.WithBatchSize(sc.BatchSize),
		mid.WithFlushInterval(sc.FlushInterval),
	)
	ws := stream.New(sc.URL, cfg.MarketData.APIKey, sc.PingInterval, log)
	return usecase.NewTradeCollector(ws, pipe, m, log, sc.Symbols, sc.ReconnectDelay), nil
}

// ProvideKafkaConsumer creates the trade consumer writing into storage.
// Returns nil unless consumption is enabled.
func ProvideKafkaConsumer(cfg *config.Config, store repository.SnapshotStore, m repository.Metrics, log *logger.Logger) (*pkgkafka.Consumer, error) {
	k := cfg.Kafka
	if !k.Enabled || !k.Consumer.Enabled {
		return nil, nil
	}
	if store == nil {
		return nil, fmt.Errorf("kafka.consumer requires a storage backend")
	}
	consumer, err := pkgkafka.NewConsumer(log,
		pkgkafka.WithConsumerBrokers(k.Brokers),
		pkgkafka.WithConsumerGroupID(k.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(k.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(k.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(k.Consumer.RetryMax, k.Consumer.BackoffMin, k.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(k.Consumer.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewKafkaTradesHandler(k.TradesTopic, store, m))
	consumer.WithConsumerHook(pkgkafka.LoggingHook{Log: log, Slow: time.Second})
	return consumer, nil
}

// ProvideHandler assembles the HTTP API.
func ProvideHandler(
	cfg *config.Config,
	log *logger.Logger,
	evaluator *usecase.Evaluator,
	runner *usecase.BatchRunner,
	collector *usecase.SnapshotCollector,
	market repository.MarketData,
	fx *usecase.FXValuer,
	store repository.SnapshotStore,
) *api.WarrantHandler {
	var dl api.Downloader
	if collector != nil {
		dl = collector
	}
	return api.NewWarrantHandler(log, evaluator, runner, dl, market, fx, store,
		ratelimit.New(cfg.Server.RateLimit, cfg.Server.RateBurst),
		api.HandlerConfig{FXBase: cfg.FX.Base, FXQuote: cfg.FX.Quote, HistoryDays: cfg.Batch.HistoryDays},
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	handler *api.WarrantHandler,
	collector *usecase.TradeCollector,
	consumer *pkgkafka.Consumer,
) *server.App {
	return server.New(cfg, log, handler, collector, consumer)
}

func ProvidePipeline(runner *usecase.BatchRunner, collector *usecase.SnapshotCollector, fx *usecase.FXValuer, log *logger.Logger) *Pipeline {
	return &Pipeline{Runner: runner, Collector: collector, FX: fx, Log: log}
}
