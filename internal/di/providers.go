package di

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"RevSight/internal/domain/repository"
	"RevSight/internal/handler/api"
	internalrepo "RevSight/internal/repository"
	"RevSight/internal/service/exchange"
	"RevSight/internal/service/ratelimit"
	"RevSight/internal/services/drift"
	"RevSight/internal/services/features"
	"RevSight/internal/services/labeling"
	"RevSight/internal/services/training"
	"RevSight/internal/services/validation"
	"RevSight/internal/usecase"
	"RevSight/pkg/cache"
	pkgch "RevSight/pkg/clickhouse"
	"RevSight/pkg/config"
	xhttp "RevSight/pkg/http"
	pkgkafka "RevSight/pkg/kafka"
	"RevSight/pkg/logger"
	"RevSight/pkg/metrics"
	"RevSight/pkg/queue"
	"RevSight/pkg/server"
)

// schemaStatements is the full ClickHouse DDL: candle tables per timeframe,
// the inference log pair, and the drift report audit trail.
var schemaStatements = []string{
	"CREATE DATABASE IF NOT EXISTS revsight",
	`CREATE TABLE IF NOT EXISTS revsight.rt_candles_1s
        (bucket DateTime, symbol String, open Float64, high Float64, low Float64, close Float64, vol Float64)
        ENGINE=MergeTree ORDER BY (symbol, bucket)`,
	`CREATE TABLE IF NOT EXISTS revsight.rt_candles_1m
        (bucket DateTime, symbol String, open Float64, high Float64, low Float64, close Float64, vol Float64)
        ENGINE=MergeTree ORDER BY (symbol, bucket)`,
	`CREATE TABLE IF NOT EXISTS revsight.rt_candles_5m
        (bucket DateTime, symbol String, open Float64, high Float64, low Float64, close Float64, vol Float64)
        ENGINE=MergeTree ORDER BY (symbol, bucket)`,
	`CREATE TABLE IF NOT EXISTS revsight.rt_inferences
        (bucket DateTime, symbol String, model_version String, features String, proba Float64)
        ENGINE=MergeTree ORDER BY (model_version, symbol, bucket)`,
	`CREATE TABLE IF NOT EXISTS revsight.rt_outcomes
        (bucket DateTime, symbol String, outcome UInt8, observed_at DateTime)
        ENGINE=MergeTree ORDER BY (symbol, bucket)`,
	`CREATE TABLE IF NOT EXISTS revsight.drift_reports
        (model_version String, computed_at DateTime, window_from DateTime, window_to DateTime,
         status String, sample_count UInt32, per_feature_psi String, overall_drift_score Float64,
         train_accuracy Float64, prod_accuracy Float64, matured_outcomes UInt32,
         accuracy_drop Float64, is_drifting UInt8, recommended_action String)
        ENGINE=MergeTree ORDER BY (model_version, computed_at)`,
}

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	level := cfg.Logging.Level
	if level == "" {
		level = "info"
	}
	format := cfg.Logging.Format
	if format == "" {
		format = "json"
	}
	output := cfg.Logging.Output
	if output == "" {
		output = "stdout"
	}
	return logger.New(&logger.Config{Level: level, Format: format, Output: output})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and initializes schema.
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

	if err := client.InitSchema(ctx, schemaStatements); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
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

// ProvideKafkaConsumer creates the inference-events consumer.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
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

// ProvideRedisCache connects to Redis for both caching and the queue.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	host, port := splitAddr(cfg.Redis.Addr)
	return cache.NewRedisCache(
		cache.WithRedisHost(host),
		cache.WithRedisPort(port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
	)
}

// ProvideCacheService exposes the Redis cache under the Service interface.
func ProvideCacheService(rc *cache.RedisCache) cache.Service {
	return rc
}

// ProvideQueuePublisher creates the producer side of the retrain queue,
// sharing the cache's Redis connection.
func ProvideQueuePublisher(cfg *config.Config, log *logger.Logger, rc *cache.RedisCache) queue.QueueService {
	opts := []queue.RedisQueueOption{}
	if cfg.Queue.KeyPrefix != "" {
		opts = append(opts, queue.WithKeyPrefix(cfg.Queue.KeyPrefix))
	}
	return queue.NewRedisPublisher(log, rc.Client(), opts...)
}

// ProvideModelRegistry creates the filesystem model registry.
func ProvideModelRegistry(cfg *config.Config, log *logger.Logger) (repository.ModelRegistry, error) {
	return internalrepo.NewFSModelRegistry(cfg.Registry.Dir, log)
}

// ProvideCandleSource picks between the local ClickHouse candle tables and
// the exchange REST backfill, per config.
func ProvideCandleSource(cfg *config.Config, ch *pkgch.Client, log *logger.Logger) repository.CandleSource {
	if cfg.Exchange.Enabled {
		timeout := cfg.Exchange.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		return exchange.New(cfg.Exchange.BaseURL, timeout, ratelimit.New(), log)
	}
	src := internalrepo.NewCHCandleSource(ch)
	src.SetLogger(log)
	return src
}

// ProvideInferenceLog creates the ClickHouse inference log.
func ProvideInferenceLog(ch *pkgch.Client, log *logger.Logger) repository.InferenceLog {
	ilog := internalrepo.NewCHInferenceLog(ch)
	ilog.SetLogger(log)
	return ilog
}

// ProvideDriftPublisher publishes drift reports to Kafka.
func ProvideDriftPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.ReportPublisher {
	return internalrepo.NewKafkaDriftPublisher(producer, cfg.Kafka.DriftTopic)
}

// ProvideEngineer creates the feature engineer.
func ProvideEngineer() *features.Engineer {
	return features.NewEngineer(0)
}

// ProvideLabeler creates the reversal labeler with production thresholds.
func ProvideLabeler(eng *features.Engineer) *labeling.Labeler {
	return labeling.New(labeling.DefaultConfig(), eng)
}

// ProvideHyperparameters returns the production hyperparameter set.
func ProvideHyperparameters() training.Hyperparameters {
	return training.DefaultHyperparameters()
}

// ProvideTrainer creates the candidate trainer.
func ProvideTrainer(hp training.Hyperparameters, log *logger.Logger) *training.ModelTrainer {
	return training.NewModelTrainer(hp, log)
}

// ProvideValidationConfig builds the validator config from YAML overrides.
func ProvideValidationConfig(cfg *config.Config) validation.Config {
	vcfg := validation.DefaultConfig()
	if cfg.Training.SplitRatio > 0 {
		vcfg.SplitRatio = cfg.Training.SplitRatio
	}
	if cfg.Training.Folds > 0 {
		vcfg.Folds = cfg.Training.Folds
	}
	return vcfg
}

// ProvideValidator creates the candidate validator.
func ProvideValidator(vcfg validation.Config, trainer *training.ModelTrainer, log *logger.Logger) *validation.Validator {
	return validation.NewValidator(vcfg, trainer, log)
}

// ProvideTrainingUseCase assembles the training pipeline.
func ProvideTrainingUseCase(
	cfg *config.Config,
	candles repository.CandleSource,
	engineer *features.Engineer,
	labeler *labeling.Labeler,
	trainer *training.ModelTrainer,
	validator *validation.Validator,
	hp training.Hyperparameters,
	vcfg validation.Config,
	registry repository.ModelRegistry,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.TrainingUseCase {
	tc := usecase.TrainingConfig{
		Symbols:       cfg.Data.Symbols,
		LookbackDays:  cfg.Data.LookbackDays,
		Timeframe:     repository.NormalizeTimeframe(cfg.Data.Timeframe),
		MinExamples:   cfg.Training.MinExamples,
		ReferenceBins: cfg.Training.ReferenceBins,
		AutoPromote:   cfg.Training.AutoPromote,
		KeepDays:      cfg.Registry.KeepDays,
		KeepMax:       cfg.Registry.KeepMax,
	}
	return usecase.NewTrainingUseCase(tc, candles, engineer, labeler, trainer, validator, hp, vcfg, registry, m, log)
}

// ProvideDriftMonitor creates the drift monitor from YAML overrides.
func ProvideDriftMonitor(
	cfg *config.Config,
	registry repository.ModelRegistry,
	ilog repository.InferenceLog,
	m repository.Metrics,
	log *logger.Logger,
) *drift.Monitor {
	dcfg := drift.DefaultConfig()
	if cfg.Drift.Bins > 0 {
		dcfg.Bins = cfg.Drift.Bins
	}
	if cfg.Drift.MinSamples > 0 {
		dcfg.MinSamples = cfg.Drift.MinSamples
	}
	if cfg.Drift.MinOutcomes > 0 {
		dcfg.MinOutcomes = cfg.Drift.MinOutcomes
	}
	if cfg.Drift.PSIModerate > 0 {
		dcfg.PSIModerate = cfg.Drift.PSIModerate
	}
	if cfg.Drift.PSISignificant > 0 {
		dcfg.PSISignificant = cfg.Drift.PSISignificant
	}
	if cfg.Drift.AccuracyDropLimit > 0 {
		dcfg.AccuracyDropLimit = cfg.Drift.AccuracyDropLimit
	}
	if cfg.Drift.Maturity > 0 {
		dcfg.Maturity = cfg.Drift.Maturity
	}
	return drift.NewMonitor(dcfg, registry, ilog, m, log)
}

// ProvideDriftUseCase wraps the monitor with audit trail and cache.
func ProvideDriftUseCase(
	monitor *drift.Monitor,
	ilog repository.InferenceLog,
	publisher repository.ReportPublisher,
	cacheSvc cache.Service,
	log *logger.Logger,
) *usecase.DriftUseCase {
	return usecase.NewDriftUseCase(monitor, ilog, publisher, cacheSvc, log)
}

// ProvideModelCatalog creates the registry read/promote usecase.
func ProvideModelCatalog(registry repository.ModelRegistry, m repository.Metrics, log *logger.Logger) *usecase.ModelCatalogUseCase {
	return usecase.NewModelCatalogUseCase(registry, m, log)
}

// ProvideInferenceEventsHandler registers the handler for the inference topic.
func ProvideInferenceEventsHandler(cfg *config.Config, ilog repository.InferenceLog, m repository.Metrics) pkgkafka.MessageHandler {
	return usecase.NewInferenceEventsHandler(cfg.Kafka.InferenceTopic, ilog, m)
}

// ProvideRetrainJob creates the retrain queue job.
func ProvideRetrainJob(trainingUC *usecase.TrainingUseCase, log *logger.Logger) *usecase.RetrainJob {
	return usecase.NewRetrainJob(trainingUC, log)
}

// ProvideRetrainQueue creates the consumer side of the retrain queue.
func ProvideRetrainQueue(cfg *config.Config, log *logger.Logger, rc *cache.RedisCache, job *usecase.RetrainJob) *queue.RedisQueue {
	qcfg := &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}
	opts := []queue.RedisQueueOption{}
	if cfg.Queue.KeyPrefix != "" {
		opts = append(opts, queue.WithKeyPrefix(cfg.Queue.KeyPrefix))
	}
	return queue.NewRedisConsumer(log, qcfg, rc.Client(), []queue.Job{job}, opts...)
}

// ProvideDriftHandler decides what a drifting report triggers.
func ProvideDriftHandler(cfg *config.Config, q queue.QueueService, log *logger.Logger) drift.DriftHandler {
	if !cfg.Drift.RetrainOnDrift {
		return nil
	}
	return usecase.EnqueueRetrainOnDrift(q, cfg.Training.AutoPromote, log)
}

// ProvideScheduler creates the periodic drift check loop.
func ProvideScheduler(cfg *config.Config, checker *usecase.DriftUseCase, onDrift drift.DriftHandler, log *logger.Logger) *drift.Scheduler {
	interval := cfg.Drift.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	lookback := cfg.Drift.Lookback
	if lookback <= 0 {
		lookback = time.Hour
	}
	return drift.NewScheduler(interval, lookback, checker, onDrift, log)
}

// ProvideHTTPHandler creates the Echo route handler.
func ProvideHTTPHandler(
	log *logger.Logger,
	trainingUC *usecase.TrainingUseCase,
	catalog *usecase.ModelCatalogUseCase,
	driftUC *usecase.DriftUseCase,
	q queue.QueueService,
) xhttp.Handler {
	return api.NewModelsEchoHandler(log, trainingUC, catalog, driftUC, q)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	consumer *pkgkafka.Consumer,
	inference pkgkafka.MessageHandler,
	scheduler *drift.Scheduler,
	retrain *queue.RedisQueue,
	handler xhttp.Handler,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	q queue.QueueService,
	m repository.Metrics,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.MetricsHook(
			func(seconds float64) { m.RecordLatency("inference_consume", seconds) },
			func() { m.RecordError("inference_consume") },
		))
	}
	// aggregated error logs go through the queue so a log storm
	// becomes one counted entry instead of thousands of lines
	if cfg.Environment == "production" {
		log.AddCollector(&logger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          "logs:errors",
			Publisher:      q,
		})
	}
	return server.New(cfg, log, consumer, inference, scheduler, retrain, handler, chClient, producer)
}

func splitAddr(addr string) (string, int) {
	host, portStr, ok := strings.Cut(addr, ":")
	if !ok {
		return addr, 6379
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 6379
	}
	return host, port
}
