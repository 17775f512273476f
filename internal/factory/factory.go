package factory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"family-safety-score/internal/broadcast"
	"family-safety-score/internal/bucketing"
	"family-safety-score/internal/client"
	"family-safety-score/internal/config"
	"family-safety-score/internal/factors"
	"family-safety-score/internal/handler"
	"family-safety-score/internal/repository/clickhouse"
	"family-safety-score/internal/repository/elastic"
	"family-safety-score/internal/repository/postgres"
	"family-safety-score/internal/repository/redis"
	"family-safety-score/internal/repository/scylla"
	"family-safety-score/internal/retry"
	"family-safety-score/internal/serial"
	"family-safety-score/internal/service"
	"family-safety-score/internal/store"
	"family-safety-score/internal/tls"
	"family-safety-score/internal/util"
	"family-safety-score/internal/worker/activityconsumer"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.Manager

	// Required backends
	scyllaClient *scylla.ScyllaClient
	postgresDB   *postgres.DB

	// Optional backends, nil when unreachable outside production
	redisClient      *client.RedisClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	bucketingManager *bucketing.BucketingManager
	lanes            *serial.Dispatcher
	hub              *broadcast.Hub
	signals          factors.SignalSource

	// Sinks whose schema could not be prepared are left nil
	historyRepository *clickhouse.HistoryRepository
	activityIndex     *elastic.ActivityIndex

	serviceFactory *service.ServiceFactory

	consumers   []*client.KafkaConsumer
	stopWorkers context.CancelFunc
	workers     *errgroup.Group
	workersMu   sync.Mutex
	serviceOnce sync.Once
	closeOnce   sync.Once
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		util.Warn("Configuration warning", util.ErrorField(err))
	}

	factory := &Factory{config: cfg}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tls.NewManager(cfg.Server, util.Named("tls"))
	}

	if err := factory.initializeClients(); err != nil {
		factory.closeClients()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeSchemas()
	factory.initializeManagers()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("redis_enabled", factory.redisClient != nil),
		util.Bool("kafka_enabled", factory.kafkaProducer != nil),
		util.Bool("search_enabled", factory.activityIndex != nil),
		util.Bool("history_enabled", factory.historyRepository != nil),
	)

	return factory, nil
}

// initializeClients connects every backend. Scylla and Postgres hold the
// records and are always required; the rest are required only in production.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// ScyllaDB
	scyllaClient, err := scylla.NewScyllaClient(f.config, util.Named("scylla"))
	if err != nil {
		return fmt.Errorf("scylla: %w", err)
	}
	f.scyllaClient = scyllaClient
	util.Info("ScyllaDB client initialized and healthy")

	// PostgreSQL
	db, err := postgres.Connect(ctx, f.config.Postgres, util.Named("postgres"))
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	f.postgresDB = db
	util.Info("PostgreSQL pool initialized and healthy")

	var optionalErrors []error

	// Redis
	if c, err := client.NewRedisClient(f.config, util.Named("redis")); err != nil {
		optionalErrors = append(optionalErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = c
		util.Info("Redis client initialized and healthy")
	}

	// Kafka
	if p, err := client.NewKafkaProducer(f.config, util.Named("kafka")); err != nil {
		optionalErrors = append(optionalErrors, fmt.Errorf("kafka: %w", err))
	} else {
		f.kafkaProducer = p
	}

	// Elasticsearch
	if c, err := client.NewElasticsearchClient(f.config, util.Named("elasticsearch")); err != nil {
		optionalErrors = append(optionalErrors, fmt.Errorf("elasticsearch: %w", err))
	} else {
		f.esClient = c
		util.Info("Elasticsearch client initialized and healthy")
	}

	// ClickHouse
	if c, err := client.NewClickHouseClient(f.config, util.Named("clickhouse")); err != nil {
		optionalErrors = append(optionalErrors, fmt.Errorf("clickhouse: %w", err))
	} else {
		f.clickhouseClient = c
		util.Info("ClickHouse client initialized and healthy")
	}

	if len(optionalErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %w", errors.Join(optionalErrors...))
		}
		for _, err := range optionalErrors {
			util.Warn("Service initialization warning - proceeding without it", util.ErrorField(err))
		}
	}

	return nil
}

// initializeSchemas prepares tables and indexes. A sink whose schema cannot
// be prepared is disabled rather than failing startup.
func (f *Factory) initializeSchemas() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := f.scyllaClient.EnsureSchema(ctx); err != nil {
		util.Warn("ScyllaDB schema check failed", util.ErrorField(err))
	}

	if f.config.Postgres.RunMigrations {
		if err := f.postgresDB.Migrate(ctx); err != nil {
			util.Warn("PostgreSQL migrations failed", util.ErrorField(err))
		}
	}

	if f.clickhouseClient != nil {
		repo := clickhouse.NewHistoryRepository(f.clickhouseClient, util.Named("score_history"))
		if err := repo.EnsureSchema(ctx); err != nil {
			util.Warn("ClickHouse schema failed - score history disabled", util.ErrorField(err))
		} else {
			f.historyRepository = repo
		}
	}

	if f.esClient != nil {
		index := elastic.NewActivityIndex(f.esClient, f.config.Elasticsearch.ActivityIndex, util.Named("activity_index"))
		if err := index.EnsureIndex(ctx); err != nil {
			util.Warn("Elasticsearch index failed - activity search disabled", util.ErrorField(err))
		} else {
			f.activityIndex = index
		}
	}
}

// initializeManagers builds the in-process collaborators
func (f *Factory) initializeManagers() {
	f.bucketingManager = bucketing.NewBucketingManager(f.config.Bucketing)
	f.lanes = serial.NewDispatcher(f.config.Lanes.Count, f.config.Lanes.QueueSize)

	f.hub = broadcast.NewHub(0, util.Named("broadcast"))
	f.hub.Open()
	if f.kafkaProducer != nil {
		f.hub.SetPublisher(f.kafkaProducer)
	}

	seed := f.config.Scoring.SignalSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	f.signals = factors.NewSimulatedSource(seed)

	util.Info("Managers initialized successfully",
		util.Int("user_buckets", f.bucketingManager.GetUserBuckets()),
		util.Int("lanes", f.config.Lanes.Count),
	)
}

// ==============================
// Service Factory
// ==============================

func (f *Factory) stores() service.Stores {
	logger := util.Get()
	stores := service.Stores{
		Scores:      scylla.NewScoreRepository(f.scyllaClient, f.bucketingManager, logger.Named("scores")),
		Engagement:  scylla.NewEngagementRepository(f.scyllaClient, f.bucketingManager, logger.Named("engagement_store")),
		Activities:  scylla.NewActivityRepository(f.scyllaClient, f.bucketingManager, logger.Named("activities")),
		Inventory:   postgres.NewInventoryRepository(f.postgresDB),
		Broadcaster: f.hub,
	}

	// optional stores are assigned only when present so the interfaces stay nil
	if f.historyRepository != nil {
		stores.History = f.historyRepository
		stores.Sinks = append(stores.Sinks, f.historyRepository)
	}
	if f.activityIndex != nil {
		stores.Searcher = f.activityIndex
		stores.Sinks = append(stores.Sinks, f.activityIndex)
	}
	if f.redisClient != nil {
		stores.Locker = redis.NewUserLock(f.redisClient, f.config.Scoring.LockTTL, logger.Named("user_lock"))
		stores.Limiter = redis.NewRateLimitCache(f.redisClient, f.bucketingManager,
			f.config.Scoring.RecalcPerMinute, time.Minute, logger.Named("rate_limit"))
	}
	return stores
}

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	f.serviceOnce.Do(func() {
		f.serviceFactory = service.NewServiceFactory(
			f.config,
			f.stores(),
			f.signals,
			f.lanes,
			util.Named("service"),
		)
	})
	return f.serviceFactory
}

// ==============================
// Background Workers
// ==============================

// Start runs the Kafka relay and the activity consumer until Close. Without
// Kafka it does nothing.
func (f *Factory) Start(ctx context.Context) {
	f.workersMu.Lock()
	defer f.workersMu.Unlock()
	if f.workers != nil || f.kafkaProducer == nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	f.stopWorkers = cancel
	f.workers = g

	kafkaCfg := f.config.Kafka

	// every instance needs every event, so each relay gets its own group
	relayGroup := kafkaCfg.ConsumerGroup + "-relay-" + uuid.NewString()
	relayConsumer := client.NewKafkaConsumer(f.config, kafkaCfg.EventsTopic, relayGroup, kafka.LastOffset, util.Named("relay_consumer"))
	f.consumers = append(f.consumers, relayConsumer)
	relay := broadcast.NewKafkaRelay(relayConsumer.Reader, f.hub, util.Named("relay"))
	g.Go(func() error { return relay.Run(gctx) })

	if kafkaCfg.ConsumeEnabled {
		activityConsumer := client.NewKafkaConsumer(f.config, kafkaCfg.ActivityTopic, kafkaCfg.ConsumerGroup, kafka.FirstOffset, util.Named("activity_consumer"))
		f.consumers = append(f.consumers, activityConsumer)
		worker := activityconsumer.New(
			activityConsumer.Reader,
			f.ServiceFactory().EngagementService(),
			retry.FromConfig(f.config.Retry),
			util.Named("activity_consumer"),
		)
		g.Go(func() error { return worker.Run(gctx) })
	}

	util.Info("Background workers started",
		util.String("events_topic", kafkaCfg.EventsTopic),
		util.Bool("activity_consumer", kafkaCfg.ConsumeEnabled),
	)
}

func (f *Factory) stopBackgroundWorkers() {
	f.workersMu.Lock()
	defer f.workersMu.Unlock()
	if f.workers == nil {
		return
	}
	f.stopWorkers()
	if err := f.workers.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		util.Error("Background worker failed", util.ErrorField(err))
	}
	for _, c := range f.consumers {
		_ = c.Close()
	}
	f.consumers = nil
	f.workers = nil
	util.Info("Background workers stopped")
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(ctx); err != nil {
			healthErrors["scylla"] = err
		}
	} else {
		healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
	}

	if f.postgresDB != nil {
		if err := f.postgresDB.HealthCheck(ctx); err != nil {
			healthErrors["postgres"] = err
		}
	} else {
		healthErrors["postgres"] = fmt.Errorf("postgres pool not initialized")
	}

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}

	if f.esClient != nil {
		if err := f.esClient.HealthCheck(ctx); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	return healthErrors
}

type readiness struct{ f *Factory }

func (r readiness) HealthCheck(ctx context.Context) error {
	healthErrors := r.f.HealthCheck(ctx)
	var errs []error
	for _, name := range []string{"scylla", "postgres"} {
		if err := healthErrors[name]; err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Readiness adapts the factory to the /health endpoint.
func (f *Factory) Readiness() handler.HealthChecker {
	return readiness{f: f}
}

// ==============================
// Shutdown
// ==============================

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		util.Info("Shutting down factory...")

		f.stopBackgroundWorkers()

		if f.lanes != nil {
			f.lanes.Close()
			util.Info("Scoring lanes drained")
		}

		if f.hub != nil {
			f.hub.Close()
			util.Info("Broadcast hub closed")
		}

		f.closeClients()

		util.Info("Factory shutdown completed")
		util.Sync()
	})

	return nil
}

func (f *Factory) closeClients() {
	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.Close(); err != nil {
			util.Error("Failed to close Kafka producer", util.ErrorField(err))
		}
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.Close(); err != nil {
			util.Error("Failed to close ClickHouse client", util.ErrorField(err))
		}
	}

	if f.esClient != nil {
		f.esClient.Close()
		util.Info("Elasticsearch client closed")
	}

	if f.scyllaClient != nil {
		f.scyllaClient.Close()
		util.Info("ScyllaDB client closed")
	}

	if f.postgresDB != nil {
		f.postgresDB.Close()
		util.Info("PostgreSQL pool closed")
	}

	if f.redisClient != nil {
		if err := f.redisClient.Close(); err != nil {
			util.Error("Failed to close Redis client", util.ErrorField(err))
		}
	}
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.Manager {
	return f.tlsManager
}

func (f *Factory) Hub() *broadcast.Hub {
	return f.hub
}

var _ store.Broadcaster = (*broadcast.Hub)(nil)
