package di

import (
	"context"
	"fmt"
	"net/http"

	"gameflow/internal/config"
	"gameflow/internal/messaging"
	"gameflow/internal/observability"
	"gameflow/internal/server"
	"gameflow/internal/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// BackendRepository is the undecorated storage backend. The file watcher
// needs the concrete file repository; everything else uses the traced
// storage.FlowRepository.
type BackendRepository interface {
	storage.FlowRepository
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Server) (*zap.Logger, error) {
	return observability.NewLogger(cfg.Environment, cfg.LogLevel)
}

// ProvideTracerProvider starts tracing when enabled.
func ProvideTracerProvider(cfg *config.Server) (*observability.TracerProvider, func(), error) {
	tp, err := observability.InitTracing(observability.TracingConfig{
		Enabled:     cfg.EnableTracing,
		ServiceName: "gameflow-server",
		Environment: cfg.Environment,
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		return nil, nil, err
	}
	return tp, func() { tp.Shutdown(context.Background()) }, nil
}

// ProvideTracer exposes the service tracer.
func ProvideTracer(tp *observability.TracerProvider) trace.Tracer {
	return tp.Tracer()
}

// ProvideCollector returns nil when metrics are disabled.
func ProvideCollector(cfg *config.Server) *observability.Collector {
	if !cfg.EnableMetrics {
		return nil
	}
	return observability.NewCollector("gameflow")
}

// ProvideRedisClient connects to redis when the storage backend or the
// fan-out needs it, and returns nil otherwise.
func ProvideRedisClient(ctx context.Context, cfg *config.Server, logger *zap.Logger) (*redis.Client, func(), error) {
	if !cfg.UsesRedis() {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("Connected to redis", zap.String("addr", cfg.RedisAddr))
	return client, func() { client.Close() }, nil
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Server) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideBackendRepository opens the configured storage backend.
func ProvideBackendRepository(cfg *config.Server, rdb *redis.Client, ddb *awsdynamodb.Client, logger *zap.Logger) (BackendRepository, func(), error) {
	var (
		repo storage.FlowRepository
		err  error
	)
	switch cfg.StorageBackend {
	case storage.BackendFile:
		repo, err = storage.NewFileRepository(cfg.DataDir, logger)
	case storage.BackendSQLite:
		repo, err = storage.NewSQLiteRepository(cfg.SQLitePath, logger)
	case storage.BackendBadger:
		repo, err = storage.NewBadgerRepository(cfg.BadgerPath, logger)
	case storage.BackendRedis:
		repo = storage.NewRedisRepository(rdb, cfg.RedisKey, logger)
	case storage.BackendDynamoDB:
		repo = storage.NewDynamoDBRepository(ddb, cfg.DynamoDBTable, logger)
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	if err != nil {
		return nil, nil, err
	}

	logger.Info("Storage ready", zap.String("backend", cfg.StorageBackend))
	return repo, func() {
		if err := repo.Close(); err != nil {
			logger.Warn("Failed to close storage", zap.Error(err))
		}
	}, nil
}

// ProvideFlowRepository decorates the backend with tracing.
func ProvideFlowRepository(cfg *config.Server, backend BackendRepository, tracer trace.Tracer) storage.FlowRepository {
	if !cfg.EnableTracing {
		return backend
	}
	return storage.TraceRepository(backend, cfg.StorageBackend, tracer)
}

// ProvideFanout selects the in-process or redis relay.
func ProvideFanout(cfg *config.Server, rdb *redis.Client, logger *zap.Logger) messaging.Fanout {
	if cfg.Fanout == "redis" {
		return messaging.NewRedisFanout(rdb, cfg.RedisChannel, logger)
	}
	return messaging.NewLocalFanout()
}

// ProvideEventPublisher returns a no-op publisher unless an event bus is
// configured.
func ProvideEventPublisher(cfg *config.Server, client *awseventbridge.Client, logger *zap.Logger) messaging.EventPublisher {
	if cfg.EventBusName == "" {
		return messaging.NoopPublisher{}
	}
	return messaging.NewEventBridgePublisher(client, cfg.EventBusName, logger)
}

// ProvideHub creates the push channel hub and subscribes it to the fan-out.
func ProvideHub(fanout messaging.Fanout, collector *observability.Collector, logger *zap.Logger) *server.Hub {
	hub := server.NewHub(collector, logger)
	fanout.Subscribe(hub.Broadcast)
	return hub
}

// ProvideFlowHandler creates the flow endpoints.
func ProvideFlowHandler(
	cfg *config.Server,
	repo storage.FlowRepository,
	fanout messaging.Fanout,
	events messaging.EventPublisher,
	collector *observability.Collector,
	tracer trace.Tracer,
	logger *zap.Logger,
) *server.FlowHandler {
	return server.NewFlowHandler(server.FlowHandlerConfig{
		Repository:   repo,
		Fanout:       fanout,
		Events:       events,
		Collector:    collector,
		Tracer:       tracer,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Debug:        !cfg.IsProduction(),
		Logger:       logger,
	})
}

// ProvideSocketHandler creates the push channel endpoint.
func ProvideSocketHandler(hub *server.Hub, repo storage.FlowRepository, logger *zap.Logger) *server.SocketHandler {
	return server.NewSocketHandler(hub, repo, logger)
}

// ProvideHTTPHandler assembles the router.
func ProvideHTTPHandler(
	cfg *config.Server,
	flows *server.FlowHandler,
	socket *server.SocketHandler,
	collector *observability.Collector,
	logger *zap.Logger,
) http.Handler {
	return server.NewRouter(flows, socket, collector, server.RouterConfig{
		CORSOrigins: cfg.CORSOrigins,
		StaticDir:   cfg.StaticDir,
		Debug:       !cfg.IsProduction(),
	}, logger).Setup()
}

// ProvideHTTPServer creates the listener configuration.
func ProvideHTTPServer(cfg *config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:    cfg.Address,
		Handler: handler,
	}
}

// ProvideFileWatcher watches flow.json for hand edits and broadcasts them.
// It returns nil for other backends or when watching is disabled.
func ProvideFileWatcher(cfg *config.Server, backend BackendRepository, flows *server.FlowHandler, logger *zap.Logger) (*storage.FileWatcher, func(), error) {
	fileRepo, ok := backend.(*storage.FileRepository)
	if !ok || !cfg.WatchFlowFile {
		return nil, func() {}, nil
	}
	w, err := storage.NewFileWatcher(fileRepo, func(s storage.Snapshot) {
		flows.Announce(context.Background(), "", s)
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return w, func() { w.Close() }, nil
}
