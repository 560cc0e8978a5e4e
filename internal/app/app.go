// Package app собирает процесс витрины: хранилища, сервисы заказов, gRPC и HTTP API,
// фоновые воркеры и Kafka.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	storefrontv1 "github.com/vladislavdragonenkov/storefront/api/storefront/v1"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/retry"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/clerks"
	grpcsvc "github.com/vladislavdragonenkov/storefront/internal/service/grpc"
	"github.com/vladislavdragonenkov/storefront/internal/service/orderstatus"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordersync"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/service/retention"
	"github.com/vladislavdragonenkov/storefront/internal/tracing"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	shutdownTimeout       = 5 * time.Second
	breakerMaxFailures    = 5
	breakerResetTimeout   = 30 * time.Second
	serviceNameForTracing = "storefront-service"
)

// Run поднимает все компоненты и блокируется до отмены ctx или падения gRPC сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	logger.Info(version.String())

	tracerProvider, shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: serviceNameForTracing,
		Insecure:    true,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.WithError(err).Warn("tracing shutdown with error")
		}
	}()

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	orderMetrics := metrics.NewOrderMetrics()

	statuses := orderstatus.New(deps.orders, deps.timelineRepo, deps.outboxRepo,
		orderstatus.WithLogger(logger.WithField("layer", "order-status")),
		orderstatus.WithMetrics(orderMetrics),
		orderstatus.WithTracerProvider(tracerProvider),
		orderstatus.WithWriteTimeout(cfg.WriteTimeout),
	)
	subscriptions := ordersync.New(deps.orders, deps.feed,
		ordersync.WithLogger(logger.WithField("layer", "order-sync")),
		ordersync.WithMetrics(orderMetrics),
		ordersync.WithTracerProvider(tracerProvider),
		ordersync.WithSubscribeTimeout(cfg.SubscribeTimeout),
		ordersync.WithQueryTimeout(cfg.WriteTimeout),
	)
	catalogService := catalog.New(deps.shopRepo, deps.images, catalog.WithLogger(logger.WithField("layer", "catalog")))
	clerkService := clerks.New(deps.clerkRepo, logger.WithField("layer", "clerks"))

	workersCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	var workers sync.WaitGroup
	startWorker := func(run func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			run(workersCtx)
		}()
	}

	if deps.runFeed != nil {
		startWorker(deps.runFeed)
	}

	kafkaProducer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.WithError(err).Warn("kafka producer is unavailable, outbox falls back to log publisher")
		kafkaProducer = nil
	}
	startWorker(newOutboxWorker(cfg, deps, kafkaProducer, logger).Run)
	startWorker(retention.NewWorker(deps.orders,
		retention.WithLogger(logger.WithField("layer", "retention")),
		retention.WithMetrics(orderMetrics),
		retention.WithInterval(cfg.RetentionInterval),
		retention.WithRetention(cfg.OrderRetention),
	).Run)

	checkoutConsumer, err := startCheckoutConsumer(workersCtx, cfg, statuses, kafkaProducer, orderMetrics, logger)
	if err != nil {
		logger.WithError(err).Warn("checkout consumer is disabled")
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", deps.storageChecker)
	if deps.feedChecker != nil {
		healthHandler.RegisterChecker("order-feed", deps.feedChecker)
	}
	if deps.cacheChecker != nil {
		healthHandler.RegisterOptional("redis", deps.cacheChecker)
	}
	if kafkaProducer != nil {
		healthHandler.RegisterOptional("kafka", healthcheck.NewPingChecker("kafka", kafkaProducer))
	}

	orderService := grpcsvc.NewOrderService(statuses, subscriptions, logger.WithField("layer", "grpc"))
	grpcServer, healthServer := newGRPCServer(orderService, logger)

	httpSrv := startHTTPServer(ctx, cfg.HTTPAddr, httpapi.NewRouter(httpapi.Config{
		Catalog:        catalogService,
		Clerks:         clerkService,
		Orders:         statuses,
		Health:         healthHandler,
		Logger:         logger.WithField("layer", "http"),
		TracerProvider: tracerProvider,
	}), logger)

	shutdown := func() {
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		shutdownOrderService(orderService, logger)
		stopGRPCServer(grpcServer, logger)
		shutdownHTTP(httpSrv, logger)
		stopWorkers()
		stopKafkaConsumer(checkoutConsumer, logger)
		workers.Wait()
		closeKafkaProducer(kafkaProducer, logger)
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdown()
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC сервер слушает %s", lis.Addr())
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем сервисы")
		shutdown()
		return ctx.Err()
	case err := <-errCh:
		shutdown()
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

func newOutboxWorker(cfg Config, deps *runtimeDependencies, producer *kafka.Producer, logger *log.Entry) *outbox.Worker {
	workerLogger := logger.WithField("layer", "outbox")
	options := []outbox.Option{
		outbox.WithLogger(workerLogger),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}

	if producer == nil {
		return outbox.NewWorker(deps.outboxRepo, outbox.NewLogPublisher(workerLogger), options...)
	}

	options = append(options,
		outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)),
		outbox.WithCircuitBreaker(retry.NewCircuitBreaker(breakerMaxFailures, breakerResetTimeout, workerLogger)),
	)
	return outbox.NewWorker(deps.outboxRepo, kafka.NewOutboxPublisher(producer, cfg.KafkaOrderEventsTopic), options...)
}

func newGRPCServer(orderService *grpcsvc.OrderService, logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	storefrontv1.RegisterOrderServiceServer(grpcServer, orderService)
	grpcMetrics.InitializeMetrics(grpcServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(storefrontv1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	return grpcServer, healthServer
}

// shutdownOrderService закрывает открытые подписки, иначе GracefulStop ждал бы их вечно.
func shutdownOrderService(orderService *grpcsvc.OrderService, logger *log.Entry) {
	if orderService == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := orderService.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("order streams did not finish in time")
	}
}

func stopGRPCServer(grpcServer *grpc.Server, logger *log.Entry) {
	stoppedCh := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		grpcServer.Stop()
	}
}

// startHTTPServer запускает HTTP API вместе с /metrics и health-эндпоинтами.
func startHTTPServer(ctx context.Context, addr string, handler http.Handler, logger *log.Entry) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("HTTP API доступен по адресу %s (метрики: /metrics, health: /healthz /livez /readyz)", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("http server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
