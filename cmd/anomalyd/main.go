package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/bibbank/invoice-anomaly/internal/application/usecase"
	"github.com/bibbank/invoice-anomaly/internal/domain/service"
	"github.com/bibbank/invoice-anomaly/internal/infrastructure/config"
	infrakafka "github.com/bibbank/invoice-anomaly/internal/infrastructure/kafka"
	"github.com/bibbank/invoice-anomaly/internal/infrastructure/metrics"
	"github.com/bibbank/invoice-anomaly/internal/infrastructure/ml"
	"github.com/bibbank/invoice-anomaly/internal/infrastructure/postgres"
	grpcpresentation "github.com/bibbank/invoice-anomaly/internal/presentation/grpc"
	"github.com/bibbank/invoice-anomaly/internal/presentation/rest"
	"github.com/bibbank/invoice-anomaly/migrations"
	"github.com/bibbank/invoice-anomaly/pkg/auth"
	pkgkafka "github.com/bibbank/invoice-anomaly/pkg/kafka"
	"github.com/bibbank/invoice-anomaly/pkg/observability"
	pgutil "github.com/bibbank/invoice-anomaly/pkg/postgres"
	"github.com/bibbank/invoice-anomaly/pkg/tlsutil"
)

const devJWTSecret = "dev-only-anomaly-secret-change-me"

func main() {
	if err := run(); err != nil {
		slog.Error("anomaly-service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := observability.InitLogger(observability.LogConfig{
		Level:       cfg.LogLevel,
		Format:      "json",
		ServiceName: cfg.ServiceName,
	})

	logger.Info("starting anomaly-service",
		"http_port", cfg.HTTPPort,
		"grpc_port", cfg.GRPCPort,
		"environment", cfg.Environment,
	)

	// Tracing.
	shutdownTracer, err := observability.InitTracer(ctx, observability.TracingConfig{
		ServiceName:  cfg.ServiceName,
		Endpoint:     cfg.Tracing.Endpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Insecure:     true,
	})
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() { _ = shutdownTracer(context.Background()) }()
	}

	// Metrics.
	meterProvider, registry, metricsHandler, err := observability.InitMetrics(observability.MetricsConfig{
		ServiceName: cfg.ServiceName,
		Port:        cfg.HTTPPort,
	})
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}
	otel.SetMeterProvider(meterProvider)
	defer func() { _ = meterProvider.Shutdown(context.Background()) }()

	engineMetrics, err := metrics.NewEngineMetrics(registry)
	if err != nil {
		return fmt.Errorf("registering engine metrics: %w", err)
	}

	// Database.
	if cfg.Database.AutoMigrate {
		if err := pgutil.RunMigrations(cfg.Database.URL, migrations.FS, "."); err != nil {
			return fmt.Errorf("applying migrations: %w", err)
		}
		logger.Info("database migrations applied")
	}

	dbCtx, dbCancel := context.WithTimeout(ctx, 10*time.Second)
	defer dbCancel()
	pool, err := pgutil.NewPoolFromDSN(dbCtx, cfg.Database.URL, cfg.Database.MaxConns, 2)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	// Kafka.
	kafkaCfg := pkgkafka.Config{
		Brokers:       cfg.Kafka.Brokers,
		ConsumerGroup: cfg.Kafka.ConsumerGroup,
	}
	producer, err := pkgkafka.NewProducer(kafkaCfg)
	if err != nil {
		return fmt.Errorf("creating kafka producer: %w", err)
	}
	defer func() { _ = producer.Close() }()

	// Infrastructure adapters.
	assessmentRepo := postgres.NewAssessmentRepository(pool)
	eventPublisher := infrakafka.NewPublisher(producer, cfg.Kafka.EventsTopic, logger)

	// Domain services.
	engineCfg, err := cfg.Engine.EngineConfig()
	if err != nil {
		return fmt.Errorf("engine settings: %w", err)
	}
	forest, err := ml.NewIsolationForest(cfg.Engine.ForestConfig(), logger)
	if err != nil {
		return fmt.Errorf("isolation forest: %w", err)
	}
	engine, err := service.NewEngine(engineCfg, forest, logger)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	// Use cases.
	scoreBatchUC := usecase.NewScoreBatch(assessmentRepo, eventPublisher, engine, ml.NewModelCache(), engineMetrics, logger)
	getBatchAssessmentUC := usecase.NewGetBatchAssessment(assessmentRepo)
	getInvoiceVerdictUC := usecase.NewGetInvoiceVerdict(assessmentRepo)

	// gRPC server.
	jwtService, err := newJWTService(cfg, logger)
	if err != nil {
		return err
	}
	serverOpts := grpcpresentation.ServerOptions{
		JWT:        jwtService,
		Reflection: cfg.Environment == "development",
	}
	if cfg.TLS.CertFile != "" {
		creds, err := tlsutil.ServerCredentials(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.CAFile)
		if err != nil {
			return fmt.Errorf("loading TLS credentials: %w", err)
		}
		serverOpts.Creds = creds
	}
	grpcHandler := grpcpresentation.NewAnomalyServiceHandler(scoreBatchUC, getBatchAssessmentUC, getInvoiceVerdictUC, logger)
	grpcServer := grpcpresentation.NewServer(grpcHandler, cfg.GRPCAddress(), logger, serverOpts)

	// HTTP server (health checks and metrics).
	healthHandler := rest.NewHealthHandler(cfg.ServiceName, logger, map[string]rest.Check{
		"database": func(ctx context.Context) error { return pgutil.HealthCheck(ctx, pool) },
		"kafka":    func(ctx context.Context) error { return pkgkafka.Ping(ctx, kafkaCfg) },
	})
	httpMux := http.NewServeMux()
	healthHandler.RegisterRoutes(httpMux)
	httpMux.Handle("GET /metrics", metricsHandler)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddress(),
		Handler:      httpMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start servers.
	errCh := make(chan error, 3)

	go func() {
		if err := grpcServer.Start(); err != nil {
			errCh <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	go func() {
		logger.Info("HTTP server starting", "address", cfg.HTTPAddress())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if cfg.Kafka.ConsumeInvoices {
		batchHandler := infrakafka.NewBatchHandler(scoreBatchUC, logger)
		consumer, err := pkgkafka.NewConsumer(kafkaCfg, cfg.Kafka.InvoiceTopic, batchHandler.Handle, logger,
			pkgkafka.WithDeadLetter(producer, cfg.Kafka.DeadLetterTopic),
		)
		if err != nil {
			return fmt.Errorf("creating invoice consumer: %w", err)
		}
		defer func() { _ = consumer.Close() }()

		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("invoice consumer error: %w", err)
			}
		}()
		logger.Info("invoice batch consumer started", "topic", cfg.Kafka.InvoiceTopic)
	}

	logger.Info("anomaly-service started",
		"grpc_address", cfg.GRPCAddress(),
		"http_address", cfg.HTTPAddress(),
	)

	// Wait for shutdown signal.
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		logger.Error("server error", "error", err)
	}

	// Graceful shutdown.
	logger.Info("shutting down anomaly-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	grpcServer.Stop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("anomaly-service stopped")
	return nil
}

// newJWTService validates RS256 tokens when a public key file is configured, HS256
// otherwise. Development falls back to a fixed secret.
func newJWTService(cfg *config.Config, logger *slog.Logger) (*auth.JWTService, error) {
	jwtCfg := auth.JWTConfig{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
	}
	if cfg.Auth.PublicKeyFile != "" {
		pem, err := os.ReadFile(cfg.Auth.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading JWT public key: %w", err)
		}
		jwtCfg.PublicKeyPEM = string(pem)
		jwtCfg.Secret = ""
	}
	if jwtCfg.PublicKeyPEM == "" && jwtCfg.Secret == "" {
		logger.Warn("JWT_SECRET not set, using development secret")
		jwtCfg.Secret = devJWTSecret
	}

	svc, err := auth.NewJWTService(jwtCfg)
	if err != nil {
		return nil, fmt.Errorf("creating JWT service: %w", err)
	}
	return svc, nil
}
