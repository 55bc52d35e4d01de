package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saharasol/relief-admin/internal/chain"
	"github.com/saharasol/relief-admin/internal/config"
	"github.com/saharasol/relief-admin/internal/engine"
	"github.com/saharasol/relief-admin/internal/handler"
	"github.com/saharasol/relief-admin/internal/infra/postgresql"
	"github.com/saharasol/relief-admin/internal/infra/postgresql/migrations"
	infraredis "github.com/saharasol/relief-admin/internal/infra/redis"
	"github.com/saharasol/relief-admin/internal/notifier"
	"github.com/saharasol/relief-admin/internal/observability"
	"github.com/saharasol/relief-admin/internal/queue"
	"github.com/saharasol/relief-admin/internal/repository"
	"github.com/saharasol/relief-admin/internal/service"
	"github.com/saharasol/relief-admin/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("relief-admin exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		return fmt.Errorf("rate limiter initialization failed: %w", err)
	}

	broker, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer broker.Close()

	publisher := queue.NewRabbitMQPublisher(broker)
	consumer := queue.NewRabbitMQConsumer(broker, cfg.WorkerConcurrency, logger)

	rpcClient := rpc.New(cfg.SolanaRPCURL)

	signer, err := chain.LoadSigner(cfg.KeypairPath)
	if err != nil {
		return fmt.Errorf("failed to load admin keypair: %w", err)
	}
	program, err := chain.NewProgram(cfg.ProgramID)
	if err != nil {
		return fmt.Errorf("failed to parse program id: %w", err)
	}
	submitter, err := chain.NewRPCSubmitter(rpcClient, signer, logger)
	if err != nil {
		return fmt.Errorf("failed to build submitter: %w", err)
	}
	accounts, err := chain.NewAccountClient(rpcClient, program)
	if err != nil {
		return fmt.Errorf("failed to build account client: %w", err)
	}

	eng, err := engine.New(program, submitter, signer.PublicKey(), rateLimiter, engine.Config{}, logger)
	if err != nil {
		return fmt.Errorf("failed to build submission engine: %w", err)
	}

	operationRepo := repository.NewGormOperationRepo(db)
	itemRepo := repository.NewGormItemRepo(db)

	metrics := observability.NewMetrics()

	operationService, err := service.NewOperationService(operationRepo, publisher, logger)
	if err != nil {
		return fmt.Errorf("failed to build operation service: %w", err)
	}
	operationService.SetMetrics(metrics)

	workerService, err := service.NewWorkerService(
		operationRepo,
		itemRepo,
		consumer,
		eng,
		accounts,
		cfg.WorkerConcurrency,
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to build worker service: %w", err)
	}
	workerService.SetMetrics(metrics)

	if cfg.ProgressWebhookURL != "" {
		progressNotifier, err := notifier.NewWebhookNotifier(cfg.ProgressWebhookURL)
		if err != nil {
			return fmt.Errorf("failed to build progress notifier: %w", err)
		}
		workerService.SetNotifier(progressNotifier)
	}

	staleAfter := time.Duration(cfg.StaleRunAfterMin) * time.Minute
	janitor, err := service.NewJanitor(operationRepo, itemRepo, 0, staleAfter, logger)
	if err != nil {
		return fmt.Errorf("failed to build janitor: %w", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, sqlDB, rdb, broker.Ready)
	if err := handler.RegisterOperationRoutes(app, operationService); err != nil {
		return fmt.Errorf("failed to register operation routes: %w", err)
	}

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("api listening", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down api")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	g.Go(func() error {
		logger.Info("worker pool starting", zap.Int("concurrency", cfg.WorkerConcurrency))
		return workerService.Start(groupCtx)
	})

	g.Go(func() error {
		return janitor.Start(groupCtx)
	})

	err = g.Wait()
	if err != nil && ctx.Err() != nil {
		// Shutdown was requested; consumer and server errors during teardown
		// are expected noise.
		logger.Info("shutdown complete")
		return nil
	}
	return err
}
