package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/edusupport/internal/api/http"
	"github.com/spec-kit/edusupport/internal/api/http/handlers"
	"github.com/spec-kit/edusupport/internal/auth"
	"github.com/spec-kit/edusupport/internal/config"
	"github.com/spec-kit/edusupport/internal/events"
	"github.com/spec-kit/edusupport/internal/observability"
	"github.com/spec-kit/edusupport/internal/persistence"
	"github.com/spec-kit/edusupport/internal/repository"
	"github.com/spec-kit/edusupport/internal/service"
	"github.com/spec-kit/edusupport/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	conversationRepo := repository.NewConversationRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	attachmentRepo := repository.NewAttachmentRepository(pool)
	receiptRepo := repository.NewReceiptRepository(pool)

	var broker events.Broker
	switch cfg.Chat.Broker {
	case "redis":
		broker = events.NewRedisBroker(redis.Client, cfg.Chat.SubscriberBuffer, logger, metrics)
	default:
		broker = events.NewMemoryBroker(cfg.Chat.SubscriberBuffer, logger, metrics)
	}
	defer broker.Close() //nolint:errcheck

	dispatcher := events.NewInMemoryDispatcher()

	authService := service.NewAuthService(*cfg, userRepo, logger)
	if cfg.Auth.AdminEmail != "" && cfg.Auth.AdminPassword != "" {
		if err := authService.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
			logger.Warn("admin seed failed", zap.Error(err))
		}
	}
	ticketService := service.NewTicketService(ticketRepo, userRepo, dispatcher)
	chatService := service.NewChatService(cfg.Chat, service.ChatDependencies{
		TicketRepo:       ticketRepo,
		ConversationRepo: conversationRepo,
		MessageRepo:      messageRepo,
		AttachmentRepo:   attachmentRepo,
		ReceiptRepo:      receiptRepo,
		Broker:           broker,
		Dispatcher:       dispatcher,
		Logger:           logger,
	})
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Users:          handlers.NewUsersHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService, chatService),
		Chat:           handlers.NewChatHandler(chatService, ticketService),
		WS:             handlers.NewWSHandler(chatService, ticketService, broker, authMiddleware, logger),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
