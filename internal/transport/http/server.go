package http

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"dealership_backend/internal/auth"
	"dealership_backend/internal/cache"
	"dealership_backend/internal/config"
	"dealership_backend/internal/database"
	"dealership_backend/internal/handler"
	"dealership_backend/internal/logger"
	"dealership_backend/internal/push"
	"dealership_backend/internal/queue"
	"dealership_backend/internal/realtime"
	"dealership_backend/internal/redis"
	"dealership_backend/internal/repository"
	"dealership_backend/internal/service"
	"dealership_backend/internal/task"
	"dealership_backend/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func Run() error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Database
	db, err := database.Connect(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// 3. Connect to Redis (optional: without it events dispatch in-process and counts are uncached)
	var (
		unread    cache.UnreadCache = cache.NopUnreadCache{}
		publisher service.EventPublisher
		consumer  *queue.RedisConsumer
	)
	if cfg.RedisURL != "" {
		rc, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to create redis client: %w", err)
		}
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Info("connected to redis")

		unread = cache.NewUnreadCache(rc.Client, log)
		publisher = queue.NewPublisher(rc.Client, log)
		consumer = queue.NewConsumer(rc.Client, log)
	} else {
		log.Warn("REDIS_URL not set: events dispatch in-process, unread counts are not cached")
	}

	// 4. Repositories
	inboxWriter := repository.NewInboxWriter(db)
	userInbox := repository.NewUserInboxRepository(db)
	operatorInbox := repository.NewOperatorInboxRepository(db)
	devices := repository.NewDeviceTargetRepository(db)
	principals := repository.NewPrincipalRepository(db)
	reminders := repository.NewReminderRepository(db)
	appointments := repository.NewAppointmentRepository(db)

	// 5. Notification core
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	registry := realtime.NewRegistry(verifier, cfg.CORSAllowedOrigins, log)
	provider := newPushProvider(ctx, cfg, log)
	gateway := push.NewGateway(provider, cfg.PushBatchSize, log)
	tasks := task.NewQueue(task.Config{
		WorkerCount: cfg.DispatchWorkers,
		QueueSize:   cfg.DispatchQueueSize,
	}, log)

	dispatcher := service.NewDispatcher(inboxWriter, devices, principals, registry, gateway, tasks, unread, log)
	scheduler := worker.NewScheduler(reminders, appointments, dispatcher, worker.SchedulerConfig{
		SweepInterval:   cfg.ReminderSweepInterval,
		Lookahead:       cfg.ReminderLookahead,
		CleanupInterval: cfg.ReminderCleanupInterval,
		Retention:       cfg.ReminderRetention,
	}, log)
	trigger := service.NewEventTrigger(publisher, dispatcher, log)

	notifService := service.NewNotificationService(userInbox, operatorInbox, devices, unread, log)
	appointmentService := service.NewAppointmentService(appointments, trigger, scheduler, log)

	// 6. Background workers
	var events *worker.Manager
	if consumer != nil {
		events = worker.NewManager(consumer, worker.NewHandler(dispatcher, log), worker.ManagerConfig{
			WorkerCount: cfg.EventWorkers,
		}, log)
		if err := events.Start(ctx); err != nil {
			return fmt.Errorf("failed to start event workers: %w", err)
		}
	}
	scheduler.Start(ctx)

	// 7. Setup Server
	router := NewRouter(RouterConfig{
		NotificationHandler:      handler.NewNotificationHandler(notifService, log),
		AdminNotificationHandler: handler.NewAdminNotificationHandler(notifService, log),
		DeviceHandler:            handler.NewDeviceHandler(notifService, log),
		AdminHandler:             handler.NewAdminHandler(dispatcher, appointmentService, log),
		Realtime:                 registry.ServeWS,
		Verifier:                 verifier,
		AllowedOrigins:           cfg.CORSAllowedOrigins,
	})

	srv := &stdhttp.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	// 8. Graceful shutdown: stop intake first, then drain background work
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	registry.CloseAll()
	if events != nil {
		events.Stop()
	}
	scheduler.Stop()
	if err := tasks.Shutdown(shutdownCtx); err != nil {
		log.Warn("background tasks abandoned", zap.Error(err))
	}
	return nil
}

// newPushProvider picks the configured provider. It returns nil, which keeps
// the gateway in no-op mode, when nothing usable is configured.
func newPushProvider(ctx context.Context, cfg *config.Config, log *zap.Logger) push.Provider {
	switch cfg.PushProvider {
	case "fcm":
		if !cfg.FCMConfigured() {
			log.Warn("PUSH_PROVIDER=fcm but FCM credentials are incomplete, push disabled")
			return nil
		}
		p, err := push.NewFCMProvider(ctx, cfg.FCMProjectID, cfg.FCMClientEmail, cfg.FCMPrivateKey, log)
		if err != nil {
			log.Error("FCM init failed, push disabled", zap.Error(err))
			return nil
		}
		return p
	case "expo":
		if cfg.PushBatchSize > push.ExpoMaxBatch {
			cfg.PushBatchSize = push.ExpoMaxBatch
		}
		return push.NewExpoProvider("")
	case "":
		log.Warn("PUSH_PROVIDER not set, push disabled")
		return nil
	}
	log.Warn("unknown PUSH_PROVIDER, push disabled", zap.String("provider", cfg.PushProvider))
	return nil
}
