package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/peteat123/Peteat-sub001/internal/api"
	"github.com/peteat123/Peteat-sub001/internal/auth"
	"github.com/peteat123/Peteat-sub001/internal/config"
	"github.com/peteat123/Peteat-sub001/internal/delivery"
	"github.com/peteat123/Peteat-sub001/internal/discovery"
	"github.com/peteat123/Peteat-sub001/internal/events"
	"github.com/peteat123/Peteat-sub001/internal/logger"
	"github.com/peteat123/Peteat-sub001/internal/middleware"
	"github.com/peteat123/Peteat-sub001/internal/presence"
	"github.com/peteat123/Peteat-sub001/internal/push"
	"github.com/peteat123/Peteat-sub001/internal/reminder"
	"github.com/peteat123/Peteat-sub001/internal/repository"
	"github.com/peteat123/Peteat-sub001/internal/ws"
)

func main() {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		if _, err := os.Stat("config/config.yaml"); err == nil {
			path = "config/config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	lg, err := logger.New(cfg.IsDevelopment(), cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer lg.Sync()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("realtime service stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, lg *zap.Logger) error {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	verifier, err := auth.NewJWTValidator(cfg.JWT.Algorithm, cfg.JWT.HSSecret, cfg.JWT.PublicKeyPath)
	if err != nil {
		return fmt.Errorf("jwt validator init: %w", err)
	}

	// Mongo
	initCtx, cancel := context.WithTimeout(rootCtx, 15*time.Second)
	defer cancel()
	mongoClient, err := repository.NewMongoClient(initCtx, cfg.Mongo.URI)
	if err != nil {
		return fmt.Errorf("mongo connect: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(ctx)
	}()
	stores, err := repository.NewStores(initCtx, mongoClient.Database(cfg.Mongo.Database))
	if err != nil {
		return fmt.Errorf("mongo indexes: %w", err)
	}

	// Redis (optional)
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(initCtx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		defer rdb.Close()
	}

	// Kafka (optional)
	var (
		publisher delivery.EventPublisher
		dlq       push.DeadLetter
		dlqProd   *events.Producer
	)
	if len(cfg.Kafka.Brokers) > 0 {
		msgProd := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicMessageSent)
		defer msgProd.Close()
		publisher = msgProd
		dlqProd = events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPushDLQ)
		defer dlqProd.Close()
		dlq = dlqProd
	}

	gateway := push.NewExpoGateway(push.ExpoConfig{
		Endpoint:        cfg.Push.Endpoint,
		AccessToken:     cfg.Push.AccessToken,
		Timeout:         cfg.PushTimeout,
		RetryMaxElapsed: cfg.PushRetryElapsed,
		BreakerFailures: cfg.Push.BreakerFailures,
		BreakerOpen:     cfg.BreakerOpen,
	}, lg.Named("push"))
	dispatcher := push.NewDispatcher(stores.PushTokens, stores.Notifications, gateway, dlq, cfg.Push.MaxBatch, lg.Named("push"))

	registry := presence.NewRegistry()
	router := delivery.NewRouter(stores.Messages, stores.Conversations, registry, dispatcher, publisher, lg.Named("delivery"))

	var (
		mirror      *presence.Mirror
		wsMirror    ws.PresenceMirror
		presenceAPI api.PresenceReader
		limiter     *middleware.RateLimiter
		lock        reminder.Locker
	)
	if rdb != nil {
		mirror = presence.NewMirror(rdb, cfg.Redis.Prefix, 24*time.Hour)
		wsMirror, presenceAPI = mirror, mirror
		limiter = middleware.NewRateLimiter(middleware.NewRedisCounter(rdb), cfg.Redis.Prefix, cfg.App.RateLimitPerMin, time.Minute, lg.Named("ratelimit"))
		lock = reminder.NewRedisLock(rdb, cfg.Redis.Prefix)
	}

	wsHandler := ws.NewHandler(router, registry, wsMirror, verifier, ws.Options{
		PingInterval:    cfg.PingInterval,
		WriteDeadline:   cfg.WriteDeadline,
		MaxMessageSize:  cfg.WS.MaxMessageSizeBytes,
		SendBuffer:      cfg.WS.SendBuffer,
		EventsPerSecond: cfg.WS.EventsPerSecond,
		EventBurst:      cfg.WS.EventBurst,
	}, lg.Named("ws"))

	var reminders api.ReminderRunner
	if cfg.Reminder.Enabled {
		sched := reminder.NewScheduler(stores.Bookings, dispatcher, lock, reminder.Config{
			Interval: cfg.ReminderInterval,
			Window:   cfg.ReminderWindow,
			LockTTL:  cfg.ReminderLockTTL,
		}, lg.Named("reminder"))
		sched.Start(rootCtx)
		defer sched.Stop()
		reminders = sched
	}

	if cfg.Push.ReplayEnabled && dlqProd != nil {
		replayer := push.NewReplayer(gateway, dlqProd, cfg.Push.ReplayMaxAttempts, lg.Named("replay"))
		consumer := events.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPushDLQ, cfg.Kafka.ReplayGroupID, replayer.Handle, lg.Named("replay"))
		defer consumer.Close()
		go func() {
			if err := consumer.Run(rootCtx); err != nil && rootCtx.Err() == nil {
				lg.Error("dlq consumer stopped", zap.Error(err))
			}
		}()
	}

	app := api.NewServer(api.Deps{
		Auth:          auth.NewMiddleware(verifier, lg.Named("auth")),
		WS:            wsHandler,
		PushTokens:    stores.PushTokens,
		Conversations: stores.Conversations,
		Messages:      stores.Messages,
		Notifications: stores.Notifications,
		Pusher:        dispatcher,
		Reminders:     reminders,
		Presence:      presenceAPI,
		RateLimiter:   limiter,
		Log:           lg.Named("api"),
	})

	if cfg.Consul.Addr != "" {
		reg, err := discovery.NewRegistration(cfg.Consul.Addr, lg.Named("consul"))
		if err != nil {
			return fmt.Errorf("consul client: %w", err)
		}
		id := cfg.Consul.ServiceID
		if id == "" {
			host, _ := os.Hostname()
			id = fmt.Sprintf("%s-%s-%d", cfg.App.Name, host, cfg.App.Port)
		}
		if err := reg.Register(discovery.Service{ID: id, Name: cfg.App.Name, Address: cfg.App.Host, Port: cfg.App.Port, Tags: []string{"ws", "push"}}); err != nil {
			lg.Warn("consul registration failed", zap.Error(err))
		}
		defer func() {
			if err := reg.Deregister(); err != nil {
				lg.Warn("consul deregistration failed", zap.Error(err))
			}
		}()
	}

	errs := make(chan error, 1)
	go func() {
		lg.Info("starting realtime service", zap.String("addr", cfg.App.Addr()))
		errs <- app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("server error: %w", err)
	case <-rootCtx.Done():
		lg.Info("shutdown signal received")
	}

	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		lg.Warn("fiber shutdown", zap.Error(err))
	}
	// Hijacked websocket connections are not tracked by the fiber shutdown.
	wsCtx, wsCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer wsCancel()
	if err := wsHandler.Shutdown(wsCtx); err != nil {
		lg.Warn("websocket shutdown", zap.Error(err))
	}
	router.Close()
	lg.Info("shut down cleanly")
	return nil
}
