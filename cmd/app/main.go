package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/tasks-api/internal/config"
	"github.com/BuzzLyutic/tasks-api/internal/handler"
	"github.com/BuzzLyutic/tasks-api/internal/live"
	"github.com/BuzzLyutic/tasks-api/internal/repo"
	"github.com/BuzzLyutic/tasks-api/internal/service"
)

func newLogger(level string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("Invalid configuration", zap.Error(err))
	}

	// Подключаем логгер
	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Хранилище задач
	var store repo.TaskStore
	switch cfg.Store {
	case config.StoreMemory:
		store = repo.NewMemoryRepo()
		logger.Warn("Using in-memory store, tasks are lost on restart")
	default:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL) // Создаем новое соединение к БД
		if err != nil {
			logger.Fatal("Failed to connect to Database", zap.Error(err)) // Fatal потому что дальнейшая работа теряет смысл
		}
		defer pool.Close() // Запланированное закрытие соединения

		if err := pool.Ping(ctx); err != nil { // Пытаемся пингануть БД
			logger.Fatal("Failed to ping the Database", zap.Error(err))
		}
		if cfg.Migrate {
			if err := repo.Migrate(ctx, pool); err != nil {
				logger.Fatal("Failed to migrate the Database", zap.Error(err))
			}
		}
		logger.Info("Successfully connected to the Database!")
		store = repo.NewTaskRepo(pool)
	}

	broker := live.NewBroker()
	opts := []service.Option{service.WithLogger(logger)}

	// Redis опционален: кэш списка и рассылка изменений между инстансами
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Invalid REDIS_URL", zap.Error(err))
		}
		rc := redis.NewClient(redisOpts)
		defer rc.Close()

		if err := rc.Ping(ctx).Err(); err != nil {
			logger.Fatal("Failed to ping Redis", zap.Error(err))
		}

		store = repo.NewCachedRepo(store, rc, cfg.ListCacheTTL.Duration)

		hostname, _ := os.Hostname()
		opts = append(opts, service.WithNotifier(live.NewPublisher(rc, live.DefaultChannel, hostname, broker, logger)))

		relay := live.NewRelay(rc, live.DefaultChannel, broker, logger)
		relay.Start(ctx)
		defer relay.Stop()
		logger.Info("Redis change feed enabled", zap.String("channel", live.DefaultChannel))
	}

	taskService := service.NewTaskService(store, broker, opts...)
	taskHandler := handler.NewTaskHandler(taskService, logger)

	srv := http.Server{ // Создаем сервер
		Addr:         ":" + cfg.Port,
		Handler:      handler.NewRouter(taskHandler),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	srv.RegisterOnShutdown(taskHandler.CloseStreams) // SSE-потоки не завершаются сами

	go func() { // Запуск сервера и обработка ошибок
		logger.Info("Server started", zap.String("addr", srv.Addr), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
	stop()
	logger.Info("Server stopped successfully!")
}
