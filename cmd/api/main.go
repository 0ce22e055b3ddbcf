package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"shareit/internal/api"
	"shareit/internal/bot"
	"shareit/internal/config"
	"shareit/internal/database"
	"shareit/internal/database/postgres"
	"shareit/internal/domain"
	"shareit/internal/events"
	"shareit/internal/google"
	"shareit/internal/logging"
	"shareit/internal/metrics"
	"shareit/internal/models"
	"shareit/internal/notify"
	"shareit/internal/repository"
	"shareit/internal/service"
	"shareit/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, sqliteDB, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	botAPI := initTelegram(cfg, logger)
	bus, natsConn := initEventBus(cfg, repo, botAPI, logger)
	if natsConn != nil {
		defer natsConn.Close()
	}

	sheetsWorker := initSheetsWorker(ctx, &wg, cfg, repo, redisClient, logger)

	var publisher domain.EventPublisher
	if bus != nil {
		publisher = bus
	}
	var syncWorker domain.SyncWorker
	if sheetsWorker != nil {
		syncWorker = sheetsWorker
	}

	services := api.Services{
		Bookings: service.NewBookingService(repo, publisher, syncWorker, logging.Component(logger, "bookings")),
		Items:    service.NewItemService(repo, publisher, logging.Component(logger, "items")),
		Users:    service.NewUserService(repo, logging.Component(logger, "users")),
		Limiter:  initRateLimiter(ctx, &wg, redisClient, logger),
	}

	if botAPI != nil {
		tgBot := bot.NewBot(botAPI, services.Bookings, services.Users, services.Limiter,
			bot.NewMetrics(prometheus.DefaultRegisterer), logging.Component(logger, "bot"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			tgBot.Start(ctx)
		}()
	}

	if sqliteDB != nil && cfg.Backup.Enabled {
		backup := database.NewBackupService(sqliteDB, cfg.Backup, logging.Component(logger, "backup"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			backup.Start(ctx)
		}()
	}

	identity := api.NewIdentityResolver(cfg.API.Auth.JWTSecret)
	grpcServer, err := api.NewGRPCServer(&cfg.API, api.NewBookingGRPCService(services.Bookings, identity, cfg.Bookings.DefaultPageSize), logger)
	if err != nil {
		logger.Error().Err(err).Msg("create grpc server")
		return err
	}

	httpServer := api.NewHTTPServer(cfg.API, services, cfg.Bookings.DefaultPageSize, logger)

	startMetrics(ctx, cfg, logger)

	return startServers(ctx, grpcServer, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

// openRepository opens the configured store. The sqlite handle is returned
// separately for the backup service.
func openRepository(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.Repository, *database.DB, error) {
	storeLogger := logging.Component(logger, "store")

	if cfg.Database.Driver == config.DriverPostgres {
		store, err := postgres.Open(ctx, cfg.Database.Postgres.DSN(), storeLogger)
		if err != nil {
			logger.Error().Err(err).Str("host", cfg.Database.Postgres.Host).Msg("init postgres")
			return nil, nil, err
		}
		return store, nil, nil
	}

	db, err := database.NewDB(cfg.Database.Path, storeLogger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, nil, err
	}
	return db, db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = repository.Close(redisClient)
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initRateLimiter prefers redis and falls back to process memory while redis is down.
func initRateLimiter(ctx context.Context, wg *sync.WaitGroup, redisClient *redis.Client, logger *zerolog.Logger) domain.RateLimiter {
	memory := repository.NewMemoryRateLimiter()
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				memory.Sweep()
			}
		}
	}()

	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverRateLimiter(repository.NewRedisRateLimiter(redisClient), memory, logging.Component(logger, "rate-limit"))
}

func initTelegram(cfg *config.Config, logger *zerolog.Logger) *tgbotapi.BotAPI {
	if !cfg.Telegram.Enabled {
		return nil
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without bot and notifications")
		return nil
	}
	botAPI.Debug = cfg.Telegram.Debug
	logger.Info().Str("username", botAPI.Self.UserName).Msg("Authorized on account")
	return botAPI
}

func initEventBus(cfg *config.Config, users domain.UserDirectory, botAPI *tgbotapi.BotAPI, logger *zerolog.Logger) (*events.EventBus, *nats.Conn) {
	if !cfg.NATS.Enabled && botAPI == nil {
		return nil, nil
	}

	bus := events.NewEventBus()
	bus.OnError(func(event *events.Event, err error) {
		logger.Warn().Err(err).Str("event", event.Type).Msg("event handler failed")
	})

	var natsConn *nats.Conn
	if cfg.NATS.Enabled {
		conn, err := events.ConnectNATS(cfg.NATS.URL, cfg.App.Name)
		if err != nil {
			logger.Warn().Err(err).Msg("nats connection failed, continuing without event forwarding")
		} else {
			natsConn = conn
			events.NewNATSForwarder(conn, cfg.NATS.SubjectPrefix, logging.Component(logger, "nats")).Attach(bus)
			logger.Info().Str("url", cfg.NATS.URL).Msg("nats connected")
		}
	}

	if botAPI != nil {
		notify.NewNotifier(botAPI, users, logging.Component(logger, "notify")).Attach(bus)
	}

	return bus, natsConn
}

func initSheetsWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	cfg *config.Config,
	queue domain.SyncQueue,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) *worker.SheetsWorker {
	if !cfg.Google.Enabled {
		return nil
	}

	sheetsLogger := logging.Component(logger, "sheets")
	sheetsService, err := google.NewSheetsService(ctx, cfg.Google.GoogleCredentialsFile, cfg.Google.BookingSpreadSheetID, sheetsLogger)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets unreachable, tasks will be retried")
	}

	sheetsWorker := worker.NewSheetsWorker(queue, sheetsService, redisClient, worker.NewRetryPolicy(cfg.Google.Retry), sheetsLogger)

	wg.Add(2)
	go func() {
		defer wg.Done()
		sheetsService.StartCacheRefresh(ctx, models.SheetsCacheRefresh*time.Second)
	}()
	go func() {
		defer wg.Done()
		sheetsWorker.Start(ctx)
	}()

	logger.Info().Msg("google sheets connected")
	return sheetsWorker
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if cfg.API.GRPC.Enabled {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Str("grpc_addr", grpcServer.Addr()).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.Shutdown(shutdownCtx)
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
