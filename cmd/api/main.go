package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"foodtruck/internal/api"
	"foodtruck/internal/config"
	"foodtruck/internal/database"
	"foodtruck/internal/events"
	"foodtruck/internal/export"
	"foodtruck/internal/google"
	"foodtruck/internal/ledger"
	"foodtruck/internal/logging"
	"foodtruck/internal/metrics"
	"foodtruck/internal/models"
	"foodtruck/internal/repository"
	"foodtruck/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
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

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ledgerCore, err := ledger.New(db, cfg.Owner.Address, transferLogger(&logger), &logger)
	if err != nil {
		logger.Error().Err(err).Msg("init ledger")
		return err
	}

	if err := seedMenu(cfg, ledgerCore, &logger); err != nil {
		return err
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	menuCache := initMenuCache(redisClient, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	journal := initOrderJournal(ctx, cfg, db, redisClient, &logger)

	exporter := export.NewExporter(&logger)

	bus := initEventBus(&logger)

	httpServer := api.NewHTTPServer(&cfg.API, ledgerCore, menuCache, journal, exporter, bus, &logger)

	backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
	go backupService.Start(ctx)

	startMetrics(ctx, cfg, ledgerCore, &logger)

	return startServer(ctx, httpServer, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// initEventBus подписывает аудит-лог на доменные события: каждый заказ,
// выдача и выплата попадают в журнал независимо от HTTP-логов.
func initEventBus(logger *zerolog.Logger) *events.EventBus {
	bus := events.NewEventBus()
	auditLogger := logger.With().Str("component", "audit").Logger()

	for _, eventType := range []string{
		events.EventOrderPlaced,
		events.EventOrderFulfilled,
		events.EventPayoutRecorded,
		events.EventMenuChanged,
	} {
		bus.Subscribe(eventType, func(event *events.Event) error {
			auditLogger.Info().
				Str("event", event.Type).
				RawJSON("payload", event.Payload).
				Time("at", event.CreatedAt).
				Msg("domain event")
			return nil
		})
	}

	return bus
}

// transferLogger — хук выплат. Здесь нет реального расчётного контура, поэтому
// выплата фиксируется в журнале; казна при этом обнуляется атомарно в ledger.
func transferLogger(logger *zerolog.Logger) ledger.TransferFunc {
	return func(ctx context.Context, recipient string, amount int64) error {
		logger.Info().Str("recipient", recipient).Int64("amount", amount).Msg("payout transfer")
		return nil
	}
}

// seedMenu наполняет пустой каталог: сначала из config.SeedMenu, затем из
// отдельного файла меню, если он задан.
func seedMenu(cfg *config.Config, l *ledger.Ledger, logger *zerolog.Logger) error {
	seed := cfg.SeedMenu
	if len(seed) == 0 {
		fileSeed, err := loadMenuFile(logger)
		if err != nil {
			return err
		}
		seed = fileSeed
	}
	if len(seed) == 0 {
		return nil
	}

	items := make([]models.MenuItem, 0, len(seed))
	for _, s := range seed {
		items = append(items, models.MenuItem{
			Name:        s.Name,
			Price:       s.Price,
			Inventory:   s.Inventory,
			ItemType:    s.ItemType,
			IsAvailable: true,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := l.SeedMenu(ctx, items); err != nil {
		logger.Error().Err(err).Msg("seed menu")
		return err
	}
	return nil
}

func loadMenuFile(logger *zerolog.Logger) ([]config.MenuSeedItem, error) {
	menuPath := os.Getenv("MENU_PATH")
	if menuPath == "" {
		menuPath = "configs/menu.yaml"
	}
	menuData, err := os.ReadFile(menuPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		logger.Error().Err(err).Str("menu_path", menuPath).Msg("read menu")
		return nil, err
	}

	var menuConfig struct {
		Items []config.MenuSeedItem `yaml:"items"`
	}
	if err := yaml.Unmarshal(menuData, &menuConfig); err != nil {
		logger.Error().Err(err).Str("menu_path", menuPath).Msg("parse menu")
		return nil, err
	}

	if err := config.ValidateSeedMenu(menuConfig.Items); err != nil {
		logger.Error().Err(err).Str("menu_path", menuPath).Msg("invalid menu")
		return nil, err
	}

	return menuConfig.Items, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)

	if err := repository.Ping(context.Background(), redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initMenuCache(redisClient *redis.Client, logger *zerolog.Logger) repository.MenuCache {
	ttl := time.Duration(models.MenuCacheTTL) * time.Second
	memory := repository.NewMemoryMenuCache(ttl)
	if redisClient == nil {
		return memory
	}
	primary := repository.NewRedisMenuCache(redisClient, ttl)
	return repository.NewFailoverMenuCache(primary, memory, logger)
}

func initOrderJournal(ctx context.Context, cfg *config.Config, db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) api.OrderJournal {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.OrdersSpreadSheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(
		cfg.Google.GoogleCredentialsFile,
		cfg.Google.OrdersSpreadSheetID,
	)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	logger.Info().Msg("google sheets connected")

	sheetsWorker := worker.NewSheetsWorker(db, sheetsService, redisClient, worker.RetryPolicy{}, logger)

	// Сверяем журнал с базой: на старте лист перезаписывается целиком.
	if err := sheetsWorker.EnqueueJournalRebuild(ctx); err != nil {
		logger.Warn().Err(err).Msg("enqueue journal rebuild")
	}

	go sheetsWorker.Start(ctx)
	return sheetsWorker
}

func startMetrics(ctx context.Context, cfg *config.Config, l *ledger.Ledger, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	metrics.SetTreasuryBalance(l.Balance())

	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, logger *zerolog.Logger) error {
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Msg("ledger API started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("ledger API stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
