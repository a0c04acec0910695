package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greenlanehq/greenlane/internal/cache"
	"github.com/greenlanehq/greenlane/internal/checkout"
	"github.com/greenlanehq/greenlane/internal/config"
	"github.com/greenlanehq/greenlane/internal/db"
	"github.com/greenlanehq/greenlane/internal/handlers"
	"github.com/greenlanehq/greenlane/internal/health"
	"github.com/greenlanehq/greenlane/internal/notify"
	"github.com/greenlanehq/greenlane/internal/queue"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *pgxpool.Pool
	CacheProvider cache.Provider
	Handlers      *handlers.Handlers
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	database, err := db.Connect(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
		MemorySize:            cfg.CacheMemorySize,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	orderStore := db.NewOrderStore(database)
	productStore := db.NewProductStore(database)
	auditStore := db.NewAuditStore(database)
	notificationStore := db.NewNotificationStore(database)
	ledger := db.NewPaymentEventStore(database)

	renderer, err := notify.NewRenderer()
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize notification renderer: %w", err)
	}

	var emailClient, smsClient *notify.Client
	if cfg.EmailEnabled() {
		emailClient = notify.NewClient(
			notify.NewEmailProvider(cfg.ResendAPIKey, cfg.EmailFrom),
			notify.ClientConfig{Name: "resend"},
			logger.With("component", "email_client"),
		)
	}
	if cfg.SMSEnabled() {
		smsClient = notify.NewClient(
			notify.NewSMSProvider(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber),
			notify.ClientConfig{Name: "twilio", RatePerSecond: 1, Burst: 2},
			logger.With("component", "sms_client"),
		)
	}

	notifier := queue.NewOrderNotifier(
		notificationStore,
		cfg.AdminEmail,
		cfg.EmailEnabled(),
		cfg.SMSEnabled(),
		logger.With("component", "order_notifier"),
	)

	processor := checkout.NewProcessor(
		orderStore,
		productStore,
		auditStore,
		notifier.OrderCreated,
		cfg.OrderNumberPrefix,
		logger.With("component", "order_processor"),
	)

	var emailSender, smsSender queue.Sender
	if emailClient != nil {
		emailSender = emailClient
	}
	if smsClient != nil {
		smsSender = smsClient
	}
	queueProcessor := queue.NewProcessor(
		notificationStore,
		orderStore,
		emailSender,
		smsSender,
		renderer,
		queue.Config{
			BatchSize:      cfg.QueueBatchSize,
			MaxConcurrency: cfg.QueueMaxConcurrency,
		},
		logger.With("component", "queue_processor"),
	)

	var providerProbe health.ProviderPinger
	switch {
	case emailClient != nil:
		providerProbe = emailClient
	case smsClient != nil:
		providerProbe = smsClient
	}
	prober := health.NewProber(database, providerProbe, notificationStore, orderStore)

	h, err := handlers.New(handlers.Dependencies{
		Config:        cfg,
		Processor:     processor,
		OrderStore:    orderStore,
		Ledger:        ledger,
		CacheProvider: cacheProvider,
		Notifier:      notifier,
		Queue:         queueProcessor,
		Prober:        prober,
		Logger:        logger,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		DB:            database,
		CacheProvider: cacheProvider,
		Handlers:      h,
	}, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	format := strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	case "text", "":
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level: cfg.LogLevel,
		}))
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: cfg.LogLevel}))
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
