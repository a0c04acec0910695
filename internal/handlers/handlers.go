package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/greenlanehq/greenlane/internal/cache"
	"github.com/greenlanehq/greenlane/internal/checkout"
	"github.com/greenlanehq/greenlane/internal/config"
	"github.com/greenlanehq/greenlane/internal/health"
	"github.com/greenlanehq/greenlane/internal/logging"
	"github.com/greenlanehq/greenlane/internal/models"
	"github.com/greenlanehq/greenlane/internal/queue"
)

const maxRequestBodyBytes = 1 << 20 // 1 MB

type orderProcessor interface {
	Process(ctx context.Context, req *checkout.OrderRequest) (*models.Order, error)
}

type orderUpdater interface {
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID) error
	MarkPaymentFailed(ctx context.Context, orderID uuid.UUID) error
	UpdateStatus(ctx context.Context, orderID uuid.UUID, to models.OrderStatus, from ...models.OrderStatus) error
}

type paymentLedger interface {
	Record(ctx context.Context, provider, eventID string) (bool, error)
}

type orderNotifier interface {
	PaymentConfirmed(ctx context.Context, order *models.Order) error
	StatusChanged(ctx context.Context, order *models.Order, updateType, message string) error
}

type queueRunner interface {
	ProcessDue(ctx context.Context) (*queue.Result, error)
	Cleanup(ctx context.Context) (int64, error)
}

type healthProber interface {
	Run(ctx context.Context) *health.Report
}

// Handlers provides the HTTP surface of the order pipeline.
type Handlers struct {
	config        *config.Config
	processor     orderProcessor
	orderStore    orderUpdater
	ledger        paymentLedger
	cacheProvider cache.Provider
	notifier      orderNotifier
	queue         queueRunner
	prober        healthProber
	logger        *slog.Logger
}

type Dependencies struct {
	Config        *config.Config
	Processor     orderProcessor
	OrderStore    orderUpdater
	Ledger        paymentLedger
	CacheProvider cache.Provider
	Notifier      orderNotifier
	Queue         queueRunner
	Prober        healthProber
	Logger        *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.Processor == nil {
		return nil, fmt.Errorf("handlers dependencies: processor is required")
	}
	if deps.OrderStore == nil {
		return nil, fmt.Errorf("handlers dependencies: orderStore is required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("handlers dependencies: ledger is required")
	}
	if deps.CacheProvider == nil {
		return nil, fmt.Errorf("handlers dependencies: cacheProvider is required")
	}
	if deps.Notifier == nil {
		return nil, fmt.Errorf("handlers dependencies: notifier is required")
	}
	if deps.Queue == nil {
		return nil, fmt.Errorf("handlers dependencies: queue is required")
	}
	if deps.Prober == nil {
		return nil, fmt.Errorf("handlers dependencies: prober is required")
	}

	return &Handlers{
		config:        deps.Config,
		processor:     deps.Processor,
		orderStore:    deps.OrderStore,
		ledger:        deps.Ledger,
		cacheProvider: deps.CacheProvider,
		notifier:      deps.Notifier,
		queue:         deps.Queue,
		prober:        deps.Prober,
		logger:        logger,
	}, nil
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
