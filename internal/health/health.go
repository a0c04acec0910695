// Package health aggregates point-in-time service probes.
package health

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/greenlanehq/greenlane/internal/models"
)

// maxQueueBacklog is the pending-job count past which the queue probe
// reports unhealthy.
const maxQueueBacklog = 500

type Check struct {
	Service    string  `json:"service"`
	Status     string  `json:"status"`
	Message    string  `json:"message,omitempty"`
	DurationMS float64 `json:"duration"`
}

type Metrics struct {
	OrdersToday          int `json:"ordersToday"`
	PendingNotifications int `json:"pendingEmails"`
	FailedNotifications  int `json:"failedEmails"`
}

type Report struct {
	Healthy    bool      `json:"healthy"`
	Timestamp  time.Time `json:"timestamp"`
	Checks     []Check   `json:"checks"`
	Metrics    Metrics   `json:"metrics"`
	DurationMS float64   `json:"duration"`
}

type StorePinger interface {
	Ping(ctx context.Context) error
}

type ProviderPinger interface {
	Healthy(ctx context.Context) error
}

type JobCounter interface {
	CountByStatus(ctx context.Context, status models.NotificationStatus) (int, error)
}

type OrderCounter interface {
	CountCreatedSince(ctx context.Context, since time.Time) (int, error)
}

// Prober runs the store, provider and queue probes. A failing probe
// reports unhealthy; it never aborts the others.
type Prober struct {
	store    StorePinger
	provider ProviderPinger
	jobs     JobCounter
	orders   OrderCounter
	now      func() time.Time
}

func NewProber(store StorePinger, provider ProviderPinger, jobs JobCounter, orders OrderCounter) *Prober {
	return &Prober{
		store:    store,
		provider: provider,
		jobs:     jobs,
		orders:   orders,
		now:      time.Now,
	}
}

func (p *Prober) Run(ctx context.Context) *Report {
	start := p.now()
	report := &Report{
		Timestamp: start,
		Checks:    make([]Check, 3),
	}

	var g errgroup.Group
	g.Go(func() error {
		report.Checks[0] = p.runCheck(ctx, "database", p.checkStore)
		return nil
	})
	g.Go(func() error {
		report.Checks[1] = p.runCheck(ctx, "notification_provider", p.checkProvider)
		return nil
	})
	g.Go(func() error {
		report.Checks[2] = p.runCheck(ctx, "notification_queue", p.checkQueue)
		return nil
	})
	g.Go(func() error {
		report.Metrics = p.collectMetrics(ctx)
		return nil
	})
	_ = g.Wait()

	report.Healthy = true
	for _, check := range report.Checks {
		if check.Status != "healthy" {
			report.Healthy = false
			break
		}
	}
	report.DurationMS = float64(time.Since(start).Milliseconds())
	return report
}

// runCheck wraps one probe so its error becomes a report entry rather
// than propagating.
func (p *Prober) runCheck(ctx context.Context, service string, probe func(context.Context) error) Check {
	start := time.Now()
	check := Check{Service: service, Status: "healthy"}
	if err := probe(ctx); err != nil {
		check.Status = "unhealthy"
		check.Message = err.Error()
	}
	check.DurationMS = float64(time.Since(start).Milliseconds())
	return check
}

func (p *Prober) checkStore(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store not configured")
	}
	return p.store.Ping(ctx)
}

func (p *Prober) checkProvider(ctx context.Context) error {
	if p.provider == nil {
		return fmt.Errorf("notification provider not configured")
	}
	return p.provider.Healthy(ctx)
}

func (p *Prober) checkQueue(ctx context.Context) error {
	if p.jobs == nil {
		return fmt.Errorf("notification store not configured")
	}
	pending, err := p.jobs.CountByStatus(ctx, models.NotificationPending)
	if err != nil {
		return fmt.Errorf("failed to read queue depth: %w", err)
	}
	if pending > maxQueueBacklog {
		return fmt.Errorf("queue backlog too deep: %d pending jobs", pending)
	}
	return nil
}

func (p *Prober) collectMetrics(ctx context.Context) Metrics {
	var metrics Metrics
	if p.orders != nil {
		// Midnight in the process's local zone, so "today" matches what
		// operators see. Truncate would pin this to UTC.
		now := p.now()
		year, month, day := now.Date()
		midnight := time.Date(year, month, day, 0, 0, 0, 0, now.Location())
		if count, err := p.orders.CountCreatedSince(ctx, midnight); err == nil {
			metrics.OrdersToday = count
		}
	}
	if p.jobs != nil {
		if count, err := p.jobs.CountByStatus(ctx, models.NotificationPending); err == nil {
			metrics.PendingNotifications = count
		}
		if count, err := p.jobs.CountByStatus(ctx, models.NotificationFailed); err == nil {
			metrics.FailedNotifications = count
		}
	}
	return metrics
}
