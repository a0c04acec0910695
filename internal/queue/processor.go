package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/greenlanehq/greenlane/internal/logging"
	"github.com/greenlanehq/greenlane/internal/models"
	"github.com/greenlanehq/greenlane/internal/notify"
)

// ErrAlreadyRunning is returned when a poll cycle is still in flight.
// The guard is in-process only; running multiple processor instances
// needs a shared lease instead.
var ErrAlreadyRunning = errors.New("queue processor already running")

type JobStore interface {
	Due(ctx context.Context, limit int, staleAfter time.Duration) ([]*models.NotificationJob, error)
	MarkProcessing(ctx context.Context, jobID uuid.UUID) (int, error)
	MarkSent(ctx context.Context, jobID uuid.UUID) error
	Reschedule(ctx context.Context, jobID uuid.UUID, at time.Time, lastError string) error
	MarkFailed(ctx context.Context, jobID uuid.UUID, lastError string) error
	FailExhausted(ctx context.Context, staleBefore time.Time) (int64, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type OrderLookup interface {
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

type Sender interface {
	Send(ctx context.Context, msg *notify.Message) (*notify.SendResult, error)
}

type Config struct {
	BatchSize      int
	MaxConcurrency int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	StaleAfter     time.Duration
	Retention      time.Duration
}

const (
	defaultBatchSize      = 10
	defaultMaxConcurrency = 3
	defaultBackoffBase    = 30 * time.Second
	defaultBackoffCap     = 30 * time.Minute
	defaultStaleAfter     = 10 * time.Minute
	defaultRetention      = 30 * 24 * time.Hour
)

// Processor drains due notification jobs. Each invocation is one poll
// cycle, triggered externally; there is no in-process scheduler.
type Processor struct {
	jobs     JobStore
	orders   OrderLookup
	email    Sender
	sms      Sender
	renderer *notify.Renderer
	cfg      Config
	logger   *slog.Logger
	mu       sync.Mutex
	now      func() time.Time
	jitter   func(time.Duration) time.Duration
}

type Result struct {
	Processed  int `json:"processed"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

func NewProcessor(jobs JobStore, orders OrderLookup, email, sms Sender, renderer *notify.Renderer, cfg Config, logger *slog.Logger) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = defaultBackoffCap
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}

	return &Processor{
		jobs:     jobs,
		orders:   orders,
		email:    email,
		sms:      sms,
		renderer: renderer,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		jitter: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(max)))
		},
	}
}

// ProcessDue runs one poll cycle: claim due jobs and dispatch them
// with bounded concurrency. Only one cycle runs at a time per process.
func (p *Processor) ProcessDue(ctx context.Context) (*Result, error) {
	if !p.mu.TryLock() {
		return nil, ErrAlreadyRunning
	}
	defer p.mu.Unlock()

	logger := logging.FromContext(ctx, p.logger)

	due, err := p.jobs.Due(ctx, p.cfg.BatchSize, p.cfg.StaleAfter)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch due jobs: %w", err)
	}
	if len(due) == 0 {
		return &Result{}, nil
	}

	var processed, successful, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(p.cfg.MaxConcurrency)
	for _, job := range due {
		g.Go(func() error {
			processed.Add(1)
			if p.processJob(ctx, job) {
				successful.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{
		Processed:  int(processed.Load()),
		Successful: int(successful.Load()),
		Failed:     int(failed.Load()),
	}
	logger.Info("queue cycle complete",
		"processed", result.Processed, "successful", result.Successful, "failed", result.Failed)
	return result, nil
}

func (p *Processor) processJob(ctx context.Context, job *models.NotificationJob) bool {
	logger := logging.FromContext(ctx, p.logger).With("job_id", job.ID, "kind", job.Kind, "channel", job.Channel)

	attempts, err := p.jobs.MarkProcessing(ctx, job.ID)
	if err != nil {
		// Terminal or concurrently claimed; nothing to do.
		logger.Debug("job not claimable", "error", err)
		return false
	}

	msg, err := p.buildMessage(ctx, job)
	if err == nil {
		var sendErr error
		switch job.Channel {
		case models.ChannelEmail:
			sendErr = p.send(ctx, p.email, msg)
		case models.ChannelSMS:
			sendErr = p.send(ctx, p.sms, msg)
		default:
			sendErr = notify.Permanent(fmt.Errorf("unknown channel %q", job.Channel))
		}
		err = sendErr
	}

	if err == nil {
		if markErr := p.jobs.MarkSent(ctx, job.ID); markErr != nil {
			logger.Error("failed to mark job sent", "error", markErr)
		}
		return true
	}

	// Non-retryable failures and exhausted attempts are terminal.
	if notify.IsPermanent(err) || attempts >= job.MaxAttempts {
		if markErr := p.jobs.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
			logger.Error("failed to mark job failed", "error", markErr)
		}
		if job.Priority == models.PriorityHigh {
			logger.Error("CRITICAL: high-priority notification permanently failed",
				"error", err, "recipient", job.Recipient, "order_id", job.OrderID, "attempts", attempts)
		} else {
			logger.Warn("notification permanently failed", "error", err, "attempts", attempts)
		}
		return false
	}

	delay := p.backoffDelay(attempts)
	nextRun := p.now().Add(delay)
	if markErr := p.jobs.Reschedule(ctx, job.ID, nextRun, err.Error()); markErr != nil {
		logger.Error("failed to reschedule job", "error", markErr)
	}
	logger.Warn("notification failed, rescheduled", "error", err, "attempts", attempts, "next_run", nextRun)
	return false
}

func (p *Processor) send(ctx context.Context, sender Sender, msg *notify.Message) error {
	if sender == nil {
		return notify.Permanent(fmt.Errorf("no sender configured for channel %s", msg.Channel))
	}
	_, err := sender.Send(ctx, msg)
	return err
}

func (p *Processor) buildMessage(ctx context.Context, job *models.NotificationJob) (*notify.Message, error) {
	order, err := p.orders.GetByID(ctx, job.OrderID)
	if err != nil {
		// The order may have been rolled back since the job was
		// enqueued; treat a missing order as permanent.
		return nil, notify.Permanent(fmt.Errorf("failed to load order %s: %w", job.OrderID, err))
	}

	info := notify.BuildOrderInfo(order)
	info.UpdateType = job.UpdateType
	info.UpdateMessage = job.UpdateMessage

	subject, body, err := p.renderer.Render(job.Kind, info)
	if err != nil {
		return nil, notify.Permanent(err)
	}

	return &notify.Message{
		Channel: job.Channel,
		To:      job.Recipient,
		Subject: subject,
		Body:    body,
	}, nil
}

// backoffDelay computes min(base * 2^(attempts-1), cap) plus up to 10%
// jitter. attempts is the just-recorded attempt count, so the first
// failure waits roughly one base interval.
func (p *Processor) backoffDelay(attempts int) time.Duration {
	delay := p.cfg.BackoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= p.cfg.BackoffCap {
			delay = p.cfg.BackoffCap
			break
		}
	}
	return delay + p.jitter(delay/10)
}

// Cleanup finalizes jobs abandoned on their last attempt, then deletes
// terminal jobs past the retention window. A worker crash between
// claiming a final attempt and recording its outcome leaves the job in
// processing with no attempts left; the sweep fails it so retention can
// reclaim it.
func (p *Processor) Cleanup(ctx context.Context) (int64, error) {
	logger := logging.FromContext(ctx, p.logger)

	staleCutoff := p.now().Add(-p.cfg.StaleAfter)
	abandoned, err := p.jobs.FailExhausted(ctx, staleCutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep abandoned notification jobs: %w", err)
	}
	if abandoned > 0 {
		logger.Warn("failed abandoned notification jobs", "count", abandoned, "stale_cutoff", staleCutoff)
	}

	cutoff := p.now().Add(-p.cfg.Retention)
	deleted, err := p.jobs.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up notification jobs: %w", err)
	}
	if deleted > 0 {
		logger.Info("cleaned up terminal notification jobs", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}
