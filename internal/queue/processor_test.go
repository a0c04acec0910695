package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/greenlanehq/greenlane/internal/models"
	"github.com/greenlanehq/greenlane/internal/notify"
)

type fakeJobStore struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*models.NotificationJob
	deleted  int64
	claimErr error
}

func newFakeJobStore(jobs ...*models.NotificationJob) *fakeJobStore {
	s := &fakeJobStore{jobs: make(map[uuid.UUID]*models.NotificationJob)}
	for _, job := range jobs {
		if job.ID == uuid.Nil {
			job.ID = uuid.New()
		}
		if job.Status == "" {
			job.Status = models.NotificationPending
		}
		if job.MaxAttempts == 0 {
			job.MaxAttempts = 5
		}
		s.jobs[job.ID] = job
	}
	return s
}

func (s *fakeJobStore) Due(_ context.Context, limit int, _ time.Duration) ([]*models.NotificationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*models.NotificationJob
	for _, job := range s.jobs {
		if job.Status == models.NotificationPending && job.Attempts < job.MaxAttempts && len(due) < limit {
			due = append(due, job)
		}
	}
	return due, nil
}

func (s *fakeJobStore) MarkProcessing(_ context.Context, jobID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return 0, s.claimErr
	}
	job, ok := s.jobs[jobID]
	if !ok || job.Terminal() {
		return 0, errors.New("job not claimable")
	}
	job.Status = models.NotificationProcessing
	job.Attempts++
	return job.Attempts, nil
}

func (s *fakeJobStore) MarkSent(_ context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[jobID].Status = models.NotificationSent
	return nil
}

func (s *fakeJobStore) Reschedule(_ context.Context, jobID uuid.UUID, at time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[jobID]
	job.Status = models.NotificationPending
	job.ScheduledAt = at
	job.LastError = lastError
	return nil
}

func (s *fakeJobStore) MarkFailed(_ context.Context, jobID uuid.UUID, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[jobID]
	job.Status = models.NotificationFailed
	job.LastError = lastError
	return nil
}

func (s *fakeJobStore) FailExhausted(_ context.Context, staleBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var swept int64
	for _, job := range s.jobs {
		if job.Status != models.NotificationProcessing || job.Attempts < job.MaxAttempts {
			continue
		}
		if job.LastAttemptAt == nil || !job.LastAttemptAt.Before(staleBefore) {
			continue
		}
		job.Status = models.NotificationFailed
		job.LastError = "abandoned mid-attempt"
		swept++
	}
	return swept, nil
}

func (s *fakeJobStore) DeleteTerminalBefore(_ context.Context, _ time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleted, nil
}

func (s *fakeJobStore) get(jobID uuid.UUID) models.NotificationJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[jobID]
}

type fakeOrderLookup struct {
	orders map[uuid.UUID]*models.Order
}

func (l *fakeOrderLookup) GetByID(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	if order, ok := l.orders[orderID]; ok {
		return order, nil
	}
	return nil, errors.New("order not found")
}

type fakeSender struct {
	mu   sync.Mutex
	sent []*notify.Message
	err  error
}

func (s *fakeSender) Send(_ context.Context, msg *notify.Message) (*notify.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	if s.err != nil {
		return nil, s.err
	}
	return &notify.SendResult{ProviderMessageID: "msg_1"}, nil
}

func (s *fakeSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOrder() *models.Order {
	return &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "GL-260828-A1B2",
		CustomerName:  "Dana Smith",
		CustomerEmail: "dana@example.com",
		Delivery: models.DeliveryAddress{
			Street: "123 Main St", City: "Denver", State: "CO", Zipcode: "80202",
		},
		Total:         53.71,
		PaymentMethod: models.PaymentMethodCash,
		Items: []models.OrderItem{
			{Name: "Blue Dream", UnitPrice: 25.00, Quantity: 1},
		},
		CreatedAt: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
	}
}

func newTestProcessor(t *testing.T, jobs *fakeJobStore, orders *fakeOrderLookup, email, sms Sender, cfg Config) *Processor {
	t.Helper()
	renderer, err := notify.NewRenderer()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := NewProcessor(jobs, orders, email, sms, renderer, cfg, quietLogger())
	p.jitter = func(time.Duration) time.Duration { return 0 }
	return p
}

func TestProcessDue_SendsDueJobs(t *testing.T) {
	t.Parallel()

	order := testOrder()
	job := &models.NotificationJob{
		Channel:   models.ChannelEmail,
		Kind:      models.KindOrderConfirmation,
		Recipient: order.CustomerEmail,
		OrderID:   order.ID,
		Priority:  models.PriorityHigh,
	}
	jobs := newFakeJobStore(job)
	email := &fakeSender{}

	p := newTestProcessor(t, jobs, &fakeOrderLookup{orders: map[uuid.UUID]*models.Order{order.ID: order}}, email, nil, Config{})
	result, err := p.ProcessDue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Processed != 1 || result.Successful != 1 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got := jobs.get(job.ID); got.Status != models.NotificationSent {
		t.Errorf("job status = %s, want sent", got.Status)
	}
	if email.sentCount() != 1 {
		t.Fatalf("sender called %d times, want 1", email.sentCount())
	}
	msg := email.sent[0]
	if msg.To != "dana@example.com" {
		t.Errorf("recipient = %q", msg.To)
	}
	if !strings.Contains(msg.Subject, order.OrderNumber) {
		t.Errorf("subject %q missing order number", msg.Subject)
	}
}

func TestProcessDue_EmptyQueue(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(t, newFakeJobStore(), &fakeOrderLookup{}, &fakeSender{}, nil, Config{})
	result, err := p.ProcessDue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Processed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestProcessDue_ReschedulesTransientFailure(t *testing.T) {
	t.Parallel()

	order := testOrder()
	job := &models.NotificationJob{
		Channel:   models.ChannelEmail,
		Kind:      models.KindOrderConfirmation,
		Recipient: order.CustomerEmail,
		OrderID:   order.ID,
	}
	jobs := newFakeJobStore(job)
	email := &fakeSender{err: errors.New("gateway timeout")}

	p := newTestProcessor(t, jobs, &fakeOrderLookup{orders: map[uuid.UUID]*models.Order{order.ID: order}}, email, nil, Config{BackoffBase: 30 * time.Second})
	fixed := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	result, err := p.ProcessDue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	got := jobs.get(job.ID)
	if got.Status != models.NotificationPending {
		t.Errorf("job status = %s, want pending", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}
	if !got.ScheduledAt.Equal(fixed.Add(30 * time.Second)) {
		t.Errorf("rescheduled at %v, want %v", got.ScheduledAt, fixed.Add(30*time.Second))
	}
	if got.LastError == "" {
		t.Error("last error not recorded")
	}
}

func TestProcessDue_PermanentFailureMarksFailed(t *testing.T) {
	t.Parallel()

	order := testOrder()
	job := &models.NotificationJob{
		Channel:   models.ChannelEmail,
		Kind:      models.KindOrderConfirmation,
		Recipient: order.CustomerEmail,
		OrderID:   order.ID,
	}
	jobs := newFakeJobStore(job)
	email := &fakeSender{err: notify.Permanent(errors.New("invalid recipient"))}

	p := newTestProcessor(t, jobs, &fakeOrderLookup{orders: map[uuid.UUID]*models.Order{order.ID: order}}, email, nil, Config{})
	if _, err := p.ProcessDue(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := jobs.get(job.ID)
	if got.Status != models.NotificationFailed {
		t.Errorf("job status = %s, want failed", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}
}

func TestProcessDue_ExhaustedAttemptsMarkFailed(t *testing.T) {
	t.Parallel()

	order := testOrder()
	job := &models.NotificationJob{
		Channel:     models.ChannelEmail,
		Kind:        models.KindOrderConfirmation,
		Recipient:   order.CustomerEmail,
		OrderID:     order.ID,
		Attempts:    4,
		MaxAttempts: 5,
	}
	jobs := newFakeJobStore(job)
	email := &fakeSender{err: errors.New("gateway timeout")}

	p := newTestProcessor(t, jobs, &fakeOrderLookup{orders: map[uuid.UUID]*models.Order{order.ID: order}}, email, nil, Config{})
	if _, err := p.ProcessDue(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := jobs.get(job.ID)
	if got.Status != models.NotificationFailed {
		t.Errorf("job status = %s, want failed after final attempt", got.Status)
	}
	if got.Attempts != 5 {
		t.Errorf("attempts = %d, want 5", got.Attempts)
	}
}

func TestProcessDue_MissingOrderIsPermanent(t *testing.T) {
	t.Parallel()

	job := &models.NotificationJob{
		Channel:   models.ChannelEmail,
		Kind:      models.KindOrderConfirmation,
		Recipient: "dana@example.com",
		OrderID:   uuid.New(),
	}
	jobs := newFakeJobStore(job)
	email := &fakeSender{}

	p := newTestProcessor(t, jobs, &fakeOrderLookup{}, email, nil, Config{})
	if _, err := p.ProcessDue(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := jobs.get(job.ID); got.Status != models.NotificationFailed {
		t.Errorf("job status = %s, want failed", got.Status)
	}
	if email.sentCount() != 0 {
		t.Error("sender should not run for a missing order")
	}
}

func TestProcessDue_NoSenderConfigured(t *testing.T) {
	t.Parallel()

	order := testOrder()
	job := &models.NotificationJob{
		Channel:   models.ChannelSMS,
		Kind:      models.KindOrderConfirmation,
		Recipient: "15551234567",
		OrderID:   order.ID,
	}
	jobs := newFakeJobStore(job)

	p := newTestProcessor(t, jobs, &fakeOrderLookup{orders: map[uuid.UUID]*models.Order{order.ID: order}}, &fakeSender{}, nil, Config{})
	if _, err := p.ProcessDue(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := jobs.get(job.ID); got.Status != models.NotificationFailed {
		t.Errorf("job status = %s, want failed when channel has no sender", got.Status)
	}
}

func TestProcessDue_UnclaimableJobSkipped(t *testing.T) {
	t.Parallel()

	order := testOrder()
	job := &models.NotificationJob{
		Channel:   models.ChannelEmail,
		Kind:      models.KindOrderConfirmation,
		Recipient: order.CustomerEmail,
		OrderID:   order.ID,
	}
	jobs := newFakeJobStore(job)
	jobs.claimErr = errors.New("claimed elsewhere")
	email := &fakeSender{}

	p := newTestProcessor(t, jobs, &fakeOrderLookup{orders: map[uuid.UUID]*models.Order{order.ID: order}}, email, nil, Config{})
	if _, err := p.ProcessDue(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if email.sentCount() != 0 {
		t.Error("sender should not run for an unclaimable job")
	}
}

func TestProcessDue_AlreadyRunning(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(t, newFakeJobStore(), &fakeOrderLookup{}, &fakeSender{}, nil, Config{})
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.ProcessDue(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(t, newFakeJobStore(), &fakeOrderLookup{}, &fakeSender{}, nil, Config{
		BackoffBase: 30 * time.Second,
		BackoffCap:  30 * time.Minute,
	})

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{attempts: 1, want: 30 * time.Second},
		{attempts: 2, want: time.Minute},
		{attempts: 3, want: 2 * time.Minute},
		{attempts: 7, want: 30 * time.Minute},  // capped
		{attempts: 20, want: 30 * time.Minute}, // stays capped
	}

	var prev time.Duration
	for _, tt := range tests {
		got := p.backoffDelay(tt.attempts)
		if got != tt.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
		if got < prev {
			t.Errorf("backoffDelay(%d) = %v decreased below %v", tt.attempts, got, prev)
		}
		prev = got
	}
}

func TestCleanup(t *testing.T) {
	t.Parallel()

	jobs := newFakeJobStore()
	jobs.deleted = 7

	p := newTestProcessor(t, jobs, &fakeOrderLookup{}, &fakeSender{}, nil, Config{})
	deleted, err := p.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 7 {
		t.Errorf("deleted = %d, want 7", deleted)
	}
}

func TestCleanup_FailsAbandonedFinalAttempt(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	staleAttempt := now.Add(-time.Hour)
	freshAttempt := now.Add(-time.Minute)

	abandoned := &models.NotificationJob{
		Channel:       models.ChannelEmail,
		Kind:          models.KindOrderConfirmation,
		Recipient:     "dana@example.com",
		OrderID:       uuid.New(),
		Status:        models.NotificationProcessing,
		Attempts:      5,
		MaxAttempts:   5,
		LastAttemptAt: &staleAttempt,
	}
	inFlight := &models.NotificationJob{
		Channel:       models.ChannelEmail,
		Kind:          models.KindOrderConfirmation,
		Recipient:     "dana@example.com",
		OrderID:       uuid.New(),
		Status:        models.NotificationProcessing,
		Attempts:      5,
		MaxAttempts:   5,
		LastAttemptAt: &freshAttempt,
	}
	jobs := newFakeJobStore(abandoned, inFlight)

	p := newTestProcessor(t, jobs, &fakeOrderLookup{}, &fakeSender{}, nil, Config{StaleAfter: 10 * time.Minute})
	p.now = func() time.Time { return now }

	if _, err := p.Cleanup(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := jobs.get(abandoned.ID); got.Status != models.NotificationFailed {
		t.Errorf("abandoned job status = %s, want failed", got.Status)
	}
	if got := jobs.get(inFlight.ID); got.Status != models.NotificationProcessing {
		t.Errorf("in-flight job status = %s, want processing", got.Status)
	}
}
