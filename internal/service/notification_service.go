package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fixdrop-app/fixdrop-api/internal/models"
	appErrors "github.com/fixdrop-app/fixdrop-api/pkg/errors"
	"github.com/fixdrop-app/fixdrop-api/pkg/jobs"
)

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, recipientID string) error
	Delete(ctx context.Context, id, recipientID string) error
}

type notificationMetrics interface {
	RecordNotificationEnqueued()
}

// NotificationService is the dispatcher: lifecycle transitions and hand-off
// events drop messages onto an in-process queue and move on; a worker pool
// drains the queue into the store. Delivery failures are logged and
// swallowed, never propagated back into the flow that triggered them.
type NotificationService struct {
	repo    notificationStore
	queue   *jobs.Queue
	metrics notificationMetrics
	logger  *zap.Logger
}

// NotificationQueueConfig sizes the delivery worker pool. A zero
// DeliveryTimeout defaults to 10 seconds so a stalled store cannot pin the
// workers and back the queue up into Notify callers.
type NotificationQueueConfig struct {
	Workers         int
	BufferSize      int
	DeliveryTimeout time.Duration
}

// NewNotificationService constructs the dispatcher and its delivery queue.
// The metrics recorder may be nil.
func NewNotificationService(repo notificationStore, cfg NotificationQueueConfig, metrics notificationMetrics, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 10 * time.Second
	}
	s := &NotificationService{repo: repo, metrics: metrics, logger: logger}
	s.queue = jobs.NewQueue("notifications", s.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: 0,
		JobTimeout: cfg.DeliveryTimeout,
		Logger:     logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the delivery workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Notify enqueues one notification. Best effort: a full queue or a stopped
// worker pool is logged and the event is dropped.
func (s *NotificationService) Notify(recipientID, title, body string, typ models.NotificationType, relatedID *string) {
	n := &models.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Title:       title,
		Body:        body,
		Type:        typ,
		RelatedID:   relatedID,
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      n.ID,
		Type:    string(typ),
		Payload: n,
	})
	if err != nil {
		s.logger.Warn("notification dropped",
			zap.String("recipient_id", recipientID),
			zap.String("type", string(typ)),
			zap.Error(err),
		)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordNotificationEnqueued()
	}
}

// deliver persists one queued notification.
func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(*models.Notification)
	if !ok {
		s.logger.Error("notification job with unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	if err := s.repo.Create(ctx, n); err != nil {
		s.logger.Warn("notification delivery failed",
			zap.String("recipient_id", n.RecipientID),
			zap.Error(err),
		)
	}
	// Errors are swallowed here so the queue never retries; the dispatcher
	// is strictly fire-and-forget.
	return nil
}

// List returns the caller's inbox.
func (s *NotificationService) List(ctx context.Context, actor *models.JWTClaims, limit, offset int) ([]models.Notification, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	notifications, err := s.repo.ListByRecipient(ctx, actor.UserID, limit, offset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}

// MarkRead flags one of the caller's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, id string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if err := s.repo.MarkRead(ctx, id, actor.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}

// Delete removes one of the caller's notifications.
func (s *NotificationService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if err := s.repo.Delete(ctx, id, actor.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete notification")
	}
	return nil
}
