package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
	"github.com/noah-isme/teacher-transfer-api/pkg/jobs"
	"github.com/noah-isme/teacher-transfer-api/pkg/mailer"
)

const defaultSendTimeout = 10 * time.Second

// NotificationJobType is the job type used for fan-out deliveries on the notification queue.
const NotificationJobType = "notification.fanout"

type deliveryLedger interface {
	Claim(ctx context.Context, eventID, email string) (bool, error)
	Release(ctx context.Context, eventID, email string) error
}

// NotificationDispatcher sends each planned message independently. One recipient's failure is
// recorded in the report and never stops the remaining recipients.
type NotificationDispatcher struct {
	gateway mailer.Sender
	ledger  deliveryLedger
	timeout time.Duration
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationDispatcher constructs a dispatcher. A nil ledger disables delivery dedupe.
func NewNotificationDispatcher(gateway mailer.Sender, ledger deliveryLedger, timeout time.Duration, metrics *MetricsService, logger *zap.Logger) *NotificationDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &NotificationDispatcher{gateway: gateway, ledger: ledger, timeout: timeout, metrics: metrics, logger: logger}
}

// Deliver dispatches every message of event in plan order.
func (d *NotificationDispatcher) Deliver(ctx context.Context, event *models.NotificationEvent) models.DeliveryReport {
	report := models.DeliveryReport{}
	if event == nil {
		return report
	}
	report.EventID = event.ID
	for _, msg := range event.Messages {
		result := d.deliverOne(ctx, event.ID, msg)
		switch result.Status {
		case models.DeliverySent:
			report.Sent++
		case models.DeliveryDuplicate:
			report.Skipped++
		default:
			report.Failed++
		}
		d.metrics.RecordDelivery(msg.Kind, result.Status)
		report.Results = append(report.Results, result)
	}
	return report
}

func (d *NotificationDispatcher) deliverOne(ctx context.Context, eventID string, msg models.PlannedMessage) models.DeliveryResult {
	result := models.DeliveryResult{Email: msg.Email}
	if d.gateway == nil {
		result.Status = models.DeliveryFailed
		result.Error = "notification gateway not configured"
		return result
	}

	claimed := false
	if d.ledger != nil {
		ok, err := d.ledger.Claim(ctx, eventID, msg.Email)
		switch {
		case err != nil:
			d.logger.Warn("delivery ledger claim failed; sending without dedupe",
				zap.String("event_id", eventID), zap.String("email", msg.Email), zap.Error(err))
		case !ok:
			result.Status = models.DeliveryDuplicate
			return result
		default:
			claimed = true
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	err := d.gateway.Send(sendCtx, mailer.Message{
		EventID: eventID,
		Kind:    string(msg.Kind),
		To:      msg.Email,
		Subject: msg.Subject,
		Body:    msg.Body,
	})
	cancel()
	if err == nil {
		result.Status = models.DeliverySent
		return result
	}

	result.Status = models.DeliveryFailed
	result.Error = err.Error()
	d.logger.Warn("notification delivery failed",
		zap.String("event_id", eventID),
		zap.String("kind", string(msg.Kind)),
		zap.String("email", msg.Email),
		zap.Error(err),
	)
	if claimed {
		if relErr := d.ledger.Release(context.WithoutCancel(ctx), eventID, msg.Email); relErr != nil {
			d.logger.Warn("delivery ledger release failed", zap.String("event_id", eventID), zap.String("email", msg.Email), zap.Error(relErr))
		}
	}
	return result
}

// HandleJob is the queue handler. Failed recipients make the job fail so the queue retries it;
// recipients already served are skipped on retry by the delivery ledger.
func (d *NotificationDispatcher) HandleJob(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(*models.NotificationEvent)
	if !ok || event == nil {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID)
	}
	report := d.Deliver(ctx, event)
	if report.Failed > 0 {
		return fmt.Errorf("event %s: %d of %d deliveries failed", event.ID, report.Failed, len(event.Messages))
	}
	return nil
}

type jobEnqueuer interface {
	TryEnqueue(job jobs.Job) error
}

// NotificationFanout hands plans to the worker queue and falls back to inline delivery when the
// queue is absent or saturated. It never reports failure to its caller.
type NotificationFanout struct {
	dispatcher *NotificationDispatcher
	queue      jobEnqueuer
	logger     *zap.Logger
}

// NewNotificationFanout constructs the fan-out. queue may be nil.
func NewNotificationFanout(dispatcher *NotificationDispatcher, queue jobEnqueuer, logger *zap.Logger) *NotificationFanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationFanout{dispatcher: dispatcher, queue: queue, logger: logger}
}

// Publish schedules event for delivery and reports whether it was queued.
func (f *NotificationFanout) Publish(ctx context.Context, event *models.NotificationEvent) bool {
	if f == nil || event == nil || len(event.Messages) == 0 {
		return false
	}
	if f.queue != nil {
		err := f.queue.TryEnqueue(jobs.Job{ID: event.ID, Type: NotificationJobType, Payload: event})
		if err == nil {
			return true
		}
		level := f.logger.Warn
		if !errors.Is(err, jobs.ErrQueueFull) {
			level = f.logger.Error
		}
		level("notification queue unavailable; delivering inline",
			zap.String("event_id", event.ID), zap.String("kind", string(event.Kind)), zap.Error(err))
	}
	if f.dispatcher == nil {
		return false
	}
	report := f.dispatcher.Deliver(context.WithoutCancel(ctx), event)
	if report.Failed > 0 {
		f.logger.Warn("notification fan-out finished with failures",
			zap.String("event_id", event.ID),
			zap.Int("sent", report.Sent),
			zap.Int("failed", report.Failed),
			zap.Int("skipped", report.Skipped),
		)
	}
	return false
}
