package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
	"github.com/noah-isme/teacher-transfer-api/pkg/config"
	"github.com/noah-isme/teacher-transfer-api/pkg/ledger"
)

type reconcilerOutbox interface {
	ListPending(ctx context.Context, limit int) ([]models.LedgerOutboxEntry, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, cause string, abandon bool) error
}

// LedgerReconciler replays parked ledger commands oldest first. A failure for one teacher defers
// that teacher's later commands to the next run so the ledger sees them in order.
type LedgerReconciler struct {
	outbox      reconcilerOutbox
	mirror      LedgerMirror
	schedule    string
	batchSize   int
	maxAttempts int
	runTimeout  time.Duration
	callTimeout time.Duration
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// NewLedgerReconciler constructs the reconciler.
func NewLedgerReconciler(outbox reconcilerOutbox, mirror LedgerMirror, cfg config.ReconcilerConfig, callTimeout time.Duration, metrics *MetricsService, logger *zap.Logger) *LedgerReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "*/5 * * * *"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = time.Minute
	}
	if callTimeout <= 0 {
		callTimeout = defaultMirrorTimeout
	}
	return &LedgerReconciler{
		outbox:      outbox,
		mirror:      mirror,
		schedule:    cfg.Schedule,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		runTimeout:  cfg.RunTimeout,
		callTimeout: callTimeout,
		metrics:     metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Start registers the replay job and starts the scheduler. Overlapping runs are skipped.
func (r *LedgerReconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return nil
	}
	logger := cronLogger{r.logger.Sugar()}
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	_, err := c.AddFunc(r.schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, r.runTimeout)
		defer cancel()
		if _, err := r.RunOnce(runCtx); err != nil {
			r.logger.Error("ledger reconciliation failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule ledger reconciler %q: %w", r.schedule, err)
	}
	c.Start()
	r.cron = c
	r.logger.Info("ledger reconciler started", zap.String("schedule", r.schedule), zap.Int("batch_size", r.batchSize))
	return nil
}

// Stop halts the scheduler and waits for a running replay to finish.
func (r *LedgerReconciler) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	r.logger.Info("ledger reconciler stopped")
}

// RunOnce replays one batch of pending entries.
func (r *LedgerReconciler) RunOnce(ctx context.Context) (models.ReconcileReport, error) {
	var report models.ReconcileReport
	if r.mirror == nil {
		return report, nil
	}
	entries, err := r.outbox.ListPending(ctx, r.batchSize)
	if err != nil {
		return report, fmt.Errorf("list pending ledger commands: %w", err)
	}
	report.Scanned = len(entries)

	blocked := make(map[string]struct{})
	for i, entry := range entries {
		if _, skip := blocked[entry.TeacherID]; skip {
			report.Deferred++
			continue
		}

		var cmd ledger.Command
		if err := json.Unmarshal(entry.Payload, &cmd); err != nil {
			r.settleFailure(ctx, entry, fmt.Errorf("decode payload: %w", err), true, &report)
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		err := r.mirror.Submit(callCtx, cmd)
		cancel()

		if err == nil {
			if markErr := r.outbox.MarkDelivered(ctx, entry.ID, r.now()); markErr != nil {
				return report, fmt.Errorf("mark ledger command %s delivered: %w", entry.ID, markErr)
			}
			report.Delivered++
			r.metrics.RecordOutboxReplay(models.LedgerOutboxDelivered)
			continue
		}
		if errors.Is(err, ledger.ErrUnavailable) {
			// Breaker is open; nothing was attempted. Leave the rest for a later run.
			report.Deferred += len(entries) - i
			break
		}
		abandon := entry.Attempts+1 >= r.maxAttempts || errors.Is(err, ledger.ErrInvalidCommand)
		r.settleFailure(ctx, entry, err, abandon, &report)
		blocked[entry.TeacherID] = struct{}{}
	}

	if report.Scanned > 0 {
		r.logger.Info("ledger reconciliation run",
			zap.Int("scanned", report.Scanned),
			zap.Int("delivered", report.Delivered),
			zap.Int("failed", report.Failed),
			zap.Int("abandoned", report.Abandoned),
			zap.Int("deferred", report.Deferred),
		)
	}
	return report, nil
}

func (r *LedgerReconciler) settleFailure(ctx context.Context, entry models.LedgerOutboxEntry, cause error, abandon bool, report *models.ReconcileReport) {
	if err := r.outbox.MarkFailed(ctx, entry.ID, cause.Error(), abandon); err != nil {
		r.logger.Error("record ledger replay failure", zap.String("entry_id", entry.ID), zap.Error(err))
	}
	status := models.LedgerOutboxPending
	if abandon {
		status = models.LedgerOutboxAbandoned
		report.Abandoned++
		r.logger.Error("ledger command abandoned",
			zap.String("entry_id", entry.ID),
			zap.String("operation", entry.Operation),
			zap.String("teacher_id", entry.TeacherID),
			zap.Int("attempts", entry.Attempts+1),
			zap.Error(cause),
		)
	} else {
		report.Failed++
		r.logger.Warn("ledger replay failed",
			zap.String("entry_id", entry.ID),
			zap.String("operation", entry.Operation),
			zap.String("teacher_id", entry.TeacherID),
			zap.Error(cause),
		)
	}
	r.metrics.RecordOutboxReplay(status)
}

// cronLogger routes scheduler diagnostics into zap.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
