package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
	"github.com/noah-isme/teacher-transfer-api/pkg/ledger"
)

const defaultMirrorTimeout = 3 * time.Second

// LedgerMirror is the external ledger. Calls may fail independently of the repository.
type LedgerMirror interface {
	Submit(ctx context.Context, cmd ledger.Command) error
}

type ledgerOutbox interface {
	Enqueue(ctx context.Context, entry *models.LedgerOutboxEntry) error
	HasPending(ctx context.Context, teacherID string) (bool, error)
}

var errOutboxBacklog = errors.New("earlier ledger commands for this teacher are awaiting replay")

// MirrorGuard runs ledger writes as best-effort calls with a bounded timeout.
// Failures come back as a MirrorResult and are parked in the outbox for the reconciler.
type MirrorGuard struct {
	mirror  LedgerMirror
	outbox  ledgerOutbox
	timeout time.Duration
	metrics *MetricsService
	logger  *zap.Logger
}

// NewMirrorGuard constructs a guard. A nil mirror makes every call SKIPPED.
func NewMirrorGuard(mirror LedgerMirror, outbox ledgerOutbox, timeout time.Duration, metrics *MetricsService, logger *zap.Logger) *MirrorGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultMirrorTimeout
	}
	return &MirrorGuard{mirror: mirror, outbox: outbox, timeout: timeout, metrics: metrics, logger: logger}
}

// Execute submits cmd and never returns an error. The caller's cancellation does not abort the call
// because the authoritative write has already committed by the time a mirror is attempted.
func (g *MirrorGuard) Execute(ctx context.Context, cmd ledger.Command) models.MirrorResult {
	result := models.MirrorResult{Operation: string(cmd.Operation), Status: models.MirrorSkipped}
	if g == nil || g.mirror == nil {
		return result
	}

	if g.behindBacklog(ctx, cmd) {
		result.Status = models.MirrorDeferred
		result.Error = errOutboxBacklog.Error()
		g.metrics.RecordMirror(result.Operation, result.Status)
		result.Queued = g.park(ctx, cmd, errOutboxBacklog)
		g.logger.Info("ledger mirror deferred behind outbox",
			zap.String("operation", result.Operation),
			zap.String("teacher_id", cmd.Ref.TeacherID),
			zap.Bool("queued", result.Queued),
		)
		return result
	}

	start := time.Now()
	err := g.submit(context.WithoutCancel(ctx), cmd)
	result.Duration = time.Since(start)

	switch {
	case err == nil:
		result.Status = models.MirrorOK
	case errors.Is(err, context.DeadlineExceeded):
		result.Status = models.MirrorTimeout
		result.Error = err.Error()
	default:
		result.Status = models.MirrorFailed
		result.Error = err.Error()
	}
	g.metrics.RecordMirror(result.Operation, result.Status)

	if result.OK() {
		return result
	}

	g.logger.Warn("ledger mirror failed",
		zap.String("operation", result.Operation),
		zap.String("teacher_id", cmd.Ref.TeacherID),
		zap.String("status", string(result.Status)),
		zap.Duration("duration", result.Duration),
		zap.Error(err),
	)
	result.Queued = g.park(ctx, cmd, err)
	return result
}

// behindBacklog reports whether cmd must wait for parked commands of the same teacher, so the
// ledger receives that teacher's commands in commit order. An unreadable outbox does not block.
func (g *MirrorGuard) behindBacklog(ctx context.Context, cmd ledger.Command) bool {
	if g.outbox == nil || cmd.Ref.TeacherID == "" {
		return false
	}
	pending, err := g.outbox.HasPending(context.WithoutCancel(ctx), cmd.Ref.TeacherID)
	if err != nil {
		g.logger.Warn("ledger outbox backlog check failed", zap.String("teacher_id", cmd.Ref.TeacherID), zap.Error(err))
		return false
	}
	return pending
}

func (g *MirrorGuard) submit(ctx context.Context, cmd ledger.Command) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.mirror.Submit(ctx, cmd)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// park records cmd in the outbox. It reports whether the entry was stored.
func (g *MirrorGuard) park(ctx context.Context, cmd ledger.Command, cause error) bool {
	if g.outbox == nil {
		return false
	}
	// Validation failures would never replay successfully.
	if errors.Is(cause, ledger.ErrInvalidCommand) {
		return false
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		g.logger.Error("encode ledger command", zap.String("operation", string(cmd.Operation)), zap.Error(err))
		return false
	}
	msg := cause.Error()
	entry := &models.LedgerOutboxEntry{
		Operation: string(cmd.Operation),
		TeacherID: cmd.Ref.TeacherID,
		Payload:   payload,
		Status:    models.LedgerOutboxPending,
		LastError: &msg,
	}
	if err := g.outbox.Enqueue(context.WithoutCancel(ctx), entry); err != nil {
		g.logger.Error("ledger outbox enqueue failed",
			zap.String("operation", entry.Operation),
			zap.String("teacher_id", entry.TeacherID),
			zap.Error(err),
		)
		return false
	}
	return true
}

func ledgerRef(t *models.Teacher) ledger.Ref {
	return ledger.Ref{TeacherID: t.ID, Address: t.LedgerAddress}
}
