package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
)

const outboxColumns = "id, operation, teacher_id, payload, status, attempts, last_error, created_at, updated_at, delivered_at"

// LedgerOutboxRepository stores ledger commands that failed to mirror.
type LedgerOutboxRepository struct {
	db *sqlx.DB
}

// NewLedgerOutboxRepository constructs the repository.
func NewLedgerOutboxRepository(db *sqlx.DB) *LedgerOutboxRepository {
	return &LedgerOutboxRepository{db: db}
}

// Enqueue records a pending entry.
func (r *LedgerOutboxRepository) Enqueue(ctx context.Context, entry *models.LedgerOutboxEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	entry.Status = models.LedgerOutboxPending
	const query = `INSERT INTO ledger_outbox (id, operation, teacher_id, payload, status, attempts, last_error, created_at, updated_at, delivered_at)
		VALUES (:id, :operation, :teacher_id, :payload, :status, :attempts, :last_error, :created_at, :updated_at, :delivered_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("enqueue ledger outbox: %w", err)
	}
	return nil
}

// ListPending returns up to limit pending entries, oldest first.
func (r *LedgerOutboxRepository) ListPending(ctx context.Context, limit int) ([]models.LedgerOutboxEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf("SELECT %s FROM ledger_outbox WHERE status = 'PENDING' ORDER BY created_at ASC, id ASC LIMIT %d", outboxColumns, limit)
	var entries []models.LedgerOutboxEntry
	if err := r.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("list pending ledger outbox: %w", err)
	}
	return entries, nil
}

// HasPending reports whether teacherID has entries awaiting replay.
func (r *LedgerOutboxRepository) HasPending(ctx context.Context, teacherID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM ledger_outbox WHERE teacher_id = $1 AND status = 'PENDING')`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, teacherID); err != nil {
		return false, fmt.Errorf("check pending ledger outbox: %w", err)
	}
	return exists, nil
}

// MarkDelivered closes a pending entry.
func (r *LedgerOutboxRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE ledger_outbox SET status = 'DELIVERED', attempts = attempts + 1, last_error = NULL,
		delivered_at = $2, updated_at = $2 WHERE id = $1 AND status = 'PENDING'`
	result, err := r.db.ExecContext(ctx, query, id, at.UTC())
	if err != nil {
		return fmt.Errorf("mark ledger outbox delivered: %w", err)
	}
	return requireAffected(result, "mark ledger outbox delivered")
}

// MarkFailed records a failed replay; abandon moves the entry out of the pending set.
func (r *LedgerOutboxRepository) MarkFailed(ctx context.Context, id string, cause string, abandon bool) error {
	status := models.LedgerOutboxPending
	if abandon {
		status = models.LedgerOutboxAbandoned
	}
	const query = `UPDATE ledger_outbox SET status = $2, attempts = attempts + 1, last_error = $3, updated_at = $4
		WHERE id = $1 AND status = 'PENDING'`
	result, err := r.db.ExecContext(ctx, query, id, status, cause, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark ledger outbox failed: %w", err)
	}
	return requireAffected(result, "mark ledger outbox failed")
}
