package memory

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
)

// LedgerOutboxStore keeps failed ledger commands for replay.
type LedgerOutboxStore struct {
	rows *xsync.Map[string, models.LedgerOutboxEntry]
	seq  *xsync.Counter
}

// NewLedgerOutboxStore constructs an empty outbox.
func NewLedgerOutboxStore() *LedgerOutboxStore {
	return &LedgerOutboxStore{rows: xsync.NewMap[string, models.LedgerOutboxEntry](), seq: xsync.NewCounter()}
}

// Enqueue parks a pending entry.
func (s *LedgerOutboxStore) Enqueue(ctx context.Context, entry *models.LedgerOutboxEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		// keep insertion order stable when two entries share a clock tick
		s.seq.Inc()
		entry.CreatedAt = now.Add(time.Duration(s.seq.Value()) * time.Nanosecond)
	}
	entry.UpdatedAt = now
	entry.Status = models.LedgerOutboxPending
	if _, loaded := s.rows.LoadOrStore(entry.ID, *entry); loaded {
		return ErrDuplicateKey
	}
	return nil
}

// ListPending returns up to limit pending entries, oldest first.
func (s *LedgerOutboxStore) ListPending(ctx context.Context, limit int) ([]models.LedgerOutboxEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []models.LedgerOutboxEntry
	s.rows.Range(func(_ string, e models.LedgerOutboxEntry) bool {
		if e.Status == models.LedgerOutboxPending {
			out = append(out, e)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// HasPending reports whether teacherID has entries awaiting replay.
func (s *LedgerOutboxStore) HasPending(ctx context.Context, teacherID string) (bool, error) {
	found := false
	s.rows.Range(func(_ string, e models.LedgerOutboxEntry) bool {
		if e.TeacherID == teacherID && e.Status == models.LedgerOutboxPending {
			found = true
			return false
		}
		return true
	})
	return found, nil
}

// All returns every entry regardless of status, oldest first.
func (s *LedgerOutboxStore) All() []models.LedgerOutboxEntry {
	var out []models.LedgerOutboxEntry
	s.rows.Range(func(_ string, e models.LedgerOutboxEntry) bool {
		out = append(out, e)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// MarkDelivered closes a pending entry.
func (s *LedgerOutboxStore) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	delivered := at.UTC()
	return s.transition(id, func(e *models.LedgerOutboxEntry) {
		e.Status = models.LedgerOutboxDelivered
		e.LastError = nil
		e.DeliveredAt = &delivered
		e.UpdatedAt = delivered
	})
}

// MarkFailed records the replay error; abandon moves the entry out of the pending set.
func (s *LedgerOutboxStore) MarkFailed(ctx context.Context, id string, cause string, abandon bool) error {
	return s.transition(id, func(e *models.LedgerOutboxEntry) {
		if abandon {
			e.Status = models.LedgerOutboxAbandoned
		}
		e.LastError = &cause
		e.UpdatedAt = time.Now().UTC()
	})
}

func (s *LedgerOutboxStore) transition(id string, apply func(*models.LedgerOutboxEntry)) error {
	applied := false
	s.rows.Compute(id, func(old models.LedgerOutboxEntry, loaded bool) (models.LedgerOutboxEntry, xsync.ComputeOp) {
		if !loaded || old.Status != models.LedgerOutboxPending {
			return old, xsync.CancelOp
		}
		old.Attempts++
		apply(&old)
		applied = true
		return old, xsync.UpdateOp
	})
	if !applied {
		return sql.ErrNoRows
	}
	return nil
}
