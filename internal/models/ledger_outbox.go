package models

import "time"

// LedgerOutboxStatus tracks replay of a mirror write that did not land.
type LedgerOutboxStatus string

const (
	LedgerOutboxPending   LedgerOutboxStatus = "PENDING"
	LedgerOutboxDelivered LedgerOutboxStatus = "DELIVERED"
	LedgerOutboxAbandoned LedgerOutboxStatus = "ABANDONED"
)

// LedgerOutboxEntry is a failed ledger command kept for the reconciler.
type LedgerOutboxEntry struct {
	ID          string             `db:"id" json:"id"`
	Operation   string             `db:"operation" json:"operation"`
	TeacherID   string             `db:"teacher_id" json:"teacherId"`
	Payload     []byte             `db:"payload" json:"payload"`
	Status      LedgerOutboxStatus `db:"status" json:"status"`
	Attempts    int                `db:"attempts" json:"attempts"`
	LastError   *string            `db:"last_error" json:"lastError,omitempty"`
	CreatedAt   time.Time          `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time          `db:"updated_at" json:"updatedAt"`
	DeliveredAt *time.Time         `db:"delivered_at" json:"deliveredAt,omitempty"`
}

// ReconcileReport summarises one reconciler run.
type ReconcileReport struct {
	Scanned   int `json:"scanned"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Abandoned int `json:"abandoned"`
	Deferred  int `json:"deferred"`
}
