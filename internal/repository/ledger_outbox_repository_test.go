package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
)

func TestLedgerOutboxRepositoryLifecycle(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerOutboxRepository(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_outbox")).WillReturnResult(sqlmock.NewResult(1, 1))
	entry := &models.LedgerOutboxEntry{Operation: "APPROVE_SCHOOL_CHANGE", TeacherID: "t1", Payload: []byte(`{}`)}
	require.NoError(t, repo.Enqueue(ctx, entry))
	assert.Equal(t, models.LedgerOutboxPending, entry.Status)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM ledger_outbox WHERE teacher_id = $1 AND status = 'PENDING')")).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	hasPending, err := repo.HasPending(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, hasPending)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM ledger_outbox WHERE status = 'PENDING' ORDER BY created_at ASC, id ASC LIMIT 10")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "operation", "teacher_id", "payload", "status", "attempts", "last_error", "created_at", "updated_at", "delivered_at"}).
			AddRow(entry.ID, "APPROVE_SCHOOL_CHANGE", "t1", `{}`, "PENDING", 0, nil, now, now, nil))
	pending, err := repo.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE ledger_outbox SET status = $2")).
		WithArgs(entry.ID, models.LedgerOutboxAbandoned, "boom", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkFailed(ctx, entry.ID, "boom", true))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE ledger_outbox SET status = 'DELIVERED'")).
		WithArgs(entry.ID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.MarkDelivered(ctx, entry.ID, now), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
