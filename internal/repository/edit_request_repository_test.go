package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
)

var editRequestRowColumns = []string{"id", "teacher_id", "name", "email", "requested_changes", "reason", "status",
	"reviewed_by", "requested_at", "reviewed_at", "note"}

func TestEditRequestRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEditRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO edit_requests")).WillReturnResult(sqlmock.NewResult(1, 1))
	req := &models.EditRequest{TeacherID: "t1", Name: "Ada", Email: "ada@x.test", RequestedChanges: []byte(`{"grade":"BPS-17"}`)}
	require.NoError(t, repo.Create(context.Background(), req))
	require.Equal(t, models.EditRequestPending, req.Status)

	mock.ExpectQuery(regexp.QuoteMeta("FROM edit_requests WHERE id = $1")).
		WithArgs(req.ID).
		WillReturnRows(sqlmock.NewRows(editRequestRowColumns).
			AddRow(req.ID, "t1", "Ada", "ada@x.test", `{"grade":"BPS-17"}`, "", "PENDING", nil, time.Now(), nil, nil))
	found, err := repo.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	require.Equal(t, "t1", found.TeacherID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEditRequestRepositoryListByEmail(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEditRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status IN ($1) AND LOWER(email) = LOWER($2) ORDER BY requested_at DESC, id DESC LIMIT 1 OFFSET 0")).
		WithArgs(models.EditRequestPending, "ada@x.test").
		WillReturnRows(sqlmock.NewRows(editRequestRowColumns).
			AddRow("e1", "t1", "Ada", "ada@x.test", `{}`, "", "PENDING", nil, time.Now(), nil, nil))

	list, err := repo.List(context.Background(), models.EditRequestFilter{
		Status: []models.EditRequestStatus{models.EditRequestPending},
		Email:  "ada@x.test",
		Limit:  1,
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEditRequestRepositoryUpdateStatusConditional(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEditRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE edit_requests SET status")).
		WithArgs("APPROVED", "deo-1", sqlmock.AnyArg(), nil, "e1", "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateStatus(context.Background(), ReviewEditRequestParams{
		ID: "e1", Status: models.EditRequestApproved, ReviewedBy: "deo-1", ReviewedAt: time.Now(),
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
