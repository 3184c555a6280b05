package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var teacherRowColumns = []string{"id", "name", "email", "national_id", "role", "service_type", "date_of_birth",
	"contact_number", "initial_appointment", "experience", "grade", "marital_status", "home_address",
	"current_school", "posted_as", "date_of_joining", "date_of_joining_new_school", "is_request_pending",
	"new_school_request", "pending_vacancy_id", "reason", "ledger_address", "version", "created_at", "updated_at"}

func teacherRow(id, school string, pending bool, request string, vacancy interface{}, version int64) []interface{} {
	now := time.Now()
	return []interface{}{id, "Ada", id + "@school.test", "NID-" + id, "TEACHER", "REGULAR", nil,
		"", "", "", "", "", "", school, "Lecturer", nil, nil, pending, request, vacancy, "", "0xabc", version, now, now}
}

func rowsOf(values ...[]interface{}) *sqlmock.Rows {
	rows := sqlmock.NewRows(teacherRowColumns)
	for _, v := range values {
		row := make([]driver.Value, len(v))
		for i, x := range v {
			row[i] = x
		}
		rows.AddRow(row...)
	}
	return rows
}

func TestTeacherRepositoryMarkTransferRequested(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE teachers SET is_request_pending = TRUE")).
		WithArgs("t1", "Lincoln High", "v1", "closer to home", sqlmock.AnyArg()).
		WillReturnRows(rowsOf(teacherRow("t1", "Old School", true, "Lincoln High", "v1", 2)))

	teacher, err := repo.MarkTransferRequested(context.Background(), "t1", models.TransferRequestFields{
		SchoolName: "Lincoln High", VacancyID: "v1", Reason: "closer to home",
	})
	require.NoError(t, err)
	assert.True(t, teacher.IsRequestPending)
	assert.Equal(t, "v1", teacher.PendingVacancy())
	assert.True(t, teacher.PendingConsistent())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryMarkTransferRequestedAlreadyPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND is_request_pending = FALSE")).
		WillReturnRows(sqlmock.NewRows(teacherRowColumns))

	_, err := repo.MarkTransferRequested(context.Background(), "t1", models.TransferRequestFields{SchoolName: "A", VacancyID: "v"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryCompleteTransfer(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	joined := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE teachers SET current_school = new_school_request")).
		WithArgs("t1", "v1", joined).
		WillReturnRows(rowsOf(teacherRow("t1", "Lincoln High", false, "", nil, 3)))

	teacher, err := repo.CompleteTransfer(context.Background(), "t1", models.SchoolRef{SchoolName: "Lincoln High", VacancyID: "v1"}, joined)
	require.NoError(t, err)
	assert.Equal(t, "Lincoln High", teacher.CurrentSchool)
	assert.False(t, teacher.IsRequestPending)
	assert.Nil(t, teacher.PendingVacancyID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryClearTransferRequestNoPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("AND is_request_pending = TRUE AND pending_vacancy_id = $2")).
		WithArgs("t1", "v1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(teacherRowColumns))

	_, err := repo.ClearTransferRequest(context.Background(), "t1", models.SchoolRef{SchoolName: "X", VacancyID: "v1"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryUpdateProfileVersionMismatch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND version = $2")).
		WithArgs("t1", int64(4), "Ada L.", models.ServiceTypeRegular, nil, "", "", "", "", "", "", "", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(teacherRowColumns))

	_, err := repo.UpdateProfile(context.Background(), "t1", 4, models.TeacherProfile{Name: "Ada L.", ServiceType: models.ServiceTypeRegular})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryListBroadcastRecipientsOrdered(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM teachers ORDER BY id ASC")).
		WillReturnRows(rowsOf(
			teacherRow("a", "S1", false, "", nil, 1),
			teacherRow("b", "S2", false, "", nil, 1),
		))

	teachers, err := repo.ListBroadcastRecipients(context.Background())
	require.NoError(t, err)
	require.Len(t, teachers, 2)
	assert.Equal(t, "a", teachers[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	pending := true
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND is_request_pending = $1 AND (LOWER(name) LIKE $2")).
		WithArgs(true, "%ada%").
		WillReturnRows(rowsOf(teacherRow("t1", "S1", true, "Lincoln High", "v1", 2)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM teachers")).
		WithArgs(true, "%ada%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	teachers, total, err := repo.List(context.Background(), models.TeacherFilter{Pending: &pending, Search: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, teachers, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryExistsByEmail(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM teachers WHERE LOWER(email) = LOWER($1) AND id <> $2 LIMIT 1")).
		WithArgs("a@x.test", "t1").
		WillReturnError(sql.ErrNoRows)
	exists, err := repo.ExistsByEmail(context.Background(), "a@x.test", "t1")
	require.NoError(t, err)
	assert.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM teachers WHERE id = $1")).
		WithArgs("nope").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), "nope"), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryCreateTranslatesUniqueViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectExec("INSERT INTO teachers").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "teachers_email_key"})

	err := repo.Create(context.Background(), &models.Teacher{Name: "Ada", Email: "ada@school.test", NationalID: "N1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Contains(t, err.Error(), "teachers_email_key")
	require.NoError(t, mock.ExpectationsWereMet())
}
