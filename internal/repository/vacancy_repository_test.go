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

func TestVacancyRepositoryFillIfPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVacancyRepository(db)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE vacancies SET status = 'filled', filled_at = $2 WHERE id = $1 AND status = 'pending'")).
		WithArgs("v1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.FillIfPending(context.Background(), "v1", at))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE vacancies SET status = 'filled'")).
		WithArgs("v1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.FillIfPending(context.Background(), "v1", at), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVacancyRepositoryListOpen(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVacancyRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM vacancies v JOIN schools s ON s.id = v.school_id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "school_id", "school_name", "city", "grade", "subject", "status"}).
			AddRow("v1", "s1", "Lincoln High", "Springfield", "BPS-16", "Physics", "pending"))

	listings, err := repo.ListOpen(context.Background())
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "Lincoln High", listings[0].SchoolName)
	assert.Equal(t, models.VacancyStatusPending, listings[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVacancyRepositoryCreateForcesPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVacancyRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO vacancies")).WillReturnResult(sqlmock.NewResult(1, 1))
	vacancy := &models.Vacancy{SchoolID: "s1", Grade: "BPS-16", Subject: "Physics", Status: models.VacancyStatusFilled}
	require.NoError(t, repo.Create(context.Background(), vacancy))
	assert.NotEmpty(t, vacancy.ID)
	assert.Equal(t, models.VacancyStatusPending, vacancy.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
