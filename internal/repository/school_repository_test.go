package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchoolRepositoryDeleteBlockedByVacancies(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSchoolRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM schools WHERE id = $1")).
		WithArgs("s1").
		WillReturnError(&pq.Error{Code: "23503", Constraint: "vacancies_school_id_fkey"})

	err := repo.Delete(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrReferenced)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSchoolRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSchoolRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM schools WHERE id = $1")).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "ghost"), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
