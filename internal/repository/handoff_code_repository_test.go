package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/fixdrop-app/fixdrop-api/internal/models"
)

func newHandoffCodeRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func handoffCodeColumns() []string {
	return []string{"id", "repair_id", "relay_point_id", "code", "used", "used_at", "created_at"}
}

func TestHandoffCodeRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newHandoffCodeRepoMock(t)
	defer cleanup()

	repo := NewHandoffCodeRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO handoff_codes")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	code := &models.HandoffCode{
		RepairID:     "repair-1",
		RelayPointID: "relay-1",
		Code:         "AB23CD",
	}
	require.NoError(t, repo.Create(context.Background(), code))
	require.NotEmpty(t, code.ID)
	require.False(t, code.CreatedAt.IsZero())

	rows := sqlmock.NewRows(handoffCodeColumns()).
		AddRow(code.ID, "repair-1", "relay-1", "AB23CD", false, nil, code.CreatedAt)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, repair_id, relay_point_id, code, used, used_at, created_at")).
		WithArgs(code.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), code.ID)
	require.NoError(t, err)
	require.Equal(t, "AB23CD", found.Code)
	require.False(t, found.Used)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandoffCodeRepositoryFindCurrent(t *testing.T) {
	db, mock, cleanup := newHandoffCodeRepoMock(t)
	defer cleanup()

	repo := NewHandoffCodeRepository(db)
	created := time.Now().UTC()
	rows := sqlmock.NewRows(handoffCodeColumns()).
		AddRow("code-1", "repair-1", "relay-1", "AB23CD", false, nil, created)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE code = $1 AND relay_point_id = $2")).
		WithArgs("AB23CD", "relay-1").
		WillReturnRows(rows)

	rec, err := repo.FindCurrent(context.Background(), "AB23CD", "relay-1")
	require.NoError(t, err)
	require.Equal(t, "code-1", rec.ID)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE code = $1 AND relay_point_id = $2")).
		WithArgs("AB23CD", "relay-2").
		WillReturnError(sql.ErrNoRows)

	_, err = repo.FindCurrent(context.Background(), "AB23CD", "relay-2")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandoffCodeRepositoryFindForRepair(t *testing.T) {
	db, mock, cleanup := newHandoffCodeRepoMock(t)
	defer cleanup()

	repo := NewHandoffCodeRepository(db)
	rows := sqlmock.NewRows(handoffCodeColumns()).
		AddRow("code-1", "repair-1", "relay-1", "AB23CD", true, time.Now().UTC(), time.Now().UTC())
	mock.ExpectQuery(regexp.QuoteMeta("WHERE repair_id = $1 AND code = $2")).
		WithArgs("repair-1", "AB23CD").
		WillReturnRows(rows)

	rec, err := repo.FindForRepair(context.Background(), "repair-1", "AB23CD")
	require.NoError(t, err)
	require.True(t, rec.Used)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandoffCodeRepositoryMarkUsed(t *testing.T) {
	db, mock, cleanup := newHandoffCodeRepoMock(t)
	defer cleanup()

	repo := NewHandoffCodeRepository(db)
	usedAt := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE handoff_codes SET used = true")).
		WithArgs("code-1", usedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkUsed(context.Background(), "code-1", usedAt))

	// a second consumption matches no used=false row
	mock.ExpectExec(regexp.QuoteMeta("UPDATE handoff_codes SET used = true")).
		WithArgs("code-1", usedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkUsed(context.Background(), "code-1", usedAt)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
