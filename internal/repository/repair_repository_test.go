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

func newRepairRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func repairColumnNames() []string {
	return []string{"id", "client_id", "device_type", "device_brand", "device_model", "problem", "status",
		"diagnosis", "estimated_cost_cents", "technician_id", "dropoff_relay_id", "pickup_relay_id",
		"created_at", "updated_at"}
}

func TestRepairRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepairRepoMock(t)
	defer cleanup()

	repo := NewRepairRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO repair_requests")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	repair := &models.RepairRequest{
		ClientID:    "client-1",
		DeviceType:  "laptop",
		DeviceBrand: "Lenovo",
		DeviceModel: "T14",
		Problem:     "does not boot",
	}
	require.NoError(t, repo.Create(context.Background(), repair))
	require.NotEmpty(t, repair.ID)
	require.Equal(t, models.StatusSubmitted, repair.Status)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(repairColumnNames()).
		AddRow(repair.ID, "client-1", "laptop", "Lenovo", "T14", "does not boot", "SUBMITTED",
			nil, nil, nil, nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM repair_requests WHERE id = $1")).
		WithArgs(repair.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), repair.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusSubmitted, found.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepairRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepairRepoMock(t)
	defer cleanup()

	repo := NewRepairRepository(db)
	now := time.Now().UTC()
	rows := sqlmock.NewRows(repairColumnNames()).
		AddRow("repair-1", "client-1", "laptop", "Lenovo", "T14", "does not boot", "IN_REPAIR",
			nil, nil, nil, nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("client_id = $1 AND status IN ($2,$3)")).
		WithArgs("client-1", models.StatusInRepair, models.StatusReadyForPickup).
		WillReturnRows(rows)

	list, err := repo.List(context.Background(), models.RepairFilter{
		ClientID: "client-1",
		Status:   []models.RepairStatusCode{models.StatusInRepair, models.StatusReadyForPickup},
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "repair-1", list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepairRepositoryUpdateDiagnosis(t *testing.T) {
	db, mock, cleanup := newRepairRepoMock(t)
	defer cleanup()

	repo := NewRepairRepository(db)
	now := time.Now().UTC()
	cost := int64(9900)
	tech := "tech-1"

	mock.ExpectExec(regexp.QuoteMeta("UPDATE repair_requests SET diagnosis = $2")).
		WithArgs("repair-1", "dead inverter", cost, tech, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateDiagnosis(context.Background(), "repair-1", "dead inverter", &cost, &tech, now))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE repair_requests SET diagnosis = $2")).
		WithArgs("missing", "dead inverter", cost, tech, now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateDiagnosis(context.Background(), "missing", "dead inverter", &cost, &tech, now)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepairRepositoryTransitionStatus(t *testing.T) {
	db, mock, cleanup := newRepairRepoMock(t)
	defer cleanup()

	repo := NewRepairRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ? AND status = ?")).
		WithArgs("RECEIVED", now, "repair-1", "SUBMITTED").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.TransitionStatus(context.Background(), TransitionParams{
		ID:        "repair-1",
		From:      models.StatusSubmitted,
		To:        models.StatusReceived,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepairRepositoryTransitionStatusWithDropoff(t *testing.T) {
	db, mock, cleanup := newRepairRepoMock(t)
	defer cleanup()

	repo := NewRepairRepository(db)
	now := time.Now().UTC()
	relay := "relay-1"

	mock.ExpectExec(regexp.QuoteMeta("dropoff_relay_id = ?")).
		WithArgs("RECEIVED", now, relay, "repair-1", "SUBMITTED").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.TransitionStatus(context.Background(), TransitionParams{
		ID:             "repair-1",
		From:           models.StatusSubmitted,
		To:             models.StatusReceived,
		DropoffRelayID: &relay,
		UpdatedAt:      now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepairRepositoryTransitionStatusGuard(t *testing.T) {
	db, mock, cleanup := newRepairRepoMock(t)
	defer cleanup()

	repo := NewRepairRepository(db)
	now := time.Now().UTC()

	// stored status no longer matches the expected from status
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ? AND status = ?")).
		WithArgs("RECEIVED", now, "repair-1", "SUBMITTED").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.TransitionStatus(context.Background(), TransitionParams{
		ID:        "repair-1",
		From:      models.StatusSubmitted,
		To:        models.StatusReceived,
		UpdatedAt: now,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
