package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/fixdrop-app/fixdrop-api/internal/models"
)

// StatusRepository reads the repair status catalog. The catalog is seeded by
// migration and referenced by code, never duplicated onto repair rows.
type StatusRepository struct {
	db *sqlx.DB
}

// NewStatusRepository constructs the repository.
func NewStatusRepository(db *sqlx.DB) *StatusRepository {
	return &StatusRepository{db: db}
}

// List returns the catalog ordered by lifecycle position.
func (r *StatusRepository) List(ctx context.Context) ([]models.RepairStatus, error) {
	const query = `SELECT code, label, description, color, position
	FROM repair_statuses ORDER BY position`
	var statuses []models.RepairStatus
	if err := r.db.SelectContext(ctx, &statuses, query); err != nil {
		return nil, err
	}
	return statuses, nil
}
