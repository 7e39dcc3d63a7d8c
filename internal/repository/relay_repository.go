package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/fixdrop-app/fixdrop-api/internal/models"
)

// RelayRepository reads the relay-point directory.
type RelayRepository struct {
	db *sqlx.DB
}

// NewRelayRepository constructs the repository.
func NewRelayRepository(db *sqlx.DB) *RelayRepository {
	return &RelayRepository{db: db}
}

const relayColumns = `id, name, address, city, phone, active, created_at`

// List returns all active relay points ordered by city and name.
func (r *RelayRepository) List(ctx context.Context) ([]models.RelayPoint, error) {
	query := `SELECT ` + relayColumns + ` FROM relay_points WHERE active = true ORDER BY city, name`
	var relays []models.RelayPoint
	if err := r.db.SelectContext(ctx, &relays, query); err != nil {
		return nil, err
	}
	return relays, nil
}

// GetByID fetches one relay point.
func (r *RelayRepository) GetByID(ctx context.Context, id string) (*models.RelayPoint, error) {
	query := `SELECT ` + relayColumns + ` FROM relay_points WHERE id = $1`
	var relay models.RelayPoint
	if err := r.db.GetContext(ctx, &relay, query, id); err != nil {
		return nil, err
	}
	return &relay, nil
}
