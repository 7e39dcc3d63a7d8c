package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fixdrop-app/fixdrop-api/internal/models"
)

// HandoffCodeRepository persists single-use hand-off codes.
type HandoffCodeRepository struct {
	db *sqlx.DB
}

// NewHandoffCodeRepository constructs the repository.
func NewHandoffCodeRepository(db *sqlx.DB) *HandoffCodeRepository {
	return &HandoffCodeRepository{db: db}
}

// Create inserts a new code row with used=false.
func (r *HandoffCodeRepository) Create(ctx context.Context, code *models.HandoffCode) error {
	if code.ID == "" {
		code.ID = uuid.NewString()
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO handoff_codes
	(id, repair_id, relay_point_id, code, used, used_at, created_at)
	VALUES (:id, :repair_id, :relay_point_id, :code, :used, :used_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, code); err != nil {
		return fmt.Errorf("create handoff code: %w", err)
	}
	return nil
}

// GetByID fetches a code row by identifier.
func (r *HandoffCodeRepository) GetByID(ctx context.Context, id string) (*models.HandoffCode, error) {
	const query = `SELECT id, repair_id, relay_point_id, code, used, used_at, created_at
	FROM handoff_codes WHERE id = $1`
	var code models.HandoffCode
	if err := r.db.GetContext(ctx, &code, query, id); err != nil {
		return nil, err
	}
	return &code, nil
}

// FindCurrent resolves the manual-path lookup: the latest code row matching
// the typed code at the acting relay point. Re-issued codes for the same
// repair may coexist, so the newest row wins.
func (r *HandoffCodeRepository) FindCurrent(ctx context.Context, code, relayPointID string) (*models.HandoffCode, error) {
	const query = `SELECT id, repair_id, relay_point_id, code, used, used_at, created_at
	FROM handoff_codes WHERE code = $1 AND relay_point_id = $2
	ORDER BY created_at DESC LIMIT 1`
	var rec models.HandoffCode
	if err := r.db.GetContext(ctx, &rec, query, code, relayPointID); err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindForRepair resolves the scanned-path backing record: the row matching
// the decoded repair/code pair.
func (r *HandoffCodeRepository) FindForRepair(ctx context.Context, repairID, code string) (*models.HandoffCode, error) {
	const query = `SELECT id, repair_id, relay_point_id, code, used, used_at, created_at
	FROM handoff_codes WHERE repair_id = $1 AND code = $2
	ORDER BY created_at DESC LIMIT 1`
	var rec models.HandoffCode
	if err := r.db.GetContext(ctx, &rec, query, repairID, code); err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkUsed consumes a code. The used=false guard makes the check-then-set a
// single conditional update: of two racing redemptions exactly one sees an
// affected row, the other gets sql.ErrNoRows.
func (r *HandoffCodeRepository) MarkUsed(ctx context.Context, id string, usedAt time.Time) error {
	const query = `UPDATE handoff_codes SET used = true, used_at = $2
	WHERE id = $1 AND used = false`
	result, err := r.db.ExecContext(ctx, query, id, usedAt)
	if err != nil {
		return fmt.Errorf("mark handoff code used: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check handoff code update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
