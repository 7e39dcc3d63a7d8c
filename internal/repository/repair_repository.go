package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fixdrop-app/fixdrop-api/internal/models"
)

// RepairRepository persists repair requests.
type RepairRepository struct {
	db *sqlx.DB
}

// NewRepairRepository constructs the repository.
func NewRepairRepository(db *sqlx.DB) *RepairRepository {
	return &RepairRepository{db: db}
}

// Create inserts a new repair request.
func (r *RepairRepository) Create(ctx context.Context, repair *models.RepairRequest) error {
	if repair.ID == "" {
		repair.ID = uuid.NewString()
	}
	if repair.Status == "" {
		repair.Status = models.StatusSubmitted
	}
	now := time.Now().UTC()
	if repair.CreatedAt.IsZero() {
		repair.CreatedAt = now
	}
	repair.UpdatedAt = repair.CreatedAt
	const query = `INSERT INTO repair_requests
	(id, client_id, device_type, device_brand, device_model, problem, status, diagnosis,
	 estimated_cost_cents, technician_id, dropoff_relay_id, pickup_relay_id, created_at, updated_at)
	VALUES (:id, :client_id, :device_type, :device_brand, :device_model, :problem, :status, :diagnosis,
	 :estimated_cost_cents, :technician_id, :dropoff_relay_id, :pickup_relay_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, repair); err != nil {
		return fmt.Errorf("create repair request: %w", err)
	}
	return nil
}

const repairColumns = `id, client_id, device_type, device_brand, device_model, problem, status, diagnosis,
       estimated_cost_cents, technician_id, dropoff_relay_id, pickup_relay_id, created_at, updated_at`

// GetByID fetches one repair request.
func (r *RepairRepository) GetByID(ctx context.Context, id string) (*models.RepairRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM repair_requests WHERE id = $1`, repairColumns)
	var repair models.RepairRequest
	if err := r.db.GetContext(ctx, &repair, query, id); err != nil {
		return nil, err
	}
	return &repair, nil
}

// List returns repairs matching the filter, newest first.
func (r *RepairRepository) List(ctx context.Context, filter models.RepairFilter) ([]models.RepairRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(fmt.Sprintf("SELECT %s FROM repair_requests", repairColumns))

	conditions := make([]string, 0, 3)
	if filter.ClientID != "" {
		args = append(args, filter.ClientID)
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if filter.TechnicianID != "" {
		args = append(args, filter.TechnicianID)
		conditions = append(conditions, fmt.Sprintf("technician_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var repairs []models.RepairRequest
	if err := r.db.SelectContext(ctx, &repairs, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list repair requests: %w", err)
	}
	return repairs, nil
}

// UpdateDiagnosis records a technician's findings on a repair.
func (r *RepairRepository) UpdateDiagnosis(ctx context.Context, id, diagnosis string, estimatedCostCents *int64, technicianID *string, updatedAt time.Time) error {
	const query = `UPDATE repair_requests SET diagnosis = $2, estimated_cost_cents = $3,
	technician_id = COALESCE($4, technician_id), updated_at = $5 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, diagnosis, estimatedCostCents, technicianID, updatedAt)
	if err != nil {
		return fmt.Errorf("update repair diagnosis: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check diagnosis update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// TransitionParams groups the columns written atomically with a lifecycle
// transition.
type TransitionParams struct {
	ID             string
	From           models.RepairStatusCode
	To             models.RepairStatusCode
	DropoffRelayID *string
	PickupRelayID  *string
	UpdatedAt      time.Time
}

// TransitionStatus flips a repair's status guarded by the expected from
// status. Zero affected rows means the stored status moved concurrently (or
// never matched); the caller maps that to an illegal-transition rejection.
func (r *RepairRepository) TransitionStatus(ctx context.Context, params TransitionParams) error {
	setParts := []string{"status = :to", "updated_at = :updated_at"}
	if params.DropoffRelayID != nil {
		setParts = append(setParts, "dropoff_relay_id = :dropoff_relay_id")
	}
	if params.PickupRelayID != nil {
		setParts = append(setParts, "pickup_relay_id = :pickup_relay_id")
	}
	query := fmt.Sprintf("UPDATE repair_requests SET %s WHERE id = :id AND status = :from",
		strings.Join(setParts, ", "))
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":               params.ID,
		"from":             params.From,
		"to":               params.To,
		"dropoff_relay_id": params.DropoffRelayID,
		"pickup_relay_id":  params.PickupRelayID,
		"updated_at":       params.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("transition repair status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check transition rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
