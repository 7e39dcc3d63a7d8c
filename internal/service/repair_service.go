package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/fixdrop-app/fixdrop-api/internal/dto"
	"github.com/fixdrop-app/fixdrop-api/internal/models"
	appErrors "github.com/fixdrop-app/fixdrop-api/pkg/errors"
)

type repairStore interface {
	Create(ctx context.Context, repair *models.RepairRequest) error
	GetByID(ctx context.Context, id string) (*models.RepairRequest, error)
	List(ctx context.Context, filter models.RepairFilter) ([]models.RepairRequest, error)
	UpdateDiagnosis(ctx context.Context, id, diagnosis string, estimatedCostCents *int64, technicianID *string, updatedAt time.Time) error
}

type repairLifecycle interface {
	Transition(ctx context.Context, repairID string, to models.RepairStatusCode, effects TransitionEffects) (*models.RepairRequest, error)
}

type repairNotifier interface {
	Notify(recipientID, title, body string, typ models.NotificationType, relatedID *string)
}

type repairRelayStore interface {
	GetByID(ctx context.Context, id string) (*models.RelayPoint, error)
}

// RepairService covers the client/staff surface around repair requests:
// submission, listing, diagnosis, and the staff-driven lifecycle steps.
type RepairService struct {
	repo      repairStore
	relays    repairRelayStore
	lifecycle repairLifecycle
	notifier  repairNotifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRepairService constructs the service.
func NewRepairService(repo repairStore, relays repairRelayStore, lifecycle repairLifecycle, notifier repairNotifier, validate *validator.Validate, logger *zap.Logger) *RepairService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RepairService{
		repo:      repo,
		relays:    relays,
		lifecycle: lifecycle,
		notifier:  notifier,
		validator: validate,
		logger:    logger,
	}
}

// Submit creates a repair request in SUBMITTED for the calling client.
func (s *RepairService) Submit(ctx context.Context, req dto.CreateRepairRequest, actor *models.JWTClaims) (*models.RepairRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid repair payload")
	}

	repair := &models.RepairRequest{
		ClientID:    actor.UserID,
		DeviceType:  req.DeviceType,
		DeviceBrand: req.DeviceBrand,
		DeviceModel: req.DeviceModel,
		Problem:     req.Problem,
		Status:      models.StatusSubmitted,
	}
	if err := s.repo.Create(ctx, repair); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create repair request")
	}

	s.notifier.Notify(actor.UserID, "Repair submitted",
		fmt.Sprintf("We registered your %s. Drop it at any relay point using a hand-off code.", repair.DeviceLabel()),
		models.NotificationStatusChange, &repair.ID)

	return repair, nil
}

// Get returns one repair, visible to its client, staff, and admins.
func (s *RepairService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.RepairRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	repair, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load repair")
	}
	if actor.Role == models.RoleClient && repair.ClientID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return repair, nil
}

// List returns repairs scoped by actor role: clients see their own,
// technicians their assignments, staff everything.
func (s *RepairService) List(ctx context.Context, query dto.RepairQuery, actor *models.JWTClaims) ([]models.RepairRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.RepairFilter{
		Status: query.Status,
		Limit:  query.Limit,
		Offset: query.Offset,
	}
	switch actor.Role {
	case models.RoleClient:
		filter.ClientID = actor.UserID
	case models.RoleTechnician:
		filter.TechnicianID = actor.UserID
	case models.RoleAdmin:
		// full access
	default:
		return nil, appErrors.ErrForbidden
	}
	repairs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list repairs")
	}
	return repairs, nil
}

// Diagnose records a technician's findings and cost estimate.
func (s *RepairService) Diagnose(ctx context.Context, id string, req dto.DiagnosisRequest, actor *models.JWTClaims) (*models.RepairRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid diagnosis payload")
	}
	repair, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if repair.Status.IsTerminal() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "repair is already closed")
	}

	technicianID := req.TechnicianID
	if technicianID == "" && actor.Role == models.RoleTechnician {
		technicianID = actor.UserID
	}
	var techRef *string
	if technicianID != "" {
		techRef = &technicianID
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateDiagnosis(ctx, id, req.Diagnosis, req.EstimatedCostCents, techRef, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update diagnosis")
	}

	repair.Diagnosis = &req.Diagnosis
	repair.EstimatedCost = req.EstimatedCostCents
	if techRef != nil {
		repair.TechnicianID = techRef
	}
	repair.UpdatedAt = now

	s.notifier.Notify(repair.ClientID, "Diagnosis ready",
		fmt.Sprintf("A technician diagnosed your %s: %s", repair.DeviceLabel(), req.Diagnosis),
		models.NotificationStatusChange, &repair.ID)

	return repair, nil
}

// Advance drives the staff-side intermediate transitions (RECEIVED through
// IN_REPAIR). Legality is enforced by the lifecycle gate.
func (s *RepairService) Advance(ctx context.Context, id string, to models.RepairStatusCode, actor *models.JWTClaims) (*models.RepairRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	updated, err := s.lifecycle.Transition(ctx, id, to, TransitionEffects{})
	if err != nil {
		return nil, err
	}
	s.notifyStatusChange(updated)
	return updated, nil
}

// MarkReady completes the repair and designates the pickup relay the client
// will collect from.
func (s *RepairService) MarkReady(ctx context.Context, id string, req dto.ReadyForPickupRequest, actor *models.JWTClaims) (*models.RepairRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid pickup payload")
	}

	relay, err := s.relays.GetByID(ctx, req.PickupRelayID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pickup relay point not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load relay point")
	}
	if !relay.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "pickup relay point is not active")
	}

	updated, err := s.lifecycle.Transition(ctx, id, models.StatusReadyForPickup, TransitionEffects{PickupRelayID: &relay.ID})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(updated.ClientID, "Ready for pickup",
		fmt.Sprintf("Your %s is repaired and waiting at %s.", updated.DeviceLabel(), relay.Name),
		models.NotificationStatusChange, &updated.ID)

	return updated, nil
}

// Cancel closes a repair from any non-terminal state.
func (s *RepairService) Cancel(ctx context.Context, id string, actor *models.JWTClaims) (*models.RepairRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	updated, err := s.lifecycle.Transition(ctx, id, models.StatusCancelled, TransitionEffects{})
	if err != nil {
		return nil, err
	}
	s.notifyStatusChange(updated)
	return updated, nil
}

func (s *RepairService) notifyStatusChange(repair *models.RepairRequest) {
	s.notifier.Notify(repair.ClientID, "Repair status updated",
		fmt.Sprintf("Your %s moved to %s.", repair.DeviceLabel(), repair.Status),
		models.NotificationStatusChange, &repair.ID)
}
