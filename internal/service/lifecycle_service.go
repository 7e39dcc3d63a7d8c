package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fixdrop-app/fixdrop-api/internal/models"
	"github.com/fixdrop-app/fixdrop-api/internal/repository"
	appErrors "github.com/fixdrop-app/fixdrop-api/pkg/errors"
)

type lifecycleRepairStore interface {
	GetByID(ctx context.Context, id string) (*models.RepairRequest, error)
	TransitionStatus(ctx context.Context, params repository.TransitionParams) error
}

// TransitionEffects carries the columns written atomically with specific
// transitions: the drop-off relay on SUBMITTED→RECEIVED and the pickup relay
// on IN_REPAIR→READY_FOR_PICKUP.
type TransitionEffects struct {
	DropoffRelayID *string
	PickupRelayID  *string
}

// LifecycleService is the authoritative gate over repair status transitions.
// It accepts or rejects a proposed transition; deciding when to propose one
// belongs to the hand-off redemption flow or to staff action.
type LifecycleService struct {
	repairs lifecycleRepairStore
	logger  *zap.Logger
	now     func() time.Time
}

// NewLifecycleService constructs the service.
func NewLifecycleService(repairs lifecycleRepairStore, logger *zap.Logger) *LifecycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleService{repairs: repairs, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Transition moves a repair to the target status if that is a legal edge
// from its current status. The write is guarded by the expected from-status
// so two racing transitions cannot both commit; the loser is rejected and
// the stored status is left unchanged.
func (s *LifecycleService) Transition(ctx context.Context, repairID string, to models.RepairStatusCode, effects TransitionEffects) (*models.RepairRequest, error) {
	if !to.IsValid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", to))
	}

	repair, err := s.repairs.GetByID(ctx, repairID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load repair")
	}

	from := repair.Status
	if !from.CanTransition(to) {
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition,
			fmt.Sprintf("cannot move repair from %s to %s", from, to))
	}

	now := s.now()
	err = s.repairs.TransitionStatus(ctx, repository.TransitionParams{
		ID:             repairID,
		From:           from,
		To:             to,
		DropoffRelayID: effects.DropoffRelayID,
		PickupRelayID:  effects.PickupRelayID,
		UpdatedAt:      now,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost a race: the stored status moved after we read it.
			return nil, appErrors.Clone(appErrors.ErrIllegalTransition,
				fmt.Sprintf("repair left status %s concurrently", from))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist transition")
	}

	s.logger.Info("repair transition",
		zap.String("repair_id", repairID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)

	repair.Status = to
	repair.UpdatedAt = now
	if effects.DropoffRelayID != nil {
		repair.DropoffRelayID = effects.DropoffRelayID
	}
	if effects.PickupRelayID != nil {
		repair.PickupRelayID = effects.PickupRelayID
	}
	return repair, nil
}
