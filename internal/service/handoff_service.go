package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fixdrop-app/fixdrop-api/internal/dto"
	"github.com/fixdrop-app/fixdrop-api/internal/models"
	appErrors "github.com/fixdrop-app/fixdrop-api/pkg/errors"
	"github.com/fixdrop-app/fixdrop-api/pkg/export"
)

type handoffCodeStore interface {
	Create(ctx context.Context, code *models.HandoffCode) error
	GetByID(ctx context.Context, id string) (*models.HandoffCode, error)
	FindCurrent(ctx context.Context, code, relayPointID string) (*models.HandoffCode, error)
	FindForRepair(ctx context.Context, repairID, code string) (*models.HandoffCode, error)
	MarkUsed(ctx context.Context, id string, usedAt time.Time) error
}

type handoffRepairStore interface {
	GetByID(ctx context.Context, id string) (*models.RepairRequest, error)
}

type handoffRelayStore interface {
	GetByID(ctx context.Context, id string) (*models.RelayPoint, error)
}

type handoffLifecycle interface {
	Transition(ctx context.Context, repairID string, to models.RepairStatusCode, effects TransitionEffects) (*models.RepairRequest, error)
}

type handoffNotifier interface {
	Notify(recipientID, title, body string, typ models.NotificationType, relatedID *string)
}

type handoffMetrics interface {
	RecordHandoffValidation(path, outcome string)
}

const (
	handoffPathManual  = "manual"
	handoffPathScanned = "scanned"
)

// HandoffService issues hand-off codes and gates their redemption. The
// validation checks are pure reads; consumption (the used flag) and the
// lifecycle transition are the two effects that follow a positive decision,
// in that order, so an interrupted redemption leaves the code re-checkable.
type HandoffService struct {
	codes     handoffCodeStore
	repairs   handoffRepairStore
	relays    handoffRelayStore
	codec     *TokenCodec
	lifecycle handoffLifecycle
	notifier  handoffNotifier
	metrics   handoffMetrics
	receipts  *export.ReceiptRenderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewHandoffService constructs the service. The metrics recorder may be nil.
func NewHandoffService(
	codes handoffCodeStore,
	repairs handoffRepairStore,
	relays handoffRelayStore,
	codec *TokenCodec,
	lifecycle handoffLifecycle,
	notifier handoffNotifier,
	metrics handoffMetrics,
	logger *zap.Logger,
) *HandoffService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HandoffService{
		codes:     codes,
		repairs:   repairs,
		relays:    relays,
		codec:     codec,
		lifecycle: lifecycle,
		notifier:  notifier,
		metrics:   metrics,
		receipts:  export.NewReceiptRenderer(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Issue mints a fresh code and encrypted token for one repair at one relay
// point. Each call produces an independent artifact; earlier unused codes
// stay live and the validator remains the sole enforcement point.
func (s *HandoffService) Issue(ctx context.Context, req dto.IssueCodeRequest, actor *models.JWTClaims) (*dto.IssueCodeResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	repair, err := s.repairs.GetByID(ctx, req.RepairID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "repair not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load repair")
	}
	if actor.Role == models.RoleClient && repair.ClientID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}

	relay, err := s.relays.GetByID(ctx, req.RelayPointID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "relay point not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load relay point")
	}
	if !relay.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "relay point is not active")
	}

	code, err := generateCode()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate code")
	}

	now := s.now()
	token, err := s.codec.Encode(models.TokenPayload{
		RepairID:     repair.ID,
		RelayPointID: relay.ID,
		ClientID:     repair.ClientID,
		IssuedAt:     now.UnixMilli(),
		Code:         code,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode token")
	}

	rec := &models.HandoffCode{
		RepairID:     repair.ID,
		RelayPointID: relay.ID,
		Code:         code,
		Used:         false,
		CreatedAt:    now,
	}
	if err := s.codes.Create(ctx, rec); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist hand-off code")
	}

	s.logger.Info("handoff code issued",
		zap.String("repair_id", repair.ID),
		zap.String("relay_point_id", relay.ID),
		zap.String("code_id", rec.ID),
	)

	return &dto.IssueCodeResponse{
		CodeID:    rec.ID,
		Code:      code,
		Token:     token,
		ExpiresAt: rec.ExpiresAt(),
	}, nil
}

// Receipt renders the printable PDF for an issued code.
func (s *HandoffService) Receipt(ctx context.Context, codeID string, actor *models.JWTClaims) ([]byte, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	rec, err := s.codes.GetByID(ctx, codeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "hand-off code not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load hand-off code")
	}
	if actor.Role == models.RoleRelay && (actor.RelayPointID == nil || *actor.RelayPointID != rec.RelayPointID) {
		return nil, appErrors.ErrForbidden
	}

	repair, err := s.repairs.GetByID(ctx, rec.RepairID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load repair")
	}
	relay, err := s.relays.GetByID(ctx, rec.RelayPointID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load relay point")
	}

	pdf, err := s.receipts.Render(export.ReceiptData{
		RepairID:    repair.ID,
		Code:        rec.Code,
		RelayName:   relay.Name,
		DeviceLabel: repair.DeviceLabel(),
		Problem:     repair.Problem,
		IssuedAt:    rec.CreatedAt,
		ExpiresAt:   rec.ExpiresAt(),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	return pdf, nil
}

// RedeemCode is the manual path: staff type the 6-character code at a relay
// terminal whose relay point comes from the authenticated claims.
func (s *HandoffService) RedeemCode(ctx context.Context, req dto.RedeemCodeRequest, actor *models.JWTClaims) (*dto.RedeemResponse, error) {
	relayID, err := actingRelay(actor)
	if err != nil {
		return nil, err
	}

	rec, err := s.validateManual(ctx, req.Code, relayID)
	if err != nil {
		s.recordOutcome(handoffPathManual, err)
		return nil, err
	}

	resp, err := s.redeem(ctx, rec, "")
	s.recordOutcome(handoffPathManual, err)
	return resp, err
}

// RedeemToken is the scanned path: the opaque QR token is decoded and
// checked against the same policy, then against its backing record.
func (s *HandoffService) RedeemToken(ctx context.Context, req dto.RedeemTokenRequest, actor *models.JWTClaims) (*dto.RedeemResponse, error) {
	relayID, err := actingRelay(actor)
	if err != nil {
		return nil, err
	}

	rec, clientID, err := s.validateScanned(ctx, req.Token, relayID)
	if err != nil {
		s.recordOutcome(handoffPathScanned, err)
		return nil, err
	}

	resp, err := s.redeem(ctx, rec, clientID)
	s.recordOutcome(handoffPathScanned, err)
	return resp, err
}

// validateManual is the read-only decision for a typed code. Relay binding
// is enforced by the (code, relay) lookup itself, so a code issued for
// another relay point is indistinguishable from a nonexistent one at this
// terminal and reports CODE_NOT_FOUND, where the scanned path can read the
// intended relay out of the token and reports RELAY_MISMATCH.
func (s *HandoffService) validateManual(ctx context.Context, code, relayID string) (*models.HandoffCode, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != models.CodeLength {
		return nil, appErrors.ErrCodeNotFound
	}

	rec, err := s.codes.FindCurrent(ctx, code, relayID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrCodeNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up code")
	}
	if err := s.checkRecord(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// validateScanned is the read-only decision for a scanned token, evaluated
// in policy order: decode, relay binding, expiry, backing record existence,
// single use.
func (s *HandoffService) validateScanned(ctx context.Context, token, relayID string) (*models.HandoffCode, string, error) {
	payload, err := s.codec.Decode(token)
	if err != nil {
		return nil, "", err
	}

	if payload.RelayPointID != relayID {
		return nil, "", appErrors.ErrRelayMismatch
	}

	if s.now().After(payload.IssuedTime().Add(models.CodeExpiry)) {
		return nil, "", appErrors.ErrCodeExpired
	}

	rec, err := s.codes.FindForRepair(ctx, payload.RepairID, payload.Code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.ErrCodeNotFound
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up code")
	}
	if rec.RelayPointID != payload.RelayPointID {
		return nil, "", appErrors.ErrCodeNotFound
	}

	if rec.Used {
		return nil, "", appErrors.ErrCodeAlreadyUsed
	}
	return rec, payload.ClientID, nil
}

// checkRecord applies the expiry and single-use checks to a backing record.
// Expiry wins over the used flag so a stale consumed code reports EXPIRED.
func (s *HandoffService) checkRecord(rec *models.HandoffCode) error {
	if s.now().After(rec.ExpiresAt()) {
		return appErrors.ErrCodeExpired
	}
	if rec.Used {
		return appErrors.ErrCodeAlreadyUsed
	}
	return nil
}

// redeem decides the transition implied by the repair's current status, then
// performs the two effects that follow a positive decision: consume the code
// with a conditional update, then drive the lifecycle transition. A repair
// not awaiting a hand-off is rejected before consumption, so the code stays
// live. Two terminals racing on one code serialize on the used=false guard;
// the loser gets ALREADY_USED.
func (s *HandoffService) redeem(ctx context.Context, rec *models.HandoffCode, clientID string) (*dto.RedeemResponse, error) {
	repair, err := s.repairs.GetByID(ctx, rec.RepairID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load repair")
	}

	var (
		target  models.RepairStatusCode
		effects TransitionEffects
		title   string
		body    string
	)
	switch repair.Status {
	case models.StatusSubmitted:
		target = models.StatusReceived
		effects.DropoffRelayID = &rec.RelayPointID
		title = "Device received"
		body = fmt.Sprintf("Your %s was received at the relay point and is on its way to a technician.", repair.DeviceLabel())
	case models.StatusReadyForPickup:
		target = models.StatusDelivered
		title = "Device delivered"
		body = fmt.Sprintf("Your repaired %s was collected. Thanks for using the service.", repair.DeviceLabel())
	default:
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition,
			fmt.Sprintf("repair in status %s is not awaiting a hand-off", repair.Status))
	}

	if err := s.codes.MarkUsed(ctx, rec.ID, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrCodeAlreadyUsed
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume code")
	}

	updated, err := s.lifecycle.Transition(ctx, repair.ID, target, effects)
	if err != nil {
		return nil, err
	}

	related := &updated.ID
	s.notifier.Notify(updated.ClientID, title, body, models.NotificationHandoff, related)
	if updated.TechnicianID != nil {
		s.notifier.Notify(*updated.TechnicianID, "Hand-off completed",
			fmt.Sprintf("Repair %s moved to %s.", updated.ID, updated.Status),
			models.NotificationHandoff, related)
	}

	// ClientID is populated on the scanned path only, where it came from
	// the decoded token.
	return &dto.RedeemResponse{
		RepairID: updated.ID,
		ClientID: clientID,
		Status:   string(updated.Status),
	}, nil
}

func (s *HandoffService) recordOutcome(path string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = appErrors.FromError(err).Code
	}
	s.metrics.RecordHandoffValidation(path, outcome)
}

func actingRelay(actor *models.JWTClaims) (string, error) {
	if actor == nil {
		return "", appErrors.ErrUnauthorized
	}
	if actor.RelayPointID == nil || *actor.RelayPointID == "" {
		return "", appErrors.Clone(appErrors.ErrForbidden, "terminal is not bound to a relay point")
	}
	return *actor.RelayPointID, nil
}

// generateCode draws 6 characters uniformly from the unambiguous alphabet
// using crypto/rand.
func generateCode() (string, error) {
	max := big.NewInt(int64(len(models.CodeAlphabet)))
	buf := make([]byte, models.CodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = models.CodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
