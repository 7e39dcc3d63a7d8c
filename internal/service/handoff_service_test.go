package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fixdrop-app/fixdrop-api/internal/dto"
	"github.com/fixdrop-app/fixdrop-api/internal/models"
	appErrors "github.com/fixdrop-app/fixdrop-api/pkg/errors"
)

type codeStoreStub struct {
	codes map[string]*models.HandoffCode
	seq   int
}

func newCodeStoreStub() *codeStoreStub {
	return &codeStoreStub{codes: make(map[string]*models.HandoffCode)}
}

func (s *codeStoreStub) Create(ctx context.Context, code *models.HandoffCode) error {
	if code.ID == "" {
		s.seq++
		code.ID = fmt.Sprintf("code-%d", s.seq)
	}
	copy := *code
	s.codes[code.ID] = &copy
	return nil
}

func (s *codeStoreStub) GetByID(ctx context.Context, id string) (*models.HandoffCode, error) {
	if rec, ok := s.codes[id]; ok {
		copy := *rec
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *codeStoreStub) FindCurrent(ctx context.Context, code, relayPointID string) (*models.HandoffCode, error) {
	var newest *models.HandoffCode
	for _, rec := range s.codes {
		if rec.Code != code || rec.RelayPointID != relayPointID {
			continue
		}
		if newest == nil || rec.CreatedAt.After(newest.CreatedAt) {
			newest = rec
		}
	}
	if newest == nil {
		return nil, sql.ErrNoRows
	}
	copy := *newest
	return &copy, nil
}

func (s *codeStoreStub) FindForRepair(ctx context.Context, repairID, code string) (*models.HandoffCode, error) {
	var newest *models.HandoffCode
	for _, rec := range s.codes {
		if rec.RepairID != repairID || rec.Code != code {
			continue
		}
		if newest == nil || rec.CreatedAt.After(newest.CreatedAt) {
			newest = rec
		}
	}
	if newest == nil {
		return nil, sql.ErrNoRows
	}
	copy := *newest
	return &copy, nil
}

func (s *codeStoreStub) MarkUsed(ctx context.Context, id string, usedAt time.Time) error {
	rec, ok := s.codes[id]
	if !ok || rec.Used {
		return sql.ErrNoRows
	}
	rec.Used = true
	rec.UsedAt = &usedAt
	return nil
}

type repairStoreStub struct {
	repairs map[string]*models.RepairRequest
}

func newRepairStoreStub(repairs ...*models.RepairRequest) *repairStoreStub {
	s := &repairStoreStub{repairs: make(map[string]*models.RepairRequest)}
	for _, r := range repairs {
		s.repairs[r.ID] = r
	}
	return s
}

func (s *repairStoreStub) GetByID(ctx context.Context, id string) (*models.RepairRequest, error) {
	if r, ok := s.repairs[id]; ok {
		copy := *r
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

type relayStoreStub struct {
	relays map[string]*models.RelayPoint
}

func newRelayStoreStub(relays ...*models.RelayPoint) *relayStoreStub {
	s := &relayStoreStub{relays: make(map[string]*models.RelayPoint)}
	for _, r := range relays {
		s.relays[r.ID] = r
	}
	return s
}

func (s *relayStoreStub) GetByID(ctx context.Context, id string) (*models.RelayPoint, error) {
	if r, ok := s.relays[id]; ok {
		copy := *r
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

type lifecycleCall struct {
	repairID string
	to       models.RepairStatusCode
	effects  TransitionEffects
}

type lifecycleStub struct {
	repairs *repairStoreStub
	calls   []lifecycleCall
}

func (s *lifecycleStub) Transition(ctx context.Context, repairID string, to models.RepairStatusCode, effects TransitionEffects) (*models.RepairRequest, error) {
	s.calls = append(s.calls, lifecycleCall{repairID: repairID, to: to, effects: effects})
	repair, ok := s.repairs.repairs[repairID]
	if !ok {
		return nil, appErrors.ErrNotFound
	}
	if !repair.Status.CanTransition(to) {
		return nil, appErrors.ErrIllegalTransition
	}
	repair.Status = to
	if effects.DropoffRelayID != nil {
		repair.DropoffRelayID = effects.DropoffRelayID
	}
	if effects.PickupRelayID != nil {
		repair.PickupRelayID = effects.PickupRelayID
	}
	copy := *repair
	return &copy, nil
}

type notifierStub struct {
	recipients []string
	titles     []string
}

func (s *notifierStub) Notify(recipientID, title, body string, typ models.NotificationType, relatedID *string) {
	s.recipients = append(s.recipients, recipientID)
	s.titles = append(s.titles, title)
}

type metricsStub struct {
	paths    []string
	outcomes []string
}

func (s *metricsStub) RecordHandoffValidation(path, outcome string) {
	s.paths = append(s.paths, path)
	s.outcomes = append(s.outcomes, outcome)
}

type handoffFixture struct {
	svc      *HandoffService
	codes    *codeStoreStub
	repairs  *repairStoreStub
	relays   *relayStoreStub
	life     *lifecycleStub
	notifier *notifierStub
	metrics  *metricsStub
	codec    *TokenCodec
}

func newHandoffFixture(t *testing.T, repairs ...*models.RepairRequest) *handoffFixture {
	t.Helper()

	codec, err := NewTokenCodec("test-secret")
	require.NoError(t, err)

	codeStore := newCodeStoreStub()
	repairStore := newRepairStoreStub(repairs...)
	relayStore := newRelayStoreStub(
		&models.RelayPoint{ID: "relay-1", Name: "Corner Shop", Active: true},
		&models.RelayPoint{ID: "relay-2", Name: "Mall Kiosk", Active: true},
		&models.RelayPoint{ID: "relay-closed", Name: "Closed", Active: false},
	)
	life := &lifecycleStub{repairs: repairStore}
	notifier := &notifierStub{}
	metrics := &metricsStub{}

	svc := NewHandoffService(codeStore, repairStore, relayStore, codec, life, notifier, metrics, nil)

	return &handoffFixture{
		svc:      svc,
		codes:    codeStore,
		repairs:  repairStore,
		relays:   relayStore,
		life:     life,
		notifier: notifier,
		metrics:  metrics,
		codec:    codec,
	}
}

func relayClaims(relayID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: "staff-1", Role: models.RoleRelay, RelayPointID: &relayID}
}

func clientClaims(userID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: models.RoleClient}
}

func submittedRepair() *models.RepairRequest {
	return &models.RepairRequest{
		ID:          "repair-1",
		ClientID:    "client-1",
		DeviceType:  "laptop",
		DeviceBrand: "Lenovo",
		DeviceModel: "T14",
		Problem:     "does not boot",
		Status:      models.StatusSubmitted,
	}
}

func requireErrCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, appErrors.FromError(err).Code)
}

func TestHandoffIssue(t *testing.T) {
	f := newHandoffFixture(t, submittedRepair())

	resp, err := f.svc.Issue(context.Background(), dto.IssueCodeRequest{
		RepairID:     "repair-1",
		RelayPointID: "relay-1",
	}, clientClaims("client-1"))
	require.NoError(t, err)

	require.Len(t, resp.Code, models.CodeLength)
	for _, ch := range resp.Code {
		require.Contains(t, models.CodeAlphabet, string(ch))
	}

	payload, err := f.codec.Decode(resp.Token)
	require.NoError(t, err)
	require.Equal(t, "repair-1", payload.RepairID)
	require.Equal(t, "relay-1", payload.RelayPointID)
	require.Equal(t, "client-1", payload.ClientID)
	require.Equal(t, resp.Code, payload.Code)

	rec, err := f.codes.GetByID(context.Background(), resp.CodeID)
	require.NoError(t, err)
	require.False(t, rec.Used)
	require.Equal(t, rec.CreatedAt.Add(models.CodeExpiry), resp.ExpiresAt)
}

func TestHandoffIssueRejections(t *testing.T) {
	f := newHandoffFixture(t, submittedRepair())

	_, err := f.svc.Issue(context.Background(), dto.IssueCodeRequest{
		RepairID: "repair-1", RelayPointID: "relay-1",
	}, clientClaims("client-2"))
	requireErrCode(t, err, appErrors.ErrForbidden.Code)

	_, err = f.svc.Issue(context.Background(), dto.IssueCodeRequest{
		RepairID: "missing", RelayPointID: "relay-1",
	}, clientClaims("client-1"))
	requireErrCode(t, err, appErrors.ErrNotFound.Code)

	_, err = f.svc.Issue(context.Background(), dto.IssueCodeRequest{
		RepairID: "repair-1", RelayPointID: "relay-closed",
	}, clientClaims("client-1"))
	requireErrCode(t, err, appErrors.ErrValidation.Code)
}

func TestHandoffIssueKeepsEarlierCodesLive(t *testing.T) {
	f := newHandoffFixture(t, submittedRepair())

	first, err := f.svc.Issue(context.Background(), dto.IssueCodeRequest{
		RepairID: "repair-1", RelayPointID: "relay-1",
	}, clientClaims("client-1"))
	require.NoError(t, err)

	_, err = f.svc.Issue(context.Background(), dto.IssueCodeRequest{
		RepairID: "repair-1", RelayPointID: "relay-1",
	}, clientClaims("client-1"))
	require.NoError(t, err)

	rec, err := f.codes.GetByID(context.Background(), first.CodeID)
	require.NoError(t, err)
	require.False(t, rec.Used)
}

func TestHandoffRedeemCodeDropoff(t *testing.T) {
	f := newHandoffFixture(t, submittedRepair())

	issued, err := f.svc.Issue(context.Background(), dto.IssueCodeRequest{
		RepairID: "repair-1", RelayPointID: "relay-1",
	}, clientClaims("client-1"))
	require.NoError(t, err)

	resp, err := f.svc.RedeemCode(context.Background(), dto.RedeemCodeRequest{
		Code: "  " + strings.ToLower(issued.Code) + " ",
	}, relayClaims("relay-1"))
	require.NoError(t, err)
	require.Equal(t, "repair-1", resp.RepairID)
	require.Equal(t, string(models.StatusReceived), resp.Status)
	require.Empty(t, resp.ClientID)

	require.Len(t, f.life.calls, 1)
	require.Equal(t, models.StatusReceived, f.life.calls[0].to)
	require.NotNil(t, f.life.calls[0].effects.DropoffRelayID)
	require.Equal(t, "relay-1", *f.life.calls[0].effects.DropoffRelayID)

	rec, err := f.codes.GetByID(context.Background(), issued.CodeID)
	require.NoError(t, err)
	require.True(t, rec.Used)
	require.NotNil(t, rec.UsedAt)

	require.Equal(t, []string{"client-1"}, f.notifier.recipients)
	require.Equal(t, []string{"manual"}, f.metrics.paths)
	require.Equal(t, []string{"success"}, f.metrics.outcomes)
}

func TestHandoffRedeemCodePickup(t *testing.T) {
	tech := "tech-1"
	repair := submittedRepair()
	repair.Status = models.StatusReadyForPickup
	repair.TechnicianID = &tech
	f := newHandoffFixture(t, repair)

	issued, err := f.svc.Issue(context.Background(), dto.IssueCodeRequest{
		RepairID: "repair-1", RelayPointID: "relay-2",
	}, clientClaims("client-1"))
	require.NoError(t, err)

	resp, err := f.svc.RedeemCode(context.Background(), dto.RedeemCodeRequest{Code: issued.Code}, relayClaims("relay-2"))
	require.NoError(t, err)
	require.Equal(t, string(models.StatusDelivered), resp.Status)

	// client note plus technician note
	require.Equal(t, []string{"client-1", "tech-1"}, f.notifier.recipients)
}

func TestHandoffRedeemCodeSecondUse(t *testing.T) {
	f := newHandoffFixture(t, submittedRepair())

	issued, err := f.svc.Issue(context.Background(), dto.IssueCodeRequest{
		RepairID: "repair-1", RelayPointID: "relay-1",
	}, clientClaims("client-1"))
	require.NoError(t, err)

	_, err = f.svc.RedeemCode(context.Background(), dto.RedeemCodeRequest{Code: issued.Code}, relayClaims("relay-1"))
	require.NoError(t, err)

	_, err = f.svc.RedeemCode(context.Background(), dto.RedeemCodeRequest{Code: issued.Code}, relayClaims("relay-1"))
	requireErrCode(t, err, appErrors.ErrCodeAlreadyUsed.Code)
	require.Equal(t, []string{"success", "ALREADY_USED"}, f.metrics.outcomes)
}

func TestHandoffRedeemCodeUnknown(t *testing.T) {
	f := newHandoffFixture(t, submittedRepair())

	_, err := f.svc.RedeemCode(context.Background(), dto.RedeemCodeRequest{Code: "ZZZZZZ"}, relayClaims("relay-1"))
	requireErrCode(t, err, appErrors.ErrCodeNotFound.Code)

	_, err = f.svc.RedeemCode(context.Background(), dto.RedeemCodeRequest{Code: "AB"}, relayClaims("relay-1"))
	requireErrCode(t, err, appErrors.ErrCodeNotFound.Code)
}

func TestHandoffRedeemCodeWrongRelay(t *testing.T) {
	f := newHandoffFixture(t, submittedRepair())

	issued, err := f.svc.Issue(context.Background(), dto.IssueCodeRequest{
		RepairID: "repair-1", RelayPointID: "relay-1",
	}, clientClaims("client-1"))
	require.NoError(t, err)

	// Typed at the wrong relay point the code simply does not resolve.
	_, err = f.svc.RedeemCode(context.Background(), dto.RedeemCodeRequest{Code: issued.Code}, relayClaims("relay-2"))
	requireErrCode(t, err, appErrors.ErrCodeNotFound.Code)

	rec, err := f.codes.GetByID(context.Background(), issued.CodeID)
	require.NoError(t, err)
	require.False(t, rec.Used)
}

func TestHandoffRedeemCodeExpiryBoundary(t *testing.T) {
	f := newHandoffFixture(t, submittedRepair())

	issued, err := f.svc.Issue(context.Background(), dto.IssueCodeRequest{
		RepairID: "repair-1", RelayPointID: "relay-1",
	}, clientClaims("client-1"))
	require.NoError(t, err)

	rec, err := f.codes.GetByID(context.Background(), issued.CodeID)
	require.NoError(t, err)

	// One past the window is rejected, exactly at the window is still valid.
	f.svc.now = func() time.Time { return rec.ExpiresAt().Add(time.Millisecond) }
	_, err = f.svc.RedeemCode(context.Background(), dto.RedeemCodeRequest{Code: issued.Code}, relayClaims("relay-1"))
	requireErrCode(t, err, appErrors.ErrCodeExpired.Code)

	f.svc.now = func() time.Time { return rec.ExpiresAt() }
	_, err = f.svc.RedeemCode(context.Background(), dto.RedeemCodeRequest{Code: issued.Code}, relayClaims("relay-1"))
	require.NoError(t, err)
}

func TestHandoffRedeemCodeExpiredWinsOverUsed(t *testing.T) {
	f := newHandoffFixture(t, submittedRepair())

	issued, err := f.svc.Issue(context.Background(), dto.IssueCodeRequest{
		RepairID: "repair-1", RelayPointID: "relay-1",
	}, clientClaims("client-1"))
	require.NoError(t, err)

	_, err = f.svc.RedeemCode(context.Background(), dto.RedeemCodeRequest{Code: issued.Code}, relayClaims("relay-1"))
	require.NoError(t, err)

	rec, err := f.codes.GetByID(context.Background(), issued.CodeID)
	require.NoError(t, err)
	f.svc.now = func() time.Time { return rec.ExpiresAt().Add(time.Hour) }

	_, err = f.svc.RedeemCode(context.Background(), dto.RedeemCodeRequest{Code: issued.Code}, relayClaims("relay-1"))
	requireErrCode(t, err, appErrors.ErrCodeExpired.Code)
}

func TestHandoffRedeemCodeNotAwaitingHandoff(t *testing.T) {
	repair := submittedRepair()
	repair.Status = models.StatusInRepair
	f := newHandoffFixture(t, repair)

	issued, err := f.svc.Issue(context.Background(), dto.IssueCodeRequest{
		RepairID: "repair-1", RelayPointID: "relay-1",
	}, clientClaims("client-1"))
	require.NoError(t, err)

	_, err = f.svc.RedeemCode(context.Background(), dto.RedeemCodeRequest{Code: issued.Code}, relayClaims("relay-1"))
	requireErrCode(t, err, appErrors.ErrIllegalTransition.Code)
	require.Empty(t, f.life.calls)

	// the rejection must not burn the code
	rec, err := f.codes.GetByID(context.Background(), issued.CodeID)
	require.NoError(t, err)
	require.False(t, rec.Used)
}

func TestHandoffRedeemCodeUnboundTerminal(t *testing.T) {
	f := newHandoffFixture(t, submittedRepair())

	claims := &models.JWTClaims{UserID: "staff-1", Role: models.RoleRelay}
	_, err := f.svc.RedeemCode(context.Background(), dto.RedeemCodeRequest{Code: "AB23CD"}, claims)
	requireErrCode(t, err, appErrors.ErrForbidden.Code)
}

func TestHandoffRedeemToken(t *testing.T) {
	f := newHandoffFixture(t, submittedRepair())

	issued, err := f.svc.Issue(context.Background(), dto.IssueCodeRequest{
		RepairID: "repair-1", RelayPointID: "relay-1",
	}, clientClaims("client-1"))
	require.NoError(t, err)

	resp, err := f.svc.RedeemToken(context.Background(), dto.RedeemTokenRequest{Token: issued.Token}, relayClaims("relay-1"))
	require.NoError(t, err)
	require.Equal(t, "repair-1", resp.RepairID)
	require.Equal(t, "client-1", resp.ClientID)
	require.Equal(t, string(models.StatusReceived), resp.Status)

	require.Equal(t, []string{"scanned"}, f.metrics.paths)
	require.Equal(t, []string{"success"}, f.metrics.outcomes)
}

func TestHandoffRedeemTokenMalformed(t *testing.T) {
	f := newHandoffFixture(t, submittedRepair())

	_, err := f.svc.RedeemToken(context.Background(), dto.RedeemTokenRequest{Token: "garbage!!!"}, relayClaims("relay-1"))
	requireErrCode(t, err, appErrors.ErrMalformedToken.Code)
}

func TestHandoffRedeemTokenRelayMismatch(t *testing.T) {
	f := newHandoffFixture(t, submittedRepair())

	issued, err := f.svc.Issue(context.Background(), dto.IssueCodeRequest{
		RepairID: "repair-1", RelayPointID: "relay-1",
	}, clientClaims("client-1"))
	require.NoError(t, err)

	_, err = f.svc.RedeemToken(context.Background(), dto.RedeemTokenRequest{Token: issued.Token}, relayClaims("relay-2"))
	requireErrCode(t, err, appErrors.ErrRelayMismatch.Code)

	rec, err := f.codes.GetByID(context.Background(), issued.CodeID)
	require.NoError(t, err)
	require.False(t, rec.Used)
}

func TestHandoffRedeemTokenMismatchBeforeExpiry(t *testing.T) {
	f := newHandoffFixture(t, submittedRepair())

	issued, err := f.svc.Issue(context.Background(), dto.IssueCodeRequest{
		RepairID: "repair-1", RelayPointID: "relay-1",
	}, clientClaims("client-1"))
	require.NoError(t, err)

	// Both expired and misdirected: relay binding is checked first.
	f.svc.now = func() time.Time { return time.Now().UTC().Add(models.CodeExpiry + time.Hour) }
	_, err = f.svc.RedeemToken(context.Background(), dto.RedeemTokenRequest{Token: issued.Token}, relayClaims("relay-2"))
	requireErrCode(t, err, appErrors.ErrRelayMismatch.Code)
}

func TestHandoffRedeemTokenExpired(t *testing.T) {
	f := newHandoffFixture(t, submittedRepair())

	issued, err := f.svc.Issue(context.Background(), dto.IssueCodeRequest{
		RepairID: "repair-1", RelayPointID: "relay-1",
	}, clientClaims("client-1"))
	require.NoError(t, err)

	f.svc.now = func() time.Time { return time.Now().UTC().Add(models.CodeExpiry + time.Millisecond) }
	_, err = f.svc.RedeemToken(context.Background(), dto.RedeemTokenRequest{Token: issued.Token}, relayClaims("relay-1"))
	requireErrCode(t, err, appErrors.ErrCodeExpired.Code)
}

func TestHandoffRedeemTokenWithoutBackingRecord(t *testing.T) {
	f := newHandoffFixture(t, submittedRepair())

	token, err := f.codec.Encode(models.TokenPayload{
		RepairID:     "repair-1",
		RelayPointID: "relay-1",
		ClientID:     "client-1",
		IssuedAt:     time.Now().UnixMilli(),
		Code:         "AB23CD",
	})
	require.NoError(t, err)

	_, err = f.svc.RedeemToken(context.Background(), dto.RedeemTokenRequest{Token: token}, relayClaims("relay-1"))
	requireErrCode(t, err, appErrors.ErrCodeNotFound.Code)
}

func TestHandoffRedeemTokenAlreadyUsed(t *testing.T) {
	f := newHandoffFixture(t, submittedRepair())

	issued, err := f.svc.Issue(context.Background(), dto.IssueCodeRequest{
		RepairID: "repair-1", RelayPointID: "relay-1",
	}, clientClaims("client-1"))
	require.NoError(t, err)

	_, err = f.svc.RedeemToken(context.Background(), dto.RedeemTokenRequest{Token: issued.Token}, relayClaims("relay-1"))
	require.NoError(t, err)

	_, err = f.svc.RedeemToken(context.Background(), dto.RedeemTokenRequest{Token: issued.Token}, relayClaims("relay-1"))
	requireErrCode(t, err, appErrors.ErrCodeAlreadyUsed.Code)
}

func TestHandoffReceipt(t *testing.T) {
	f := newHandoffFixture(t, submittedRepair())

	issued, err := f.svc.Issue(context.Background(), dto.IssueCodeRequest{
		RepairID: "repair-1", RelayPointID: "relay-1",
	}, clientClaims("client-1"))
	require.NoError(t, err)

	pdf, err := f.svc.Receipt(context.Background(), issued.CodeID, relayClaims("relay-1"))
	require.NoError(t, err)
	require.True(t, len(pdf) > 0)
	require.Equal(t, "%PDF", string(pdf[:4]))

	_, err = f.svc.Receipt(context.Background(), issued.CodeID, relayClaims("relay-2"))
	requireErrCode(t, err, appErrors.ErrForbidden.Code)

	_, err = f.svc.Receipt(context.Background(), "missing", relayClaims("relay-1"))
	requireErrCode(t, err, appErrors.ErrNotFound.Code)
}
