package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fixdrop-app/fixdrop-api/internal/dto"
	"github.com/fixdrop-app/fixdrop-api/internal/models"
	appErrors "github.com/fixdrop-app/fixdrop-api/pkg/errors"
	"github.com/fixdrop-app/fixdrop-api/pkg/response"
)

type repairService interface {
	Submit(ctx context.Context, req dto.CreateRepairRequest, actor *models.JWTClaims) (*models.RepairRequest, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.RepairRequest, error)
	List(ctx context.Context, query dto.RepairQuery, actor *models.JWTClaims) ([]models.RepairRequest, error)
	Diagnose(ctx context.Context, id string, req dto.DiagnosisRequest, actor *models.JWTClaims) (*models.RepairRequest, error)
	Advance(ctx context.Context, id string, to models.RepairStatusCode, actor *models.JWTClaims) (*models.RepairRequest, error)
	MarkReady(ctx context.Context, id string, req dto.ReadyForPickupRequest, actor *models.JWTClaims) (*models.RepairRequest, error)
	Cancel(ctx context.Context, id string, actor *models.JWTClaims) (*models.RepairRequest, error)
}

// RepairHandler exposes REST endpoints for repair requests.
type RepairHandler struct {
	service repairService
}

// NewRepairHandler constructs the handler.
func NewRepairHandler(service repairService) *RepairHandler {
	return &RepairHandler{service: service}
}

// Create submits a new repair request for the calling client.
func (h *RepairHandler) Create(c *gin.Context) {
	var req dto.CreateRepairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid repair payload"))
		return
	}
	claims := claimsFromContext(c)
	repair, err := h.service.Submit(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, repair)
}

// List returns repairs visible to the caller.
func (h *RepairHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	query := dto.RepairQuery{}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.RepairStatusCode, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.RepairStatusCode(part))
		}
		query.Status = statuses
	}
	query.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	query.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	repairs, err := h.service.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, repairs, nil)
}

// Get returns one repair.
func (h *RepairHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	repair, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, repair, nil)
}

// Diagnose records technician findings on a repair.
func (h *RepairHandler) Diagnose(c *gin.Context) {
	var req dto.DiagnosisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid diagnosis payload"))
		return
	}
	claims := claimsFromContext(c)
	repair, err := h.service.Diagnose(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, repair, nil)
}

// Transition proposes a staff-driven lifecycle transition.
func (h *RepairHandler) Transition(c *gin.Context) {
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid transition payload"))
		return
	}
	claims := claimsFromContext(c)
	target := models.RepairStatusCode(strings.ToUpper(string(req.Status)))
	repair, err := h.service.Advance(c.Request.Context(), c.Param("id"), target, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, repair, nil)
}

// Ready marks a repair complete and designates its pickup relay.
func (h *RepairHandler) Ready(c *gin.Context) {
	var req dto.ReadyForPickupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid pickup payload"))
		return
	}
	claims := claimsFromContext(c)
	repair, err := h.service.MarkReady(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, repair, nil)
}

// Cancel closes a repair from any non-terminal state.
func (h *RepairHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	repair, err := h.service.Cancel(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, repair, nil)
}
