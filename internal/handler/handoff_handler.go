package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fixdrop-app/fixdrop-api/internal/dto"
	"github.com/fixdrop-app/fixdrop-api/internal/models"
	appErrors "github.com/fixdrop-app/fixdrop-api/pkg/errors"
	"github.com/fixdrop-app/fixdrop-api/pkg/response"
)

type handoffService interface {
	Issue(ctx context.Context, req dto.IssueCodeRequest, actor *models.JWTClaims) (*dto.IssueCodeResponse, error)
	Receipt(ctx context.Context, codeID string, actor *models.JWTClaims) ([]byte, error)
	RedeemCode(ctx context.Context, req dto.RedeemCodeRequest, actor *models.JWTClaims) (*dto.RedeemResponse, error)
	RedeemToken(ctx context.Context, req dto.RedeemTokenRequest, actor *models.JWTClaims) (*dto.RedeemResponse, error)
}

// HandoffHandler exposes hand-off code issuance and redemption.
type HandoffHandler struct {
	service handoffService
}

// NewHandoffHandler constructs the handler.
func NewHandoffHandler(service handoffService) *HandoffHandler {
	return &HandoffHandler{service: service}
}

// Issue mints a code and QR token for one repair at one relay point.
func (h *HandoffHandler) Issue(c *gin.Context) {
	var req dto.IssueCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid issue payload"))
		return
	}
	claims := claimsFromContext(c)
	result, err := h.service.Issue(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Receipt streams the printable PDF for an issued code.
func (h *HandoffHandler) Receipt(c *gin.Context) {
	claims := claimsFromContext(c)
	pdf, err := h.service.Receipt(c.Request.Context(), c.Param("codeId"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="handoff-receipt.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// RedeemCode validates a typed code at the calling relay terminal.
func (h *HandoffHandler) RedeemCode(c *gin.Context) {
	var req dto.RedeemCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid redeem payload"))
		return
	}
	claims := claimsFromContext(c)
	result, err := h.service.RedeemCode(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// RedeemToken validates a scanned QR token at the calling relay terminal.
func (h *HandoffHandler) RedeemToken(c *gin.Context) {
	var req dto.RedeemTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid redeem payload"))
		return
	}
	claims := claimsFromContext(c)
	result, err := h.service.RedeemToken(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
