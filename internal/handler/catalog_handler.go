package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fixdrop-app/fixdrop-api/internal/models"
	"github.com/fixdrop-app/fixdrop-api/pkg/response"
)

type catalogService interface {
	Statuses(ctx context.Context) ([]models.RepairStatus, error)
	RelayPoints(ctx context.Context) ([]models.RelayPoint, error)
}

// CatalogHandler serves the status catalog and relay-point directory.
type CatalogHandler struct {
	service catalogService
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(service catalogService) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// Statuses lists the repair status catalog.
func (h *CatalogHandler) Statuses(c *gin.Context) {
	statuses, err := h.service.Statuses(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, statuses, nil)
}

// RelayPoints lists the active relay-point directory.
func (h *CatalogHandler) RelayPoints(c *gin.Context) {
	relays, err := h.service.RelayPoints(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, relays, nil)
}
