package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/parkgrid-api/internal/models"
	"github.com/noah-isme/parkgrid-api/internal/service"
	appErrors "github.com/noah-isme/parkgrid-api/pkg/errors"
	"github.com/noah-isme/parkgrid-api/pkg/response"
)

// SpotHandler manages spot registry endpoints.
type SpotHandler struct {
	service *service.SpotService
}

// NewSpotHandler constructs handler.
func NewSpotHandler(svc *service.SpotService) *SpotHandler {
	return &SpotHandler{service: svc}
}

type spotStatusRequest struct {
	Status models.SpotStatus `json:"status" binding:"required"`
}

// List godoc
// @Summary List spots of a lot
// @Tags Spots
// @Produce json
// @Param id path string true "Lot ID"
// @Success 200 {object} response.Envelope
// @Router /lots/{id}/spots [get]
func (h *SpotHandler) List(c *gin.Context) {
	spots, err := h.service.ListByLot(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, spots, nil)
}

// Get godoc
// @Summary Get a spot by label
// @Tags Spots
// @Produce json
// @Param id path string true "Lot ID"
// @Param label path string true "Spot label"
// @Success 200 {object} response.Envelope
// @Router /lots/{id}/spots/{label} [get]
func (h *SpotHandler) Get(c *gin.Context) {
	spot, err := h.service.Lookup(c.Request.Context(), c.Param("id"), c.Param("label"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, spot, nil)
}

// SetStatus godoc
// @Summary Apply a manual status override
// @Tags Spots
// @Accept json
// @Produce json
// @Param id path string true "Lot ID"
// @Param label path string true "Spot label"
// @Param payload body spotStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /lots/{id}/spots/{label}/status [post]
func (h *SpotHandler) SetStatus(c *gin.Context) {
	var req spotStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.SetManualStatus(c.Request.Context(), c.Param("id"), c.Param("label"), req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
