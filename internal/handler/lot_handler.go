package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/parkgrid-api/internal/models"
	"github.com/noah-isme/parkgrid-api/internal/service"
	appErrors "github.com/noah-isme/parkgrid-api/pkg/errors"
	"github.com/noah-isme/parkgrid-api/pkg/response"
)

// LotHandler manages lot layout endpoints.
type LotHandler struct {
	service   *service.LotService
	occupancy *service.OccupancyService
}

// NewLotHandler constructs handler.
func NewLotHandler(svc *service.LotService, occupancy *service.OccupancyService) *LotHandler {
	return &LotHandler{service: svc, occupancy: occupancy}
}

// List godoc
// @Summary List parking lots
// @Tags Lots
// @Produce json
// @Param search query string false "Filter by name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /lots [get]
func (h *LotHandler) List(c *gin.Context) {
	var filter models.LotFilter
	filter.Search = c.Query("search")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	lots, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lots, pagination)
}

// Get godoc
// @Summary Get a parking lot
// @Tags Lots
// @Produce json
// @Param id path string true "Lot ID"
// @Success 200 {object} response.Envelope
// @Router /lots/{id} [get]
func (h *LotHandler) Get(c *gin.Context) {
	lot, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lot, nil)
}

// Create godoc
// @Summary Define a parking lot layout
// @Tags Lots
// @Accept json
// @Produce json
// @Param payload body service.CreateLotRequest true "Lot payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /lots [post]
func (h *LotHandler) Create(c *gin.Context) {
	var req service.CreateLotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	lot, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lot)
}

// Resize godoc
// @Summary Edit a lot layout
// @Tags Lots
// @Accept json
// @Produce json
// @Param id path string true "Lot ID"
// @Param payload body service.ResizeLotRequest true "Layout payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /lots/{id} [put]
func (h *LotHandler) Resize(c *gin.Context) {
	var req service.ResizeLotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	lot, err := h.service.Resize(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.occupancy != nil {
		h.occupancy.InvalidateLayout(lot.ID)
	}
	response.JSON(c, http.StatusOK, lot, nil)
}

// Delete godoc
// @Summary Delete a parking lot
// @Tags Lots
// @Produce json
// @Param id path string true "Lot ID"
// @Success 204
// @Router /lots/{id} [delete]
func (h *LotHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	if h.occupancy != nil {
		h.occupancy.InvalidateLayout(c.Param("id"))
	}
	response.NoContent(c)
}
