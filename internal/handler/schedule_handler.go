package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/parkgrid-api/internal/models"
	"github.com/noah-isme/parkgrid-api/internal/service"
	appErrors "github.com/noah-isme/parkgrid-api/pkg/errors"
	"github.com/noah-isme/parkgrid-api/pkg/response"
)

// ScheduleHandler manages reservation endpoints.
type ScheduleHandler struct {
	service *service.ScheduleService
	metrics *service.MetricsService
}

// NewScheduleHandler constructs handler.
func NewScheduleHandler(svc *service.ScheduleService, metrics *service.MetricsService) *ScheduleHandler {
	return &ScheduleHandler{service: svc, metrics: metrics}
}

// List godoc
// @Summary List schedules
// @Tags Schedules
// @Produce json
// @Param lotId query string false "Filter by lot"
// @Param spotLabel query string false "Filter by spot label"
// @Param userId query string false "Filter by user"
// @Param status query string false "Filter by lifecycle status"
// @Param date query string false "Filter by date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /schedules [get]
func (h *ScheduleHandler) List(c *gin.Context) {
	var filter models.ScheduleFilter
	filter.LotID = c.Query("lotId")
	filter.SpotLabel = c.Query("spotLabel")
	filter.UserID = c.Query("userId")
	filter.Status = c.Query("status")
	filter.Date = c.Query("date")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	schedules, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedules, pagination)
}

// Propose godoc
// @Summary Propose a booking
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body service.ProposeScheduleRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules [post]
func (h *ScheduleHandler) Propose(c *gin.Context) {
	var req service.ProposeScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	schedule, err := h.service.Propose(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, schedule)
}

// Cancel godoc
// @Summary Cancel a schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedules/{id} [delete]
func (h *ScheduleHandler) Cancel(c *gin.Context) {
	schedule, err := h.service.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// Advance godoc
// @Summary Run the status sweep on demand
// @Tags Schedules
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /schedules/advance [post]
func (h *ScheduleHandler) Advance(c *gin.Context) {
	changed, err := h.service.Advance(c.Request.Context(), time.Now().UTC())
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveSweep(changed)
	}
	response.JSON(c, http.StatusOK, gin.H{"transitions": changed}, nil)
}
