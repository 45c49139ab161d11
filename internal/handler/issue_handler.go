package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/parkgrid-api/internal/service"
	appErrors "github.com/noah-isme/parkgrid-api/pkg/errors"
	"github.com/noah-isme/parkgrid-api/pkg/response"
)

// IssueHandler exposes the thin trouble-ticket read/create path.
type IssueHandler struct {
	service *service.IssueService
}

// NewIssueHandler constructs handler.
func NewIssueHandler(svc *service.IssueService) *IssueHandler {
	return &IssueHandler{service: svc}
}

// ListByLot godoc
// @Summary List issues for a lot
// @Tags Issues
// @Produce json
// @Param id path string true "Lot ID"
// @Param spotLabel query string false "Filter by spot label"
// @Success 200 {object} response.Envelope
// @Router /lots/{id}/issues [get]
func (h *IssueHandler) ListByLot(c *gin.Context) {
	issues, err := h.service.ListByLot(c.Request.Context(), c.Param("id"), c.Query("spotLabel"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issues, nil)
}

// Create godoc
// @Summary File an issue against a spot
// @Tags Issues
// @Accept json
// @Produce json
// @Param payload body service.CreateIssueRequest true "Issue payload"
// @Success 201 {object} response.Envelope
// @Router /issues [post]
func (h *IssueHandler) Create(c *gin.Context) {
	var req service.CreateIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	issue, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, issue)
}
