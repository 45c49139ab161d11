package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/parkgrid-api/internal/middleware"
	"github.com/noah-isme/parkgrid-api/internal/service"
	appErrors "github.com/noah-isme/parkgrid-api/pkg/errors"
	"github.com/noah-isme/parkgrid-api/pkg/export"
	"github.com/noah-isme/parkgrid-api/pkg/response"
)

// OccupancyHandler serves derived lot occupancy views and exports.
type OccupancyHandler struct {
	service *service.OccupancyService
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
}

// NewOccupancyHandler constructs handler.
func NewOccupancyHandler(svc *service.OccupancyService) *OccupancyHandler {
	return &OccupancyHandler{service: svc, csv: export.NewCSVExporter(), pdf: export.NewPDFExporter()}
}

// parseAt resolves the optional ?at= query; absent means "now" and keeps
// the read cacheable.
func parseAt(c *gin.Context) (time.Time, bool, error) {
	raw := c.Query("at")
	if raw == "" {
		return time.Now().UTC(), true, nil
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return at.UTC(), false, nil
}

// Get godoc
// @Summary Lot occupancy at a point in time
// @Tags Occupancy
// @Produce json
// @Param id path string true "Lot ID"
// @Param at query string false "RFC3339 timestamp, defaults to now"
// @Success 200 {object} response.Envelope
// @Router /lots/{id}/occupancy [get]
func (h *OccupancyHandler) Get(c *gin.Context) {
	at, cacheable, err := parseAt(c)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "at must be RFC3339"))
		return
	}
	view, hit, err := h.service.OccupancyOf(c.Request.Context(), c.Param("id"), at, cacheable)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, view, nil, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Export lot occupancy as CSV or PDF
// @Tags Occupancy
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Lot ID"
// @Param at query string false "RFC3339 timestamp, defaults to now"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Router /lots/{id}/occupancy/export [get]
func (h *OccupancyHandler) Export(c *gin.Context) {
	at, _, err := parseAt(c)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "at must be RFC3339"))
		return
	}
	dataset, err := h.service.Dataset(c.Request.Context(), c.Param("id"), at)
	if err != nil {
		response.Error(c, err)
		return
	}

	switch c.DefaultQuery("format", "csv") {
	case "pdf":
		payload, err := h.pdf.Render(dataset)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf"))
			return
		}
		c.Header("Content-Disposition", `attachment; filename="occupancy.pdf"`)
		c.Data(http.StatusOK, "application/pdf", payload)
	case "csv":
		payload, err := h.csv.Render(dataset)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv"))
			return
		}
		c.Header("Content-Disposition", `attachment; filename="occupancy.csv"`)
		c.Data(http.StatusOK, "text/csv", payload)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
	}
}
