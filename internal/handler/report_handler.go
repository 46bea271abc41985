package handler

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"bistrobooks/internal/domain"
	"bistrobooks/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReportHandler handles ledger export endpoints.
type ReportHandler struct {
	reportService service.ReportService
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(reportService service.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// LedgerXLSX handles GET /api/v1/reports/ledger.xlsx
// @Summary Export the ledger as a spreadsheet
// @Description Exports all records in the date range as an XLSX attachment with revenue/expense totals
// @Tags reports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param from query string true "Earliest transaction date (YYYY-MM-DD)"
// @Param to query string true "Latest transaction date (YYYY-MM-DD)"
// @Success 200 {file} binary "XLSX workbook"
// @Failure 400 {object} ErrorResponseBody "Missing or invalid date range"
// @Router /reports/ledger.xlsx [get]
func (h *ReportHandler) LedgerXLSX(c *gin.Context) {
	from, err := domain.ParseDate(c.Query("from"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_DATE", "from must be YYYY-MM-DD")
		return
	}
	to, err := domain.ParseDate(c.Query("to"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_DATE", "to must be YYYY-MM-DD")
		return
	}
	if to.Before(from.Time) {
		RespondError(c, http.StatusBadRequest, "INVALID_RANGE", "to must not be before from")
		return
	}

	// Render into a buffer first so a mid-write failure can still produce
	// a JSON error instead of a truncated download.
	var buf bytes.Buffer
	if err := h.reportService.WriteLedgerXLSX(c.Request.Context(), from, to, &buf); err != nil {
		HandleError(c, err)
		return
	}

	filename := fmt.Sprintf("ledger_%s_%s.xlsx", from.Format("2006-01-02"), to.Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
