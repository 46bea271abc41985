package handler_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"bistrobooks/internal/domain"
	"bistrobooks/internal/handler"
	"bistrobooks/mocks"
)

func TestReportHandler_LedgerXLSX_Success(t *testing.T) {
	mockReport := new(mocks.MockReportService)
	h := handler.NewReportHandler(mockReport)

	from := domain.NewDate(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	to := domain.NewDate(time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC))

	mockReport.On("WriteLedgerXLSX", mock.Anything, from, to, mock.Anything).
		Run(func(args mock.Arguments) {
			w := args.Get(3).(io.Writer)
			_, _ = w.Write([]byte("PK\x03\x04 workbook bytes"))
		}).
		Return(nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/reports/ledger.xlsx?from=2025-03-01&to=2025-03-31", nil)

	h.LedgerXLSX(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "ledger_2025-03-01_2025-03-31.xlsx")
	assert.Contains(t, w.Body.String(), "PK")
	mockReport.AssertExpectations(t)
}

func TestReportHandler_LedgerXLSX_MissingRange(t *testing.T) {
	mockReport := new(mocks.MockReportService)
	h := handler.NewReportHandler(mockReport)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/reports/ledger.xlsx?from=2025-03-01", nil)

	h.LedgerXLSX(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockReport.AssertNotCalled(t, "WriteLedgerXLSX", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReportHandler_LedgerXLSX_ReversedRange(t *testing.T) {
	mockReport := new(mocks.MockReportService)
	h := handler.NewReportHandler(mockReport)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/reports/ledger.xlsx?from=2025-03-31&to=2025-03-01", nil)

	h.LedgerXLSX(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportHandler_LedgerXLSX_ServiceError(t *testing.T) {
	mockReport := new(mocks.MockReportService)
	h := handler.NewReportHandler(mockReport)

	mockReport.On("WriteLedgerXLSX", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(assert.AnError)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/reports/ledger.xlsx?from=2025-03-01&to=2025-03-31", nil)

	h.LedgerXLSX(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	// No partial download: the failed render never reached the body.
	assert.NotContains(t, w.Header().Get("Content-Type"), "spreadsheet")
}
