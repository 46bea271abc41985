package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bistrobooks/internal/domain"
	"bistrobooks/internal/port"
	"bistrobooks/internal/service"
)

// TransactionHandler handles transaction ingestion and query endpoints.
type TransactionHandler struct {
	txnService    service.TransactionService
	maxImageBytes int64
}

// NewTransactionHandler creates a new TransactionHandler. maxImageSizeMB
// caps uploaded receipt images.
func NewTransactionHandler(txnService service.TransactionService, maxImageSizeMB int64) *TransactionHandler {
	return &TransactionHandler{
		txnService:    txnService,
		maxImageBytes: maxImageSizeMB << 20,
	}
}

// ProcessText handles POST /api/v1/transactions/text
// @Summary Record a transaction from a text description
// @Description Runs the inference pipeline on a free-text description (e.g. "昨天 UberEats 收入八千二") and persists the structured record
// @Tags transactions
// @Accept json
// @Produce json
// @Param body body TextTransactionRequest true "Transaction description"
// @Success 201 {object} Response{data=domain.TransactionRecord} "Record created"
// @Failure 400 {object} ErrorResponseBody "Empty or invalid input"
// @Failure 422 {object} ErrorResponseBody "Model output failed validation or type is ambiguous"
// @Failure 502 {object} ErrorResponseBody "Model output not decodable"
// @Failure 503 {object} ErrorResponseBody "Model backend unavailable"
// @Failure 504 {object} ErrorResponseBody "Model backend timed out"
// @Router /transactions/text [post]
func (h *TransactionHandler) ProcessText(c *gin.Context) {
	var req TextTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_BODY", "text field is required")
		return
	}

	rec, err := h.txnService.ProcessText(c.Request.Context(), &service.ProcessTextInput{
		Text:   req.Text,
		Locale: req.Locale,
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondCreated(c, rec)
}

// ProcessReceipt handles POST /api/v1/transactions/receipt
// @Summary Record a transaction from a photographed receipt
// @Description Runs the vision pipeline on an uploaded receipt image (JPEG, PNG or WebP) with an optional caption
// @Tags transactions
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Receipt image"
// @Param caption formData string false "Optional caption, e.g. 市場採買"
// @Param locale formData string false "BCP 47 locale override"
// @Success 201 {object} Response{data=domain.TransactionRecord} "Record created"
// @Failure 400 {object} ErrorResponseBody "Missing file or unreadable image"
// @Failure 413 {object} ErrorResponseBody "Image too large"
// @Failure 422 {object} ErrorResponseBody "Model output failed validation or type is ambiguous"
// @Failure 502 {object} ErrorResponseBody "Model output not decodable"
// @Router /transactions/receipt [post]
func (h *TransactionHandler) ProcessReceipt(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", "file field is required")
		return
	}
	defer func() { _ = file.Close() }()

	if h.maxImageBytes > 0 && header.Size > h.maxImageBytes {
		HandleError(c, domain.ErrImageTooLarge)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxImageBytes+1))
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "READ_FAILED", "could not read uploaded file")
		return
	}
	// header.Size comes from the client; trust what was actually read.
	if h.maxImageBytes > 0 && int64(len(data)) > h.maxImageBytes {
		HandleError(c, domain.ErrImageTooLarge)
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	rec, err := h.txnService.ProcessReceipt(c.Request.Context(), &service.ProcessReceiptInput{
		Image:     data,
		ImageMIME: mimeType,
		Caption:   c.PostForm("caption"),
		Locale:    c.PostForm("locale"),
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondCreated(c, rec)
}

// List handles GET /api/v1/transactions
// @Summary List transaction records
// @Description Lists ledger records, newest first, with optional filters
// @Tags transactions
// @Produce json
// @Param type query string false "Filter by type (revenue or expense)"
// @Param from query string false "Earliest transaction date (YYYY-MM-DD)"
// @Param to query string false "Latest transaction date (YYYY-MM-DD)"
// @Param needs_review query bool false "Only records flagged (or not flagged) for review"
// @Param offset query int false "Offset for pagination" default(0)
// @Param limit query int false "Limit for pagination (max 100)" default(20)
// @Success 200 {object} Response{data=[]domain.TransactionRecord,meta=PagMeta} "List of records"
// @Failure 400 {object} ErrorResponseBody "Invalid filter"
// @Router /transactions [get]
func (h *TransactionHandler) List(c *gin.Context) {
	offset, limit := parsePagination(c)

	var filter port.LedgerFilter
	if t := c.Query("type"); t != "" {
		if t != string(domain.TypeRevenue) && t != string(domain.TypeExpense) {
			RespondError(c, http.StatusBadRequest, "INVALID_TYPE", "type must be revenue or expense")
			return
		}
		filter.Type = domain.TransactionType(t)
	}
	if s := c.Query("from"); s != "" {
		d, err := domain.ParseDate(s)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "INVALID_DATE", "from must be YYYY-MM-DD")
			return
		}
		filter.From = d
	}
	if s := c.Query("to"); s != "" {
		d, err := domain.ParseDate(s)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "INVALID_DATE", "to must be YYYY-MM-DD")
			return
		}
		filter.To = d
	}
	if s := c.Query("needs_review"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "INVALID_FILTER", "needs_review must be true or false")
			return
		}
		filter.NeedsReview = &b
	}

	recs, total, err := h.txnService.List(c.Request.Context(), filter, offset, limit)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondPaginated(c, recs, PagMeta{Total: total, Offset: offset, Limit: limit})
}

// GetByID handles GET /api/v1/transactions/:id
// @Summary Get a transaction record
// @Description Returns one record; archived receipts come with a presigned download URL
// @Tags transactions
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} Response{data=TransactionWithReceipt} "The record"
// @Failure 400 {object} ErrorResponseBody "Invalid ID"
// @Failure 404 {object} ErrorResponseBody "Record not found"
// @Router /transactions/{id} [get]
func (h *TransactionHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "id must be a UUID")
		return
	}

	rec, receiptURL, err := h.txnService.GetByID(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, TransactionWithReceipt{Record: rec, ReceiptURL: receiptURL})
}

// parsePagination extracts offset and limit from query params with defaults.
func parsePagination(c *gin.Context) (offset, limit int) {
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return offset, limit
}
