package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bistrobooks/internal/domain"
	"bistrobooks/internal/model"
)

// APIResponse is the standard envelope for all API responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *PagMeta    `json:"meta,omitempty"`
}

// APIError holds error details in the response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PagMeta holds pagination metadata.
type PagMeta struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// RespondOK sends a 200 success response.
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

// RespondCreated sends a 201 success response.
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data})
}

// RespondPaginated sends a 200 success response with pagination metadata.
func RespondPaginated(c *gin.Context, data interface{}, meta PagMeta) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data, Meta: &meta})
}

// RespondError sends an error response with the given status code.
func RespondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: msg},
	})
}

// MapDomainError translates pipeline and domain errors to HTTP status codes.
// The split matters operationally: 4xx means the caller's input can never
// work, 502 means the model answered garbage, 503/504 mean the backend is
// the problem.
func MapDomainError(err error) (status int, code, msg string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT", "input is empty or not a readable image"
	case errors.Is(err, domain.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE", "receipt image exceeds maximum allowed size"
	case errors.Is(err, domain.ErrSchemaViolation):
		return http.StatusUnprocessableEntity, "SCHEMA_VIOLATION", "model output did not satisfy the transaction schema"
	case errors.Is(err, domain.ErrAmbiguousType):
		return http.StatusUnprocessableEntity, "AMBIGUOUS_TYPE", "transaction type could not be determined; rephrase with income/expense wording"
	case errors.Is(err, domain.ErrMalformedOutput):
		return http.StatusBadGateway, "MALFORMED_MODEL_OUTPUT", "model output could not be decoded as JSON"
	case errors.Is(err, domain.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, "BACKEND_UNAVAILABLE", "model backend is not reachable"
	case errors.Is(err, domain.ErrBackendTimeout):
		return http.StatusGatewayTimeout, "BACKEND_TIMEOUT", "model backend did not answer in time"
	case errors.Is(err, domain.ErrRecordNotFound):
		return http.StatusNotFound, "NOT_FOUND", "transaction record not found"
	case errors.Is(err, domain.ErrTemplateNotFound):
		return http.StatusInternalServerError, "TEMPLATE_NOT_FOUND", "no prompt template configured for this input"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"
	}
}

// HandleError maps a domain error and sends the appropriate error response.
// Rate-limited backends additionally get a Retry-After header so callers can
// back off instead of hammering.
func HandleError(c *gin.Context, err error) {
	var rle *model.RateLimitError
	if errors.As(err, &rle) {
		if secs := int(rle.RetryAfter.Seconds()); secs > 0 {
			c.Header("Retry-After", strconv.Itoa(secs))
		}
		RespondError(c, http.StatusTooManyRequests, "RATE_LIMITED", "model backend is rate limited; retry later")
		return
	}

	status, code, msg := MapDomainError(err)
	if status >= 500 {
		requestID, _ := c.Get("request_id")
		log.Printf("[%s] %d %s: %v", requestID, status, code, err)
	}
	RespondError(c, status, code, msg)
}
