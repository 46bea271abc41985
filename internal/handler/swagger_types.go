package handler

import (
	"bistrobooks/internal/domain"
)

// Swagger type definitions for API documentation.
// These types are used by swag to generate OpenAPI documentation.

// --- Request Types ---

// TextTransactionRequest represents the text ingestion request body.
type TextTransactionRequest struct {
	Text   string `json:"text" binding:"required" example:"昨天 UberEats 收入八千二"`
	Locale string `json:"locale" example:"zh-TW"`
}

// --- Response Types ---

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
	Error  string `json:"error,omitempty" example:"database not reachable"`
}

// MessageResponse represents a simple message response.
type MessageResponse struct {
	Message string `json:"message" example:"operation completed successfully"`
}

// TemplateReloadResponse represents the template reload response.
type TemplateReloadResponse struct {
	Message   string `json:"message" example:"templates reloaded"`
	Templates int    `json:"templates" example:"2"`
}

// TransactionWithReceipt represents a record with its presigned receipt URL.
type TransactionWithReceipt struct {
	Record     *domain.TransactionRecord `json:"record"`
	ReceiptURL string                    `json:"receipt_url,omitempty" example:"https://s3.amazonaws.com/bistrobooks-receipts/...?X-Amz-Signature=..."`
}

// BackendStatus represents one configured model backend and its live state.
type BackendStatus struct {
	Role     string   `json:"role" example:"text"`
	Provider string   `json:"provider" example:"lmstudio"`
	Model    string   `json:"model" example:"google/gemma-3-1b"`
	BaseURL  string   `json:"base_url,omitempty" example:"http://localhost:1234"`
	Loaded   []string `json:"loaded,omitempty"`
	Error    string   `json:"error,omitempty" example:"lmstudio: connection refused"`
}

// --- Generic Response Wrappers ---

// Response wraps a successful response with data.
type Response struct {
	Success bool        `json:"success" example:"true"`
	Data    interface{} `json:"data,omitempty"`
	Meta    *PagMeta    `json:"meta,omitempty"`
}

// ErrorResponseBody wraps an error response.
type ErrorResponseBody struct {
	Success bool      `json:"success" example:"false"`
	Error   *APIError `json:"error"`
}
