package port

import (
	"context"
	"time"

	"bistrobooks/internal/domain"
)

// GenerationParams carries the sampling parameters for one model call.
type GenerationParams struct {
	Temperature float64
	MaxTokens   int
	Stop        []string
}

// InvokeRequest is a transient value object scoped to one pipeline run.
// Prompt is the fully rendered template; Image is set only for image modality.
type InvokeRequest struct {
	Modality  domain.Modality
	Prompt    string
	Image     []byte
	ImageMIME string
	Params    GenerationParams
}

// TokenUsage mirrors the usage block reported by chat-completion backends.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// InvokeResult carries the raw model output plus latency metadata.
// RawOutput is the unmodified text returned by the backend.
type InvokeResult struct {
	RawOutput string
	ModelUsed string
	Latency   time.Duration
	Usage     TokenUsage
}

// ModelInvoker is the uniform capability interface over heterogeneous model
// backends. Implementations own all transport details (encoding, endpoints,
// auth) and must be safe for concurrent use: no shared mutable per-request
// state, cancellable via ctx.
type ModelInvoker interface {
	Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResult, error)
}

// ModelLister is an optional capability of backends that can report which
// models are currently loaded. The readiness probe upgrades to it when
// available.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}
