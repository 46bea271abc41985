// Package anthropic implements the remote fallback backend against the
// Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"bistrobooks/internal/config"
	"bistrobooks/internal/domain"
	"bistrobooks/internal/model"
	"bistrobooks/internal/port"
)

const (
	apiURL       = "https://api.anthropic.com/v1/messages"
	apiVersion   = "2023-06-01"
	providerName = "anthropic"

	// The Messages API requires max_tokens; used when the request
	// carries none.
	defaultMaxTokens = 1024
)

func init() {
	model.Register(providerName, func(cfg *config.BackendConfig) (port.ModelInvoker, error) {
		return New(cfg), nil
	})
}

// Invoker implements port.ModelInvoker against the Anthropic Messages API.
type Invoker struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// New creates an Anthropic invoker from a backend config.
func New(cfg *config.BackendConfig) *Invoker {
	return newInvoker(cfg, apiURL)
}

// NewWithEndpoint creates an invoker pointing at a custom API endpoint (for testing).
func NewWithEndpoint(cfg *config.BackendConfig, endpoint string) *Invoker {
	return newInvoker(cfg, endpoint)
}

func newInvoker(cfg *config.BackendConfig, endpoint string) *Invoker {
	m := cfg.Model
	if m == "" {
		m = "claude-sonnet-4-20250514"
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Invoker{
		apiKey:   cfg.APIKey,
		model:    m,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Invoke sends one message request and returns the model's raw text.
// Input is validated before any network I/O.
func (p *Invoker) Invoke(ctx context.Context, req *port.InvokeRequest) (*port.InvokeResult, error) {
	if err := model.ValidateRequest(req); err != nil {
		return nil, err
	}

	maxTokens := req.Params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	reqBody := map[string]interface{}{
		"model":       p.model,
		"max_tokens":  maxTokens,
		"temperature": req.Params.Temperature,
		"messages": []map[string]interface{}{
			{
				"role":    "user",
				"content": buildContentBlocks(req),
			},
		},
	}
	if len(req.Params.Stop) > 0 {
		reqBody["stop_sequences"] = req.Params.Stop
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, model.MapTransportError(providerName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.MapTransportError(providerName, err)
	}
	latency := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		return nil, model.MapStatusError(providerName, resp.StatusCode, respBody, resp.Header.Get("Retry-After"))
	}

	result, err := parseResponse(respBody, p.model, latency)
	if err != nil {
		return nil, err
	}
	log.Printf("anthropic.Invoke: model=%s modality=%s latency=%dms tokens=%d",
		result.ModelUsed, req.Modality, latency.Milliseconds(), result.Usage.TotalTokens)
	return result, nil
}

func buildContentBlocks(req *port.InvokeRequest) []map[string]interface{} {
	var blocks []map[string]interface{}
	if req.Modality == domain.ModalityImage {
		blocks = append(blocks, map[string]interface{}{
			"type": "image",
			"source": map[string]interface{}{
				"type":       "base64",
				"media_type": req.ImageMIME,
				"data":       base64.StdEncoding.EncodeToString(req.Image),
			},
		})
	}
	blocks = append(blocks, map[string]interface{}{
		"type": "text",
		"text": req.Prompt,
	})
	return blocks
}

// apiResponse models the Anthropic Messages API response.
type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func parseResponse(body []byte, model string, latency time.Duration) (*port.InvokeResult, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}

	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("empty response from API")
	}

	if resp.StopReason == "max_tokens" {
		return nil, fmt.Errorf("output truncated (stop_reason: max_tokens): response exceeded output token limit")
	}

	return &port.InvokeResult{
		RawOutput: resp.Content[0].Text,
		ModelUsed: model,
		Latency:   latency,
		Usage: port.TokenUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}
