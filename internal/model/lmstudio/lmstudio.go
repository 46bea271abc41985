// Package lmstudio talks to a local LM Studio server over its
// OpenAI-compatible HTTP API. One Invoker serves one loaded model; the
// text and vision models run as separate instances against the same
// server.
package lmstudio

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"bistrobooks/internal/config"
	"bistrobooks/internal/domain"
	"bistrobooks/internal/model"
	"bistrobooks/internal/port"
)

const (
	defaultBaseURL = "http://localhost:1234"
	providerName   = "lmstudio"
)

func init() {
	model.Register(providerName, func(cfg *config.BackendConfig) (port.ModelInvoker, error) {
		return New(cfg), nil
	})
}

// Invoker implements port.ModelInvoker and port.ModelLister against an
// LM Studio server.
type Invoker struct {
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
}

// New creates an LM Studio invoker from a backend config. An empty base
// URL falls back to the default local server address.
func New(cfg *config.BackendConfig) *Invoker {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Invoker{
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Invoke sends one chat completion request and returns the model's raw
// text. Input is validated before any network I/O.
func (p *Invoker) Invoke(ctx context.Context, req *port.InvokeRequest) (*port.InvokeResult, error) {
	if err := model.ValidateRequest(req); err != nil {
		return nil, err
	}

	reqBody := map[string]interface{}{
		"model":       p.model,
		"messages":    []map[string]interface{}{{"role": "user", "content": buildContent(req)}},
		"temperature": req.Params.Temperature,
	}
	if req.Params.MaxTokens > 0 {
		reqBody["max_tokens"] = req.Params.MaxTokens
	}
	if len(req.Params.Stop) > 0 {
		reqBody["stop"] = req.Params.Stop
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

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
	log.Printf("lmstudio.Invoke: model=%s modality=%s latency=%dms tokens=%d",
		result.ModelUsed, req.Modality, latency.Milliseconds(), result.Usage.TotalTokens)
	return result, nil
}

// ListModels returns the IDs the server currently has loaded. Used by
// readiness probes and the admin model-info endpoint.
func (p *Invoker) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, model.MapTransportError(providerName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.MapTransportError(providerName, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, model.MapStatusError(providerName, resp.StatusCode, respBody, resp.Header.Get("Retry-After"))
	}

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshaling models response: %w", err)
	}

	ids := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// buildContent returns a plain string for text requests and the
// OpenAI-style content block list for image requests.
func buildContent(req *port.InvokeRequest) interface{} {
	if req.Modality != domain.ModalityImage {
		return req.Prompt
	}
	dataURI := fmt.Sprintf("data:%s;base64,%s", req.ImageMIME, base64.StdEncoding.EncodeToString(req.Image))
	return []map[string]interface{}{
		{
			"type":      "image_url",
			"image_url": map[string]interface{}{"url": dataURI},
		},
		{
			"type": "text",
			"text": req.Prompt,
		},
	}
}

// apiResponse models the OpenAI-compatible chat completion response.
type apiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage port.TokenUsage `json:"usage"`
}

func parseResponse(body []byte, model string, latency time.Duration) (*port.InvokeResult, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from API: no choices")
	}

	if resp.Choices[0].FinishReason == "length" {
		return nil, fmt.Errorf("output truncated (finish_reason: length): response exceeded output token limit")
	}

	used := resp.Model
	if used == "" {
		used = model
	}

	return &port.InvokeResult{
		RawOutput: resp.Choices[0].Message.Content,
		ModelUsed: used,
		Latency:   latency,
		Usage:     resp.Usage,
	}, nil
}
