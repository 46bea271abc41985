package anthropic_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bistrobooks/internal/config"
	"bistrobooks/internal/domain"
	"bistrobooks/internal/model"
	"bistrobooks/internal/model/anthropic"
	"bistrobooks/internal/port"
)

func newTestInvoker(serverURL string) *anthropic.Invoker {
	return anthropic.NewWithEndpoint(&config.BackendConfig{
		Provider:    "anthropic",
		APIKey:      "test-anthropic-key",
		Model:       "claude-sonnet-4-20250514",
		TimeoutSecs: 30,
	}, serverURL)
}

func successResponse(content string) map[string]interface{} {
	return map[string]interface{}{
		"content":     []map[string]interface{}{{"type": "text", "text": content}},
		"stop_reason": "end_turn",
		"usage":       map[string]interface{}{"input_tokens": 90, "output_tokens": 35},
	}
}

func textRequest() *port.InvokeRequest {
	return &port.InvokeRequest{
		Modality: domain.ModalityText,
		Prompt:   "extract the transaction",
		Params:   port.GenerationParams{Temperature: 0.1, MaxTokens: 200},
	}
}

func TestInvoke_Text_Success(t *testing.T) {
	llmJSON := `{"type":"revenue","category":"ubereats","amount":2500}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-anthropic-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var reqBody map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		assert.Equal(t, "claude-sonnet-4-20250514", reqBody["model"])
		assert.Equal(t, float64(200), reqBody["max_tokens"])
		assert.Equal(t, 0.1, reqBody["temperature"])

		messages := reqBody["messages"].([]interface{})
		require.Len(t, messages, 1)
		msg := messages[0].(map[string]interface{})
		content := msg["content"].([]interface{})
		require.Len(t, content, 1)
		textBlock := content[0].(map[string]interface{})
		assert.Equal(t, "text", textBlock["type"])
		assert.Equal(t, "extract the transaction", textBlock["text"])

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(successResponse(llmJSON))
	}))
	defer server.Close()

	result, err := newTestInvoker(server.URL).Invoke(context.Background(), textRequest())

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, llmJSON, result.RawOutput)
	assert.Equal(t, "claude-sonnet-4-20250514", result.ModelUsed)
	assert.Equal(t, 90, result.Usage.PromptTokens)
	assert.Equal(t, 35, result.Usage.CompletionTokens)
	assert.Equal(t, 125, result.Usage.TotalTokens)
}

func TestInvoke_Image_ContentBlocks(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqBody map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))

		messages := reqBody["messages"].([]interface{})
		msg := messages[0].(map[string]interface{})
		content := msg["content"].([]interface{})
		require.Len(t, content, 2)

		imgBlock := content[0].(map[string]interface{})
		assert.Equal(t, "image", imgBlock["type"])
		source := imgBlock["source"].(map[string]interface{})
		assert.Equal(t, "base64", source["type"])
		assert.Equal(t, "image/png", source["media_type"])
		assert.NotEmpty(t, source["data"])

		textBlock := content[1].(map[string]interface{})
		assert.Equal(t, "text", textBlock["type"])

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(successResponse(`{"type":"expense","category":"ingredients","amount":1500}`))
	}))
	defer server.Close()

	req := &port.InvokeRequest{
		Modality:  domain.ModalityImage,
		Prompt:    "read the receipt",
		Image:     buf.Bytes(),
		ImageMIME: "image/png",
		Params:    port.GenerationParams{Temperature: 0.1, MaxTokens: 300},
	}

	_, err := newTestInvoker(server.URL).Invoke(context.Background(), req)
	require.NoError(t, err)
}

func TestInvoke_DefaultMaxTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqBody map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		// The Messages API requires max_tokens even when the request
		// carries none.
		assert.Equal(t, float64(1024), reqBody["max_tokens"])

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(successResponse(`{}`))
	}))
	defer server.Close()

	req := textRequest()
	req.Params.MaxTokens = 0

	_, err := newTestInvoker(server.URL).Invoke(context.Background(), req)
	require.NoError(t, err)
}

func TestInvoke_EmptyPrompt_NoBackendCall(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer server.Close()

	req := textRequest()
	req.Prompt = ""

	result, err := newTestInvoker(server.URL).Invoke(context.Background(), req)

	assert.Nil(t, result)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	assert.Equal(t, 0, hits)
}

func TestInvoke_RateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "45")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error"}}`))
	}))
	defer server.Close()

	result, err := newTestInvoker(server.URL).Invoke(context.Background(), textRequest())

	assert.Nil(t, result)

	var rlErr *model.RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, "anthropic", rlErr.Provider)
	assert.Equal(t, 45*time.Second, rlErr.RetryAfter)
}

func TestInvoke_Overloaded_Unavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"type":"overloaded_error"}}`))
	}))
	defer server.Close()

	_, err := newTestInvoker(server.URL).Invoke(context.Background(), textRequest())

	assert.True(t, errors.Is(err, domain.ErrBackendUnavailable))
}

func TestInvoke_TruncatedOutput(t *testing.T) {
	body := successResponse(`{"type":"rev`)
	body["stop_reason"] = "max_tokens"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer server.Close()

	result, err := newTestInvoker(server.URL).Invoke(context.Background(), textRequest())

	assert.Nil(t, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncated")
}

func TestInvoke_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"content": []interface{}{}})
	}))
	defer server.Close()

	_, err := newTestInvoker(server.URL).Invoke(context.Background(), textRequest())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}
