package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bistrobooks/internal/config"
	"bistrobooks/internal/handler"
	"bistrobooks/internal/prompt"
	"bistrobooks/mocks"
)

const validTemplates = `templates:
  - name: text-transaction-v2
    modality: text
    task: transaction
    version: 2
    body: "Parse {input_text} in {locale}, currency {currency}."
    placeholders: ["input_text", "locale", "currency"]
`

const brokenTemplates = `templates:
  - name: broken
    modality: text
    task: transaction
    version: 3
    body: "no slots here"
    placeholders: ["input_text"]
`

func TestAdminHandler_ReloadTemplates_Success(t *testing.T) {
	store, err := prompt.NewStore("")
	require.NoError(t, err)
	h := handler.NewAdminHandler(store, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/api/v1/admin/templates/reload", nil)

	h.ReloadTemplates(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp handler.APIResponse
	err = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Contains(t, w.Body.String(), "templates reloaded")
}

func TestAdminHandler_ReloadTemplates_KeepsOldSetOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validTemplates), 0o600))

	store, err := prompt.NewStore(path)
	require.NoError(t, err)
	h := handler.NewAdminHandler(store, nil)

	// Break the file on disk, then ask for a reload.
	require.NoError(t, os.WriteFile(path, []byte(brokenTemplates), 0o600))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/api/v1/admin/templates/reload", nil)

	h.ReloadTemplates(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp handler.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "TEMPLATE_RELOAD_FAILED", resp.Error.Code)

	// The pre-failure override must still render.
	tmpl, err := store.Get("text", prompt.TaskTransaction)
	require.NoError(t, err)
	assert.Equal(t, "text-transaction-v2", tmpl.Name)
}

func TestAdminHandler_ListModels(t *testing.T) {
	store, err := prompt.NewStore("")
	require.NoError(t, err)

	local := new(mocks.MockListingInvoker)
	local.On("ListModels", mock.Anything).
		Return([]string{"google/gemma-3-1b", "qwen/qwen2.5-vl-3b"}, nil)
	remote := new(mocks.MockModelInvoker) // no listing capability

	h := handler.NewAdminHandler(store, []handler.BackendProbe{
		{
			Role:    "text",
			Config:  &config.BackendConfig{Provider: "lmstudio", Model: "google/gemma-3-1b", BaseURL: "http://localhost:1234"},
			Invoker: local,
		},
		{
			Role:    "remote",
			Config:  &config.BackendConfig{Provider: "anthropic", Model: "claude-sonnet-4-20250514"},
			Invoker: remote,
		},
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/admin/models", nil)

	h.ListModels(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                    `json:"success"`
		Data    []handler.BackendStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)

	assert.Equal(t, "text", resp.Data[0].Role)
	assert.Equal(t, []string{"google/gemma-3-1b", "qwen/qwen2.5-vl-3b"}, resp.Data[0].Loaded)
	assert.Empty(t, resp.Data[0].Error)

	assert.Equal(t, "remote", resp.Data[1].Role)
	assert.Empty(t, resp.Data[1].Loaded)
	local.AssertExpectations(t)
}

func TestAdminHandler_ListModels_ProbeFailure(t *testing.T) {
	store, err := prompt.NewStore("")
	require.NoError(t, err)

	local := new(mocks.MockListingInvoker)
	local.On("ListModels", mock.Anything).Return(nil, assert.AnError)

	h := handler.NewAdminHandler(store, []handler.BackendProbe{
		{
			Role:    "text",
			Config:  &config.BackendConfig{Provider: "lmstudio", Model: "google/gemma-3-1b"},
			Invoker: local,
		},
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/admin/models", nil)

	h.ListModels(c)

	// A dead backend is reported, not an error status.
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []handler.BackendStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.NotEmpty(t, resp.Data[0].Error)
	assert.Empty(t, resp.Data[0].Loaded)
}
