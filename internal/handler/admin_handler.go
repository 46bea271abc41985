package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bistrobooks/internal/config"
	"bistrobooks/internal/port"
	"bistrobooks/internal/prompt"
)

// probeTimeout bounds each backend's ListModels call so one hung server
// cannot stall the whole model-info response.
const probeTimeout = 5 * time.Second

// BackendProbe pairs a configured backend role with its invoker so the
// model-info endpoint can report live state per backend.
type BackendProbe struct {
	Role    string
	Config  *config.BackendConfig
	Invoker port.ModelInvoker
}

// AdminHandler handles operator endpoints: prompt template reload and
// backend model info.
type AdminHandler struct {
	prompts *prompt.Store
	probes  []BackendProbe
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(prompts *prompt.Store, probes []BackendProbe) *AdminHandler {
	return &AdminHandler{prompts: prompts, probes: probes}
}

// ReloadTemplates handles POST /api/v1/admin/templates/reload
// @Summary Reload prompt templates
// @Description Re-reads the template override file and swaps the new set in atomically; a failed reload keeps the previous templates active
// @Tags admin
// @Produce json
// @Success 200 {object} Response{data=TemplateReloadResponse} "Templates reloaded"
// @Failure 500 {object} ErrorResponseBody "Template file invalid; previous templates still active"
// @Router /admin/templates/reload [post]
func (h *AdminHandler) ReloadTemplates(c *gin.Context) {
	if err := h.prompts.Reload(); err != nil {
		RespondError(c, http.StatusInternalServerError, "TEMPLATE_RELOAD_FAILED", err.Error())
		return
	}
	RespondOK(c, TemplateReloadResponse{
		Message:   "templates reloaded",
		Templates: h.prompts.Count(),
	})
}

// ListModels handles GET /api/v1/admin/models
// @Summary Show configured model backends
// @Description Reports each configured backend with its live loaded-model list where the provider supports listing
// @Tags admin
// @Produce json
// @Success 200 {object} Response{data=[]BackendStatus} "Backend statuses"
// @Router /admin/models [get]
func (h *AdminHandler) ListModels(c *gin.Context) {
	statuses := make([]BackendStatus, 0, len(h.probes))
	for _, p := range h.probes {
		st := BackendStatus{
			Role:     p.Role,
			Provider: p.Config.Provider,
			Model:    p.Config.Model,
			BaseURL:  p.Config.BaseURL,
		}
		if lister, ok := p.Invoker.(port.ModelLister); ok {
			ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
			loaded, err := lister.ListModels(ctx)
			cancel()
			if err != nil {
				st.Error = err.Error()
			} else {
				st.Loaded = loaded
			}
		}
		statuses = append(statuses, st)
	}
	RespondOK(c, statuses)
}
