package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/aeoengine/internal/agent/telemetry"
)

// OpsHandler exposes operational summaries next to /metrics.
type OpsHandler struct {
	tele *telemetry.Telemetry
}

func NewOpsHandler(tele *telemetry.Telemetry) *OpsHandler { return &OpsHandler{tele: tele} }

func (h *OpsHandler) Register(g *echo.Group) {
	g.GET("/usage", h.usage)
}

// usage returns process-lifetime pipeline run and token totals.
func (h *OpsHandler) usage(c echo.Context) error {
	t := h.tele.Snapshot()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs":              t.Runs,
		"failed_runs":       t.FailedRuns,
		"prompt_tokens":     t.PromptTokens,
		"completion_tokens": t.CompletionTokens,
		"total_tokens":      t.PromptTokens + t.CompletionTokens,
	})
}
