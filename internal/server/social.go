package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// SocialHandler serves single-platform post generation.
type SocialHandler struct {
	Service *ContentService
}

func (h *SocialHandler) Register(e *echo.Echo) {
	e.POST("/generate-social", h.generate)
}

func (h *SocialHandler) generate(c echo.Context) error {
	var req SocialInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	rec, res, err := h.Service.GenerateSocial(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "success",
		"content": res.Text,
		"blog":    rec,
	})
}
