package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// BlogsHandler serves long-form generation and record reads.
type BlogsHandler struct {
	Service *ContentService
}

func (h *BlogsHandler) Register(e *echo.Echo) {
	e.POST("/blogs", h.create)
	// static routes win over /blogs/:id in echo's router
	e.GET("/blogs/latest", h.latest)
	e.GET("/blogs/latest/topic", h.latestTopic)
	e.GET("/blogs/latest/social", h.latestSocial)
	e.GET("/blogs/:id", h.get)
}

// create runs the blog flow for {topic|prompt, user_id, company_url}.
func (h *BlogsHandler) create(c echo.Context) error {
	var req BlogInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	rec, _, err := h.Service.GenerateBlog(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *BlogsHandler) get(c echo.Context) error {
	rec, err := h.Service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *BlogsHandler) latest(c echo.Context) error {
	rec, err := h.Service.Latest(c.Request().Context(), c.QueryParam("user_id"), c.QueryParam("company_url"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *BlogsHandler) latestTopic(c echo.Context) error {
	rec, err := h.Service.Latest(c.Request().Context(), c.QueryParam("user_id"), c.QueryParam("company_url"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"topic": rec.Topic})
}

func (h *BlogsHandler) latestSocial(c echo.Context) error {
	rec, err := h.Service.Latest(c.Request().Context(), c.QueryParam("user_id"), c.QueryParam("company_url"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"twitter_post":  rec.TwitterPost,
		"linkedin_post": rec.LinkedinPost,
		"reddit_post":   rec.RedditPost,
	})
}
