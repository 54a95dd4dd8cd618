package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	core "github.com/mohammad-safakhou/aeoengine/internal/agent/core"
	"github.com/mohammad-safakhou/aeoengine/internal/agent/telemetry"
	"github.com/mohammad-safakhou/aeoengine/internal/knowledge"
	"github.com/mohammad-safakhou/aeoengine/internal/logging"
	"github.com/mohammad-safakhou/aeoengine/internal/runtime"
	"github.com/mohammad-safakhou/aeoengine/internal/store"
	"github.com/mohammad-safakhou/aeoengine/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options wires the HTTP surface to its collaborators.
type Options struct {
	Service   *ContentService
	Ingester  Ingester
	Telemetry *telemetry.Telemetry
	Logger    *slog.Logger

	CorpusDir      string
	UploadMaxBytes int64
	// AdminJWTSecret, when set, guards /ingest with a bearer token carrying
	// the knowledge:ingest scope.
	AdminJWTSecret string
}

// New builds the echo instance with every route registered.
func New(opts Options) *echo.Echo {
	logger := logging.NewComponentLogger(opts.Logger, "http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		he := toHTTPError(err)
		req := c.Request()
		attrs := []any{
			"status", he.Code,
			"method", req.Method,
			"path", req.URL.Path,
			"remote", c.RealIP(),
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			"error", err,
		}
		if he.Code >= http.StatusInternalServerError {
			logger.Error("request failed", attrs...)
		} else {
			logger.Info("request rejected", attrs...)
		}
		if !c.Response().Committed {
			_ = c.JSON(he.Code, map[string]interface{}{"error": fmt.Sprint(he.Message)})
		}
	}

	e.GET("/", index)
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	bh := &BlogsHandler{Service: opts.Service}
	bh.Register(e)
	sh := &SocialHandler{Service: opts.Service}
	sh.Register(e)
	NewOpsHandler(opts.Telemetry).Register(e.Group("/ops"))

	if opts.Ingester != nil {
		ih := &IngestHandler{Ingester: opts.Ingester, CorpusDir: opts.CorpusDir, MaxBytes: opts.UploadMaxBytes, Logger: logger}
		g := e.Group("/ingest")
		if opts.AdminJWTSecret != "" {
			g.Use(runtime.EchoAuthMiddleware([]byte(opts.AdminJWTSecret)), runtime.RequireScopes(runtime.ScopeIngest))
		}
		ih.Register(g)
	}
	return e
}

func index(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "AEO engine is running",
		"endpoints": []string{
			"POST /blogs",
			"GET /blogs/:id",
			"GET /blogs/latest",
			"GET /blogs/latest/topic",
			"GET /blogs/latest/social",
			"POST /generate-social",
			"POST /ingest",
		},
	})
}

// toHTTPError maps domain errors onto status codes.
func toHTTPError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	var ve *models.ValidationError
	var upe *models.UnsupportedPlatformError
	var ge *core.GenerationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	case errors.As(err, &upe):
		return echo.NewHTTPError(http.StatusBadRequest, upe.Error())
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	case errors.Is(err, knowledge.ErrIngestInProgress):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &ge):
		if errors.Is(ge, context.DeadlineExceeded) {
			return echo.NewHTTPError(http.StatusGatewayTimeout, ge.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, ge.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
