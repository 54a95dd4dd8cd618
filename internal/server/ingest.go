package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/aeoengine/internal/helpers"
	"github.com/mohammad-safakhou/aeoengine/internal/knowledge"
)

// DefaultUploadMaxBytes caps one /ingest request body.
const DefaultUploadMaxBytes = 32 << 20

// Ingester re-indexes a corpus directory.
type Ingester interface {
	Ingest(ctx context.Context, dir string) (knowledge.IngestReport, error)
}

// IngestHandler accepts corpus uploads and triggers a full re-ingest.
type IngestHandler struct {
	Ingester  Ingester
	CorpusDir string
	MaxBytes  int64
	Logger    *slog.Logger
}

func (h *IngestHandler) Register(g *echo.Group) {
	g.POST("", h.ingest)
}

// ingest stores any multipart "files" in the corpus, then re-ingests the
// whole corpus. A request without files only re-ingests.
func (h *IngestHandler) ingest(c echo.Context) error {
	limit := h.MaxBytes
	if limit <= 0 {
		limit = DefaultUploadMaxBytes
	}
	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, limit)

	uploaded := []string{}
	rejected := []string{}
	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large") {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", limit))
			}
			return echo.NewHTTPError(http.StatusBadRequest, "invalid multipart form")
		}
		if err := os.MkdirAll(h.CorpusDir, 0o755); err != nil {
			return fmt.Errorf("create corpus dir: %w", err)
		}
		for _, fh := range form.File["files"] {
			name := helpers.SanitizeFilename(fh.Filename)
			if name == "" || !knowledge.SupportedExtensions[strings.ToLower(filepath.Ext(name))] {
				rejected = append(rejected, fh.Filename)
				continue
			}
			if err := saveUpload(fh, filepath.Join(h.CorpusDir, name)); err != nil {
				return fmt.Errorf("save %s: %w", name, err)
			}
			uploaded = append(uploaded, name)
		}
	}

	report, err := h.Ingester.Ingest(req.Context(), h.CorpusDir)
	if err != nil {
		return err
	}
	if h.Logger != nil {
		h.Logger.Info("ingest requested", "uploaded", len(uploaded), "rejected", len(rejected), "documents", report.Documents)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":         "success",
		"uploaded_files": uploaded,
		"rejected_files": rejected,
		"documents":      report.Documents,
		"skipped":        report.Skipped,
		"remote":         report.Remote,
	})
}

func saveUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
