// Package http fetches pages with a plain HTTP GET.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/aeoengine/tools/web_fetch/models"
)

// maxBody caps the HTML read from one page.
const maxBody = 4 << 20

type Fetch struct {
	Client    *nethttp.Client
	MaxChars  int
	UserAgent string
}

func (f Fetch) Exec(ctx context.Context, url string) (models.Result, error) {
	if strings.TrimSpace(url) == "" {
		return models.Result{}, errors.New("invalid url")
	}
	t0 := time.Now()
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, url, nil)
	if err != nil {
		return models.Result{}, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	client := f.Client
	if client == nil {
		client = nethttp.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return models.Result{URL: url, Status: 599}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != nethttp.StatusOK {
		return models.Result{URL: url, Status: resp.StatusCode}, fmt.Errorf("fetch %s: %s", url, resp.Status)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return models.Result{URL: url, Status: resp.StatusCode}, err
	}
	res, err := models.Extract(url, string(b), f.MaxChars)
	res.RenderMS = int(time.Since(t0) / time.Millisecond)
	return res, err
}
